package filter

import (
	"fmt"
	"strings"

	csvparser "csvfilter/internal/parser/csv"
)

// MissingPolicy decides what happens when a selected column is not in the
// header.
type MissingPolicy int

const (
	// MissingDrop keeps running; the predicate fails for every row, so only
	// the header is written.
	MissingDrop MissingPolicy = iota
	// MissingError aborts with *ColumnNotFoundError before writing anything.
	MissingError
)

func (p MissingPolicy) String() string {
	if p == MissingError {
		return "error"
	}
	return "drop"
}

// ParseMissingPolicy accepts "drop" (or "") and "error".
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop":
		return MissingDrop, nil
	case "error":
		return MissingError, nil
	}
	return MissingDrop, fmt.Errorf("unknown missing-column policy %q (want drop or error)", s)
}

// Selection is the set of column names whose emptiness gates row retention.
// Names are normalized (trimmed, NFC); duplicates and blank names collapse.
type Selection struct {
	names []string
}

// NewSelection builds a Selection from caller-supplied names.
func NewSelection(names ...string) Selection {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = csvparser.NormalizeName(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return Selection{names: out}
}

// Names returns the normalized names in first-seen order.
func (s Selection) Names() []string { return append([]string(nil), s.names...) }

// Len returns the number of distinct names.
func (s Selection) Len() int { return len(s.names) }

// Predicate is the keep/drop decision for data rows, compiled once per run.
type Predicate struct {
	idx     []int
	missing []string
}

// Resolve compiles the selection against header. Every header position whose
// normalized name is selected is checked, so a name that appears twice in the
// header requires both columns to be non-empty.
func (s Selection) Resolve(header []string) Predicate {
	pos := make(map[string][]int, len(header))
	for i, h := range header {
		n := csvparser.NormalizeName(h)
		pos[n] = append(pos[n], i)
	}

	var p Predicate
	for _, name := range s.names {
		ix, ok := pos[name]
		if !ok {
			p.missing = append(p.missing, name)
			continue
		}
		p.idx = append(p.idx, ix...)
	}
	return p
}

// Missing lists selected names that are absent from the header.
func (p Predicate) Missing() []string { return append([]string(nil), p.missing...) }

// Resolved reports whether every selected name was found.
func (p Predicate) Resolved() bool { return len(p.missing) == 0 }

// Keep reports whether a data row passes: every selected column exists and
// its trimmed value is non-empty. Positions beyond the end of a short row are
// empty.
func (p Predicate) Keep(fields []string) bool {
	if len(p.missing) > 0 {
		return false
	}
	for _, i := range p.idx {
		if i >= len(fields) || strings.TrimSpace(fields[i]) == "" {
			return false
		}
	}
	return true
}
