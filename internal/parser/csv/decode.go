package csv

import (
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// newDecodingReader strips a UTF-8 BOM and transcodes UTF-16 input that starts
// with a BOM. Input without a BOM passes through byte for byte.
func newDecodingReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(transform.Nop))
}

// NormalizeName canonicalizes a column name for matching: surrounding
// whitespace is trimmed, a stray BOM removed, and the result NFC-normalized so
// that composed and decomposed spellings of the same name compare equal.
func NormalizeName(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\uFEFF"))
	return norm.NFC.String(s)
}
