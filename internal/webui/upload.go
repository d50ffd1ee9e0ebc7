package webui

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"csvfilter/internal/filter"
	"csvfilter/internal/staging"
)

// Multipart field names used by the upload page.
const (
	fieldFile    = "file"
	fieldColumns = "columnsToFilter"

	// formSlack is the allowance for multipart framing and small fields on
	// top of the file size limit.
	formSlack = 1 << 20
	// maxColumnsField bounds the columnsToFilter value.
	maxColumnsField = 256 << 10

	inputName  = "input.csv"
	outputName = "filtered.csv"
)

var (
	errTooLarge   = errors.New("upload too large")
	errBadUpload  = errors.New("malformed upload")
	errBadColumns = errors.New("invalid columnsToFilter")
)

// upload describes a spooled multipart request.
type upload struct {
	FileName string
	Size     int64
	Columns  []string
}

// limitBody caps the request body at the upload limit plus framing.
func (s *Server) limitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+formSlack)
}

// multipartReader returns filter.ErrNoInput for requests that cannot carry
// a file at all.
func multipartReader(r *http.Request) (*multipart.Reader, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, filter.ErrNoInput
	}
	return mr, nil
}

// spool copies the "file" part into the stage and collects columnsToFilter.
// Fields may arrive in any order.
func (s *Server) spool(r *http.Request, stage *staging.Stage) (upload, error) {
	var up upload
	mr, err := multipartReader(r)
	if err != nil {
		return up, err
	}

	haveFile := false
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return up, uploadErr(err)
		}

		switch part.FormName() {
		case fieldFile:
			if haveFile {
				part.Close()
				continue
			}
			haveFile = true
			up.FileName = part.FileName()
			f, err := stage.Create(inputName)
			if err != nil {
				part.Close()
				return up, err
			}
			n, err := io.Copy(f, io.LimitReader(part, s.cfg.MaxUploadBytes+1))
			up.Size = n
			if err != nil {
				part.Close()
				return up, uploadErr(err)
			}
			if n > s.cfg.MaxUploadBytes {
				part.Close()
				return up, errTooLarge
			}
			if err := f.Close(); err != nil {
				return up, &filter.IOError{Op: "write", Err: err}
			}

		case fieldColumns:
			b, err := io.ReadAll(io.LimitReader(part, maxColumnsField+1))
			if err != nil {
				part.Close()
				return up, uploadErr(err)
			}
			if len(b) > maxColumnsField {
				part.Close()
				return up, fmt.Errorf("%w: value too long", errBadColumns)
			}
			cols, err := parseColumns(string(b))
			if err != nil {
				part.Close()
				return up, err
			}
			up.Columns = cols
		}
		part.Close()
	}

	if !haveFile {
		return up, filter.ErrNoInput
	}
	return up, nil
}

// uploadErr separates an exceeded body limit from other transport failures.
func uploadErr(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return errTooLarge
	}
	return fmt.Errorf("%w: %v", errBadUpload, err)
}

// parseColumns accepts a JSON array of strings, as the upload page sends it,
// or a comma separated list. Blank means no selection.
func parseColumns(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "[") {
		var cols []string
		if err := json.Unmarshal([]byte(s), &cols); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadColumns, err)
		}
		return cols, nil
	}
	return strings.Split(s, ","), nil
}
