package webui

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	"csvfilter/internal/filter"
	"csvfilter/internal/logger"
	"csvfilter/internal/staging"
)

// StatusClientClosedRequest is the nginx convention for a client that went
// away before the response was ready.
const StatusClientClosedRequest = 499

type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("webui: encode response", "err", err)
	}
}

// sizeLabel renders n the way the upload limit message always has: "500MB".
func sizeLabel(n int64) string {
	s := humanize.IBytes(uint64(n))
	return strings.ReplaceAll(strings.ReplaceAll(s, " ", ""), "iB", "B")
}

// classify maps an upload or pipeline error onto a status, a client message
// and a kind for the run log. fallback is the message for server faults.
func (s *Server) classify(err error, fallback string) (int, string, string) {
	switch {
	case errors.Is(err, errTooLarge):
		return http.StatusBadRequest,
			fmt.Sprintf("File size too large. Maximum size is %s.", sizeLabel(s.cfg.MaxUploadBytes)),
			"too_large"
	case errors.Is(err, errBadColumns):
		return http.StatusBadRequest, err.Error(), "bad_request"
	case errors.Is(err, errBadUpload):
		return http.StatusBadRequest, "File upload error", "bad_request"
	case errors.Is(err, staging.ErrInsufficientSpace):
		return http.StatusInsufficientStorage, "Insufficient storage, try again later", "no_space"
	}

	kind := filter.Classify(err)
	switch kind {
	case filter.KindNoInput:
		return http.StatusBadRequest, "No file uploaded", string(kind)
	case filter.KindParse:
		return http.StatusUnprocessableEntity, fallback + ": " + err.Error(), string(kind)
	case filter.KindColumn:
		return http.StatusBadRequest, err.Error(), string(kind)
	case filter.KindCanceled:
		return StatusClientClosedRequest, "Request canceled", string(kind)
	}
	return http.StatusInternalServerError, fallback, string(kind)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, msg, kind := s.classify(err, fallback)
	id := RequestID(r.Context())
	if status >= 500 {
		logger.Error("webui: request failed", "request_id", id, "path", r.URL.Path, "status", status, "err", err)
	} else {
		logger.Info("webui: request rejected", "request_id", id, "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: kind, RequestID: id})
}
