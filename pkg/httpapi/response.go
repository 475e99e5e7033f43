package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/marmos91/filestore/internal/logger"
	"github.com/marmos91/filestore/pkg/apperr"
)

// Response is the standard JSON envelope for non-streaming endpoints.
type Response struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Problem is an RFC 7807 problem-details body carrying the core's
// error code and retry hint alongside the standard fields.
type Problem struct {
	Type      string `json:"type,omitempty"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

const contentTypeProblemJSON = "application/problem+json"

// writeJSON encodes to a buffer first so an encoding failure can still
// produce an error response before any headers are sent.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(okResponse(data)); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func okResponse(data interface{}) Response {
	return Response{Status: "ok", Timestamp: time.Now().UTC(), Data: data}
}

// writeError maps a core error onto an HTTP status via the apperr
// taxonomy; anything untyped is a 500 with no internal detail leaked.
func writeError(w http.ResponseWriter, err error) {
	var storeErr *apperr.StoreError
	if errors.As(err, &storeErr) {
		writeProblem(w, storeErr.Code.HTTPStatus(), Problem{
			Title:     http.StatusText(storeErr.Code.HTTPStatus()),
			Detail:    storeErr.Message,
			Code:      string(storeErr.Code),
			Retryable: storeErr.Code.Retryable(),
		})
		return
	}

	logger.Error("unhandled error in HTTP handler", "error", err)
	writeProblem(w, http.StatusInternalServerError, Problem{
		Title:  http.StatusText(http.StatusInternalServerError),
		Detail: "internal error, contact your administrator",
	})
}

func writeProblem(w http.ResponseWriter, status int, p Problem) {
	p.Type = "about:blank"
	p.Status = status

	w.Header().Set("Content-Type", contentTypeProblemJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}

func badRequest(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusBadRequest, Problem{
		Title:  http.StatusText(http.StatusBadRequest),
		Detail: detail,
	})
}

// decodeBody decodes a JSON request body into dst, rejecting unknown
// fields so typos surface as 400s instead of silent zero values.
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
