// Package httpx holds the JSON response envelope shared by the HTTP handlers and middleware.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Envelope codes. Non-zero codes mirror the HTTP status where one exists; business codes start at 10000.
const (
	CodeOK              = 0
	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeTooManyAttempts = 429
	CodeInternal        = 500
	CodeRecordExists    = 10001
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 1 << 20

// Envelope is the body of every JSON response.
type Envelope struct {
	Msg       string `json:"msg"`
	Code      int    `json:"code"`
	Data      any    `json:"data"`
	RequestID string `json:"request_id"`
}

type requestIDKey struct{}

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id set by WithRequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// Write encodes env with the given HTTP status. The request id is filled from r's context.
func Write(w http.ResponseWriter, r *http.Request, status int, env Envelope) {
	env.RequestID = RequestIDFrom(r.Context())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// OK writes a 200 success envelope.
func OK(w http.ResponseWriter, r *http.Request, data any) {
	Write(w, r, http.StatusOK, Envelope{Msg: "ok", Code: CodeOK, Data: data})
}

// Fail writes a failure envelope.
func Fail(w http.ResponseWriter, r *http.Request, status, code int, msg string) {
	Write(w, r, status, Envelope{Msg: msg, Code: code})
}

// Unauthorized writes the single 401 envelope used for every authentication failure.
// It never says which check failed.
func Unauthorized(w http.ResponseWriter, r *http.Request) {
	Fail(w, r, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
}

func Forbidden(w http.ResponseWriter, r *http.Request) {
	Fail(w, r, http.StatusForbidden, CodeForbidden, "forbidden")
}

func TooManyAttempts(w http.ResponseWriter, r *http.Request) {
	Fail(w, r, http.StatusTooManyRequests, CodeTooManyAttempts, "too many attempts, try again later")
}

func Internal(w http.ResponseWriter, r *http.Request) {
	Fail(w, r, http.StatusInternalServerError, CodeInternal, "internal server error")
}

func RecordExists(w http.ResponseWriter, r *http.Request) {
	Fail(w, r, http.StatusConflict, CodeRecordExists, "record already exists")
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	Fail(w, r, http.StatusNotFound, CodeNotFound, "not found")
}

// BadRequest writes a 400 envelope. A *ValidationError's field is returned in data.
func BadRequest(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		Write(w, r, http.StatusBadRequest, Envelope{Msg: ve.Error(), Code: CodeBadRequest, Data: map[string]string{"field": ve.Field}})
		return
	}
	Fail(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
}

// ValidationError reports an invalid request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ErrEmptyBody is returned by DecodeJSON for a request without a body.
var ErrEmptyBody = errors.New("request body is empty")

// DecodeJSON decodes a single JSON object from r's body into dst. Unknown fields are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}
