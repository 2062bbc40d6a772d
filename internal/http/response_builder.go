package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"finanzas/internal/backup"
	"finanzas/internal/ledger"
	applog "finanzas/internal/log"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
	raw        []byte
}

// NewResponse creates a builder with status 200 and a JSON content type.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets a value to be encoded as the body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.body = v
	b.raw = nil
	return b
}

// Raw sets pre-encoded bytes as the body.
func (b *ResponseBuilder) Raw(contentType string, data []byte) *ResponseBuilder {
	b.headers["Content-Type"] = contentType
	b.raw = data
	b.body = nil
	return b
}

// Attachment marks the body as a download.
func (b *ResponseBuilder) Attachment(filename string) *ResponseBuilder {
	b.headers["Content-Disposition"] = `attachment; filename="` + filename + `"`
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}

	data := b.raw
	if data == nil && b.body != nil {
		encoded, err := json.Marshal(b.body)
		if err != nil {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"failed to encode response"}`))
			return
		}
		data = encoded
	}

	w.WriteHeader(b.statusCode)
	if len(data) > 0 {
		_, _ = w.Write(data)
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(errorBody{Error: message})
}

func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// ValidationErrorResponse reports the rejected field with 422.
func ValidationErrorResponse(err *ledger.ValidationError) *ResponseBuilder {
	return NewResponse().
		Status(http.StatusUnprocessableEntity).
		JSON(errorBody{Error: err.Error(), Field: err.Field})
}

// errorFor maps ledger and backup errors onto responses. Anything
// unrecognised is logged and hidden behind a generic 500.
func errorFor(ctx context.Context, err error) *ResponseBuilder {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		return ValidationErrorResponse(verr)
	case errors.Is(err, ledger.ErrValidation):
		return ErrorResponse(http.StatusUnprocessableEntity, err.Error())
	case ledger.IsNotFound(err):
		return NotFoundError(err.Error())
	case errors.Is(err, backup.ErrInvalidSnapshot), errors.Is(err, backup.ErrMissingVersion):
		return BadRequestError(err.Error())
	case errors.Is(err, context.Canceled):
		return ErrorResponse(499, "request cancelled")
	default:
		applog.FromContext(ctx).ErrorContext(ctx, "Request failed", applog.FieldError, err)
		return InternalServerError("internal error")
	}
}
