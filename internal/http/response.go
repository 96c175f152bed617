package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"finboard/internal/connections"
	"finboard/internal/core"
	applog "finboard/internal/log"
	"finboard/internal/services"
)

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the response. A nil body writes only the status.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

const (
	CodeInvalidRequest    = "invalid_request"
	CodeNotFound          = "not_found"
	CodeMalformedInput    = "malformed_input"
	CodeSourceUnavailable = "source_unavailable"
	CodeInsightsDisabled  = "insights_disabled"
	CodeNothingToAnalyze  = "nothing_to_analyze"
	CodeRateLimited       = "rate_limited"
	CodeTimeout           = "timeout"
	CodeInternal          = "internal"
)

func ErrorResponse(status int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(status).Body(ErrorBody{Error: message, Code: code})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeInvalidRequest, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, CodeNotFound, message)
}

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

// statusFor maps service errors to an HTTP status and error code.
func statusFor(err error) (int, string) {
	var malformed *core.MalformedInputError
	var fetch *services.SourceFetchError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, services.ErrInvalidView),
		errors.Is(err, services.ErrInvalidSource),
		errors.Is(err, core.ErrInvalidPeriod):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, services.ErrSourceNotFound),
		errors.Is(err, connections.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.As(err, &malformed):
		return http.StatusUnprocessableEntity, CodeMalformedInput
	case errors.Is(err, services.ErrInsightsDisabled):
		return http.StatusServiceUnavailable, CodeInsightsDisabled
	case errors.Is(err, services.ErrNothingToAnalyze):
		return http.StatusConflict, CodeNothingToAnalyze
	case errors.As(err, &fetch):
		return http.StatusBadGateway, CodeSourceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeError logs err and writes the mapped JSON error. Internal details are
// not exposed for 500s.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	logger := applog.FromContext(r.Context())
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.ErrorContext(r.Context(), "Request failed",
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, status,
			applog.FieldError, err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	ErrorResponse(status, code, msg).Write(w)
}
