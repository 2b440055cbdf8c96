package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
)

// ErrorResponse is the standardized error envelope written by the status server.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code, message, and optional context.
type ErrorDetail struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Coded is implemented by errors that carry a machine-readable code.
type Coded interface {
	error
	ErrorCode() ErrorCode
}

// NewErrorResponse creates a standardized error response.
func NewErrorResponse(code ErrorCode, message string, details map[string]interface{}) ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: code.IsRetryable(),
			Details:   details,
		},
	}
}

// WriteJSON writes the error response as JSON to the HTTP response writer.
func (e ErrorResponse) WriteJSON(w http.ResponseWriter) {
	status := e.Error.Code.HTTPStatus()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(e)
}

// WriteError is a convenience function to write an error response in one call.
func WriteError(w http.ResponseWriter, code ErrorCode, message string, details map[string]interface{}) {
	NewErrorResponse(code, message, details).WriteJSON(w)
}

// WriteSimpleError writes an error with no additional details.
func WriteSimpleError(w http.ResponseWriter, code ErrorCode, message string) {
	WriteError(w, code, message, nil)
}

// CodeOf extracts the code from err, falling back to internal_error.
func CodeOf(err error) ErrorCode {
	var coded Coded
	if stderrors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return ErrCodeInternalError
}

// WriteFromError writes err using its embedded code when it has one.
func WriteFromError(w http.ResponseWriter, err error) {
	WriteSimpleError(w, CodeOf(err), err.Error())
}
