package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	apperrors "github.com/Atulx21/SevaConnect/pkg/errors"
)

// Remote error codes with client-visible meaning.
const (
	// CodeNoRows is PostgREST's code for a single-object request that matched
	// zero (or more than one) rows.
	CodeNoRows = "PGRST116"
	// CodeUniqueViolation is the Postgres SQLSTATE for a duplicate key.
	CodeUniqueViolation = "23505"
	// CodeInsufficientPrivilege is the Postgres SQLSTATE raised by row-level
	// security denials.
	CodeInsufficientPrivilege = "42501"
)

// RemoteErrorBody covers the error shapes returned by the backend: the data
// API ({code, message, details, hint}) and the auth API ({error,
// error_description} or {code, error_code, msg}).
type RemoteErrorBody struct {
	Code             json.RawMessage `json:"code"`
	Message          string          `json:"message"`
	Details          string          `json:"details"`
	Hint             string          `json:"hint"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
}

// code returns the machine-readable code, preferring error_code, then a
// string code, then the OAuth-style error field.
func (b RemoteErrorBody) code() string {
	if b.ErrorCode != "" {
		return b.ErrorCode
	}
	if len(b.Code) > 0 {
		var s string
		if json.Unmarshal(b.Code, &s) == nil && s != "" {
			return s
		}
	}
	return b.Error
}

func (b RemoteErrorBody) message() string {
	for _, m := range []string{b.Message, b.Msg, b.ErrorDescription, b.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an *apperrors.AppError that carries the backend's machine code. The
// body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.Unavailable(
			fmt.Sprintf("%s returned status %d", serviceName, resp.StatusCode),
			fmt.Errorf("read body: %w", err),
		)
	}

	var body RemoteErrorBody
	if json.Unmarshal(bodyBytes, &body) != nil || (body.code() == "" && body.message() == "") {
		body = RemoteErrorBody{Message: string(bodyBytes)}
	}
	if body.message() == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}

	return mapRemoteError(resp.StatusCode, body.code(), body.message(), serviceName)
}

// mapRemoteError translates a backend status and code into an AppError that
// preserves the error semantics. Only CodeNoRows means "no such row"; any
// other 404 (missing relation, wrong base path) stays a REMOTE_ERROR.
func mapRemoteError(status int, code, message, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	var appErr *apperrors.AppError
	switch {
	case code == CodeNoRows:
		appErr = &apperrors.AppError{
			Code:    "NOT_FOUND",
			Message: qualifiedMsg,
			Status:  http.StatusNotFound,
			Err:     apperrors.ErrNotFound,
		}
	case code == CodeUniqueViolation:
		appErr = &apperrors.AppError{
			Code:    "ALREADY_EXISTS",
			Message: qualifiedMsg,
			Status:  http.StatusConflict,
			Err:     apperrors.ErrAlreadyExists,
		}
	case code == CodeInsufficientPrivilege, status == http.StatusForbidden:
		appErr = apperrors.Forbidden(qualifiedMsg)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		appErr = apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		appErr = apperrors.Conflict(qualifiedMsg)
	case status == http.StatusUnauthorized:
		appErr = apperrors.Unauthorized(qualifiedMsg)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		appErr = apperrors.Unavailable(qualifiedMsg, nil)
	case status >= 500 && status != http.StatusNotImplemented:
		appErr = apperrors.Unavailable(qualifiedMsg, fmt.Errorf("server error %d", status))
	default:
		appErr = &apperrors.AppError{
			Code:    "REMOTE_ERROR",
			Message: qualifiedMsg,
			Status:  status,
			Err:     fmt.Errorf("%s returned status %d", serviceName, status),
		}
	}

	if code == "" {
		code = strconv.Itoa(status)
	}
	return appErr.WithRemoteCode(code)
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
