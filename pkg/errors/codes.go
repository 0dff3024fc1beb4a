package errors

import "net/http"

// Error codes shared by the HTTP surfaces.
const (
	ErrInternal         = "INTERNAL"
	ErrNotFound         = "NOT_FOUND"
	ErrInvalidArgument  = "INVALID_ARGUMENT"
	ErrUnauthenticated  = "UNAUTHENTICATED"
	ErrUnauthorized     = "UNAUTHORIZED"
	ErrConflict         = "CONFLICT"
	ErrTimeout          = "TIMEOUT"
	ErrNotImplemented   = "NOT_IMPLEMENTED"
	ErrInvalidSignature = "INVALID_SIGNATURE"
	ErrMalformedRequest = "MALFORMED_REQUEST"
)

var httpStatusByCode = map[string]int{
	ErrInternal:         http.StatusInternalServerError,
	ErrNotFound:         http.StatusNotFound,
	ErrInvalidArgument:  http.StatusBadRequest,
	ErrUnauthenticated:  http.StatusUnauthorized,
	ErrUnauthorized:     http.StatusForbidden,
	ErrConflict:         http.StatusConflict,
	ErrTimeout:          http.StatusGatewayTimeout,
	ErrNotImplemented:   http.StatusNotImplemented,
	ErrInvalidSignature: http.StatusBadRequest,
	ErrMalformedRequest: http.StatusBadRequest,
}
