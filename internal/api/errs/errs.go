// Package errs provides types and support related to web error functionality.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

// ErrCode represents an error code in the system.
type ErrCode struct {
	value  int
	status int
}

// Value returns the integer value of the error code.
func (ec ErrCode) Value() int { return ec.value }

// String returns the string representation of the error code.
func (ec ErrCode) String() string { return codeNames[ec] }

// MarshalText implements the encoding.TextMarshaler interface.
func (ec ErrCode) MarshalText() ([]byte, error) { return []byte(ec.String()), nil }

// Error codes, modeled on the gRPC status codes.
var (
	OK                 = ErrCode{value: 0, status: http.StatusOK}
	Canceled           = ErrCode{value: 1, status: http.StatusGatewayTimeout}
	Unknown            = ErrCode{value: 2, status: http.StatusInternalServerError}
	InvalidArgument    = ErrCode{value: 3, status: http.StatusBadRequest}
	DeadlineExceeded   = ErrCode{value: 4, status: http.StatusGatewayTimeout}
	NotFound           = ErrCode{value: 5, status: http.StatusNotFound}
	AlreadyExists      = ErrCode{value: 6, status: http.StatusConflict}
	PermissionDenied   = ErrCode{value: 7, status: http.StatusForbidden}
	FailedPrecondition = ErrCode{value: 9, status: http.StatusConflict}
	Aborted            = ErrCode{value: 10, status: http.StatusConflict}
	Internal           = ErrCode{value: 13, status: http.StatusInternalServerError}
	Unavailable        = ErrCode{value: 14, status: http.StatusServiceUnavailable}
	Unauthenticated    = ErrCode{value: 16, status: http.StatusUnauthorized}

	// BadGateway has no gRPC counterpart. It reports an upstream robot
	// agent that answered with an error.
	BadGateway = ErrCode{value: 100, status: http.StatusBadGateway}
)

var codeNames = map[ErrCode]string{
	OK:                 "ok",
	Canceled:           "canceled",
	Unknown:            "unknown",
	InvalidArgument:    "invalid_argument",
	DeadlineExceeded:   "deadline_exceeded",
	NotFound:           "not_found",
	AlreadyExists:      "already_exists",
	PermissionDenied:   "permission_denied",
	FailedPrecondition: "failed_precondition",
	Aborted:            "aborted",
	Internal:           "internal",
	Unavailable:        "unavailable",
	Unauthenticated:    "unauthenticated",
	BadGateway:         "bad_gateway",
}

// Error represents an error in the system.
type Error struct {
	Code     ErrCode `json:"code"`
	Message  string  `json:"message"`
	FuncName string  `json:"-"`
	FileName string  `json:"-"`
}

// New constructs an error based on an app error.
func New(code ErrCode, err error) *Error {
	pc, filename, line, _ := runtime.Caller(1)

	return &Error{
		Code:     code,
		Message:  err.Error(),
		FuncName: runtime.FuncForPC(pc).Name(),
		FileName: fmt.Sprintf("%s:%d", filename, line),
	}
}

// Newf constructs an error based on a error message.
func Newf(code ErrCode, format string, v ...any) *Error {
	pc, filename, line, _ := runtime.Caller(1)

	return &Error{
		Code:     code,
		Message:  fmt.Sprintf(format, v...),
		FuncName: runtime.FuncForPC(pc).Name(),
		FileName: fmt.Sprintf("%s:%d", filename, line),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Encode implements the web.Encoder interface.
func (e *Error) Encode() ([]byte, string, error) {
	data, err := json.Marshal(e)
	return data, "application/json", err
}

// HTTPStatus implements the web package httpStatus interface so the
// web package can set the status code.
func (e *Error) HTTPStatus() int {
	return e.Code.status
}

// Equal provides support for the go-cmp package and testing.
func (e *Error) Equal(e2 *Error) bool {
	return e.Code == e2.Code && e.Message == e2.Message
}

// IsError tests the concrete error is of the Error type.
func IsError(err error) bool {
	var er *Error
	return errors.As(err, &er)
}

// GetError returns a copy of the Error pointer.
func GetError(err error) *Error {
	var er *Error
	if !errors.As(err, &er) {
		return nil
	}
	return er
}
