package apperror

import (
  "errors"
  "fmt"
  "net/http"
)

type Kind string

const (
  KindNotFound      Kind = "not_found"
  KindBadRequest    Kind = "bad_request"
  KindUnauthorized  Kind = "unauthorized"
  KindForbidden     Kind = "forbidden"
  KindInternal      Kind = "internal"
)

// Error tags an error with a Kind so the HTTP layer can pick a status code.
// The message is what the caller sees; Err (if any) is kept for errors.Is/As.
type Error struct {
  Kind    Kind
  Message string
  Err     error
}

func (e *Error) Error() string {
  if e.Err != nil {
    if e.Message == "" {
      return e.Err.Error()
    }
    return fmt.Sprintf("%s: %v", e.Message, e.Err)
  }
  return e.Message
}

func (e *Error) Unwrap() error {
  return e.Err
}

func newError(kind Kind, err error, format string, args ...interface{}) *Error {
  return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...interface{}) error {
  return newError(KindNotFound, nil, format, args...)
}

func BadRequest(format string, args ...interface{}) error {
  return newError(KindBadRequest, nil, format, args...)
}

func Unauthorized(format string, args ...interface{}) error {
  return newError(KindUnauthorized, nil, format, args...)
}

func Forbidden(format string, args ...interface{}) error {
  return newError(KindForbidden, nil, format, args...)
}

// Internal wraps err as an Internal error. The cause's text stays in the message.
func Internal(err error, format string, args ...interface{}) error {
  return newError(KindInternal, err, format, args...)
}

// Wrap tags err with kind, keeping it reachable through errors.Is/As.
func Wrap(kind Kind, err error, format string, args ...interface{}) error {
  return newError(kind, err, format, args...)
}

// KindOf walks the chain for an *Error. Untagged errors are Internal.
func KindOf(err error) Kind {
  if err == nil {
    return ""
  }
  var appErr *Error
  if errors.As(err, &appErr) {
    return appErr.Kind
  }
  return KindInternal
}

func IsNotFound(err error) bool {
  return KindOf(err) == KindNotFound
}

func HTTPStatus(err error) int {
  switch KindOf(err) {
  case KindNotFound:
    return http.StatusNotFound
  case KindBadRequest:
    return http.StatusBadRequest
  case KindUnauthorized:
    return http.StatusUnauthorized
  case KindForbidden:
    return http.StatusForbidden
  case "":
    return http.StatusOK
  default:
    return http.StatusInternalServerError
  }
}
