// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// Kind classifies a domain error so the HTTP layer can map it to a status
// code without string-sniffing messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuth
	KindForbidden
	KindRateLimit
	KindParse
	KindIO
)

// Error wraps a cause with a Kind and a stable, user-facing message.
type Error struct {
	kind    Kind
	message string
	details string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.cause }

// ErrKind returns the classification of err, or KindUnknown if err is not (or
// does not wrap) an *Error.
func ErrKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// Details returns the details payload attached to err, if any.
func ErrDetails(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.details
	}
	return ""
}

func newErr(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

func wrapErr(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, message: message, cause: errors.Wrap(cause, message)}
}

// Validationf builds a 400-class error.
func Validationf(format string, args ...any) *Error {
	return newErr(KindValidation, errors.Newf(format, args...).Error())
}

// NotFoundf builds a 404-class error.
func NotFoundf(format string, args ...any) *Error {
	return newErr(KindNotFound, errors.Newf(format, args...).Error())
}

// Conflictf builds a 409-class error.
func Conflictf(format string, args ...any) *Error {
	return newErr(KindConflict, errors.Newf(format, args...).Error())
}

// Authf builds a 401-class error.
func Authf(format string, args ...any) *Error {
	return newErr(KindAuth, errors.Newf(format, args...).Error())
}

// Forbiddenf builds a 403-class error.
func Forbiddenf(format string, args ...any) *Error {
	return newErr(KindForbidden, errors.Newf(format, args...).Error())
}

// RateLimitedf builds a 429-class error.
func RateLimitedf(format string, args ...any) *Error {
	return newErr(KindRateLimit, errors.Newf(format, args...).Error())
}

// ParseErrorf wraps a JSON/file corruption error. The caller must never
// overwrite the file that produced it.
func ParseErrorf(cause error, format string, args ...any) *Error {
	return wrapErr(KindParse, errors.Newf(format, args...).Error(), cause)
}

// IOErrorf wraps a filesystem/disk failure.
func IOErrorf(cause error, format string, args ...any) *Error {
	return wrapErr(KindIO, errors.Newf(format, args...).Error(), cause)
}

// StatusCode maps a Kind to the HTTP status code of spec §7.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindParse, KindIO:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the wire shape of every JSON error response (spec §6).
type ErrorBody struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// WriteError writes err to w as a JSON error body with the matching status
// code, classifying plain (non-*Error) errors as internal IOErrors.
func WriteError(w http.ResponseWriter, err error) {
	kind := ErrKind(err)
	status := kind.StatusCode()
	if kind == KindUnknown {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, ErrorBody{Message: err.Error(), Details: ErrDetails(err)})
}
