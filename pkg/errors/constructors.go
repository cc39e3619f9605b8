package errors

import (
	"errors"
	"fmt"
)

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates an Error with the given code and a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps err with a code and message. Wrap returns nil if err is nil.
//
// Example:
//
//	if err := rows.Scan(&cfg.ID); err != nil {
//	    return errors.Wrap(err, errors.CodeInternalDatabase, "tenant: scan failed")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps err with a code and a formatted message. Wrapf returns nil if
// err is nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// Internal creates an internal error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// CryptoConfig creates a [CodeCryptoConfig] error for the named algorithm.
// The cause should describe the structural problem with the key, never the
// key itself.
func CryptoConfig(algorithm string, cause error) *Error {
	e := &Error{
		Code:    CodeCryptoConfig,
		Message: fmt.Sprintf("crypto: secret is not valid for algorithm %q", algorithm),
		Cause:   cause,
	}
	return e.WithDetail("algorithm", algorithm)
}

// TokenInvalid creates a [CodeAuthenticationInvalid] error.
func TokenInvalid(message string, cause error) *Error {
	return &Error{
		Code:    CodeAuthenticationInvalid,
		Message: message,
		Cause:   cause,
	}
}

// TokenExpired creates a [CodeAuthenticationExpired] error.
func TokenExpired(message string) *Error {
	return New(CodeAuthenticationExpired, message)
}

// FromError converts err to an *Error. Errors that already are (or wrap) an
// *Error are returned as-is; anything else becomes an internal error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
