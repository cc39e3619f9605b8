package errors

import (
	"errors"
)

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "" if
// there is none.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}

// IsValidation reports whether err is a validation error (VAL_xxx).
func IsValidation(err error) bool { return hasCategory(err, "VAL") }

// IsAuthentication reports whether err is an authentication error (AUTH_xxx).
// Expired and invalid tokens, and PKCE tenant/challenge mismatches, are all
// authentication errors.
func IsAuthentication(err error) bool { return hasCategory(err, "AUTH") }

// IsNotFound reports whether err is a not found error (NF_xxx).
func IsNotFound(err error) bool { return hasCategory(err, "NF") }

// IsInternal reports whether err is an internal error (INT_xxx).
func IsInternal(err error) bool { return hasCategory(err, "INT") }

// IsUnavailable reports whether err is a service unavailable error (UNAVAIL_xxx).
func IsUnavailable(err error) bool { return hasCategory(err, "UNAVAIL") }

// IsTimeout reports whether err is a timeout error (TIMEOUT_xxx).
func IsTimeout(err error) bool { return hasCategory(err, "TIMEOUT") }

// IsExpired reports whether err is an expired-token error. Callers use it
// to choose "please re-authenticate" messaging over "malformed request".
func IsExpired(err error) bool { return HasCode(err, CodeAuthenticationExpired) }

// IsRetryable reports whether err is potentially retryable. Nothing in the
// token engine retries on its own; this is for the calling layer's policy.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "TIMEOUT", "UNAVAIL":
		return true
	default:
		return false
	}
}
