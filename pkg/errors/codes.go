package errors

// Code is a machine-readable error code of the form CATEGORY_NNN. Codes are
// stable once assigned.
type Code string

// Categories and the HTTP status the caller is expected to map them to:
//
//	VAL_xxx     - 400 Bad Request
//	AUTH_xxx    - 401 Unauthorized
//	NF_xxx      - 404 Not Found
//	INT_xxx     - 500 Internal Server Error
//	UNAVAIL_xxx - 503 Service Unavailable
//	TIMEOUT_xxx - 504 Gateway Timeout
const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationRange indicates a value is outside acceptable range.
	CodeValidationRange Code = "VAL_004"

	// CodeTenantConfigInvalid indicates a tenant configuration failed
	// validation. The individual violations are listed in the error's
	// "violations" detail.
	CodeTenantConfigInvalid Code = "VAL_005"

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates a token was structurally valid
	// but its expiry has passed.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates a token failed signature
	// verification, decryption, or decoding.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeTenantMismatch indicates the second PKCE request came from a
	// different tenant than the first.
	CodeTenantMismatch Code = "AUTH_004"

	// CodeChallengeMismatch indicates the PKCE verifier does not hash to
	// the stored challenge.
	CodeChallengeMismatch Code = "AUTH_005"

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundTenant indicates no configuration exists for a tenant.
	CodeNotFoundTenant Code = "NF_002"

	// CodeStateNotFound indicates no PKCE authorization request is stored
	// under the presented code, or it has expired.
	CodeStateNotFound Code = "NF_004"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// CodeCryptoConfig indicates a secret is structurally invalid for the
	// algorithm it was configured with.
	CodeCryptoConfig Code = "INT_004"

	// CodeTokenTypeMismatch indicates a tenant's declared token shape
	// does not match the provider asked to handle it.
	CodeTokenTypeMismatch Code = "INT_005"

	// CodeProviderNotFound indicates no token provider is registered for
	// a tenant's declared token shape.
	CodeProviderNotFound Code = "INT_006"

	// CodeUnsupportedEncryption indicates an encryption step could not be
	// completed with the configured secret.
	CodeUnsupportedEncryption Code = "INT_007"

	// CodeStateNotSaved indicates the PKCE cache rejected a write.
	CodeStateNotSaved Code = "INT_008"

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependent service is unavailable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a database operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
