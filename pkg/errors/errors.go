// Package errors defines the structured error type shared by every package
// of the token engine. Each error carries a machine-readable [Code] whose
// category prefix (VAL, AUTH, NF, INT, UNAVAIL, TIMEOUT) tells the calling
// layer how to respond without inspecting messages.
//
// # Token engine taxonomy
//
// The codes map one-to-one to the failure kinds callers must tell apart:
//
//   - [CodeCryptoConfig]: a secret is malformed for its algorithm
//   - [CodeTokenTypeMismatch], [CodeProviderNotFound]: tenant configuration
//     disagrees with the provider registry
//   - [CodeUnsupportedEncryption]: an encryption step could not complete
//   - [CodeAuthenticationInvalid]: signature or decryption failure
//   - [CodeAuthenticationExpired]: structurally valid but past expiry
//   - [CodeTenantConfigInvalid]: tenant configuration validation failed
//   - [CodeStateNotSaved], [CodeStateNotFound], [CodeTenantMismatch],
//     [CodeChallengeMismatch]: PKCE handshake rejections
//
// Messages never contain secret material. Structured context (tenant id,
// algorithm, authorization code) goes into [Error.Details].
//
// # Usage
//
//	err := errors.New(errors.CodeStateNotFound, "pkce: authorization request not found")
//	err = err.WithDetail("tenant_id", tenantID)
//
//	if errors.HasCode(err, errors.CodeAuthenticationExpired) {
//	    // ask the user to re-authenticate
//	}
package errors
