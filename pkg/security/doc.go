// Package security provides validation, sanitization, limits and caller
// identity for the escrow package.
//
// This package includes:
//   - Size limits for job input, compute source, secrets and extra arguments
//   - Address and request-handle validation
//   - Error message sanitization before text is persisted
//   - Clamping functions for worker concurrency
//   - Signing and signer recovery used to authenticate callers
package security
