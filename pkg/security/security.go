package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/jdziat/agent-escrow/pkg/core"
)

// Security limits and configuration
const (
	// MaxInputSize is the maximum size in bytes for a job's input payload (256KB)
	MaxInputSize = 256 << 10

	// MaxSourceSize is the maximum size in bytes for compute source code (1MB)
	MaxSourceSize = 1 << 20

	// MaxSecretsSize is the maximum size in bytes for encrypted secrets (64KB)
	MaxSecretsSize = 64 << 10

	// MaxExtraArgs is the maximum number of caller-supplied extra arguments
	MaxExtraArgs = 32

	// MaxArgLength is the maximum length of a single extra argument
	MaxArgLength = 4096

	// MaxConcurrency is the hard limit for settlement worker concurrency
	MaxConcurrency = 1000

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096

	// MaxPageSize bounds list queries
	MaxPageSize = 500
)

// validRequestHandle matches a 0x-prefixed 32-byte hex string
var validRequestHandle = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidateAddress checks that s is a non-zero hex address.
func ValidateAddress(s string) error {
	if !common.IsHexAddress(s) {
		return errorsmod.Wrapf(core.ErrInvalidAddress, "%q", s)
	}
	if common.HexToAddress(s) == (common.Address{}) {
		return errorsmod.Wrap(core.ErrInvalidAddress, "zero address")
	}
	return nil
}

// NormalizeAddress validates s and returns its checksummed form.
func NormalizeAddress(s string) (string, error) {
	if err := ValidateAddress(s); err != nil {
		return "", err
	}
	return common.HexToAddress(s).Hex(), nil
}

// ValidateRequestHandle checks the shape of an oracle request handle.
func ValidateRequestHandle(h string) error {
	if !validRequestHandle.MatchString(h) {
		return errorsmod.Wrapf(core.ErrUnknownRequest, "malformed request handle %q", h)
	}
	return nil
}

// ValidateJobPayload enforces presence and size limits on job inputs.
func ValidateJobPayload(input []byte, source string, secrets []byte, extra []string) error {
	if len(input) == 0 {
		return core.ErrEmptyInput
	}
	if strings.TrimSpace(source) == "" {
		return core.ErrEmptySource
	}
	if len(input) > MaxInputSize {
		return errorsmod.Wrapf(core.ErrPayloadTooLarge, "input is %d bytes, limit %d", len(input), MaxInputSize)
	}
	if len(source) > MaxSourceSize {
		return errorsmod.Wrapf(core.ErrPayloadTooLarge, "source is %d bytes, limit %d", len(source), MaxSourceSize)
	}
	if len(secrets) > MaxSecretsSize {
		return errorsmod.Wrapf(core.ErrPayloadTooLarge, "secrets are %d bytes, limit %d", len(secrets), MaxSecretsSize)
	}
	if len(extra) > MaxExtraArgs {
		return errorsmod.Wrapf(core.ErrTooManyArgs, "%d extra args, limit %d", len(extra), MaxExtraArgs)
	}
	for i, arg := range extra {
		if len(arg) > MaxArgLength {
			return errorsmod.Wrapf(core.ErrPayloadTooLarge, "extra arg %d is %d bytes, limit %d", i, len(arg), MaxArgLength)
		}
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == utf8.RuneError {
			continue
		}
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// ClampPageSize bounds a list limit, defaulting to 50.
func ClampPageSize(n int) int {
	if n <= 0 {
		return 50
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}
