package security

import (
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/agent-escrow/pkg/core"
)

func TestValidateAddress(t *testing.T) {
	valid := []string{
		"0x1111111111111111111111111111111111111111",
		"0xAbCdEf0123456789aBcDeF0123456789AbCdEf01",
		"1111111111111111111111111111111111111111",
	}
	for _, addr := range valid {
		assert.NoError(t, ValidateAddress(addr), "Expected %q to be valid", addr)
	}

	invalid := []string{
		"",
		"0x",
		"0x1234",
		"0x0000000000000000000000000000000000000000", // zero address
		"0xZZ11111111111111111111111111111111111111",
	}
	for _, addr := range invalid {
		err := ValidateAddress(addr)
		assert.True(t, errors.Is(err, core.ErrInvalidAddress), "Expected %q to be invalid", addr)
	}
}

func TestNormalizeAddress(t *testing.T) {
	lower := "0xabcdef0123456789abcdef0123456789abcdef01"
	got, err := NormalizeAddress(lower)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(lower).Hex(), got)
	assert.True(t, strings.EqualFold(lower, got))

	again, err := NormalizeAddress(strings.ToUpper(lower[2:]))
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestValidateRequestHandle(t *testing.T) {
	assert.NoError(t, ValidateRequestHandle("0x"+strings.Repeat("ab", 32)))

	for _, h := range []string{"", "0x", "0x1234", strings.Repeat("ab", 32), "0x" + strings.Repeat("zz", 32)} {
		err := ValidateRequestHandle(h)
		assert.True(t, errors.Is(err, core.ErrUnknownRequest), "Expected %q to be rejected", h)
	}
}

func TestValidateJobPayload(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		source  string
		secrets []byte
		extra   []string
		want    error
	}{
		{name: "valid", input: []byte("x"), source: "return 1"},
		{name: "empty input", input: nil, source: "return 1", want: core.ErrEmptyInput},
		{name: "blank source", input: []byte("x"), source: "  \n", want: core.ErrEmptySource},
		{name: "input too large", input: make([]byte, MaxInputSize+1), source: "s", want: core.ErrPayloadTooLarge},
		{name: "secrets too large", input: []byte("x"), source: "s", secrets: make([]byte, MaxSecretsSize+1), want: core.ErrPayloadTooLarge},
		{name: "too many args", input: []byte("x"), source: "s", extra: make([]string, MaxExtraArgs+1), want: core.ErrTooManyArgs},
		{name: "arg too long", input: []byte("x"), source: "s", extra: []string{strings.Repeat("a", MaxArgLength+1)}, want: core.ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJobPayload(tt.input, tt.source, tt.secrets, tt.extra)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "normal message",
			input:    "connection refused",
			expected: "connection refused",
		},
		{
			name:     "message with newlines",
			input:    "error on\nline 2",
			expected: "error on\nline 2",
		},
		{
			name:     "message with null bytes",
			input:    "error\x00with\x00nulls",
			expected: "errorwithnulls",
		},
		{
			name:     "invalid utf8",
			input:    "bad\xffbytes",
			expected: "badbytes",
		},
		{
			name:     "empty message",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeErrorMessage(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSanitizeErrorMessage_Truncation(t *testing.T) {
	longMessage := strings.Repeat("a", 5000)
	result := SanitizeErrorMessage(longMessage)

	assert.LessOrEqual(t, len(result), MaxErrorMessageLength)
	assert.True(t, strings.HasSuffix(result, "..."))
}

func TestClampConcurrency(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{-1, 1},
		{0, 1},
		{1, 1},
		{10, 10},
		{1000, 1000},
		{1001, 1000},
	}

	for _, tt := range tests {
		result := ClampConcurrency(tt.input)
		assert.Equal(t, tt.expected, result, "ClampConcurrency(%d)", tt.input)
	}
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, 50, ClampPageSize(0))
	assert.Equal(t, 50, ClampPageSize(-3))
	assert.Equal(t, 10, ClampPageSize(10))
	assert.Equal(t, MaxPageSize, ClampPageSize(MaxPageSize+1))
}

func TestConstants(t *testing.T) {
	assert.Equal(t, 256<<10, MaxInputSize)
	assert.Equal(t, 1<<20, MaxSourceSize) // 1MB
	assert.Equal(t, 1000, MaxConcurrency)
	assert.Equal(t, 4096, MaxErrorMessageLength)
}
