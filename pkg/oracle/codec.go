package oracle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var outputArgs = mustStringArguments()

func mustStringArguments() abi.Arguments {
	t, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}

// EncodeOutput ABI-encodes a result string.
func EncodeOutput(s string) ([]byte, error) {
	return outputArgs.Pack(s)
}

// DecodeOutput decodes an ABI-encoded result string.
func DecodeOutput(data []byte) (out string, err error) {
	if len(data) == 0 {
		return "", errors.New("empty response")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed response: %v", r)
		}
	}()

	values, err := outputArgs.Unpack(data)
	if err != nil {
		return "", err
	}
	if len(values) != 1 {
		return "", fmt.Errorf("expected 1 value, got %d", len(values))
	}
	s, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", values[0])
	}
	return s, nil
}

// NewHandle derives a request handle from arbitrary parts.
func NewHandle(parts ...[]byte) string {
	return hexutil.Encode(crypto.Keccak256(parts...))
}
