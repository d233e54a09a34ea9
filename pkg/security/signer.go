package security

import (
	"crypto/ecdsa"
	"regexp"
	"strconv"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/jdziat/agent-escrow/pkg/core"
)

// Headers carrying a request's signature envelope.
const (
	SignatureHeader = "X-Escrow-Signature"
	TimestampHeader = "X-Escrow-Timestamp"
	NonceHeader     = "X-Escrow-Nonce"
)

// SignatureLength is the size of a recoverable secp256k1 signature.
const SignatureLength = crypto.SignatureLength

var noncePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// Message is what a caller signs to authenticate one HTTP request.
type Message struct {
	Method string
	// Path is the request URI including the query string.
	Path string
	// Timestamp is in Unix seconds.
	Timestamp int64
	Nonce     string
	Body      []byte
}

// Digest returns the hash a caller signs:
// keccak256(METHOD \n path \n timestamp \n nonce \n keccak256(body)).
func (m Message) Digest() []byte {
	sep := []byte{'\n'}
	return crypto.Keccak256(
		[]byte(strings.ToUpper(m.Method)), sep,
		[]byte(m.Path), sep,
		[]byte(strconv.FormatInt(m.Timestamp, 10)), sep,
		[]byte(m.Nonce), sep,
		crypto.Keccak256(m.Body),
	)
}

// Sign signs m with key.
func Sign(key *ecdsa.PrivateKey, m Message) ([]byte, error) {
	return crypto.Sign(m.Digest(), key)
}

// RecoverSigner returns the address that produced sig over m.
func RecoverSigner(m Message, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, errorsmod.Wrapf(core.ErrInvalidSignature, "length %d", len(sig))
	}
	pub, err := crypto.SigToPub(m.Digest(), sig)
	if err != nil {
		return common.Address{}, errorsmod.Wrap(core.ErrInvalidSignature, err.Error())
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// NewNonce returns a fresh request nonce.
func NewNonce() string {
	return uuid.NewString()
}

// ValidateNonce checks that n is 8 to 64 URL-safe characters.
func ValidateNonce(n string) error {
	if !noncePattern.MatchString(n) {
		return errorsmod.Wrap(core.ErrInvalidNonce, "want 8-64 characters of [A-Za-z0-9_-]")
	}
	return nil
}

// CheckTimestamp rejects a Unix timestamp further than window from now in
// either direction.
func CheckTimestamp(ts int64, now time.Time, window time.Duration) error {
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > window {
		return errorsmod.Wrapf(core.ErrStaleRequest, "timestamp %d is %s from server time", ts, skew.Truncate(time.Second))
	}
	return nil
}

// Address returns the address controlled by key.
func Address(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// SameAddress compares a hex address string with an address.
func SameAddress(s string, addr common.Address) bool {
	return common.IsHexAddress(s) && common.HexToAddress(s) == addr
}
