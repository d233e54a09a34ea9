package security

import (
	"crypto/ecdsa"
	"net/http"
	"strconv"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/jdziat/agent-escrow/pkg/core"
)

// SignHTTPRequest signs r as sent at the given time and sets the signature
// envelope headers. body must be the bytes r will send.
func SignHTTPRequest(r *http.Request, key *ecdsa.PrivateKey, body []byte, at time.Time) error {
	m := Message{
		Method:    r.Method,
		Path:      r.URL.RequestURI(),
		Timestamp: at.Unix(),
		Nonce:     NewNonce(),
		Body:      body,
	}
	sig, err := Sign(key, m)
	if err != nil {
		return err
	}
	r.Header.Set(SignatureHeader, hexutil.Encode(sig))
	r.Header.Set(TimestampHeader, strconv.FormatInt(m.Timestamp, 10))
	r.Header.Set(NonceHeader, m.Nonce)
	return nil
}

// ParseHTTPRequest reads the signature envelope of r, whose body was body.
// It checks the headers are well formed but does not verify freshness.
func ParseHTTPRequest(r *http.Request, body []byte) (Message, []byte, error) {
	header := r.Header.Get(SignatureHeader)
	if header == "" {
		return Message{}, nil, errorsmod.Wrap(core.ErrInvalidSignature, "missing "+SignatureHeader)
	}
	sig, err := hexutil.Decode(header)
	if err != nil {
		return Message{}, nil, errorsmod.Wrap(core.ErrInvalidSignature, "signature is not 0x-prefixed hex")
	}

	ts, err := strconv.ParseInt(r.Header.Get(TimestampHeader), 10, 64)
	if err != nil {
		return Message{}, nil, errorsmod.Wrap(core.ErrStaleRequest, "missing or malformed "+TimestampHeader)
	}
	nonce := r.Header.Get(NonceHeader)
	if err := ValidateNonce(nonce); err != nil {
		return Message{}, nil, err
	}

	return Message{
		Method:    r.Method,
		Path:      r.URL.RequestURI(),
		Timestamp: ts,
		Nonce:     nonce,
		Body:      body,
	}, sig, nil
}
