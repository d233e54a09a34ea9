package api

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"io"
	"net/http"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/security"
)

// Signature envelope headers.
const (
	SignatureHeader = security.SignatureHeader
	TimestampHeader = security.TimestampHeader
	NonceHeader     = security.NonceHeader
)

const defaultSignatureWindow = 5 * time.Minute

type signedHandler func(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte)

// signed authenticates the request and passes the recovered caller on. The
// signature must cover this method and path, carry a timestamp inside the
// window and a nonce the caller has not used before.
func (s *server) signed(next signedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, errorsmod.Wrapf(core.ErrPayloadTooLarge, "body exceeds %d bytes", tooLarge.Limit))
				return
			}
			writeErrorStatus(w, http.StatusBadRequest, "unreadable body")
			return
		}

		msg, sig, err := security.ParseHTTPRequest(r, body)
		if err != nil {
			writeError(w, err)
			return
		}
		now := s.config.clock()
		if err := security.CheckTimestamp(msg.Timestamp, now, s.config.window); err != nil {
			writeError(w, err)
			return
		}
		caller, err := security.RecoverSigner(msg, sig)
		if err != nil {
			writeError(w, err)
			return
		}

		// Entries older than twice the window can no longer pass the
		// timestamp check, so they are pruned on the way.
		err = s.ledger.Storage().ConsumeNonce(r.Context(), caller.Hex(), msg.Nonce, now, now.Add(-2*s.config.window))
		if err != nil {
			if !errors.Is(err, core.ErrNonceReused) {
				s.logger.Error("failed to record request nonce", "signer", caller.Hex(), "error", err)
			}
			writeError(w, err)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next(w, r, caller, body)
	})
}

// SignRequest signs r with key as sent now and sets the signature envelope
// headers. The caller must have set r's body to the same bytes.
func SignRequest(r *http.Request, key *ecdsa.PrivateKey, body []byte) error {
	return security.SignHTTPRequest(r, key, body, time.Now())
}
