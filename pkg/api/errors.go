package api

import (
	"errors"
	"net/http"

	errorsmod "cosmossdk.io/errors"

	"github.com/jdziat/agent-escrow/pkg/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      uint32 `json:"code"`
	Codespace string `json:"codespace"`
}

var statusByError = []struct {
	err    error
	status int
}{
	{core.ErrInvalidSignature, http.StatusUnauthorized},
	{core.ErrStaleRequest, http.StatusUnauthorized},
	{core.ErrInvalidNonce, http.StatusUnauthorized},
	{core.ErrNonceReused, http.StatusConflict},
	{core.ErrUnauthorizedCaller, http.StatusForbidden},
	{core.ErrNotOwner, http.StatusForbidden},
	{core.ErrJobNotFound, http.StatusNotFound},
	{core.ErrUnknownRequest, http.StatusNotFound},
	{core.ErrProviderNotFound, http.StatusNotFound},
	{core.ErrTransferNotFound, http.StatusNotFound},
	{core.ErrAlreadyResolved, http.StatusConflict},
	{core.ErrAlreadyBootstrapped, http.StatusConflict},
	{core.ErrDuplicateRequest, http.StatusConflict},
	{core.ErrTransferNotOwned, http.StatusConflict},
	{core.ErrAmountMismatch, http.StatusPaymentRequired},
	{core.ErrInsufficientFunds, http.StatusPaymentRequired},
	{core.ErrProviderInactive, http.StatusUnprocessableEntity},
	{core.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
	{core.ErrEmptyInput, http.StatusBadRequest},
	{core.ErrEmptySource, http.StatusBadRequest},
	{core.ErrInvalidAddress, http.StatusBadRequest},
	{core.ErrTooManyArgs, http.StatusBadRequest},
	{core.ErrInvalidSetting, http.StatusBadRequest},
	{core.ErrDispatchFailed, http.StatusBadGateway},
	{core.ErrTransferRejected, http.StatusBadGateway},
	{core.ErrNotBootstrapped, http.StatusServiceUnavailable},
}

// statusFor maps a registered escrow error to an HTTP status.
func statusFor(err error) int {
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// writeError reports err with its registered code. Unregistered errors are
// reported as internal without their text.
func writeError(w http.ResponseWriter, err error) {
	codespace, code, log := errorsmod.ABCIInfo(err, false)
	writeJSON(w, statusFor(err), errorResponse{Error: log, Code: code, Codespace: codespace})
}

func writeErrorStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Codespace: core.Codespace})
}
