package core

import (
	errorsmod "cosmossdk.io/errors"
)

// Codespace groups the escrow's registered errors.
const Codespace = "escrow"

// Validation errors
var (
	ErrProviderNotFound = errorsmod.Register(Codespace, 2, "provider not found")
	ErrProviderInactive = errorsmod.Register(Codespace, 3, "provider is not active")
	ErrAmountMismatch   = errorsmod.Register(Codespace, 4, "supplied funds do not match provider price")
	ErrEmptyInput       = errorsmod.Register(Codespace, 5, "input payload is empty")
	ErrEmptySource      = errorsmod.Register(Codespace, 6, "compute source is empty")
	ErrPayloadTooLarge  = errorsmod.Register(Codespace, 7, "payload exceeds size limit")
	ErrInvalidAddress   = errorsmod.Register(Codespace, 8, "invalid address")
	ErrTooManyArgs      = errorsmod.Register(Codespace, 9, "too many extra arguments")
	ErrInvalidNonce     = errorsmod.Register(Codespace, 10, "invalid request nonce")
	ErrInvalidAmount    = errorsmod.Register(Codespace, 11, "invalid amount")
)

// Lifecycle errors
var (
	ErrJobNotFound        = errorsmod.Register(Codespace, 20, "job not found")
	ErrUnknownRequest     = errorsmod.Register(Codespace, 21, "unknown request handle")
	ErrAlreadyResolved    = errorsmod.Register(Codespace, 22, "job already resolved")
	ErrUnauthorizedCaller = errorsmod.Register(Codespace, 23, "caller is not the trusted oracle router")
	ErrDispatchFailed     = errorsmod.Register(Codespace, 24, "oracle request submission failed")
	ErrSequenceConflict   = errorsmod.Register(Codespace, 25, "job id allocation raced with another writer")
	ErrDuplicateRequest   = errorsmod.Register(Codespace, 26, "request handle already recorded")
)

// Settlement errors
var (
	ErrTransferNotFound  = errorsmod.Register(Codespace, 40, "transfer not found")
	ErrTransferNotOwned  = errorsmod.Register(Codespace, 41, "transfer is locked by another settler")
	ErrTransferRejected  = errorsmod.Register(Codespace, 42, "recipient rejected the transfer")
	ErrInsufficientFunds = errorsmod.Register(Codespace, 43, "insufficient funds")
)

// Admin errors
var (
	ErrNotOwner            = errorsmod.Register(Codespace, 60, "caller is not the owner")
	ErrInvalidSetting      = errorsmod.Register(Codespace, 61, "invalid setting value")
	ErrNotBootstrapped     = errorsmod.Register(Codespace, 62, "settings have not been bootstrapped")
	ErrAlreadyBootstrapped = errorsmod.Register(Codespace, 63, "settings already bootstrapped")
	ErrInvalidSignature    = errorsmod.Register(Codespace, 64, "invalid signature")
	ErrStaleRequest        = errorsmod.Register(Codespace, 65, "request timestamp outside the accepted window")
	ErrNonceReused         = errorsmod.Register(Codespace, 66, "request nonce already used")
)

// DecodingFailedReason is recorded when an oracle response cannot be decoded.
const DecodingFailedReason = "decoding failed"

// ExecutionFailedReason is recorded when the oracle reports an error whose
// text is empty after sanitising.
const ExecutionFailedReason = "execution failed"

// ExpiredReason is recorded when a pending job outlives the request timeout.
const ExpiredReason = "request timed out"
