// Package oracle binds the escrow to an off-chain computation network.
//
// HTTPClient submits requests to a gateway. Simulator is an in-process
// network for development and tests: it records submitted requests and
// delivers results through a CallbackFunc, either straight into the resolver
// or as signed HTTP callbacks via HTTPCallback.
//
// Results travel as ABI-encoded strings; see EncodeOutput and DecodeOutput.
package oracle
