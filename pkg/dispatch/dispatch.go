// Package dispatch builds oracle requests and submits them on behalf of the
// ledger.
package dispatch

import (
	"context"
	"log/slog"

	errorsmod "cosmossdk.io/errors"

	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/security"
)

// SettingsReader is the part of core.Storage the dispatcher needs.
type SettingsReader interface {
	GetSettings(ctx context.Context) (*core.Settings, error)
}

// Request is the caller-supplied part of an oracle request.
type Request struct {
	Source  string
	Secrets []byte
	Args    []string
}

// Dispatcher submits computation requests using the current admin settings.
type Dispatcher struct {
	settings SettingsReader
	oracle   core.Oracle
	logger   *slog.Logger
}

// New creates a dispatcher.
func New(settings SettingsReader, oracle core.Oracle, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{settings: settings, oracle: oracle, logger: logger}
}

// BuildArgs returns the oracle argument list: the provider endpoint, the job
// input, then any extra arguments in order.
func BuildArgs(endpoint string, input []byte, extra []string) []string {
	args := make([]string, 0, 2+len(extra))
	args = append(args, endpoint, string(input))
	return append(args, extra...)
}

// Submit sends req to the oracle and returns the request handle. It only
// waits for the network to acknowledge the request.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (string, error) {
	st, err := d.settings.GetSettings(ctx)
	if err != nil {
		return "", err
	}

	handle, err := d.oracle.Submit(ctx, core.OracleRequest{
		Source:           req.Source,
		Secrets:          req.Secrets,
		Args:             req.Args,
		SubscriptionID:   st.SubscriptionID,
		CallbackGasLimit: st.CallbackGasLimit,
		NetworkID:        st.NetworkID,
	})
	if err != nil {
		d.logger.Warn("oracle submission failed", "error", err)
		return "", errorsmod.Wrap(core.ErrDispatchFailed, err.Error())
	}
	if err := security.ValidateRequestHandle(handle); err != nil {
		return "", errorsmod.Wrapf(core.ErrDispatchFailed, "oracle returned malformed handle %q", handle)
	}

	d.logger.Debug("oracle request submitted",
		"request_handle", handle,
		"subscription_id", st.SubscriptionID,
		"network_id", st.NetworkID)
	return handle, nil
}
