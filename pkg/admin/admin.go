// Package admin holds the owner-gated oracle configuration.
//
// Every setter checks the caller against the recorded owner before touching
// state, rejects zero values, and writes the change together with its
// notification. Bootstrap seeds the configuration once.
package admin

import (
	"context"
	"log/slog"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/ledger"
	"github.com/jdziat/agent-escrow/pkg/security"
)

// Defaults are the initial oracle settings written by Bootstrap.
type Defaults struct {
	Router           string
	SubscriptionID   uint64
	CallbackGasLimit uint32
	NetworkID        string
}

// Admin changes the escrow's oracle configuration.
type Admin struct {
	ledger *ledger.Ledger
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Admin over l.
func New(l *ledger.Ledger) *Admin {
	return &Admin{ledger: l, logger: l.Logger(), now: time.Now}
}

// Bootstrap records owner and the initial settings. It fails with
// ErrAlreadyBootstrapped once settings exist.
func (a *Admin) Bootstrap(ctx context.Context, owner common.Address, d Defaults) (*core.Settings, error) {
	if owner == (common.Address{}) {
		return nil, errorsmod.Wrap(core.ErrInvalidSetting, "owner is the zero address")
	}
	router, err := security.NormalizeAddress(d.Router)
	if err != nil {
		return nil, errorsmod.Wrap(core.ErrInvalidSetting, err.Error())
	}
	if d.SubscriptionID == 0 || d.CallbackGasLimit == 0 || d.NetworkID == "" {
		return nil, errorsmod.Wrap(core.ErrInvalidSetting, "subscription, gas limit and network are required")
	}

	st := &core.Settings{
		Owner:            owner.Hex(),
		Router:           router,
		SubscriptionID:   d.SubscriptionID,
		CallbackGasLimit: d.CallbackGasLimit,
		NetworkID:        d.NetworkID,
	}
	if err := a.ledger.Storage().InitSettings(ctx, st); err != nil {
		return nil, err
	}
	a.logger.Info("settings bootstrapped", "owner", st.Owner, "router", st.Router, "network_id", st.NetworkID)
	return st, nil
}

// Settings returns the current configuration. Anyone may read it.
func (a *Admin) Settings(ctx context.Context) (*core.Settings, error) {
	return a.ledger.Storage().GetSettings(ctx)
}

// SetRouter replaces the trusted oracle router.
func (a *Admin) SetRouter(ctx context.Context, caller, router common.Address) (*core.Settings, error) {
	if router == (common.Address{}) {
		return nil, errorsmod.Wrap(core.ErrInvalidSetting, "router is the zero address")
	}
	return a.update(ctx, caller, func(st *core.Settings) core.Event {
		ev := &core.RouterUpdated{Old: st.Router, New: router.Hex(), Timestamp: a.now()}
		st.Router = ev.New
		return ev
	})
}

// SetSubscriptionID replaces the oracle billing subscription.
func (a *Admin) SetSubscriptionID(ctx context.Context, caller common.Address, id uint64) (*core.Settings, error) {
	if id == 0 {
		return nil, errorsmod.Wrap(core.ErrInvalidSetting, "subscription id is zero")
	}
	return a.update(ctx, caller, func(st *core.Settings) core.Event {
		ev := &core.SubscriptionUpdated{Old: st.SubscriptionID, New: id, Timestamp: a.now()}
		st.SubscriptionID = id
		return ev
	})
}

// SetCallbackGasLimit replaces the gas budget for oracle callbacks.
func (a *Admin) SetCallbackGasLimit(ctx context.Context, caller common.Address, limit uint32) (*core.Settings, error) {
	if limit == 0 {
		return nil, errorsmod.Wrap(core.ErrInvalidSetting, "callback gas limit is zero")
	}
	return a.update(ctx, caller, func(st *core.Settings) core.Event {
		ev := &core.GasLimitUpdated{Old: st.CallbackGasLimit, New: limit, Timestamp: a.now()}
		st.CallbackGasLimit = limit
		return ev
	})
}

// SetNetworkID replaces the oracle network identifier.
func (a *Admin) SetNetworkID(ctx context.Context, caller common.Address, network string) (*core.Settings, error) {
	if network == "" {
		return nil, errorsmod.Wrap(core.ErrInvalidSetting, "network id is empty")
	}
	return a.update(ctx, caller, func(st *core.Settings) core.Event {
		ev := &core.NetworkUpdated{Old: st.NetworkID, New: network, Timestamp: a.now()}
		st.NetworkID = network
		return ev
	})
}

// TransferOwnership hands the admin role to owner.
func (a *Admin) TransferOwnership(ctx context.Context, caller, owner common.Address) (*core.Settings, error) {
	if owner == (common.Address{}) {
		return nil, errorsmod.Wrap(core.ErrInvalidSetting, "owner is the zero address")
	}
	return a.update(ctx, caller, func(st *core.Settings) core.Event {
		ev := &core.OwnerUpdated{Old: st.Owner, New: owner.Hex(), Timestamp: a.now()}
		st.Owner = ev.New
		return ev
	})
}

// update checks ownership inside the settings transaction, so a concurrent
// ownership transfer cannot slip between the check and the write.
func (a *Admin) update(ctx context.Context, caller common.Address, apply func(*core.Settings) core.Event) (*core.Settings, error) {
	st, ev, err := a.ledger.Storage().UpdateSettings(ctx, func(st *core.Settings) (core.Event, error) {
		if !security.SameAddress(st.Owner, caller) {
			return nil, errorsmod.Wrapf(core.ErrNotOwner, "caller %s", caller.Hex())
		}
		return apply(st), nil
	})
	if err != nil {
		if errorsmod.IsOf(err, core.ErrNotOwner) {
			a.logger.Warn("rejected settings change", "caller", caller.Hex())
		}
		return nil, err
	}

	a.logger.Info("settings updated", "kind", ev.Kind(), "caller", caller.Hex())
	a.ledger.Emit(ev)
	return st, nil
}
