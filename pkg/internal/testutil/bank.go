package testutil

import (
	"context"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/jdziat/agent-escrow/pkg/core"
)

// PayerFunds is the balance NewEnv deposits for the payer.
var PayerFunds = core.NewAmount(1_000_000)

// Bank is an in-memory core.Bank. Collected funds are held on the bank
// itself and paid out by Transfer.
type Bank struct {
	mu       sync.Mutex
	balances map[common.Address]core.Amount
	held     core.Amount
	refs     map[string]bool
}

var _ core.Bank = (*Bank)(nil)

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances: make(map[common.Address]core.Amount),
		held:     core.ZeroAmount(),
		refs:     make(map[string]bool),
	}
}

// Deposit credits amount to addr.
func (b *Bank) Deposit(addr common.Address, amount core.Amount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] = core.Amount{Int: b.balanceLocked(addr).Add(amount.Int)}
}

// Collect moves amount from from into the held pool.
func (b *Bank) Collect(_ context.Context, ref string, from common.Address, amount core.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refs[ref] {
		return nil
	}
	bal := b.balanceLocked(from)
	if bal.LT(amount.Int) {
		return errorsmod.Wrapf(core.ErrInsufficientFunds, "account %s holds %s", from.Hex(), bal)
	}
	b.balances[from] = core.Amount{Int: bal.Sub(amount.Int)}
	b.held = core.Amount{Int: b.held.Add(amount.Int)}
	b.refs[ref] = true
	return nil
}

// Transfer pays amount out of the held pool to to.
func (b *Bank) Transfer(_ context.Context, ref string, to common.Address, amount core.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refs[ref] {
		return nil
	}
	if b.held.LT(amount.Int) {
		return errorsmod.Wrapf(core.ErrInsufficientFunds, "bank holds %s", b.held)
	}
	b.held = core.Amount{Int: b.held.Sub(amount.Int)}
	b.balances[to] = core.Amount{Int: b.balanceLocked(to).Add(amount.Int)}
	b.refs[ref] = true
	return nil
}

// Balance returns the balance of addr.
func (b *Bank) Balance(addr common.Address) core.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balanceLocked(addr)
}

// Held returns the funds collected and not yet paid out.
func (b *Bank) Held() core.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.held
}

func (b *Bank) balanceLocked(addr common.Address) core.Amount {
	if bal, ok := b.balances[addr]; ok {
		return bal
	}
	return core.ZeroAmount()
}
