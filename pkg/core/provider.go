package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Provider is a registered agent as seen by the escrow. The escrow only reads
// providers; registration and pricing live in the directory.
type Provider struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name          string `gorm:"size:255" json:"name"`
	PayoutAddress string `gorm:"size:42;not null" json:"payout_address"`
	Endpoint      string `gorm:"type:text" json:"endpoint"`
	Price         Amount `gorm:"size:78;not null" json:"price"`
	Active        bool   `gorm:"not null" json:"active"`
}

// Payout returns the payout address.
func (p *Provider) Payout() common.Address {
	return common.HexToAddress(p.PayoutAddress)
}

// Directory is the source of truth for provider identity, price and endpoint.
type Directory interface {
	// GetProvider returns ErrProviderNotFound when id is unknown.
	GetProvider(ctx context.Context, id uint64) (*Provider, error)
}

// OracleRequest is a computation request as submitted to the oracle network.
type OracleRequest struct {
	Source           string   `json:"source"`
	Secrets          []byte   `json:"secrets,omitempty"`
	Args             []string `json:"args"`
	SubscriptionID   uint64   `json:"subscription_id"`
	CallbackGasLimit uint32   `json:"callback_gas_limit"`
	NetworkID        string   `json:"network_id"`
}

// Oracle submits computation requests. Submit returns once the network has
// acknowledged the request; the result arrives later through a callback.
type Oracle interface {
	Submit(ctx context.Context, req OracleRequest) (string, error)
}

// Bank holds the escrow's funds. Implementations must treat ref as an
// idempotency key: a repeated call with the same ref moves funds at most once.
type Bank interface {
	// Collect moves amount from the payer into escrow. It fails with
	// ErrInsufficientFunds when from cannot cover amount.
	Collect(ctx context.Context, ref string, from common.Address, amount Amount) error
	// Transfer releases amount from escrow to to.
	Transfer(ctx context.Context, ref string, to common.Address, amount Amount) error
}
