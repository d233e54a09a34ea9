package core

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SettingsID is the primary key of the singleton settings row.
const SettingsID = 1

// Settings holds the owner-gated oracle configuration.
type Settings struct {
	ID               uint      `gorm:"primaryKey;autoIncrement:false" json:"-"`
	Owner            string    `gorm:"size:42;not null" json:"owner"`
	Router           string    `gorm:"size:42" json:"router"`
	SubscriptionID   uint64    `json:"subscription_id"`
	CallbackGasLimit uint32    `json:"callback_gas_limit"`
	NetworkID        string    `gorm:"size:66" json:"network_id"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// OwnerAddress returns the owner as an address.
func (s *Settings) OwnerAddress() common.Address {
	return common.HexToAddress(s.Owner)
}

// RouterAddress returns the trusted oracle router as an address.
func (s *Settings) RouterAddress() common.Address {
	return common.HexToAddress(s.Router)
}
