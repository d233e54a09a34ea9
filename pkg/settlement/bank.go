package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/agent-escrow/pkg/core"
)

// EscrowAccount holds every collected job price until it is paid out or
// refunded.
var EscrowAccount = common.HexToAddress("0x000000000000000000000000000000000000e5c0")

// errBalanceMoved is returned when a concurrent booking changed an account
// between the read and the guarded write.
var errBalanceMoved = errors.New("settlement: balance changed concurrently")

// Account is a balance held by the bank.
type Account struct {
	Address   string      `gorm:"primaryKey;size:42"`
	Balance   core.Amount `gorm:"size:78;not null"`
	Frozen    bool        `gorm:"not null"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime"`
}

// LedgerEntry records one booking. Ref is the caller's idempotency key. From
// is empty for deposits.
type LedgerEntry struct {
	Ref       string      `gorm:"primaryKey;size:80"`
	From      string      `gorm:"index;size:42"`
	Address   string      `gorm:"index;size:42;not null"`
	Amount    core.Amount `gorm:"size:78;not null"`
	CreatedAt time.Time   `gorm:"autoCreateTime"`
}

// BookBank is a core.Bank that keeps double-entry balances in a database.
// Collected funds sit on EscrowAccount; transfers are paid out of it.
type BookBank struct {
	db *gorm.DB
}

var _ core.Bank = (*BookBank)(nil)

// NewBookBank creates a bank on db.
func NewBookBank(db *gorm.DB) *BookBank {
	return &BookBank{db: db}
}

// Migrate creates the accounts and ledger_entries tables.
func (b *BookBank) Migrate(ctx context.Context) error {
	return b.db.WithContext(ctx).AutoMigrate(&Account{}, &LedgerEntry{})
}

// Deposit credits amount to to from outside the bank.
func (b *BookBank) Deposit(ctx context.Context, ref string, to common.Address, amount core.Amount) error {
	return b.book(ctx, ref, nil, to, amount)
}

// Collect moves amount from the payer into the escrow account. It fails with
// ErrInsufficientFunds when the payer cannot cover it. A repeated ref is
// ignored.
func (b *BookBank) Collect(ctx context.Context, ref string, from common.Address, amount core.Amount) error {
	return b.book(ctx, ref, &from, EscrowAccount, amount)
}

// Transfer pays amount out of the escrow account to to. A repeated ref is
// ignored. Frozen accounts refuse credits with ErrTransferRejected.
func (b *BookBank) Transfer(ctx context.Context, ref string, to common.Address, amount core.Amount) error {
	escrow := EscrowAccount
	return b.book(ctx, ref, &escrow, to, amount)
}

func (b *BookBank) book(ctx context.Context, ref string, from *common.Address, to common.Address, amount core.Amount) error {
	if !amount.IsSet() || amount.IsNegative() {
		return errorsmod.Wrapf(core.ErrInvalidAmount, "booking %s", ref)
	}
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing LedgerEntry
		err := tx.First(&existing, "ref = ?", ref).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		entry := LedgerEntry{Ref: ref, Address: to.Hex(), Amount: amount}
		if from != nil {
			entry.From = from.Hex()
			src, err := loadAccount(tx, entry.From)
			if err != nil {
				return err
			}
			if src.Balance.LT(amount.Int) {
				return errorsmod.Wrapf(core.ErrInsufficientFunds,
					"account %s holds %s, needs %s", entry.From, src.Balance, amount)
			}
			if err := setBalance(tx, src, core.Amount{Int: src.Balance.Sub(amount.Int)}); err != nil {
				return err
			}
		}

		dst, err := loadAccount(tx, entry.Address)
		if err != nil {
			return err
		}
		if dst.Frozen {
			return errorsmod.Wrapf(core.ErrTransferRejected, "account %s is frozen", entry.Address)
		}
		if err := setBalance(tx, dst, core.Amount{Int: dst.Balance.Add(amount.Int)}); err != nil {
			return err
		}
		return tx.Create(&entry).Error
	})
}

func loadAccount(tx *gorm.DB, addr string) (Account, error) {
	acct := Account{Address: addr, Balance: core.ZeroAmount()}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&acct).Error; err != nil {
		return Account{}, err
	}
	if err := tx.First(&acct, "address = ?", addr).Error; err != nil {
		return Account{}, err
	}
	if !acct.Balance.IsSet() {
		acct.Balance = core.ZeroAmount()
	}
	return acct, nil
}

// setBalance writes next only if the row still holds the balance acct was
// read with.
func setBalance(tx *gorm.DB, acct Account, next core.Amount) error {
	res := tx.Model(&Account{}).
		Where("address = ? AND balance = ?", acct.Address, acct.Balance).
		Update("balance", next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: %s", errBalanceMoved, acct.Address)
	}
	return nil
}

// Balance returns the balance of addr, zero for unknown accounts.
func (b *BookBank) Balance(ctx context.Context, addr common.Address) (core.Amount, error) {
	var acct Account
	err := b.db.WithContext(ctx).First(&acct, "address = ?", addr.Hex()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.ZeroAmount(), nil
	}
	if err != nil {
		return core.Amount{}, err
	}
	if !acct.Balance.IsSet() {
		return core.ZeroAmount(), nil
	}
	return acct.Balance, nil
}

// SetFrozen marks addr as unable to receive funds, or lifts the mark.
func (b *BookBank) SetFrozen(ctx context.Context, addr common.Address, frozen bool) error {
	acct := Account{Address: addr.Hex(), Balance: core.ZeroAmount(), Frozen: frozen}
	return b.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoUpdates: clause.AssignmentColumns([]string{"frozen", "updated_at"}),
		}).
		Create(&acct).Error
}

// Entries returns how many bookings exist for ref, zero or one.
func (b *BookBank) Entries(ctx context.Context, ref string) (int64, error) {
	var n int64
	err := b.db.WithContext(ctx).Model(&LedgerEntry{}).Where("ref = ?", ref).Count(&n).Error
	return n, err
}
