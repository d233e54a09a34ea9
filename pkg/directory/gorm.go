package directory

import (
	"context"
	"errors"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/security"
)

// Gorm is a directory backed by a providers table.
type Gorm struct {
	db *gorm.DB
}

// NewGorm creates a GORM-backed directory.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// Migrate creates the providers table.
func (d *Gorm) Migrate(ctx context.Context) error {
	return d.db.WithContext(ctx).AutoMigrate(&core.Provider{})
}

// GetProvider implements core.Directory.
func (d *Gorm) GetProvider(ctx context.Context, id uint64) (*core.Provider, error) {
	var p core.Provider
	err := d.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errorsmod.Wrapf(core.ErrProviderNotFound, "provider %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Put inserts or replaces a provider entry.
func (d *Gorm) Put(ctx context.Context, p *core.Provider) error {
	if err := validate(p); err != nil {
		return err
	}
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(p).Error
}

// List returns all providers ordered by id.
func (d *Gorm) List(ctx context.Context) ([]*core.Provider, error) {
	var list []*core.Provider
	err := d.db.WithContext(ctx).Order("id ASC").Find(&list).Error
	return list, err
}

func validate(p *core.Provider) error {
	addr, err := security.NormalizeAddress(p.PayoutAddress)
	if err != nil {
		return fmt.Errorf("provider %d payout address: %w", p.ID, err)
	}
	p.PayoutAddress = addr
	if !p.Price.IsSet() {
		p.Price = core.ZeroAmount()
	}
	return nil
}
