package directory

import (
	"context"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/jdziat/agent-escrow/pkg/core"
)

// Memory is an in-process directory safe for concurrent use.
type Memory struct {
	providers cmap.ConcurrentMap[string, core.Provider]
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{providers: cmap.New[core.Provider]()}
}

// GetProvider implements core.Directory. It returns a copy, so callers
// cannot mutate the directory through the result.
func (m *Memory) GetProvider(_ context.Context, id uint64) (*core.Provider, error) {
	p, ok := m.providers.Get(key(id))
	if !ok {
		return nil, errorsmod.Wrapf(core.ErrProviderNotFound, "provider %d", id)
	}
	return &p, nil
}

// Put inserts or replaces a provider entry.
func (m *Memory) Put(_ context.Context, p *core.Provider) error {
	if err := validate(p); err != nil {
		return err
	}
	m.providers.Set(key(p.ID), *p)
	return nil
}

// SetActive toggles a provider's active flag. It reports whether the
// provider exists.
func (m *Memory) SetActive(id uint64, active bool) bool {
	p, ok := m.providers.Get(key(id))
	if !ok {
		return false
	}
	p.Active = active
	m.providers.Set(key(id), p)
	return true
}

func key(id uint64) string {
	return strconv.FormatUint(id, 10)
}
