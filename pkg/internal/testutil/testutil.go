// Package testutil wires an escrow stack against a throwaway database for
// package tests.
package testutil

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/directory"
	"github.com/jdziat/agent-escrow/pkg/oracle"
	"github.com/jdziat/agent-escrow/pkg/security"
	"github.com/jdziat/agent-escrow/pkg/storage"
)

var dbCounter atomic.Int64

// OpenDB opens a database for tests.
// When TEST_DATABASE_URL is set it connects to PostgreSQL; otherwise it
// opens a private in-memory SQLite database on a single connection.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		db, err := storage.Open(storage.DriverPostgres, dsn, false, storage.MaxOpenConns(4), storage.MaxIdleConns(1))
		require.NoError(t, err, "open postgres test db")

		// Clean before AND after to ensure test isolation.
		cleanup(db)
		t.Cleanup(func() {
			cleanup(db)
			storage.Close(db)
		})
		return db
	}

	n := dbCounter.Add(1)
	name := fmt.Sprintf("file:escrow_test_%d_%d?mode=memory&cache=shared", os.Getpid(), n)
	db, err := storage.Open(storage.DriverSQLite, name, false)
	require.NoError(t, err, "open sqlite test db")
	t.Cleanup(func() { storage.Close(db) })
	return db
}

func cleanup(db *gorm.DB) {
	tables := []string{"request_nonces", "notifications", "transfers", "request_indices", "jobs", "settings", "sequences", "providers", "accounts", "ledger_entries"}
	for _, tbl := range tables {
		db.Exec("DELETE FROM " + tbl)
	}
}

// Env is a migrated store with a seeded directory, a simulated oracle, a
// funded payer and bootstrapped settings.
type Env struct {
	DB        *gorm.DB
	Storage   *storage.GormStorage
	Directory *directory.Memory
	Oracle    *oracle.Simulator
	Bank      *Bank

	OwnerKey  *ecdsa.PrivateKey
	RouterKey *ecdsa.PrivateKey
	PayerKey  *ecdsa.PrivateKey
}

// Provider ids seeded by NewEnv.
const (
	ActiveProvider   uint64 = 1
	InactiveProvider uint64 = 2
)

// ProviderPrice is the price of the seeded providers.
var ProviderPrice = core.NewAmount(1000)

// ProviderPayout is the payout address of ActiveProvider.
const ProviderPayout = "0x00000000000000000000000000000000000000A1"

// NewEnv builds a test environment.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	ctx := context.Background()

	db := OpenDB(t)
	store := storage.NewGormStorage(db)
	require.NoError(t, store.Migrate(ctx), "migrate schema")

	env := &Env{
		DB:        db,
		Storage:   store,
		Directory: directory.NewMemory(),
		OwnerKey:  NewKey(t),
		RouterKey: NewKey(t),
		PayerKey:  NewKey(t),
	}
	env.Oracle = oracle.NewSimulator(env.RouterKey)
	env.Bank = NewBank()
	env.Bank.Deposit(security.Address(env.PayerKey), PayerFunds)

	require.NoError(t, env.Directory.Put(ctx, &core.Provider{
		ID:            ActiveProvider,
		Name:          "summarizer",
		PayoutAddress: ProviderPayout,
		Endpoint:      "https://agents.example/summarize",
		Price:         ProviderPrice,
		Active:        true,
	}))
	require.NoError(t, env.Directory.Put(ctx, &core.Provider{
		ID:            InactiveProvider,
		Name:          "retired",
		PayoutAddress: "0x00000000000000000000000000000000000000A2",
		Endpoint:      "https://agents.example/retired",
		Price:         ProviderPrice,
		Active:        false,
	}))

	require.NoError(t, store.InitSettings(ctx, &core.Settings{
		Owner:            env.Owner(),
		Router:           env.Router(),
		SubscriptionID:   1,
		CallbackGasLimit: 300000,
		NetworkID:        "fun-test-1",
	}))
	return env
}

// Owner returns the settings owner address.
func (e *Env) Owner() string { return security.Address(e.OwnerKey).Hex() }

// Router returns the trusted router address.
func (e *Env) Router() string { return security.Address(e.RouterKey).Hex() }

// Payer returns the payer address.
func (e *Env) Payer() string { return security.Address(e.PayerKey).Hex() }

// NewKey generates a secp256k1 key.
func NewKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}
