package escrow_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	escrow "github.com/jdziat/agent-escrow"
	"github.com/jdziat/agent-escrow/pkg/oracle"
	"github.com/jdziat/agent-escrow/pkg/security"
	"github.com/jdziat/agent-escrow/pkg/storage"
)

const payout = "0x00000000000000000000000000000000000000B7"

func setup(t *testing.T) (*escrow.Escrow, *oracle.Simulator, *escrow.BookBank) {
	t.Helper()
	ctx := context.Background()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "escrow.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, storage.ConfigurePool(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store := escrow.NewGormStorage(db)
	bank := escrow.NewBookBank(db)
	dir := escrow.NewDirectory(db)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, bank.Migrate(ctx))
	require.NoError(t, dir.Migrate(ctx))

	require.NoError(t, dir.Put(ctx, &escrow.Provider{
		ID:            1,
		Name:          "translator",
		PayoutAddress: payout,
		Price:         escrow.NewAmount(250),
		Active:        true,
	}))

	routerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	sim := oracle.NewSimulator(routerKey)

	e := escrow.New(store, dir, sim, bank)
	sim.SetCallback(e.Resolver.Callback)

	ownerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = e.Admin.Bootstrap(ctx, security.Address(ownerKey), escrow.Defaults{
		Router:           sim.Router().Hex(),
		SubscriptionID:   7,
		CallbackGasLimit: 300000,
		NetworkID:        "fun-test-1",
	})
	require.NoError(t, err)
	return e, sim, bank
}

func fundedPayer(t *testing.T, bank *escrow.BookBank, amount int64) common.Address {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	payer := security.Address(key)
	require.NoError(t, bank.Deposit(context.Background(), "deposit-"+payer.Hex(), payer, escrow.NewAmount(amount)))
	return payer
}

func balance(t *testing.T, bank *escrow.BookBank, addr common.Address) string {
	t.Helper()
	bal, err := bank.Balance(context.Background(), addr)
	require.NoError(t, err)
	return bal.String()
}

func TestEscrow_FulfilledJobPaysProvider(t *testing.T) {
	ctx := context.Background()
	e, sim, bank := setup(t)
	payer := fundedPayer(t, bank, 1000)

	job, err := e.Ledger.CreateJob(ctx, escrow.CreateJobRequest{
		ProviderID: 1,
		Payer:      payer.Hex(),
		Input:      []byte("translate: hello"),
		Source:     "return Functions.encodeString('hola')",
		Funds:      escrow.NewAmount(250),
	})
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusPending, job.Status)
	assert.Equal(t, "750", balance(t, bank, payer))
	assert.Equal(t, "250", balance(t, bank, escrow.EscrowAccount))

	require.NoError(t, sim.Fulfill(ctx, job.RequestHandle, "hola"))

	got, err := e.Ledger.LookupJob(ctx, job.RequestHandle)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusFulfilled, got.Status)
	assert.Equal(t, "250", balance(t, bank, common.HexToAddress(payout)))
	assert.Equal(t, "0", balance(t, bank, escrow.EscrowAccount))

	_, err = e.Resolver.Resolve(ctx, sim.Router(), job.RequestHandle, nil, []byte("late"))
	assert.ErrorIs(t, err, escrow.ErrAlreadyResolved)
}

func TestEscrow_FailedJobRefundsPayer(t *testing.T) {
	ctx := context.Background()
	e, sim, bank := setup(t)
	payer := fundedPayer(t, bank, 1000)

	job, err := e.Ledger.CreateJob(ctx, escrow.CreateJobRequest{
		ProviderID: 1,
		Payer:      payer.Hex(),
		Input:      []byte("translate: hello"),
		Source:     "return 1",
		Funds:      escrow.NewAmount(250),
	})
	require.NoError(t, err)
	assert.Equal(t, "750", balance(t, bank, payer))

	require.NoError(t, sim.Reject(ctx, job.RequestHandle, "provider offline"))
	assert.Equal(t, "1000", balance(t, bank, payer))
	assert.Equal(t, "0", balance(t, bank, common.HexToAddress(payout)))
}

func TestEscrow_RejectsUnfundedPayer(t *testing.T) {
	e, _, bank := setup(t)
	payer := fundedPayer(t, bank, 100)

	_, err := e.Ledger.CreateJob(context.Background(), escrow.CreateJobRequest{
		ProviderID: 1,
		Payer:      payer.Hex(),
		Input:      []byte("translate: hello"),
		Source:     "return 1",
		Funds:      escrow.NewAmount(250),
	})
	assert.ErrorIs(t, err, escrow.ErrInsufficientFunds)
	assert.Equal(t, "100", balance(t, bank, payer))
}

func TestEscrow_RejectsMismatchedFunds(t *testing.T) {
	e, _, bank := setup(t)
	payer := fundedPayer(t, bank, 1000)

	_, err := e.Ledger.CreateJob(context.Background(), escrow.CreateJobRequest{
		ProviderID: 1,
		Payer:      payer.Hex(),
		Input:      []byte("translate: hello"),
		Source:     "return 1",
		Funds:      escrow.NewAmount(100),
	})
	assert.ErrorIs(t, err, escrow.ErrAmountMismatch)
	assert.Equal(t, "1000", balance(t, bank, payer))
}

func TestParseAmount(t *testing.T) {
	a, err := escrow.ParseAmount("1000")
	require.NoError(t, err)
	assert.True(t, a.Equals(escrow.NewAmount(1000)))

	_, err = escrow.ParseAmount("-1")
	assert.Error(t, err)
}
