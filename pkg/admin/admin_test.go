package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/internal/testutil"
	"github.com/jdziat/agent-escrow/pkg/ledger"
	"github.com/jdziat/agent-escrow/pkg/security"
	"github.com/jdziat/agent-escrow/pkg/storage"
)

type AdminTestSuite struct {
	suite.Suite
	env    *testutil.Env
	ledger *ledger.Ledger
	admin  *Admin
	owner  common.Address
}

func (s *AdminTestSuite) SetupTest() {
	s.env = testutil.NewEnv(s.T())
	s.ledger = ledger.New(s.env.Storage, s.env.Directory, s.env.Oracle, s.env.Bank)
	s.admin = New(s.ledger)
	s.owner = security.Address(s.env.OwnerKey)
}

func TestAdminTestSuite(t *testing.T) {
	suite.Run(t, new(AdminTestSuite))
}

func (s *AdminTestSuite) stranger() common.Address {
	return security.Address(testutil.NewKey(s.T()))
}

func (s *AdminTestSuite) notificationKinds() []string {
	list, err := s.env.Storage.ListNotifications(context.Background(), 0, 100)
	s.Require().NoError(err)
	kinds := make([]string, 0, len(list))
	for _, n := range list {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func (s *AdminTestSuite) TestOwnerUpdatesEverySetting() {
	ctx := context.Background()
	router := common.HexToAddress("0x00000000000000000000000000000000000000c3")
	newOwner := s.stranger()

	_, err := s.admin.SetRouter(ctx, s.owner, router)
	s.Require().NoError(err)
	_, err = s.admin.SetSubscriptionID(ctx, s.owner, 42)
	s.Require().NoError(err)
	_, err = s.admin.SetCallbackGasLimit(ctx, s.owner, 500000)
	s.Require().NoError(err)
	_, err = s.admin.SetNetworkID(ctx, s.owner, "fun-mainnet")
	s.Require().NoError(err)
	st, err := s.admin.TransferOwnership(ctx, s.owner, newOwner)
	s.Require().NoError(err)

	s.Equal(router, st.RouterAddress())
	s.Equal(uint64(42), st.SubscriptionID)
	s.Equal(uint32(500000), st.CallbackGasLimit)
	s.Equal("fun-mainnet", st.NetworkID)
	s.Equal(newOwner, st.OwnerAddress())

	s.Equal([]string{
		core.KindRouterUpdated,
		core.KindSubscriptionUpdated,
		core.KindGasLimitUpdated,
		core.KindNetworkUpdated,
		core.KindOwnerUpdated,
	}, s.notificationKinds())
}

func (s *AdminTestSuite) TestNonOwnerChangesNothing() {
	ctx := context.Background()
	stranger := s.stranger()
	before, err := s.admin.Settings(ctx)
	s.Require().NoError(err)

	calls := []func() error{
		func() error { _, err := s.admin.SetRouter(ctx, stranger, stranger); return err },
		func() error { _, err := s.admin.SetSubscriptionID(ctx, stranger, 9); return err },
		func() error { _, err := s.admin.SetCallbackGasLimit(ctx, stranger, 9); return err },
		func() error { _, err := s.admin.SetNetworkID(ctx, stranger, "other"); return err },
		func() error { _, err := s.admin.TransferOwnership(ctx, stranger, stranger); return err },
	}
	for _, call := range calls {
		s.True(errors.Is(call(), core.ErrNotOwner))
	}

	after, err := s.admin.Settings(ctx)
	s.Require().NoError(err)
	s.Equal(before.Owner, after.Owner)
	s.Equal(before.Router, after.Router)
	s.Equal(before.SubscriptionID, after.SubscriptionID)
	s.Equal(before.CallbackGasLimit, after.CallbackGasLimit)
	s.Equal(before.NetworkID, after.NetworkID)
	s.Empty(s.notificationKinds())
}

func (s *AdminTestSuite) TestZeroValuesRejected() {
	ctx := context.Background()

	_, err := s.admin.SetRouter(ctx, s.owner, common.Address{})
	s.True(errors.Is(err, core.ErrInvalidSetting))
	_, err = s.admin.SetSubscriptionID(ctx, s.owner, 0)
	s.True(errors.Is(err, core.ErrInvalidSetting))
	_, err = s.admin.SetCallbackGasLimit(ctx, s.owner, 0)
	s.True(errors.Is(err, core.ErrInvalidSetting))
	_, err = s.admin.SetNetworkID(ctx, s.owner, "")
	s.True(errors.Is(err, core.ErrInvalidSetting))
	_, err = s.admin.TransferOwnership(ctx, s.owner, common.Address{})
	s.True(errors.Is(err, core.ErrInvalidSetting))

	s.Empty(s.notificationKinds())
}

func (s *AdminTestSuite) TestFormerOwnerLosesAccess() {
	ctx := context.Background()
	next := testutil.NewKey(s.T())

	_, err := s.admin.TransferOwnership(ctx, s.owner, security.Address(next))
	s.Require().NoError(err)

	_, err = s.admin.SetSubscriptionID(ctx, s.owner, 7)
	s.True(errors.Is(err, core.ErrNotOwner))
	_, err = s.admin.SetSubscriptionID(ctx, security.Address(next), 7)
	s.NoError(err)
}

func (s *AdminTestSuite) TestRouterChangeIsEmittedWithOldAndNew() {
	ctx := context.Background()
	events := s.ledger.Events()
	defer s.ledger.Unsubscribe(events)
	router := common.HexToAddress("0x00000000000000000000000000000000000000c3")

	_, err := s.admin.SetRouter(ctx, s.owner, router)
	s.Require().NoError(err)

	ev := (<-events).(*core.RouterUpdated)
	s.Equal(common.HexToAddress(s.env.Router()), common.HexToAddress(ev.Old))
	s.Equal(router, common.HexToAddress(ev.New))
}

func (s *AdminTestSuite) TestBootstrapOnce() {
	ctx := context.Background()
	_, err := s.admin.Bootstrap(ctx, s.owner, Defaults{
		Router:           s.env.Router(),
		SubscriptionID:   1,
		CallbackGasLimit: 1,
		NetworkID:        "again",
	})
	s.True(errors.Is(err, core.ErrAlreadyBootstrapped))
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	store := storage.NewGormStorage(testutil.OpenDB(t))
	require.NoError(t, store.Migrate(ctx))
	a := New(ledger.New(store, nil, nil, nil))
	owner := security.Address(testutil.NewKey(t))

	_, err := a.Settings(ctx)
	assert.True(t, errors.Is(err, core.ErrNotBootstrapped))

	_, err = a.Bootstrap(ctx, owner, Defaults{Router: "0x00000000000000000000000000000000000000c3"})
	assert.True(t, errors.Is(err, core.ErrInvalidSetting), "missing defaults")

	_, err = a.Bootstrap(ctx, owner, Defaults{Router: "0x0", SubscriptionID: 1, CallbackGasLimit: 1, NetworkID: "n"})
	assert.True(t, errors.Is(err, core.ErrInvalidSetting), "bad router")

	st, err := a.Bootstrap(ctx, owner, Defaults{
		Router:           "0x00000000000000000000000000000000000000c3",
		SubscriptionID:   3,
		CallbackGasLimit: 300000,
		NetworkID:        "fun-test-1",
	})
	require.NoError(t, err)
	assert.Equal(t, owner, st.OwnerAddress())

	got, err := a.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.SubscriptionID)
}
