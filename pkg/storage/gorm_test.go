package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/agent-escrow/pkg/core"
)

const (
	testPayer    = "0x1111111111111111111111111111111111111111"
	testProvider = "0x2222222222222222222222222222222222222222"
	testOwner    = "0x3333333333333333333333333333333333333333"
	testRouter   = "0x4444444444444444444444444444444444444444"
)

// newTestStorage creates a migrated storage instance for each test.
func newTestStorage(t *testing.T) *GormStorage {
	t.Helper()
	s := NewGormStorage(openTestDB(t))
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s
}

func testHandle(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

// newTestJob builds a minimal valid pending job.
func newTestJob(n int) *core.Job {
	return &core.Job{
		RequestHandle:  testHandle(n),
		ProviderID:     7,
		Payer:          testPayer,
		EscrowedAmount: core.NewAmount(100),
		Input:          []byte("summarize this"),
	}
}

func createJob(t *testing.T, s *GormStorage, n int) *core.Job {
	t.Helper()
	job := newTestJob(n)
	_, err := s.CreateJob(context.Background(), job)
	require.NoError(t, err)
	return job
}

func resolveFulfilled(t *testing.T, s *GormStorage, job *core.Job) *core.Transfer {
	t.Helper()
	transfer := &core.Transfer{Kind: core.TransferPayout, Recipient: testProvider}
	_, err := s.ResolveJob(context.Background(), core.Resolution{
		RequestHandle: job.RequestHandle,
		Status:        core.StatusFulfilled,
		Output:        "done",
	}, transfer, &core.JobFulfilled{JobID: job.JobID, Output: "done", RequestHandle: job.RequestHandle})
	require.NoError(t, err)
	return transfer
}

// ──────────────────────────────────────────────────────────────────────────────
// Constructor / detection
// ──────────────────────────────────────────────────────────────────────────────

func TestNewGormStorage_NilDB(t *testing.T) {
	s := NewGormStorage(nil)
	assert.False(t, s.IsSQLite(), "nil db should not claim SQLite")
}

func TestMigrate_IsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.Migrate(context.Background()))

	next, err := s.NextJobID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), next)
}

// ──────────────────────────────────────────────────────────────────────────────
// CreateJob
// ──────────────────────────────────────────────────────────────────────────────

func TestCreateJob_AllocatesSequentialIDsFromZero(t *testing.T) {
	s := newTestStorage(t)

	for i := 0; i < 3; i++ {
		job := createJob(t, s, i)
		assert.Equal(t, uint64(i), job.JobID)
		assert.Equal(t, core.StatusPending, job.Status)
	}

	next, err := s.NextJobID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), next)
}

func TestCreateJob_ReturnsCreationEvent(t *testing.T) {
	s := newTestStorage(t)
	job := newTestJob(1)

	ev, err := s.CreateJob(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, job.JobID, ev.JobID)
	assert.Equal(t, uint64(7), ev.ProviderID)
	assert.Equal(t, testPayer, ev.Payer)
	assert.True(t, ev.Amount.Equals(core.NewAmount(100)))
	assert.Equal(t, []byte("summarize this"), ev.Input)
	assert.Equal(t, job.RequestHandle, ev.RequestHandle)
}

func TestCreateJob_RejectsDuplicateHandleWithoutConsumingID(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	createJob(t, s, 1)

	_, err := s.CreateJob(ctx, newTestJob(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDuplicateRequest))

	next, err := s.NextJobID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next, "failed insert must roll back the sequence")
}

func TestCreateJob_ConcurrentWritersGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	const n = 10
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[uint64]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for {
				job := newTestJob(i)
				_, err := s.CreateJob(ctx, job)
				if errors.Is(err, core.ErrSequenceConflict) {
					continue
				}
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				ids[job.JobID] = true
				mu.Unlock()
				return
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, ids, n)
	for i := uint64(0); i < n; i++ {
		assert.True(t, ids[i], "missing id %d", i)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Lookups
// ──────────────────────────────────────────────────────────────────────────────

func TestGetJob_ByHandleAndByID(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	createJob(t, s, 0)
	created := createJob(t, s, 1)

	byHandle, err := s.GetJob(ctx, created.RequestHandle)
	require.NoError(t, err)
	byID, err := s.GetJobByID(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, byHandle.RequestHandle, byID.RequestHandle)
	assert.Equal(t, uint64(1), byID.JobID)
	assert.Equal(t, []byte("summarize this"), byID.Input)
	assert.True(t, byID.EscrowedAmount.Equals(core.NewAmount(100)))
}

func TestGetJob_UnknownReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.GetJob(ctx, testHandle(99))
	assert.True(t, errors.Is(err, core.ErrJobNotFound))

	_, err = s.GetJobByID(ctx, 99)
	assert.True(t, errors.Is(err, core.ErrJobNotFound))
}

func TestListJobs_FiltersAndCounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	for i := 0; i < 4; i++ {
		createJob(t, s, i)
	}
	first, err := s.GetJobByID(ctx, 0)
	require.NoError(t, err)
	resolveFulfilled(t, s, first)

	pending, total, err := s.ListJobs(ctx, core.JobFilter{Status: core.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, pending, 3)
	assert.Equal(t, uint64(1), pending[0].JobID)

	page, total, err := s.ListJobs(ctx, core.JobFilter{Payer: testPayer, Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(2), page[0].JobID)

	other := uint64(8)
	none, total, err := s.ListJobs(ctx, core.JobFilter{ProviderID: &other})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)
}

func TestGetPendingJobsBefore(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	createJob(t, s, 0)

	stale, err := s.GetPendingJobsBefore(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	stale, err = s.GetPendingJobsBefore(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

// ──────────────────────────────────────────────────────────────────────────────
// ResolveJob
// ──────────────────────────────────────────────────────────────────────────────

func TestResolveJob_FulfilledQueuesPayout(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := createJob(t, s, 0)

	transfer := resolveFulfilled(t, s, job)
	assert.NotEmpty(t, transfer.ID)

	got, err := s.GetJobByID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFulfilled, got.Status)
	assert.Equal(t, "done", got.Output)
	assert.NotNil(t, got.ResolvedAt)

	queued, err := s.GetTransferByJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, core.TransferPayout, queued.Kind)
	assert.Equal(t, testProvider, queued.Recipient)
	assert.True(t, queued.Amount.Equals(core.NewAmount(100)), "transfer carries the escrowed amount")
	assert.Equal(t, core.TransferPending, queued.Status)
}

func TestResolveJob_FailedRecordsSanitizedReason(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := createJob(t, s, 0)

	got, err := s.ResolveJob(ctx, core.Resolution{
		RequestHandle: job.RequestHandle,
		Status:        core.StatusFailed,
		FailureReason: "boom\x00",
		RawError:      []byte("boom"),
	}, &core.Transfer{Kind: core.TransferRefund, Recipient: testPayer}, &core.JobFailed{JobID: job.JobID, Reason: "boom"})
	require.NoError(t, err)

	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Equal(t, "boom", got.FailureReason)
	assert.Equal(t, []byte("boom"), got.RawError)
}

func TestResolveJob_SecondResolutionIsRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := createJob(t, s, 0)
	resolveFulfilled(t, s, job)

	_, err := s.ResolveJob(ctx, core.Resolution{
		RequestHandle: job.RequestHandle,
		Status:        core.StatusFailed,
		FailureReason: "late",
	}, &core.Transfer{Kind: core.TransferRefund, Recipient: testPayer}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrAlreadyResolved))

	got, err := s.GetJob(ctx, job.RequestHandle)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFulfilled, got.Status, "state must be unchanged")

	transfer, err := s.GetTransferByJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, core.TransferPayout, transfer.Kind, "no refund after payout")
}

func TestResolveJob_UnknownHandle(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.ResolveJob(context.Background(), core.Resolution{
		RequestHandle: testHandle(42),
		Status:        core.StatusFulfilled,
	}, nil, nil)
	assert.True(t, errors.Is(err, core.ErrUnknownRequest))
}

func TestResolveJob_RejectsNonTerminalStatus(t *testing.T) {
	s := newTestStorage(t)
	job := createJob(t, s, 0)

	_, err := s.ResolveJob(context.Background(), core.Resolution{
		RequestHandle: job.RequestHandle,
		Status:        core.StatusPending,
	}, nil, nil)
	assert.Error(t, err)
}

// ──────────────────────────────────────────────────────────────────────────────
// Transfers
// ──────────────────────────────────────────────────────────────────────────────

func TestClaimTransfer_LocksAndCountsAttempts(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	transfer := resolveFulfilled(t, s, createJob(t, s, 0))

	claimed, err := s.ClaimTransfer(ctx, transfer.ID, "settler-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "settler-1", claimed.LockedBy)
	assert.Equal(t, 1, claimed.Attempts)

	again, err := s.ClaimTransfer(ctx, transfer.ID, "settler-2", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, again, "locked transfer cannot be claimed twice")

	due, err := s.GetDueTransfers(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMarkTransferSettled_RecordsNotification(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := createJob(t, s, 0)
	transfer := resolveFulfilled(t, s, job)

	_, err := s.ClaimTransfer(ctx, transfer.ID, "settler-1", time.Minute)
	require.NoError(t, err)

	_, err = s.MarkTransferSettled(ctx, transfer.ID, "settler-2")
	assert.True(t, errors.Is(err, core.ErrTransferNotOwned))

	ev, err := s.MarkTransferSettled(ctx, transfer.ID, "settler-1")
	require.NoError(t, err)
	assert.Equal(t, core.TransferPayout, ev.TransferKind)
	assert.Equal(t, job.JobID, ev.JobID)

	got, err := s.GetTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TransferStatusSettled, got.Status)
	assert.NotNil(t, got.SettledAt)
	assert.Empty(t, got.LockedBy)

	again, err := s.ClaimTransfer(ctx, transfer.ID, "settler-1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, again, "settled transfer cannot be claimed")
}

func TestMarkTransferFailed_SchedulesRetry(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	transfer := resolveFulfilled(t, s, createJob(t, s, 0))

	_, err := s.ClaimTransfer(ctx, transfer.ID, "settler-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.MarkTransferFailed(ctx, transfer.ID, "settler-1", "bank offline", time.Now().Add(time.Hour)))

	got, err := s.GetTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, "bank offline", got.LastError)
	assert.Equal(t, core.TransferPending, got.Status)
	assert.Empty(t, got.LockedBy)

	due, err := s.GetDueTransfers(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "retry is not due yet")

	err = s.MarkTransferFailed(ctx, transfer.ID, "settler-1", "again", time.Now())
	assert.True(t, errors.Is(err, core.ErrTransferNotOwned))
}

func TestReleaseStaleTransferLocks(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	transfer := resolveFulfilled(t, s, createJob(t, s, 0))

	_, err := s.ClaimTransfer(ctx, transfer.ID, "settler-1", -time.Second)
	require.NoError(t, err)

	released, err := s.ReleaseStaleTransferLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	due, err := s.GetDueTransfers(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestGetTransfer_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.GetTransfer(ctx, "missing")
	assert.True(t, errors.Is(err, core.ErrTransferNotFound))
	_, err = s.GetTransferByJob(ctx, 5)
	assert.True(t, errors.Is(err, core.ErrTransferNotFound))
}

// ──────────────────────────────────────────────────────────────────────────────
// Settings
// ──────────────────────────────────────────────────────────────────────────────

func TestSettings_InitOnceAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.GetSettings(ctx)
	assert.True(t, errors.Is(err, core.ErrNotBootstrapped))

	require.NoError(t, s.InitSettings(ctx, &core.Settings{Owner: testOwner, Router: testRouter}))
	err = s.InitSettings(ctx, &core.Settings{Owner: testPayer})
	assert.True(t, errors.Is(err, core.ErrAlreadyBootstrapped))

	updated, ev, err := s.UpdateSettings(ctx, func(st *core.Settings) (core.Event, error) {
		old := st.SubscriptionID
		st.SubscriptionID = 12
		return &core.SubscriptionUpdated{Old: old, New: 12}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(12), updated.SubscriptionID)
	assert.Equal(t, core.KindSubscriptionUpdated, ev.Kind())

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, testOwner, got.Owner)
	assert.Equal(t, uint64(12), got.SubscriptionID)
}

func TestUpdateSettings_ErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	require.NoError(t, s.InitSettings(ctx, &core.Settings{Owner: testOwner}))

	_, _, err := s.UpdateSettings(ctx, func(st *core.Settings) (core.Event, error) {
		st.Router = testRouter
		return nil, core.ErrNotOwner
	})
	assert.True(t, errors.Is(err, core.ErrNotOwner))

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Router)

	list, err := s.ListNotifications(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// ──────────────────────────────────────────────────────────────────────────────
// Outbox / reporting
// ──────────────────────────────────────────────────────────────────────────────

func TestListNotifications_FollowsStateChanges(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := createJob(t, s, 0)
	resolveFulfilled(t, s, job)

	list, err := s.ListNotifications(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, core.KindJobCreated, list[0].Kind)
	assert.Equal(t, core.KindJobFulfilled, list[1].Kind)
	require.NotNil(t, list[1].JobID)
	assert.Equal(t, job.JobID, *list[1].JobID)
	assert.Contains(t, string(list[1].Payload()), `"output":"done"`)

	after, err := s.ListNotifications(ctx, list[0].Seq, 10)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, list[1].Seq, after[0].Seq)
}

func TestEscrowSummary(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	createJob(t, s, 0)
	createJob(t, s, 1)
	resolveFulfilled(t, s, createJob(t, s, 2))

	summary, err := s.EscrowSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.PendingJobs)
	assert.Equal(t, "200", summary.HeldForPending.String())
	assert.Equal(t, int64(1), summary.PendingTransfers)
	assert.Equal(t, "100", summary.OwedByTransfers.String())
}

func TestConsumeNonce_RejectsReuse(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.ConsumeNonce(ctx, testPayer, "nonce-0001", now, now.Add(-time.Hour)))

	err := s.ConsumeNonce(ctx, testPayer, "nonce-0001", now.Add(time.Second), now.Add(-time.Hour))
	assert.ErrorIs(t, err, core.ErrNonceReused)

	// Nonces are scoped per signer.
	assert.NoError(t, s.ConsumeNonce(ctx, testOwner, "nonce-0001", now, now.Add(-time.Hour)))
}

func TestConsumeNonce_PrunesOldRows(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	old := time.Now().Add(-2 * time.Hour)

	require.NoError(t, s.ConsumeNonce(ctx, testPayer, "nonce-old", old, old.Add(-time.Hour)))
	require.NoError(t, s.ConsumeNonce(ctx, testPayer, "nonce-new", time.Now(), time.Now().Add(-time.Hour)))

	var n int64
	require.NoError(t, s.DB().Model(&core.RequestNonce{}).Where("signer = ?", testPayer).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
