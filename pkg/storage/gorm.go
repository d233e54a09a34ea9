// Package storage provides storage implementations for the escrow package.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/security"
)

// GormStorage implements core.Storage using GORM.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// DB returns the underlying database handle.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// IsSQLite reports whether the storage runs on SQLite.
func (s *GormStorage) IsSQLite() bool {
	return s.db != nil && s.db.Dialector.Name() == "sqlite"
}

// Migrate creates the necessary tables and seeds the job sequence.
func (s *GormStorage) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(
		&core.Job{},
		&core.RequestIndex{},
		&core.Sequence{},
		&core.Transfer{},
		&core.Settings{},
		&core.Notification{},
		&core.RequestNonce{},
	); err != nil {
		return err
	}
	seq := core.Sequence{Name: core.JobSequence}
	return db.Where(core.Sequence{Name: core.JobSequence}).FirstOrCreate(&seq).Error
}

// CreateJob allocates the next job id and records the job, its reverse index
// entry and the creation notification in one transaction.
func (s *GormStorage) CreateJob(ctx context.Context, job *core.Job) (*core.JobCreated, error) {
	if job.Status == "" {
		job.Status = core.StatusPending
	}

	var created *core.JobCreated
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq core.Sequence
		if err := tx.First(&seq, "name = ?", core.JobSequence).Error; err != nil {
			return fmt.Errorf("load job sequence: %w", err)
		}

		// Compare-and-swap: a concurrent writer that bumped the counter first
		// leaves zero rows affected here.
		result := tx.Model(&core.Sequence{}).
			Where("name = ? AND next = ?", core.JobSequence, seq.Next).
			Update("next", seq.Next+1)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return core.ErrSequenceConflict
		}

		var existing int64
		if err := tx.Model(&core.Job{}).Where("request_handle = ?", job.RequestHandle).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return errorsmod.Wrap(core.ErrDuplicateRequest, job.RequestHandle)
		}

		job.JobID = seq.Next
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		if err := tx.Create(&core.RequestIndex{JobID: job.JobID, RequestHandle: job.RequestHandle}).Error; err != nil {
			return err
		}

		created = &core.JobCreated{
			JobID:         job.JobID,
			ProviderID:    job.ProviderID,
			Payer:         job.Payer,
			Amount:        job.EscrowedAmount,
			Input:         job.Input,
			RequestHandle: job.RequestHandle,
			Timestamp:     job.CreatedAt,
		}
		return appendNotification(tx, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ResolveJob records the terminal decision for a pending job together with
// the transfer that releases its escrow and the resulting notification.
// The update is guarded on status = pending, so only the first of several
// concurrent resolutions succeeds.
func (s *GormStorage) ResolveJob(ctx context.Context, res core.Resolution, transfer *core.Transfer, event core.Event) (*core.Job, error) {
	if !res.Status.IsTerminal() {
		return nil, fmt.Errorf("resolve job: %q is not a terminal status", res.Status)
	}

	var job core.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, "request_handle = ?", res.RequestHandle).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errorsmod.Wrap(core.ErrUnknownRequest, res.RequestHandle)
			}
			return err
		}
		if job.Status != core.StatusPending {
			return errorsmod.Wrapf(core.ErrAlreadyResolved, "job %d is %s", job.JobID, job.Status)
		}

		resolvedAt := res.ResolvedAt
		if resolvedAt.IsZero() {
			resolvedAt = time.Now()
		}
		result := tx.Model(&core.Job{}).
			Where("request_handle = ? AND status = ?", res.RequestHandle, core.StatusPending).
			Updates(map[string]any{
				"status":         res.Status,
				"output":         res.Output,
				"failure_reason": security.SanitizeErrorMessage(res.FailureReason),
				"raw_response":   res.RawResponse,
				"raw_error":      res.RawError,
				"resolved_at":    resolvedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errorsmod.Wrapf(core.ErrAlreadyResolved, "job %d", job.JobID)
		}

		if transfer != nil {
			if transfer.ID == "" {
				transfer.ID = uuid.New().String()
			}
			transfer.JobID = job.JobID
			transfer.RequestHandle = job.RequestHandle
			transfer.Amount = job.EscrowedAmount
			transfer.Status = core.TransferPending
			if err := tx.Create(transfer).Error; err != nil {
				return fmt.Errorf("queue transfer: %w", err)
			}
		}

		if event != nil {
			if err := appendNotification(tx, event); err != nil {
				return err
			}
		}

		return tx.First(&job, "request_handle = ?", res.RequestHandle).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob retrieves a job by request handle.
func (s *GormStorage) GetJob(ctx context.Context, requestHandle string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "request_handle = ?", requestHandle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errorsmod.Wrap(core.ErrJobNotFound, requestHandle)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobByID resolves the job id through the reverse index, then loads the
// job from the same table used by GetJob.
func (s *GormStorage) GetJobByID(ctx context.Context, jobID uint64) (*core.Job, error) {
	var idx core.RequestIndex
	err := s.db.WithContext(ctx).First(&idx, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errorsmod.Wrapf(core.ErrJobNotFound, "job %d", jobID)
	}
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, idx.RequestHandle)
}

// ListJobs returns jobs matching the filter ordered by job id, plus the total count.
func (s *GormStorage) ListJobs(ctx context.Context, filter core.JobFilter) ([]*core.Job, int64, error) {
	q := s.db.WithContext(ctx).Model(&core.Job{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Payer != "" {
		q = q.Where("payer = ?", filter.Payer)
	}
	if filter.ProviderID != nil {
		q = q.Where("provider_id = ?", *filter.ProviderID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobList []*core.Job
	err := q.Order("job_id ASC").
		Limit(security.ClampPageSize(filter.Limit)).
		Offset(filter.Offset).
		Find(&jobList).Error
	return jobList, total, err
}

// NextJobID returns the id the next created job will receive.
func (s *GormStorage) NextJobID(ctx context.Context) (uint64, error) {
	var seq core.Sequence
	if err := s.db.WithContext(ctx).First(&seq, "name = ?", core.JobSequence).Error; err != nil {
		return 0, err
	}
	return seq.Next, nil
}

// GetPendingJobsBefore returns pending jobs created before cutoff, oldest first.
func (s *GormStorage) GetPendingJobsBefore(ctx context.Context, cutoff time.Time, limit int) ([]*core.Job, error) {
	var jobList []*core.Job
	err := s.db.WithContext(ctx).
		Where("status = ?", core.StatusPending).
		Where("created_at < ?", cutoff).
		Order("job_id ASC").
		Limit(limit).
		Find(&jobList).Error
	return jobList, err
}

// GetTransfer retrieves a transfer by id.
func (s *GormStorage) GetTransfer(ctx context.Context, transferID string) (*core.Transfer, error) {
	var t core.Transfer
	err := s.db.WithContext(ctx).First(&t, "id = ?", transferID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errorsmod.Wrap(core.ErrTransferNotFound, transferID)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTransferByJob retrieves the transfer that releases a job's escrow.
func (s *GormStorage) GetTransferByJob(ctx context.Context, jobID uint64) (*core.Transfer, error) {
	var t core.Transfer
	err := s.db.WithContext(ctx).First(&t, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errorsmod.Wrapf(core.ErrTransferNotFound, "job %d", jobID)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetDueTransfers returns pending, unlocked transfers whose next attempt is due.
func (s *GormStorage) GetDueTransfers(ctx context.Context, limit int) ([]*core.Transfer, error) {
	var list []*core.Transfer
	now := time.Now()

	err := s.db.WithContext(ctx).
		Where("status = ?", core.TransferPending).
		Where("(next_attempt_at IS NULL OR next_attempt_at <= ?)", now).
		Where("(locked_until IS NULL OR locked_until < ?)", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&list).Error

	return list, err
}

// ClaimTransfer locks a pending transfer for settlerID. It returns nil when
// the transfer is already settled or locked by someone else.
func (s *GormStorage) ClaimTransfer(ctx context.Context, transferID, settlerID string, lease time.Duration) (*core.Transfer, error) {
	now := time.Now()
	lockUntil := now.Add(lease)

	var claimed *core.Transfer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&core.Transfer{}).
			Where("id = ? AND status = ?", transferID, core.TransferPending).
			Where("(locked_until IS NULL OR locked_until < ?)", now).
			Updates(map[string]any{
				"locked_by":    settlerID,
				"locked_until": lockUntil,
				"attempts":     gorm.Expr("attempts + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		var t core.Transfer
		if err := tx.First(&t, "id = ?", transferID).Error; err != nil {
			return err
		}
		claimed = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkTransferSettled completes a claimed transfer and records the settlement
// notification. It fails with ErrTransferNotOwned when the lock was lost.
func (s *GormStorage) MarkTransferSettled(ctx context.Context, transferID, settlerID string) (*core.TransferSettled, error) {
	now := time.Now()

	var settled *core.TransferSettled
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&core.Transfer{}).
			Where("id = ? AND locked_by = ? AND status = ?", transferID, settlerID, core.TransferPending).
			Updates(map[string]any{
				"status":       core.TransferStatusSettled,
				"settled_at":   now,
				"last_error":   "",
				"locked_by":    "",
				"locked_until": nil,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errorsmod.Wrap(core.ErrTransferNotOwned, transferID)
		}

		var t core.Transfer
		if err := tx.First(&t, "id = ?", transferID).Error; err != nil {
			return err
		}
		settled = &core.TransferSettled{
			TransferID:    t.ID,
			JobID:         t.JobID,
			TransferKind:  t.Kind,
			Recipient:     t.Recipient,
			Amount:        t.Amount,
			RequestHandle: t.RequestHandle,
			Timestamp:     now,
		}
		return appendNotification(tx, settled)
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// MarkTransferFailed releases a claimed transfer and schedules the next attempt.
// Error messages are sanitized before storage.
func (s *GormStorage) MarkTransferFailed(ctx context.Context, transferID, settlerID, errMsg string, nextAttempt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&core.Transfer{}).
		Where("id = ? AND locked_by = ? AND status = ?", transferID, settlerID, core.TransferPending).
		Updates(map[string]any{
			"last_error":      security.SanitizeErrorMessage(errMsg),
			"next_attempt_at": nextAttempt,
			"locked_by":       "",
			"locked_until":    nil,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errorsmod.Wrap(core.ErrTransferNotOwned, transferID)
	}
	return nil
}

// ReleaseStaleTransferLocks clears locks whose lease has expired.
func (s *GormStorage) ReleaseStaleTransferLocks(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&core.Transfer{}).
		Where("status = ?", core.TransferPending).
		Where("locked_until IS NOT NULL AND locked_until < ?", time.Now()).
		Updates(map[string]any{
			"locked_by":    "",
			"locked_until": nil,
		})
	return result.RowsAffected, result.Error
}

// GetSettings returns the singleton settings row.
func (s *GormStorage) GetSettings(ctx context.Context) (*core.Settings, error) {
	var st core.Settings
	err := s.db.WithContext(ctx).First(&st, "id = ?", core.SettingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrNotBootstrapped
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// InitSettings inserts the settings row once.
func (s *GormStorage) InitSettings(ctx context.Context, settings *core.Settings) error {
	settings.ID = core.SettingsID
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&core.Settings{}).Where("id = ?", core.SettingsID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return core.ErrAlreadyBootstrapped
		}
		return tx.Create(settings).Error
	})
}

// UpdateSettings applies fn to the current settings and persists the result
// with the notification fn returns. Nothing is written when fn fails.
func (s *GormStorage) UpdateSettings(ctx context.Context, fn func(*core.Settings) (core.Event, error)) (*core.Settings, core.Event, error) {
	var (
		st    core.Settings
		event core.Event
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&st, "id = ?", core.SettingsID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrNotBootstrapped
			}
			return err
		}

		var err error
		event, err = fn(&st)
		if err != nil {
			return err
		}
		if err := tx.Save(&st).Error; err != nil {
			return err
		}
		if event != nil {
			return appendNotification(tx, event)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &st, event, nil
}

// ConsumeNonce records nonce for signer, failing with ErrNonceReused when the
// pair was seen before. The signer's rows older than pruneBefore are dropped
// in the same transaction.
func (s *GormStorage) ConsumeNonce(ctx context.Context, signer, nonce string, seenAt, pruneBefore time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("signer = ? AND seen_at < ?", signer, pruneBefore).
			Delete(&core.RequestNonce{}).Error; err != nil {
			return err
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&core.RequestNonce{Signer: signer, Nonce: nonce, SeenAt: seenAt})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errorsmod.Wrapf(core.ErrNonceReused, "signer %s", signer)
		}
		return nil
	})
}

// ListNotifications returns outbox rows with a sequence above afterSeq.
func (s *GormStorage) ListNotifications(ctx context.Context, afterSeq uint64, limit int) ([]*core.Notification, error) {
	var list []*core.Notification
	err := s.db.WithContext(ctx).
		Where("seq > ?", afterSeq).
		Order("seq ASC").
		Limit(security.ClampPageSize(limit)).
		Find(&list).Error
	return list, err
}

// EscrowSummary totals the funds held for pending jobs and queued transfers.
func (s *GormStorage) EscrowSummary(ctx context.Context) (*core.EscrowSummary, error) {
	var held []string
	if err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("status = ?", core.StatusPending).
		Pluck("escrowed_amount", &held).Error; err != nil {
		return nil, err
	}
	var owed []string
	if err := s.db.WithContext(ctx).
		Model(&core.Transfer{}).
		Where("status = ?", core.TransferPending).
		Pluck("amount", &owed).Error; err != nil {
		return nil, err
	}

	heldTotal, err := sumAmounts(held)
	if err != nil {
		return nil, err
	}
	owedTotal, err := sumAmounts(owed)
	if err != nil {
		return nil, err
	}
	return &core.EscrowSummary{
		PendingJobs:      int64(len(held)),
		HeldForPending:   heldTotal,
		PendingTransfers: int64(len(owed)),
		OwedByTransfers:  owedTotal,
	}, nil
}

func sumAmounts(values []string) (core.Amount, error) {
	total := core.ZeroAmount()
	for _, v := range values {
		a, err := core.ParseAmount(v)
		if err != nil {
			return core.Amount{}, fmt.Errorf("stored amount: %w", err)
		}
		total = core.Amount{Int: total.Int.Add(a.Int)}
	}
	return total, nil
}

func appendNotification(tx *gorm.DB, event core.Event) error {
	n, err := core.NewNotification(event)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return tx.Create(n).Error
}
