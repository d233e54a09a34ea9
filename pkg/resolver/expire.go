package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/jdziat/agent-escrow/pkg/core"
)

// expireBatch bounds how many jobs one sweep query loads.
const expireBatch = 100

// ExpireStale fails every pending job created more than olderThan ago and
// queues refunds to their payers. Callbacks arriving later are rejected as
// already resolved. It returns the number of jobs expired.
func (r *Resolver) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := r.now().Add(-olderThan)
	store := r.ledger.Storage()

	expired := 0
	for {
		jobs, err := store.GetPendingJobsBefore(ctx, cutoff, expireBatch)
		if err != nil {
			return expired, err
		}

		progressed := false
		for _, job := range jobs {
			now := r.now()
			_, err := r.commit(ctx, now, job, core.Resolution{
				RequestHandle: job.RequestHandle,
				Status:        core.StatusFailed,
				FailureReason: core.ExpiredReason,
				ResolvedAt:    now,
			},
				&core.Transfer{Kind: core.TransferRefund, Recipient: job.Payer},
				&core.JobFailed{JobID: job.JobID, Reason: core.ExpiredReason, RequestHandle: job.RequestHandle, Timestamp: now})
			if errors.Is(err, core.ErrAlreadyResolved) {
				progressed = true
				continue
			}
			if err != nil {
				return expired, err
			}
			progressed = true
			expired++
			r.ledger.Metrics().JobExpired()
		}

		if len(jobs) < expireBatch || !progressed {
			return expired, nil
		}
	}
}
