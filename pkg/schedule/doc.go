// Package schedule decides when recurring maintenance runs.
//
// The settlement worker uses a Schedule to pace the expiry sweep that
// refunds jobs the oracle never answered. Schedules are either a fixed
// interval (Every) or a five-field cron expression (Cron). Parse accepts
// both forms as they appear in the daemon's config file.
package schedule
