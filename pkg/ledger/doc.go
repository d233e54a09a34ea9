// Package ledger provides the Ledger type: the job store and notification
// hub of the escrow.
//
// This package includes:
//   - Ledger: creates jobs, collects their price, dispatches their oracle
//     requests and answers lookups
//   - Option: configuration for logging, metrics and id-allocation retries
//   - Hook registration for job lifecycle events
//   - Event subscription for live notifications
//
// Most users should import the root package github.com/jdziat/agent-escrow
// which wires the ledger together with the resolver and settlement worker.
package ledger
