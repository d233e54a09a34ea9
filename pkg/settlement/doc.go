// Package settlement releases escrow once a job is decided.
//
// Resolving a job queues exactly one transfer: a payout to the provider or a
// refund to the payer. A Settler claims that transfer, asks the Bank to move
// the funds and records the result. A Bank failure leaves the transfer
// pending with a backoff, so the job's decision is never rolled back and no
// funds are stranded. The Worker drives settlement in the background and can
// also run the expiry sweep for jobs the oracle never answered.
//
// The ledger collects each job's price into escrow through Bank.Collect when
// the job is created; transfers pay out of that escrow. Banks receive the
// transfer id as an idempotency key. A transfer that was
// paid but whose completion was not recorded is retried after its lease
// expires, and the bank must ignore the repeat.
package settlement
