// Package jobs turns configured jobs into scheduler registrations.
//
// Interval jobs become repeating slots (or one-shot with once: true). Cron jobs
// are one-shot slots armed with the delay until the next cron time; Reconcile
// re-arms them after each fire and retries jobs that found the table full.
package jobs
