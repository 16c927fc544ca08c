// Package scheduler drives power schedules.
//
// # Overview
//
// The Registry keeps one cron entry per enabled schedule, keyed by the
// schedule's database id. Reload() discards the registered set and
// re-derives it from the store; the CRUD layer calls it after every
// schedule mutation. At each fire the Executor resolves the schedule's
// targets (direct displays plus group members, deduplicated), applies the
// power action one display at a time, and appends exactly one execution
// record per run.
//
// # Failure model
//
// An unparseable cron spec skips that schedule and keeps the rest. A
// failing display never aborts a run; it is collected into the execution
// record's error summary. Nothing in this package is fatal to the
// process.
//
// # Lifecycle
//
// Start()/Stop() are idempotent. Stop() does not cancel in-flight runs;
// it waits for them with a bounded grace period and abandons the wait
// (with a warning) when the grace expires.
package scheduler
