// Package queue dispatches ingestion jobs from the durable job store to
// registered processors.
//
// The Dispatcher polls for runnable jobs (queued, or retry_pending whose
// retry time has passed) and runs them on a fixed-size worker pool:
//   - Each job is claimed with MarkAsStarted before its processor runs
//   - A failed attempt is classified as transient or permanent
//   - Transient failures are retried with exponential backoff until the
//     retry ceiling, everything else fails the job
//
// Lifecycle events are delivered to Observers. Stopping the dispatcher
// halts polling only; jobs already running finish normally.
package queue
