// Package worker implements the per job type processors the dispatcher runs.
//
// URLWorker fetches and parses web pages; PDFWorker validates a file, keeps a
// copy under its content hash and extracts its text. Both then follow the
// same steps:
//   - Skip content that an earlier job already ingested (by content hash)
//   - Create the object and link it to the job immediately
//   - Summarize the text and store it with the object in status parsed
//   - Park the job in vectorizing with chunking pending, or complete it
//
// Errors are returned wrapped with the job id and stage. Failures known to be
// final are marked with queue.MarkPermanent so the dispatcher does not retry them.
package worker
