// Package reembed rebuilds the vector documents of embedded objects from their
// stored chunks, for use after the embedding model changes.
//
// Objects are walked oldest first in batches. Each batch is embedded with
// retry and exponential backoff, normalized for dot product search and
// upserted under the same document ids the chunking coordinator uses, so a
// run overwrites documents in place. A checkpoint is saved after every batch
// and an interrupted run resumes after the last object it finished.
package reembed
