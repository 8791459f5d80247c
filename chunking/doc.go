// Package chunking turns parsed objects into stored chunks and vector documents.
//
// The Coordinator runs its own polling loop, separate from the job
// dispatcher. Each tick claims the oldest parsed object, asks the chunker to
// split its text, stores the chunks and upserts one vector document per
// chunk. The object ends in embedded or embedding_failed, and the job waiting
// on it (chunking status pending) is completed either way.
//
// Failed objects are never retried automatically; ResetFailed puts them back
// in the queue.
package chunking
