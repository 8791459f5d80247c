package core

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for content objects.
// It is generated from database sequences.
type ID uint64

// HashContent returns a hex encoded BLAKE2b-256 digest of data.
// Identical content always produces the same hash, which is what
// deduplication keys on.
func HashContent(data []byte) string {
	h, _ := blake2b.New(32, nil) // 32 bytes = 256 bits
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ObjectStatus is the processing state of a content object.
type ObjectStatus string

const (
	ObjectStatusNew             ObjectStatus = "new"
	ObjectStatusFetched         ObjectStatus = "fetched"
	ObjectStatusParsed          ObjectStatus = "parsed"
	ObjectStatusChunking        ObjectStatus = "chunking"
	ObjectStatusChunked         ObjectStatus = "chunked"
	ObjectStatusChunkingFailed  ObjectStatus = "chunking_failed"
	ObjectStatusEmbedding       ObjectStatus = "embedding"
	ObjectStatusEmbedded        ObjectStatus = "embedded"
	ObjectStatusEmbeddingFailed ObjectStatus = "embedding_failed"
	ObjectStatusError           ObjectStatus = "error"
)

// Object is a content artifact (bookmark, PDF) produced by an ingestion job.
// Its status moves independently of the job that created it.
type Object struct {
	Id          ID
	Kind        JobType // Job type that produced the object
	Source      string  // URL or original file path
	FilePath    string  // Local copy for file based sources
	Title       string
	Byline      string
	Text        string // Cleaned text used for chunking
	Summary     string
	ContentHash string
	Status      ObjectStatus
	ErrorInfo   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ParsedContent is the output of a content adapter.
type ParsedContent struct {
	Title  string
	Text   string
	Byline string
	Length int
}

// Chunk is an ordered slice of an object's cleaned text.
// ChunkIdx values for one object are contiguous starting at 0.
type Chunk struct {
	ObjectId     ID
	ChunkIdx     int
	Content      string
	Summary      string
	Tags         []string
	Propositions []string
	TokenCount   int
	CreatedAt    time.Time
}

// DocumentMetadata is attached to every vector document.
type DocumentMetadata struct {
	ObjectId     ID
	ChunkIdx     int
	Summary      string
	Tags         []string
	Propositions []string
	Source       string
	Title        string
}

// VectorDocument is one embedded chunk in the vector store.
type VectorDocument struct {
	Id       string
	Content  string
	Metadata DocumentMetadata
	Vector   []float32 // Populated by the vector store on upsert
}

// VectorDocumentID returns the stable document id for a chunk.
// Re-ingesting an object produces the same ids, so writes overwrite.
func VectorDocumentID(objectID ID, chunkIdx int) string {
	return fmt.Sprintf("%d_%d", objectID, chunkIdx)
}

// DocumentMatch is a vector search hit.
type DocumentMatch struct {
	Document *VectorDocument
	Score    float32
}

// Checkpoint records how far a long running maintenance pass has progressed
// so an interrupted run can resume after LastID.
type Checkpoint struct {
	ProcessorType string
	LastID        ID
	Processed     int
	UpdatedAt     time.Time
}
