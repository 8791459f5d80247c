package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/poiesic/gleanit/core"
)

// Key prefixes for different data types.
// Every prefix is used with a trailing ':' so no prefix shadows another.
const (
	jobPrefix          = "job"
	jobRunnablePrefix  = "jobrun"
	jobObjectPrefix    = "jobobj"
	objectPrefix       = "obj"
	objectHashPrefix   = "objhash"
	objectStatusPrefix = "objst"
	objectIDSeq        = "objseq"
	chunkPrefix        = "chunk"
	vectorPrefix       = "vec"
	checkpointPrefix   = "ckpt"
)

// makeJobKey generates a key for a job by ID.
func makeJobKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", jobPrefix, id))
}

// makeRunnableKey generates a composite key for the dispatch index.
// Format: prefix:invertedPriority:createdAt:id
// Iterating forward yields highest priority first, then oldest first.
func makeRunnableKey(priority int, createdAt time.Time, id string) []byte {
	prefix := []byte(jobRunnablePrefix + ":")
	buf := make([]byte, len(prefix)+16+len(id))
	offset := copy(buf, prefix)
	// Flip the sign bit so signed priorities sort as unsigned, then invert
	// for descending order.
	binary.BigEndian.PutUint64(buf[offset:], ^(uint64(int64(priority)) ^ (1 << 63)))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	offset += 8
	copy(buf[offset:], id)
	return buf
}

// makeJobObjectKey generates a composite key for the job-by-object index.
// Format: prefix:objectID:jobID
func makeJobObjectKey(objectID core.ID, jobID string) []byte {
	prefix := makePartialJobObjectKey(objectID)
	buf := make([]byte, len(prefix)+len(jobID))
	offset := copy(buf, prefix)
	copy(buf[offset:], jobID)
	return buf
}

// makePartialJobObjectKey generates the prefix for all jobs of an object.
func makePartialJobObjectKey(objectID core.ID) []byte {
	prefix := []byte(jobObjectPrefix + ":")
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(objectID))
	return buf
}

// makeObjectKey generates a key for an object by ID.
func makeObjectKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", objectPrefix, id))
}

// makeObjectHashKey generates a key for the content hash index.
func makeObjectHashKey(hash string) []byte {
	return []byte(fmt.Sprintf("%s:%s", objectHashPrefix, hash))
}

// makeObjectStatusKey generates a composite key for the status index.
// Format: prefix:status:createdAt:id
func makeObjectStatusKey(status core.ObjectStatus, createdAt time.Time, id core.ID) []byte {
	prefix := makePartialObjectStatusKey(status)
	buf := make([]byte, len(prefix)+16)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialObjectStatusKey generates the prefix for all objects in a status.
func makePartialObjectStatusKey(status core.ObjectStatus) []byte {
	return []byte(fmt.Sprintf("%s:%s:", objectStatusPrefix, status))
}

// makeChunkKey generates a composite key for a chunk.
// Format: prefix:objectID:chunkIdx
func makeChunkKey(objectID core.ID, chunkIdx int) []byte {
	prefix := makePartialChunkKey(objectID)
	buf := make([]byte, len(prefix)+4)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint32(buf[offset:], uint32(chunkIdx))
	return buf
}

// makePartialChunkKey generates the prefix for all chunks of an object.
func makePartialChunkKey(objectID core.ID) []byte {
	prefix := []byte(chunkPrefix + ":")
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(objectID))
	return buf
}

// makeVectorKey generates a key for a vector document by ID.
func makeVectorKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", vectorPrefix, id))
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processorType string) []byte {
	return []byte(fmt.Sprintf("%s:%s", checkpointPrefix, processorType))
}
