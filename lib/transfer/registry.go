// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"fmt"
	"io/fs"
	"sync"
	"time"
)

// Status classifies the outcome of adding one chunk to the registry.
type Status int

const (
	// StatusProgress: the chunk was new and the transfer is still
	// incomplete.
	StatusProgress Status = iota

	// StatusDuplicate: this (key, chunk ID) was already recorded.
	// Registry state is unchanged — re-delivery is harmless.
	StatusDuplicate

	// StatusComplete: this chunk was the last one missing. The
	// registry entry is gone and the caller owns the chunk set.
	StatusComplete
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusProgress:
		return "progress"
	case StatusDuplicate:
		return "duplicate"
	case StatusComplete:
		return "complete"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Completed is a fully-received transfer handed out of the registry.
// Exactly one Add call per transfer produces it.
type Completed struct {
	Key         Key
	TargetPath  string
	TargetPerms fs.FileMode
	Chunks      []Chunk
}

// AddOutcome reports what one Add call did. Completed is non-nil only
// when Status is StatusComplete.
type AddOutcome struct {
	Status    Status
	SeenCount uint64
	Completed *Completed
}

// inflight is the accumulation state for one transfer. Mutated only
// under the registry lock.
type inflight struct {
	targetPath  string
	targetPerms fs.FileMode
	totalChunks uint64
	lastUpdated time.Time
	chunks      map[uint64]Chunk
}

// Registry tracks partially-received transfers across all
// connections. It is the daemon's only cross-connection mutable
// state; every read-modify-write on an entry — duplicate check,
// append, completion check, removal — happens inside one critical
// section, so two chunks arriving concurrently for the same key
// cannot both observe completion or lose an append.
type Registry struct {
	mu       sync.Mutex
	inflight map[Key]*inflight

	// now is replaced in tests to drive the idle sweep.
	now func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		inflight: make(map[Key]*inflight),
		now:      time.Now,
	}
}

// Add records one chunk for the transfer identified by key. The first
// chunk for a key creates the entry (with the given target path and
// permissions); the chunk that brings the distinct-seen count to
// TotalChunks removes the entry and returns the full chunk set.
//
// A chunk for a key that was already completed and removed starts a
// fresh transfer under that key — the registry cannot tell a
// re-submission from a genuine new transfer, and a fresh entry is
// harmless (it is swept if never completed).
func (r *Registry) Add(key Key, targetPath string, targetPerms fs.FileMode, chunk Chunk) (AddOutcome, error) {
	if chunk.TotalChunks == 0 {
		return AddOutcome{}, fmt.Errorf("transfer %s: chunk %d declares zero total chunks",
			key, chunk.ChunkID)
	}
	if chunk.ChunkID >= chunk.TotalChunks {
		return AddOutcome{}, fmt.Errorf("transfer %s: chunk ID %d out of range [0,%d)",
			key, chunk.ChunkID, chunk.TotalChunks)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.inflight[key]
	if !exists {
		entry = &inflight{
			targetPath:  targetPath,
			targetPerms: targetPerms,
			totalChunks: chunk.TotalChunks,
			chunks:      make(map[uint64]Chunk),
		}
		r.inflight[key] = entry
	}

	if chunk.TotalChunks != entry.totalChunks {
		// Disagreement with the first chunk seen. The entry stays as
		// it was; the client must restart the whole transfer.
		return AddOutcome{}, fmt.Errorf("transfer %s: chunk %d declares %d total chunks, first chunk declared %d",
			key, chunk.ChunkID, chunk.TotalChunks, entry.totalChunks)
	}

	if _, seen := entry.chunks[chunk.ChunkID]; seen {
		return AddOutcome{
			Status:    StatusDuplicate,
			SeenCount: uint64(len(entry.chunks)),
		}, nil
	}

	entry.chunks[chunk.ChunkID] = chunk
	entry.lastUpdated = r.now()
	seenCount := uint64(len(entry.chunks))

	if seenCount < entry.totalChunks {
		return AddOutcome{Status: StatusProgress, SeenCount: seenCount}, nil
	}

	// Completion: remove the entry under the same lock acquisition
	// that recorded the final chunk, so no other caller can observe
	// this transfer as complete.
	delete(r.inflight, key)

	chunks := make([]Chunk, 0, len(entry.chunks))
	for _, c := range entry.chunks {
		chunks = append(chunks, c)
	}
	return AddOutcome{
		Status:    StatusComplete,
		SeenCount: seenCount,
		Completed: &Completed{
			Key:         key,
			TargetPath:  entry.targetPath,
			TargetPerms: entry.targetPerms,
			Chunks:      chunks,
		},
	}, nil
}

// SweepIdle removes every transfer whose last chunk arrived more than
// maxIdle ago and returns the keys removed. A transfer abandoned
// mid-flight otherwise holds its chunks in memory for the life of the
// process; the daemon runs this on a timer.
func (r *Registry) SweepIdle(maxIdle time.Duration) []Key {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Key
	for key, entry := range r.inflight {
		if entry.lastUpdated.Before(cutoff) {
			delete(r.inflight, key)
			removed = append(removed, key)
		}
	}
	return removed
}

// Len returns the number of in-flight transfers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}
