// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backgroundwork

import (
	"context"
	"sync"
	"time"
)

// record is the internal, non-exported state behind a WorkId: the
// current snapshot, the cancellation handle the executor and Stop use to
// signal the body, and a close-once guard so Stop can be called safely
// from multiple goroutines racing with normal completion.
type record struct {
	mu       sync.Mutex
	snapshot Snapshot
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	closeOne sync.Once
}

func (r *record) markDone() {
	r.closeOne.Do(func() { close(r.done) })
}

// registry owns the id -> record map and the operation-key -> id dedupe
// index described in §4.B. Both maps are guarded by a single mutex so
// that register-or-join is one critical section, matching the teacher's
// Runner which guards its `runs` map the same way.
type registry struct {
	mu      sync.Mutex
	records map[string]*record
	dedupe  map[string]string // normalized operation key -> WorkId
	nowFn   func() time.Time
	nextID  func() string
	rootCtx context.Context
}

// newRegistry builds a registry whose per-work cancellation handles are
// children of rootCtx. Cancelling rootCtx (scheduler shutdown) cancels
// every live work body's context transitively, per the hierarchical
// cancellation handle described in §9.
func newRegistry(rootCtx context.Context, nowFn func() time.Time, nextID func() string) *registry {
	return &registry{
		records: make(map[string]*record),
		dedupe:  make(map[string]string),
		nowFn:   nowFn,
		nextID:  nextID,
		rootCtx: rootCtx,
	}
}

// tryRegister implements §4.B's register-or-join operation: if a
// non-terminal record already exists for operationKey, its WorkId is
// returned with created=false and no new record is allocated. Otherwise
// a new Pending record is created under the same critical section.
func (r *registry) tryRegister(operationKey string, kind WorkKind) (workId string, rec *record, created bool) {
	key := normalizedOperationKey(operationKey)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.dedupe[key]; ok {
		if existing, ok := r.records[existingID]; ok {
			existing.mu.Lock()
			terminal := existing.snapshot.State.IsTerminal()
			existing.mu.Unlock()
			if !terminal {
				return existingID, existing, false
			}
		}
		// Stale dedupe entry pointing at a now-terminal record; fall
		// through and replace it below.
	}

	id := r.nextID()
	ctx, cancel := context.WithCancel(r.rootCtx)
	newRec := &record{
		snapshot: newPendingSnapshot(id, operationKey, kind, r.nowFn()),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	r.records[id] = newRec
	r.dedupe[key] = id
	return id, newRec, true
}

// registerWithoutDedupe always creates a fresh record, used when the
// caller passed dedupeByOperationKey=false. The operation key still
// transiently occupies the dedupe index slot, last-writer-wins, per §4.D.
func (r *registry) registerWithoutDedupe(operationKey string, kind WorkKind) (workId string, rec *record) {
	key := normalizedOperationKey(operationKey)

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID()
	ctx, cancel := context.WithCancel(r.rootCtx)
	newRec := &record{
		snapshot: newPendingSnapshot(id, operationKey, kind, r.nowFn()),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	r.records[id] = newRec
	r.dedupe[key] = id
	return id, newRec
}

// getRecord returns the record for workId, if any.
func (r *registry) getRecord(workId string) (*record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[workId]
	return rec, ok
}

// getSnapshot returns the current immutable snapshot for workId.
func (r *registry) getSnapshot(workId string) (Snapshot, bool) {
	rec, ok := r.getRecord(workId)
	if !ok {
		return Snapshot{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshot, true
}

// list returns a point-in-time copy of every tracked snapshot, ordered by
// UpdatedAt descending as recommended by §6.
func (r *registry) list() []Snapshot {
	r.mu.Lock()
	ids := make([]*record, 0, len(r.records))
	for _, rec := range r.records {
		ids = append(ids, rec)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(ids))
	for _, rec := range ids {
		rec.mu.Lock()
		out = append(out, rec.snapshot)
		rec.mu.Unlock()
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].UpdatedAt.After(out[j-1].UpdatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// update applies mutator to the record's current snapshot under the
// record's own lock, rejecting any transition the state machine forbids.
// It returns the snapshot before and after the attempted mutation; when
// the transition is rejected, old == new and ok is false.
func (r *registry) update(workId string, mutator func(Snapshot) Snapshot) (oldSnap, newSnap Snapshot, ok bool) {
	rec, found := r.getRecord(workId)
	if !found {
		return Snapshot{}, Snapshot{}, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	old := rec.snapshot
	candidate := mutator(old)

	if !isLegalTransition(old.State, candidate.State) {
		return old, old, false
	}
	if err := candidate.validate(); err != nil {
		return old, old, false
	}

	rec.snapshot = candidate
	return old, candidate, true
}

// finalize removes the operation-key -> id mapping for workId's current
// operation key once its record has reached a terminal state, per §4.B.
// The id -> record mapping is retained so late getSnapshot callers can
// still observe the terminal state for the life of the process.
func (r *registry) finalize(workId string) {
	rec, ok := r.getRecord(workId)
	if !ok {
		return
	}
	rec.mu.Lock()
	key := normalizedOperationKey(rec.snapshot.OperationKey)
	rec.mu.Unlock()

	r.mu.Lock()
	if r.dedupe[key] == workId {
		delete(r.dedupe, key)
	}
	r.mu.Unlock()

	rec.markDone()
}

// nonTerminalRecords returns every record not yet in a terminal state,
// used by Stop to drive the forced-cancellation sweep of §4.G.
func (r *registry) nonTerminalRecords() []*record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*record, 0)
	for _, rec := range r.records {
		rec.mu.Lock()
		terminal := rec.snapshot.State.IsTerminal()
		rec.mu.Unlock()
		if !terminal {
			out = append(out, rec)
		}
	}
	return out
}
