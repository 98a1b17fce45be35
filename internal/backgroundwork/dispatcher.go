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
	"log/slog"
	"sync"
)

// UpdateHandler observes a committed Snapshot. Handlers run synchronously
// on the publisher's goroutine per §5, so they must be cheap or offload
// to their own goroutine.
type UpdateHandler func(Snapshot)

// SubscriptionHandle identifies a prior Subscribe call so it can be
// passed to Unsubscribe.
type SubscriptionHandle uint64

// dispatcher fans out committed snapshots to every subscribed handler,
// generalizing the teacher's per-run log fan-out
// (Runner.Subscribe/addLog, subscribers map[string][]chan LogEntry) from
// one channel per run to one dispatcher serving every WorkId.
//
// The subscriber list is copy-on-write: publish takes a snapshot of the
// slice under the lock and then invokes handlers outside the lock, so a
// concurrent Subscribe/Unsubscribe can never deadlock with an in-flight
// publish, and an Unsubscribe that completes after publish took its
// snapshot still sees the handler invoked for that snapshot — satisfying
// §4.E's "terminal events are never dropped" guarantee.
type dispatcher struct {
	mu       sync.Mutex
	handlers map[SubscriptionHandle]UpdateHandler
	nextID   SubscriptionHandle
	logger   *slog.Logger

	// perWorkMu serializes publish calls for the same WorkId so that
	// handlers observe per-WorkId FIFO order even when the executor's
	// worker pool runs bodies for distinct WorkIds concurrently.
	perWorkMu sync.Map // workId -> *sync.Mutex
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	return &dispatcher{
		handlers: make(map[SubscriptionHandle]UpdateHandler),
		logger:   logger,
	}
}

// subscribe registers handler and returns a handle for later unsubscribe.
func (d *dispatcher) subscribe(handler UpdateHandler) SubscriptionHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.handlers[id] = handler
	return id
}

// unsubscribe removes the handler registered under handle, if present.
func (d *dispatcher) unsubscribe(handle SubscriptionHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, handle)
}

// publish delivers snap to every handler subscribed at the moment the
// snapshot list is copied, in per-WorkId FIFO order. A handler that
// panics is isolated: the panic is recovered and logged, and delivery
// continues to the remaining handlers.
func (d *dispatcher) publish(snap Snapshot) {
	lockIface, _ := d.perWorkMu.LoadOrStore(snap.WorkId, &sync.Mutex{})
	workLock := lockIface.(*sync.Mutex)
	workLock.Lock()
	defer workLock.Unlock()

	d.mu.Lock()
	snapshotHandlers := make([]UpdateHandler, 0, len(d.handlers))
	for _, h := range d.handlers {
		snapshotHandlers = append(snapshotHandlers, h)
	}
	d.mu.Unlock()

	for _, h := range snapshotHandlers {
		d.invoke(h, snap)
	}

	if snap.State.IsTerminal() {
		d.perWorkMu.Delete(snap.WorkId)
	}
}

func (d *dispatcher) invoke(h UpdateHandler, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			if d.logger != nil {
				d.logger.Error("update handler panicked", "work_id", snap.WorkId, "panic", r)
			}
		}
	}()
	h(snap)
}
