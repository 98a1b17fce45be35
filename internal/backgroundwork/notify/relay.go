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

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/mariogk/agentsdashboard/internal/backgroundwork"
)

// updateSource is the subset of backgroundwork.Scheduler the relay needs,
// named the way the teacher names narrow consumer-defined interfaces
// around its Runner.
type updateSource interface {
	Subscribe(handler backgroundwork.UpdateHandler) backgroundwork.SubscriptionHandle
	Unsubscribe(handle backgroundwork.SubscriptionHandle)
}

// Relay subscribes to a Scheduler's update dispatcher and forwards
// selected lifecycle transitions to an external Sink, per §4.F.
type Relay struct {
	source updateSource
	sink   Sink
	logger *slog.Logger

	mu          sync.Mutex
	lastRelayed map[string]backgroundwork.WorkState
	handle      backgroundwork.SubscriptionHandle
	subscribed  bool
}

// NewRelay constructs a Relay forwarding transitions observed on source
// to sink. logger may be nil, in which case slog.Default() is used.
func NewRelay(source updateSource, sink Sink, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		source:      source,
		sink:        sink,
		logger:      logger,
		lastRelayed: make(map[string]backgroundwork.WorkState),
	}
}

// Start subscribes the relay to the update dispatcher. It is idempotent.
func (r *Relay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subscribed {
		return
	}
	r.handle = r.source.Subscribe(r.onUpdate)
	r.subscribed = true
}

// Stop unsubscribes the relay. It is idempotent.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.subscribed {
		return
	}
	r.source.Unsubscribe(r.handle)
	r.subscribed = false
}

// onUpdate implements the "first transition into X" detection of §4.F
// using a per-WorkId last-relayed-state mapping, pruned once the
// terminal notification has been emitted.
func (r *Relay) onUpdate(snap backgroundwork.Snapshot) {
	r.mu.Lock()
	last, seen := r.lastRelayed[snap.WorkId]
	firstOfState := !seen || last != snap.State
	if firstOfState {
		r.lastRelayed[snap.WorkId] = snap.State
	}
	isTerminal := snap.State.IsTerminal()
	if firstOfState && isTerminal {
		delete(r.lastRelayed, snap.WorkId)
	}
	r.mu.Unlock()

	if !firstOfState {
		return
	}

	env, ok := envelopeFor(snap)
	if !ok {
		return
	}

	if err := r.sink.Publish(context.Background(), env); err != nil {
		r.logger.Error("notification sink publish failed", "work_id", snap.WorkId, "error", err)
	}
}

// envelopeFor builds the notification envelope for a first-transition
// snapshot, or ok=false if the state is not one of the five the relay
// reports (there are none outside the closed WorkState set today, but
// the guard keeps this forward-compatible).
func envelopeFor(snap backgroundwork.Snapshot) (Envelope, bool) {
	stateWord, severity, ok := stateText(snap.State)
	if !ok {
		return Envelope{}, false
	}

	title := fmt.Sprintf("%s %s", humanizeKind(snap.Kind), stateWord)
	message := snap.Message
	if snap.State == backgroundwork.WorkStateFailed {
		message = snap.ErrorMessage
	}

	return Envelope{
		Title:         title,
		Message:       message,
		Severity:      severity,
		Source:        SourceBackgroundWork,
		CorrelationID: snap.WorkId,
	}, true
}

func stateText(state backgroundwork.WorkState) (word string, severity Severity, ok bool) {
	switch state {
	case backgroundwork.WorkStatePending:
		return "queued", SeverityInfo, true
	case backgroundwork.WorkStateRunning:
		return "running", SeverityInfo, true
	case backgroundwork.WorkStateSucceeded:
		return "succeeded", SeverityInfo, true
	case backgroundwork.WorkStateFailed:
		return "failed", SeverityError, true
	case backgroundwork.WorkStateCancelled:
		return "cancelled", SeverityWarning, true
	default:
		return "", "", false
	}
}

// humanizeKind turns a PascalCase WorkKind into a sentence-cased phrase,
// e.g. "WorkerImageResolution" -> "Worker image resolution".
func humanizeKind(kind backgroundwork.WorkKind) string {
	s := string(kind)
	if s == "" {
		return "Work"
	}

	var words []string
	var current strings.Builder
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}
	words = append(words, current.String())

	for i, w := range words {
		if i == 0 {
			words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		} else {
			words[i] = strings.ToLower(w)
		}
	}
	return strings.Join(words, " ")
}
