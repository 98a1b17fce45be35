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
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	internallog "github.com/mariogk/agentsdashboard/internal/log"
)

// ProgressFunc is the capability a work Body uses to report progress.
// Reports after the body has completed are silently ignored, per the
// "progress report after terminal" open question in §9.
type ProgressFunc func(percentComplete int, message string)

// Body is the callable a caller supplies to Enqueue. It receives a
// context that is cancelled on scheduler shutdown (the "cancellation
// handle" of §6) and a ProgressFunc, and produces a terminal error or
// nil. A context.Canceled/DeadlineExceeded error is interpreted as
// cooperative cancellation rather than a fault.
type Body func(ctx context.Context, report ProgressFunc) error

// executor drains the work queue with a bounded pool of goroutines,
// generalizing the teacher's runner/executor.go execute/executeWithAdapter
// split: "workflow step adapter" becomes the spec's generic Body callable,
// and the teacher's raw semaphore channel is replaced with
// golang.org/x/sync/errgroup's SetLimit, the same bounded worker-pool
// idiom the onedrive-go transfer manager uses for its dispatch pool.
type executor struct {
	reg            *registry
	queue          *workQueue
	disp           *dispatcher
	logger         *slog.Logger
	nowFn          func() time.Time
	maxConcurrency int
	metrics        *metricsRecorder

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newExecutor(reg *registry, queue *workQueue, disp *dispatcher, logger *slog.Logger, nowFn func() time.Time, maxConcurrency int, metrics *metricsRecorder) *executor {
	return &executor{
		reg:            reg,
		queue:          queue,
		disp:           disp,
		logger:         logger,
		nowFn:          nowFn,
		maxConcurrency: maxConcurrency,
		metrics:        metrics,
		stopCh:         make(chan struct{}),
	}
}

// start launches the dispatch loop that drains the queue and hands each
// submission to a bounded pool of goroutines. It returns immediately;
// call stop to close stopCh and block until all in-flight bodies have
// returned.
func (e *executor) start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		g := &errgroup.Group{}
		g.SetLimit(e.maxConcurrency)

		for {
			item, ok := e.queue.pop(e.stopCh)
			if !ok {
				g.Wait()
				return
			}
			if e.metrics != nil {
				e.metrics.setQueueDepth(e.queue.len())
			}
			g.Go(func() error {
				e.runOne(item)
				return nil
			})
		}
	}()
}

// stop signals the dispatch loop to stop accepting new items and blocks
// until every in-flight body invocation (launched before stop was
// called) has returned.
func (e *executor) stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

// runOne implements the per-submission sequence of §4.D steps 1-6.
func (e *executor) runOne(item submission) {
	item.rec.mu.Lock()
	alreadyTerminal := item.rec.snapshot.State.IsTerminal()
	item.rec.mu.Unlock()
	if alreadyTerminal {
		return
	}

	now := e.nowFn()
	_, runningSnap, ok := e.reg.update(item.workId, func(s Snapshot) Snapshot {
		s.State = WorkStateRunning
		s.StartedAt = &now
		s.UpdatedAt = now
		return s
	})
	if !ok {
		// Raced with a Stop-driven Pending->Cancelled transition; honor
		// whatever state won and do not invoke the body.
		return
	}
	e.disp.publish(runningSnap)
	if e.metrics != nil {
		e.metrics.observeTransition(runningSnap)
	}
	e.logTransition(runningSnap)

	err := e.invokeBody(item)

	e.finish(item.workId, err)
}

// invokeBody calls the body with the record's cancellation context,
// recovering a panic and converting it into the same error-shaped
// outcome a returned error would produce, matching the teacher's
// distinction in runner/executor.go between a clean return and a
// synchronous fault.
func (e *executor) invokeBody(item submission) (err error) {
	item.rec.mu.Lock()
	ctx := item.rec.ctx
	operationKey := item.rec.snapshot.OperationKey
	kind := item.rec.snapshot.Kind
	item.rec.mu.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "backgroundwork.executeBody")
	span.SetAttributes(
		attribute.String("work.id", item.workId),
		attribute.String("work.operation_key", operationKey),
		attribute.String("work.kind", string(kind)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	defer func() {
		if r := recover(); r != nil {
			err = errFromPanic(r)
		}
	}()

	return item.body(ctx, e.buildProgressFunc(item.workId))
}

func errFromPanic(r interface{}) error {
	if e, ok := r.(error); ok {
		return e
	}
	return errors.New(panicMessage(r))
}

func panicMessage(r interface{}) string {
	switch v := r.(type) {
	case string:
		return v
	default:
		return "panic in work body"
	}
}

// buildProgressFunc returns the progress-reporter capability bound to
// workId described in §4.D step 3: it normalizes the caller-provided
// percent/message against the authoritative record, clamping regressions
// and ignoring reports once the record has reached a terminal state.
func (e *executor) buildProgressFunc(workId string) ProgressFunc {
	return func(percentComplete int, message string) {
		now := e.nowFn()
		_, snap, ok := e.reg.update(workId, func(s Snapshot) Snapshot {
			if s.State.IsTerminal() {
				return s // ignored; update() will reject the no-op transition below
			}
			if percentComplete > s.PercentComplete {
				s.PercentComplete = percentComplete
			}
			if message != "" {
				s.Message = message
			}
			s.State = WorkStateRunning
			s.UpdatedAt = now
			return s
		})
		if !ok {
			return
		}
		e.disp.publish(snap)
	}
}

// finish implements §4.D steps 5-6: on nil error, Running->Succeeded with
// PercentComplete=100; on a context-cancellation-shaped error,
// Running->Cancelled; otherwise Running->Failed with ErrorCode="exception".
func (e *executor) finish(workId string, bodyErr error) {
	now := e.nowFn()

	var finalSnap Snapshot
	var ok bool

	switch {
	case bodyErr == nil:
		_, finalSnap, ok = e.reg.update(workId, func(s Snapshot) Snapshot {
			s.State = WorkStateSucceeded
			s.PercentComplete = 100
			if s.Message == "" {
				s.Message = "Completed"
			}
			s.UpdatedAt = now
			return s
		})
	case errors.Is(bodyErr, context.Canceled) || errors.Is(bodyErr, context.DeadlineExceeded):
		_, finalSnap, ok = e.reg.update(workId, func(s Snapshot) Snapshot {
			s.State = WorkStateCancelled
			s.UpdatedAt = now
			return s
		})
	default:
		_, finalSnap, ok = e.reg.update(workId, func(s Snapshot) Snapshot {
			s.State = WorkStateFailed
			s.ErrorCode = "exception"
			s.ErrorMessage = firstLine(bodyErr.Error())
			s.UpdatedAt = now
			return s
		})
	}

	if !ok {
		// Already finalized by a concurrent Stop sweep; nothing to publish.
		return
	}

	e.disp.publish(finalSnap)
	if e.metrics != nil {
		e.metrics.observeTransition(finalSnap)
	}
	e.logTransition(finalSnap)
	e.reg.finalize(workId)
}

// logTransition records a snapshot transition through the daemon's
// structured work-event logger, so the Running and terminal transitions
// the executor records are reconstructable from logs alone even without
// a notification sink configured. Progress reports are not logged.
func (e *executor) logTransition(snap Snapshot) {
	if e.logger == nil {
		return
	}
	internallog.LogWorkEvent(e.logger, internallog.WorkEvent{
		WorkID:          snap.WorkId,
		OperationKey:    snap.OperationKey,
		Kind:            string(snap.Kind),
		State:           string(snap.State),
		PercentComplete: snap.PercentComplete,
		Message:         snap.Message,
		ErrorMessage:    snap.ErrorMessage,
	})
}

// firstLine returns the first line of msg, per §4.D's "ErrorMessage =
// first line of the fault's message" rule.
func firstLine(msg string) string {
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		return msg[:idx]
	}
	return msg
}
