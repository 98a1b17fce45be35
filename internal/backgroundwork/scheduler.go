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
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	internallog "github.com/mariogk/agentsdashboard/internal/log"
)

// tracerName identifies this package's spans in the global tracer
// provider set by internal/telemetry.NewProvider. When no provider has
// been configured, otel's default no-op tracer makes every span call
// a cheap no-op.
const tracerName = "github.com/mariogk/agentsdashboard/internal/backgroundwork"

// DefaultMaxConcurrency mirrors the teacher's DefaultParallelConcurrency:
// a fixed, modest cap used when the caller does not configure one, rather
// than scaling unconditionally with GOMAXPROCS.
const DefaultMaxConcurrency = 4

// DefaultShutdownGracePeriod is how long Stop waits for in-flight bodies
// to honor cancellation before forcibly marking them Cancelled, per §4.G.
const DefaultShutdownGracePeriod = 5 * time.Second

// Config configures a Scheduler. Zero values are replaced by sensible
// defaults in NewScheduler.
type Config struct {
	// MaxConcurrency bounds the number of work bodies executing at once.
	// Must be a positive integer; defaults to DefaultMaxConcurrency.
	MaxConcurrency int

	// QueueCapacity bounds the submission queue. Zero means unbounded.
	QueueCapacity int

	// ShutdownGracePeriod bounds how long Stop waits for running bodies
	// to honor cancellation before forcing them to Cancelled.
	ShutdownGracePeriod time.Duration

	// Logger receives scheduler diagnostics (handler panics, work-item
	// transition events). Defaults to slog.Default() if nil.
	Logger *slog.Logger

	// MetricsRegisterer receives the scheduler's Prometheus metrics.
	// Defaults to prometheus.DefaultRegisterer if nil.
	MetricsRegisterer prometheus.Registerer
}

// Scheduler is the in-process coordinator described in §1: it accepts
// work submissions, deduplicates them by operation key, executes them
// with bounded concurrency, and publishes lifecycle change events.
//
// It plays the same role the teacher's daemon/runner.Runner plays for
// HTTP-triggered workflow runs, generalized to an arbitrary Body
// contract, an explicit state machine, and an operation-key dedupe index
// the teacher's Runner does not have.
type Scheduler struct {
	reg     *registry
	queue   *workQueue
	disp    *dispatcher
	exec    *executor
	metrics *metricsRecorder
	logger  *slog.Logger

	gracePeriod time.Duration

	mu       sync.Mutex
	started  bool
	stopping bool
	rootCtx  context.Context
	rootStop context.CancelFunc
}

// NewScheduler constructs a Scheduler from cfg. It returns
// InvalidArgumentError if MaxConcurrency is set and not positive.
func NewScheduler(cfg Config) (*Scheduler, error) {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency == 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if maxConcurrency < 0 {
		return nil, errNonPositiveConcurrency(maxConcurrency)
	}

	gracePeriod := cfg.ShutdownGracePeriod
	if gracePeriod == 0 {
		gracePeriod = DefaultShutdownGracePeriod
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registerer := cfg.MetricsRegisterer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	rootCtx, rootStop := context.WithCancel(context.Background())

	reg := newRegistry(rootCtx, time.Now, func() string { return uuid.New().String() })
	queue := newWorkQueue(cfg.QueueCapacity)
	disp := newDispatcher(logger)
	metrics := newMetricsRecorder(registerer)
	exec := newExecutor(reg, queue, disp, logger, time.Now, maxConcurrency, metrics)

	return &Scheduler{
		reg:         reg,
		queue:       queue,
		disp:        disp,
		exec:        exec,
		metrics:     metrics,
		logger:      logger,
		gracePeriod: gracePeriod,
		rootCtx:     rootCtx,
		rootStop:    rootStop,
	}, nil
}

// Enqueue submits a work item. It is permitted before StartAsync; items
// wait in the queue and are drained once the scheduler starts.
//
// When dedupeByOperationKey is true and a non-terminal record already
// exists for operationKey, Enqueue returns its WorkId without invoking
// body (§4.D, P4). When false, a fresh WorkId is always created (§4.D).
func (s *Scheduler) Enqueue(kind WorkKind, operationKey string, body Body, dedupeByOperationKey bool) (string, error) {
	_, span := otel.Tracer(tracerName).Start(context.Background(), "backgroundwork.Enqueue")
	defer span.End()
	span.SetAttributes(
		attribute.String("work.operation_key", operationKey),
		attribute.String("work.kind", string(kind)),
	)

	if len(trimmedOrEmpty(operationKey)) == 0 {
		span.RecordError(errEmptyOperationKey())
		return "", errEmptyOperationKey()
	}

	var workId string
	var rec *record
	var created bool

	if dedupeByOperationKey {
		workId, rec, created = s.reg.tryRegister(operationKey, kind)
		if !created {
			s.metrics.observeDedupeJoin()
			span.SetAttributes(attribute.String("work.id", workId), attribute.Bool("work.deduped", true))
			return workId, nil
		}
	} else {
		workId, rec = s.reg.registerWithoutDedupe(operationKey, kind)
		created = true
	}

	span.SetAttributes(attribute.String("work.id", workId))
	s.metrics.observeEnqueue(kind)

	rec.mu.Lock()
	pendingSnap := rec.snapshot
	rec.mu.Unlock()
	s.disp.publish(pendingSnap)
	internallog.LogWorkEvent(s.logger, internallog.WorkEvent{
		WorkID:       pendingSnap.WorkId,
		OperationKey: pendingSnap.OperationKey,
		Kind:         string(pendingSnap.Kind),
		State:        string(pendingSnap.State),
	})

	if ok := s.queue.tryPush(submission{workId: workId, rec: rec, body: body}); !ok {
		// Roll back the registration: the record never ran, so it is
		// retired as Cancelled rather than left dangling in Pending with
		// no path to a terminal state.
		now := time.Now()
		_, snap, rollbackOK := s.reg.update(workId, func(snap Snapshot) Snapshot {
			snap.State = WorkStateCancelled
			snap.UpdatedAt = now
			return snap
		})
		if rollbackOK {
			s.disp.publish(snap)
		}
		s.reg.finalize(workId)
		err := errQueueFull(s.queueCapacityOrZero())
		span.RecordError(err)
		return "", err
	}
	s.metrics.setQueueDepth(s.queue.len())

	return workId, nil
}

func (s *Scheduler) queueCapacityOrZero() int {
	return s.queue.capacity
}

func trimmedOrEmpty(v string) string {
	return normalizedOperationKey(v)
}

// TryGet returns the current snapshot for workId, if known.
func (s *Scheduler) TryGet(workId string) (Snapshot, bool) {
	return s.reg.getSnapshot(workId)
}

// List returns a point-in-time copy of every tracked snapshot, ordered by
// UpdatedAt descending.
func (s *Scheduler) List() []Snapshot {
	return s.reg.list()
}

// Subscribe registers handler to observe every future committed
// snapshot. See dispatcher for ordering and isolation guarantees.
func (s *Scheduler) Subscribe(handler UpdateHandler) SubscriptionHandle {
	return s.disp.subscribe(handler)
}

// Unsubscribe removes a handler registered via Subscribe.
func (s *Scheduler) Unsubscribe(handle SubscriptionHandle) {
	s.disp.unsubscribe(handle)
}

// StartAsync idempotently starts the worker pool. Safe to call multiple
// times; only the first call has any effect.
func (s *Scheduler) StartAsync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	s.exec.start()
	return nil
}

// StopAsync idempotently stops the scheduler: it cancels every in-flight
// and pending work body, waits up to the configured grace period for
// bodies to honor cancellation, and forcibly marks any stragglers
// Cancelled. It returns once every terminal event has been published.
func (s *Scheduler) StopAsync(ctx context.Context) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.mu.Unlock()

	s.queue.close()

	// Pending -> Cancelled immediately for anything that never started.
	now := time.Now()
	for _, rec := range s.reg.nonTerminalRecords() {
		rec.mu.Lock()
		state := rec.snapshot.State
		rec.mu.Unlock()
		if state != WorkStatePending {
			continue
		}
		_, snap, ok := s.reg.update(rec.snapshot.WorkId, func(snap Snapshot) Snapshot {
			snap.State = WorkStateCancelled
			snap.UpdatedAt = now
			return snap
		})
		if ok {
			s.disp.publish(snap)
			s.metrics.observeTransition(snap)
			s.reg.finalize(snap.WorkId)
		}
	}

	// Running -> cancellation requested; the executor's own finish()
	// path will record the terminal transition once the body observes
	// ctx.Done() and returns.
	s.rootStop()

	graceTimer := time.NewTimer(s.gracePeriod)
	defer graceTimer.Stop()

	doneCh := make(chan struct{})
	go func() {
		s.exec.stop()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-graceTimer.C:
		// Bodies still running past the grace period are marked
		// Cancelled and Stop returns without waiting for them further:
		// a body that ignores its cancellation handle is a bug in the
		// body, and must not be allowed to block shutdown indefinitely.
		s.forceCancelStragglers()
	}

	return nil
}

// forceCancelStragglers marks every still-non-terminal record Cancelled
// after the shutdown grace period has elapsed, per §4.G: a body that
// ignores its cancellation handle must not block Stop forever.
func (s *Scheduler) forceCancelStragglers() {
	now := time.Now()
	for _, rec := range s.reg.nonTerminalRecords() {
		rec.mu.Lock()
		workId := rec.snapshot.WorkId
		rec.mu.Unlock()
		_, snap, ok := s.reg.update(workId, func(snap Snapshot) Snapshot {
			snap.State = WorkStateCancelled
			snap.UpdatedAt = now
			return snap
		})
		if ok {
			s.disp.publish(snap)
			s.metrics.observeTransition(snap)
			s.reg.finalize(workId)
			rec.markDone()
		}
	}
}

// ActiveCount reports the number of records not yet in a terminal state,
// mirroring the teacher's Runner.ActiveRunCount.
func (s *Scheduler) ActiveCount() int {
	return len(s.reg.nonTerminalRecords())
}

// IsDraining reports whether StopAsync has been called, mirroring
// Runner.IsDraining. It stays true after StopAsync has returned.
func (s *Scheduler) IsDraining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}
