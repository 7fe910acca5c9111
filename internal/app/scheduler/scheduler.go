// Package scheduler drives suspended tasks forward on a cron cadence. Each
// tick re-invokes the polling strategy for every task parked in
// AWAITING_PROCESSING, with bounded parallelism across distinct tasks.
package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ethyca/fides-sub009/internal/domain/dsr"
	"github.com/ethyca/fides-sub009/pkg/common/logger"
)

// TaskRunner executes one tick of a task. Implementations return
// dsr.ErrAwaitingProcessing when the task should stay suspended.
type TaskRunner interface {
	RunTask(ctx context.Context, task *dsr.Task) error
}

// Scheduler lists suspended tasks on each cron tick and hands them to the
// runner. A task is never scheduled concurrently with itself, even when a
// slow tick overlaps the next one.
type Scheduler struct {
	tasks   dsr.TaskRepository
	checker dsr.RequestChecker
	runner  TaskRunner

	cron        *cron.Cron
	spec        string
	concurrency int

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}

	publisher dsr.DomainEventPublisher

	logger *logger.Logger
	tracer trace.Tracer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithEventPublisher installs a publisher for task lifecycle events.
func WithEventPublisher(p dsr.DomainEventPublisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// New creates a Scheduler that fires on the given cron spec (for example
// "@every 30s") and runs at most concurrency tasks in parallel per tick.
func New(
	tasks dsr.TaskRepository,
	checker dsr.RequestChecker,
	runner TaskRunner,
	spec string,
	concurrency int,
	log *logger.Logger,
	tracer trace.Tracer,
	opts ...Option,
) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	s := &Scheduler{
		tasks:       tasks,
		checker:     checker,
		runner:      runner,
		cron:        cron.New(),
		spec:        spec,
		concurrency: concurrency,
		inFlight:    make(map[uuid.UUID]struct{}),
		logger:      log.With("component", "scheduler"),
		tracer:      tracer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the tick job and begins firing. It returns immediately;
// ticks run on the cron's goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Tick(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info(ctx, "Scheduler started", "spec", s.spec, "concurrency", s.concurrency)
	return nil
}

// Stop halts the cron and waits for any in-progress tick to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

// Tick runs one scheduling pass: list suspended tasks, skip cancelled ones,
// and re-invoke the runner for the rest. Exposed so the worker can trigger an
// immediate pass on startup.
func (s *Scheduler) Tick(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	suspended, err := s.tasks.ListTasksByStatus(ctx, dsr.TaskStatusAwaitingProcessing)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list suspended tasks")
		s.logger.Error(ctx, "Failed to list suspended tasks", "error", err)
		return
	}
	span.SetAttributes(attribute.Int("suspended_task_count", len(suspended)))
	if len(suspended) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, task := range suspended {
		task := task
		if !s.acquire(task.ID()) {
			continue
		}
		g.Go(func() error {
			defer s.release(task.ID())
			s.runOne(gctx, task)
			return nil
		})
	}
	_ = g.Wait()
}

// runOne executes a single task tick and applies the outcome to the task's
// persisted state. Suspension is not a failure; everything else terminal is.
func (s *Scheduler) runOne(ctx context.Context, task *dsr.Task) {
	log := s.logger.With("task_id", task.ID(), "collection", task.CollectionName(), "action_type", string(task.ActionType()))

	cancelled, err := s.checker.IsCancelled(ctx, task.PrivacyRequestID())
	if err != nil {
		log.Error(ctx, "Failed to check privacy request status", "error", err)
		return
	}
	if cancelled {
		log.Info(ctx, "Skipping task for cancelled privacy request",
			"privacy_request_id", task.PrivacyRequestID())
		return
	}

	err = s.runner.RunTask(ctx, task)
	switch {
	case err == nil:
		log.Info(ctx, "Task completed")
		s.publishCompleted(ctx, task.ID(), log)
	case errors.Is(err, dsr.ErrAwaitingProcessing):
		log.Debug(ctx, "Task still awaiting async processing")
		s.publish(ctx, dsr.NewTaskSuspendedEvent(task.ID(), task.PrivacyRequestID()), log)
	default:
		log.Error(ctx, "Task tick failed", "error", err)
		s.failTask(ctx, task.ID(), log)
		s.publishFailed(ctx, task.ID(), err, log)
	}
}

// publishCompleted reloads the task so the event carries final counts rather
// than the pre-tick snapshot.
func (s *Scheduler) publishCompleted(ctx context.Context, taskID uuid.UUID, log *logger.Logger) {
	if s.publisher == nil {
		return
	}
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		log.Error(ctx, "Failed to load task for completion event", "error", err)
		return
	}
	s.publish(ctx, dsr.NewTaskCompletedEvent(task, len(task.AccessResult()), task.RowsMasked()), log)
}

func (s *Scheduler) publishFailed(ctx context.Context, taskID uuid.UUID, cause error, log *logger.Logger) {
	if s.publisher == nil {
		return
	}
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		log.Error(ctx, "Failed to load task for failure event", "error", err)
		return
	}
	s.publish(ctx, dsr.NewTaskFailedEvent(task, cause.Error()), log)
}

func (s *Scheduler) publish(ctx context.Context, event dsr.DomainEvent, log *logger.Logger) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishDomainEvent(ctx, event); err != nil {
		log.Error(ctx, "Failed to publish domain event", "event_type", event.EventType(), "error", err)
	}
}

// failTask transitions the task to its terminal ERROR state using fresh
// repository state, since the runner may have advanced the task mid-tick.
func (s *Scheduler) failTask(ctx context.Context, taskID uuid.UUID, log *logger.Logger) {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		log.Error(ctx, "Failed to load task for failure marking", "error", err)
		return
	}
	if task.Status().IsTerminal() {
		return
	}
	if err := task.Fail(); err != nil {
		log.Error(ctx, "Failed to transition task to error", "error", err)
		return
	}
	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		log.Error(ctx, "Failed to persist task failure", "error", err)
	}
}

func (s *Scheduler) acquire(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}
