package polling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethyca/fides-sub009/internal/domain/dsr"
	"github.com/ethyca/fides-sub009/pkg/common/logger"
	"github.com/ethyca/fides-sub009/pkg/common/timeutil"
)

// SubRequestService creates, queries, and checks timeout/completion of the
// asynchronous sub-requests tied to one logical task.
type SubRequestService struct {
	repo dsr.SubRequestRepository

	timeProvider timeutil.Provider

	logger *logger.Logger
	tracer trace.Tracer
}

// SubRequestServiceOption defines functional options for the service.
type SubRequestServiceOption func(*SubRequestService)

// WithTimeProvider sets a custom time provider, used to make the timeout
// ceiling testable without waiting out real days.
func WithTimeProvider(tp timeutil.Provider) SubRequestServiceOption {
	return func(s *SubRequestService) { s.timeProvider = tp }
}

// NewSubRequestService creates a SubRequestService with the necessary
// dependencies.
func NewSubRequestService(
	repo dsr.SubRequestRepository,
	logger *logger.Logger,
	tracer trace.Tracer,
	opts ...SubRequestServiceOption,
) *SubRequestService {
	logger = logger.With("component", "sub_request_service")
	svc := &SubRequestService{
		repo:         repo,
		timeProvider: timeutil.Default(),
		logger:       logger,
		tracer:       tracer,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// Create persists a new pending sub-request under the given task. No
// uniqueness constraint is enforced beyond the owning task; duplicate
// parameter maps are permitted since each triggering call gets its own
// sub-request.
func (s *SubRequestService) Create(ctx context.Context, task *dsr.Task, seq int, params map[string]any) (*dsr.SubRequest, error) {
	ctx, span := s.tracer.Start(ctx, "sub_request_service.create",
		trace.WithAttributes(
			attribute.String("task_id", task.ID().String()),
			attribute.Int("seq", seq),
		),
	)
	defer span.End()

	sr := dsr.NewSubRequest(task.ID(), seq, params)
	if err := s.repo.CreateSubRequest(ctx, sr); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create sub-request (task_id: %s): %w", task.ID(), err)
	}

	s.logger.Debug(ctx, "Sub-request created",
		"task_id", task.ID(), "sub_request_id", sr.ID(), "seq", seq)
	return sr, nil
}

// List retrieves the task's sub-requests in stable creation order.
func (s *SubRequestService) List(ctx context.Context, taskID uuid.UUID) ([]*dsr.SubRequest, error) {
	return s.repo.ListSubRequests(ctx, taskID)
}

// Update persists changes to an existing sub-request.
func (s *SubRequestService) Update(ctx context.Context, sr *dsr.SubRequest) error {
	return s.repo.UpdateSubRequest(ctx, sr)
}

// CheckTimeout computes elapsed time since the task entered its async phase
// (the oldest open sub-request's creation, falling back to the task start)
// and fails with AsyncTimeoutError if it exceeds timeoutDays. This is the
// only hard ceiling on how long a task may remain suspended: external systems
// may simply never respond, and the engine must not wait forever.
func (s *SubRequestService) CheckTimeout(ctx context.Context, task *dsr.Task, timeoutDays int) error {
	subs, err := s.repo.ListSubRequests(ctx, task.ID())
	if err != nil {
		return fmt.Errorf("failed to list sub-requests (task_id: %s): %w", task.ID(), err)
	}

	// The clock runs from the oldest still-open sub-request, falling back to
	// the task timeline start before any sub-requests exist.
	var epoch time.Time
	for _, sr := range subs {
		if sr.Status().IsTerminal() {
			continue
		}
		if epoch.IsZero() || sr.CreatedAt().Before(epoch) {
			epoch = sr.CreatedAt()
		}
	}
	if epoch.IsZero() {
		epoch = task.StartTime()
	}

	limit := time.Duration(timeoutDays) * 24 * time.Hour
	elapsed := s.timeProvider.Now().Sub(epoch)
	if elapsed > limit {
		s.logger.Warn(ctx, "Task exceeded async polling timeout",
			"task_id", task.ID(), "elapsed", elapsed.String(), "limit", limit.String())
		return &dsr.AsyncTimeoutError{TaskID: task.ID(), Elapsed: elapsed, Limit: limit}
	}

	return nil
}

// CheckCompletion returns true iff every sub-request under the task is in a
// terminal state. It is the sole gate for leaving the continuation phase.
func (s *SubRequestService) CheckCompletion(ctx context.Context, taskID uuid.UUID) (bool, error) {
	subs, err := s.repo.ListSubRequests(ctx, taskID)
	if err != nil {
		return false, fmt.Errorf("failed to list sub-requests (task_id: %s): %w", taskID, err)
	}

	for _, sr := range subs {
		if !sr.Status().IsTerminal() {
			return false, nil
		}
	}
	return true, nil
}
