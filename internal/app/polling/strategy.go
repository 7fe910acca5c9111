package polling

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethyca/fides-sub009/internal/config"
	"github.com/ethyca/fides-sub009/internal/domain/dsr"
	"github.com/ethyca/fides-sub009/pkg/common/logger"
)

// ParamRequestIndex is the sub-request parameter key recording which
// async-capable read request spawned the sub-request, so continuation ticks
// can find the matching status/result templates.
const ParamRequestIndex = "request_index"

// AsyncPollingStrategy drives a task through the asynchronous polling
// protocol. Each invocation is one scheduling tick: the strategy derives the
// task's phase from persisted sub-request state, then either fires the
// triggering requests (initial phase) or polls open sub-requests and
// aggregates once all are terminal (continuation phase). Progress is
// persisted after each step so the protocol is safely resumable after a
// crash or scheduler restart.
type AsyncPollingStrategy struct {
	tasks       dsr.TaskRepository
	subRequests *SubRequestService
	attachments *AttachmentHandler
	overrides   *OverrideRegistry

	// timeoutDays is the hard ceiling on task suspension, passed explicitly
	// rather than read from ambient configuration.
	timeoutDays int

	logger *logger.Logger
	tracer trace.Tracer
}

// NewAsyncPollingStrategy returns a strategy with the necessary dependencies
// for executing access and erasure tasks against polling-based connectors.
func NewAsyncPollingStrategy(
	tasks dsr.TaskRepository,
	subRequests *SubRequestService,
	attachments *AttachmentHandler,
	overrides *OverrideRegistry,
	timeoutDays int,
	logger *logger.Logger,
	tracer trace.Tracer,
) *AsyncPollingStrategy {
	logger = logger.With("component", "async_polling_strategy")
	return &AsyncPollingStrategy{
		tasks:       tasks,
		subRequests: subRequests,
		attachments: attachments,
		overrides:   overrides,
		timeoutDays: timeoutDays,
		logger:      logger,
		tracer:      tracer,
	}
}

// RetrieveData executes one tick of an access task. It returns the aggregated
// rows when every sub-request is terminal, or dsr.ErrAwaitingProcessing to
// signal the scheduler to re-invoke on a later tick. Callers must not treat
// the suspension signal as failure.
func (s *AsyncPollingStrategy) RetrieveData(
	ctx context.Context,
	client AuthenticatedClient,
	taskID uuid.UUID,
	cfg *config.QueryConfig,
	inputRows []dsr.Row,
) ([]dsr.Row, error) {
	log := s.logger.With("operation", "retrieve_data", "task_id", taskID)
	ctx, span := s.tracer.Start(ctx, "async_polling_strategy.retrieve_data",
		trace.WithAttributes(
			attribute.String("task_id", taskID.String()),
			attribute.String("collection", cfg.CollectionName),
			attribute.Int("input_row_count", len(inputRows)),
		),
	)
	defer span.End()

	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get task (task_id: %s): %w", taskID, err)
	}

	// A re-invoked tick on an already-completed task re-issues nothing and
	// returns the same aggregate.
	if task.Status() == dsr.TaskStatusComplete {
		span.AddEvent("task_already_complete")
		return task.AccessResult(), nil
	}

	subs, err := s.subRequests.List(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list sub-requests (task_id: %s): %w", taskID, err)
	}

	phase := dsr.DerivePhase(subs)
	span.SetAttributes(attribute.String("phase", string(phase)))
	log.Debug(ctx, "Tick started", "phase", string(phase), "sub_request_count", len(subs))

	if phase == dsr.PhaseInitial {
		return s.beginAccess(ctx, client, task, cfg, inputRows)
	}

	// Continuation: the timeout ceiling is evaluated before any polling I/O
	// so a timed-out task fails fast without wasted external calls.
	if err := s.subRequests.CheckTimeout(ctx, task, s.timeoutDays); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "async polling timeout exceeded")
		return nil, err
	}

	if err := s.ensureInProgress(ctx, task); err != nil {
		return nil, err
	}

	if phase == dsr.PhasePolling {
		if err := s.pollOpenSubRequests(ctx, client, task, cfg, subs); err != nil {
			span.RecordError(err)
			return nil, err
		}

		subs, err = s.subRequests.List(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("failed to list sub-requests (task_id: %s): %w", taskID, err)
		}
		if dsr.DerivePhase(subs) != dsr.PhaseAggregation {
			return nil, s.suspend(ctx, task, subs)
		}
	}

	rows := aggregateRows(subs)
	if err := task.CompleteAccess(rows); err != nil {
		return nil, fmt.Errorf("failed to complete task (task_id: %s): %w", taskID, err)
	}
	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to persist task completion (task_id: %s): %w", taskID, err)
	}

	span.SetStatus(codes.Ok, "task completed")
	log.Info(ctx, "Access task completed", "row_count", len(rows))
	return rows, nil
}

// MaskData executes one tick of an erasure task. It returns the summed
// masked-row count on completion, or dsr.ErrAwaitingProcessing to suspend.
func (s *AsyncPollingStrategy) MaskData(
	ctx context.Context,
	client AuthenticatedClient,
	taskID uuid.UUID,
	cfg *config.QueryConfig,
	inputRows []dsr.Row,
) (int, error) {
	log := s.logger.With("operation", "mask_data", "task_id", taskID)
	ctx, span := s.tracer.Start(ctx, "async_polling_strategy.mask_data",
		trace.WithAttributes(
			attribute.String("task_id", taskID.String()),
			attribute.String("collection", cfg.CollectionName),
			attribute.Int("input_row_count", len(inputRows)),
		),
	)
	defer span.End()

	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get task (task_id: %s): %w", taskID, err)
	}

	if task.Status() == dsr.TaskStatusComplete {
		span.AddEvent("task_already_complete")
		return task.RowsMasked(), nil
	}

	subs, err := s.subRequests.List(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to list sub-requests (task_id: %s): %w", taskID, err)
	}

	phase := dsr.DerivePhase(subs)
	span.SetAttributes(attribute.String("phase", string(phase)))
	log.Debug(ctx, "Tick started", "phase", string(phase), "sub_request_count", len(subs))

	if phase == dsr.PhaseInitial {
		return s.beginErasure(ctx, client, task, cfg, inputRows)
	}

	if err := s.subRequests.CheckTimeout(ctx, task, s.timeoutDays); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "async polling timeout exceeded")
		return 0, err
	}

	if err := s.ensureInProgress(ctx, task); err != nil {
		return 0, err
	}

	if phase == dsr.PhasePolling {
		if err := s.pollOpenSubRequests(ctx, client, task, cfg, subs); err != nil {
			span.RecordError(err)
			return 0, err
		}

		subs, err = s.subRequests.List(ctx, taskID)
		if err != nil {
			return 0, fmt.Errorf("failed to list sub-requests (task_id: %s): %w", taskID, err)
		}
		if dsr.DerivePhase(subs) != dsr.PhaseAggregation {
			return 0, s.suspend(ctx, task, subs)
		}
	}

	total := 0
	for _, sr := range subs {
		if n := sr.RowsMasked(); n != nil {
			total += *n
		}
	}

	if err := task.CompleteErasure(total); err != nil {
		return 0, fmt.Errorf("failed to complete task (task_id: %s): %w", taskID, err)
	}
	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		return 0, fmt.Errorf("failed to persist task completion (task_id: %s): %w", taskID, err)
	}

	span.SetStatus(codes.Ok, "task completed")
	log.Info(ctx, "Erasure task completed", "rows_masked", total)
	return total, nil
}

// beginAccess runs the initial phase of an access task: send each
// async-capable read request (parameterized per input row), record the
// correlation identifier from each response, create one sub-request per sent
// request, then suspend.
func (s *AsyncPollingStrategy) beginAccess(
	ctx context.Context,
	client AuthenticatedClient,
	task *dsr.Task,
	cfg *config.QueryConfig,
	inputRows []dsr.Row,
) ([]dsr.Row, error) {
	asyncReads := cfg.AsyncReadRequests()

	// No async-capable read requests means there is nothing to trigger and
	// nothing to wait for: the task completes immediately with no rows.
	if len(asyncReads) == 0 {
		if err := s.completeEmpty(ctx, task); err != nil {
			return nil, err
		}
		s.logger.Info(ctx, "No async-capable read requests configured; task complete",
			"task_id", task.ID(), "collection", cfg.CollectionName)
		return []dsr.Row{}, nil
	}

	if err := s.ensureInProgress(ctx, task); err != nil {
		return nil, err
	}

	// Identity-only parameterization when the collection has no input rows.
	rowSets := inputRows
	if len(rowSets) == 0 {
		rowSets = []dsr.Row{nil}
	}

	seq := 0
	for idx, rr := range asyncReads {
		if rr.Request.CorrelationIDPath == "" {
			return nil, dsr.NewPrivacyRequestError(
				fmt.Sprintf("read request %d for collection %q has no correlation_id_path", idx, cfg.CollectionName), nil)
		}

		for _, row := range rowSets {
			values := mergeValues(cfg.IdentityData, row)

			resp, err := client.Send(ctx, BuildRequestParams(&rr.Request, values), false)
			if err != nil {
				return nil, fmt.Errorf("triggering request failed (task_id: %s): %w", task.ID(), err)
			}
			if !resp.OK() {
				return nil, fmt.Errorf("triggering request returned HTTP %d (task_id: %s)", resp.StatusCode, task.ID())
			}

			correlationID, err := ExtractCorrelationID(resp.Body, rr.Request.CorrelationIDPath)
			if err != nil {
				return nil, err
			}

			params := mergeValues(values)
			params[ParamRequestIndex] = idx
			params[dsr.ParamCorrelationID] = correlationID

			if _, err := s.subRequests.Create(ctx, task, seq, params); err != nil {
				return nil, err
			}
			seq++
		}
	}

	subs, err := s.subRequests.List(ctx, task.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to list sub-requests (task_id: %s): %w", task.ID(), err)
	}
	return nil, s.suspend(ctx, task, subs)
}

// beginErasure runs the initial phase of an erasure task: one masking request
// per input row. Erasure with no masking target is a caller error which
// reports as a PrivacyRequestError rather than a transient condition.
func (s *AsyncPollingStrategy) beginErasure(
	ctx context.Context,
	client AuthenticatedClient,
	task *dsr.Task,
	cfg *config.QueryConfig,
	inputRows []dsr.Row,
) (int, error) {
	if cfg.UpdateRequest == nil {
		return 0, dsr.NewPrivacyRequestError(
			fmt.Sprintf("collection %q has no masking request configured for erasure", cfg.CollectionName), nil)
	}
	if cfg.UpdateRequest.AsyncConfig == nil {
		return 0, dsr.NewPrivacyRequestError(
			fmt.Sprintf("masking request for collection %q is not async-capable", cfg.CollectionName), nil)
	}
	ur := cfg.UpdateRequest
	if ur.Request.CorrelationIDPath == "" {
		return 0, dsr.NewPrivacyRequestError(
			fmt.Sprintf("masking request for collection %q has no correlation_id_path", cfg.CollectionName), nil)
	}

	// No rows to erase: the task completes immediately in the initial phase
	// without raising the suspension signal.
	if len(inputRows) == 0 {
		if err := s.completeEmpty(ctx, task); err != nil {
			return 0, err
		}
		s.logger.Info(ctx, "No input rows to mask; task complete",
			"task_id", task.ID(), "collection", cfg.CollectionName)
		return 0, nil
	}

	if err := s.ensureInProgress(ctx, task); err != nil {
		return 0, err
	}

	for seq, row := range inputRows {
		values := mergeValues(cfg.IdentityData, row)

		resp, err := client.Send(ctx, BuildRequestParams(&ur.Request, values), false)
		if err != nil {
			return 0, fmt.Errorf("masking request failed (task_id: %s): %w", task.ID(), err)
		}
		if !resp.OK() {
			return 0, fmt.Errorf("masking request returned HTTP %d (task_id: %s)", resp.StatusCode, task.ID())
		}

		correlationID, err := ExtractCorrelationID(resp.Body, ur.Request.CorrelationIDPath)
		if err != nil {
			return 0, err
		}

		params := mergeValues(values)
		params[ParamRequestIndex] = 0
		params[dsr.ParamCorrelationID] = correlationID

		if _, err := s.subRequests.Create(ctx, task, seq, params); err != nil {
			return 0, err
		}
	}

	subs, err := s.subRequests.List(ctx, task.ID())
	if err != nil {
		return 0, fmt.Errorf("failed to list sub-requests (task_id: %s): %w", task.ID(), err)
	}
	return 0, s.suspend(ctx, task, subs)
}

// pollOpenSubRequests performs one polling pass over the task's non-terminal
// sub-requests, in stable creation order. A sub-request found complete has
// its result fetched and stored before it is marked terminal; a sub-request
// whose check fails is marked ERROR before the error is re-raised so partial
// progress on other sub-requests is never lost.
func (s *AsyncPollingStrategy) pollOpenSubRequests(
	ctx context.Context,
	client AuthenticatedClient,
	task *dsr.Task,
	cfg *config.QueryConfig,
	subs []*dsr.SubRequest,
) error {
	for _, sr := range subs {
		// Terminal sub-requests are never re-polled.
		if sr.Status().IsTerminal() {
			continue
		}

		ac, err := s.asyncConfigFor(task, cfg, sr)
		if err != nil {
			return err
		}

		checker, err := NewStatusChecker(ac.StatusRequest, s.overrides)
		if err != nil {
			return err
		}

		done, err := checker.Done(ctx, client, sr.Params())
		if err != nil {
			return s.failSubRequest(ctx, sr, fmt.Errorf("status check failed (sub_request_id: %s): %w", sr.ID(), err))
		}
		if !done {
			s.logger.Debug(ctx, "Sub-request still pending",
				"task_id", task.ID(), "sub_request_id", sr.ID())
			continue
		}

		switch task.ActionType() {
		case dsr.ActionTypeErasure:
			// Completion records a masked-row count of 1; erasure never
			// stores row data.
			if err := sr.MarkCompleteMasked(1); err != nil {
				return fmt.Errorf("failed to mark sub-request complete (sub_request_id: %s): %w", sr.ID(), err)
			}

		default:
			fetcher, err := NewResultFetcher(ac.ResultRequest, s.overrides)
			if err != nil {
				return err
			}
			if fetcher == nil {
				return dsr.NewPrivacyRequestError(
					fmt.Sprintf("async config for collection %q has no result_request", cfg.CollectionName), nil)
			}

			result, err := fetcher.Fetch(ctx, client, sr.Params())
			if err != nil {
				return s.failSubRequest(ctx, sr, fmt.Errorf("result fetch failed (sub_request_id: %s): %w", sr.ID(), err))
			}

			rows, err := s.resultRows(ctx, task, sr, result)
			if err != nil {
				return s.failSubRequest(ctx, sr, err)
			}
			if err := sr.MarkComplete(rows); err != nil {
				return fmt.Errorf("failed to mark sub-request complete (sub_request_id: %s): %w", sr.ID(), err)
			}
		}

		if err := s.subRequests.Update(ctx, sr); err != nil {
			return fmt.Errorf("failed to persist sub-request (sub_request_id: %s): %w", sr.ID(), err)
		}
		s.logger.Info(ctx, "Sub-request complete",
			"task_id", task.ID(), "sub_request_id", sr.ID())
	}

	return nil
}

// resultRows converts a polling result into the rows stored on the
// sub-request, persisting attachment payloads through the attachment handler.
func (s *AsyncPollingStrategy) resultRows(ctx context.Context, task *dsr.Task, sr *dsr.SubRequest, result *PollingResult) ([]dsr.Row, error) {
	if result == nil {
		// Absence of data on a completed sub-request is not a failure.
		s.logger.Info(ctx, "Sub-request completed with no result",
			"task_id", task.ID(), "sub_request_id", sr.ID())
		return nil, nil
	}

	if result.ResultType == ResultTypeAttachment {
		id, err := s.attachments.Store(ctx, task, result.Attachment, result.Metadata.FileName)
		if err != nil {
			return nil, err
		}
		return s.attachments.Annotate(id, result.Metadata.FileName, nil), nil
	}

	return result.Rows, nil
}

// failSubRequest records the failure on the sub-request before re-raising so
// the error stays visible in aggregated diagnostics while the tick fails.
func (s *AsyncPollingStrategy) failSubRequest(ctx context.Context, sr *dsr.SubRequest, cause error) error {
	s.logger.Error(ctx, "Sub-request check failed",
		"sub_request_id", sr.ID(), "error", cause)

	if err := sr.MarkError(cause.Error()); err != nil {
		return fmt.Errorf("failed to mark sub-request errored (sub_request_id: %s): %w", sr.ID(), cause)
	}
	if err := s.subRequests.Update(ctx, sr); err != nil {
		return fmt.Errorf("failed to persist sub-request error (sub_request_id: %s): %w", sr.ID(), cause)
	}
	return cause
}

// suspend transitions the task to AWAITING_PROCESSING (if not already there)
// and returns the suspension signal: "come back later" expressed to the
// scheduler without blocking a thread.
func (s *AsyncPollingStrategy) suspend(ctx context.Context, task *dsr.Task, subs []*dsr.SubRequest) error {
	if task.Status() != dsr.TaskStatusAwaitingProcessing {
		if err := task.AwaitProcessing(); err != nil {
			return fmt.Errorf("failed to suspend task (task_id: %s): %w", task.ID(), err)
		}
		if err := s.tasks.UpdateTask(ctx, task); err != nil {
			return fmt.Errorf("failed to persist task suspension (task_id: %s): %w", task.ID(), err)
		}
	}

	open := 0
	for _, sr := range subs {
		if !sr.Status().IsTerminal() {
			open++
		}
	}
	s.logger.Info(ctx, "Task suspended awaiting async processing",
		"task_id", task.ID(), "open_sub_requests", open, "total_sub_requests", len(subs))
	return dsr.ErrAwaitingProcessing
}

// ensureInProgress moves a pending or suspended task into IN_PROGRESS for
// the duration of the tick.
func (s *AsyncPollingStrategy) ensureInProgress(ctx context.Context, task *dsr.Task) error {
	switch task.Status() {
	case dsr.TaskStatusPending:
		if err := task.Start(); err != nil {
			return fmt.Errorf("failed to start task (task_id: %s): %w", task.ID(), err)
		}
	case dsr.TaskStatusAwaitingProcessing:
		if err := task.Resume(); err != nil {
			return fmt.Errorf("failed to resume task (task_id: %s): %w", task.ID(), err)
		}
	default:
		return nil
	}
	return s.tasks.UpdateTask(ctx, task)
}

// completeEmpty finishes a task that never had anything to wait for.
func (s *AsyncPollingStrategy) completeEmpty(ctx context.Context, task *dsr.Task) error {
	if err := s.ensureInProgress(ctx, task); err != nil {
		return err
	}

	var err error
	if task.ActionType() == dsr.ActionTypeErasure {
		err = task.CompleteErasure(0)
	} else {
		err = task.CompleteAccess([]dsr.Row{})
	}
	if err != nil {
		return fmt.Errorf("failed to complete task (task_id: %s): %w", task.ID(), err)
	}
	return s.tasks.UpdateTask(ctx, task)
}

// asyncConfigFor resolves the async templates that apply to a sub-request.
func (s *AsyncPollingStrategy) asyncConfigFor(task *dsr.Task, cfg *config.QueryConfig, sr *dsr.SubRequest) (*config.AsyncConfig, error) {
	if task.ActionType() == dsr.ActionTypeErasure {
		if cfg.UpdateRequest == nil || cfg.UpdateRequest.AsyncConfig == nil {
			return nil, dsr.NewPrivacyRequestError(
				fmt.Sprintf("collection %q has no async masking request", cfg.CollectionName), nil)
		}
		return cfg.UpdateRequest.AsyncConfig, nil
	}

	asyncReads := cfg.AsyncReadRequests()
	idx := requestIndex(sr.Params())
	if idx < 0 || idx >= len(asyncReads) {
		return nil, dsr.NewPrivacyRequestError(
			fmt.Sprintf("sub-request %s references read request %d which is not configured", sr.ID(), idx), nil)
	}
	return asyncReads[idx].AsyncConfig, nil
}

// requestIndex reads the read-request index from a parameter map, tolerating
// the numeric widening a JSON round-trip through storage introduces.
func requestIndex(params map[string]any) int {
	switch v := params[ParamRequestIndex].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		i, _ := v.Int64()
		return int(i)
	default:
		return 0
	}
}

// aggregateRows merges completed sub-request results in creation order into
// a fresh row list. Attachment references found inline in rows are lifted
// out and merged into a single list on the first aggregated row, so a
// logical record spanning attachment and metadata rows is bookkept once.
// Stored sub-request results are never mutated.
func aggregateRows(subs []*dsr.SubRequest) []dsr.Row {
	var out []dsr.Row
	var refs []dsr.AttachmentRef

	for _, sr := range subs {
		for _, row := range sr.Rows() {
			copied := make(dsr.Row, len(row))
			for k, v := range row {
				if k == dsr.RetrievedAttachmentsKey {
					refs = append(refs, attachmentRefs(v)...)
					continue
				}
				copied[k] = v
			}
			out = append(out, copied)
		}
	}

	if len(refs) > 0 {
		if len(out) == 0 {
			out = []dsr.Row{{}}
		}
		out[0][dsr.RetrievedAttachmentsKey] = refs
	}
	return out
}

// attachmentRefs normalizes a retrieved_attachments value, whether it is the
// in-memory typed form or the generic form a JSON round-trip produces.
func attachmentRefs(v any) []dsr.AttachmentRef {
	switch refs := v.(type) {
	case []dsr.AttachmentRef:
		return refs
	case []any:
		out := make([]dsr.AttachmentRef, 0, len(refs))
		for _, e := range refs {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			ref := dsr.AttachmentRef{}
			if id, ok := m["id"].(string); ok {
				ref.ID = id
			}
			if fn, ok := m["file_name"].(string); ok {
				ref.FileName = fn
			}
			out = append(out, ref)
		}
		return out
	default:
		return nil
	}
}
