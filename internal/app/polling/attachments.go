package polling

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethyca/fides-sub009/internal/domain/dsr"
	"github.com/ethyca/fides-sub009/pkg/common/logger"
)

// AttachmentHandler persists binary results retrieved mid-poll as durable
// attachments and stamps reference metadata back onto result rows.
type AttachmentHandler struct {
	store dsr.AttachmentStore

	logger *logger.Logger
	tracer trace.Tracer
}

// NewAttachmentHandler creates an AttachmentHandler backed by the given store.
func NewAttachmentHandler(store dsr.AttachmentStore, logger *logger.Logger, tracer trace.Tracer) *AttachmentHandler {
	return &AttachmentHandler{
		store:  store,
		logger: logger.With("component", "attachment_handler"),
		tracer: tracer,
	}
}

// Store persists the blob and returns its durable identifier. Persistence
// failure surfaces as a PrivacyRequestError wrapping the storage error:
// losing a DSR attachment is a compliance-relevant data-loss event and must
// not be swallowed.
func (h *AttachmentHandler) Store(ctx context.Context, task *dsr.Task, data []byte, fileName string) (uuid.UUID, error) {
	ctx, span := h.tracer.Start(ctx, "attachment_handler.store",
		trace.WithAttributes(
			attribute.String("task_id", task.ID().String()),
			attribute.String("file_name", fileName),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	id := uuid.New()
	if err := h.store.Store(ctx, id, fileName, data); err != nil {
		span.RecordError(err)
		return uuid.Nil, dsr.NewPrivacyRequestError("failed to persist attachment", err)
	}

	h.logger.Info(ctx, "Attachment stored",
		"task_id", task.ID(), "attachment_id", id, "file_name", fileName, "size_bytes", len(data))
	return id, nil
}

// Annotate returns a new row list with a retrieved_attachments metadata entry
// referencing the stored attachment. The input rows are never mutated so a
// re-run of the enclosing tick stays idempotent by construction. With no
// input rows, a single new row carrying only the reference is produced.
func (h *AttachmentHandler) Annotate(attachmentID uuid.UUID, fileName string, rows []dsr.Row) []dsr.Row {
	ref := dsr.AttachmentRef{ID: attachmentID.String(), FileName: fileName}

	if len(rows) == 0 {
		return []dsr.Row{{dsr.RetrievedAttachmentsKey: []dsr.AttachmentRef{ref}}}
	}

	out := make([]dsr.Row, len(rows))
	for i, row := range rows {
		copied := make(dsr.Row, len(row)+1)
		for k, v := range row {
			copied[k] = v
		}
		if i == 0 {
			existing, _ := copied[dsr.RetrievedAttachmentsKey].([]dsr.AttachmentRef)
			copied[dsr.RetrievedAttachmentsKey] = append(existing, ref)
		}
		out[i] = copied
	}
	return out
}
