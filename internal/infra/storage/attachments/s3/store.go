// Package s3 stores DSR attachment blobs in S3-compatible object storage.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethyca/fides-sub009/internal/domain/dsr"
	"github.com/ethyca/fides-sub009/pkg/common/logger"
)

// Config holds the connection settings for the attachment bucket. Endpoint
// is optional and supports S3-compatible providers; when set, path-style
// addressing is used.
type Config struct {
	Region   string
	Bucket   string
	KeyID    string
	Secret   string
	Endpoint string
	Prefix   string
}

// Ensure Store implements dsr.AttachmentStore at compile time.
var _ dsr.AttachmentStore = (*Store)(nil)

// Store persists attachment blobs as S3 objects keyed by attachment ID. The
// file name travels as object metadata so a retrieved blob keeps its
// original name.
type Store struct {
	client *s3.Client
	bucket string
	prefix string

	logger *logger.Logger
	tracer trace.Tracer
}

// NewStore creates an attachment store backed by the configured bucket.
func NewStore(cfg Config, log *logger.Logger, tracer trace.Tracer) *Store {
	opts := s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.KeyID, cfg.Secret, "",
		),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return &Store{
		client: s3.New(opts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: log.With("component", "s3_attachment_store", "bucket", cfg.Bucket),
		tracer: tracer,
	}
}

// Store uploads the blob under the attachment's identifier.
func (s *Store) Store(ctx context.Context, id uuid.UUID, fileName string, data []byte) error {
	key := s.objectKey(id)
	ctx, span := s.tracer.Start(ctx, "s3_attachment_store.store",
		trace.WithAttributes(
			attribute.String("attachment_id", id.String()),
			attribute.String("s3.key", key),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(data),
		Metadata: map[string]string{"file-name": fileName},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "put object failed")
		return fmt.Errorf("failed to store attachment %s: %w", id, err)
	}

	s.logger.Info(ctx, "Attachment stored", "attachment_id", id, "file_name", fileName, "size_bytes", len(data))
	return nil
}

// Get downloads a previously stored blob.
func (s *Store) Get(ctx context.Context, id uuid.UUID) ([]byte, error) {
	key := s.objectKey(id)
	ctx, span := s.tracer.Start(ctx, "s3_attachment_store.get",
		trace.WithAttributes(
			attribute.String("attachment_id", id.String()),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get object failed")
		return nil, fmt.Errorf("failed to get attachment %s: %w", id, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read attachment %s: %w", id, err)
	}
	return data, nil
}

func (s *Store) objectKey(id uuid.UUID) string {
	if s.prefix == "" {
		return id.String()
	}
	return s.prefix + "/" + id.String()
}
