// Package s3blob stores recorded audio in an S3-compatible bucket. Objects
// are keyed by clip ID, so re-recording a clip overwrites the previous take
// and the clip's audio URL never changes.
package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"

	"github.com/recitalhq/recital-api/internal/config"
	"github.com/recitalhq/recital-api/internal/platform/logger"
	"github.com/recitalhq/recital-api/internal/store"
)

// defaultKeyPrefix is used when the configuration leaves the prefix empty.
const defaultKeyPrefix = "recordings"

// audioExtension is fixed: captures arrive as WebM/Opus from every client.
const audioExtension = ".webm"

// RecordingStore persists recorded takes and serves them back for
// verification. It implements the audio side of the upload coordinator and
// the task package's AudioFetcher.
type RecordingStore struct {
	client        s3iface.S3API
	bucket        string
	keyPrefix     string
	publicBaseURL string
	logger        *slog.Logger
}

// NewRecordingStore builds a RecordingStore from configuration, creating the
// S3 session itself. Credentials come from the standard AWS chain (env vars,
// shared config, instance role).
func NewRecordingStore(cfg config.StorageConfig, log *slog.Logger) (*RecordingStore, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		// Custom endpoints (MinIO and friends) need path-style addressing.
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage session: %w", err)
	}

	return NewRecordingStoreWithClient(s3.New(sess), cfg, log), nil
}

// NewRecordingStoreWithClient builds a RecordingStore around an existing S3
// client. Tests use this with a fake client.
func NewRecordingStoreWithClient(client s3iface.S3API, cfg config.StorageConfig, log *slog.Logger) *RecordingStore {
	if log == nil {
		log = slog.Default()
	}

	prefix := strings.Trim(cfg.KeyPrefix, "/")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase == "" {
		if cfg.Endpoint != "" {
			publicBase = fmt.Sprintf("%s/%s", strings.TrimRight(cfg.Endpoint, "/"), cfg.Bucket)
		} else {
			publicBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}

	return &RecordingStore{
		client:        client,
		bucket:        cfg.Bucket,
		keyPrefix:     prefix,
		publicBaseURL: publicBase,
		logger:        log.With(slog.String("component", "recording_store")),
	}
}

// Key returns the object key for a clip's recording. The key is a pure
// function of the clip ID, which is what makes uploads idempotent.
func (s *RecordingStore) Key(clipID uuid.UUID) string {
	return fmt.Sprintf("%s/%s%s", s.keyPrefix, clipID, audioExtension)
}

// URL returns the public URL of a clip's recording.
func (s *RecordingStore) URL(clipID uuid.UUID) string {
	return fmt.Sprintf("%s/%s", s.publicBaseURL, s.Key(clipID))
}

// Save uploads a recording, replacing any previous take for the same clip,
// and returns the public URL of the stored object.
func (s *RecordingStore) Save(ctx context.Context, clipID uuid.UUID, audio []byte, contentType string) (string, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(audio) == 0 {
		return "", fmt.Errorf("refusing to store empty recording for clip %s", clipID)
	}
	if contentType == "" {
		contentType = "audio/webm"
	}

	key := s.Key(clipID)
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(audio),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		log.Error("failed to store recording",
			slog.String("error", err.Error()),
			slog.String("clip_id", clipID.String()),
			slog.String("key", key))
		return "", fmt.Errorf("failed to store recording: %w", err)
	}

	log.Info("recording stored",
		slog.String("clip_id", clipID.String()),
		slog.String("key", key),
		slog.Int("size_bytes", len(audio)))
	return s.URL(clipID), nil
}

// Fetch downloads a clip's stored recording. It returns store.ErrNotFound
// wrapped when the object does not exist.
func (s *RecordingStore) Fetch(ctx context.Context, clipID uuid.UUID) ([]byte, string, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	key := s.Key(clipID)
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, "", fmt.Errorf("%w: no recording stored for clip %s", store.ErrNotFound, clipID)
		}
		log.Error("failed to fetch recording",
			slog.String("error", err.Error()),
			slog.String("clip_id", clipID.String()))
		return nil, "", fmt.Errorf("failed to fetch recording: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	audio, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read recording body: %w", err)
	}

	contentType := "audio/webm"
	if out.ContentType != nil && *out.ContentType != "" {
		contentType = *out.ContentType
	}

	return audio, contentType, nil
}

// Delete removes a clip's stored recording. Missing objects are not an error.
func (s *RecordingStore) Delete(ctx context.Context, clipID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	key := s.Key(clipID)
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNoSuchKey(err) {
		log.Error("failed to delete recording",
			slog.String("error", err.Error()),
			slog.String("clip_id", clipID.String()))
		return fmt.Errorf("failed to delete recording: %w", err)
	}

	return nil
}

func isNoSuchKey(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}
