package events

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

const objectCreatedEvent = "s3:ObjectCreated:*"

// TemplateEvent reports a template object created under the watched prefix.
type TemplateEvent struct {
	TemplateID string
	ObjectKey  string
	EventName  string
}

type TemplateEventSource interface {
	Run(ctx context.Context, handler func(context.Context, TemplateEvent) error) error
}

type MinioTemplateEventSource struct {
	client *minio.Client
	bucket string
	prefix string
	suffix string
	logger *slog.Logger
}

func NewMinioTemplateEventSource(client *minio.Client, bucket, prefix, suffix string, logger *slog.Logger) *MinioTemplateEventSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &MinioTemplateEventSource{
		client: client,
		bucket: bucket,
		prefix: prefix,
		suffix: suffix,
		logger: logger,
	}
}

func (s *MinioTemplateEventSource) Run(ctx context.Context, handler func(context.Context, TemplateEvent) error) error {
	notificationCh := s.client.ListenBucketNotification(ctx, s.bucket, s.prefix, s.suffix, []string{objectCreatedEvent})
	for {
		select {
		case <-ctx.Done():
			return nil
		case info, ok := <-notificationCh:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream closed")
			}
			if info.Err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream error: %w", info.Err)
			}
			for _, record := range info.Records {
				objectKey, err := decodeObjectKey(record.S3.Object.Key)
				if err != nil {
					s.logger.Warn("events.bad_key", "key", record.S3.Object.Key, "error", err)
					continue
				}
				templateID, err := parseObjectKey(objectKey, s.prefix, s.suffix)
				if err != nil {
					s.logger.Debug("events.skipped", "key", objectKey, "reason", err.Error())
					continue
				}
				event := TemplateEvent{
					TemplateID: templateID,
					ObjectKey:  objectKey,
					EventName:  record.EventName,
				}
				if err := handler(ctx, event); err != nil {
					return err
				}
			}
		}
	}
}

func decodeObjectKey(encoded string) (string, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", err
	}
	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return "", fmt.Errorf("object key is empty")
	}
	return decoded, nil
}

// parseObjectKey expects <prefix><uuid><suffix> and returns the uuid.
func parseObjectKey(objectKey, prefix, suffix string) (string, error) {
	cleaned := strings.TrimLeft(strings.ReplaceAll(objectKey, "\\", "/"), "/")
	if !strings.HasPrefix(cleaned, prefix) || !strings.HasSuffix(cleaned, suffix) {
		return "", fmt.Errorf("object key %q is outside %s*%s", objectKey, prefix, suffix)
	}
	id := strings.TrimSuffix(strings.TrimPrefix(cleaned, prefix), suffix)
	if strings.Contains(id, "/") {
		return "", fmt.Errorf("object key %q is nested below %s", objectKey, prefix)
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("object key %q does not carry a template id", objectKey)
	}
	return id, nil
}
