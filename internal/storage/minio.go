package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"template-docgen/internal/domain"
)

const (
	TemplatePrefix = "templates/"
	OutputPrefix   = "outputs/"
	TemplateSuffix = ".docx"
	docxMIME       = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// MinioStore keeps uploaded templates and generated documents in one bucket.
// Template ids are uuids; the object key is templates/<id>.docx.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

func (m *MinioStore) Client() *minio.Client { return m.client }

func (m *MinioStore) Bucket() string { return m.bucket }

// Put stores template bytes under a fresh id.
func (m *MinioStore) Put(ctx context.Context, content []byte) (string, error) {
	id := uuid.NewString()
	if err := m.putObject(ctx, TemplateKey(id), content); err != nil {
		return "", fmt.Errorf("store template: %w", err)
	}
	return id, nil
}

// Get returns domain.ErrNotFound when no template has the id.
func (m *MinioStore) Get(ctx context.Context, id string) ([]byte, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("template %q: %w", id, domain.ErrNotFound)
	}
	b, err := m.getObject(ctx, TemplateKey(id))
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", id, err)
	}
	return b, nil
}

// PutOutput stores a generated document and returns its object key.
func (m *MinioStore) PutOutput(ctx context.Context, name string, content []byte) (string, error) {
	key := OutputPrefix + path.Base(name)
	if !strings.HasSuffix(key, TemplateSuffix) {
		key += TemplateSuffix
	}
	if err := m.putObject(ctx, key, content); err != nil {
		return "", fmt.Errorf("store output: %w", err)
	}
	return key, nil
}

// GetOutput reads a generated document by the key PutOutput returned.
func (m *MinioStore) GetOutput(ctx context.Context, key string) ([]byte, error) {
	if !strings.HasPrefix(key, OutputPrefix) {
		return nil, fmt.Errorf("output %q: %w", key, domain.ErrNotFound)
	}
	return m.getObject(ctx, key)
}

func TemplateKey(id string) string {
	return TemplatePrefix + id + TemplateSuffix
}

// TemplateIDFromKey reverses TemplateKey; ok is false for keys outside templates/.
func TemplateIDFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, TemplatePrefix) || !strings.HasSuffix(key, TemplateSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, TemplatePrefix), TemplateSuffix)
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

func (m *MinioStore) putObject(ctx context.Context, key string, content []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: docxMIME,
	})
	return err
}

func (m *MinioStore) getObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioError(err)
	}
	defer obj.Close()

	data := new(bytes.Buffer)
	if _, err := data.ReadFrom(obj); err != nil {
		return nil, mapMinioError(fmt.Errorf("read object: %w", err))
	}
	return data.Bytes(), nil
}

func mapMinioError(err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && (resp.Code == "NoSuchKey" || resp.StatusCode == 404) {
		return domain.ErrNotFound
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return domain.ErrNotFound
	}
	return err
}
