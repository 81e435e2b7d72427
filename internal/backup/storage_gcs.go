package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSMirror replicates artifact files to a Google Cloud Storage bucket
type GCSMirror struct {
	client     *storage.Client
	bucketName string
	prefix     string
}

// NewGCSMirror creates a GCS mirror. Without a credentials file the
// application default credentials are used.
func NewGCSMirror(ctx context.Context, config *GCSConfig, prefix string) (*GCSMirror, error) {
	if config == nil {
		return nil, NewValidationError("GCS mirror configuration is required", nil)
	}

	var opts []option.ClientOption
	if config.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}
	if config.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(config.ProjectID))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, NewStorageError("failed to create GCS client", err)
	}

	return &GCSMirror{
		client:     client,
		bucketName: config.Bucket,
		prefix:     prefix,
	}, nil
}

// Name identifies the mirror in logs
func (m *GCSMirror) Name() string {
	return "gcs"
}

// Upload streams the artifact file at localPath into the bucket
func (m *GCSMirror) Upload(ctx context.Context, localPath, name string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", NewStorageError("failed to open artifact for GCS upload", err)
	}
	defer file.Close()

	objectName := mirrorKey(m.prefix, name)
	writer := m.client.Bucket(m.bucketName).Object(objectName).NewWriter(ctx)
	writer.ContentType = contentTypeFor(name)

	if _, err := io.Copy(writer, file); err != nil {
		writer.Close()
		return "", NewStorageError("failed to write artifact to GCS", err)
	}
	if err := writer.Close(); err != nil {
		return "", NewStorageError("failed to upload artifact to GCS", err)
	}

	return fmt.Sprintf("gs://%s/%s", m.bucketName, objectName), nil
}

// Delete removes the mirrored copy of name
func (m *GCSMirror) Delete(ctx context.Context, name string) error {
	err := m.client.Bucket(m.bucketName).Object(mirrorKey(m.prefix, name)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return NewStorageError("failed to delete artifact from GCS", err)
	}
	return nil
}

// Close releases the GCS client
func (m *GCSMirror) Close() error {
	return m.client.Close()
}
