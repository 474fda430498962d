package checkpoints

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Mirror copies a written checkpoint file somewhere durable and returns
// where it went
type Mirror interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// GCSConfig names the bucket checkpoints are mirrored to
type GCSConfig struct {
	Bucket      string `mapstructure:"bucket"`
	Prefix      string `mapstructure:"prefix"`
	Credentials string `mapstructure:"credentials"`
}

// GCSMirror uploads checkpoint files to Google Cloud Storage under
// gs://{bucket}/{prefix}/{file name}
type GCSMirror struct {
	client *storage.Client
	bucket string
	prefix string

	// newWriter opens the object writer; replaced in tests
	newWriter func(ctx context.Context, object string) io.WriteCloser
}

// NewGCSMirror creates a storage client. An empty credentials path uses
// application default credentials.
func NewGCSMirror(ctx context.Context, cfg GCSConfig) (*GCSMirror, error) {
	var opts []option.ClientOption
	if cfg.Credentials != "" {
		if _, err := os.Stat(cfg.Credentials); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", cfg.Credentials)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	m := &GCSMirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}
	m.newWriter = m.objectWriter
	return m, nil
}

func (m *GCSMirror) objectWriter(ctx context.Context, object string) io.WriteCloser {
	writer := m.client.Bucket(m.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	writer.CacheControl = "no-cache, no-store, must-revalidate"
	return writer
}

// ObjectName returns the object a local file is mirrored to
func (m *GCSMirror) ObjectName(localPath string) string {
	return path.Join(m.prefix, filepath.Base(localPath))
}

// Upload copies localPath to the bucket, replacing an existing object
func (m *GCSMirror) Upload(ctx context.Context, localPath string) (string, error) {
	localFile, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open the local file: %s: %w", localPath, err)
	}
	defer localFile.Close()

	object := m.ObjectName(localPath)
	writer := m.newWriter(ctx, object)

	if _, err := io.Copy(writer, localFile); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to copy local file %s to GCS object %s: %w", localPath, object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", m.bucket, object), nil
}

// Close releases the storage client
func (m *GCSMirror) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}
