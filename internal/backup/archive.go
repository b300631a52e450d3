package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Archiver stores exported backups and reads them back for import.
type Archiver interface {
	Put(ctx context.Context, name string, data []byte) (location string, err error)
	Get(ctx context.Context, location string) ([]byte, error)
}

// ObjectName is the archive path of a backup for owner taken at t.
func ObjectName(owner string, t time.Time) string {
	if owner == "" {
		owner = "local"
	}
	return path.Join("budgetsync", owner, t.UTC().Format("20060102T150405Z")+".json")
}

// FileArchiver keeps backups under a local directory.
type FileArchiver struct {
	Dir string
}

func (a FileArchiver) Put(_ context.Context, name string, data []byte) (string, error) {
	p := filepath.Join(a.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return "", fmt.Errorf("write backup %q: %w", p, err)
	}
	return p, nil
}

func (a FileArchiver) Get(_ context.Context, location string) ([]byte, error) {
	b, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("read backup %q: %w", location, err)
	}
	return b, nil
}

// GCSArchiver keeps backups in a Cloud Storage bucket. It uses Application
// Default Credentials.
type GCSArchiver struct {
	client *storage.Client
	bucket string
}

func NewGCSArchiver(ctx context.Context, bucket string) (*GCSArchiver, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("missing bucket name")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: bucket}, nil
}

func (a *GCSArchiver) Close() error {
	return a.client.Close()
}

// Put uploads data and returns its gs:// URI.
func (a *GCSArchiver) Put(ctx context.Context, name string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy backup to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}
	return "gs://" + a.bucket + "/" + name, nil
}

// Get downloads the object at a gs:// URI.
func (a *GCSArchiver) Get(ctx context.Context, location string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(location)
	if err != nil {
		return nil, err
	}
	r, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", location, err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	return b, nil
}

// ParseGCSURI splits gs://bucket/object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
