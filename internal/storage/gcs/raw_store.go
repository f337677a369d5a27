// Package gcs provides a raw envelope store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/JakeFAU/job-harvester/internal/crawler"
	"github.com/JakeFAU/job-harvester/internal/hash/sha256"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// RawStore writes one JSON object per source URL. Objects are created with a
// does-not-exist precondition so concurrent writers never overwrite.
type RawStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed raw store.
func New(client *storage.Client, cfg Config) (*RawStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "raw"
	}
	return &RawStore{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// ObjectName returns the object path used for sourceURL.
func (s *RawStore) ObjectName(sourceURL string) string {
	return path.Join(s.prefix, sha256.Sum(sourceURL)+".json")
}

// Exists reports whether an object for sourceURL is present.
func (s *RawStore) Exists(ctx context.Context, sourceURL string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(s.ObjectName(sourceURL)).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat raw object: %w", err)
	}
	return true, nil
}

// Insert uploads the envelope unless the object already exists.
func (s *RawStore) Insert(ctx context.Context, envelope crawler.RawEnvelope) (bool, error) {
	if strings.TrimSpace(envelope.SourceURL) == "" {
		return false, fmt.Errorf("source url is required")
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return false, fmt.Errorf("marshal envelope: %w", err)
	}
	obj := s.client.Bucket(s.bucket).Object(s.ObjectName(envelope.SourceURL))
	writer := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.Metadata = map[string]string{
		"source_url": envelope.SourceURL,
		"platform":   string(envelope.Platform),
	}
	if _, err := writer.Write(payload); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return false, fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return false, fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return false, nil
		}
		return false, fmt.Errorf("close writer: %w", err)
	}
	return true, nil
}
