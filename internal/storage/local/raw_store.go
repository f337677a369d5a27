// Package local implements a filesystem raw envelope store.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/job-harvester/internal/crawler"
	"github.com/JakeFAU/job-harvester/internal/hash/sha256"
)

// Config captures the parameters for the filesystem raw store.
type Config struct {
	// BaseDir is the root directory where envelopes are written.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// RawStore writes one JSON file per source URL, sharded by digest prefix.
type RawStore struct {
	baseDir string
}

// New creates the base directory if needed and checks it is writable.
func New(cfg Config) (*RawStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}
	return &RawStore{baseDir: cfg.BaseDir}, nil
}

// Path returns the file used for sourceURL.
func (s *RawStore) Path(sourceURL string) string {
	sum := sha256.Sum(sourceURL)
	return filepath.Join(s.baseDir, sum[:2], sum+".json")
}

// Exists reports whether a file for sourceURL is present.
func (s *RawStore) Exists(_ context.Context, sourceURL string) (bool, error) {
	_, err := os.Stat(s.Path(sourceURL))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat raw file: %w", err)
}

// Insert creates the file exclusively; an existing file means another writer
// won and nothing is written.
func (s *RawStore) Insert(_ context.Context, envelope crawler.RawEnvelope) (bool, error) {
	if strings.TrimSpace(envelope.SourceURL) == "" {
		return false, fmt.Errorf("source url is required")
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return false, fmt.Errorf("marshal envelope: %w", err)
	}
	full := s.Path(envelope.SourceURL)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return false, fmt.Errorf("failed to create parent directories: %w", err)
	}
	// #nosec G304 -- path is derived from a hex digest under baseDir.
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return false, fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("failed to close file: %w", err)
	}
	return true, nil
}
