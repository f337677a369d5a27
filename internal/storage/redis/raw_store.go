// Package redis provides a raw envelope store backed by Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/job-harvester/internal/crawler"
	"github.com/JakeFAU/job-harvester/internal/hash/sha256"
)

const defaultPrefix = "harvester:raw:"

// Config configures the Redis raw store.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL of zero keeps envelopes forever.
	TTL time.Duration
}

type client interface {
	Exists(ctx context.Context, keys ...string) *goredis.IntCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
	Close() error
}

// RawStore keeps one JSON value per hashed source URL.
type RawStore struct {
	client client
	prefix string
	ttl    time.Duration
}

// New dials Redis using cfg.
func New(cfg Config) (*RawStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newWithClient(rdb, cfg), nil
}

func newWithClient(c client, cfg Config) *RawStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RawStore{client: c, prefix: prefix, ttl: cfg.TTL}
}

// Close closes the Redis client.
func (s *RawStore) Close() error {
	return s.client.Close()
}

func (s *RawStore) key(sourceURL string) string {
	return sha256.Key(s.prefix, sourceURL)
}

// Exists reports whether an envelope for sourceURL is stored.
func (s *RawStore) Exists(ctx context.Context, sourceURL string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(sourceURL)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n == 1, nil
}

// Insert stores the envelope with SETNX and reports whether it was written.
func (s *RawStore) Insert(ctx context.Context, envelope crawler.RawEnvelope) (bool, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return false, fmt.Errorf("marshal envelope: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(envelope.SourceURL), payload, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}
