package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
	"github.com/tjfontaine/polyglot-telemetry/internal/core/ports"
)

// Store is an in-memory implementation of ports.VersionStorage.
// Records are kept per content ref, newest first; blobs are kept by version id.
type Store struct {
	mu      sync.RWMutex
	streams map[string][]*domain.VersionRecord
	blobs   map[string]string
	used    int64
	quota   int64
}

var _ ports.VersionStorage = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithQuota caps the total bytes of stored content. Commits that would exceed
// it fail with domain.ErrStorageExhausted. Zero means unlimited.
func WithQuota(bytes int64) Option {
	return func(s *Store) {
		s.quota = bytes
	}
}

// New creates a new in-memory store
func New(opts ...Option) *Store {
	s := &Store{
		streams: make(map[string][]*domain.VersionRecord),
		blobs:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ListVersions(ctx context.Context, contentRef string) ([]*domain.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[contentRef]
	out := make([]*domain.VersionRecord, 0, len(stream))
	for _, rec := range stream {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (s *Store) ListAllVersions(ctx context.Context) ([]*domain.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.VersionRecord
	for _, stream := range s.streams {
		for _, rec := range stream {
			out = append(out, rec.Clone())
		}
	}
	slices.SortStableFunc(out, func(a, b *domain.VersionRecord) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if out == nil {
		out = []*domain.VersionRecord{}
	}
	return out, nil
}

func (s *Store) GetContent(ctx context.Context, versionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.blobs[versionID]
	if !ok {
		return "", fmt.Errorf("version %s: %w", versionID, domain.ErrNotFound)
	}
	return content, nil
}

func (s *Store) Commit(ctx context.Context, c domain.VersionCommit) error {
	if c.Record == nil {
		return fmt.Errorf("commit: record is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ref := c.Record.ContentRef
	if _, exists := s.blobs[c.Record.VersionID]; exists {
		return fmt.Errorf("version %s already exists", c.Record.VersionID)
	}

	evict := make(map[string]bool, len(c.Evict))
	var freed int64
	for _, id := range c.Evict {
		evict[id] = true
		if content, ok := s.blobs[id]; ok {
			freed += int64(len(content))
		}
	}

	used := s.used - freed + int64(len(c.Content))
	if s.quota > 0 && used > s.quota {
		return fmt.Errorf("commit %s (%d of %d bytes): %w", c.Record.VersionID, used, s.quota, domain.ErrStorageExhausted)
	}

	stream := make([]*domain.VersionRecord, 0, len(s.streams[ref])+1)
	stream = append(stream, c.Record.Clone())
	for _, rec := range s.streams[ref] {
		if !evict[rec.VersionID] {
			stream = append(stream, rec)
		}
	}
	for id := range evict {
		delete(s.blobs, id)
	}
	s.streams[ref] = stream
	s.blobs[c.Record.VersionID] = c.Content
	s.used = used
	return nil
}

// Usage returns the number of content bytes currently stored.
func (s *Store) Usage() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

func (s *Store) Close() error {
	return nil
}
