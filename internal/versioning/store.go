// Package versioning keeps bounded, diffable histories of named content
// streams and reports captures and reverts to an event recorder.
package versioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
	"github.com/tjfontaine/polyglot-telemetry/internal/core/ports"
	"github.com/tjfontaine/polyglot-telemetry/internal/metrics"
)

const tracerName = "github.com/tjfontaine/polyglot-telemetry/internal/versioning"

// DefaultMaxVersions is the per-stream history cap.
const DefaultMaxVersions = 20

// CaptureRequest describes one snapshot to capture.
type CaptureRequest struct {
	ContentType string         `json:"contentType"`
	ContentRef  string         `json:"contentRef"`
	Content     string         `json:"content"`
	EventType   string         `json:"eventType"`
	Summary     string         `json:"summary"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (r CaptureRequest) validate() error {
	if r.ContentRef == "" {
		return fmt.Errorf("%w: content ref is required", domain.ErrInvalidVersion)
	}
	if r.ContentType == "" {
		return fmt.Errorf("%w: content type is required", domain.ErrInvalidVersion)
	}
	return nil
}

// Option configures a Store.
type Option func(*Store)

// WithMaxVersions sets the per-stream history cap. Non-positive values keep the default.
func WithMaxVersions(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxVersions = n
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source for record timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator sets the version id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// Store captures versions into a VersionStorage.
type Store struct {
	storage     ports.VersionStorage
	recorder    ports.EventRecorder
	contexts    *domain.ContextHolder
	maxVersions int
	logger      *slog.Logger
	clock       func() time.Time
	newID       func() string
	tracer      trace.Tracer
	locks       *keyedMutex
}

// New creates a store. recorder receives audit events and may be nil;
// contexts supplies the committer id and may be nil.
func New(storage ports.VersionStorage, recorder ports.EventRecorder, contexts *domain.ContextHolder, opts ...Option) *Store {
	if contexts == nil {
		contexts = domain.NewContextHolder(domain.GlobalContext{})
	}
	s := &Store{
		storage:     storage,
		recorder:    recorder,
		contexts:    contexts,
		maxVersions: DefaultMaxVersions,
		logger:      slog.Default(),
		clock:       time.Now,
		newID:       NewVersionID,
		tracer:      otel.Tracer(tracerName),
		locks:       newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "versioning"))
	return s
}

// NewVersionID returns a unique version id of the form ver_<nanoid>.
func NewVersionID() string {
	return "ver_" + gonanoid.Must()
}

// MaxVersions returns the per-stream history cap.
func (s *Store) MaxVersions() int { return s.maxVersions }

// CaptureVersion snapshots req.Content as the newest version of req.ContentRef.
// The record, its content and any evictions are committed together; on error
// nothing is persisted and no audit event is emitted.
func (s *Store) CaptureVersion(ctx context.Context, req CaptureRequest) (*domain.VersionRecord, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "versioning.capture", trace.WithAttributes(
		attribute.String("telemetry.content_ref", req.ContentRef),
		attribute.String("telemetry.content_type", req.ContentType),
	))
	defer span.End()

	rec, evicted, err := s.capture(ctx, req)
	if err != nil {
		metrics.IncCaptureFailure()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("capture version failed",
			slog.String("content_ref", req.ContentRef),
			slog.String("error", err.Error()))
		return nil, err
	}
	span.SetAttributes(attribute.String("telemetry.version_id", rec.VersionID))

	metrics.IncCaptured(rec.ContentType)
	metrics.AddEvicted(evicted)
	s.logger.Debug("version captured",
		slog.String("version_id", rec.VersionID),
		slog.String("content_ref", rec.ContentRef),
		slog.Int("sequence", rec.Sequence),
		slog.Int("evicted", evicted))

	s.audit(domain.InteractionVersionCaptured, map[string]any{
		"versionId":   rec.VersionID,
		"contentRef":  rec.ContentRef,
		"contentType": rec.ContentType,
		"summary":     rec.Summary,
	})

	return rec.Clone(), nil
}

func (s *Store) capture(ctx context.Context, req CaptureRequest) (*domain.VersionRecord, int, error) {
	unlock := s.locks.Lock(req.ContentRef)
	defer unlock()

	history, err := s.storage.ListVersions(ctx, req.ContentRef)
	if err != nil {
		return nil, 0, fmt.Errorf("list versions: %w", err)
	}

	rec := &domain.VersionRecord{
		VersionID:   s.newID(),
		Sequence:    1,
		Timestamp:   s.clock(),
		CommitterID: s.contexts.Snapshot().UserID,
		EventType:   req.EventType,
		ContentType: req.ContentType,
		ContentRef:  req.ContentRef,
		Summary:     req.Summary,
		Metadata:    maps.Clone(req.Metadata),
	}
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]any)
	}
	delete(rec.Metadata, domain.MetadataPreviousVersionID)

	if len(history) > 0 {
		prev := history[0]
		rec.Sequence = prev.Sequence + 1
		rec.Metadata[domain.MetadataPreviousVersionID] = prev.VersionID
		// Newest first must hold even when the clock does not advance.
		if !rec.Timestamp.After(prev.Timestamp) {
			rec.Timestamp = prev.Timestamp.Add(time.Nanosecond)
		}

		prevContent, err := s.storage.GetContent(ctx, prev.VersionID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, 0, fmt.Errorf("load previous content: %w", err)
		}
		rec.Diff, err = UnifiedDiff(prevContent, req.Content, prev.Sequence, rec.Sequence)
		if err != nil {
			return nil, 0, fmt.Errorf("diff against %s: %w", prev.VersionID, err)
		}
	}
	if len(rec.Metadata) == 0 {
		rec.Metadata = nil
	}

	var evict []string
	if keep := s.maxVersions - 1; len(history) > keep {
		for _, old := range history[keep:] {
			evict = append(evict, old.VersionID)
		}
	}

	if err := s.storage.Commit(ctx, domain.VersionCommit{Record: rec, Content: req.Content, Evict: evict}); err != nil {
		return nil, 0, fmt.Errorf("commit version: %w", err)
	}
	return rec, len(evict), nil
}

// GetVersions returns the history of contentRef, newest first. A stream that
// was never captured yields an empty slice.
func (s *Store) GetVersions(ctx context.Context, contentRef string) ([]*domain.VersionRecord, error) {
	recs, err := s.storage.ListVersions(ctx, contentRef)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	if recs == nil {
		recs = []*domain.VersionRecord{}
	}
	return recs, nil
}

// GetAllVersions returns the records of every stream, newest first by timestamp.
func (s *Store) GetAllVersions(ctx context.Context) ([]*domain.VersionRecord, error) {
	recs, err := s.storage.ListAllVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all versions: %w", err)
	}
	if recs == nil {
		recs = []*domain.VersionRecord{}
	}
	return recs, nil
}

// GetVersionContent returns the content captured for versionID or domain.ErrNotFound.
func (s *Store) GetVersionContent(ctx context.Context, versionID string) (string, error) {
	return s.storage.GetContent(ctx, versionID)
}

// RevertToVersion returns the content captured for versionID and records the
// revert. History is not modified; capture the content again to make the
// reverted state the newest version.
func (s *Store) RevertToVersion(ctx context.Context, versionID string) (string, error) {
	content, err := s.storage.GetContent(ctx, versionID)
	if err != nil {
		return "", err
	}

	metrics.IncRevert()
	s.logger.Debug("version reverted", slog.String("version_id", versionID))
	s.audit(domain.InteractionRevertToVersion, map[string]any{
		"versionId": versionID,
	})
	return content, nil
}

// GenerateDiff renders a preview diff between two arbitrary contents.
func (s *Store) GenerateDiff(oldContent, newContent string) string {
	return GenerateDiff(oldContent, newContent)
}

func (s *Store) audit(interaction string, data map[string]any) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordEvent(domain.EventInput{
		EventType:       domain.EventTypeSystemAction,
		InteractionType: interaction,
		Outcome:         domain.OutcomeSuccess,
		CustomData:      data,
	})
}
