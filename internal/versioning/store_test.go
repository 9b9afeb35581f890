package versioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
	"github.com/tjfontaine/polyglot-telemetry/internal/storage/memory"
)

type fakeRecorder struct {
	mu     sync.Mutex
	events []domain.EventInput
}

func (f *fakeRecorder) RecordEvent(in domain.EventInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, in)
}

func (f *fakeRecorder) interactions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.InteractionType)
	}
	return out
}

// steppingClock advances one second per call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newTestStore(opts ...Option) (*Store, *fakeRecorder) {
	rec := &fakeRecorder{}
	holder := domain.NewContextHolder(domain.GlobalContext{UserID: "user-7"})
	opts = append([]Option{WithClock(steppingClock())}, opts...)
	return New(memory.New(), rec, holder, opts...), rec
}

func capture(t *testing.T, s *Store, ref, content string) *domain.VersionRecord {
	t.Helper()
	rec, err := s.CaptureVersion(context.Background(), CaptureRequest{
		ContentType: "document",
		ContentRef:  ref,
		Content:     content,
		EventType:   "edit",
		Summary:     "edit " + ref,
	})
	if err != nil {
		t.Fatalf("CaptureVersion(%s) error = %v", ref, err)
	}
	return rec
}

func TestCaptureVersion_TwoVersions(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestStore()

	first := capture(t, s, "doc", "x")
	second := capture(t, s, "doc", "x\ny")

	versions, err := s.GetVersions(ctx, "doc")
	if err != nil {
		t.Fatalf("GetVersions() error = %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("len(GetVersions()) = %d, want 2", len(versions))
	}
	if versions[0].VersionID != second.VersionID || versions[1].VersionID != first.VersionID {
		t.Errorf("order = [%s %s], want [%s %s]", versions[0].VersionID, versions[1].VersionID, second.VersionID, first.VersionID)
	}
	if !strings.Contains(versions[0].Diff, "\n+y") {
		t.Errorf("Diff = %q, want an added line for y", versions[0].Diff)
	}
	if !strings.HasPrefix(versions[0].Diff, "--- v1\n+++ v2\n") {
		t.Errorf("Diff header = %q, want v1/v2 labels", versions[0].Diff)
	}
	if first.Diff != "" {
		t.Errorf("first Diff = %q, want empty", first.Diff)
	}

	content, err := s.GetVersionContent(ctx, first.VersionID)
	if err != nil {
		t.Fatalf("GetVersionContent() error = %v", err)
	}
	if content != "x" {
		t.Errorf("GetVersionContent() = %q, want %q", content, "x")
	}

	if got := first.PreviousVersionID(); got != "" {
		t.Errorf("first PreviousVersionID() = %q, want empty", got)
	}
	if got := second.PreviousVersionID(); got != first.VersionID {
		t.Errorf("second PreviousVersionID() = %q, want %q", got, first.VersionID)
	}
	if second.Sequence != 2 || second.CommitterID != "user-7" {
		t.Errorf("second = seq %d committer %q, want 2 user-7", second.Sequence, second.CommitterID)
	}
	if !strings.HasPrefix(second.VersionID, "ver_") {
		t.Errorf("VersionID = %q, want ver_ prefix", second.VersionID)
	}

	if got := rec.interactions(); len(got) != 2 || got[0] != domain.InteractionVersionCaptured {
		t.Fatalf("audit events = %v, want two version_captured", got)
	}
	audit := rec.events[1]
	if audit.EventType != domain.EventTypeSystemAction {
		t.Errorf("audit EventType = %v, want system_action", audit.EventType)
	}
	if audit.CustomData["versionId"] != second.VersionID || audit.CustomData["contentRef"] != "doc" {
		t.Errorf("audit CustomData = %v", audit.CustomData)
	}
}

func TestCaptureVersion_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(WithMaxVersions(5))

	var ids []string
	for i := 0; i < 6; i++ {
		ids = append(ids, capture(t, s, "doc", fmt.Sprintf("rev %d", i)).VersionID)
	}

	versions, _ := s.GetVersions(ctx, "doc")
	if len(versions) != 5 {
		t.Fatalf("len(GetVersions()) = %d, want 5", len(versions))
	}
	if versions[4].VersionID != ids[1] {
		t.Errorf("oldest kept = %s, want %s", versions[4].VersionID, ids[1])
	}
	if _, err := s.GetVersionContent(ctx, ids[0]); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetVersionContent(evicted) error = %v, want ErrNotFound", err)
	}
	if versions[0].Sequence != 6 {
		t.Errorf("newest Sequence = %d, want 6", versions[0].Sequence)
	}
}

func TestCaptureVersion_DefaultCap(t *testing.T) {
	s, _ := newTestStore()
	for i := 0; i <= DefaultMaxVersions; i++ {
		capture(t, s, "doc", fmt.Sprint(i))
	}
	versions, _ := s.GetVersions(context.Background(), "doc")
	if len(versions) != DefaultMaxVersions {
		t.Errorf("len(GetVersions()) = %d, want %d", len(versions), DefaultMaxVersions)
	}
}

func TestRevertToVersion_ReadOnly(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestStore()

	original := "line one\n\tline two\n"
	first := capture(t, s, "doc", original)
	capture(t, s, "doc", "replaced")

	before, _ := s.GetVersions(ctx, "doc")
	content, err := s.RevertToVersion(ctx, first.VersionID)
	if err != nil {
		t.Fatalf("RevertToVersion() error = %v", err)
	}
	if content != original {
		t.Errorf("RevertToVersion() = %q, want %q", content, original)
	}
	after, _ := s.GetVersions(ctx, "doc")
	if len(after) != len(before) {
		t.Errorf("history length = %d, want %d", len(after), len(before))
	}

	got := rec.interactions()
	if got[len(got)-1] != domain.InteractionRevertToVersion {
		t.Errorf("last audit event = %s, want revert_to_version", got[len(got)-1])
	}

	if _, err := s.RevertToVersion(ctx, "ver_missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("RevertToVersion(missing) error = %v, want ErrNotFound", err)
	}
	if n := len(rec.interactions()); n != len(got) {
		t.Errorf("audit events after failed revert = %d, want %d", n, len(got))
	}
}

func TestGetAllVersions_MergedNewestFirst(t *testing.T) {
	s, _ := newTestStore()

	capture(t, s, "a", "1")
	capture(t, s, "b", "1")
	capture(t, s, "a", "2")
	capture(t, s, "c", "1")

	all, err := s.GetAllVersions(context.Background())
	if err != nil {
		t.Fatalf("GetAllVersions() error = %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len(GetAllVersions()) = %d, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if !all[i-1].Timestamp.After(all[i].Timestamp) {
			t.Errorf("records %d and %d not strictly descending", i-1, i)
		}
	}
	if all[0].ContentRef != "c" || all[3].ContentRef != "a" {
		t.Errorf("refs = %s..%s, want c..a", all[0].ContentRef, all[3].ContentRef)
	}
}

func TestGetVersions_Unknown(t *testing.T) {
	s, _ := newTestStore()
	versions, err := s.GetVersions(context.Background(), "never")
	if err != nil {
		t.Fatalf("GetVersions() error = %v", err)
	}
	if versions == nil || len(versions) != 0 {
		t.Errorf("GetVersions() = %v, want empty slice", versions)
	}
}

func TestCaptureVersion_StorageExhausted(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{}
	s := New(memory.New(memory.WithQuota(4)), rec, nil)

	if _, err := s.CaptureVersion(ctx, CaptureRequest{ContentType: "t", ContentRef: "doc", Content: "1234"}); err != nil {
		t.Fatalf("CaptureVersion() error = %v", err)
	}
	got, err := s.CaptureVersion(ctx, CaptureRequest{ContentType: "t", ContentRef: "doc", Content: "5"})
	if !errors.Is(err, domain.ErrStorageExhausted) {
		t.Fatalf("CaptureVersion() error = %v, want ErrStorageExhausted", err)
	}
	if got != nil {
		t.Errorf("CaptureVersion() = %+v, want nil", got)
	}
	versions, _ := s.GetVersions(ctx, "doc")
	if len(versions) != 1 {
		t.Errorf("len(GetVersions()) = %d, want 1", len(versions))
	}
	if n := len(rec.interactions()); n != 1 {
		t.Errorf("audit events = %d, want 1", n)
	}
}

func TestCaptureVersion_Validation(t *testing.T) {
	s, _ := newTestStore()
	tests := []struct {
		name string
		req  CaptureRequest
	}{
		{"missing ref", CaptureRequest{ContentType: "t"}},
		{"missing type", CaptureRequest{ContentRef: "doc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CaptureVersion(context.Background(), tt.req); !errors.Is(err, domain.ErrInvalidVersion) {
				t.Errorf("CaptureVersion() error = %v, want ErrInvalidVersion", err)
			}
		})
	}
}

func TestCaptureVersion_MetadataPreserved(t *testing.T) {
	s, _ := newTestStore()
	meta := map[string]any{"source": "editor", domain.MetadataPreviousVersionID: "spoofed"}

	first, err := s.CaptureVersion(context.Background(), CaptureRequest{
		ContentType: "t", ContentRef: "doc", Content: "a", Metadata: meta,
	})
	if err != nil {
		t.Fatalf("CaptureVersion() error = %v", err)
	}
	if first.Metadata["source"] != "editor" {
		t.Errorf("Metadata[source] = %v, want editor", first.Metadata["source"])
	}
	if first.PreviousVersionID() != "" {
		t.Errorf("PreviousVersionID() = %q, want empty", first.PreviousVersionID())
	}
	if meta[domain.MetadataPreviousVersionID] != "spoofed" {
		t.Error("caller metadata was modified")
	}
}

func TestCaptureVersion_SameTimestampStaysOrdered(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s := New(memory.New(), nil, nil, WithClock(func() time.Time { return fixed }))

	a := capture(t, s, "doc", "1")
	b := capture(t, s, "doc", "2")
	if !b.Timestamp.After(a.Timestamp) {
		t.Errorf("second Timestamp %v not after first %v", b.Timestamp, a.Timestamp)
	}
}

func TestCaptureVersion_ConcurrentSameRef(t *testing.T) {
	s := New(memory.New(), nil, nil, WithMaxVersions(100))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.CaptureVersion(context.Background(), CaptureRequest{
				ContentType: "t", ContentRef: "doc", Content: fmt.Sprint(i),
			})
		}(i)
	}
	wg.Wait()

	versions, _ := s.GetVersions(context.Background(), "doc")
	if len(versions) != 20 {
		t.Fatalf("len(GetVersions()) = %d, want 20", len(versions))
	}
	// Each record links to the one below it.
	for i := 0; i < len(versions)-1; i++ {
		if versions[i].PreviousVersionID() != versions[i+1].VersionID {
			t.Fatalf("record %d links to %s, want %s", i, versions[i].PreviousVersionID(), versions[i+1].VersionID)
		}
		if versions[i].Sequence != versions[i+1].Sequence+1 {
			t.Fatalf("record %d sequence %d, want %d", i, versions[i].Sequence, versions[i+1].Sequence+1)
		}
	}
	if n := s.locks.size(); n != 0 {
		t.Errorf("lingering locks = %d, want 0", n)
	}
}
