// Package testutil holds helpers shared by tests that talk to a collector.
package testutil

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"
)

// CollectorCassette returns an HTTP client that replays
// testdata/fixtures/<name>.yaml. Setting VCR_MODE=record records against the
// real collector instead. The recorder is stopped when the test ends.
func CollectorCassette(t *testing.T, name string) *http.Client {
	t.Helper()

	mode := recorder.ModeReplaying
	if os.Getenv("VCR_MODE") == "record" {
		mode = recorder.ModeRecording
	}

	r, err := recorder.NewAsMode(filepath.Join("testdata", "fixtures", name), mode, nil)
	if err != nil {
		t.Fatalf("Failed to create VCR recorder: %v", err)
	}
	r.SkipRequestLatency = true

	// Batches carry generated ids and timestamps, so bodies are not matched.
	r.SetMatcher(func(r *http.Request, i cassette.Request) bool {
		return r.Method == i.Method &&
			r.URL.String() == i.URL &&
			r.Header.Get("Content-Type") == firstHeader(i.Headers, "Content-Type")
	})

	t.Cleanup(func() {
		if err := r.Stop(); err != nil {
			t.Errorf("Failed to stop VCR recorder: %v", err)
		}
	})

	return &http.Client{Transport: r}
}

func firstHeader(h http.Header, key string) string {
	if h == nil {
		return ""
	}
	return h.Get(key)
}
