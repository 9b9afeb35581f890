package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tjfontaine/polyglot-telemetry/internal/storage/sqldb"
	"github.com/tjfontaine/polyglot-telemetry/internal/versioning"
)

func TestDiffCmd(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.txt")
	newPath := filepath.Join(dir, "new.txt")
	if err := os.WriteFile(oldPath, []byte("a\nb"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newPath, []byte("a\nc"), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cmd := newDiffCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{oldPath, newPath})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got, want := out.String(), " a\n-b\n+c\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestDiffCmd_MissingFile(t *testing.T) {
	cmd := newDiffCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"/nonexistent/a", "/nonexistent/b"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestHistoryCmd(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "versions.db")
	store, err := sqldb.NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	versions := versioning.New(store, nil, nil)
	ctx := context.Background()
	for _, content := range []string{"x", "x\ny"} {
		if _, err := versions.CaptureVersion(ctx, versioning.CaptureRequest{
			ContentType: "doc", ContentRef: "doc-1", Content: content, Summary: "edit",
		}); err != nil {
			t.Fatalf("CaptureVersion() error = %v", err)
		}
	}
	store.Close()

	var out bytes.Buffer
	cmd := newHistoryCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"doc-1", "--db", dbPath, "--diff"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	lines := strings.Split(out.String(), "\n")
	if !strings.HasPrefix(lines[0], "SEQ") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "2 ") || !strings.HasPrefix(lines[2], "1 ") {
		t.Errorf("rows not newest first:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "+y") {
		t.Errorf("diff missing:\n%s", out.String())
	}
}
