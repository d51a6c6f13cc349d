package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

func TestLocalPutFindRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	if err := l.Put(ctx, "0a1b2c3d.pdf", []byte("%PDF-1.4")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	obj, err := l.Find(ctx, "0a1b2c3d")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if obj.Name != "0a1b2c3d.pdf" || obj.Ext != ".pdf" || obj.Size != 8 || !obj.IsPDF() {
		t.Fatalf("unexpected object %+v", obj)
	}
	if obj.Type() != "pdf" {
		t.Fatalf("expected type pdf, got %q", obj.Type())
	}

	path, release, err := l.Fetch(ctx, obj)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer release()
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "%PDF-1.4" {
		t.Fatalf("fetched %q, %v", data, err)
	}
}

func TestLocalPutNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	if err := l.Put(ctx, "deadbeef.png", []byte("first")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := l.Put(ctx, "deadbeef.png", []byte("second")); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(l.Dir(), "deadbeef.png"))
	if string(data) != "first" {
		t.Fatalf("object was overwritten: %q", data)
	}
}

func TestLocalFindRequiresDotAfterToken(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	if err := l.Put(ctx, "abcdef0123.pdf", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := l.Find(ctx, "abcdef01"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for longer name, got %v", err)
	}
}

func TestLocalFindPicksFirstLexicalMatch(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	for _, name := range []string{"11223344.tiff", "11223344.jpg", "11223344.png"} {
		if err := l.Put(ctx, name, []byte("x")); err != nil {
			t.Fatalf("Put %s: %v", name, err)
		}
	}
	obj, err := l.Find(ctx, "11223344")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if obj.Name != "11223344.jpg" {
		t.Fatalf("expected 11223344.jpg, got %s", obj.Name)
	}
}

func TestLocalFindRejectsMalformedTokens(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	for _, tok := range []string{"", "..", "../etc", "ABCDEF01", "abc", "abcdef012", "zzzzzzzz"} {
		if _, err := l.Find(ctx, tok); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%q: expected ErrNotFound, got %v", tok, err)
		}
	}
}

func TestLocalDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	if err := l.Put(ctx, "cafebabe.pdf", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := l.Delete(ctx, "cafebabe.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := l.Delete(ctx, "cafebabe.pdf"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := l.Find(ctx, "cafebabe"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLocalSweepRemovesOldUploads(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	for _, name := range []string{"00000001.pdf", "00000002.pdf"} {
		if err := l.Put(ctx, name, []byte("x")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(l.Dir(), "00000001.pdf"), old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	n, err := l.Sweep(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removal, got %d", n)
	}
	if _, err := l.Find(ctx, "00000001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old upload still present")
	}
	if _, err := l.Find(ctx, "00000002"); err != nil {
		t.Fatalf("fresh upload removed: %v", err)
	}
}

func TestLocalPingAndPutRejectPaths(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	if err := l.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := l.Put(ctx, "../escape.pdf", []byte("x")); err == nil {
		t.Fatalf("expected error for path traversal")
	}
}

func TestCleanupTempsHonoursMinimumAge(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)

	write := func(name string, age time.Duration) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		ts := time.Now().Add(-age)
		if err := os.Chtimes(p, ts, ts); err != nil {
			t.Fatalf("Chtimes: %v", err)
		}
		return p
	}
	inFlight := write(tempPrefix+"inflight.pdf", 30*time.Minute)
	stale := write(tempPrefix+"stale.pdf", 2*time.Hour)
	other := write("unrelated.pdf", 2*time.Hour)

	if n := CleanupTemps(time.Minute); n != 1 {
		t.Fatalf("expected 1 removal, got %d", n)
	}
	if _, err := os.Stat(inFlight); err != nil {
		t.Fatalf("temp younger than the floor was removed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale temp still present: %v", err)
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatalf("unprefixed file touched: %v", err)
	}
}
