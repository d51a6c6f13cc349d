package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

type fakeReserver struct {
	taken map[string]bool
	err   error
}

func (f *fakeReserver) Reserve(ctx context.Context, token string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.taken[token] {
		return false, nil
	}
	f.taken[token] = true
	return true, nil
}

func sequence(tokens ...string) func() string {
	i := 0
	return func() string {
		tok := tokens[i%len(tokens)]
		i++
		return tok
	}
}

func TestNewTokenShape(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok := NewToken()
		if !ValidToken(tok) {
			t.Fatalf("token %q is not 8 lower-case hex chars", tok)
		}
		seen[tok] = true
	}
	if len(seen) < 95 {
		t.Fatalf("tokens are not random enough: %d distinct of 100", len(seen))
	}
}

func TestAllocateSkipsTokensInUse(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(filepath.Join(t.TempDir(), "u"))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := l.Put(ctx, "aaaaaaaa.pdf", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tok, err := allocate(ctx, l, nil, sequence("aaaaaaaa", "bbbbbbbb"))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if tok != "bbbbbbbb" {
		t.Fatalf("expected bbbbbbbb, got %s", tok)
	}
}

func TestAllocateHonoursReserver(t *testing.T) {
	ctx := context.Background()
	l, _ := NewLocal(filepath.Join(t.TempDir(), "u"))
	r := &fakeReserver{taken: map[string]bool{"cccccccc": true}}

	tok, err := allocate(ctx, l, r, sequence("cccccccc", "dddddddd"))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if tok != "dddddddd" || !r.taken["dddddddd"] {
		t.Fatalf("unexpected token %s (taken=%v)", tok, r.taken)
	}
}

func TestAllocateGivesUp(t *testing.T) {
	ctx := context.Background()
	l, _ := NewLocal(filepath.Join(t.TempDir(), "u"))
	_ = l.Put(ctx, "eeeeeeee.png", []byte("x"))

	if _, err := allocate(ctx, l, nil, sequence("eeeeeeee")); err == nil {
		t.Fatalf("expected allocation failure")
	}

	boom := errors.New("redis down")
	if _, err := allocate(ctx, l, &fakeReserver{err: boom}, sequence("ffffffff")); !errors.Is(err, boom) {
		t.Fatalf("expected reserver error, got %v", err)
	}
}
