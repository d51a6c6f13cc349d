package statuscheck

import (
    "context"
    "errors"
    "strings"
    "testing"

    "github.com/local/tourneur/internal/ai"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type providers []ai.ProviderStatus

func (p providers) Status() []ai.ProviderStatus { return p }

func TestSummaryHealthy(t *testing.T) {
    c := New(Options{
        Storage:        pingFunc(func(context.Context) error { return nil }),
        StorageBackend: "local",
        Providers:      providers{{Role: "ocr", Provider: "gemini", Ready: true}},
        MuPDFVersion:   "1.24.9",
    })
    s := c.Summary(context.Background())
    if !s.OK() {
        t.Fatalf("expected OK summary, got %+v", s)
    }
    if !s.Tokens.OK || !strings.Contains(s.Tokens.Message, "disabled") {
        t.Fatalf("token registry should be reported as disabled: %+v", s.Tokens)
    }
    if len(s.Providers) != 1 || s.Providers[0].Provider != "gemini" {
        t.Fatalf("unexpected providers %+v", s.Providers)
    }
}

func TestSummaryStorageDown(t *testing.T) {
    c := New(Options{
        Storage:      pingFunc(func(context.Context) error { return errors.New(strings.Repeat("x", 300)) }),
        Tokens:       pingFunc(func(context.Context) error { return context.DeadlineExceeded }),
        MuPDFVersion: "1.24.9",
    })
    s := c.Summary(context.Background())
    if s.OK() || s.Storage.OK {
        t.Fatalf("expected storage failure, got %+v", s)
    }
    if len(s.Storage.Message) != 120 {
        t.Fatalf("long errors should be trimmed, got %d chars", len(s.Storage.Message))
    }
    if s.Tokens.OK || s.Tokens.Message != "timeout" {
        t.Fatalf("unexpected token status %+v", s.Tokens)
    }
}
