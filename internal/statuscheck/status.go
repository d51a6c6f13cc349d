package statuscheck

import (
    "context"
    "errors"
    "time"

    "github.com/local/tourneur/internal/ai"
)

// Pinger is anything that can report reachability.
type Pinger interface {
    Ping(ctx context.Context) error
}

// ProviderReporter lists recognition providers and whether they are usable.
type ProviderReporter interface {
    Status() []ai.ProviderStatus
}

// Checker aggregates readiness of the service's dependencies.
type Checker struct {
    storage        Pinger
    storageBackend string
    tokens         Pinger
    providers      ProviderReporter
    mupdfVersion   string
}

// Options configures the Checker. Tokens is optional.
type Options struct {
    Storage        Pinger
    StorageBackend string
    Tokens         Pinger
    Providers      ProviderReporter
    MuPDFVersion   string
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK      bool   `json:"ok"`
    Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Storage   Status              `json:"storage"`
    Tokens    Status              `json:"tokens"`
    MuPDF     Status              `json:"mupdf"`
    Providers []ai.ProviderStatus `json:"providers"`
}

// OK is false when storage or the document engine is down. Providers and
// the token registry degrade single features and do not count.
func (s Summary) OK() bool { return s.Storage.OK && s.MuPDF.OK }

func New(opts Options) *Checker {
    return &Checker{
        storage:        opts.Storage,
        storageBackend: opts.StorageBackend,
        tokens:         opts.Tokens,
        providers:      opts.Providers,
        mupdfVersion:   opts.MuPDFVersion,
    }
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    s := Summary{
        Storage: c.checkStorage(ctx),
        Tokens:  c.checkTokens(ctx),
        MuPDF:   c.checkMuPDF(),
    }
    if c.providers != nil {
        s.Providers = c.providers.Status()
    }
    return s
}

func (c *Checker) checkStorage(ctx context.Context) Status {
    if c.storage == nil {
        return Status{OK: false, Message: "not configured"}
    }
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    if err := c.storage.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: c.storageBackend + " reachable"}
}

func (c *Checker) checkTokens(ctx context.Context) Status {
    if c.tokens == nil {
        return Status{OK: true, Message: "disabled (single instance)"}
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := c.tokens.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkMuPDF() Status {
    if c.mupdfVersion == "" {
        return Status{OK: false, Message: "unavailable"}
    }
    return Status{OK: true, Message: "MuPDF " + c.mupdfVersion}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    if errors.Is(err, context.DeadlineExceeded) {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}
