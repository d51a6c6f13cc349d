package ai

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/tourneur/internal/config"
    "github.com/local/tourneur/internal/metrics"
)

const (
    ocrPrompt     = "Extract all text from this image:"
    summaryPrompt = "Summarize the following text:\n\n%s"
)

// ProviderStatus reports whether a configured provider can be called.
type ProviderStatus struct {
    Role     string `json:"role"`
    Provider string `json:"provider"`
    Ready    bool   `json:"ready"`
    Error    string `json:"error,omitempty"`
}

type readier interface{ Ready() error }

type closer interface{ Close() error }

// Limiter bounds calls per provider and backs off after rate limiting.
type Limiter interface {
    Acquire(ctx context.Context, provider string) (func(), error)
    CoolingDown(ctx context.Context, provider string) (time.Duration, bool)
    Trip(ctx context.Context, provider string) time.Duration
    Reset(ctx context.Context, provider string)
}

// OpSettings overrides the client's model and output budget for one Op.
// Zero values keep the client's defaults.
type OpSettings struct {
    Model     string
    MaxTokens int
}

// Service runs the two recognition steps against the configured providers.
type Service struct {
    ocr     Client
    summary Client
    timeout time.Duration
    limiter Limiter
    ops     map[Op]OpSettings
}

// NewService builds provider clients from cfg. Unknown or misconfigured
// providers still produce a Service; their calls fail at request time.
func NewService(ctx context.Context, cfg config.RecognitionConfig) *Service {
    ocr := newClient(ctx, cfg.OCRProvider, cfg)
    summary := ocr
    if cfg.SummaryProvider != cfg.OCRProvider {
        summary = newClient(ctx, cfg.SummaryProvider, cfg)
    }
    s := &Service{ocr: ocr, summary: summary, timeout: cfg.Timeout}
    s.Configure(OpOCR, OpSettings{Model: cfg.OCRModel, MaxTokens: cfg.OCRMaxTokens})
    s.Configure(OpSummarize, OpSettings{Model: cfg.SummaryModel, MaxTokens: cfg.SummaryMaxTokens})
    return s
}

// NewServiceWithClients is used by tests and by callers that bring their own clients.
func NewServiceWithClients(ocr, summary Client, timeout time.Duration) *Service {
    return &Service{ocr: ocr, summary: summary, timeout: timeout}
}

// Configure sets the per-request model and token budget for op.
func (s *Service) Configure(op Op, o OpSettings) {
    if s.ops == nil { s.ops = map[Op]OpSettings{} }
    s.ops[op] = o
}

// SetLimiter guards every provider call with l.
func (s *Service) SetLimiter(l Limiter) { s.limiter = l }

func newClient(ctx context.Context, name string, cfg config.RecognitionConfig) Client {
    switch name {
    case "gemini":
        return NewGeminiClient(cfg.Gemini)
    case "vertex":
        return NewVertexClient(ctx, cfg.Vertex)
    case "openai":
        return NewOpenAIClient(cfg.OpenAI)
    case "anthropic":
        return NewAnthropicClient(cfg.Anthropic)
    case "tesseract":
        return NewTesseractClient(cfg.TesseractLangs)
    default:
        return unknownClient(name)
    }
}

type unknownClient string

func (u unknownClient) Name() string { return string(u) }
func (u unknownClient) Ready() error { return fmt.Errorf("unknown provider %q", string(u)) }
func (u unknownClient) Do(context.Context, Request) (Response, error) {
    return Response{}, u.Ready()
}

// RecognizeText extracts the text shown in a PNG page image.
func (s *Service) RecognizeText(ctx context.Context, image []byte) (string, error) {
    return s.call(ctx, s.ocr, Request{Op: OpOCR, Prompt: ocrPrompt, Image: image, ImageMIME: "image/png"})
}

// Summarize asks the summary provider to summarize text.
func (s *Service) Summarize(ctx context.Context, text string) (string, error) {
    return s.call(ctx, s.summary, Request{Op: OpSummarize, Prompt: fmt.Sprintf(summaryPrompt, text)})
}

func (s *Service) call(ctx context.Context, c Client, req Request) (string, error) {
    if o, ok := s.ops[req.Op]; ok {
        req.Model, req.MaxTokens = o.Model, o.MaxTokens
    }
    if s.timeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, s.timeout)
        defer cancel()
    }

    if s.limiter != nil {
        if left, open := s.limiter.CoolingDown(ctx, c.Name()); open {
            log.Ctx(ctx).Warn().Str("provider", c.Name()).Str("op", string(req.Op)).Dur("retry_in", left).Msg("provider cooling down, call skipped")
            err := fmt.Errorf("%w: retry in %s", ErrRateLimited, left.Round(time.Second))
            return "", &RecognitionError{Provider: c.Name(), Op: req.Op, Err: err}
        }
        release, err := s.limiter.Acquire(ctx, c.Name())
        if err != nil {
            return "", &RecognitionError{Provider: c.Name(), Op: req.Op, Err: fmt.Errorf("wait for provider slot: %w", err)}
        }
        defer release()
    }

    start := time.Now()
    resp, err := c.Do(ctx, req)
    dur := time.Since(start)
    metrics.ObserveProvider(c.Name(), string(req.Op), err, dur)

    lg := log.Ctx(ctx).With().Str("provider", c.Name()).Str("op", string(req.Op)).Dur("duration", dur).Logger()
    if s.limiter != nil {
        if IsRateLimited(err) {
            lg.Warn().Dur("cooldown", s.limiter.Trip(ctx, c.Name())).Msg("provider rate limited, cooling down")
        } else if err == nil {
            s.limiter.Reset(ctx, c.Name())
        }
    }
    if err != nil {
        ev := lg.Error()
        if errors.Is(err, ErrMissingCredentials) || IsRateLimited(err) { ev = lg.Warn() }
        ev.Err(err).Msg("recognition call failed")
        return "", &RecognitionError{Provider: c.Name(), Op: req.Op, Err: err}
    }
    lg.Debug().Int("tokens_in", resp.TokensIn).Int("tokens_out", resp.TokensOut).Int("chars", len(resp.Text)).Msg("recognition call done")
    return resp.Text, nil
}

// Status lists the OCR and summary providers and whether they are ready.
func (s *Service) Status() []ProviderStatus {
    out := make([]ProviderStatus, 0, 2)
    for _, e := range []struct {
        role string
        c    Client
    }{{"ocr", s.ocr}, {"summary", s.summary}} {
        st := ProviderStatus{Role: e.role, Provider: e.c.Name(), Ready: true}
        if r, ok := e.c.(readier); ok {
            if err := r.Ready(); err != nil {
                st.Ready = false
                st.Error = err.Error()
            }
        }
        if e.role == "summary" && e.c.Name() == "tesseract" {
            st.Ready = false
            st.Error = "tesseract cannot summarize"
        }
        out = append(out, st)
    }
    return out
}

// Close releases provider clients that hold connections.
func (s *Service) Close() error {
    var errs []error
    if c, ok := s.ocr.(closer); ok { errs = append(errs, c.Close()) }
    if s.summary != s.ocr {
        if c, ok := s.summary.(closer); ok { errs = append(errs, c.Close()) }
    }
    return errors.Join(errs...)
}
