package ai

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "testing"
    "time"

    "github.com/local/tourneur/internal/config"
    "github.com/local/tourneur/internal/limiter"
)

type fakeClient struct {
    name  string
    text  string
    err   error
    calls []Request
}

func (f *fakeClient) Name() string { return f.name }
func (f *fakeClient) Do(ctx context.Context, req Request) (Response, error) {
    f.calls = append(f.calls, req)
    if f.err != nil { return Response{}, f.err }
    return Response{Text: f.text}, nil
}

func TestRecognizeTextSendsImageWithFixedPrompt(t *testing.T) {
    ocr := &fakeClient{name: "fake-ocr", text: "page text"}
    s := NewServiceWithClients(ocr, &fakeClient{name: "fake-sum"}, 0)

    got, err := s.RecognizeText(context.Background(), []byte("png"))
    if err != nil { t.Fatalf("RecognizeText: %v", err) }
    if got != "page text" { t.Fatalf("unexpected text %q", got) }
    req := ocr.calls[0]
    if req.Prompt != "Extract all text from this image:" || string(req.Image) != "png" || req.ImageMIME != "image/png" {
        t.Fatalf("unexpected request %+v", req)
    }
}

func TestSummarizeEmbedsText(t *testing.T) {
    sum := &fakeClient{name: "fake-sum", text: "tl;dr"}
    s := NewServiceWithClients(&fakeClient{name: "fake-ocr"}, sum, 0)

    got, err := s.Summarize(context.Background(), "long body")
    if err != nil { t.Fatalf("Summarize: %v", err) }
    if got != "tl;dr" { t.Fatalf("unexpected summary %q", got) }
    if sum.calls[0].Prompt != "Summarize the following text:\n\nlong body" || len(sum.calls[0].Image) != 0 {
        t.Fatalf("unexpected request %+v", sum.calls[0])
    }
}

func TestFailuresBecomeRecognitionErrors(t *testing.T) {
    boom := errors.New("upstream exploded")
    s := NewServiceWithClients(&fakeClient{name: "fake-ocr", err: boom}, &fakeClient{name: "fake-sum"}, 0)

    _, err := s.RecognizeText(context.Background(), []byte("png"))
    var re *RecognitionError
    if !errors.As(err, &re) { t.Fatalf("expected RecognitionError, got %v", err) }
    if re.Provider != "fake-ocr" || re.Op != OpOCR || !errors.Is(err, boom) {
        t.Fatalf("unexpected error %+v", re)
    }
}

type slowClient struct{}

func (slowClient) Name() string { return "slow" }
func (slowClient) Do(ctx context.Context, req Request) (Response, error) {
    <-ctx.Done()
    return Response{}, ctx.Err()
}

func TestTimeoutIsApplied(t *testing.T) {
    s := NewServiceWithClients(slowClient{}, slowClient{}, 20*time.Millisecond)
    _, err := s.Summarize(context.Background(), "x")
    if !errors.Is(err, context.DeadlineExceeded) { t.Fatalf("expected deadline exceeded, got %v", err) }
}

func TestNewServiceWithoutKeysReportsNotReady(t *testing.T) {
    s := NewService(context.Background(), config.RecognitionConfig{
        OCRProvider:     "gemini",
        SummaryProvider: "gemini",
        Gemini:          config.ProviderConfig{Model: "m", BaseURL: "http://127.0.0.1:1"},
    })
    st := s.Status()
    if len(st) != 2 || st[0].Ready || st[1].Ready {
        t.Fatalf("expected both roles not ready, got %+v", st)
    }
    _, err := s.RecognizeText(context.Background(), []byte("png"))
    var re *RecognitionError
    if !errors.As(err, &re) || !errors.Is(err, ErrMissingCredentials) {
        t.Fatalf("expected RecognitionError for missing key, got %v", err)
    }
    if err := s.Close(); err != nil { t.Fatalf("Close: %v", err) }
}

func TestUnknownProvider(t *testing.T) {
    s := NewService(context.Background(), config.RecognitionConfig{OCRProvider: "tesseract", SummaryProvider: "bogus"})
    st := s.Status()
    if !st[0].Ready || st[0].Provider != "tesseract" {
        t.Fatalf("tesseract OCR should be ready: %+v", st[0])
    }
    if st[1].Ready || !strings.Contains(st[1].Error, "bogus") {
        t.Fatalf("unexpected summary status %+v", st[1])
    }
}

func TestRateLimitStartsCooldown(t *testing.T) {
    g, err := limiter.New(limiter.Options{MaxInflight: 1, BaseBackoff: time.Minute})
    if err != nil { t.Fatalf("limiter.New: %v", err) }
    ocr := &fakeClient{name: "fake-ocr", err: &HTTPError{StatusCode: 429, Body: "slow down"}}
    s := NewServiceWithClients(ocr, &fakeClient{name: "fake-sum", text: "ok"}, 0)
    s.SetLimiter(g)

    if _, err := s.RecognizeText(context.Background(), []byte("png")); !IsRateLimited(err) {
        t.Fatalf("expected rate limit error, got %v", err)
    }
    _, err = s.RecognizeText(context.Background(), []byte("png"))
    var re *RecognitionError
    if !errors.As(err, &re) || !IsRateLimited(err) || !strings.Contains(err.Error(), "retry in") {
        t.Fatalf("expected cooldown error, got %v", err)
    }
    if len(ocr.calls) != 1 {
        t.Fatalf("cooling provider must not be called again, got %d calls", len(ocr.calls))
    }
    if got, err := s.Summarize(context.Background(), "x"); err != nil || got != "ok" {
        t.Fatalf("other providers are unaffected: %q %v", got, err)
    }
}

func TestOpSettingsReachTheProvider(t *testing.T) {
    var paths []string
    var budgets []any
    srv := serveJSON(t, 200, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`,
        func(r *http.Request, p map[string]any) {
            paths = append(paths, r.URL.Path)
            budgets = append(budgets, p["generationConfig"].(map[string]any)["maxOutputTokens"])
        })

    s := NewService(context.Background(), config.RecognitionConfig{
        OCRProvider:      "gemini",
        SummaryProvider:  "gemini",
        OCRModel:         "gemini-ocr",
        SummaryMaxTokens: 256,
        Gemini:           config.ProviderConfig{APIKey: "k", Model: "gemini-default", BaseURL: srv.URL},
    })
    if _, err := s.RecognizeText(context.Background(), []byte("png")); err != nil { t.Fatalf("RecognizeText: %v", err) }
    if _, err := s.Summarize(context.Background(), "text"); err != nil { t.Fatalf("Summarize: %v", err) }

    if paths[0] != "/models/gemini-ocr:generateContent" || paths[1] != "/models/gemini-default:generateContent" {
        t.Fatalf("unexpected model paths %v", paths)
    }
    if budgets[0] != nil || budgets[1] != float64(256) {
        t.Fatalf("unexpected token budgets %v", budgets)
    }
}

func TestConfigureOverridesPerOp(t *testing.T) {
    ocr := &fakeClient{name: "fake-ocr", text: "x"}
    s := NewServiceWithClients(ocr, ocr, 0)
    s.Configure(OpOCR, OpSettings{Model: "vision", MaxTokens: 1024})

    s.RecognizeText(context.Background(), []byte("png"))
    s.Summarize(context.Background(), "x")
    if ocr.calls[0].Model != "vision" || ocr.calls[0].MaxTokens != 1024 {
        t.Fatalf("OCR settings not applied: %+v", ocr.calls[0])
    }
    if ocr.calls[1].Model != "" || ocr.calls[1].MaxTokens != 0 {
        t.Fatalf("summary should keep client defaults: %+v", ocr.calls[1])
    }
}
