package ai

import (
    "context"
    "errors"
    "fmt"
)

// Op names what a request is for; it labels metrics and errors.
type Op string

const (
    OpOCR       Op = "ocr"
    OpSummarize Op = "summarize"
)

// Request is a single-turn generation request. Image is optional.
type Request struct {
    Op        Op
    Model     string // empty = client default
    Prompt    string
    Image     []byte
    ImageMIME string
    MaxTokens int
}

type Response struct {
    Text      string
    TokensIn  int
    TokensOut int
}

// Client is implemented by every provider.
type Client interface {
    Name() string
    Do(ctx context.Context, req Request) (Response, error)
}

var (
    ErrRateLimited        = errors.New("rate_limited")
    ErrContentRefused     = errors.New("content_refused")
    ErrMissingCredentials = errors.New("missing_credentials")
    ErrUnsupported        = errors.New("unsupported_request")
)

func IsRateLimited(err error) bool    { return errors.Is(err, ErrRateLimited) }
func IsContentRefused(err error) bool { return errors.Is(err, ErrContentRefused) }

// HTTPError is a non-2xx answer from a provider API.
type HTTPError struct {
    StatusCode int
    Body       string
    Provider   string
}

func (e *HTTPError) Error() string {
    return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.Provider, e.Body)
}

func (e *HTTPError) Unwrap() error {
    if e.StatusCode == 429 { return ErrRateLimited }
    return nil
}

// RecognitionError wraps any failure of a remote recognition call.
type RecognitionError struct {
    Provider string
    Op       Op
    Err      error
}

func (e *RecognitionError) Error() string {
    return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }
