package ai

import (
    "context"
    "encoding/base64"
    "errors"
    "fmt"
    "net/http"
    "strings"

    "github.com/local/tourneur/internal/config"
)

// GeminiClient talks to the Generative Language REST API with an API key.
type GeminiClient struct {
    http    *http.Client
    apiKey  string
    model   string
    baseURL string
}

func NewGeminiClient(cfg config.ProviderConfig) *GeminiClient {
    return &GeminiClient{
        http:    newHTTPClient(),
        apiKey:  cfg.APIKey,
        model:   cfg.Model,
        baseURL: strings.TrimRight(cfg.BaseURL, "/"),
    }
}

func (c *GeminiClient) Name() string { return "gemini" }

func (c *GeminiClient) Ready() error {
    if c.apiKey == "" { return fmt.Errorf("%w: GOOGLE_API_KEY", ErrMissingCredentials) }
    return nil
}

type geminiInlineData struct {
    MIMEType string `json:"mime_type"`
    Data     string `json:"data"`
}

type geminiPart struct {
    Text       string            `json:"text,omitempty"`
    InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
    Role  string       `json:"role,omitempty"`
    Parts []geminiPart `json:"parts"`
}

type geminiReq struct {
    Contents         []geminiContent `json:"contents"`
    GenerationConfig struct {
        Temperature     float64 `json:"temperature"`
        MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
    } `json:"generationConfig"`
}

type geminiResp struct {
    Candidates []struct {
        Content      geminiContent `json:"content"`
        FinishReason string        `json:"finishReason"`
    } `json:"candidates"`
    PromptFeedback struct {
        BlockReason string `json:"blockReason"`
    } `json:"promptFeedback"`
    UsageMetadata struct {
        PromptTokenCount     int `json:"promptTokenCount"`
        CandidatesTokenCount int `json:"candidatesTokenCount"`
    } `json:"usageMetadata"`
}

func (c *GeminiClient) Do(ctx context.Context, req Request) (Response, error) {
    if err := c.Ready(); err != nil { return Response{}, err }
    model := req.Model
    if model == "" { model = c.model }

    parts := []geminiPart{{Text: req.Prompt}}
    if len(req.Image) > 0 {
        parts = append(parts, geminiPart{InlineData: &geminiInlineData{
            MIMEType: mimeOrPNG(req.ImageMIME),
            Data:     base64.StdEncoding.EncodeToString(req.Image),
        }})
    }
    payload := geminiReq{Contents: []geminiContent{{Role: "user", Parts: parts}}}
    payload.GenerationConfig.MaxOutputTokens = req.MaxTokens

    url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
    var r geminiResp
    if err := postJSON(ctx, c.http, c.Name(), url, map[string]string{"x-goog-api-key": c.apiKey}, payload, &r); err != nil {
        return Response{}, err
    }

    if r.PromptFeedback.BlockReason != "" {
        return Response{}, fmt.Errorf("%w: prompt blocked (%s)", ErrContentRefused, r.PromptFeedback.BlockReason)
    }
    if len(r.Candidates) == 0 {
        return Response{}, errors.New("no candidates")
    }
    cand := r.Candidates[0]
    if cand.FinishReason == "SAFETY" || cand.FinishReason == "PROHIBITED_CONTENT" {
        return Response{}, fmt.Errorf("%w: finish reason %s", ErrContentRefused, cand.FinishReason)
    }

    var sb strings.Builder
    for _, p := range cand.Content.Parts {
        sb.WriteString(p.Text)
    }
    return Response{
        Text:      sb.String(),
        TokensIn:  r.UsageMetadata.PromptTokenCount,
        TokensOut: r.UsageMetadata.CandidatesTokenCount,
    }, nil
}
