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

const anthropicDefaultMaxTokens = 4096

type AnthropicClient struct{ http *http.Client; apiKey, model, baseURL string }

func NewAnthropicClient(cfg config.ProviderConfig) *AnthropicClient {
    return &AnthropicClient{http: newHTTPClient(), apiKey: cfg.APIKey, model: cfg.Model, baseURL: strings.TrimRight(cfg.BaseURL, "/")}
}
func (c *AnthropicClient) Name() string { return "anthropic" }

func (c *AnthropicClient) Ready() error {
    if c.apiKey == "" { return fmt.Errorf("%w: ANTHROPIC_API_KEY", ErrMissingCredentials) }
    return nil
}

type anthropicBlock struct {
    Type   string                `json:"type"`
    Text   string                `json:"text,omitempty"`
    Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
    Type      string `json:"type"`
    MediaType string `json:"media_type"`
    Data      string `json:"data"`
}

type anthropicMsgReq struct {
    Model     string `json:"model"`
    MaxTokens int    `json:"max_tokens"`
    Messages  []struct {
        Role    string           `json:"role"`
        Content []anthropicBlock `json:"content"`
    } `json:"messages"`
}

type anthropicMsgResp struct {
    Content    []struct{ Type, Text string } `json:"content"`
    StopReason string                         `json:"stop_reason"`
    Usage      struct {
        InputTokens  int `json:"input_tokens"`
        OutputTokens int `json:"output_tokens"`
    } `json:"usage"`
}

func (c *AnthropicClient) Do(ctx context.Context, req Request) (Response, error) {
    if err := c.Ready(); err != nil { return Response{}, err }
    model := req.Model
    if model == "" { model = c.model }
    maxTokens := req.MaxTokens
    if maxTokens <= 0 { maxTokens = anthropicDefaultMaxTokens }

    var blocks []anthropicBlock
    if len(req.Image) > 0 {
        blocks = append(blocks, anthropicBlock{Type: "image", Source: &anthropicImageSource{
            Type: "base64", MediaType: mimeOrPNG(req.ImageMIME), Data: base64.StdEncoding.EncodeToString(req.Image),
        }})
    }
    blocks = append(blocks, anthropicBlock{Type: "text", Text: req.Prompt})

    payload := anthropicMsgReq{Model: model, MaxTokens: maxTokens}
    payload.Messages = append(payload.Messages, struct {
        Role    string           `json:"role"`
        Content []anthropicBlock `json:"content"`
    }{Role: "user", Content: blocks})

    headers := map[string]string{"x-api-key": c.apiKey, "anthropic-version": "2023-06-01"}
    var r anthropicMsgResp
    if err := postJSON(ctx, c.http, c.Name(), c.baseURL+"/messages", headers, payload, &r); err != nil {
        return Response{}, err
    }
    if r.StopReason == "refusal" { return Response{}, ErrContentRefused }
    var sb strings.Builder
    for _, b := range r.Content {
        if b.Type == "text" { sb.WriteString(b.Text) }
    }
    if sb.Len() == 0 && len(r.Content) == 0 { return Response{}, errors.New("no content") }
    return Response{Text: sb.String(), TokensIn: r.Usage.InputTokens, TokensOut: r.Usage.OutputTokens}, nil
}
