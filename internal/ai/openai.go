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

type OpenAIClient struct {
    http    *http.Client
    apiKey  string
    model   string
    baseURL string
}

func NewOpenAIClient(cfg config.ProviderConfig) *OpenAIClient {
    return &OpenAIClient{http: newHTTPClient(), apiKey: cfg.APIKey, model: cfg.Model, baseURL: strings.TrimRight(cfg.BaseURL, "/")}
}
func (c *OpenAIClient) Name() string { return "openai" }

func (c *OpenAIClient) Ready() error {
    if c.apiKey == "" { return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingCredentials) }
    return nil
}

type openAIMessage struct {
    Role    string                   `json:"role"`
    Content []map[string]interface{} `json:"content"`
}

type openAIChatReq struct {
    Model       string          `json:"model"`
    Messages    []openAIMessage `json:"messages"`
    Temperature float64         `json:"temperature"`
    MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIChatResp struct {
    Choices []struct {
        Message struct {
            Content string `json:"content"`
            Refusal string `json:"refusal"`
        } `json:"message"`
        FinishReason string `json:"finish_reason"`
    } `json:"choices"`
    Usage struct {
        PromptTokens     int `json:"prompt_tokens"`
        CompletionTokens int `json:"completion_tokens"`
    } `json:"usage"`
}

func (c *OpenAIClient) Do(ctx context.Context, req Request) (Response, error) {
    if err := c.Ready(); err != nil { return Response{}, err }
    model := req.Model
    if model == "" { model = c.model }

    userContent := []map[string]interface{}{{"type": "text", "text": req.Prompt}}
    if len(req.Image) > 0 {
        imageURL := fmt.Sprintf("data:%s;base64,%s", mimeOrPNG(req.ImageMIME), base64.StdEncoding.EncodeToString(req.Image))
        userContent = append(userContent, map[string]interface{}{
            "type":      "image_url",
            "image_url": map[string]string{"url": imageURL},
        })
    }

    payload := openAIChatReq{
        Model:     model,
        Messages:  []openAIMessage{{Role: "user", Content: userContent}},
        MaxTokens: req.MaxTokens,
    }

    var r openAIChatResp
    headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
    if err := postJSON(ctx, c.http, c.Name(), c.baseURL+"/chat/completions", headers, payload, &r); err != nil {
        return Response{}, err
    }
    if len(r.Choices) == 0 {
        return Response{}, errors.New("no choices")
    }
    msg := r.Choices[0].Message
    if msg.Refusal != "" || r.Choices[0].FinishReason == "content_filter" {
        return Response{}, fmt.Errorf("%w: %s", ErrContentRefused, msg.Refusal)
    }

    return Response{
        Text:      msg.Content,
        TokensIn:  r.Usage.PromptTokens,
        TokensOut: r.Usage.CompletionTokens,
    }, nil
}
