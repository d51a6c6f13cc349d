package ai

import (
    "context"
    "errors"
    "fmt"
    "strings"

    "cloud.google.com/go/vertexai/genai"
    "github.com/rs/zerolog/log"
    "google.golang.org/api/option"

    "github.com/local/tourneur/internal/config"
)

// VertexClient calls Gemini through Vertex AI with Application Default
// Credentials or a service account file. A failed setup is kept and
// reported by every call instead of stopping startup.
type VertexClient struct {
    client  *genai.Client
    model   string
    initErr error
}

func NewVertexClient(ctx context.Context, cfg config.VertexConfig) *VertexClient {
    c := &VertexClient{model: cfg.Model}
    if cfg.ProjectID == "" || cfg.Region == "" {
        c.initErr = fmt.Errorf("%w: VERTEX_PROJECT_ID and VERTEX_AI_REGION", ErrMissingCredentials)
        return c
    }
    var opts []option.ClientOption
    if cfg.CredentialsFile != "" {
        opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
    }
    client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region, opts...)
    if err != nil {
        log.Warn().Err(err).Str("project", cfg.ProjectID).Str("region", cfg.Region).Msg("vertex client setup failed")
        c.initErr = fmt.Errorf("genai.NewClient: %w", err)
        return c
    }
    c.client = client
    return c
}

func (c *VertexClient) Name() string { return "vertex" }

func (c *VertexClient) Ready() error { return c.initErr }

func (c *VertexClient) Do(ctx context.Context, req Request) (Response, error) {
    if c.initErr != nil { return Response{}, c.initErr }
    name := req.Model
    if name == "" { name = c.model }

    model := c.client.GenerativeModel(name)
    model.SetTemperature(0)
    if req.MaxTokens > 0 { model.SetMaxOutputTokens(int32(req.MaxTokens)) }

    parts := []genai.Part{genai.Text(req.Prompt)}
    if len(req.Image) > 0 {
        format := strings.TrimPrefix(mimeOrPNG(req.ImageMIME), "image/")
        parts = append(parts, genai.ImageData(format, req.Image))
    }

    resp, err := model.GenerateContent(ctx, parts...)
    if err != nil {
        var blocked *genai.BlockedError
        if errors.As(err, &blocked) {
            return Response{}, fmt.Errorf("%w: %v", ErrContentRefused, blocked)
        }
        return Response{}, fmt.Errorf("failed to generate content from gemini: %w", err)
    }
    if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
        return Response{}, errors.New("no candidates")
    }

    var sb strings.Builder
    for _, part := range resp.Candidates[0].Content.Parts {
        if txt, ok := part.(genai.Text); ok {
            sb.WriteString(string(txt))
        }
    }
    out := Response{Text: sb.String()}
    if resp.UsageMetadata != nil {
        out.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
        out.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
    }
    return out, nil
}

func (c *VertexClient) Close() error {
    if c.client != nil { return c.client.Close() }
    return nil
}
