package ai

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"
)

const maxErrorBody = 512

func newHTTPClient() *http.Client { return &http.Client{Timeout: 5 * time.Minute} }

// postJSON sends payload and decodes a 2xx answer into out.
func postJSON(ctx context.Context, hc *http.Client, provider, url string, headers map[string]string, payload, out any) error {
    body, err := json.Marshal(payload)
    if err != nil { return fmt.Errorf("encode %s request: %w", provider, err) }
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
    if err != nil { return err }
    httpReq.Header.Set("Content-Type", "application/json")
    for k, v := range headers {
        httpReq.Header.Set(k, v)
    }

    resp, err := hc.Do(httpReq)
    if err != nil { return err }
    defer resp.Body.Close()

    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
        return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b)), Provider: provider}
    }
    if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
        return fmt.Errorf("decode %s response: %w", provider, err)
    }
    return nil
}

func mimeOrPNG(m string) string {
    if m == "" { return "image/png" }
    return m
}
