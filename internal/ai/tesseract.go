package ai

import (
    "context"
    "fmt"

    "github.com/otiai10/gosseract/v2"
)

// TesseractClient runs OCR locally. It cannot summarize.
type TesseractClient struct {
    langs []string
}

func NewTesseractClient(langs []string) *TesseractClient {
    if len(langs) == 0 { langs = []string{"eng"} }
    return &TesseractClient{langs: langs}
}

func (c *TesseractClient) Name() string { return "tesseract" }

// Do ignores Prompt and reads the text from Image. A gosseract client is
// not safe for concurrent use, so each call gets its own.
func (c *TesseractClient) Do(ctx context.Context, req Request) (Response, error) {
    if len(req.Image) == 0 {
        return Response{}, fmt.Errorf("%w: tesseract only reads images", ErrUnsupported)
    }
    if err := ctx.Err(); err != nil { return Response{}, err }

    client := gosseract.NewClient()
    defer client.Close()
    if err := client.SetLanguage(c.langs...); err != nil { return Response{}, err }
    if err := client.SetImageFromBytes(req.Image); err != nil { return Response{}, err }
    text, err := client.Text()
    if err != nil { return Response{}, err }
    return Response{Text: text}, nil
}
