package api

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strconv"
    "strings"
    "time"

    "golang.org/x/sync/errgroup"

    "github.com/local/tourneur/internal/document"
    "github.com/local/tourneur/internal/metrics"
    "github.com/local/tourneur/internal/storage"
    "github.com/local/tourneur/internal/store"
)

const (
    multipartMemory = 32 << 20
    // multipartSlack covers boundaries and part headers so MaxUploadBytes
    // applies to the file itself.
    multipartSlack = 64 << 10
)

type uploadResp struct {
    DocID    string `json:"docId"`
    Filename string `json:"filename"`
    Size     int64  `json:"size"`
    Pages    *int   `json:"pages"`
    Type     string `json:"type"`
}

type infoResp struct {
    DocID      string         `json:"docId"`
    Filename   string         `json:"filename"`
    StoredAs   string         `json:"storedAs"`
    Size       int64          `json:"size"`
    Type       string         `json:"type"`
    Pages      *int           `json:"pages"`
    UploadedAt time.Time      `json:"uploadedAt"`
    Info       *document.Info `json:"info"`
}

type pageTextResp struct {
    DocID string `json:"docId"`
    Page  int    `json:"page"`
    Text  string `json:"text"`
}

type ocrResp struct {
    DocID   string `json:"docId"`
    Page    int    `json:"page"`
    OCRText string `json:"ocrText"`
    Summary string `json:"summary"`
}

// handleUpload validates, stores and (for PDFs) counts the pages of one
// multipart "file". Nothing is written unless the type checks pass.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
    ctx := r.Context()
    r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes+multipartSlack)
    if err := r.ParseMultipartForm(multipartMemory); err != nil {
        var tooLarge *http.MaxBytesError
        if errors.As(err, &tooLarge) {
            writeError(w, r, err)
            return
        }
        writeError(w, r, badRequest("invalid_request", "invalid multipart form"))
        return
    }
    defer r.MultipartForm.RemoveAll()

    file, hdr, err := r.FormFile("file")
    if err != nil {
        writeError(w, r, badRequest("invalid_request", "missing file field"))
        return
    }
    defer file.Close()
    if hdr.Size > s.deps.MaxUploadBytes {
        metrics.IncUpload("unknown", "too_large")
        writeError(w, r, &http.MaxBytesError{Limit: s.deps.MaxUploadBytes})
        return
    }

    ft, err := s.deps.Detector.CheckName(hdr.Filename)
    if err != nil {
        metrics.IncUpload("unknown", "unsupported")
        writeError(w, r, err)
        return
    }
    data, err := io.ReadAll(file)
    if err != nil {
        writeError(w, r, fmt.Errorf("read upload: %w", err))
        return
    }
    if len(data) == 0 {
        metrics.IncUpload(strings.TrimPrefix(ft.Extension, "."), "unsupported")
        writeError(w, r, badRequest("unsupported_file_type", "empty file"))
        return
    }
    if _, err := s.deps.Detector.Detect(hdr.Filename, data); err != nil {
        metrics.IncUpload(strings.TrimPrefix(ft.Extension, "."), "unsupported")
        writeError(w, r, err)
        return
    }

    var reserver storage.Reserver
    if s.deps.Tokens != nil { reserver = s.deps.Tokens }
    token, err := storage.Allocate(ctx, s.deps.Store, reserver)
    if err != nil {
        writeError(w, r, err)
        return
    }
    name := token + ft.Extension
    if err := s.deps.Store.Put(ctx, name, data); err != nil {
        s.releaseToken(ctx, r, token)
        writeError(w, r, fmt.Errorf("store upload: %w", err))
        return
    }

    obj := storage.Object{Token: token, Name: name, Ext: ft.Extension, Size: int64(len(data))}
    var pages *int
    if obj.IsPDF() {
        n, err := s.pageCount(ctx, obj)
        if err != nil {
            if derr := s.deps.Store.Delete(ctx, name); derr != nil {
                logger(r).Error().Err(derr).Str("object", name).Msg("failed to remove unreadable upload")
            }
            s.releaseToken(ctx, r, token)
            metrics.IncUpload(obj.Type(), "unreadable")
            writeError(w, r, err)
            return
        }
        pages = &n
    }

    if s.deps.Tokens != nil {
        meta := store.UploadMeta{Filename: hdr.Filename, Size: obj.Size, Created: time.Now()}
        if err := s.deps.Tokens.Record(ctx, token, meta); err != nil {
            logger(r).Warn().Err(err).Str("doc_id", token).Msg("failed to record upload metadata")
        }
    }

    metrics.IncUpload(obj.Type(), "success")
    metrics.ObserveUploadSize(len(data))
    logger(r).Info().Str("doc_id", token).Str("filename", hdr.Filename).Int("size", len(data)).Msg("document uploaded")

    writeJSON(w, http.StatusCreated, uploadResp{DocID: token, Filename: hdr.Filename, Size: obj.Size, Pages: pages, Type: obj.Type()})
}

func (s *Server) releaseToken(ctx context.Context, r *http.Request, token string) {
    if s.deps.Tokens == nil { return }
    if err := s.deps.Tokens.Release(ctx, token); err != nil {
        logger(r).Warn().Err(err).Str("doc_id", token).Msg("failed to release token")
    }
}

func (s *Server) pageCount(ctx context.Context, obj storage.Object) (int, error) {
    path, release, err := s.deps.Store.Fetch(ctx, obj)
    if err != nil { return 0, err }
    defer release()
    return s.deps.Documents.PageCount(path)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
    ctx := r.Context()
    obj, err := s.deps.Store.Find(ctx, r.PathValue("id"))
    if err != nil {
        writeError(w, r, err)
        return
    }
    resp := infoResp{DocID: obj.Token, Filename: obj.Name, StoredAs: obj.Name, Size: obj.Size, Type: obj.Type(), UploadedAt: obj.ModTime}
    if s.deps.Tokens != nil {
        if m, ok, err := s.deps.Tokens.Meta(ctx, obj.Token); err == nil && ok && m.Filename != "" {
            resp.Filename = m.Filename
        }
    }
    if obj.IsPDF() {
        err := s.withLocalCopy(ctx, obj, func(path string) error {
            n, err := s.deps.Documents.PageCount(path)
            if err != nil { return err }
            info, err := s.deps.Documents.Info(path)
            if err != nil { return err }
            resp.Pages, resp.Info = &n, &info
            return nil
        })
        if err != nil {
            writeError(w, r, err)
            return
        }
    }
    writeJSON(w, http.StatusOK, resp)
}

// handlePage answers with the rendered PNG and carries the page's text
// layer in X-Page-Text.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
    page, obj, ok := s.resolvePage(w, r)
    if !ok { return }

    var (
        img   []byte
        text  string
        count int
    )
    err := s.withLocalCopy(r.Context(), obj, func(path string) error {
        var g errgroup.Group
        g.Go(func() (err error) { img, err = s.deps.Documents.RenderPage(path, page); return err })
        g.Go(func() (err error) { text, err = s.deps.Documents.PageText(path, page); return err })
        g.Go(func() (err error) { count, err = s.deps.Documents.PageCount(path); return err })
        return g.Wait()
    })
    if err != nil {
        writeError(w, r, err)
        return
    }

    h := w.Header()
    h.Set("Content-Type", "image/png")
    h.Set("Content-Length", strconv.Itoa(len(img)))
    h.Set("Cache-Control", "private, max-age=3600")
    h.Set("X-Page-Text", url.PathEscape(text))
    h.Set("X-Page-Text-Encoding", "percent")
    h.Set("X-Page-Count", strconv.Itoa(count))
    h.Set("X-Page-Index", strconv.Itoa(page))
    w.WriteHeader(http.StatusOK)
    if _, err := w.Write(img); err != nil {
        logger(r).Debug().Err(err).Msg("write page image failed")
    }
}

func (s *Server) handlePageText(w http.ResponseWriter, r *http.Request) {
    page, obj, ok := s.resolvePage(w, r)
    if !ok { return }

    var text string
    err := s.withLocalCopy(r.Context(), obj, func(path string) (err error) {
        text, err = s.deps.Documents.PageText(path, page)
        return err
    })
    if err != nil {
        writeError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, pageTextResp{DocID: obj.Token, Page: page, Text: text})
}

// handleOCR renders the page, runs OCR on the image and summarizes the
// result. Either provider failing fails the whole request.
func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
    page, obj, ok := s.resolvePage(w, r)
    if !ok { return }
    ctx := r.Context()

    var img []byte
    err := s.withLocalCopy(ctx, obj, func(path string) (err error) {
        img, err = s.deps.Documents.RenderForRecognition(path, page)
        return err
    })
    if err != nil {
        writeError(w, r, err)
        return
    }

    text, err := s.deps.Recognition.RecognizeText(ctx, img)
    if err != nil {
        writeError(w, r, err)
        return
    }
    summary, err := s.deps.Recognition.Summarize(ctx, text)
    if err != nil {
        writeError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, ocrResp{DocID: obj.Token, Page: page, OCRText: text, Summary: summary})
}

// resolvePage parses {n}, resolves {id} and rejects non-PDF documents. It
// writes the error response itself when ok is false.
func (s *Server) resolvePage(w http.ResponseWriter, r *http.Request) (int, storage.Object, bool) {
    obj, err := s.deps.Store.Find(r.Context(), r.PathValue("id"))
    if err != nil {
        writeError(w, r, err)
        return 0, obj, false
    }
    page, err := strconv.Atoi(r.PathValue("n"))
    if err != nil {
        writeError(w, r, badRequest("invalid_page", fmt.Sprintf("page %q is not an integer", r.PathValue("n"))))
        return 0, obj, false
    }
    if !obj.IsPDF() {
        writeError(w, r, fmt.Errorf("%s: %w", obj.Type(), errUnsupportedOperation))
        return 0, obj, false
    }
    return page, obj, true
}

func (s *Server) withLocalCopy(ctx context.Context, obj storage.Object, fn func(path string) error) error {
    path, release, err := s.deps.Store.Fetch(ctx, obj)
    if err != nil { return err }
    defer release()
    return fn(path)
}
