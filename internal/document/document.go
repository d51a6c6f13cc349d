package document

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/local/tourneur/internal/config"
	"github.com/local/tourneur/internal/logger"
	"github.com/local/tourneur/internal/metrics"
)

const (
	defaultDPI   = 72
	purposeView  = "view"
	purposeRecog = "recognition"
	purposeText  = "text"
	purposeCount = "count"
)

func init() {
	// pdfcpu otherwise writes a config dir under $HOME on first use.
	api.DisableConfigDir()
}

// Service renders pages and reads text layers from PDFs on the local
// filesystem. Each call opens and closes its own document, so a Service is
// safe for concurrent use.
type Service struct {
	dpi     float64
	ocrDPI  float64
	maxEdge int
	lg      zerolog.Logger
}

func New(cfg config.RenderConfig) *Service {
	s := &Service{dpi: cfg.DPI, ocrDPI: cfg.OCRDPI, maxEdge: cfg.OCRMaxEdge}
	if s.dpi <= 0 {
		s.dpi = defaultDPI
	}
	if s.ocrDPI <= 0 {
		s.ocrDPI = s.dpi
	}
	s.lg = logger.Component("document")
	return s
}

// MuPDFVersion reports the linked MuPDF version.
func (s *Service) MuPDFVersion() string { return fitz.FzVersion }

// PageCount returns the number of pages. pdfcpu is tried first; MuPDF is
// the fallback for files pdfcpu is too strict about.
func (s *Service) PageCount(path string) (n int, err error) {
	start := time.Now()
	defer func() { metrics.ObserveRender(purposeCount, err, time.Since(start)) }()

	n, err = api.PageCountFile(path)
	if err == nil && n > 0 {
		return n, nil
	}
	s.lg.Debug().Err(err).Str("file", path).Msg("pdfcpu page count failed, trying MuPDF")

	doc, ferr := fitz.New(path)
	if ferr != nil {
		return 0, &OpenError{Path: path, Err: ferr}
	}
	defer doc.Close()
	n = doc.NumPage()
	if n <= 0 {
		return 0, &OpenError{Path: path, Err: fmt.Errorf("document has no pages")}
	}
	return n, nil
}

// open returns the document with page validated against its page count.
func open(path string, page int) (*fitz.Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}
	if n := doc.NumPage(); page < 0 || page >= n {
		doc.Close()
		return nil, &RangeError{Page: page, Count: n}
	}
	return doc, nil
}

// RenderPage rasterizes one page (0-based) to PNG at the configured DPI.
func (s *Service) RenderPage(path string, page int) (out []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveRender(purposeView, err, time.Since(start)) }()

	img, err := s.render(path, page, s.dpi)
	if err != nil {
		return nil, err
	}
	return encodePNG(img)
}

// RenderForRecognition rasterizes at the OCR DPI and shrinks the image so its
// long edge does not exceed the configured maximum.
func (s *Service) RenderForRecognition(path string, page int) (out []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveRender(purposeRecog, err, time.Since(start)) }()

	img, err := s.render(path, page, s.ocrDPI)
	if err != nil {
		return nil, err
	}
	return encodePNG(fitLongEdge(img, s.maxEdge))
}

func (s *Service) render(path string, page int, dpi float64) (image.Image, error) {
	doc, err := open(path, page)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	img, err := doc.ImageDPI(page, dpi)
	if err != nil {
		return nil, &OpenError{Path: path, Err: fmt.Errorf("render page %d: %w", page, err)}
	}
	b := img.Bounds()
	s.lg.Debug().Int("page", page).Int("width", b.Dx()).Int("height", b.Dy()).Float64("dpi", dpi).Msg("rendered page")
	return img, nil
}

// PageText returns the page's text layer. A page with no text layer gives
// "" and no error.
func (s *Service) PageText(path string, page int) (text string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveRender(purposeText, err, time.Since(start)) }()

	doc, err := open(path, page)
	if err != nil {
		return "", err
	}
	defer doc.Close()

	raw, err := doc.Text(page)
	if err != nil {
		return "", &OpenError{Path: path, Err: fmt.Errorf("extract text from page %d: %w", page, err)}
	}
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return raw, nil
}

// fitLongEdge scales img down so max(width, height) <= maxEdge.
func fitLongEdge(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	long := b.Dx()
	if b.Dy() > long {
		long = b.Dy()
	}
	if maxEdge <= 0 || long <= maxEdge {
		return img
	}
	w := b.Dx() * maxEdge / long
	h := b.Dy() * maxEdge / long
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
