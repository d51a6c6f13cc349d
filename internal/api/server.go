package api

import (
    "context"
    "encoding/json"
    "net/http"
    "runtime/debug"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/rs/cors"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/hlog"
    "github.com/rs/zerolog/log"

    "github.com/local/tourneur/internal/document"
    "github.com/local/tourneur/internal/filetype"
    "github.com/local/tourneur/internal/metrics"
    "github.com/local/tourneur/internal/statuscheck"
    "github.com/local/tourneur/internal/storage"
    "github.com/local/tourneur/internal/store"
)

const serviceName = "tourneur-de-page"

// Documents renders and reads PDFs on the local filesystem.
type Documents interface {
    PageCount(path string) (int, error)
    RenderPage(path string, page int) ([]byte, error)
    RenderForRecognition(path string, page int) ([]byte, error)
    PageText(path string, page int) (string, error)
    Info(path string) (document.Info, error)
}

// Recognizer turns page images into text and text into summaries.
type Recognizer interface {
    RecognizeText(ctx context.Context, image []byte) (string, error)
    Summarize(ctx context.Context, text string) (string, error)
}

// TokenRegistry reserves tokens and remembers client filenames across replicas.
type TokenRegistry interface {
    storage.Reserver
    Release(ctx context.Context, token string) error
    Record(ctx context.Context, token string, m store.UploadMeta) error
    Meta(ctx context.Context, token string) (store.UploadMeta, bool, error)
}

type Dependencies struct {
    Store          storage.Store
    Documents      Documents
    Recognition    Recognizer
    Tokens         TokenRegistry // optional
    Detector       *filetype.Detector
    Health         *statuscheck.Checker // optional; enables /health/deps
    MaxUploadBytes int64
    CORSOrigins    []string
}

type Server struct {
    deps Dependencies
}

func New(deps Dependencies) *Server {
    if deps.Detector == nil { deps.Detector = filetype.New() }
    if deps.MaxUploadBytes <= 0 { deps.MaxUploadBytes = 64 << 20 }
    return &Server{deps: deps}
}

// RegisterRoutes mounts the document routes at the root and under /api.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
    for _, prefix := range []string{"", "/api"} {
        s.handle(mux, "POST", prefix, "/documents", s.handleUpload)
        s.handle(mux, "POST", prefix, "/documents/upload", s.handleUpload)
        s.handle(mux, "GET", prefix, "/documents/{id}", s.handleInfo)
        s.handle(mux, "GET", prefix, "/documents/{id}/pages/{n}", s.handlePage)
        s.handle(mux, "GET", prefix, "/documents/{id}/pages/{n}/text", s.handlePageText)
        s.handle(mux, "GET", prefix, "/documents/{id}/ocr/{n}", s.handleOCR)
    }
    s.handle(mux, "GET", "", "/health", s.handleHealth)
    s.handle(mux, "GET", "", "/health/deps", s.handleDeps)
    mux.Handle("GET /metrics", metrics.Handler())
}

// handle registers h with per-route request metrics. route is the
// unprefixed pattern so /api and root share label values.
func (s *Server) handle(mux *http.ServeMux, method, prefix, route string, h http.HandlerFunc) {
    labels := prometheus.Labels{"route": route}
    wrapped := promhttp.InstrumentHandlerDuration(metrics.HTTPDuration.MustCurryWith(labels),
        promhttp.InstrumentHandlerCounter(metrics.HTTPRequests.MustCurryWith(labels), h))
    mux.Handle(method+" "+prefix+route, wrapped)
}

// Handler returns the routed mux wrapped in logging, recovery and CORS.
func (s *Server) Handler() http.Handler {
    mux := http.NewServeMux()
    s.RegisterRoutes(mux)

    var h http.Handler = mux
    h = recoverer(h)
    h = hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
        ev := hlog.FromRequest(r).Info()
        if status >= 500 {
            ev = hlog.FromRequest(r).Error()
        } else if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
            ev = hlog.FromRequest(r).Debug()
        }
        ev.Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("duration", dur).Msg("request")
    })(h)
    h = hlog.RequestIDHandler("req_id", "X-Request-Id")(h)
    h = hlog.NewHandler(log.Logger)(h)
    return newCORS(s.deps.CORSOrigins).Handler(h)
}

func newCORS(origins []string) *cors.Cors {
    if len(origins) == 0 { origins = []string{"*"} }
    return cors.New(cors.Options{
        AllowedOrigins: origins,
        AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
        AllowedHeaders: []string{"*"},
        ExposedHeaders: []string{"X-Page-Text", "X-Page-Text-Encoding", "X-Page-Count", "X-Page-Index", "X-Request-Id"},
        MaxAge:         600,
    })
}

func recoverer(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        defer func() {
            if rec := recover(); rec != nil {
                if rec == http.ErrAbortHandler { panic(rec) }
                hlog.FromRequest(r).Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("handler panicked")
                writeJSONError(w, http.StatusInternalServerError, "internal_error", "internal server error")
            }
        }()
        next.ServeHTTP(w, r)
    })
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": serviceName})
}

func (s *Server) handleDeps(w http.ResponseWriter, r *http.Request) {
    if s.deps.Health == nil {
        writeJSONError(w, http.StatusNotImplemented, "unsupported_operation", "dependency checks not configured")
        return
    }
    sum := s.deps.Health.Summary(r.Context())
    status := http.StatusOK
    if !sum.OK() { status = http.StatusServiceUnavailable }
    writeJSON(w, status, sum)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    if err := json.NewEncoder(w).Encode(v); err != nil {
        log.Debug().Err(err).Msg("write response failed")
    }
}

func logger(r *http.Request) *zerolog.Logger { return hlog.FromRequest(r) }
