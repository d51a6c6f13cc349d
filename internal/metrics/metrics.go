package metrics

import (
    "net/http"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    uploads = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "tourneur",
            Name:      "uploads_total",
            Help:      "Document uploads by file type and result",
        },
        []string{"type", "result"},
    )

    uploadBytes = prometheus.NewHistogram(
        prometheus.HistogramOpts{
            Namespace: "tourneur",
            Name:      "upload_size_bytes",
            Help:      "Size of accepted uploads",
            Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 8),
        },
    )

    renders = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "tourneur",
            Name:      "page_renders_total",
            Help:      "Document operations by purpose (view, recognition, text, count) and result",
        },
        []string{"purpose", "result"},
    )

    renderLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "tourneur",
            Name:      "page_render_duration_seconds",
            Help:      "Duration of page rasterization including document open",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"purpose"},
    )

    providerReqs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "tourneur",
            Name:      "provider_requests_total",
            Help:      "Recognition provider requests by provider, operation and result",
        },
        []string{"provider", "op", "result"},
    )

    providerLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "tourneur",
            Name:      "provider_request_duration_seconds",
            Help:      "Duration of recognition provider requests",
            Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80},
        },
        []string{"provider", "op"},
    )

    // HTTPRequests and HTTPDuration are curried per route by the API layer.
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "tourneur",
            Name:      "http_requests_total",
            Help:      "HTTP requests by route, method and status code",
        },
        []string{"route", "method", "code"},
    )

    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "tourneur",
            Name:      "http_request_duration_seconds",
            Help:      "HTTP request latency by route",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"route", "method", "code"},
    )

    sweptFiles = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "tourneur",
            Name:      "retention_removed_files_total",
            Help:      "Files removed by the retention sweeper",
        },
    )

    initOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
    initOnce.Do(func() {
        prometheus.MustRegister(uploads, uploadBytes, renders, renderLatency, providerReqs, providerLatency, HTTPRequests, HTTPDuration, sweptFiles)
    })
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncUpload(fileType, result string) { uploads.WithLabelValues(fileType, result).Inc() }
func ObserveUploadSize(n int) { uploadBytes.Observe(float64(n)) }

func ObserveRender(purpose string, err error, dur time.Duration) {
    renders.WithLabelValues(purpose, resultOf(err)).Inc()
    renderLatency.WithLabelValues(purpose).Observe(dur.Seconds())
}

func ObserveProvider(provider, op string, err error, dur time.Duration) {
    providerReqs.WithLabelValues(provider, op, resultOf(err)).Inc()
    providerLatency.WithLabelValues(provider, op).Observe(dur.Seconds())
}

func AddSwept(n int) { sweptFiles.Add(float64(n)) }

func resultOf(err error) string { if err != nil { return "error" }; return "success" }
