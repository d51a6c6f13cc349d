package config

import (
    "fmt"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
    Port            string
    CORSOrigins     []string
    MaxUploadBytes  int64
    ShutdownTimeout time.Duration
}

// S3Config configures the S3 storage backend.
type S3Config struct {
    Bucket          string
    Prefix          string
    Region          string
    Endpoint        string // custom endpoint (MinIO, R2); empty = AWS
    AccessKeyID     string
    SecretAccessKey string
    UsePathStyle    bool
}

// GCSConfig configures the Google Cloud Storage backend.
type GCSConfig struct {
    Bucket string
    Prefix string
}

// StorageConfig selects and configures where uploads live.
type StorageConfig struct {
    Backend         string // "local"|"s3"|"gcs"
    UploadDir       string
    S3              S3Config
    GCS             GCSConfig
    TokenRedisURL   string        // optional; reserves tokens across replicas
    RetentionMaxAge time.Duration // 0 disables the sweeper
    SweepInterval   time.Duration
}

// RenderConfig controls page rasterization.
type RenderConfig struct {
    DPI        float64
    OCRDPI     float64
    OCRMaxEdge int
}

// ProviderConfig holds credentials and model for one AI provider.
type ProviderConfig struct {
    APIKey  string
    Model   string
    BaseURL string
}

// VertexConfig holds Vertex AI settings.
type VertexConfig struct {
    ProjectID       string
    Region          string
    Model           string
    CredentialsFile string
}

// RecognitionConfig selects OCR and summary providers.
type RecognitionConfig struct {
    OCRProvider      string        // "gemini"|"vertex"|"openai"|"anthropic"|"tesseract"
    SummaryProvider  string        // same set minus "tesseract"
    OCRModel         string        // overrides the provider's model for OCR
    SummaryModel     string        // overrides the provider's model for summaries
    OCRMaxTokens     int           // 0 = provider default
    SummaryMaxTokens int           // 0 = provider default
    Timeout          time.Duration // 0 = no timeout
    MaxInflight      int           // concurrent calls per provider; 0 = unbounded
    CooldownBase     time.Duration // first back-off after a rate limit; 0 = off
    CooldownMax      time.Duration
    CooldownRedis    string        // optional; shares cooldowns across replicas
    Gemini           ProviderConfig
    OpenAI           ProviderConfig
    Anthropic        ProviderConfig
    Vertex           VertexConfig
    TesseractLangs   []string
}

// Config is the top-level configuration.
type Config struct {
    Environment string
    Logging     LoggingConfig
    Axiom       AxiomConfig
    Server      ServerConfig
    Storage     StorageConfig
    Render      RenderConfig
    Recognition RecognitionConfig
}

// FromEnv loads configuration from environment with sensible defaults.
// A .env file (or ENV_FILE) is read first; variables already set win.
func FromEnv() Config {
    envFile := getEnv("ENV_FILE", ".env")
    if _, err := os.Stat(envFile); err == nil {
        _ = godotenv.Load(envFile)
    }

    cfg := Config{Environment: getEnv("ENVIRONMENT", "production")}

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/tourneur.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_tourneur",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    cfg.Server = ServerConfig{
        Port:            getEnv("PORT", "8000"),
        CORSOrigins:     parseList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:7683")),
        MaxUploadBytes:  int64(parseInt(getEnv("MAX_UPLOAD_BYTES", ""), 64<<20)),
        ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
    }

    cfg.Storage = StorageConfig{
        Backend:   strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
        UploadDir: getEnv("UPLOAD_DIR", "data/uploads"),
        S3: S3Config{
            Bucket:          getEnv("AWS_S3_BUCKET", ""),
            Prefix:          getEnv("AWS_S3_PREFIX", "uploads/"),
            Region:          getEnv("AWS_REGION", ""),
            Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
            AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
            SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
            UsePathStyle:    parseBool(getEnv("AWS_S3_PATH_STYLE", "false")),
        },
        GCS: GCSConfig{
            Bucket: getEnv("GCS_BUCKET", ""),
            Prefix: getEnv("GCS_PREFIX", "uploads/"),
        },
        TokenRedisURL:   getEnv("TOKEN_REDIS_URL", ""),
        RetentionMaxAge: parseDuration(getEnv("RETENTION_MAX_AGE", ""), 0),
        SweepInterval:   parseDuration(getEnv("RETENTION_SWEEP_INTERVAL", "1h"), time.Hour),
    }

    cfg.Render = RenderConfig{
        DPI:        parseFloat(getEnv("RENDER_DPI", "72"), 72),
        OCRDPI:     parseFloat(getEnv("OCR_RENDER_DPI", ""), 0),
        OCRMaxEdge: parseInt(getEnv("OCR_MAX_EDGE", "2000"), 2000),
    }
    if cfg.Render.OCRDPI <= 0 { cfg.Render.OCRDPI = cfg.Render.DPI }

    cfg.Recognition = RecognitionConfig{
        OCRProvider:      strings.ToLower(getEnv("OCR_PROVIDER", "gemini")),
        SummaryProvider:  strings.ToLower(getEnv("SUMMARY_PROVIDER", "")),
        OCRModel:         getEnv("OCR_MODEL", ""),
        SummaryModel:     getEnv("SUMMARY_MODEL", ""),
        OCRMaxTokens:     parseInt(getEnv("OCR_MAX_TOKENS", "0"), 0),
        SummaryMaxTokens: parseInt(getEnv("SUMMARY_MAX_TOKENS", "0"), 0),
        Timeout:          parseDuration(getEnv("RECOGNITION_TIMEOUT", ""), 0),
        MaxInflight:      parseInt(getEnv("RECOGNITION_MAX_INFLIGHT", "0"), 0),
        CooldownBase:     parseDuration(getEnv("RECOGNITION_COOLDOWN_BASE", ""), 0),
        CooldownMax:      parseDuration(getEnv("RECOGNITION_COOLDOWN_MAX", "5m"), 5*time.Minute),
        CooldownRedis:    getEnv("RECOGNITION_REDIS_URL", getEnv("TOKEN_REDIS_URL", "")),
        Gemini: ProviderConfig{
            APIKey:  getEnv("GOOGLE_API_KEY", ""),
            Model:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
            BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
        },
        OpenAI: ProviderConfig{
            APIKey:  getEnv("OPENAI_API_KEY", ""),
            Model:   getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
            BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
        },
        Anthropic: ProviderConfig{
            APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
            Model:   getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
            BaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
        },
        Vertex: VertexConfig{
            ProjectID:       getEnv("VERTEX_PROJECT_ID", getEnv("PROJECT_ID", "")),
            Region:          getEnv("VERTEX_AI_REGION", "us-central1"),
            Model:           getEnv("VERTEX_MODEL", "gemini-2.5-flash"),
            CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
        },
        TesseractLangs: parseList(getEnv("TESSERACT_LANGS", "eng")),
    }
    if cfg.Recognition.SummaryProvider == "" {
        cfg.Recognition.SummaryProvider = cfg.Recognition.OCRProvider
        if cfg.Recognition.SummaryProvider == "tesseract" { cfg.Recognition.SummaryProvider = "gemini" }
    }

    return cfg
}

// Warnings reports conditions that do not stop startup but will make
// some requests fail later (e.g. a missing API key).
func (c Config) Warnings() []string {
    var out []string
    seen := map[string]bool{}
    for _, p := range []string{c.Recognition.OCRProvider, c.Recognition.SummaryProvider} {
        if seen[p] { continue }
        seen[p] = true
        switch p {
        case "gemini":
            if c.Recognition.Gemini.APIKey == "" { out = append(out, "GOOGLE_API_KEY not set (gemini recognition calls will fail)") }
        case "openai":
            if c.Recognition.OpenAI.APIKey == "" { out = append(out, "OPENAI_API_KEY not set (openai recognition calls will fail)") }
        case "anthropic":
            if c.Recognition.Anthropic.APIKey == "" { out = append(out, "ANTHROPIC_API_KEY not set (anthropic recognition calls will fail)") }
        case "vertex":
            if c.Recognition.Vertex.ProjectID == "" { out = append(out, "VERTEX_PROJECT_ID not set (vertex recognition calls will fail)") }
        case "tesseract":
        default:
            out = append(out, fmt.Sprintf("unknown recognition provider %q (calls will fail)", p))
        }
    }
    if c.Recognition.SummaryProvider == "tesseract" {
        out = append(out, "tesseract cannot summarize; SUMMARY_PROVIDER=tesseract makes every summary fail")
    }
    switch c.Storage.Backend {
    case "s3":
        if c.Storage.S3.Bucket == "" { out = append(out, "AWS_S3_BUCKET not set for s3 storage backend") }
    case "gcs":
        if c.Storage.GCS.Bucket == "" { out = append(out, "GCS_BUCKET not set for gcs storage backend") }
    }
    return out
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func parseList(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" { out = append(out, p) }
    }
    return out
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}
