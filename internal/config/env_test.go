package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, k := range []string{
		"GOOGLE_API_KEY", "OCR_PROVIDER", "SUMMARY_PROVIDER", "RENDER_DPI", "OCR_RENDER_DPI",
		"STORAGE_BACKEND", "UPLOAD_DIR", "CORS_ORIGINS", "MAX_UPLOAD_BYTES", "RETENTION_MAX_AGE",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "VERTEX_PROJECT_ID", "PROJECT_ID", "AWS_S3_BUCKET",
		"TOKEN_REDIS_URL", "RECOGNITION_REDIS_URL", "RECOGNITION_MAX_INFLIGHT", "RECOGNITION_COOLDOWN_BASE",
		"OCR_MODEL", "SUMMARY_MODEL", "OCR_MAX_TOKENS", "SUMMARY_MAX_TOKENS",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	isolate(t)

	cfg := FromEnv()
	if cfg.Storage.Backend != "local" {
		t.Fatalf("expected local backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Storage.UploadDir != "data/uploads" {
		t.Fatalf("unexpected upload dir %q", cfg.Storage.UploadDir)
	}
	if cfg.Render.DPI != 72 || cfg.Render.OCRDPI != 72 {
		t.Fatalf("expected 72 dpi for both renders, got %v/%v", cfg.Render.DPI, cfg.Render.OCRDPI)
	}
	if cfg.Recognition.OCRProvider != "gemini" || cfg.Recognition.SummaryProvider != "gemini" {
		t.Fatalf("expected gemini providers, got %q/%q", cfg.Recognition.OCRProvider, cfg.Recognition.SummaryProvider)
	}
	if cfg.Recognition.Timeout != 0 {
		t.Fatalf("expected no recognition timeout, got %s", cfg.Recognition.Timeout)
	}
	if cfg.Recognition.MaxInflight != 0 || cfg.Recognition.CooldownBase != 0 || cfg.Recognition.CooldownRedis != "" {
		t.Fatalf("unexpected limiter defaults %+v", cfg.Recognition)
	}
	if cfg.Server.MaxUploadBytes != 64<<20 {
		t.Fatalf("unexpected upload cap %d", cfg.Server.MaxUploadBytes)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Fatalf("expected two default CORS origins, got %v", cfg.Server.CORSOrigins)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("RENDER_DPI", "150")
	t.Setenv("OCR_PROVIDER", "Tesseract")
	t.Setenv("RETENTION_MAX_AGE", "72h")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg := FromEnv()
	if cfg.Render.OCRDPI != 150 {
		t.Fatalf("OCR dpi should follow RENDER_DPI, got %v", cfg.Render.OCRDPI)
	}
	if cfg.Recognition.OCRProvider != "tesseract" {
		t.Fatalf("provider should be lowercased, got %q", cfg.Recognition.OCRProvider)
	}
	if cfg.Recognition.SummaryProvider != "gemini" {
		t.Fatalf("tesseract cannot summarize; expected gemini fallback, got %q", cfg.Recognition.SummaryProvider)
	}
	if cfg.Storage.RetentionMaxAge != 72*time.Hour {
		t.Fatalf("unexpected retention %s", cfg.Storage.RetentionMaxAge)
	}
	if got := cfg.Server.CORSOrigins; len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", got)
	}
}

func TestFromEnvReadsDotEnvWithoutOverriding(t *testing.T) {
	isolate(t)
	p := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(p, []byte("GEMINI_MODEL=from-file\nOPENAI_MODEL=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", p)
	t.Setenv("OPENAI_MODEL", "from-env")
	t.Setenv("GEMINI_MODEL", "")
	os.Unsetenv("GEMINI_MODEL")

	cfg := FromEnv()
	if cfg.Recognition.Gemini.Model != "from-file" {
		t.Fatalf("expected model from .env, got %q", cfg.Recognition.Gemini.Model)
	}
	if cfg.Recognition.OpenAI.Model != "from-env" {
		t.Fatalf("environment should win over .env, got %q", cfg.Recognition.OpenAI.Model)
	}
}

func TestWarningsForMissingKey(t *testing.T) {
	isolate(t)

	cfg := FromEnv()
	w := cfg.Warnings()
	if len(w) != 1 {
		t.Fatalf("expected a single missing-key warning, got %v", w)
	}

	cfg.Recognition.Gemini.APIKey = "k"
	if w := cfg.Warnings(); len(w) != 0 {
		t.Fatalf("expected no warnings, got %v", w)
	}
}

func TestCooldownRedisFollowsTokenRedis(t *testing.T) {
	isolate(t)
	t.Setenv("TOKEN_REDIS_URL", "redis://cache:6379/2")

	cfg := FromEnv()
	if cfg.Recognition.CooldownRedis != "redis://cache:6379/2" {
		t.Fatalf("cooldowns should share the token redis by default, got %q", cfg.Recognition.CooldownRedis)
	}
	t.Setenv("RECOGNITION_REDIS_URL", "redis://other:6379/0")
	if got := FromEnv().Recognition.CooldownRedis; got != "redis://other:6379/0" {
		t.Fatalf("explicit limiter redis should win, got %q", got)
	}
}

func TestPerOpRecognitionSettings(t *testing.T) {
	isolate(t)
	t.Setenv("SUMMARY_MODEL", "gemini-2.5-pro")
	t.Setenv("OCR_MAX_TOKENS", "8192")

	r := FromEnv().Recognition
	if r.SummaryModel != "gemini-2.5-pro" || r.OCRModel != "" {
		t.Fatalf("unexpected models %q/%q", r.OCRModel, r.SummaryModel)
	}
	if r.OCRMaxTokens != 8192 || r.SummaryMaxTokens != 0 {
		t.Fatalf("unexpected token budgets %d/%d", r.OCRMaxTokens, r.SummaryMaxTokens)
	}
}
