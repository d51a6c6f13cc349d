package main

import (
    "context"
    "errors"
    "net/http"
    "os/signal"
    "syscall"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/tourneur/internal/ai"
    "github.com/local/tourneur/internal/api"
    cfgpkg "github.com/local/tourneur/internal/config"
    "github.com/local/tourneur/internal/document"
    "github.com/local/tourneur/internal/filetype"
    "github.com/local/tourneur/internal/limiter"
    logpkg "github.com/local/tourneur/internal/logger"
    "github.com/local/tourneur/internal/metrics"
    "github.com/local/tourneur/internal/statuscheck"
    "github.com/local/tourneur/internal/storage"
    "github.com/local/tourneur/internal/store"
)

func main() {
    cfg := cfgpkg.FromEnv()

    // Init logging
    if err := logpkg.Init(logpkg.Options{
        Level:        cfg.Logging.Level,
        Pretty:       cfg.Logging.Pretty,
        File:         cfg.Logging.File,
        MaxSizeMB:    cfg.Logging.MaxSizeMB,
        MaxBackups:   cfg.Logging.MaxBackups,
        MaxAgeDays:   cfg.Logging.MaxAgeDays,
        Compress:     cfg.Logging.Compress,
        Environment:  cfg.Environment,
        SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey:  cfg.Axiom.APIKey,
        AxiomOrgID:   cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush:   cfg.Axiom.FlushInterval,
    }); err != nil {
        log.Warn().Err(err).Msg("logger init incomplete, continuing with console output")
    }
    defer logpkg.Close()

    for _, w := range cfg.Warnings() {
        log.Warn().Msg(w)
    }
    metrics.Init()

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    // Storage
    st, err := storage.New(ctx, cfg.Storage)
    if err != nil {
        log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("failed to init storage")
    }
    defer st.Close()

    deps := api.Dependencies{
        Store:          st,
        Detector:       filetype.New(),
        MaxUploadBytes: cfg.Server.MaxUploadBytes,
        CORSOrigins:    cfg.Server.CORSOrigins,
    }
    health := statuscheck.Options{Storage: st, StorageBackend: st.Backend()}

    // Token registry (optional)
    if cfg.Storage.TokenRedisURL != "" {
        tr, err := store.NewTokenRegistry(cfg.Storage.TokenRedisURL)
        if err != nil {
            log.Fatal().Err(err).Msg("failed to init token registry")
        }
        defer tr.Close()
        deps.Tokens = tr
        health.Tokens = tr
    }

    docs := document.New(cfg.Render)
    rec := ai.NewService(ctx, cfg.Recognition)
    defer rec.Close()

    // Provider guard (off unless a cap or cooldown is configured)
    if cfg.Recognition.MaxInflight > 0 || cfg.Recognition.CooldownBase > 0 {
        opts := limiter.Options{
            MaxInflight: cfg.Recognition.MaxInflight,
            BaseBackoff: cfg.Recognition.CooldownBase,
            MaxBackoff:  cfg.Recognition.CooldownMax,
        }
        if cfg.Recognition.CooldownBase > 0 { opts.RedisURL = cfg.Recognition.CooldownRedis }
        guard, err := limiter.New(opts)
        if err != nil {
            log.Warn().Err(err).Msg("shared cooldowns unavailable, keeping them in process")
            opts.RedisURL = ""
            guard, _ = limiter.New(opts)
        }
        defer guard.Close()
        rec.SetLimiter(guard)
        log.Info().Int("max_inflight", opts.MaxInflight).Dur("cooldown", opts.BaseBackoff).Bool("shared", guard.Shared()).Msg("recognition guard enabled")
    }
    deps.Documents = docs
    deps.Recognition = rec

    health.Providers = rec
    health.MuPDFVersion = docs.MuPDFVersion()
    deps.Health = statuscheck.New(health)

    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           api.New(deps).Handler(),
        ReadHeaderTimeout: 10 * time.Second,
    }

    if cfg.Storage.RetentionMaxAge > 0 {
        go storage.RunSweeper(ctx, st, cfg.Storage.RetentionMaxAge, cfg.Storage.SweepInterval)
    }

    go func() {
        log.Info().Str("port", cfg.Server.Port).Str("storage", st.Backend()).
            Str("ocr_provider", cfg.Recognition.OCRProvider).Str("summary_provider", cfg.Recognition.SummaryProvider).
            Msg("HTTP server listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Error().Err(err).Msg("http server error")
            stop()
        }
    }()

    // Graceful shutdown
    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
    defer cancel()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        log.Warn().Err(err).Msg("graceful shutdown incomplete")
    }
    log.Info().Msg("shutdown complete")
}
