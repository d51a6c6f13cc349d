package store

import (
    "context"
    "os"
    "testing"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// Runs against a real Redis when TOKEN_REDIS_TEST_URL is set.
func TestTokenRegistryReserveOnce(t *testing.T) {
    url := os.Getenv("TOKEN_REDIS_TEST_URL")
    if url == "" { t.Skip("TOKEN_REDIS_TEST_URL not set") }

    reg, err := NewTokenRegistry(url)
    if err != nil { t.Fatalf("connect: %v", err) }
    defer reg.Close()

    ctx := context.Background()
    token := "t" + time.Now().Format("150405.000")
    defer reg.Release(ctx, token)

    ok, err := reg.Reserve(ctx, token)
    if err != nil || !ok { t.Fatalf("first reserve: ok=%v err=%v", ok, err) }
    ok, err = reg.Reserve(ctx, token)
    if err != nil || ok { t.Fatalf("second reserve should fail: ok=%v err=%v", ok, err) }

    if err := reg.Record(ctx, token, UploadMeta{Filename: "scan.pdf", Size: 42, Created: time.Now()}); err != nil {
        t.Fatalf("record: %v", err)
    }
    m, found, err := reg.Meta(ctx, token)
    if err != nil || !found { t.Fatalf("meta: found=%v err=%v", found, err) }
    if m.Filename != "scan.pdf" || m.Size != 42 { t.Fatalf("unexpected meta %+v", m) }
}

// Runs against a real Redis when TOKEN_REDIS_TEST_URL is set.
func TestTokenRegistryFromClientAppliesTTL(t *testing.T) {
    url := os.Getenv("TOKEN_REDIS_TEST_URL")
    if url == "" { t.Skip("TOKEN_REDIS_TEST_URL not set") }

    opt, err := redis.ParseURL(url)
    if err != nil { t.Fatalf("parse url: %v", err) }
    client := redis.NewClient(opt)
    reg := NewTokenRegistryFromClient(client, 2*time.Second)
    defer reg.Close()

    ctx := context.Background()
    if err := reg.Ping(ctx); err != nil { t.Fatalf("ping: %v", err) }
    token := "x" + time.Now().Format("150405.000")
    defer reg.Release(ctx, token)

    ok, err := reg.Reserve(ctx, token)
    if err != nil || !ok { t.Fatalf("reserve: ok=%v err=%v", ok, err) }
    if err := reg.Record(ctx, token, UploadMeta{Filename: "a.png", Size: 1, Created: time.Now()}); err != nil {
        t.Fatalf("record: %v", err)
    }
    for _, key := range []string{reg.reserveKey(token), reg.metaKey(token)} {
        ttl, err := client.TTL(ctx, key).Result()
        if err != nil { t.Fatalf("ttl %s: %v", key, err) }
        if ttl <= 0 || ttl > 2*time.Second { t.Fatalf("key %s: expected ttl within 2s, got %s", key, ttl) }
    }
}

func TestNewTokenRegistryRejectsBadURL(t *testing.T) {
    if _, err := NewTokenRegistry("not a url"); err == nil {
        t.Fatalf("expected parse error")
    }
}
