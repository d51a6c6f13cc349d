package limiter

import (
    "context"
    "fmt"
    "strings"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
    "golang.org/x/sync/semaphore"
)

// Guard caps in-flight recognition calls per provider and holds a cooldown
// after a provider answers with a rate limit. With a Redis client the
// cooldown is shared by every replica; otherwise it is kept in process.
// A zero MaxInflight leaves calls unbounded and a zero BaseBackoff turns
// cooldowns off.
type Guard struct {
    rdb         *redis.Client
    maxInflight int
    baseBackoff time.Duration
    maxBackoff  time.Duration

    mu    sync.Mutex
    sem   map[string]*semaphore.Weighted
    local map[string]cooldown
    now   func() time.Time
}

type cooldown struct {
    until    time.Time
    attempts int
}

type Options struct {
    RedisURL    string // optional
    MaxInflight int
    BaseBackoff time.Duration
    MaxBackoff  time.Duration
}

func New(opts Options) (*Guard, error) {
    if opts.MaxBackoff < opts.BaseBackoff { opts.MaxBackoff = opts.BaseBackoff }
    g := &Guard{
        maxInflight: opts.MaxInflight,
        baseBackoff: opts.BaseBackoff,
        maxBackoff:  opts.MaxBackoff,
        sem:         map[string]*semaphore.Weighted{},
        local:       map[string]cooldown{},
        now:         time.Now,
    }
    if opts.RedisURL == "" { return g, nil }
    ro, err := redis.ParseURL(opts.RedisURL)
    if err != nil { return nil, fmt.Errorf("parse limiter redis url: %w", err) }
    c := redis.NewClient(ro)
    if err := c.Ping(context.Background()).Err(); err != nil {
        _ = c.Close()
        return nil, fmt.Errorf("connect limiter redis: %w", err)
    }
    g.rdb = c
    return g, nil
}

func (g *Guard) key(provider string) string {
    return "tourneur:cooldown:" + strings.ToLower(provider)
}

// Acquire waits for a free slot for provider. The returned func releases it.
func (g *Guard) Acquire(ctx context.Context, provider string) (func(), error) {
    if g.maxInflight <= 0 { return func() {}, nil }
    key := strings.ToLower(provider)
    g.mu.Lock()
    sem, ok := g.sem[key]
    if !ok {
        sem = semaphore.NewWeighted(int64(g.maxInflight))
        g.sem[key] = sem
    }
    g.mu.Unlock()
    if err := sem.Acquire(ctx, 1); err != nil { return nil, err }
    return func() { sem.Release(1) }, nil
}

// CoolingDown reports whether provider is inside a cooldown and how long is left.
func (g *Guard) CoolingDown(ctx context.Context, provider string) (time.Duration, bool) {
    if g.baseBackoff <= 0 { return 0, false }
    now := g.now()
    if g.rdb != nil {
        ts, err := g.rdb.Get(ctx, g.key(provider)).Int64()
        if err != nil { return 0, false }
        left := time.Unix(ts, 0).Sub(now)
        return left, left > 0
    }
    g.mu.Lock()
    defer g.mu.Unlock()
    cd, ok := g.local[strings.ToLower(provider)]
    if !ok || !now.Before(cd.until) { return 0, false }
    return cd.until.Sub(now), true
}

// Trip starts or extends the cooldown. Each consecutive trip doubles it up
// to the configured maximum.
func (g *Guard) Trip(ctx context.Context, provider string) time.Duration {
    if g.baseBackoff <= 0 { return 0 }
    if g.rdb != nil {
        k := g.key(provider)
        attempts, _ := g.rdb.Incr(ctx, k+":attempts").Result()
        d := g.backoff(int(attempts))
        _ = g.rdb.Expire(ctx, k+":attempts", 2*g.maxBackoff).Err()
        _ = g.rdb.Set(ctx, k, g.now().Add(d).Unix(), d).Err()
        return d
    }
    g.mu.Lock()
    defer g.mu.Unlock()
    key := strings.ToLower(provider)
    cd := g.local[key]
    cd.attempts++
    d := g.backoff(cd.attempts)
    cd.until = g.now().Add(d)
    g.local[key] = cd
    return d
}

// Reset clears the cooldown after a successful call.
func (g *Guard) Reset(ctx context.Context, provider string) {
    if g.baseBackoff <= 0 { return }
    if g.rdb != nil {
        k := g.key(provider)
        _ = g.rdb.Del(ctx, k, k+":attempts").Err()
        return
    }
    g.mu.Lock()
    delete(g.local, strings.ToLower(provider))
    g.mu.Unlock()
}

func (g *Guard) backoff(attempts int) time.Duration {
    if attempts < 1 { attempts = 1 }
    d := g.baseBackoff
    for i := 1; i < attempts; i++ {
        d *= 2
        if d >= g.maxBackoff { return g.maxBackoff }
    }
    if d > g.maxBackoff { d = g.maxBackoff }
    return d
}

// Enabled is false when the guard neither bounds calls nor cools down.
func (g *Guard) Enabled() bool { return g.maxInflight > 0 || g.baseBackoff > 0 }

// Shared reports whether cooldowns are kept in Redis.
func (g *Guard) Shared() bool { return g.rdb != nil }

func (g *Guard) Close() error {
    if g.rdb == nil { return nil }
    return g.rdb.Close()
}
