package store

import (
    "context"
    "fmt"
    "strconv"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// DefaultTokenTTL bounds how long a reservation outlives its upload.
const DefaultTokenTTL = 24 * time.Hour

// UploadMeta is what the registry remembers about an upload beyond its object name.
type UploadMeta struct {
    Filename string
    Size     int64
    Created  time.Time
}

// TokenRegistry reserves document tokens in Redis so replicas sharing a
// bucket never hand out the same token twice.
type TokenRegistry struct {
    client *redis.Client
    keyNS  string
    ttl    time.Duration
}

func NewTokenRegistry(redisURL string) (*TokenRegistry, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil { return nil, err }
    c := redis.NewClient(opt)
    if err := c.Ping(context.Background()).Err(); err != nil {
        _ = c.Close()
        return nil, err
    }
    return NewTokenRegistryFromClient(c, DefaultTokenTTL), nil
}

// NewTokenRegistryFromClient wraps an existing client.
func NewTokenRegistryFromClient(c *redis.Client, ttl time.Duration) *TokenRegistry {
    if ttl <= 0 { ttl = DefaultTokenTTL }
    return &TokenRegistry{client: c, keyNS: "tourneur:doc", ttl: ttl}
}

func (r *TokenRegistry) reserveKey(token string) string { return fmt.Sprintf("%s:%s:reserved", r.keyNS, token) }
func (r *TokenRegistry) metaKey(token string) string    { return fmt.Sprintf("%s:%s:meta", r.keyNS, token) }

// Reserve claims token. It returns false when another caller holds it.
func (r *TokenRegistry) Reserve(ctx context.Context, token string) (bool, error) {
    return r.client.SetNX(ctx, r.reserveKey(token), time.Now().UTC().Format(time.RFC3339Nano), r.ttl).Result()
}

// Release drops a reservation whose upload failed.
func (r *TokenRegistry) Release(ctx context.Context, token string) error {
    return r.client.Del(ctx, r.reserveKey(token), r.metaKey(token)).Err()
}

// Record stores the client filename for a completed upload.
func (r *TokenRegistry) Record(ctx context.Context, token string, m UploadMeta) error {
    key := r.metaKey(token)
    pipe := r.client.TxPipeline()
    pipe.HSet(ctx, key, map[string]interface{}{
        "filename": m.Filename,
        "size":     m.Size,
        "created":  m.Created.UTC().Format(time.RFC3339Nano),
    })
    pipe.Expire(ctx, key, r.ttl)
    _, err := pipe.Exec(ctx)
    return err
}

// Meta returns what Record stored, if it is still there.
func (r *TokenRegistry) Meta(ctx context.Context, token string) (UploadMeta, bool, error) {
    res, err := r.client.HGetAll(ctx, r.metaKey(token)).Result()
    if err != nil { return UploadMeta{}, false, err }
    if len(res) == 0 { return UploadMeta{}, false, nil }
    m := UploadMeta{Filename: res["filename"]}
    if v, err := strconv.ParseInt(res["size"], 10, 64); err == nil { m.Size = v }
    if t, err := time.Parse(time.RFC3339Nano, res["created"]); err == nil { m.Created = t }
    return m, true, nil
}

func (r *TokenRegistry) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *TokenRegistry) Close() error { return r.client.Close() }
