package config

import (
    "context"
    "crypto/tls"
    "log"
    "net"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisOptions builds client options from the environment.  REDIS_URL
// (redis:// or rediss://) wins when set; otherwise REDIS_HOST and
// REDIS_PORT, then REDIS_ADDR, are combined with REDIS_PASSWORD, REDIS_DB
// and REDIS_TLS.
func RedisOptions() (*redis.Options, error) {
    if raw := envStr("REDIS_URL", ""); raw != "" {
        return redis.ParseURL(raw)
    }
    addr := envStr("REDIS_ADDR", "localhost:6379")
    if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
        addr = net.JoinHostPort(host, port)
    }
    opts := &redis.Options{
        Addr:     addr,
        Password: envStr("REDIS_PASSWORD", ""),
        DB:       envInt("REDIS_DB", 0),
    }
    if envBool("REDIS_TLS", false) {
        opts.TLSConfig = &tls.Config{
            MinVersion:         tls.VersionTLS12,
            InsecureSkipVerify: envBool("REDIS_TLS_INSECURE", false),
        }
    }
    return opts, nil
}

// NewRedisClient connects to Redis and pings it.  It returns nil when Redis
// is misconfigured or unreachable; rate limiting, response caching and the
// webhook duplicate check then switch themselves off.  None of them is
// needed for ledger correctness.
func NewRedisClient() *redis.Client {
    opts, err := RedisOptions()
    if err != nil {
        log.Printf("redis: invalid REDIS_URL: %v; redis features disabled", err)
        return nil
    }
    client := redis.NewClient(opts)
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        log.Printf("redis: ping %s failed: %v; rate limiting, caching and webhook dedup disabled", opts.Addr, err)
        _ = client.Close()
        return nil
    }
    return client
}
