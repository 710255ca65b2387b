package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
)

// Options describes the connection used for doctor-day locks. Zero fields
// take the defaults applied by Connect.
type Options struct {
	Addr     string
	Username string
	Password string

	// PoolSize caps concurrent lock holders per process; each WithLock call
	// keeps a connection busy while it polls.
	PoolSize    int
	OpTimeout   time.Duration
	PingTimeout time.Duration
	// PingAttempts allows a freshly started redis container to come up.
	PingAttempts int
	PingBackoff  time.Duration
}

// OptionsFromConfig sizes the client for the configured lock wait so a poll
// never times out before the waiter gives up.
func OptionsFromConfig(cfg config.Config) Options {
	opts := Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	}
	if cfg.LockWait > 0 && cfg.LockWait < defaultOpTimeout {
		opts.OpTimeout = cfg.LockWait
	}
	return opts
}

const (
	defaultPoolSize     = 16
	defaultOpTimeout    = 2 * time.Second
	defaultPingTimeout  = 5 * time.Second
	defaultPingAttempts = 3
	defaultPingBackoff  = 250 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.PoolSize <= 0 {
		o.PoolSize = defaultPoolSize
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = defaultOpTimeout
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = defaultPingTimeout
	}
	if o.PingAttempts <= 0 {
		o.PingAttempts = defaultPingAttempts
	}
	if o.PingBackoff <= 0 {
		o.PingBackoff = defaultPingBackoff
	}
	return o
}

// Connect opens a client and pings it until it answers or the attempts run
// out. The client is closed on failure.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis: address is required")
	}
	opts = opts.withDefaults()

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		ReadTimeout:  opts.OpTimeout,
		WriteTimeout: opts.OpTimeout,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 1,
	})

	var err error
	for attempt := 1; attempt <= opts.PingAttempts; attempt++ {
		if err = ping(ctx, rdb, opts.PingTimeout); err == nil {
			return rdb, nil
		}
		if attempt == opts.PingAttempts {
			break
		}
		select {
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, fmt.Errorf("redis %s: %w", opts.Addr, ctx.Err())
		case <-time.After(opts.PingBackoff * time.Duration(attempt)):
		}
	}
	_ = rdb.Close()
	return nil, fmt.Errorf("redis %s: ping failed after %d attempts: %w", opts.Addr, opts.PingAttempts, err)
}

func ping(ctx context.Context, rdb *redis.Client, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return rdb.Ping(pingCtx).Err()
}
