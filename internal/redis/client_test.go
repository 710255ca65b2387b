package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
)

func TestConnect_Authenticates(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireUserAuth("scheduler", "s3cret")

	client, err := Connect(context.Background(), Options{Addr: mr.Addr(), Username: "scheduler", Password: "s3cret"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestConnect_WrongPasswordFails(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireUserAuth("scheduler", "s3cret")

	_, err := Connect(context.Background(), Options{
		Addr:         mr.Addr(),
		Username:     "scheduler",
		Password:     "nope",
		PingAttempts: 1,
	})
	require.Error(t, err)
}

func TestConnect_GivesUpOnUnreachableAddress(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	start := time.Now()
	_, err := Connect(context.Background(), Options{
		Addr:         addr,
		PingAttempts: 2,
		PingBackoff:  time.Millisecond,
		PingTimeout:  200 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestConnect_RequiresAddress(t *testing.T) {
	_, err := Connect(context.Background(), Options{})
	assert.ErrorContains(t, err, "address is required")
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Config{
		RedisAddr:     "cache:6379",
		RedisUsername: "u",
		RedisPassword: "p",
		LockWait:      500 * time.Millisecond,
	}

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
	assert.Equal(t, 500*time.Millisecond, opts.OpTimeout)

	cfg.LockWait = 10 * time.Second
	assert.Equal(t, defaultOpTimeout, OptionsFromConfig(cfg).withDefaults().OpTimeout)
}
