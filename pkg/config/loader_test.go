package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	req := require.New(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))

	cfg, err := Load(logger, "no-such-config")
	req.NoError(err)

	req.Equal(":8080", cfg.Server.Address)
	req.Equal("reject", cfg.Server.ConnectionLimit.Mode)
	req.Equal(60*time.Second, cfg.Transport.ReadTimeout)
	req.Equal("localhost:6379", cfg.Redis.Addr)
	req.Equal("redis", cfg.Fanout.Driver)
	req.Equal("onairmate.events", cfg.Fanout.Channel)
}

func TestLoadEnvOverride(t *testing.T) {
	req := require.New(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))

	t.Setenv("ONAIRMATE_REDIS_ADDR", "redis-primary:6379")
	t.Setenv("ONAIRMATE_FANOUT_DRIVER", "memory")

	cfg, err := Load(logger, "no-such-config")
	req.NoError(err)
	req.Equal("redis-primary:6379", cfg.Redis.Addr)
	req.Equal("memory", cfg.Fanout.Driver)
}
