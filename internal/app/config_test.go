package app_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wellnest/internal/app"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WELLNEST_HOME", "/tmp/wn")
	cfg, err := app.Load()
	require.NoError(t, err)
	require.Equal(t, app.BackendSQLite, cfg.Backend)
	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, time.Second, cfg.RetryDelay)
	require.Equal(t, "_health/ping", cfg.HealthPath)
	require.Equal(t, 50, cfg.MessageWindow)
	require.True(t, cfg.IsDevelopment())

	require.NoError(t, cfg.Resolve())
	require.Equal(t, filepath.Join("/tmp/wn", "wellnest.db"), cfg.SQLitePath)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("WELLNEST_BACKEND", "redis")
	t.Setenv("WELLNEST_REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("WELLNEST_MAX_RETRIES", "7")
	t.Setenv("WELLNEST_RETRY_DELAY", "250ms")
	t.Setenv("WELLNEST_MESSAGE_WINDOW", "not-a-number")
	t.Setenv("WELLNEST_ENV", "production")

	cfg, err := app.Load()
	require.NoError(t, err)
	require.Equal(t, app.BackendRedis, cfg.Backend)
	require.Equal(t, 7, cfg.MaxRetries)
	require.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	require.Equal(t, 50, cfg.MessageWindow)
	require.False(t, cfg.IsDevelopment())
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() *app.Config {
		return &app.Config{
			Backend:       app.BackendMemory,
			AppSalt:       "salt",
			RetryDelay:    time.Second,
			HealthPath:    "_health/ping",
			MessageWindow: 10,
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*app.Config){
		"unknown backend":   func(c *app.Config) { c.Backend = "etcd" },
		"redis without url": func(c *app.Config) { c.Backend = app.BackendRedis },
		"empty salt":        func(c *app.Config) { c.AppSalt = "" },
		"negative retries":  func(c *app.Config) { c.MaxRetries = -1 },
		"zero delay":        func(c *app.Config) { c.RetryDelay = 0 },
		"empty health path": func(c *app.Config) { c.HealthPath = "" },
		"zero window":       func(c *app.Config) { c.MessageWindow = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			require.Error(t, c.Validate())
		})
	}
}
