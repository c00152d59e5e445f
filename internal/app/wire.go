package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"wellnest/internal/domain"
	"wellnest/internal/metrics"
	handshakesvc "wellnest/internal/services/handshake"
	"wellnest/internal/services/keys"
	messagesvc "wellnest/internal/services/message"
	profilesvc "wellnest/internal/services/profile"
	sessionsvc "wellnest/internal/services/session"
	"wellnest/internal/store"
	"wellnest/internal/subscription"
)

// Wire bundles all stores, services and managers for the CLI.
type Wire struct {
	Config    *Config
	Log       zerolog.Logger
	Store     domain.DocumentStore
	Keyring   domain.KeyringStore
	Keys      *keys.KeyStore
	Handshake *handshakesvc.Service
	Profiles  *profilesvc.Service
	Sessions  *sessionsvc.Service
	Messages  *messagesvc.Service
	Subs      *subscription.Manager
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry
}

// NewLogger builds the process logger: a console writer in development,
// JSON lines otherwise.
func NewLogger(cfg *Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// NewWire constructs the dependency graph from cfg.
//
// Steps:
//  1. Open the document store selected by cfg.Backend.
//  2. Build the key store and the forward-secret keyring.
//  3. Build the subscription manager, then the session, profile and
//     message services on top of it.
func NewWire(ctx context.Context, cfg *Config, log zerolog.Logger) (*Wire, error) {
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, fmt.Errorf("create home: %w", err)
	}

	ds, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	ks := keys.NewKeyStore([]byte(cfg.AppSalt), log)
	profiles := profilesvc.New(ds)
	sessions := sessionsvc.New(ds, profiles, ks, log)

	subs := subscription.NewManager(ds, subscription.Options{
		MaxRetries:         cfg.MaxRetries,
		RetryDelay:         cfg.RetryDelay,
		EnableReconnection: true,
		ReconnectPause:     cfg.ReconnectPause,
		HealthPath:         cfg.HealthPath,
		HealthTimeout:      cfg.HealthTimeout,
		Logger:             log,
		Metrics:            m,
	})

	msgs := messagesvc.New(ds, sessions, keys.Deterministic{Keys: ks}, subs, messagesvc.Config{
		Window:         cfg.MessageWindow,
		TypingInterval: cfg.TypingInterval,
		Logger:         log,
		Metrics:        m,
	})

	return &Wire{
		Config:    cfg,
		Log:       log,
		Store:     ds,
		Keyring:   store.NewKeyringFileStore(cfg.Home),
		Keys:      ks,
		Handshake: handshakesvc.New(ds, subs, ks, log),
		Profiles:  profiles,
		Sessions:  sessions,
		Messages:  msgs,
		Subs:      subs,
		Metrics:   m,
		Registry:  reg,
	}, nil
}

// WithForwardSecrecy returns a message service that seals under the
// negotiated forward-secret keys held in w.Keys instead of the derived ones.
func (w *Wire) WithForwardSecrecy() *messagesvc.Service {
	return messagesvc.New(w.Store, w.Sessions, keys.ForwardSecret{Keys: w.Keys}, w.Subs, messagesvc.Config{
		Window:         w.Config.MessageWindow,
		TypingInterval: w.Config.TypingInterval,
		Logger:         w.Log,
		Metrics:        w.Metrics,
	})
}

// UnlockKeyring loads persisted forward-secret keys into the key store.
func (w *Wire) UnlockKeyring(passphrase string) error {
	if passphrase == "" {
		return nil
	}
	saved, err := w.Keyring.LoadKeyring(passphrase)
	if err != nil {
		return err
	}
	return w.Keys.Restore(saved)
}

// SaveKeyring persists the forward-secret keys held in the key store.
func (w *Wire) SaveKeyring(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase required to save keys")
	}
	return w.Keyring.SaveKeyring(passphrase, w.Keys.Snapshot())
}

// Close tears down listeners and the store.
func (w *Wire) Close() error {
	w.Subs.Destroy()
	return w.Store.Close()
}

func openStore(ctx context.Context, cfg *Config, log zerolog.Logger) (domain.DocumentStore, error) {
	switch cfg.Backend {
	case BackendMemory:
		return store.NewMemoryStore(nil, log), nil
	case BackendSQLite:
		s, err := store.NewSQLiteStore(cfg.SQLitePath, nil, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRedis:
		s, err := store.NewRedisStore(ctx, cfg.RedisURL, "wellnest", log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
