package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"wellnest/internal/app"
	"wellnest/internal/domain"
)

var (
	home       string
	backend    string
	sqlitePath string
	redisURL   string
	username   string
	passphrase string

	wire *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:          "wellnest",
		Short:        "End-to-end encrypted wellness chat CLI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Load()
			if err != nil {
				return err
			}
			if home != "" {
				cfg.Home = home
			}
			if backend != "" {
				cfg.Backend = backend
			}
			if sqlitePath != "" {
				cfg.SQLitePath = sqlitePath
			}
			if redisURL != "" {
				cfg.RedisURL = redisURL
			}
			if err := cfg.Resolve(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			log := app.NewLogger(cfg, nil)
			w, err := app.NewWire(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			if err := w.UnlockKeyring(passphrase); err != nil {
				_ = w.Close()
				return err
			}
			wire = w
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if wire == nil {
				return nil
			}
			return wire.Close()
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.wellnest)")
	root.PersistentFlags().StringVar(&backend, "backend", "", "document store: memory, sqlite or redis")
	root.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "sqlite database path")
	root.PersistentFlags().StringVar(&redisURL, "redis", "", "redis URL (e.g. redis://127.0.0.1:6379/0)")
	root.PersistentFlags().StringVarP(&username, "user", "u", "", "your user id")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting negotiated keys")

	root.AddCommand(
		sessionCmd(),
		groupCmd(),
		sendCmd(),
		attachCmd(),
		listenCmd(),
		readCmd(),
		typingCmd(),
		fingerprintCmd(),
		handshakeCmd(),
		healthCmd(),
	)
	return root.ExecuteContext(context.Background())
}

func me() (domain.UserID, error) {
	if username == "" {
		return "", fmt.Errorf("--user required")
	}
	return domain.UserID(username), nil
}

// resolveSession maps a <peer> argument to a session id. Group ids are used
// as-is; anything else names the peer of a direct session.
func resolveSession(ctx context.Context, user domain.UserID, arg string) (domain.SessionID, error) {
	if id := domain.SessionID(arg); id.IsGroup() {
		return id, nil
	}
	return wire.Sessions.CreateOrGetSession(ctx, user, domain.UserID(arg))
}
