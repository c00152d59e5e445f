package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"wellnest/internal/domain"
)

// listen <peer>: print messages as they arrive until interrupted.
func listenCmd() *cobra.Command {
	var (
		forwardSecret bool
		markRead      bool
	)
	cmd := &cobra.Command{
		Use:   "listen <peer>",
		Short: "Stream a session's messages as they arrive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := me()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			id, err := resolveSession(ctx, user, args[0])
			if err != nil {
				return err
			}
			if addr := wire.Config.MetricsAddr; addr != "" {
				srv := serveMetrics(addr)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			svc := messages(forwardSecret)
			stream, err := svc.ReceiveStream(ctx, id, user)
			if err != nil {
				return err
			}
			defer stream.Close()

			seen := make(map[domain.MessageID]struct{})
			for batch := range stream.Batches() {
				for _, m := range batch {
					if _, ok := seen[m.ID]; ok {
						continue
					}
					seen[m.ID] = struct{}{}
					printMessage(m)
					if markRead && m.SenderID != user && !m.ReadByViewer(user) {
						if err := svc.MarkRead(ctx, id, m.ID, user); err != nil {
							wire.Log.Warn().Err(err).Str("message", m.ID.String()).Msg("mark read failed")
						}
					}
				}
			}
			if err := stream.Err(); err != nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&forwardSecret, "fs", false, "open with the key negotiated by handshake")
	cmd.Flags().BoolVar(&markRead, "mark-read", true, "send read receipts for displayed messages")
	return cmd
}

func printMessage(m domain.DecryptedMessage) {
	ts := time.UnixMilli(m.Timestamp).Format(time.Kitchen)
	body := m.Body
	if m.Kind == domain.KindImage {
		body = fmt.Sprintf("[image %s] %s", m.MediaRef, m.Body)
	}
	if m.EditedAt != 0 {
		body += " (edited)"
	}
	fmt.Printf("%s [%s] %s: %s\n", ts, m.ID, m.SenderID, body)
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(wire.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wire.Log.Error().Err(err).Str("addr", addr).Msg("metrics listener stopped")
		}
	}()
	return srv
}
