package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wellnest/internal/crypto"
	"wellnest/internal/domain"
)

// handshake <peer>: exchange ephemeral keys with <peer> through the store and
// save the negotiated key in the keyring. Both sides must run it.
func handshakeCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "handshake <peer>",
		Short: "Negotiate a forward-secret key with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := me()
			if err != nil {
				return err
			}
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			peer := domain.UserID(args[0])
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			id, err := wire.Sessions.CreateOrGetSession(ctx, user, peer)
			if err != nil {
				return err
			}
			fmt.Printf("Waiting for %s to run handshake on %s...\n", peer, id)

			key, err := wire.Handshake.Negotiate(ctx, id, user, peer)
			if err != nil {
				return err
			}
			if err := wire.SaveKeyring(passphrase); err != nil {
				return err
			}
			fmt.Printf("Forward-secret: %s\n", crypto.FingerprintKey(key))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "how long to wait for the peer")
	return cmd
}
