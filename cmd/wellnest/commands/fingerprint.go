package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"wellnest/internal/crypto"
	"wellnest/internal/services/keys"
)

// fingerprint <peer>: print the digest of the session key so both parties
// can compare it out of band.
func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <peer>",
		Short: "Print the session key fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := me()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			id, err := resolveSession(ctx, user, args[0])
			if err != nil {
				return err
			}
			sess, err := wire.Sessions.GetSession(ctx, id)
			if err != nil {
				return err
			}
			key, err := keys.Deterministic{Keys: wire.Keys}.SessionKey(ctx, sess, sess.KeyEpoch)
			if err != nil {
				return err
			}
			fmt.Printf("Fingerprint: %s\n", crypto.FingerprintKey(key))
			if fs, ok := wire.Keys.ForwardSecretKey(id); ok {
				fmt.Printf("Forward-secret: %s\n", crypto.FingerprintKey(fs))
			}
			return nil
		},
	}
}
