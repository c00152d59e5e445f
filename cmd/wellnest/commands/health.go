package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the backing store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ok := wire.Subs.CheckHealth(cmd.Context())
			st := wire.Subs.Status()
			fmt.Printf("Backend: %s\nHealthy: %t\n", wire.Config.Backend, ok)
			for _, e := range st.RecentErrors {
				fmt.Printf("  error: %s\n", e)
			}
			if !ok {
				return fmt.Errorf("store unreachable")
			}
			return nil
		},
	}
}
