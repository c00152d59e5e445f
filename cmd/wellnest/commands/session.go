package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"wellnest/internal/domain"
)

func sessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session <peer>",
		Short: "Create or look up the direct session with a peer",
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
			fmt.Printf("Session: %s\nMembers: %v\nMessages: %d\n", sess.ID, sess.Members(), sess.MessageCount)
			if sess.LastMessage != nil {
				fmt.Printf("Last: %s: %s\n", sess.LastMessage.SenderID, sess.LastMessage.Content)
			}
			return nil
		},
	}
}

func groupCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "group <member>...",
		Short: "Create a group session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := me()
			if err != nil {
				return err
			}
			members := make([]domain.UserID, 0, len(args))
			for _, a := range args {
				members = append(members, domain.UserID(a))
			}
			id, err := wire.Sessions.CreateGroupSession(cmd.Context(), user, name, members)
			if err != nil {
				return err
			}
			fmt.Printf("Group: %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "group display name")
	return cmd
}
