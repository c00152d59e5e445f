package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"wellnest/internal/domain"
)

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <peer> <message-id>",
		Short: "Mark a message as read",
		Args:  cobra.ExactArgs(2),
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
			if err := wire.Messages.MarkRead(ctx, id, domain.MessageID(args[1]), user); err != nil {
				return err
			}
			fmt.Println("read")
			return nil
		},
	}
}

func typingCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "typing <peer> on|off",
		Short:     "Set the typing indicator",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := me()
			if err != nil {
				return err
			}
			var on bool
			switch args[1] {
			case "on":
				on = true
			case "off":
			default:
				return fmt.Errorf("expected on or off, got %q", args[1])
			}
			ctx := cmd.Context()
			id, err := resolveSession(ctx, user, args[0])
			if err != nil {
				return err
			}
			return wire.Messages.SetTyping(ctx, id, user, on)
		},
	}
}
