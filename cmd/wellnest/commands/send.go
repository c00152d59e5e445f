package commands

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"wellnest/internal/domain"
	messagesvc "wellnest/internal/services/message"
)

// send <peer> <message>: encrypt and send a message to <peer>.
func sendCmd() *cobra.Command {
	var (
		forwardSecret bool
		replyTo       string
	)
	cmd := &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send a message to a peer",
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
			mid, err := messages(forwardSecret).Send(ctx, id, user, args[1], domain.SendOptions{
				ReplyTo: domain.MessageID(replyTo),
			})
			if err != nil {
				return err
			}
			fmt.Printf("sent %s\n", mid)
			return nil
		},
	}
	cmd.Flags().BoolVar(&forwardSecret, "fs", false, "seal with the key negotiated by handshake")
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "id of the message being answered")
	return cmd
}

// attach <peer> <file>: encrypt a file and send it as an image message.
func attachCmd() *cobra.Command {
	var caption string
	cmd := &cobra.Command{
		Use:   "attach <peer> <file>",
		Short: "Encrypt and send a file to a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := me()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			id, err := resolveSession(ctx, user, args[0])
			if err != nil {
				return err
			}
			name := filepath.Base(args[1])
			mimeType := mime.TypeByExtension(filepath.Ext(name))
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}
			mid, err := wire.Messages.SendAttachment(ctx, id, user, caption, name, mimeType, data)
			if err != nil {
				return err
			}
			fmt.Printf("sent %s (%d bytes)\n", mid, len(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&caption, "caption", "", "caption shown with the attachment")
	return cmd
}

func messages(forwardSecret bool) *messagesvc.Service {
	if forwardSecret {
		return wire.WithForwardSecrecy()
	}
	return wire.Messages
}
