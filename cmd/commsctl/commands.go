package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guardforce/messaging-platform/internal/config"
	"github.com/guardforce/messaging-platform/internal/middleware"
	"github.com/guardforce/messaging-platform/internal/model"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <conversation-id> <text>",
		Short: "Send a text message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			text := args[1]
			msg, err := e.api.SendMessage(cmd.Context(), args[0], &model.SendMessageRequest{
				Content:     &text,
				MessageType: model.MessageText,
			})
			if err != nil {
				return err
			}
			return e.print(cmd, msg, fmt.Sprintf("sent %s at %s", msg.ID, msg.CreatedAt.Format("15:04:05")))
		},
	}
	return cmd
}

func newConversationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conversations",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			resp, err := e.api.ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			var b strings.Builder
			for _, c := range resp.Conversations {
				name := c.Name
				if name == "" {
					name = string(c.Type)
				}
				fmt.Fprintf(&b, "%s  %s  %-24s  unread=%d  %s\n",
					c.ID, c.SortTime().Local().Format("Jan 02 15:04"), name, c.UnreadCount, c.LastMessagePreview)
			}
			return e.print(cmd, resp, strings.TrimRight(b.String(), "\n"))
		},
	}
}

func newUnreadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unread",
		Short: "Show unread totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}

			totals, err := e.api.Unread(cmd.Context())
			if err != nil {
				return err
			}
			return e.print(cmd, totals, fmt.Sprintf("conversations=%d broadcasts=%d total=%d",
				totals.Conversations, totals.Broadcasts, totals.Total))
		},
	}
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Sign a development token with the server's JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			region, _ := cmd.Flags().GetString("region")

			r := model.Role(strings.ToUpper(role))
			if !r.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}

			cfg := config.Load()
			token, err := middleware.SignToken(cfg.JWTSecret, args[0], r, region, cfg.JWTExpiration)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().String("role", string(model.RoleGuard), "role claim")
	cmd.Flags().String("region", "", "region claim")
	return cmd
}
