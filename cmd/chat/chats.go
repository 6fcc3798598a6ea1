package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/service"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/spf13/cobra"
)

var (
	chatsArchived bool
	chatsAll      bool
	chatsUnread   bool
	chatsQuery    string
	chatsPresence time.Duration
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List conversations",
	Long:  "List conversations, pinned first and then newest first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		return withSession(ctx, func(app *service.App) error {
			if chatsPresence > 0 {
				waitForPresence(ctx, app, chatsPresence)
			}

			convs := app.Conversations.Sorted(entity.ConversationFilter{
				IncludeArchived: chatsAll,
				OnlyArchived:    chatsArchived,
				OnlyUnread:      chatsUnread,
				Query:           chatsQuery,
			})
			if jsonOutput {
				return printJSON(convs)
			}

			fmt.Println(headerStyle.Render(fmt.Sprintf("Conversations (%d unread)", app.Conversations.UnreadCount())))
			if len(convs) == 0 {
				fmt.Println(dimStyle.Render("  no conversations"))
				return nil
			}
			now := time.Now()
			for _, c := range convs {
				fmt.Println(renderConversation(c, app.Presence, now))
			}
			return nil
		})
	},
}

var newChatCmd = &cobra.Command{
	Use:   "new-chat <user-id>",
	Short: "Open a private conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		return withSession(ctx, func(app *service.App) error {
			conv, err := app.Conversations.OpenPrivateChat(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(conv)
			}
			fmt.Printf("%s %s  %s\n", okStyle.Render("Conversation with"), nameStyle.Render(conv.Name), idStyle.Render(conv.Id))
			return nil
		})
	},
}

func init() {
	chatsCmd.Flags().BoolVar(&chatsArchived, "archived", false, "Only archived conversations")
	chatsCmd.Flags().BoolVarP(&chatsAll, "all", "a", false, "Include archived conversations")
	chatsCmd.Flags().BoolVarP(&chatsUnread, "unread", "u", false, "Only unread conversations")
	chatsCmd.Flags().StringVarP(&chatsQuery, "query", "q", "", "Filter by name or last message")
	chatsCmd.Flags().DurationVar(&chatsPresence, "presence", 2*time.Second, "How long to wait for online status (0 to skip)")
}

// waitForPresence gives the socket up to d to connect and deliver a status sync
func waitForPresence(ctx context.Context, app *service.App, d time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	synced := make(chan struct{})
	sub := app.Transport.Once(constant.EventStatusSync, func(...json.RawMessage) { close(synced) })
	defer app.Transport.Off(sub)

	if err := app.WaitConnected(ctx); err != nil {
		log.CtxDebug(ctx, "presence unavailable: %v", err)
		return
	}
	select {
	case <-synced:
	case <-ctx.Done():
	}
}
