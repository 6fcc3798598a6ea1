package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/service"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/spf13/cobra"
)

var sendFilePath string

var sendCmd = &cobra.Command{
	Use:   "send <chat-id> [message]",
	Short: "Send one message and wait for the server echo",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		return withSession(ctx, func(app *service.App) error {
			chatId := args[0]
			content := ""
			if len(args) > 1 {
				content = args[1]
			}
			if content == "" && sendFilePath == "" {
				return fmt.Errorf("nothing to send")
			}

			if _, err := app.Open(ctx, chatId); err != nil {
				return err
			}
			if err := app.WaitConnected(ctx); err != nil {
				return fmt.Errorf("socket not connected: %w", err)
			}
			if err := awaitJoined(ctx, app); err != nil {
				return fmt.Errorf("join chat: %w", err)
			}

			msgType, fileUrl := constant.MsgTypeText, ""
			if sendFilePath != "" {
				f, err := os.Open(sendFilePath)
				if err != nil {
					return err
				}
				res, err := app.API.Upload(ctx, filepath.Base(sendFilePath), f)
				_ = f.Close()
				if err != nil {
					return err
				}
				msgType, fileUrl = messageTypeOf(sendFilePath), res.URL
				if content == "" {
					content = filepath.Base(sendFilePath)
				}
			}

			pending, err := app.Stream.Send(ctx, content, msgType, fileUrl)
			if err != nil {
				return err
			}
			log.CtxDebug(ctx, "waiting for echo: client_id=%s", pending.ClientId)

			msg, err := awaitEcho(ctx, app, pending.ClientId)
			if err != nil {
				return fmt.Errorf("no confirmation from server: %w", err)
			}
			if jsonOutput {
				return printJSON(msg)
			}
			fmt.Println(renderMessage(msg))
			return nil
		})
	},
}

func init() {
	sendCmd.Flags().StringVarP(&sendFilePath, "file", "f", "", "Upload a file and send it")
}
