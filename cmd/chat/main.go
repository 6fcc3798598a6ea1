package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/config"
	"github.com/mbeoliero/nexo-chat/internal/service"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/spf13/cobra"
)

var (
	configPath string
	jsonOutput bool
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Realtime chat client",
	Long: `A command line client for the chat service.

Sign in once and the session is kept in the configured token storage.
Every setting can be overridden with NEXO_* environment variables.

Quick Start:
  chat login --email me@example.com
  chat chats                       # list conversations
  chat open <chat-id>              # interactive conversation
  chat send <chat-id> "hello"      # one-shot message`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of styled text")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "Timeout for one-shot commands")

	rootCmd.AddCommand(
		loginCmd,
		logoutCmd,
		whoamiCmd,
		registerCmd,
		forgotPasswordCmd,
		resetPasswordCmd,
		chatsCmd,
		newChatCmd,
		openCmd,
		sendCmd,
		searchCmd,
		userCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describe(err))
		os.Exit(1)
	}
}

// loadApp builds the client from the config file and environment
func loadApp(ctx context.Context) (*service.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.CtxDebug(ctx, "config loaded: mode=%s, api=%s, socket=%s", cfg.Mode, cfg.API.BaseURL, cfg.Socket.URL)
	return service.NewApp(ctx, cfg)
}

// withSession restores the stored session and fails when there is none
func withSession(ctx context.Context, fn func(app *service.App) error) error {
	app, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Session.Init(ctx) == nil {
		return fmt.Errorf("not logged in, run 'chat login' first")
	}
	return fn(app)
}

// commandContext bounds one-shot commands by --timeout
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe prefers the server supplied message of coded errors
func describe(err error) string {
	var ce *errcode.Error
	if errors.As(err, &ce) && ce.Msg != "" {
		return ce.Msg
	}
	return err.Error()
}
