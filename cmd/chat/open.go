package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/gateway"
	"github.com/mbeoliero/nexo-chat/internal/service"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open <chat-id>",
	Short: "Open a conversation and chat interactively",
	Long: `Open a conversation, print its history and follow it live.

Lines typed are sent as messages. Commands:
  /file <path>        upload a file and send it
  /retry <client-id>  resend a failed message
  /typing             tell the room you are typing
  /mute <8h|1w|always|off>
  /pin /unpin /archive /unarchive /unread /read
  /clear              clear the local transcript
  /status             show the other user's presence
  /quit`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return withSession(ctx, func(app *service.App) error {
			if addr := app.Config.Metrics.Addr; addr != "" {
				h := startMetricsServer(ctx, app, addr)
				defer func() {
					if err := h.Shutdown(context.Background()); err != nil {
						log.CtxWarn(ctx, "metrics server shutdown error: %v", err)
					}
				}()
			}
			return runConversation(ctx, app, args[0])
		})
	},
}

// startMetricsServer serves the client collectors on addr
func startMetricsServer(ctx context.Context, app *service.App, addr string) *server.Hertz {
	h := server.Default(server.WithHostPorts(addr))
	h.GET("/metrics", adaptor.HertzHandler(app.Metrics.Handler()))

	go func() {
		if err := h.Run(); err != nil {
			log.CtxWarn(ctx, "metrics server stopped: %v", err)
		}
	}()
	log.CtxInfo(ctx, "metrics server listening on %s", addr)
	return h
}

// transcriptPrinter prints each transcript entry once
type transcriptPrinter struct {
	app *service.App

	mu       sync.Mutex
	printed  map[string]bool
	typing   string
	statusOf string
}

func (p *transcriptPrinter) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range p.app.Stream.Messages() {
		key := m.Id
		if m.Failed {
			key = "failed:" + m.ClientId
		}
		// the reconciled entry of a message already shown as pending
		if !m.Pending && m.ClientId != "" && p.printed[m.ClientId] {
			p.printed[key] = true
			continue
		}
		if p.printed[key] {
			continue
		}
		p.printed[key] = true
		fmt.Println(renderMessage(m))
	}
}

func (p *transcriptPrinter) typingChanged() {
	text := p.app.Typing.Text()

	p.mu.Lock()
	defer p.mu.Unlock()
	if text == p.typing {
		return
	}
	p.typing = text
	if text != "" {
		fmt.Println(dimStyle.Render(text))
	}
}

func (p *transcriptPrinter) statusChanged() {
	if p.statusOf == "" {
		return
	}
	fmt.Println(dimStyle.Render(service.FormatLastSeen(p.app.Presence.GetUserStatus(p.statusOf), time.Now())))
}

func runConversation(ctx context.Context, app *service.App, chatId string) error {
	active, err := app.Open(ctx, chatId)
	if err != nil {
		return err
	}

	title := chatId
	p := &transcriptPrinter{app: app, printed: make(map[string]bool)}
	if active != nil {
		title = active.Conversation.Name
		if !active.Conversation.IsGroup {
			p.statusOf = active.Conversation.OtherUserId
		}
	}
	fmt.Println(headerStyle.Render(title) + " " + idStyle.Render(chatId))

	for _, m := range app.Stream.Sorted() {
		p.printed[m.Id] = true
		fmt.Println(renderMessage(m))
	}

	subs := []*gateway.Subscription{
		app.Transport.On(constant.EventReceiveMessage, func(...json.RawMessage) { p.flush() }),
		app.Transport.On(constant.EventUserTyping, func(...json.RawMessage) { p.typingChanged() }),
		app.Transport.On(constant.EventUserStoppedTyping, func(...json.RawMessage) { p.typingChanged() }),
		app.Transport.On(constant.EventConnect, func(...json.RawMessage) {
			fmt.Println(okStyle.Render("connected"))
		}),
		app.Transport.On(constant.EventDisconnect, func(args ...json.RawMessage) {
			fmt.Println(warnStyle.Render("disconnected, reconnecting..."))
		}),
		app.Transport.On(gateway.EventReconnectFailed, func(...json.RawMessage) {
			fmt.Println(errStyle.Render("connection lost, messages cannot be sent"))
		}),
	}
	defer app.Transport.Off(subs...)

	go app.Stream.WatchPending(ctx)

	typing := service.NewTypingDebouncer(app.Stream, app.Config.Client.TypingTimeout)
	defer typing.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// surfaces pending messages that expired
			p.flush()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				quit, err := runSlashCommand(ctx, app, p, typing, chatId, line)
				if err != nil {
					fmt.Println(errStyle.Render(describe(err)))
				}
				if quit {
					return nil
				}
				continue
			}
			if _, err := app.Stream.Send(ctx, line, constant.MsgTypeText, ""); err != nil {
				fmt.Println(errStyle.Render(describe(err)))
			}
			typing.Sent(ctx)
			p.flush()
		}
	}
}

func runSlashCommand(ctx context.Context, app *service.App, p *transcriptPrinter, typing *service.TypingDebouncer, chatId, line string) (bool, error) {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = strings.Join(fields[1:], " ")
	}

	var err error
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/file":
		err = sendFile(ctx, app, arg)
		p.flush()
	case "/retry":
		err = app.Stream.Retry(ctx, arg)
	case "/typing":
		typing.Keystroke(ctx)
	case "/mute":
		err = app.Conversations.Mute(chatId, arg)
	case "/pin":
		err = app.Conversations.Pin(chatId)
	case "/unpin":
		err = app.Conversations.Unpin(chatId)
	case "/archive":
		err = app.Conversations.Archive(chatId)
	case "/unarchive":
		err = app.Conversations.Unarchive(chatId)
	case "/unread":
		err = app.Conversations.MarkUnread(chatId)
	case "/read":
		if err = app.Conversations.MarkRead(chatId); err == nil {
			err = app.Stream.MarkAsRead(ctx)
		}
	case "/clear":
		if err = app.Conversations.Clear(chatId); err == nil {
			app.Stream.Clear()
			fmt.Println(dimStyle.Render("transcript cleared"))
		}
	case "/status":
		p.statusChanged()
	default:
		fmt.Println(warnStyle.Render("unknown command " + fields[0]))
	}
	if err == nil && fields[0] != "/status" && fields[0] != "/typing" && fields[0] != "/file" {
		if c, ok := app.Conversations.Get(chatId); ok {
			fmt.Println(renderConversation(c, app.Presence, time.Now()))
		}
	}
	return false, err
}

// sendFile uploads path and sends it as an image or file message
func sendFile(ctx context.Context, app *service.App, path string) error {
	if path == "" {
		return fmt.Errorf("usage: /file <path>")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := app.API.Upload(ctx, filepath.Base(path), f)
	if err != nil {
		return err
	}
	_, err = app.Stream.Send(ctx, filepath.Base(path), messageTypeOf(path), res.URL)
	return err
}

func messageTypeOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return constant.MsgTypeImage
	case ".mp3", ".ogg", ".wav", ".m4a":
		return constant.MsgTypeAudio
	case ".mp4", ".webm", ".mov":
		return constant.MsgTypeVideo
	default:
		return constant.MsgTypeFile
	}
}

// awaitJoined waits until the stream has joined the room of its chat
func awaitJoined(ctx context.Context, app *service.App) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for app.Stream.State() != service.StreamJoined {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// awaitEcho waits until the pending message with clientId is confirmed or failed
func awaitEcho(ctx context.Context, app *service.App, clientId string) (*entity.Message, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		for _, m := range app.Stream.Messages() {
			if m.ClientId == clientId && (!m.Pending || m.Failed) {
				return m, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
