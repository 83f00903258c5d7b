package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"shopchat-go/internal/config"
	"shopchat-go/internal/model"
	"shopchat-go/internal/service"
	"shopchat-go/internal/view"
	"shopchat-go/pkg/backend"
	"shopchat-go/pkg/schedule"
)

func newChatCommand() *cobra.Command {
	var (
		userID string
		plain  bool
		demo   bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Conf
			if userID == "" {
				userID = cfg.Chat.UserID
			}
			styled := !plain && isatty.IsTerminal(os.Stdout.Fd())
			return runChat(cmd.Context(), cfg, userID, demo, newRenderer(styled), os.Stdin, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id sent to the backend (defaults to chat.user_id)")
	cmd.Flags().BoolVar(&plain, "plain", false, "disable markdown styling")
	cmd.Flags().BoolVar(&demo, "demo", false, "show intent analysis under assistant replies")
	return cmd
}

func runChat(ctx context.Context, cfg config.Config, userID string, demo bool, r *renderer, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	welcome, err := service.LoadWelcome(cfg.Chat)
	if err != nil {
		return err
	}
	history := []model.ConversationEntry{welcome.Entry(userID, cfg.Chat.LanguageCode, time.Now())}

	wf := service.NewWorkflow(backend.NewClient(cfg.Backend), schedule.NewTicker(), service.WorkflowOptions{
		UserID:          userID,
		LanguageCode:    cfg.Chat.LanguageCode,
		PollInterval:    cfg.Chat.PollInterval,
		MaxPollAttempts: cfg.Chat.MaxPollAttempts,
		RequestTimeout:  cfg.Backend.RequestTimeout,
	}, history)
	defer wf.Close()

	updates := make(chan service.Update, 16)
	cancel := wf.Subscribe(func(u service.Update) { updates <- u })
	defer cancel()

	if err := r.write(out, view.NewEntry(history[0], demo, "")); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		text := scanner.Text()
		if strings.TrimSpace(text) == "/quit" {
			return nil
		}

		_, err := wf.Submit(ctx, text)
		switch {
		case errors.Is(err, service.ErrEmptyMessage):
			continue
		case err != nil && !errors.Is(err, service.ErrSendFailed):
			return err
		}
		// 发送失败时错误提示已经作为一条消息追加，照常等待
		if err := waitReply(ctx, updates, func(e model.ConversationEntry) error {
			return r.write(out, view.NewEntry(e, demo, ""))
		}); err != nil {
			return err
		}
	}
}

// waitReply 消费变化直到 busy 清除，打印其中的助手消息。
func waitReply(ctx context.Context, updates <-chan service.Update, show func(model.ConversationEntry) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-updates:
			if u.Entry != nil && u.Entry.Role == model.RoleAssistant {
				if err := show(*u.Entry); err != nil {
					return err
				}
			}
			if !u.Busy {
				return nil
			}
		}
	}
}
