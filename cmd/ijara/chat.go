package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	applog "github.com/ijarahub/ijara-messaging/internal/log"
	"github.com/ijarahub/ijara-messaging/internal/messaging"
	"github.com/ijarahub/ijara-messaging/internal/tui"
)

func newChatCommand(root *rootOptions) *cobra.Command {
	var (
		conversationID string
		link           string
		logFile        string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive messaging screen",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if link != "" {
				id, _, err := messaging.ParseDeepLink(link)
				if err != nil {
					return err
				}
				if id != "" {
					conversationID = id
				}
			}

			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer f.Close()
			logger := applog.NewWithWriter(root.cfg.LogLevel, f)

			parts, err := buildClient(root.cfg.Client, conversationID, logger)
			if err != nil {
				return err
			}
			defer parts.client.Close()

			ctx := cmd.Context()
			if err := parts.client.Start(ctx); err != nil {
				return err
			}

			program := tea.NewProgram(tui.New(ctx, parts.client), tea.WithAltScreen(), tea.WithContext(ctx))
			_, err = program.Run()
			return err
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id to open on start")
	cmd.Flags().StringVar(&link, "link", "", "deep link carrying a conversationId query parameter")
	cmd.Flags().StringVar(&logFile, "log-file", filepath.Join(os.TempDir(), "ijara-chat.log"), "where the chat screen writes its logs")
	return cmd
}
