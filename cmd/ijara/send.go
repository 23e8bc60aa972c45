package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ijarahub/ijara-messaging/internal/messaging"
)

func newSendCommand(root *rootOptions) *cobra.Command {
	var (
		conversationID string
		to             string
		wait           time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send [flags] <message>",
		Short: "Send one message and wait for the server to confirm it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (conversationID == "") == (to == "") {
				return errors.New("exactly one of --conversation or --to is required")
			}
			ctx := cmd.Context()

			parts, err := buildClient(root.cfg.Client, "", root.logger)
			if err != nil {
				return err
			}
			defer parts.client.Close()

			if to != "" {
				conv, err := parts.api.StartConversation(ctx, to)
				if err != nil {
					return fmt.Errorf("start conversation: %w", err)
				}
				conversationID = conv.ID
			}

			if err := parts.startConnected(ctx); err != nil {
				return err
			}
			if _, err := parts.client.SelectConversation(ctx, conversationID); err != nil {
				return err
			}

			parts.client.SetComposer(strings.Join(args, " "))
			if err := parts.client.Submit(ctx); err != nil {
				return err
			}

			msg, err := awaitSendResult(ctx, parts.client.Events(), wait)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s to %s\n", msg.ID, msg.ConversationID)
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id to send to")
	cmd.Flags().StringVar(&to, "to", "", "user id to message; the direct conversation is created if missing")
	cmd.Flags().DurationVar(&wait, "wait", 15*time.Second, "how long to wait for the server confirmation")
	return cmd
}

func awaitSendResult(ctx context.Context, events <-chan messaging.Event, wait time.Duration) (*sendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", messaging.ErrSendFailed, ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return nil, messaging.ErrSendFailed
			}
			switch ev.Kind {
			case messaging.EventSendConfirmed:
				if ev.Message == nil {
					return &sendResult{ConversationID: ev.ConversationID}, nil
				}
				return &sendResult{ID: ev.Message.ID, ConversationID: ev.Message.ConversationID}, nil
			case messaging.EventSendFailed:
				return nil, ev.Err
			}
		}
	}
}

type sendResult struct {
	ID             string
	ConversationID string
}
