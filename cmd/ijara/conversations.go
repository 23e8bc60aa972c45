package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ijarahub/ijara-messaging/internal/api"
	"github.com/ijarahub/ijara-messaging/internal/messaging"
	"github.com/ijarahub/ijara-messaging/internal/session"
)

func newConversationsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations with unread counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg.Client
			if cfg.Token == "" {
				return errNoToken
			}
			ctx := cmd.Context()
			apiClient := api.New(cfg.APIURL, cfg.Token, cfg.RequestTimeout, root.logger)

			me, err := session.NewBootstrapper(apiClient, cfg.Token, nil).CurrentUser(ctx)
			if err != nil {
				return err
			}
			convs, err := apiClient.Conversations(ctx)
			if err != nil {
				return err
			}

			var store messaging.ConversationStore
			store.Replace(convs)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWITH\tUNREAD\tLAST MESSAGE")
			for _, c := range store.List() {
				other, _ := c.Other(me.ID)
				last := ""
				if c.LastMessage != nil {
					last = c.LastMessage.Content
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ID, other.DisplayName(), messaging.UnreadFor(c, me.ID), last)
			}
			fmt.Fprintf(w, "\t\t%d\ttotal unread\n", store.TotalUnread(me.ID))
			return w.Flush()
		},
	}
}
