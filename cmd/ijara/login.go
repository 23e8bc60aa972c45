package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ijarahub/ijara-messaging/internal/api"
	"github.com/ijarahub/ijara-messaging/internal/config"
)

func newLoginCommand(root *rootOptions) *cobra.Command {
	var (
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange credentials for a session token and store it in the config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimSpace(line)
			}
			if email == "" || password == "" {
				return errors.New("email and password are required")
			}

			cfg := root.cfg
			apiClient := api.New(cfg.Client.APIURL, "", cfg.Client.RequestTimeout, root.logger)
			token, err := apiClient.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			cfg.Client.Token = token
			if err := config.Save(root.cfgPath, cfg); err != nil {
				return err
			}
			root.logger.Info().Str("path", root.cfgPath).Msg("session token saved")
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when empty)")
	return cmd
}
