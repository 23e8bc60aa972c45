package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ijarahub/ijara-messaging/internal/config"
	applog "github.com/ijarahub/ijara-messaging/internal/log"
)

type rootOptions struct {
	configPath string
	logLevel   string

	cfg     config.Config
	cfgPath string
	logger  *zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ijara: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "ijara",
		Short:         "Rental marketplace messaging client and dev relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default: user config dir)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error, disabled)")

	root.AddCommand(
		newChatCommand(opts),
		newConversationsCommand(opts),
		newSendCommand(opts),
		newLoginCommand(opts),
		newDevServerCommand(opts),
	)
	return root
}

func (o *rootOptions) load() error {
	bootLogger := applog.New("warn")
	cfg, path, err := config.Load(bootLogger, o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	o.cfg = cfg
	o.cfgPath = path
	o.logger = applog.New(cfg.LogLevel)
	return nil
}
