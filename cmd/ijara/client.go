package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ijarahub/ijara-messaging/internal/api"
	"github.com/ijarahub/ijara-messaging/internal/config"
	"github.com/ijarahub/ijara-messaging/internal/messaging"
	"github.com/ijarahub/ijara-messaging/internal/realtime"
	"github.com/ijarahub/ijara-messaging/internal/session"
)

const connectWait = 10 * time.Second

var errNoToken = errors.New("no session token: run `ijara login` or set IJARA_CLIENT_TOKEN")

type clientParts struct {
	api     *api.Client
	channel *realtime.WSChannel
	client  *messaging.Client
}

func buildClient(cfg config.ClientConfig, initialConversation string, logger *zerolog.Logger) (*clientParts, error) {
	if cfg.Token == "" {
		return nil, errNoToken
	}
	apiClient := api.New(cfg.APIURL, cfg.Token, cfg.RequestTimeout, logger)
	channel := realtime.NewWSChannel(realtime.Options{
		URL:          cfg.SocketURL,
		Token:        cfg.Token,
		AckTimeout:   cfg.AckTimeout,
		ReconnectMin: cfg.ReconnectMin,
		ReconnectMax: cfg.ReconnectMax,
		Logger:       logger,
	})
	client := messaging.New(messaging.Options{
		Backend:               apiClient,
		Session:               session.NewBootstrapper(apiClient, cfg.Token, nil),
		Channel:               channel,
		InitialConversationID: initialConversation,
		TypingStopDelay:       cfg.TypingStopDelay,
		RemoteTypingTimeout:   cfg.RemoteTypingTimeout,
		Logger:                logger,
	})
	return &clientParts{api: apiClient, channel: channel, client: client}, nil
}

// startConnected starts the client and waits until the socket is up.
func (p *clientParts) startConnected(ctx context.Context) error {
	if err := p.client.Start(ctx); err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, connectWait)
	defer cancel()
	if err := realtime.WaitForState(waitCtx, p.channel, realtime.StateConnected); err != nil {
		return fmt.Errorf("%w: %w", messaging.ErrChannelUnavailable, err)
	}
	return nil
}
