package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/ijarahub/ijara-messaging/internal/auth"
	"github.com/ijarahub/ijara-messaging/internal/metrics"
	"github.com/ijarahub/ijara-messaging/internal/proto"
	"github.com/ijarahub/ijara-messaging/internal/relay"
)

// WSHandler upgrades authenticated HTTP connections and bridges them to
// relay sessions.
type WSHandler struct {
	hub            *relay.Hub
	auth           *auth.Service
	log            *zerolog.Logger
	readLimit      int64
	sendsPerMinute int
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *relay.Hub, authService *auth.Service, readLimit int64, sendsPerMinute int, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:            hub,
		auth:           authService,
		log:            logger,
		readLimit:      readLimit,
		sendsPerMinute: sendsPerMinute,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	token, ok := bearerToken(r)
	if !ok {
		stdhttp.Error(w, "missing authorization", stdhttp.StatusUnauthorized)
		return
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws token rejected")
		stdhttp.Error(w, "invalid token", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	session := relay.NewSession(claims.UserID, h.sendsPerMinute)
	h.hub.Register(session)
	defer h.hub.Unregister(session)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("session_id", session.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *relay.Session) error {
	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return err
		}
		if frame.Event == "" {
			continue
		}
		metrics.RelayEventsTotal.WithLabelValues(metricEventLabel(frame.Event)).Inc()

		reply := h.dispatch(ctx, session, frame)
		if frame.Ack == 0 || reply == nil {
			continue
		}
		ack, err := ackFrame(frame.Ack, reply)
		if err != nil {
			h.log.Error().Err(err).Str("event", frame.Event).Msg("encode ack")
			continue
		}
		if err := session.Reply(ctx, ack); err != nil {
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *relay.Session) error {
	for {
		select {
		case frame, ok := <-session.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				h.log.Error().Err(err).Str("session_id", session.ID).Msg("write ws frame")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
