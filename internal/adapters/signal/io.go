package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/paircast/paircast/internal/domain"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsClient) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, c *wsClient) {
	defer func() {
		log.Info().Str("module", "signal").Str("client", string(c.id)).Msg("readPump closing")
		ctl.MM.Disconnect(c)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("client", string(c.id)).Msg("readPump read error")
				return
			}
			ctl.handle(c, data)
		}
	}
}

func (ctl *Controller) handle(c *wsClient, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case domain.TypeFindPartner:
		ctl.MM.Find(c)
	case domain.TypeLeaveRoom:
		ctl.MM.Leave(c, env.Room)
	case domain.TypeSignal:
		ctl.MM.Forward(c, env)
	case domain.TypeSendMessage:
		ctl.MM.Chat(c, env)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown envelope")
	}
}
