// Package signal is the relay's websocket endpoint: it upgrades the
// connection, decodes envelopes, and hands them to the matchmaker.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/paircast/paircast/internal/domain"
	"github.com/paircast/paircast/internal/matchmaker"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	MM           *matchmaker.Matchmaker
	ReadLimit    int64
	PingPeriod   time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

func NewController(mm *matchmaker.Matchmaker, readLimit int64, pingPeriod, writeTimeout time.Duration, sendBuffer int) *Controller {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Controller{
		MM:           mm,
		ReadLimit:    readLimit,
		PingPeriod:   pingPeriod,
		WriteTimeout: writeTimeout,
		SendBuffer:   sendBuffer,
	}
}

// wsClient implements matchmaker.Client over one websocket.
type wsClient struct {
	id   matchmaker.ClientID
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsClient) ID() matchmaker.ClientID { return c.id }

func (c *wsClient) TrySend(env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and runs the pumps until the client
// goes away.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	id := matchmaker.ClientID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("client", string(id)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	client := &wsClient{
		id:   id,
		conn: ws,
		send: make(chan []byte, ctl.SendBuffer),
	}

	go ctl.writePump(ctx, client)
	go ctl.readPump(ctx, client)
}
