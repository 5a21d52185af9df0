// Package relay is the client side of the signaling channel: one
// persistent websocket to the relay service, decoded into a mailbox
// of typed envelopes consumed one at a time by the session
// controller. Reconnecting is the caller's concern.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/paircast/paircast/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

func (o *Options) defaults() {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 65536
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
}

type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	events chan domain.Envelope
	opts   Options

	mu     sync.RWMutex
	closed bool
}

// Dial connects to the relay and starts the read/write pumps. The
// events channel is closed when the underlying connection dies, which
// is the caller's disconnect signal.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	opts.defaults()
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(opts.ReadLimit)

	c := &Conn{
		ws:     ws,
		send:   make(chan []byte, opts.SendBuffer),
		events: make(chan domain.Envelope, opts.SendBuffer),
		opts:   opts,
	}
	go c.writePump()
	go c.readPump()
	log.Info().Str("module", "relay").Str("url", url).Msg("connected")
	return c, nil
}

// Events delivers inbound envelopes in arrival order.
func (c *Conn) Events() <-chan domain.Envelope { return c.events }

// Send queues an envelope for transmission. Envelopes for a given
// room go out in the order Send returns. Fails fast when the peer
// cannot keep up rather than blocking the event loop.
func (c *Conn) Send(env domain.Envelope) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
	log.Info().Str("module", "relay").Msg("closed")
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "relay").Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "relay").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) readPump() {
	defer func() {
		c.Close()
		close(c.events)
	}()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "relay").Msg("readPump closing")
			return
		}
		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Error().Err(err).Str("module", "relay").Msg("bad json")
			continue
		}
		c.events <- env
	}
}
