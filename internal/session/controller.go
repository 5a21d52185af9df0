// Package session maps relay events onto negotiation engine lifecycle
// calls. One Controller owns at most one active Session; every state
// transition runs on a single event loop, so no two handlers ever
// race against the same session.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/paircast/paircast/internal/domain"
	"github.com/paircast/paircast/internal/media"
)

var (
	ErrNoActiveEngine = errors.New("no active engine")
	ErrNotPaired      = errors.New("not paired")
	ErrBusy           = errors.New("search already in progress")
)

// Sender is the outbound half of the signaling channel.
type Sender interface {
	Send(domain.Envelope) error
}

type Options struct {
	RematchDelay    time.Duration // settling delay before an automatic re-search
	RematchMaxDelay time.Duration // backoff cap
}

func (o *Options) defaults() {
	if o.RematchDelay <= 0 {
		o.RematchDelay = 1500 * time.Millisecond
	}
	if o.RematchMaxDelay < o.RematchDelay {
		o.RematchMaxDelay = 8 * o.RematchDelay
	}
}

type teardownReason int

const (
	byUser teardownReason = iota
	byPartner
	byFailure
)

type Controller struct {
	conn    Sender
	events  <-chan domain.Envelope
	source  media.Source
	engines EngineFactory
	opts    Options

	// Observers, set before Run. They are invoked on the event loop;
	// calling back into the Controller from them will deadlock.
	OnState       func(domain.State)
	OnChatMessage func(domain.ChatMessage)
	OnRemoteTrack func(*webrtc.TrackRemote)
	OnError       func(error)

	acts chan func()
	done chan struct{}

	// Event-loop confined.
	sess         *domain.Session
	engine       Negotiator
	tracks       []webrtc.TrackLocal
	captured     bool
	transcript   []domain.ChatMessage
	early        []domain.Candidate // candidates seen before an engine exists
	earlyRoom    domain.RoomID
	pendingFound *domain.Envelope // pairing that arrived mid-acquire
	acquiring    bool
	searchGen    int
	rematchTimer *time.Timer
	rematchDelay time.Duration

	stateMu sync.RWMutex
	state   domain.State
}

func New(conn Sender, events <-chan domain.Envelope, source media.Source, engines EngineFactory, opts Options) *Controller {
	opts.defaults()
	return &Controller{
		conn:         conn,
		events:       events,
		source:       source,
		engines:      engines,
		opts:         opts,
		acts:         make(chan func(), 64),
		done:         make(chan struct{}),
		state:        domain.StateIdle,
		rematchDelay: opts.RematchDelay,
	}
}

// State is readable from any goroutine.
func (c *Controller) State() domain.State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Controller) setState(s domain.State) {
	c.stateMu.Lock()
	prev := c.state
	c.state = s
	c.stateMu.Unlock()
	if prev != s {
		log.Info().Str("module", "session").Str("from", prev.String()).Str("to", s.String()).Msg("state")
		if c.OnState != nil {
			c.OnState(s)
		}
	}
}

// Run consumes relay events and posted actions until the context is
// canceled or the relay connection dies.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case env, ok := <-c.events:
			if !ok {
				log.Warn().Str("module", "session").Msg("relay disconnected")
				c.shutdown()
				return
			}
			c.dispatch(env)
		case fn := <-c.acts:
			fn()
		}
	}
}

// post runs fn on the event loop; a no-op once Run has returned.
func (c *Controller) post(fn func()) {
	select {
	case c.acts <- fn:
	case <-c.done:
	}
}

// call runs fn on the event loop and waits for its result.
func (c *Controller) call(fn func() error) error {
	errc := make(chan error, 1)
	c.post(func() { errc <- fn() })
	select {
	case err := <-errc:
		return err
	case <-c.done:
		return ErrNoActiveEngine
	}
}

// Find starts matchmaking: acquire local media, then ask the relay
// for a partner. Valid when no session is active.
func (c *Controller) Find() error {
	return c.call(func() error {
		if c.sess != nil || c.acquiring || c.captured {
			return ErrBusy
		}
		c.cancelRematch()
		c.beginAcquire()
		return nil
	})
}

// Stop ends the current session or search. No automatic re-search
// follows an explicit stop.
func (c *Controller) Stop() {
	_ = c.call(func() error {
		c.searchGen++ // invalidates an in-flight acquire
		c.acquiring = false
		c.cancelRematch()
		c.pendingFound = nil
		if c.sess != nil {
			room := c.sess.Room
			if err := c.conn.Send(domain.Envelope{Type: domain.TypeLeaveRoom, Room: room}); err != nil {
				log.Warn().Err(err).Str("module", "session").Msg("leave_room send")
			}
			c.teardown(byUser)
			return nil
		}
		if c.captured {
			c.source.Release()
			c.tracks = nil
			c.captured = false
		}
		c.setState(domain.StateIdle)
		return nil
	})
}

// SendChat relays a text message to the current partner and appends
// it to the transcript.
func (c *Controller) SendChat(text string) error {
	return c.call(func() error {
		if c.sess == nil {
			return ErrNotPaired
		}
		msg, err := domain.NewChatMessage(domain.AuthorLocal, text, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := c.conn.Send(domain.Envelope{
			Type: domain.TypeSendMessage,
			Room: c.sess.Room,
			Text: text,
		}); err != nil {
			return err
		}
		c.transcript = append(c.transcript, *msg)
		return nil
	})
}

// Transcript returns a copy of the current session's chat log.
func (c *Controller) Transcript() []domain.ChatMessage {
	var out []domain.ChatMessage
	_ = c.call(func() error {
		out = make([]domain.ChatMessage, len(c.transcript))
		copy(out, c.transcript)
		return nil
	})
	return out
}

// beginAcquire starts media acquisition off the loop. Completion is
// posted back; a stale generation (user stopped meanwhile) releases
// whatever was acquired and walks away.
func (c *Controller) beginAcquire() {
	c.acquiring = true
	gen := c.searchGen
	go func() {
		tracks, err := c.source.Acquire(context.Background())
		c.post(func() { c.finishAcquire(gen, tracks, err) })
	}()
}

func (c *Controller) finishAcquire(gen int, tracks []webrtc.TrackLocal, err error) {
	if gen != c.searchGen {
		if err == nil {
			c.source.Release()
		}
		return
	}
	c.acquiring = false
	if err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("media acquisition failed")
		c.pendingFound = nil
		c.setState(domain.StateIdle)
		c.reportError(err)
		return
	}
	c.tracks = tracks
	c.captured = true

	if pf := c.pendingFound; pf != nil {
		// A pairing raced the settling delay; take it.
		c.pendingFound = nil
		c.setState(domain.StateMatchmaking)
		c.handlePartnerFound(*pf)
		return
	}

	c.setState(domain.StateMatchmaking)
	if err := c.conn.Send(domain.Envelope{Type: domain.TypeFindPartner}); err != nil {
		log.Error().Err(err).Str("module", "session").Msg("find_partner send")
		c.source.Release()
		c.tracks = nil
		c.captured = false
		c.setState(domain.StateIdle)
		c.reportError(err)
	}
}

// teardown drives Closing -> Closed: engine first, then capture, then
// transcript. Only a partner-side cause schedules the automatic
// re-search.
func (c *Controller) teardown(reason teardownReason) {
	if c.sess == nil && c.engine == nil && !c.captured {
		return
	}
	c.setState(domain.StateClosing)
	if c.engine != nil {
		c.engine.Close()
		c.engine = nil
	}
	if c.captured {
		c.source.Release()
		c.tracks = nil
		c.captured = false
	}
	c.sess = nil
	c.transcript = nil
	c.early = nil
	c.earlyRoom = ""
	c.setState(domain.StateClosed)

	if reason == byPartner {
		c.scheduleRematch()
	}
}

func (c *Controller) shutdown() {
	c.searchGen++
	c.cancelRematch()
	c.pendingFound = nil
	c.teardown(byUser)
}

// scheduleRematch arms the settling delay before re-entering
// matchmaking. The delay doubles per consecutive departure that never
// reached Connected, capped by RematchMaxDelay; Connected resets it.
func (c *Controller) scheduleRematch() {
	delay := c.rematchDelay
	if next := c.rematchDelay * 2; next <= c.opts.RematchMaxDelay {
		c.rematchDelay = next
	} else {
		c.rematchDelay = c.opts.RematchMaxDelay
	}
	log.Info().Str("module", "session").Dur("delay", delay).Msg("re-search scheduled")
	c.rematchTimer = time.AfterFunc(delay, func() {
		c.post(func() {
			c.rematchTimer = nil
			if c.sess != nil || c.acquiring {
				return
			}
			c.beginAcquire()
		})
	})
}

func (c *Controller) cancelRematch() {
	if c.rematchTimer != nil {
		c.rematchTimer.Stop()
		c.rematchTimer = nil
	}
}

func (c *Controller) reportError(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}
