// Package matchmaker pairs waiting clients into rooms and forwards
// signaling and chat between the two peers of a room. Matching policy
// is plain FIFO; the peers never learn anything about each other
// beyond the room id.
package matchmaker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/paircast/paircast/internal/domain"
)

type ClientID string

// Client is the transport endpoint of one connected participant.
// Owned by the adapter; the adapter must Close() it.
type Client interface {
	ID() ClientID
	TrySend(domain.Envelope) error
}

type pair struct {
	room domain.RoomID
	a, b Client // a is the initiator
}

func (p *pair) other(id ClientID) Client {
	if p.a.ID() == id {
		return p.b
	}
	return p.a
}

type Matchmaker struct {
	mu       sync.Mutex
	waiting  Client
	rooms    map[domain.RoomID]*pair
	byClient map[ClientID]domain.RoomID
	limiter  *RateLimiter
}

func New(limiter *RateLimiter) *Matchmaker {
	return &Matchmaker{
		rooms:    make(map[domain.RoomID]*pair),
		byClient: make(map[ClientID]domain.RoomID),
		limiter:  limiter,
	}
}

// Find parks the client until a partner shows up, or pairs it with
// the one already parked. The longer-waiting side becomes the
// initiator.
func (m *Matchmaker) Find(c Client) {
	if m.limiter != nil && !m.limiter.Allow(c.ID()) {
		_ = c.TrySend(domain.Envelope{Type: domain.TypeError, Error: "slow down"})
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.byClient[c.ID()]; ok {
		m.endPairLocked(room, c.ID())
	}
	if m.waiting != nil && m.waiting.ID() == c.ID() {
		return
	}
	if m.waiting == nil {
		m.waiting = c
		log.Info().Str("module", "matchmaker").Str("client", string(c.ID())).Msg("waiting")
		return
	}

	partner := m.waiting
	m.waiting = nil
	room := domain.RoomID(uuid.NewString())
	m.rooms[room] = &pair{room: room, a: partner, b: c}
	m.byClient[partner.ID()] = room
	m.byClient[c.ID()] = room

	log.Info().
		Str("module", "matchmaker").
		Str("room", string(room)).
		Str("initiator", string(partner.ID())).
		Str("responder", string(c.ID())).
		Msg("paired")

	_ = partner.TrySend(domain.Envelope{Type: domain.TypePartnerFound, Room: room, Initiator: true})
	_ = c.TrySend(domain.Envelope{Type: domain.TypePartnerFound, Room: room})
}

// Leave tears the client's pairing down and notifies the survivor.
// A mismatched room id is a stale request and ignored.
func (m *Matchmaker) Leave(c Client, room domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byClient[c.ID()] != room {
		return
	}
	m.endPairLocked(room, c.ID())
}

// Disconnect handles a dropped transport: unpark or end the pairing.
func (m *Matchmaker) Disconnect(c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.waiting != nil && m.waiting.ID() == c.ID() {
		m.waiting = nil
	}
	if room, ok := m.byClient[c.ID()]; ok {
		m.endPairLocked(room, c.ID())
	}
	if m.limiter != nil {
		m.limiter.Forget(c.ID())
	}
}

func (m *Matchmaker) endPairLocked(room domain.RoomID, leaver ClientID) {
	p, ok := m.rooms[room]
	if !ok {
		return
	}
	delete(m.rooms, room)
	delete(m.byClient, p.a.ID())
	delete(m.byClient, p.b.ID())
	_ = p.other(leaver).TrySend(domain.Envelope{Type: domain.TypePartnerLeft, Room: room})
	log.Info().Str("module", "matchmaker").Str("room", string(room)).Msg("pair ended")
}

// Forward relays a signaling envelope to the sender's partner,
// verbatim. The payload stays opaque to the relay.
func (m *Matchmaker) Forward(c Client, env domain.Envelope) {
	m.mu.Lock()
	p, ok := m.rooms[env.Room]
	member := ok && m.byClient[c.ID()] == env.Room
	m.mu.Unlock()
	if !member {
		log.Debug().Str("module", "matchmaker").Str("room", string(env.Room)).Msg("dropping signal for unknown room")
		return
	}
	if err := p.other(c.ID()).TrySend(env); err != nil {
		log.Warn().Err(err).Str("module", "matchmaker").Str("room", string(env.Room)).Msg("forward")
	}
}

// Chat relays a text message, stamping arrival time server-side.
func (m *Matchmaker) Chat(c Client, env domain.Envelope) {
	if _, err := domain.NewChatMessage(domain.AuthorRemote, env.Text, time.Now()); err != nil {
		_ = c.TrySend(domain.Envelope{Type: domain.TypeError, Error: err.Error()})
		return
	}
	m.mu.Lock()
	p, ok := m.rooms[env.Room]
	member := ok && m.byClient[c.ID()] == env.Room
	m.mu.Unlock()
	if !member {
		return
	}
	_ = p.other(c.ID()).TrySend(domain.Envelope{
		Type:   domain.TypeReceiveMessage,
		Room:   env.Room,
		Author: domain.AuthorRemote,
		Text:   env.Text,
		SentAt: time.Now().UTC(),
	})
}
