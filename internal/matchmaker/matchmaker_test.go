package matchmaker

import (
	"sync"
	"testing"
	"time"

	"github.com/paircast/paircast/internal/domain"
)

type fakeClient struct {
	id ClientID

	mu   sync.Mutex
	sent []domain.Envelope
}

func (c *fakeClient) ID() ClientID { return c.id }

func (c *fakeClient) TrySend(env domain.Envelope) error {
	c.mu.Lock()
	c.sent = append(c.sent, env)
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) last(t *testing.T, typ string) domain.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].Type == typ {
			return c.sent[i]
		}
	}
	t.Fatalf("client %s never received %s", c.id, typ)
	return domain.Envelope{}
}

func (c *fakeClient) count(typ string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, env := range c.sent {
		if env.Type == typ {
			n++
		}
	}
	return n
}

func pairUp(t *testing.T, m *Matchmaker) (*fakeClient, *fakeClient, domain.RoomID) {
	t.Helper()
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	m.Find(a)
	m.Find(b)

	found := a.last(t, domain.TypePartnerFound)
	if found.Room == "" {
		t.Fatalf("empty room id in pairing")
	}
	return a, b, found.Room
}

func TestFindPairsFIFO(t *testing.T) {
	m := New(nil)
	a, b, room := pairUp(t, m)

	af := a.last(t, domain.TypePartnerFound)
	bf := b.last(t, domain.TypePartnerFound)
	if af.Room != bf.Room {
		t.Fatalf("peers put in different rooms: %s vs %s", af.Room, bf.Room)
	}
	if !af.Initiator {
		t.Fatalf("longer-waiting client must be the initiator")
	}
	if bf.Initiator {
		t.Fatalf("both clients marked initiator for room %s", room)
	}
}

func TestDuplicateFindWhileWaiting(t *testing.T) {
	m := New(nil)
	a := &fakeClient{id: "a"}
	m.Find(a)
	m.Find(a) // impatient double click

	b := &fakeClient{id: "b"}
	m.Find(b)
	if n := a.count(domain.TypePartnerFound); n != 1 {
		t.Fatalf("client paired %d times", n)
	}
}

func TestForwardIsScopedToRoom(t *testing.T) {
	m := New(nil)
	a, b, room := pairUp(t, m)

	m.Forward(a, domain.Envelope{
		Type:        domain.TypeSignal,
		Room:        room,
		Description: &domain.Description{Kind: "offer", SDP: "o"},
	})
	got := b.last(t, domain.TypeSignal)
	if got.Description == nil || got.Description.SDP != "o" {
		t.Fatalf("signal not forwarded verbatim: %+v", got)
	}

	// A stale room id goes nowhere.
	m.Forward(a, domain.Envelope{Type: domain.TypeSignal, Room: "bogus"})
	if n := b.count(domain.TypeSignal); n != 1 {
		t.Fatalf("stale-room signal was forwarded, count=%d", n)
	}
}

func TestLeaveNotifiesSurvivor(t *testing.T) {
	m := New(nil)
	a, b, room := pairUp(t, m)

	m.Leave(a, room)
	left := b.last(t, domain.TypePartnerLeft)
	if left.Room != room {
		t.Fatalf("partner_left for wrong room: %s", left.Room)
	}

	// The room is gone; nothing more crosses it.
	m.Forward(a, domain.Envelope{Type: domain.TypeSignal, Room: room})
	if n := b.count(domain.TypeSignal); n != 0 {
		t.Fatalf("signal crossed a dead room")
	}
}

func TestLeaveWithStaleRoomIgnored(t *testing.T) {
	m := New(nil)
	a, b, _ := pairUp(t, m)

	m.Leave(a, "stale-room")
	if n := b.count(domain.TypePartnerLeft); n != 0 {
		t.Fatalf("stale leave tore the pairing down")
	}
}

func TestDisconnectEndsPairing(t *testing.T) {
	m := New(nil)
	a, b, room := pairUp(t, m)

	m.Disconnect(b)
	left := a.last(t, domain.TypePartnerLeft)
	if left.Room != room {
		t.Fatalf("partner_left for wrong room: %s", left.Room)
	}
}

func TestDisconnectWhileWaiting(t *testing.T) {
	m := New(nil)
	a := &fakeClient{id: "a"}
	m.Find(a)
	m.Disconnect(a)

	// The queue is empty again; b parks instead of pairing with a ghost.
	b := &fakeClient{id: "b"}
	m.Find(b)
	if n := b.count(domain.TypePartnerFound); n != 0 {
		t.Fatalf("paired with a disconnected client")
	}
}

func TestChatRelayedWithArrivalStamp(t *testing.T) {
	m := New(nil)
	a, b, room := pairUp(t, m)

	before := time.Now()
	m.Chat(a, domain.Envelope{Type: domain.TypeSendMessage, Room: room, Text: "hello"})

	got := b.last(t, domain.TypeReceiveMessage)
	if got.Text != "hello" || got.Author != domain.AuthorRemote {
		t.Fatalf("chat mangled: %+v", got)
	}
	if got.SentAt.Before(before.Add(-time.Second)) {
		t.Fatalf("missing arrival stamp: %v", got.SentAt)
	}
	if n := a.count(domain.TypeReceiveMessage); n != 0 {
		t.Fatalf("chat echoed back to sender")
	}
}

func TestChatRejectsOversizedMessage(t *testing.T) {
	m := New(nil)
	a, b, room := pairUp(t, m)

	huge := make([]byte, domain.MaxChatTextLen+1)
	for i := range huge {
		huge[i] = 'x'
	}
	m.Chat(a, domain.Envelope{Type: domain.TypeSendMessage, Room: room, Text: string(huge)})

	if n := b.count(domain.TypeReceiveMessage); n != 0 {
		t.Fatalf("oversized chat was relayed")
	}
	if n := a.count(domain.TypeError); n != 1 {
		t.Fatalf("sender not told about rejection, errors=%d", n)
	}
}

func TestFindWhilePairedRerolls(t *testing.T) {
	m := New(nil)
	a, b, _ := pairUp(t, m)

	// a asks for a new partner without leaving first.
	m.Find(a)
	if n := b.count(domain.TypePartnerLeft); n != 1 {
		t.Fatalf("old partner not notified, got %d", n)
	}

	c := &fakeClient{id: "c"}
	m.Find(c)
	if n := a.count(domain.TypePartnerFound); n != 2 {
		t.Fatalf("expected a to be re-paired, pairings=%d", n)
	}
}

func TestRateLimiterBlocksChurn(t *testing.T) {
	m := New(NewRateLimiter(2, time.Minute))
	a := &fakeClient{id: "a"}

	m.Find(a)
	m.Disconnect(a) // clears the waiting slot but also forgets history

	b := &fakeClient{id: "b"}
	m.Find(b)
	m.Find(b)
	m.Find(b)
	if n := b.count(domain.TypeError); n != 1 {
		t.Fatalf("third search within the window should be limited, errors=%d", n)
	}
}
