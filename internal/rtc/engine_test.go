package rtc

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/paircast/paircast/internal/domain"
)

// A syntactically valid host candidate; never actually reachable.
const testCandidate = "candidate:3993081497 1 udp 2122260223 192.168.1.7 53155 typ host generation 0"

func newEngine(t *testing.T, role domain.Role) *Engine {
	t.Helper()
	e, err := New(webrtc.Configuration{}, "r1", role, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	e.Start()
	return e
}

func TestStartOffer_AtMostOnce(t *testing.T) {
	e := newEngine(t, domain.RoleInitiator)

	offer, err := e.StartOffer()
	if err != nil {
		t.Fatalf("first StartOffer: %v", err)
	}
	if offer.SDP == "" {
		t.Fatalf("expected a non-empty offer")
	}

	if _, err := e.StartOffer(); !errors.Is(err, ErrAlreadyNegotiating) {
		t.Fatalf("second StartOffer: got %v, want ErrAlreadyNegotiating", err)
	}
}

func TestStartOffer_RequiresInitiatorRole(t *testing.T) {
	e := newEngine(t, domain.RoleResponder)
	if _, err := e.StartOffer(); !errors.Is(err, ErrNotInitiator) {
		t.Fatalf("got %v, want ErrNotInitiator", err)
	}
}

func TestOfferAnswerExchange(t *testing.T) {
	initiator := newEngine(t, domain.RoleInitiator)
	responder := newEngine(t, domain.RoleResponder)

	offer, err := initiator.StartOffer()
	if err != nil {
		t.Fatalf("StartOffer: %v", err)
	}

	answer, err := responder.ApplyRemoteOffer(offer)
	if err != nil {
		t.Fatalf("ApplyRemoteOffer: %v", err)
	}
	if answer.Type != webrtc.SDPTypeAnswer {
		t.Fatalf("expected an answer description, got %s", answer.Type)
	}

	if err := initiator.ApplyRemoteAnswer(answer); err != nil {
		t.Fatalf("ApplyRemoteAnswer: %v", err)
	}

	// A duplicate remote offer must not replace the existing one.
	if _, err := responder.ApplyRemoteOffer(offer); !errors.Is(err, ErrAlreadyNegotiating) {
		t.Fatalf("duplicate offer: got %v, want ErrAlreadyNegotiating", err)
	}
}

func TestApplyRemoteAnswer_WithoutPriorOffer(t *testing.T) {
	e := newEngine(t, domain.RoleInitiator)
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}
	if err := e.ApplyRemoteAnswer(answer); !errors.Is(err, ErrUnexpectedAnswer) {
		t.Fatalf("got %v, want ErrUnexpectedAnswer", err)
	}
}

func TestCandidatesQueuedUntilRemoteDescription(t *testing.T) {
	initiator := newEngine(t, domain.RoleInitiator)
	responder := newEngine(t, domain.RoleResponder)

	mid := "0"
	for i := 0; i < 3; i++ {
		responder.AddRemoteCandidate(domain.Candidate{Candidate: testCandidate, SDPMid: &mid})
	}

	responder.mu.Lock()
	queued := len(responder.pending)
	responder.mu.Unlock()
	if queued != 3 {
		t.Fatalf("expected 3 queued candidates, got %d", queued)
	}

	offer, err := initiator.StartOffer()
	if err != nil {
		t.Fatalf("StartOffer: %v", err)
	}
	if _, err := responder.ApplyRemoteOffer(offer); err != nil {
		t.Fatalf("ApplyRemoteOffer: %v", err)
	}

	responder.mu.Lock()
	queued = len(responder.pending)
	remoteSet := responder.remoteSet
	responder.mu.Unlock()
	if queued != 0 {
		t.Fatalf("expected pending queue drained, got %d left", queued)
	}
	if !remoteSet {
		t.Fatalf("expected remote description to be set")
	}

	// Once the remote description exists, candidates apply directly.
	responder.AddRemoteCandidate(domain.Candidate{Candidate: testCandidate, SDPMid: &mid})
	responder.mu.Lock()
	queued = len(responder.pending)
	responder.mu.Unlock()
	if queued != 0 {
		t.Fatalf("late candidate should not queue, got %d", queued)
	}
}

func TestBadCandidateIsDiscardedNotFatal(t *testing.T) {
	initiator := newEngine(t, domain.RoleInitiator)
	responder := newEngine(t, domain.RoleResponder)

	offer, err := initiator.StartOffer()
	if err != nil {
		t.Fatalf("StartOffer: %v", err)
	}
	if _, err := responder.ApplyRemoteOffer(offer); err != nil {
		t.Fatalf("ApplyRemoteOffer: %v", err)
	}

	responder.AddRemoteCandidate(domain.Candidate{Candidate: "not a candidate"})

	// The session is still usable: the next good candidate applies.
	mid := "0"
	responder.AddRemoteCandidate(domain.Candidate{Candidate: testCandidate, SDPMid: &mid})
}

func TestClose_Idempotent(t *testing.T) {
	e := newEngine(t, domain.RoleInitiator)
	e.Close()
	e.Close()

	if _, err := e.StartOffer(); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("StartOffer after close: got %v, want ErrEngineClosed", err)
	}
	if err := e.ApplyRemoteAnswer(webrtc.SessionDescription{}); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("ApplyRemoteAnswer after close: got %v, want ErrEngineClosed", err)
	}
	// Candidates after close are silently dropped.
	e.AddRemoteCandidate(domain.Candidate{Candidate: testCandidate})
}

func TestNegotiationWithoutLocalTracks(t *testing.T) {
	// Media denied but matchmaking forced: the offer must still be
	// valid with nothing attached.
	e, err := New(webrtc.Configuration{}, "r1", domain.RoleInitiator, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()
	e.Start()

	offer, err := e.StartOffer()
	if err != nil {
		t.Fatalf("StartOffer: %v", err)
	}
	if offer.SDP == "" {
		t.Fatalf("expected a usable offer without local tracks")
	}
}
