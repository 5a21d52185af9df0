// Package rtc drives one peer connection from creation to either
// media flowing or closed, translating signaling payloads into
// description state. One Engine per room, never reused.
package rtc

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/paircast/paircast/internal/domain"
)

var (
	ErrAlreadyNegotiating = errors.New("already negotiating")
	ErrUnexpectedAnswer   = errors.New("unexpected answer")
	ErrNotInitiator       = errors.New("offer requires initiator role")
	ErrEngineClosed       = errors.New("engine closed")
)

// Configuration builds the pion configuration from STUN URLs.
func Configuration(stunURLs []string) webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunURLs},
		},
	}
}

// Engine wraps one underlying peer connection. All methods are safe
// for concurrent use; in practice the session controller calls them
// from a single event loop and only pion callbacks come from outside.
type Engine struct {
	pc   *webrtc.PeerConnection
	room domain.RoomID
	role domain.Role

	mu        sync.Mutex
	localSet  bool
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	closed    bool

	remote *RemoteStream

	onCandidate func(domain.Candidate)
	onClosed    func()
}

// New allocates the underlying connection and attaches every local
// track. Tracks are borrowed from the media source, not owned; Close
// drops the references but never stops capture.
func New(cfg webrtc.Configuration, room domain.RoomID, role domain.Role, localTracks []webrtc.TrackLocal) (*Engine, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	for _, track := range localTracks {
		if _, err := pc.AddTrack(track); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}
	return &Engine{
		pc:     pc,
		room:   room,
		role:   role,
		remote: newRemoteStream(),
	}, nil
}

func (e *Engine) Room() domain.RoomID { return e.room }

func (e *Engine) Role() domain.Role { return e.role }

// Remote is the session's single remote-media handle.
func (e *Engine) Remote() *RemoteStream { return e.remote }

// OnCandidate sets the callback for newly gathered local candidates.
// Each is meant to go outbound immediately (trickle).
func (e *Engine) OnCandidate(fn func(domain.Candidate)) { e.onCandidate = fn }

// OnClosed sets the callback for a terminal transport failure.
func (e *Engine) OnClosed(fn func()) { e.onClosed = fn }

// Start registers the underlying connection callbacks. Call after the
// On* setters; callbacks never fire for a closed engine.
func (e *Engine) Start() {
	e.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		e.mu.Lock()
		closed := e.closed
		e.mu.Unlock()
		if closed || e.onCandidate == nil {
			return
		}
		e.onCandidate(*domain.CandidateFrom(cand.ToJSON()))
	})

	e.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("room", string(e.room)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		e.mu.Lock()
		closed := e.closed
		e.mu.Unlock()
		if closed {
			return
		}
		e.remote.add(track)
	})

	e.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().
			Str("module", "rtc").
			Str("room", string(e.room)).
			Str("peer_connection_state", s.String()).
			Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			e.mu.Lock()
			closed := e.closed
			e.mu.Unlock()
			if !closed && e.onClosed != nil {
				e.onClosed()
			}
		}
	})
}

// StartOffer generates the offer and sets it as local description.
// Initiator only, at most once per engine.
func (e *Engine) StartOffer() (webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return webrtc.SessionDescription{}, ErrEngineClosed
	}
	if e.role != domain.RoleInitiator {
		return webrtc.SessionDescription{}, ErrNotInitiator
	}
	if e.localSet {
		return webrtc.SessionDescription{}, ErrAlreadyNegotiating
	}

	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := e.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	e.localSet = true
	return offer, nil
}

// ApplyRemoteOffer sets the remote offer, answers it, and drains any
// candidates that arrived early. The answer is already set as local
// description when returned.
func (e *Engine) ApplyRemoteOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return webrtc.SessionDescription{}, ErrEngineClosed
	}
	if e.remoteSet {
		return webrtc.SessionDescription{}, ErrAlreadyNegotiating
	}

	if err := e.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	e.remoteSet = true

	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	e.localSet = true

	e.drainPendingLocked()
	return answer, nil
}

// ApplyRemoteAnswer completes a negotiation this engine started.
func (e *Engine) ApplyRemoteAnswer(answer webrtc.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if !e.localSet || e.remoteSet {
		return ErrUnexpectedAnswer
	}

	if err := e.pc.SetRemoteDescription(answer); err != nil {
		return err
	}
	e.remoteSet = true
	e.drainPendingLocked()
	return nil
}

// AddRemoteCandidate applies the candidate now if the remote
// description exists, otherwise queues it for the drain. A candidate
// that fails to apply is logged and dropped.
func (e *Engine) AddRemoteCandidate(c domain.Candidate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if !e.remoteSet {
		e.pending = append(e.pending, c.Init())
		return
	}
	if err := e.pc.AddICECandidate(c.Init()); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Str("room", string(e.room)).Msg("discarding candidate")
	}
}

func (e *Engine) drainPendingLocked() {
	for _, ci := range e.pending {
		if err := e.pc.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("room", string(e.room)).Msg("discarding queued candidate")
		}
	}
	e.pending = nil
}

// Close tears down the underlying connection and drops track
// references. Idempotent; late async completions against a closed
// engine become no-ops.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.pending = nil
	e.mu.Unlock()

	if err := e.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("room", string(e.room)).Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Str("room", string(e.room)).Msg("closed")
	}
}
