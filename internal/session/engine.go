package session

import (
	"github.com/pion/webrtc/v4"

	"github.com/paircast/paircast/internal/domain"
	"github.com/paircast/paircast/internal/rtc"
)

// Negotiator is what the controller needs from a negotiation engine.
// One per room, created fresh on pairing, closed on session end.
type Negotiator interface {
	StartOffer() (webrtc.SessionDescription, error)
	ApplyRemoteOffer(webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyRemoteAnswer(webrtc.SessionDescription) error
	AddRemoteCandidate(domain.Candidate)
	Close()
}

// EngineHooks are the engine-to-controller callbacks. They may fire
// from transport goroutines; the controller reposts them onto its
// event loop.
type EngineHooks struct {
	Candidate   func(domain.Candidate)
	RemoteTrack func(*webrtc.TrackRemote)
	Closed      func()
}

// EngineFactory builds a Negotiator bound to one room.
type EngineFactory func(room domain.RoomID, role domain.Role, tracks []webrtc.TrackLocal, hooks EngineHooks) (Negotiator, error)

// PionEngines is the production factory over internal/rtc.
func PionEngines(cfg webrtc.Configuration) EngineFactory {
	return func(room domain.RoomID, role domain.Role, tracks []webrtc.TrackLocal, hooks EngineHooks) (Negotiator, error) {
		eng, err := rtc.New(cfg, room, role, tracks)
		if err != nil {
			return nil, err
		}
		eng.OnCandidate(hooks.Candidate)
		eng.OnClosed(hooks.Closed)
		eng.Remote().OnTrack(hooks.RemoteTrack)
		eng.Start()
		return eng, nil
	}
}
