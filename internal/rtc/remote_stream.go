package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// RemoteStream is the single coherent remote-media handle for a
// session. The underlying connection may surface tracks one at a time
// or as a pre-grouped bundle; either way they all land here, in
// arrival order. The first track doubles as the "media is flowing"
// signal for the session controller.
type RemoteStream struct {
	mu      sync.Mutex
	tracks  []*webrtc.TrackRemote
	seen    map[string]bool
	onTrack func(*webrtc.TrackRemote)
}

func newRemoteStream() *RemoteStream {
	return &RemoteStream{seen: make(map[string]bool)}
}

// OnTrack sets the callback invoked once per newly arrived track.
// Set before Engine.Start.
func (s *RemoteStream) OnTrack(fn func(*webrtc.TrackRemote)) {
	s.mu.Lock()
	s.onTrack = fn
	s.mu.Unlock()
}

func (s *RemoteStream) add(track *webrtc.TrackRemote) {
	s.mu.Lock()
	if s.seen[track.ID()] {
		s.mu.Unlock()
		return
	}
	s.seen[track.ID()] = true
	s.tracks = append(s.tracks, track)
	fn := s.onTrack
	s.mu.Unlock()

	if fn != nil {
		fn(track)
	}
}

// Tracks returns a snapshot of the tracks received so far.
func (s *RemoteStream) Tracks() []*webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*webrtc.TrackRemote, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *RemoteStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}
