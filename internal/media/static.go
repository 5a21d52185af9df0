package media

import (
	"context"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Static is a capture-free source: one silent audio track and one
// blank video track, both TrackLocalStaticSample. Useful for headless
// peers and tests where negotiating real capture is beside the point.
type Static struct {
	tracks []webrtc.TrackLocal
}

func NewStatic() *Static { return &Static{} }

func (s *Static) Acquire(ctx context.Context) ([]webrtc.TrackLocal, error) {
	if s.tracks != nil {
		return s.tracks, nil
	}
	streamID := "paircast-" + uuid.NewString()

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", streamID,
	)
	if err != nil {
		return nil, err
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", streamID,
	)
	if err != nil {
		return nil, err
	}
	s.tracks = []webrtc.TrackLocal{audio, video}
	return s.tracks, nil
}

func (s *Static) Release() { s.tracks = nil }

// None is a source with nothing to send. Sessions still negotiate and
// receive remote media.
type None struct{}

func (None) Acquire(ctx context.Context) ([]webrtc.TrackLocal, error) { return nil, nil }
func (None) Release()                                                 {}
