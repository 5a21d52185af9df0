package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"     // registers the camera driver
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // registers the microphone driver
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Devices captures audio and video from the local camera and
// microphone through pion/mediadevices. VP8 for video, Opus for
// audio.
type Devices struct {
	mu     sync.Mutex
	stream mediadevices.MediaStream
}

func NewDevices() *Devices { return &Devices{} }

func (d *Devices) Acquire(ctx context.Context) ([]webrtc.TrackLocal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		return nil, fmt.Errorf("capture already running")
	}

	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	opusParams.BitRate = 32_000

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.Int(640)
			c.Height = prop.Int(480)
			c.FrameRate = prop.Float(30)
		},
		Audio: func(c *mediadevices.MediaTrackConstraints) {
			c.SampleRate = prop.Int(48000)
			c.ChannelCount = prop.Int(1)
		},
		Codec: selector,
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "media").Msg("device acquisition failed")
		return nil, fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}
	d.stream = stream

	var tracks []webrtc.TrackLocal
	for _, t := range stream.GetTracks() {
		tracks = append(tracks, t)
	}
	log.Info().Str("module", "media").Int("tracks", len(tracks)).Msg("capture started")
	return tracks, nil
}

func (d *Devices) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return
	}
	for _, t := range d.stream.GetTracks() {
		if err := t.Close(); err != nil {
			log.Error().Err(err).Str("module", "media").Str("track_id", t.ID()).Msg("track close")
		}
	}
	d.stream = nil
	log.Info().Str("module", "media").Msg("capture released")
}
