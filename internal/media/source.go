// Package media owns locally captured tracks. Sources own their
// tracks; the negotiation engine and any renderer only borrow them,
// and only the session controller may acquire or release capture.
package media

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

// ErrAccessDenied means capture devices were unavailable or the user
// refused access. Recoverable by retrying the search.
var ErrAccessDenied = errors.New("media access denied")

// Source supplies local tracks for a session.
type Source interface {
	// Acquire starts capture and returns the local tracks. The
	// returned slice may be empty for a source with nothing to send.
	Acquire(ctx context.Context) ([]webrtc.TrackLocal, error)
	// Release stops capture. Must not be called while an engine still
	// references the tracks.
	Release()
}
