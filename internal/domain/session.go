// Package domain contains entity without logic, just meta-data
package domain

// RoomID is an opaque pairing identifier issued by the relay.
// Valid only while both peers of the pairing are connected.
type RoomID string

// Role decides who issues the offer. Fixed at pairing time and never
// renegotiated, so offer/offer glare cannot happen.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

func (r Role) String() string { return string(r) }

// State is the session lifecycle as seen by the controller.
type State int

const (
	StateIdle State = iota
	StateMatchmaking
	StateNegotiating
	StateConnected
	StateClosing
	StateClosed
)

var stateNames = map[State]string{
	StateIdle:        "idle",
	StateMatchmaking: "matchmaking",
	StateNegotiating: "negotiating",
	StateConnected:   "connected",
	StateClosing:     "closing",
	StateClosed:      "closed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Session is one matched pairing. Owned exclusively by the controller.
type Session struct {
	Room RoomID
	Role Role
}
