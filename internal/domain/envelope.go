package domain

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// Envelope types crossing the relay in either direction.
const (
	TypeFindPartner    = "find_partner"
	TypePartnerFound   = "partner_found"
	TypePartnerLeft    = "partner_left"
	TypeLeaveRoom      = "leave_room"
	TypeSignal         = "signal"
	TypeSendMessage    = "send_message"
	TypeReceiveMessage = "receive_message"
	TypeError          = "error"
)

// Description is an opaque SDP offer or answer.
type Description struct {
	Kind string `json:"kind"` // "offer" | "answer"
	SDP  string `json:"sdp"`
}

// Candidate mirrors webrtc.ICECandidateInit on the wire.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// Envelope is the single wire message exchanged with the relay.
// Unused fields stay empty; Type decides which ones matter.
type Envelope struct {
	Type        string       `json:"type"`
	Room        RoomID       `json:"roomId,omitempty"`
	Initiator   bool         `json:"initiator,omitempty"`
	Description *Description `json:"description,omitempty"`
	Candidate   *Candidate   `json:"candidate,omitempty"`
	Text        string       `json:"text,omitempty"`
	Author      string       `json:"author,omitempty"`
	SentAt      time.Time    `json:"sentAt,omitzero"`
	Error       string       `json:"error,omitempty"`
}

func (d Description) SessionDescription() webrtc.SessionDescription {
	sd := webrtc.SessionDescription{SDP: d.SDP}
	switch d.Kind {
	case "offer":
		sd.Type = webrtc.SDPTypeOffer
	case "answer":
		sd.Type = webrtc.SDPTypeAnswer
	}
	return sd
}

func DescriptionFrom(sd webrtc.SessionDescription) *Description {
	return &Description{Kind: sd.Type.String(), SDP: sd.SDP}
}

func (c Candidate) Init() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}

func CandidateFrom(ci webrtc.ICECandidateInit) *Candidate {
	return &Candidate{
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	}
}
