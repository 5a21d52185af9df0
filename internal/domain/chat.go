package domain

import (
	"errors"
	"time"
	"unicode/utf8"
)

const MaxChatTextLen = 4000

var (
	ErrChatTextTooLong = errors.New("chat text too long")
	ErrChatTextEmpty   = errors.New("chat text empty")
)

// Chat authorship is peer-local; no identity survives a session.
const (
	AuthorLocal  = "you"
	AuthorRemote = "stranger"
)

// ChatMessage is one transcript entry. Ordering is arrival order per
// peer, not a total order across both peers.
type ChatMessage struct {
	Author string    `json:"author"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
}

// NewChatMessage is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewChatMessage(author, text string, sentAt time.Time) (*ChatMessage, error) {
	if len(text) == 0 {
		return nil, ErrChatTextEmpty
	}
	if utf8.RuneCountInString(text) > MaxChatTextLen {
		return nil, ErrChatTextTooLong
	}
	return &ChatMessage{Author: author, Text: text, SentAt: sentAt}, nil
}
