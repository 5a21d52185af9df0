package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewChatMessageValidation(t *testing.T) {
	now := time.Now()

	if _, err := NewChatMessage(AuthorLocal, "", now); !errors.Is(err, ErrChatTextEmpty) {
		t.Fatalf("empty text: got %v", err)
	}
	if _, err := NewChatMessage(AuthorLocal, strings.Repeat("x", MaxChatTextLen+1), now); !errors.Is(err, ErrChatTextTooLong) {
		t.Fatalf("oversized text: got %v", err)
	}

	// Rune count, not byte count: a max-length cyrillic message is fine.
	msg, err := NewChatMessage(AuthorRemote, strings.Repeat("ж", MaxChatTextLen), now)
	if err != nil {
		t.Fatalf("max-length text rejected: %v", err)
	}
	if msg.Author != AuthorRemote || msg.SentAt != now {
		t.Fatalf("message fields mangled: %+v", msg)
	}
}
