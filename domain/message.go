package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat entry. At is the time of
// persistence, which is also the ordering authority within a chat.
type Message struct {
	ID     uuid.UUID
	ChatID string
	Sender string
	Text   string
	At     time.Time
}
