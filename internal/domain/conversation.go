package domain

import (
	"time"
)

// Conversation stores the agent's memory for one conversation context.
type Conversation struct {
	ContextID    string
	UserID       string
	MessagesJSON string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
