package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StreamAccounts carries account lifecycle events to the admin websocket.
const StreamAccounts = "events:account"

const (
	EventAccountRegistered = "account_registered"
	EventRoleChanged       = "role_changed"
	EventCredentialChanged = "credential_changed"
	EventAccountDeleted    = "account_deleted"
)

// Payloads never carry credentials, hashes or nonces.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

// Stamp fills ID and OccurredAt when the producer left them empty.
func (e *Event) Stamp(now time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now.UTC()
	}
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
