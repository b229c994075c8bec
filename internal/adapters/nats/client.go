package natsadapter

import (
	"context"
	"encoding/json"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/BengeeL/Dental-Chatbot/internal/domain"
)

type userCreatedEvent struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role,omitempty"`
	FirstName string    `json:"firstname,omitempty"`
	LastName  string    `json:"lastname,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// publisher is the part of *nats.Conn the event publisher needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// UserEvents announces new profiles. Delivery is fire-and-forget.
type UserEvents struct {
	conn    publisher
	subject string
	now     func() time.Time
}

func NewUserEvents(conn *nats.Conn, subject string) *UserEvents {
	return &UserEvents{conn: conn, subject: subject, now: time.Now}
}

func (e *UserEvents) UserCreated(_ context.Context, profile domain.Profile) error {
	data, err := json.Marshal(userCreatedEvent{
		ID:        profile.ID,
		Email:     profile.Email,
		Role:      profile.Role,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Source:    "signup",
		CreatedAt: e.now().UTC(),
	})
	if err != nil {
		return err
	}
	return e.conn.Publish(e.subject, data)
}
