package notify

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Delivery statuses recorded in the notification log.
const (
	StatusQueued   = "queued"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
	StatusLogged   = "logged"
	StatusReceived = "received"
)

var ErrSinkUnavailable = errors.New("notification sink unavailable")

// Message is one outbound text.
type Message struct {
	ID            uuid.UUID  `json:"id"`
	To            string     `json:"to"`
	From          string     `json:"from"`
	Body          string     `json:"body"`
	AppointmentID *uuid.UUID `json:"appointmentId,omitempty"`
}

// Result describes what the sink did with a message. A skipped message counts as a success.
type Result struct {
	Success           bool
	Skipped           bool
	Status            string
	ProviderMessageID string
	Error             string
}

type Sink interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg Message) (Result, error)

func (f SinkFunc) Send(ctx context.Context, msg Message) (Result, error) {
	return f(ctx, msg)
}
