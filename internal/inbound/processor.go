package inbound

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduler/internal/appointment"
)

const invalidCommandReply = "Invalid command. Reply 'CONFIRM <ID>' or 'CANCEL <ID>'."

var commandPattern = regexp.MustCompile(`^(CONFIRM|CANCEL)\s+(\S+)$`)

// Message is a text received from a phone.
type Message struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Body       string `json:"body"`
	ProviderID string `json:"providerId,omitempty"`
}

type Command struct {
	Target appointment.Status
	RawID  string
}

// ParseCommand reads "CONFIRM <id>" or "CANCEL <id>", case-insensitively.
func ParseCommand(body string) (Command, bool) {
	m := commandPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(body)))
	if m == nil {
		return Command{}, false
	}
	target := appointment.StatusConfirmed
	if m[1] == "CANCEL" {
		target = appointment.StatusCancelled
	}
	return Command{Target: target, RawID: m[2]}, true
}

type Store interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*appointment.User, error)
}

type Transitioner interface {
	TransitionStatus(ctx context.Context, caller appointment.Identity, id uuid.UUID, to appointment.Status) (*appointment.Appointment, error)
}

// Messenger logs inbound texts and sends replies.
type Messenger interface {
	LogInbound(ctx context.Context, appointmentID *uuid.UUID, from, to, body, providerID string) error
	Reply(ctx context.Context, appointmentID *uuid.UUID, to, body string) error
}

// Processor turns patient replies into status transitions. The sender's phone must
// match the appointment's patient; the change then runs as that patient.
type Processor struct {
	store     Store
	svc       Transitioner
	messenger Messenger
	logger    zerolog.Logger
}

func NewProcessor(store Store, svc Transitioner, messenger Messenger, logger zerolog.Logger) *Processor {
	return &Processor{
		store:     store,
		svc:       svc,
		messenger: messenger,
		logger:    logger.With().Str("component", "inbound").Logger(),
	}
}

// Handle executes the command in msg, logs the inbound text and replies to the
// sender. It returns the reply and whether the command succeeded. Only
// infrastructure failures are returned as errors.
func (p *Processor) Handle(ctx context.Context, msg Message) (string, bool, error) {
	res, err := p.execute(ctx, msg)
	if err != nil {
		return "", false, err
	}
	reply, ok, apptID := res.reply, res.ok, res.appointmentID

	if err := p.messenger.LogInbound(ctx, apptID, msg.From, msg.To, msg.Body, msg.ProviderID); err != nil {
		p.logger.Warn().Err(err).Msg("log inbound message")
	}
	if err := p.messenger.Reply(ctx, apptID, msg.From, reply); err != nil {
		p.logger.Warn().Err(err).Str("to", msg.From).Msg("reply failed")
	}

	p.logger.Info().Str("from", msg.From).Bool("ok", ok).Msg("inbound command handled")
	return reply, ok, nil
}

type outcome struct {
	reply         string
	ok            bool
	appointmentID *uuid.UUID
}

func failed(reply string, id *uuid.UUID) outcome {
	return outcome{reply: reply, appointmentID: id}
}

func (p *Processor) execute(ctx context.Context, msg Message) (outcome, error) {
	cmd, ok := ParseCommand(msg.Body)
	if !ok {
		return failed(invalidCommandReply, nil), nil
	}

	id, err := uuid.Parse(cmd.RawID)
	if err != nil {
		return failed("Invalid appointment ID format.", nil), nil
	}

	appt, err := p.store.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			return failed(fmt.Sprintf("Appointment %s not found.", id), nil), nil
		}
		return outcome{}, fmt.Errorf("load appointment: %w", err)
	}
	ref := &appt.ID

	patient, err := p.store.GetUserByID(ctx, appt.PatientID)
	if err != nil && !errors.Is(err, appointment.ErrUserNotFound) {
		return outcome{}, fmt.Errorf("load patient: %w", err)
	}
	if patient == nil || patient.Phone != msg.From {
		return failed("Phone number does not match appointment patient.", ref), nil
	}

	caller := appointment.Identity{UserID: patient.ID, Role: appointment.RolePatient}
	_, err = p.svc.TransitionStatus(ctx, caller, id, cmd.Target)
	switch {
	case err == nil:
	case errors.Is(err, appointment.ErrCannotConfirm):
		return failed(fmt.Sprintf("Appointment cannot be confirmed (current status: %s).", appt.Status), ref), nil
	case errors.Is(err, appointment.ErrCannotCancel):
		return failed(fmt.Sprintf("Appointment cannot be cancelled (current status: %s).", appt.Status), ref), nil
	case errors.Is(err, appointment.ErrInternal):
		return outcome{}, err
	default:
		return failed(fmt.Sprintf("Failed to %s appointment: %s", verb(cmd.Target), err), ref), nil
	}

	if cmd.Target == appointment.StatusConfirmed {
		return outcome{reply: fmt.Sprintf("Appointment %s confirmed successfully!", id), ok: true, appointmentID: ref}, nil
	}
	return outcome{reply: fmt.Sprintf("Appointment %s cancelled successfully.", id), ok: true, appointmentID: ref}, nil
}

func verb(target appointment.Status) string {
	if target == appointment.StatusConfirmed {
		return "confirm"
	}
	return "cancel"
}
