package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduler/internal/appointment"
	"github.com/hackgods/clinic-scheduler/internal/clock"
)

const (
	reminderDateLayout = "02 Jan 2006"
	reminderTimeLayout = "03:04 PM"
	longLayout         = "January 02, 2006 at 03:04 PM UTC"
)

// Store is the storage the notifier needs: party lookups and the notification log.
type Store interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*appointment.User, error)
	InsertNotificationLog(ctx context.Context, l *appointment.NotificationLog) error
}

// Lines are the sender numbers. Patients hear from the patient line, doctors from the doctor line.
type Lines struct {
	Patient string
	Doctor  string
}

// Notifier renders appointment messages, sends them through a Sink and records every
// attempt in the notification log.
type Notifier struct {
	sink   Sink
	store  Store
	lines  Lines
	clock  clock.Clock
	logger zerolog.Logger
}

func NewNotifier(sink Sink, store Store, lines Lines, clk clock.Clock, logger zerolog.Logger) *Notifier {
	if clk == nil {
		clk = clock.System()
	}
	return &Notifier{
		sink:   sink,
		store:  store,
		lines:  lines,
		clock:  clk,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

func (n *Notifier) parties(ctx context.Context, a *appointment.Appointment) (patient, doctor *appointment.User, err error) {
	patient, err = n.store.GetUserByID(ctx, a.PatientID)
	if err != nil {
		return nil, nil, fmt.Errorf("load patient: %w", err)
	}
	doctor, err = n.store.GetUserByID(ctx, a.DoctorID)
	if err != nil {
		return nil, nil, fmt.Errorf("load doctor: %w", err)
	}
	return patient, doctor, nil
}

func (n *Notifier) Reminder(ctx context.Context, a *appointment.Appointment) error {
	patient, doctor, err := n.parties(ctx, a)
	if err != nil {
		return err
	}
	return n.send(ctx, a, patient.Phone, n.lines.Patient, ReminderBody(a, doctor))
}

func (n *Notifier) Confirmation(ctx context.Context, a *appointment.Appointment) error {
	patient, doctor, err := n.parties(ctx, a)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Patient %s has confirmed their appointment on %s.", patient.Name, a.Start.UTC().Format(longLayout))
	return n.send(ctx, a, doctor.Phone, n.lines.Doctor, body)
}

func (n *Notifier) Cancellation(ctx context.Context, a *appointment.Appointment) error {
	patient, doctor, err := n.parties(ctx, a)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Patient %s has cancelled their appointment on %s.", patient.Name, a.Start.UTC().Format(longLayout))
	return n.send(ctx, a, doctor.Phone, n.lines.Doctor, body)
}

// NoShow tells both parties. Both sends are attempted even if the first fails.
func (n *Notifier) NoShow(ctx context.Context, a *appointment.Appointment) error {
	patient, doctor, err := n.parties(ctx, a)
	if err != nil {
		return err
	}
	when := a.Start.UTC().Format(longLayout)

	patientBody := fmt.Sprintf("Your appointment with %s on %s has been marked as a no-show. "+
		"Please contact the clinic if this is an error.", doctor.Name, when)
	doctorBody := fmt.Sprintf("Patient %s did not show up for the appointment on %s. "+
		"Appointment has been marked as no-show.", patient.Name, when)

	return errors.Join(
		n.send(ctx, a, patient.Phone, n.lines.Patient, patientBody),
		n.send(ctx, a, doctor.Phone, n.lines.Doctor, doctorBody),
	)
}

// Reply answers an inbound text on the patient line.
func (n *Notifier) Reply(ctx context.Context, appointmentID *uuid.UUID, to, body string) error {
	return n.deliver(ctx, appointmentID, to, n.lines.Patient, body)
}

// ReminderBody renders the pre-visit text sent to the patient.
func ReminderBody(a *appointment.Appointment, doctor *appointment.User) string {
	start := a.Start.UTC()
	return fmt.Sprintf("Health Clinic: %s at %s\n%s\nPlease confirm on our website or reply CONFIRM %s",
		start.Format(reminderDateLayout), start.Format(reminderTimeLayout), doctor.Name, a.ID)
}

func (n *Notifier) send(ctx context.Context, a *appointment.Appointment, to, from, body string) error {
	id := a.ID
	return n.deliver(ctx, &id, to, from, body)
}

func (n *Notifier) deliver(ctx context.Context, appointmentID *uuid.UUID, to, from, body string) error {
	msg := Message{
		ID:            uuid.New(),
		To:            to,
		From:          from,
		Body:          body,
		AppointmentID: appointmentID,
	}

	res, sendErr := n.sink.Send(ctx, msg)
	if sendErr != nil {
		res.Status = StatusFailed
		if res.Error == "" {
			res.Error = sendErr.Error()
		}
	}

	entry := &appointment.NotificationLog{
		ID:            msg.ID,
		AppointmentID: appointmentID,
		Direction:     appointment.DirectionOutbound,
		To:            to,
		From:          from,
		Body:          body,
		Status:        res.Status,
		CreatedAt:     n.clock.Now(),
	}
	if res.ProviderMessageID != "" {
		entry.ProviderMessageID = &res.ProviderMessageID
	}
	if res.Error != "" {
		entry.Error = &res.Error
	}

	if err := n.store.InsertNotificationLog(ctx, entry); err != nil {
		n.logger.Warn().Err(err).Str("message_id", msg.ID.String()).Msg("record notification log")
	}

	if sendErr != nil {
		return fmt.Errorf("send to %s: %w", to, sendErr)
	}

	n.logger.Debug().
		Str("message_id", msg.ID.String()).
		Str("status", res.Status).
		Bool("skipped", res.Skipped).
		Msg("notification sent")
	return nil
}

// LogInbound records a text received from a phone.
func (n *Notifier) LogInbound(ctx context.Context, appointmentID *uuid.UUID, from, to, body, providerID string) error {
	entry := &appointment.NotificationLog{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		Direction:     appointment.DirectionInbound,
		To:            to,
		From:          from,
		Body:          body,
		Status:        StatusReceived,
		CreatedAt:     n.clock.Now(),
	}
	if providerID != "" {
		entry.ProviderMessageID = &providerID
	}
	if err := n.store.InsertNotificationLog(ctx, entry); err != nil {
		return fmt.Errorf("record inbound message: %w", err)
	}
	return nil
}

var _ appointment.Notifier = (*Notifier)(nil)
