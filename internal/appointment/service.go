package appointment

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduler/internal/clock"
	"github.com/hackgods/clinic-scheduler/internal/jobs"
)

const (
	JobKindReminder = "appointment.reminder"

	AutoCancelReason    = "Auto-cancelled: Not confirmed within required timeframe"
	PatientCancelReason = "Cancelled by patient"

	MaxReasonLength = 500
)

// Policy holds the time thresholds that drive reminders and sweeps.
type Policy struct {
	ReminderLeadTime time.Duration // reminder fires this long before start
	AutoCancelWindow time.Duration // unconfirmed bookings this close to start get cancelled
	NoShowGrace      time.Duration // active bookings this far past start become no-shows
}

func DefaultPolicy() Policy {
	return Policy{
		ReminderLeadTime: 3 * time.Hour,
		AutoCancelWindow: 15 * time.Minute,
		NoShowGrace:      15 * time.Minute,
	}
}

// Notifier delivers the messages tied to appointment events. Errors are reported
// to the caller, which logs them and carries on.
type Notifier interface {
	Reminder(ctx context.Context, a *Appointment) error
	Confirmation(ctx context.Context, a *Appointment) error
	Cancellation(ctx context.Context, a *Appointment) error
	NoShow(ctx context.Context, a *Appointment) error
}

// JobScheduler is the part of the job engine the service needs.
type JobScheduler interface {
	Schedule(ctx context.Context, job jobs.Job) error
	Cancel(ctx context.Context, id string) error
}

type Service struct {
	repo     Repository
	jobs     JobScheduler
	notifier Notifier
	clock    clock.Clock
	policy   Policy
	logger   zerolog.Logger
}

func NewService(repo Repository, scheduler JobScheduler, notifier Notifier, clk clock.Clock, policy Policy, logger zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		repo:     repo,
		jobs:     scheduler,
		notifier: notifier,
		clock:    clk,
		policy:   policy,
		logger:   logger.With().Str("component", "appointment").Logger(),
	}
}

func (s *Service) now() time.Time {
	return clock.UTC(s.clock.Now())
}

// notify runs one notification and logs its failure.
func (s *Service) notify(ctx context.Context, kind string, a *Appointment, send func(context.Context, *Appointment) error) {
	if s.notifier == nil {
		return
	}
	if err := send(ctx, a); err != nil {
		s.logger.Warn().Err(err).
			Str("appointment_id", a.ID.String()).
			Str("notification", kind).
			Msg("notification failed")
	}
}
