package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduler/internal/jobs"
)

type reminderPayload struct {
	AppointmentID uuid.UUID `json:"appointmentId"`
}

// ReminderJobID is the job id used for an appointment's reminder. Re-scheduling under
// the same id supersedes the earlier job.
func ReminderJobID(appointmentID uuid.UUID) string {
	return "reminder_" + appointmentID.String()
}

func (s *Service) scheduleReminder(ctx context.Context, appt *Appointment, now time.Time) {
	if s.jobs == nil || appt.Start.Sub(now) <= s.policy.ReminderLeadTime {
		return
	}

	log := s.logger.With().Str("appointment_id", appt.ID.String()).Logger()

	payload, err := json.Marshal(reminderPayload{AppointmentID: appt.ID})
	if err != nil {
		log.Error().Err(err).Msg("encode reminder payload")
		return
	}

	meta := ReminderJob{
		JobID:       ReminderJobID(appt.ID),
		ScheduledAt: appt.Start.Add(-s.policy.ReminderLeadTime),
	}
	job := jobs.Job{
		ID:      meta.JobID,
		Kind:    JobKindReminder,
		FireAt:  meta.ScheduledAt,
		Payload: payload,
	}

	if err := s.jobs.Schedule(ctx, job); err != nil {
		log.Warn().Err(err).Msg("schedule reminder")
		return
	}
	if err := s.repo.SetReminderJob(ctx, appt.ID, meta); err != nil {
		log.Warn().Err(err).Msg("record reminder job")
		return
	}
	appt.ReminderJob = &meta
}

func (s *Service) dropReminder(ctx context.Context, appt *Appointment) {
	if s.jobs == nil || appt.ReminderJob == nil {
		return
	}
	if err := s.jobs.Cancel(ctx, appt.ReminderJob.JobID); err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("cancel reminder job")
	}
}

// FireReminder sends the pre-visit reminder if the appointment is still active.
// The reminder is marked sent even when delivery fails so the auto-cancel sweep
// still applies to it.
func (s *Service) FireReminder(ctx context.Context, id uuid.UUID) error {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			s.logger.Warn().Str("appointment_id", id.String()).Msg("reminder for unknown appointment")
			return nil
		}
		return internal("load appointment", err)
	}

	if !appt.Status.Active() {
		s.logger.Debug().
			Str("appointment_id", id.String()).
			Str("status", string(appt.Status)).
			Msg("appointment no longer active, skipping reminder")
		return nil
	}

	s.notify(ctx, "reminder", appt, s.notifierFunc(Notifier.Reminder))

	if err := s.repo.MarkReminderSent(ctx, id); err != nil {
		return internal("mark reminder sent", err)
	}
	return nil
}

// HandleReminderJob adapts FireReminder to the job engine.
func (s *Service) HandleReminderJob(ctx context.Context, job jobs.Job) error {
	var p reminderPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode reminder payload for %s: %w", job.ID, err)
	}
	return s.FireReminder(ctx, p.AppointmentID)
}

// JobRegistry is the part of the job engine used to wire handlers and sweeps.
type JobRegistry interface {
	Handle(kind string, h jobs.HandlerFunc)
	Every(name string, interval time.Duration, fn jobs.TaskFunc)
}

// RegisterJobs wires the reminder handler and both sweeps into r.
func (s *Service) RegisterJobs(r JobRegistry, sweepInterval time.Duration) {
	r.Handle(JobKindReminder, s.HandleReminderJob)
	r.Every("auto_cancel_unconfirmed", sweepInterval, func(ctx context.Context) error {
		_, err := s.SweepAutoCancel(ctx)
		return err
	})
	r.Every("mark_no_shows", sweepInterval, func(ctx context.Context) error {
		_, err := s.SweepNoShow(ctx)
		return err
	})
}
