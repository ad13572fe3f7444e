package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// TransitionStatus moves an appointment to `to` on behalf of caller.
//
// Checks run in order: ownership, caller role for the target, then the current state.
// The write is a compare-and-set on the status that was read, so a concurrent change
// between read and write surfaces as ErrConcurrentUpdate. Repeating a permitted
// transition into the current status changes nothing and sends nothing.
func (s *Service) TransitionStatus(ctx context.Context, caller Identity, id uuid.UUID, to Status) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, internal("load appointment", err)
	}

	if !appt.HasParty(caller) {
		return nil, ErrNotOwner
	}

	if err := checkTransition(caller.Role, appt.Status, to); err != nil {
		return nil, err
	}
	if appt.Status == to {
		return appt, nil
	}

	update := StatusUpdate{
		ID:   appt.ID,
		From: appt.Status,
		To:   to,
		At:   s.now(),
	}
	if to == StatusCancelled {
		update.CancelReason = PatientCancelReason
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, update)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrConcurrentUpdate
		}
		return nil, internal("update appointment status", err)
	}

	s.logger.Info().
		Str("appointment_id", updated.ID.String()).
		Str("from", string(appt.Status)).
		Str("to", string(to)).
		Str("by", string(caller.Role)).
		Msg("appointment status changed")

	switch to {
	case StatusConfirmed:
		s.notify(ctx, "confirmation", updated, s.notifierFunc(Notifier.Confirmation))
	case StatusCancelled:
		s.dropReminder(ctx, updated)
		s.notify(ctx, "cancellation", updated, s.notifierFunc(Notifier.Cancellation))
	}

	return updated, nil
}

// HasParty reports whether the caller is the appointment's patient or doctor, in the
// capacity of their role.
func (a *Appointment) HasParty(caller Identity) bool {
	switch caller.Role {
	case RolePatient:
		return a.PatientID == caller.UserID
	case RoleDoctor:
		return a.DoctorID == caller.UserID
	}
	return false
}

func checkTransition(role Role, current, to Status) error {
	switch to {
	case StatusConfirmed:
		if role != RolePatient {
			return ErrConfirmNotAllowed
		}
		if current != StatusScheduled {
			return ErrCannotConfirm
		}
	case StatusCancelled:
		if role != RolePatient {
			return ErrCancelNotAllowed
		}
		if current == StatusCompleted || current == StatusNoShow {
			return ErrCannotCancel
		}
	case StatusCompleted:
		if role != RoleDoctor {
			return ErrCompleteForbidden
		}
	default:
		// scheduled is never a target and no_show is set by the sweep only
		return ErrInvalidTransition
	}
	return nil
}

func (s *Service) notifierFunc(m func(Notifier, context.Context, *Appointment) error) func(context.Context, *Appointment) error {
	return func(ctx context.Context, a *Appointment) error {
		return m(s.notifier, ctx, a)
	}
}
