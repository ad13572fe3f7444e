package appointment

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduler/internal/availability"
	"github.com/hackgods/clinic-scheduler/internal/clock"
)

// CreateAppointment books start with the doctor for the patient.
//
// Two concurrent bookings of the same doctor and start cannot both succeed: the
// repository's active-slot uniqueness rejects the loser with ErrSlotTaken. The
// reminder is best effort and never undoes a booking.
func (s *Service) CreateAppointment(ctx context.Context, doctorID, patientID uuid.UUID, start time.Time, reason string) (*Appointment, error) {
	start = clock.UTC(start)

	if n := utf8.RuneCountInString(reason); n < 1 || n > MaxReasonLength {
		return nil, ErrInvalidReason
	}

	doctor, err := s.loadDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}
	profile := doctor.SchedulingProfile()

	now := s.now()
	if err := availability.ValidateSlot(start, profile, now); err != nil {
		return nil, badRequest(err)
	}

	appt := &Appointment{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		PatientID: patientID,
		Start:     start,
		End:       start.Add(profile.SlotDuration()),
		Status:    StatusScheduled,
		Reason:    reason,
		CreatedBy: CreatedByPatient,
		CreatedAt: now,
	}

	created, err := s.repo.InsertAppointment(ctx, appt)
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, err
		}
		return nil, internal("create appointment", err)
	}

	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", doctorID.String()).
		Time("start", start).
		Msg("appointment booked")

	s.scheduleReminder(ctx, created, now)

	return created, nil
}

func (s *Service) loadDoctor(ctx context.Context, id uuid.UUID) (*User, error) {
	doctor, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrDoctorNotFound
		}
		return nil, internal("load doctor", err)
	}
	if doctor.Role != RoleDoctor {
		return nil, ErrDoctorNotFound
	}
	return doctor, nil
}

func (s *Service) requirePatient(ctx context.Context, id uuid.UUID) error {
	patient, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrPatientNotFound
		}
		return internal("load patient", err)
	}
	if patient.Role != RolePatient {
		return ErrPatientNotFound
	}
	return nil
}
