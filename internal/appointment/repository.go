package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all storage interactions needed by the service.
//
// Implementations must back InsertAppointment with a uniqueness constraint over
// (doctor_id, start) restricted to active statuses and report its violation as ErrSlotTaken.
type Repository interface {
	InsertUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByPhone(ctx context.Context, phone string) (*User, error)

	InsertAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateAppointmentStatus applies u only while the row is still in u.From.
	// A miss is reported as ErrAppointmentNotFound.
	UpdateAppointmentStatus(ctx context.Context, u StatusUpdate) (*Appointment, error)
	SetReminderJob(ctx context.Context, id uuid.UUID, job ReminderJob) error
	MarkReminderSent(ctx context.Context, id uuid.UUID) error

	// Slot view and listings
	ListActiveForDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListForUser(ctx context.Context, role Role, userID uuid.UUID, f ListFilter) ([]Appointment, error)

	// Sweeps
	FindUnconfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]Appointment, error)
	FindActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	// Stats
	AggregateDoctorStats(ctx context.Context, doctorID uuid.UUID, groupBy GroupBy, limit int) ([]PeriodStats, error)
	CountByDoctor(ctx context.Context, doctorID uuid.UUID) (int, error)

	InsertNotificationLog(ctx context.Context, l *NotificationLog) error
}
