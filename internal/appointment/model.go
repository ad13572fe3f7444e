package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduler/internal/availability"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Active reports whether the status holds its slot.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

type CreatedBy string

const (
	CreatedByPatient CreatedBy = "patient"
	CreatedBySystem  CreatedBy = "system"
)

// Identity is the authenticated caller as supplied by the auth layer.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

type User struct {
	ID             uuid.UUID
	Role           Role
	Name           string
	Email          *string
	Phone          string
	Specialization *string
	Profile        *availability.Profile
	CreatedAt      time.Time
}

// SchedulingProfile returns the doctor's profile, or an empty one.
func (u *User) SchedulingProfile() availability.Profile {
	if u.Profile == nil {
		return availability.Profile{}
	}
	return *u.Profile
}

type ReminderJob struct {
	JobID       string
	ScheduledAt time.Time
}

type Appointment struct {
	ID                 uuid.UUID
	DoctorID           uuid.UUID
	PatientID          uuid.UUID
	Start              time.Time
	End                time.Time
	Status             Status
	Reason             string
	CreatedBy          CreatedBy
	ReminderSent       bool
	ReminderJob        *ReminderJob
	CancelledAt        *time.Time
	CancelReason       *string
	NotificationLogIDs []uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// StatusUpdate is a compare-and-set status change. CancelReason is recorded only
// when moving to cancelled.
type StatusUpdate struct {
	ID           uuid.UUID
	From         Status
	To           Status
	At           time.Time
	CancelReason string
}

type NotificationDirection string

const (
	DirectionOutbound NotificationDirection = "outbound"
	DirectionInbound  NotificationDirection = "inbound"
)

// NotificationLog records one message that went through the notification sink or arrived from it.
type NotificationLog struct {
	ID                uuid.UUID
	AppointmentID     *uuid.UUID
	Direction         NotificationDirection
	To                string
	From              string
	Body              string
	Status            string
	ProviderMessageID *string
	Error             *string
	CreatedAt         time.Time
}

// DaySlot is a generated slot annotated with its booking state.
type DaySlot struct {
	availability.Slot
	Available     bool
	AppointmentID *uuid.UUID
}

type GroupBy string

const (
	GroupByMonth GroupBy = "month"
	GroupByDay   GroupBy = "day"
)

type PeriodStats struct {
	Period    string
	Count     int
	Completed int
	Cancelled int
	NoShow    int
	Scheduled int
	Confirmed int
}

type DoctorStats struct {
	DoctorID          uuid.UUID
	TotalAppointments int
	Periods           []PeriodStats
}

// ListFilter narrows ListForUser. A zero From/To is unbounded.
type ListFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}
