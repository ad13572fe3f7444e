package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduler/internal/appointment"
)

type CreateAppointmentRequest struct {
	DoctorID string    `json:"doctorId"`
	Start    time.Time `json:"start"`
	Reason   string    `json:"reason"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type ReminderJobResponse struct {
	JobID       string    `json:"jobId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID            `json:"id"`
	DoctorID           uuid.UUID            `json:"doctorId"`
	PatientID          uuid.UUID            `json:"patientId"`
	Start              time.Time            `json:"start"`
	End                time.Time            `json:"end"`
	Status             string               `json:"status"`
	Reason             string               `json:"reason"`
	CreatedBy          string               `json:"createdBy"`
	ReminderSent       bool                 `json:"reminderSent"`
	ReminderJob        *ReminderJobResponse `json:"reminderJob,omitempty"`
	CancelledAt        *time.Time           `json:"cancelledAt,omitempty"`
	CancelReason       *string              `json:"cancelReason,omitempty"`
	NotificationLogIDs []uuid.UUID          `json:"notificationLogIds"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                 a.ID,
		DoctorID:           a.DoctorID,
		PatientID:          a.PatientID,
		Start:              a.Start,
		End:                a.End,
		Status:             string(a.Status),
		Reason:             a.Reason,
		CreatedBy:          string(a.CreatedBy),
		ReminderSent:       a.ReminderSent,
		CancelledAt:        a.CancelledAt,
		CancelReason:       a.CancelReason,
		NotificationLogIDs: a.NotificationLogIDs,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
	if a.ReminderJob != nil {
		resp.ReminderJob = &ReminderJobResponse{JobID: a.ReminderJob.JobID, ScheduledAt: a.ReminderJob.ScheduledAt}
	}
	if resp.NotificationLogIDs == nil {
		resp.NotificationLogIDs = []uuid.UUID{}
	}
	return resp
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Count        int                   `json:"count"`
}

type SlotResponse struct {
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Available     bool       `json:"available"`
	AppointmentID *uuid.UUID `json:"appointmentId,omitempty"`
}

type SlotsResponse struct {
	DoctorID uuid.UUID      `json:"doctorId"`
	Date     string         `json:"date"`
	Slots    []SlotResponse `json:"slots"`
}

type PeriodStatsResponse struct {
	Period    string `json:"period"`
	Count     int    `json:"count"`
	Completed int    `json:"completed"`
	Cancelled int    `json:"cancelled"`
	NoShow    int    `json:"noShow"`
	Scheduled int    `json:"scheduled"`
	Confirmed int    `json:"confirmed"`
}

type StatsResponse struct {
	DoctorID          uuid.UUID             `json:"doctorId"`
	GroupBy           string                `json:"groupBy"`
	TotalAppointments int                   `json:"totalAppointments"`
	Stats             []PeriodStatsResponse `json:"stats"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
