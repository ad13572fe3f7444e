package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduler/internal/appointment"
)

// AppointmentService is the slice of *appointment.Service the HTTP layer drives.
type AppointmentService interface {
	CreateAppointment(ctx context.Context, doctorID, patientID uuid.UUID, start time.Time, reason string) (*appointment.Appointment, error)
	TransitionStatus(ctx context.Context, caller appointment.Identity, id uuid.UUID, to appointment.Status) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, caller appointment.Identity, limit int, month string) ([]appointment.Appointment, error)
	DoctorSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]appointment.DaySlot, error)
	GetDoctorStats(ctx context.Context, doctorID uuid.UUID, groupBy appointment.GroupBy, limit int) (*appointment.DoctorStats, error)
}

var _ AppointmentService = (*appointment.Service)(nil)

// idParam parses a path id. Malformed ids cannot name an existing record, so they
// answer 404 rather than 400.
func idParam(w http.ResponseWriter, r *http.Request, notFound error) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, notFound)
		return uuid.Nil, false
	}
	return id, true
}

func caller(w http.ResponseWriter, r *http.Request) (appointment.Identity, bool) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
	}
	return id, ok
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := caller(w, r)
		if !ok {
			return
		}
		if who.Role != appointment.RolePatient {
			writeError(w, http.StatusForbidden, "forbidden", "Only patients can access this resource")
			return
		}

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeServiceError(w, appointment.ErrDoctorNotFound)
			return
		}
		if req.Start.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be an RFC 3339 timestamp")
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), doctorID, who.UserID, req.Start, req.Reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := caller(w, r)
		if !ok {
			return
		}

		limit, err := queryInt(r, "limit")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}

		appts, err := svc.ListAppointments(r.Context(), who, limit, r.URL.Query().Get("month"))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := AppointmentListResponse{
			Appointments: make([]AppointmentResponse, 0, len(appts)),
			Count:        len(appts),
		}
		for i := range appts {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := idParam(w, r, appointment.ErrAppointmentNotFound)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if !appt.HasParty(who) {
			writeError(w, http.StatusForbidden, "forbidden", "You don't have access to this appointment")
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateStatusHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := idParam(w, r, appointment.ErrAppointmentNotFound)
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		to := appointment.Status(req.Status)
		if !to.Valid() {
			writeServiceError(w, appointment.ErrInvalidTransition)
			return
		}

		appt, err := svc.TransitionStatus(r.Context(), who, id, to)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func doctorSlotsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := idParam(w, r, appointment.ErrDoctorNotFound)
		if !ok {
			return
		}
		date := r.URL.Query().Get("date")

		slots, err := svc.DoctorSlots(r.Context(), doctorID, date)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := SlotsResponse{
			DoctorID: doctorID,
			Date:     date,
			Slots:    make([]SlotResponse, 0, len(slots)),
		}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, SlotResponse{
				Start:         s.Start,
				End:           s.End,
				Available:     s.Available,
				AppointmentID: s.AppointmentID,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func doctorStatsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := caller(w, r)
		if !ok {
			return
		}
		doctorID, ok := idParam(w, r, appointment.ErrDoctorNotFound)
		if !ok {
			return
		}
		if who.Role != appointment.RoleDoctor || who.UserID != doctorID {
			writeError(w, http.StatusForbidden, "forbidden", "You can only view your own statistics")
			return
		}

		limit, err := queryInt(r, "limit")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		groupBy := appointment.GroupBy(r.URL.Query().Get("groupBy"))
		if groupBy == "" {
			groupBy = appointment.GroupByMonth
		}

		stats, err := svc.GetDoctorStats(r.Context(), doctorID, groupBy, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := StatsResponse{
			DoctorID:          stats.DoctorID,
			GroupBy:           string(groupBy),
			TotalAppointments: stats.TotalAppointments,
			Stats:             make([]PeriodStatsResponse, 0, len(stats.Periods)),
		}
		for _, p := range stats.Periods {
			resp.Stats = append(resp.Stats, PeriodStatsResponse(p))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
