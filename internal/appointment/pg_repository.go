package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduler/internal/availability"
)

const (
	pgUniqueViolation   = "23505"
	activeSlotIndexName = "unique_doctor_slot_active"
)

const pgAppointmentColumns = `
	a.id, a.doctor_id, a.patient_id, a.start_at, a.end_at, a.status, a.reason, a.created_by,
	a.reminder_sent, a.reminder_job_id, a.reminder_scheduled_at, a.cancelled_at, a.cancel_reason,
	a.created_at, a.updated_at,
	COALESCE((SELECT array_agg(n.id::text ORDER BY n.created_at)
	          FROM notification_logs n WHERE n.appointment_id = a.id), '{}')`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPgUser(row pgx.Row) (*User, error) {
	var u User
	var profile []byte

	err := row.Scan(
		&u.ID,
		&u.Role,
		&u.Name,
		&u.Email,
		&u.Phone,
		&u.Specialization,
		&profile,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if len(profile) > 0 {
		var p availability.Profile
		if err := json.Unmarshal(profile, &p); err != nil {
			return nil, fmt.Errorf("decode doctor profile for %s: %w", u.ID, err)
		}
		u.Profile = &p
	}
	u.CreatedAt = u.CreatedAt.UTC()

	return &u, nil
}

func scanPgAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var jobID *string
	var jobAt *time.Time
	var logIDs []string

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Start,
		&a.End,
		&a.Status,
		&a.Reason,
		&a.CreatedBy,
		&a.ReminderSent,
		&jobID,
		&jobAt,
		&a.CancelledAt,
		&a.CancelReason,
		&a.CreatedAt,
		&a.UpdatedAt,
		&logIDs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if jobID != nil && jobAt != nil {
		a.ReminderJob = &ReminderJob{JobID: *jobID, ScheduledAt: jobAt.UTC()}
	}
	a.NotificationLogIDs, err = parseLogIDs(logIDs)
	if err != nil {
		return nil, err
	}
	normalizeTimes(&a)

	return &a, nil
}

func collectPgAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanPgAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func isActiveSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == activeSlotIndexName
}

// Interface methods

func (r *PgRepository) InsertUser(ctx context.Context, u *User) error {
	var profile []byte
	if u.Profile != nil {
		b, err := json.Marshal(u.Profile)
		if err != nil {
			return fmt.Errorf("encode doctor profile: %w", err)
		}
		profile = b
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, role, name, email, phone, specialization, doctor_profile, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Role, u.Name, u.Email, u.Phone, u.Specialization, profile, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, role, name, email, phone, specialization, doctor_profile, created_at
		FROM users
		WHERE id = $1
	`, id)
	return scanPgUser(row)
}

func (r *PgRepository) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, role, name, email, phone, specialization, doctor_profile, created_at
		FROM users
		WHERE phone = $1
	`, phone)
	return scanPgUser(row)
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments AS a
			(id, doctor_id, patient_id, start_at, end_at, status, reason, created_by,
			 reminder_sent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING `+pgAppointmentColumns,
		a.ID, a.DoctorID, a.PatientID, a.Start, a.End, a.Status, a.Reason, a.CreatedBy,
		a.ReminderSent, a.CreatedAt,
	)

	created, err := scanPgAppointment(row)
	if err != nil {
		if isActiveSlotViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+pgAppointmentColumns+`
		FROM appointments a
		WHERE a.id = $1
	`, id)
	return scanPgAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, u StatusUpdate) (*Appointment, error) {
	var cancelledAt *time.Time
	var cancelReason *string
	if u.To == StatusCancelled {
		at := u.At
		cancelledAt = &at
		if u.CancelReason != "" {
			reason := u.CancelReason
			cancelReason = &reason
		}
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments AS a
		SET status = $2,
		    cancelled_at = COALESCE(a.cancelled_at, $4),
		    cancel_reason = COALESCE(a.cancel_reason, $5),
		    updated_at = $6
		WHERE a.id = $1
		  AND a.status = $3
		RETURNING `+pgAppointmentColumns,
		u.ID, u.To, u.From, cancelledAt, cancelReason, u.At,
	)

	return scanPgAppointment(row)
}

func (r *PgRepository) SetReminderJob(ctx context.Context, id uuid.UUID, job ReminderJob) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET reminder_job_id = $2,
		    reminder_scheduled_at = $3,
		    updated_at = now()
		WHERE id = $1
	`, id, job.JobID, job.ScheduledAt)
	if err != nil {
		return fmt.Errorf("set reminder job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent = true,
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) ListActiveForDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+pgAppointmentColumns+`
		FROM appointments a
		WHERE a.doctor_id = $1
		  AND a.start_at >= $2
		  AND a.start_at < $3
		  AND a.status IN ('scheduled', 'confirmed')
		ORDER BY a.start_at
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	return collectPgAppointments(rows)
}

func (r *PgRepository) ListForUser(ctx context.Context, role Role, userID uuid.UUID, f ListFilter) ([]Appointment, error) {
	column := "a.patient_id"
	if role == RoleDoctor {
		column = "a.doctor_id"
	}

	var from, to *time.Time
	if !f.From.IsZero() {
		from = &f.From
	}
	if !f.To.IsZero() {
		to = &f.To
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+pgAppointmentColumns+`
		FROM appointments a
		WHERE `+column+` = $1
		  AND ($2::timestamptz IS NULL OR a.start_at >= $2)
		  AND ($3::timestamptz IS NULL OR a.start_at < $3)
		ORDER BY a.start_at DESC
		LIMIT $4
	`, userID, from, to, f.Limit)
	if err != nil {
		return nil, err
	}
	return collectPgAppointments(rows)
}

func (r *PgRepository) FindUnconfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+pgAppointmentColumns+`
		FROM appointments a
		WHERE a.status = 'scheduled'
		  AND a.reminder_sent
		  AND a.start_at >= $1
		  AND a.start_at <= $2
		ORDER BY a.start_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectPgAppointments(rows)
}

func (r *PgRepository) FindActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+pgAppointmentColumns+`
		FROM appointments a
		WHERE a.status IN ('scheduled', 'confirmed')
		  AND a.start_at <= $1
		ORDER BY a.start_at
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return collectPgAppointments(rows)
}

func (r *PgRepository) AggregateDoctorStats(ctx context.Context, doctorID uuid.UUID, groupBy GroupBy, limit int) ([]PeriodStats, error) {
	format := "YYYY-MM"
	if groupBy == GroupByDay {
		format = "YYYY-MM-DD"
	}

	rows, err := r.pool.Query(ctx, `
		SELECT to_char(start_at AT TIME ZONE 'UTC', $2) AS period,
		       count(*),
		       count(*) FILTER (WHERE status = 'completed'),
		       count(*) FILTER (WHERE status = 'cancelled'),
		       count(*) FILTER (WHERE status = 'no_show'),
		       count(*) FILTER (WHERE status = 'scheduled'),
		       count(*) FILTER (WHERE status = 'confirmed')
		FROM appointments
		WHERE doctor_id = $1
		GROUP BY period
		ORDER BY period DESC
		LIMIT $3
	`, doctorID, format, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []PeriodStats
	for rows.Next() {
		var s PeriodStats
		if err := rows.Scan(&s.Period, &s.Count, &s.Completed, &s.Cancelled, &s.NoShow, &s.Scheduled, &s.Confirmed); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) CountByDoctor(ctx context.Context, doctorID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM appointments WHERE doctor_id = $1`, doctorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	return n, nil
}

func (r *PgRepository) InsertNotificationLog(ctx context.Context, l *NotificationLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_logs
			(id, appointment_id, direction, to_number, from_number, body, status, provider_message_id, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()))
	`, l.ID, l.AppointmentID, l.Direction, l.To, l.From, l.Body, l.Status, l.ProviderMessageID, l.Error, nullableTime(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func parseLogIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse notification log id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func normalizeTimes(a *Appointment) {
	a.Start = a.Start.UTC()
	a.End = a.End.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if a.CancelledAt != nil {
		t := a.CancelledAt.UTC()
		a.CancelledAt = &t
	}
}
