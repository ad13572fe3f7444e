package appointment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hackgods/clinic-scheduler/internal/availability"
)

const sqliteAppointmentColumns = `
	a.id, a.doctor_id, a.patient_id, a.start_at, a.end_at, a.status, a.reason, a.created_by,
	a.reminder_sent, a.reminder_job_id, a.reminder_scheduled_at, a.cancelled_at, a.cancel_reason,
	a.created_at, a.updated_at,
	(SELECT group_concat(n.id, ',') FROM notification_logs n WHERE n.appointment_id = a.id)`

// SQLiteRepository stores appointments in an embedded database. Instants are kept as
// unix milliseconds so range filters and the partial unique index compare integers.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := toMillis(*t)
	return &ms
}

func scanSQLiteUser(row rowScanner) (*User, error) {
	var u User
	var profile sql.NullString
	var createdAt int64

	err := row.Scan(
		&u.ID,
		&u.Role,
		&u.Name,
		&u.Email,
		&u.Phone,
		&u.Specialization,
		&profile,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if profile.Valid && profile.String != "" {
		var p availability.Profile
		if err := json.Unmarshal([]byte(profile.String), &p); err != nil {
			return nil, fmt.Errorf("decode doctor profile for %s: %w", u.ID, err)
		}
		u.Profile = &p
	}
	u.CreatedAt = fromMillis(createdAt)

	return &u, nil
}

func scanSQLiteAppointment(row rowScanner) (*Appointment, error) {
	var a Appointment
	var start, end, createdAt, updatedAt int64
	var jobID sql.NullString
	var jobAt, cancelledAt sql.NullInt64
	var logIDs sql.NullString

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&start,
		&end,
		&a.Status,
		&a.Reason,
		&a.CreatedBy,
		&a.ReminderSent,
		&jobID,
		&jobAt,
		&cancelledAt,
		&a.CancelReason,
		&createdAt,
		&updatedAt,
		&logIDs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Start = fromMillis(start)
	a.End = fromMillis(end)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	if jobID.Valid && jobAt.Valid {
		a.ReminderJob = &ReminderJob{JobID: jobID.String, ScheduledAt: fromMillis(jobAt.Int64)}
	}
	if cancelledAt.Valid {
		t := fromMillis(cancelledAt.Int64)
		a.CancelledAt = &t
	}
	if logIDs.Valid && logIDs.String != "" {
		a.NotificationLogIDs, err = parseLogIDs(strings.Split(logIDs.String, ","))
		if err != nil {
			return nil, err
		}
	}

	return &a, nil
}

func collectSQLiteAppointments(rows *sql.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanSQLiteAppointment(rows)
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

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func (r *SQLiteRepository) InsertUser(ctx context.Context, u *User) error {
	var profile *string
	if u.Profile != nil {
		b, err := json.Marshal(u.Profile)
		if err != nil {
			return fmt.Errorf("encode doctor profile: %w", err)
		}
		s := string(b)
		profile = &s
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, role, name, email, phone, specialization, doctor_profile, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Role, u.Name, u.Email, u.Phone, u.Specialization, profile, toMillis(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, role, name, email, phone, specialization, doctor_profile, created_at
		FROM users
		WHERE id = ?
	`, id)
	return scanSQLiteUser(row)
}

func (r *SQLiteRepository) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, role, name, email, phone, specialization, doctor_profile, created_at
		FROM users
		WHERE phone = ?
	`, phone)
	return scanSQLiteUser(row)
}

func (r *SQLiteRepository) InsertAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO appointments
			(id, doctor_id, patient_id, start_at, end_at, status, reason, created_by,
			 reminder_sent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.DoctorID, a.PatientID, toMillis(a.Start), toMillis(a.End), a.Status, a.Reason, a.CreatedBy,
		a.ReminderSent, toMillis(a.CreatedAt), toMillis(a.CreatedAt))
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return r.GetAppointmentByID(ctx, a.ID)
}

func (r *SQLiteRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sqliteAppointmentColumns+`
		FROM appointments a
		WHERE a.id = ?
	`, id)
	return scanSQLiteAppointment(row)
}

func (r *SQLiteRepository) UpdateAppointmentStatus(ctx context.Context, u StatusUpdate) (*Appointment, error) {
	var cancelledAt *int64
	var cancelReason *string
	if u.To == StatusCancelled {
		cancelledAt = nullableMillis(&u.At)
		if u.CancelReason != "" {
			reason := u.CancelReason
			cancelReason = &reason
		}
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE appointments
		SET status = ?,
		    cancelled_at = COALESCE(cancelled_at, ?),
		    cancel_reason = COALESCE(cancel_reason, ?),
		    updated_at = ?
		WHERE id = ?
		  AND status = ?
	`, u.To, cancelledAt, cancelReason, toMillis(u.At), u.ID, u.From)
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	if n == 0 {
		return nil, ErrAppointmentNotFound
	}
	return r.GetAppointmentByID(ctx, u.ID)
}

func (r *SQLiteRepository) SetReminderJob(ctx context.Context, id uuid.UUID, job ReminderJob) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE appointments
		SET reminder_job_id = ?,
		    reminder_scheduled_at = ?
		WHERE id = ?
	`, job.JobID, toMillis(job.ScheduledAt), id)
	if err != nil {
		return fmt.Errorf("set reminder job: %w", err)
	}
	return requireRow(res)
}

func (r *SQLiteRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE appointments SET reminder_sent = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListActiveForDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sqliteAppointmentColumns+`
		FROM appointments a
		WHERE a.doctor_id = ?
		  AND a.start_at >= ?
		  AND a.start_at < ?
		  AND a.status IN ('scheduled', 'confirmed')
		ORDER BY a.start_at
	`, doctorID, toMillis(from), toMillis(to))
	if err != nil {
		return nil, err
	}
	return collectSQLiteAppointments(rows)
}

func (r *SQLiteRepository) ListForUser(ctx context.Context, role Role, userID uuid.UUID, f ListFilter) ([]Appointment, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + sqliteAppointmentColumns + ` FROM appointments a WHERE `)
	if role == RoleDoctor {
		b.WriteString(`a.doctor_id = ?`)
	} else {
		b.WriteString(`a.patient_id = ?`)
	}
	args := []any{userID}
	if !f.From.IsZero() {
		b.WriteString(` AND a.start_at >= ?`)
		args = append(args, toMillis(f.From))
	}
	if !f.To.IsZero() {
		b.WriteString(` AND a.start_at < ?`)
		args = append(args, toMillis(f.To))
	}
	b.WriteString(` ORDER BY a.start_at DESC LIMIT ?`)
	args = append(args, f.Limit)

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	return collectSQLiteAppointments(rows)
}

func (r *SQLiteRepository) FindUnconfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sqliteAppointmentColumns+`
		FROM appointments a
		WHERE a.status = 'scheduled'
		  AND a.reminder_sent = 1
		  AND a.start_at >= ?
		  AND a.start_at <= ?
		ORDER BY a.start_at
	`, toMillis(from), toMillis(to))
	if err != nil {
		return nil, err
	}
	return collectSQLiteAppointments(rows)
}

func (r *SQLiteRepository) FindActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sqliteAppointmentColumns+`
		FROM appointments a
		WHERE a.status IN ('scheduled', 'confirmed')
		  AND a.start_at <= ?
		ORDER BY a.start_at
	`, toMillis(cutoff))
	if err != nil {
		return nil, err
	}
	return collectSQLiteAppointments(rows)
}

func (r *SQLiteRepository) AggregateDoctorStats(ctx context.Context, doctorID uuid.UUID, groupBy GroupBy, limit int) ([]PeriodStats, error) {
	format := "%Y-%m"
	if groupBy == GroupByDay {
		format = "%Y-%m-%d"
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT strftime(?, start_at / 1000, 'unixepoch') AS period,
		       count(*),
		       SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'no_show' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'scheduled' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'confirmed' THEN 1 ELSE 0 END)
		FROM appointments
		WHERE doctor_id = ?
		GROUP BY period
		ORDER BY period DESC
		LIMIT ?
	`, format, doctorID, limit)
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

func (r *SQLiteRepository) CountByDoctor(ctx context.Context, doctorID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM appointments WHERE doctor_id = ?`, doctorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) InsertNotificationLog(ctx context.Context, l *NotificationLog) error {
	createdAt := l.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_logs
			(id, appointment_id, direction, to_number, from_number, body, status, provider_message_id, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.AppointmentID, l.Direction, l.To, l.From, l.Body, l.Status, l.ProviderMessageID, l.Error, toMillis(createdAt))
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}
