package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduler/internal/appointment"
	"github.com/hackgods/clinic-scheduler/internal/clock"
	"github.com/hackgods/clinic-scheduler/internal/db"
)

var start = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

var lines = Lines{Patient: "+14150000001", Doctor: "+14150000002"}

type recordingSink struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (s *recordingSink) Send(ctx context.Context, msg Message) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	if s.err != nil {
		return Result{Status: StatusFailed}, s.err
	}
	return Result{Success: true, Status: StatusQueued, ProviderMessageID: msg.ID.String()}, nil
}

type notifierFixture struct {
	repo    *appointment.SQLiteRepository
	sink    *recordingSink
	n       *Notifier
	patient *appointment.User
	doctor  *appointment.User
	appt    *appointment.Appointment
}

func newNotifierFixture(t *testing.T, patientPhone string) *notifierFixture {
	t.Helper()
	ctx := context.Background()

	sqlDB, err := db.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	repo := appointment.NewSQLiteRepository(sqlDB)

	now := start.Add(-5 * time.Hour)
	patient := &appointment.User{ID: uuid.New(), Role: appointment.RolePatient, Name: "Ada Patient", Phone: patientPhone, CreatedAt: now}
	doctor := &appointment.User{ID: uuid.New(), Role: appointment.RoleDoctor, Name: "Dr. Grace", Phone: "+14155550200", CreatedAt: now}
	require.NoError(t, repo.InsertUser(ctx, patient))
	require.NoError(t, repo.InsertUser(ctx, doctor))

	appt, err := repo.InsertAppointment(ctx, &appointment.Appointment{
		ID: uuid.New(), DoctorID: doctor.ID, PatientID: patient.ID,
		Start: start, End: start.Add(30 * time.Minute),
		Status: appointment.StatusScheduled, Reason: "checkup",
		CreatedBy: appointment.CreatedByPatient, CreatedAt: now,
	})
	require.NoError(t, err)

	sink := &recordingSink{}
	filtered := NewTestNumberFilter(sink, DefaultTestPrefix, zerolog.Nop())
	n := NewNotifier(filtered, repo, lines, clock.NewFixed(now), zerolog.Nop())

	return &notifierFixture{repo: repo, sink: sink, n: n, patient: patient, doctor: doctor, appt: appt}
}

func (f *notifierFixture) logIDs(t *testing.T) []uuid.UUID {
	t.Helper()
	a, err := f.repo.GetAppointmentByID(context.Background(), f.appt.ID)
	require.NoError(t, err)
	return a.NotificationLogIDs
}

func TestNotifier_ReminderGoesToPatientFromPatientLine(t *testing.T) {
	f := newNotifierFixture(t, "+14155550100")

	require.NoError(t, f.n.Reminder(context.Background(), f.appt))

	require.Len(t, f.sink.msgs, 1)
	msg := f.sink.msgs[0]
	assert.Equal(t, f.patient.Phone, msg.To)
	assert.Equal(t, lines.Patient, msg.From)
	assert.True(t, strings.HasPrefix(msg.Body, "Health Clinic: 02 Mar 2026 at 02:30 PM\nDr. Grace\n"))
	assert.Contains(t, msg.Body, "CONFIRM "+f.appt.ID.String())

	assert.Equal(t, []uuid.UUID{msg.ID}, f.logIDs(t))
}

func TestNotifier_ConfirmationAndCancellationGoToDoctor(t *testing.T) {
	f := newNotifierFixture(t, "+14155550100")
	ctx := context.Background()

	require.NoError(t, f.n.Confirmation(ctx, f.appt))
	require.NoError(t, f.n.Cancellation(ctx, f.appt))

	require.Len(t, f.sink.msgs, 2)
	for _, msg := range f.sink.msgs {
		assert.Equal(t, f.doctor.Phone, msg.To)
		assert.Equal(t, lines.Doctor, msg.From)
	}
	assert.Equal(t, "Patient Ada Patient has confirmed their appointment on March 02, 2026 at 02:30 PM UTC.", f.sink.msgs[0].Body)
	assert.Equal(t, "Patient Ada Patient has cancelled their appointment on March 02, 2026 at 02:30 PM UTC.", f.sink.msgs[1].Body)
	assert.Len(t, f.logIDs(t), 2)
}

func TestNotifier_NoShowTellsBothParties(t *testing.T) {
	f := newNotifierFixture(t, "+14155550100")

	require.NoError(t, f.n.NoShow(context.Background(), f.appt))

	require.Len(t, f.sink.msgs, 2)
	assert.Equal(t, f.patient.Phone, f.sink.msgs[0].To)
	assert.Contains(t, f.sink.msgs[0].Body, "Your appointment with Dr. Grace")
	assert.Equal(t, f.doctor.Phone, f.sink.msgs[1].To)
	assert.Contains(t, f.sink.msgs[1].Body, "Patient Ada Patient did not show up")
}

func TestNotifier_TestNumbersAreSkippedButLogged(t *testing.T) {
	f := newNotifierFixture(t, "+15550001111")

	require.NoError(t, f.n.Reminder(context.Background(), f.appt))

	assert.Empty(t, f.sink.msgs)
	assert.Len(t, f.logIDs(t), 1)
}

func TestNotifier_FailureIsReturnedAndLogged(t *testing.T) {
	f := newNotifierFixture(t, "+14155550100")
	f.sink.err = errors.New("gateway down")

	err := f.n.Reminder(context.Background(), f.appt)
	assert.ErrorContains(t, err, "gateway down")
	assert.Len(t, f.logIDs(t), 1)
}

func TestNotifier_UnknownParty(t *testing.T) {
	f := newNotifierFixture(t, "+14155550100")
	orphan := *f.appt
	orphan.PatientID = uuid.New()

	err := f.n.Reminder(context.Background(), &orphan)
	assert.ErrorIs(t, err, appointment.ErrUserNotFound)
	assert.Empty(t, f.sink.msgs)
}

func TestNotifier_LogInbound(t *testing.T) {
	f := newNotifierFixture(t, "+14155550100")
	id := f.appt.ID

	require.NoError(t, f.n.LogInbound(context.Background(), &id, f.patient.Phone, lines.Patient, "CONFIRM", "SM123"))
	assert.Len(t, f.logIDs(t), 1)
}
