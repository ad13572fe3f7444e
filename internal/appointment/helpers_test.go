package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduler/internal/availability"
	"github.com/hackgods/clinic-scheduler/internal/clock"
	"github.com/hackgods/clinic-scheduler/internal/db"
	"github.com/hackgods/clinic-scheduler/internal/jobs"
)

// 2026-03-02 is a Monday. Tests start at 07:00 UTC.
var (
	monday  = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	testNow = monday.Add(7 * time.Hour)
)

func at(hour, minute int) time.Time {
	return monday.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func newFixtureClock() *clock.Fixed {
	return clock.NewFixed(testNow)
}

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	sqlDB, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewSQLiteRepository(sqlDB)
}

func insertDoctor(t *testing.T, repo Repository, profile *availability.Profile) *User {
	t.Helper()
	spec := "General Practice"
	u := &User{
		ID:             uuid.New(),
		Role:           RoleDoctor,
		Name:           "Dr. " + gofakeit.LastName(),
		Phone:          "+1555" + gofakeit.Numerify("#######"),
		Specialization: &spec,
		Profile:        profile,
		CreatedAt:      testNow,
	}
	require.NoError(t, repo.InsertUser(context.Background(), u))
	return u
}

func insertPatient(t *testing.T, repo Repository) *User {
	t.Helper()
	email := gofakeit.Email()
	u := &User{
		ID:        uuid.New(),
		Role:      RolePatient,
		Name:      gofakeit.Name(),
		Email:     &email,
		Phone:     "+1555" + gofakeit.Numerify("#######"),
		CreatedAt: testNow,
	}
	require.NoError(t, repo.InsertUser(context.Background(), u))
	return u
}

// mondayHours is Monday 08:00-17:00 in 30 minute slots.
func mondayHours() *availability.Profile {
	return &availability.Profile{
		SlotDurationMin: 30,
		WeeklySchedule:  []availability.WeeklyInterval{{Weekday: 0, Start: "08:00", End: "17:00"}},
	}
}

// insertRaw stores an appointment without going through booking validation.
func insertRaw(t *testing.T, repo Repository, doctor, patient *User, start time.Time, status Status) *Appointment {
	t.Helper()
	a, err := repo.InsertAppointment(context.Background(), &Appointment{
		ID:        uuid.New(),
		DoctorID:  doctor.ID,
		PatientID: patient.ID,
		Start:     start,
		End:       start.Add(30 * time.Minute),
		Status:    status,
		Reason:    "checkup",
		CreatedBy: CreatedByPatient,
		CreatedAt: testNow,
	})
	require.NoError(t, err)
	return a
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled map[string]jobs.Job
	cancelled []string
	err       error
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: make(map[string]jobs.Job)}
}

func (f *fakeScheduler) Schedule(ctx context.Context, job jobs.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.scheduled[job.ID] = job
	return nil
}

func (f *fakeScheduler) Cancel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, id)
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeScheduler) job(id string) (jobs.Job, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.scheduled[id]
	return j, ok
}

type sent struct {
	kind          string
	appointmentID uuid.UUID
	status        Status
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeNotifier) record(kind string, a *Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{kind: kind, appointmentID: a.ID, status: a.Status})
	return f.err
}

func (f *fakeNotifier) Reminder(ctx context.Context, a *Appointment) error {
	return f.record("reminder", a)
}

func (f *fakeNotifier) Confirmation(ctx context.Context, a *Appointment) error {
	return f.record("confirmation", a)
}

func (f *fakeNotifier) Cancellation(ctx context.Context, a *Appointment) error {
	return f.record("cancellation", a)
}

func (f *fakeNotifier) NoShow(ctx context.Context, a *Appointment) error {
	return f.record("no_show", a)
}

func (f *fakeNotifier) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.kind)
	}
	return out
}

type fixture struct {
	svc      *Service
	repo     *SQLiteRepository
	clock    *clock.Fixed
	jobs     *fakeScheduler
	notifier *fakeNotifier
	doctor   *User
	patient  *User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newTestRepo(t)
	f := &fixture{
		repo:     repo,
		clock:    newFixtureClock(),
		jobs:     newFakeScheduler(),
		notifier: &fakeNotifier{},
	}
	f.svc = NewService(repo, f.jobs, f.notifier, f.clock, DefaultPolicy(), zerolog.Nop())
	f.doctor = insertDoctor(t, repo, mondayHours())
	f.patient = insertPatient(t, repo)
	return f
}

func (f *fixture) asPatient() Identity {
	return Identity{UserID: f.patient.ID, Role: RolePatient}
}

func (f *fixture) asDoctor() Identity {
	return Identity{UserID: f.doctor.ID, Role: RoleDoctor}
}

func (f *fixture) book(t *testing.T, start time.Time) *Appointment {
	t.Helper()
	a, err := f.svc.CreateAppointment(context.Background(), f.doctor.ID, f.patient.ID, start, "checkup")
	require.NoError(t, err)
	return a
}

var errSendFailed = errors.New("provider unavailable")
