package appointment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduler/internal/availability"
)

func TestCreateAppointment_Books(t *testing.T) {
	f := newFixture(t)

	a := f.book(t, at(12, 0))

	assert.Equal(t, StatusScheduled, a.Status)
	assert.Equal(t, CreatedByPatient, a.CreatedBy)
	assert.True(t, a.Start.Equal(at(12, 0)))
	assert.True(t, a.End.Equal(at(12, 30)))
	assert.False(t, a.ReminderSent)
	assert.Equal(t, time.UTC, a.Start.Location())
}

func TestCreateAppointment_NormalizesToUTC(t *testing.T) {
	f := newFixture(t)

	berlin := time.FixedZone("CET", 3600)
	a := f.book(t, at(12, 0).In(berlin))

	assert.Equal(t, time.UTC, a.Start.Location())
	assert.True(t, a.Start.Equal(at(12, 0)))
}

func TestCreateAppointment_SchedulesReminderWhenFarEnough(t *testing.T) {
	f := newFixture(t)

	// five hours out
	a := f.book(t, at(12, 0))

	require.NotNil(t, a.ReminderJob)
	assert.Equal(t, "reminder_"+a.ID.String(), a.ReminderJob.JobID)
	assert.True(t, a.ReminderJob.ScheduledAt.Equal(at(9, 0)))

	job, ok := f.jobs.job(ReminderJobID(a.ID))
	require.True(t, ok)
	assert.Equal(t, JobKindReminder, job.Kind)
	assert.True(t, job.FireAt.Equal(at(9, 0)))

	stored, err := f.repo.GetAppointmentByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReminderJob)
	assert.Equal(t, a.ReminderJob.JobID, stored.ReminderJob.JobID)
}

func TestCreateAppointment_NoReminderWhenTooClose(t *testing.T) {
	f := newFixture(t)

	// two hours out
	a := f.book(t, at(9, 0))

	assert.Nil(t, a.ReminderJob)
	_, ok := f.jobs.job(ReminderJobID(a.ID))
	assert.False(t, ok)
}

func TestCreateAppointment_ReminderFailureKeepsBooking(t *testing.T) {
	f := newFixture(t)
	f.jobs.err = errors.New("redis down")

	a := f.book(t, at(12, 0))

	assert.Nil(t, a.ReminderJob)
	_, err := f.repo.GetAppointmentByID(context.Background(), a.ID)
	assert.NoError(t, err)
}

func TestCreateAppointment_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		start   time.Time
		reason  availability.ValidationReason
		message string
	}{
		{"past", at(6, 0), availability.ReasonInPast, "past"},
		{"misaligned", at(12, 15), availability.ReasonMisaligned, "align"},
		{"before hours", at(7, 30), availability.ReasonOutsideHours, "outside"},
		{"after hours", at(17, 0), availability.ReasonOutsideHours, "outside"},
		{"other weekday", at(12, 0).AddDate(0, 0, 1), availability.ReasonOutsideHours, "outside"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.CreateAppointment(context.Background(), f.doctor.ID, f.patient.ID, tt.start, "checkup")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBadRequest)

			var vErr *availability.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.reason, vErr.Reason)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestCreateAppointment_ReasonLength(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateAppointment(ctx, f.doctor.ID, f.patient.ID, at(12, 0), "")
	assert.ErrorIs(t, err, ErrInvalidReason)
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = f.svc.CreateAppointment(ctx, f.doctor.ID, f.patient.ID, at(12, 0), strings.Repeat("a", 501))
	assert.ErrorIs(t, err, ErrInvalidReason)

	_, err = f.svc.CreateAppointment(ctx, f.doctor.ID, f.patient.ID, at(12, 0), strings.Repeat("é", 500))
	assert.NoError(t, err)
}

func TestCreateAppointment_UnknownParties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateAppointment(ctx, uuid.New(), f.patient.ID, at(12, 0), "checkup")
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	// a patient id is not a doctor
	_, err = f.svc.CreateAppointment(ctx, f.patient.ID, f.patient.ID, at(12, 0), "checkup")
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	_, err = f.svc.CreateAppointment(ctx, f.doctor.ID, uuid.New(), at(12, 0), "checkup")
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestCreateAppointment_DoctorWithoutScheduleHasNoSlots(t *testing.T) {
	f := newFixture(t)
	idle := insertDoctor(t, f.repo, nil)

	_, err := f.svc.CreateAppointment(context.Background(), idle.ID, f.patient.ID, at(12, 0), "checkup")

	var vErr *availability.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, availability.ReasonOutsideHours, vErr.Reason)
}

func TestCreateAppointment_SecondBookingConflicts(t *testing.T) {
	f := newFixture(t)
	other := insertPatient(t, f.repo)

	f.book(t, at(12, 0))

	_, err := f.svc.CreateAppointment(context.Background(), f.doctor.ID, other.ID, at(12, 0), "checkup")
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateAppointment_ConcurrentBookingsYieldOneWinner(t *testing.T) {
	f := newFixture(t)

	const n = 20
	patients := make([]*User, n)
	for i := range patients {
		patients[i] = insertPatient(t, f.repo)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	start := make(chan struct{})
	for _, p := range patients {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			<-start
			_, err := f.svc.CreateAppointment(context.Background(), f.doctor.ID, patientID, at(12, 0), "checkup")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrSlotTaken):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(p.ID)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, conflicts)

	active, err := f.repo.ListActiveForDoctor(context.Background(), f.doctor.ID, monday, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestCreateAppointment_FreedSlotCanBeRebooked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := insertPatient(t, f.repo)

	first := f.book(t, at(12, 0))
	_, err := f.svc.TransitionStatus(ctx, f.asPatient(), first.ID, StatusCancelled)
	require.NoError(t, err)

	second, err := f.svc.CreateAppointment(ctx, f.doctor.ID, other.ID, at(12, 0), "follow-up")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// the cancelled row is kept
	old, err := f.repo.GetAppointmentByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, old.Status)
}
