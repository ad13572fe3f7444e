package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteRepository_UserRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	doctor := insertDoctor(t, repo, mondayHours())

	got, err := repo.GetUserByID(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleDoctor, got.Role)
	require.NotNil(t, got.Profile)
	assert.Equal(t, *mondayHours(), *got.Profile)
	require.NotNil(t, got.Specialization)
	assert.Nil(t, got.Email)

	byPhone, err := repo.GetUserByPhone(ctx, doctor.Phone)
	require.NoError(t, err)
	assert.Equal(t, doctor.ID, byPhone.ID)

	_, err = repo.GetUserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSQLiteRepository_ActiveSlotUniqueness(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	doctor := insertDoctor(t, repo, mondayHours())
	patient := insertPatient(t, repo)

	first := insertRaw(t, repo, doctor, patient, at(12, 0), StatusConfirmed)

	_, err := repo.InsertAppointment(ctx, &Appointment{
		ID: uuid.New(), DoctorID: doctor.ID, PatientID: patient.ID,
		Start: at(12, 0), End: at(12, 30), Status: StatusScheduled,
		Reason: "again", CreatedBy: CreatedByPatient, CreatedAt: testNow,
	})
	assert.ErrorIs(t, err, ErrSlotTaken)

	// inactive rows never collide
	insertRaw(t, repo, doctor, patient, at(12, 0), StatusCancelled)
	insertRaw(t, repo, doctor, patient, at(12, 0), StatusNoShow)

	_, err = repo.UpdateAppointmentStatus(ctx, StatusUpdate{ID: first.ID, From: StatusConfirmed, To: StatusCompleted, At: testNow})
	require.NoError(t, err)
	insertRaw(t, repo, doctor, patient, at(12, 0), StatusScheduled)
}

func TestSQLiteRepository_CompareAndSet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	doctor := insertDoctor(t, repo, mondayHours())
	patient := insertPatient(t, repo)
	a := insertRaw(t, repo, doctor, patient, at(12, 0), StatusScheduled)

	_, err := repo.UpdateAppointmentStatus(ctx, StatusUpdate{ID: a.ID, From: StatusConfirmed, To: StatusCompleted, At: testNow})
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	updated, err := repo.UpdateAppointmentStatus(ctx, StatusUpdate{ID: a.ID, From: StatusScheduled, To: StatusConfirmed, At: at(8, 0)})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)
	assert.True(t, updated.UpdatedAt.Equal(at(8, 0)))
	assert.Nil(t, updated.CancelledAt)
}

func TestSQLiteRepository_NotificationLogIDs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	doctor := insertDoctor(t, repo, mondayHours())
	patient := insertPatient(t, repo)
	a := insertRaw(t, repo, doctor, patient, at(12, 0), StatusScheduled)

	var ids []uuid.UUID
	for i := 0; i < 2; i++ {
		apptID := a.ID
		l := &NotificationLog{
			ID:            uuid.New(),
			AppointmentID: &apptID,
			Direction:     DirectionOutbound,
			To:            patient.Phone,
			From:          "+15550000001",
			Body:          "hello",
			Status:        "queued",
			CreatedAt:     testNow,
		}
		require.NoError(t, repo.InsertNotificationLog(ctx, l))
		ids = append(ids, l.ID)
	}

	// an inbound log with no appointment
	require.NoError(t, repo.InsertNotificationLog(ctx, &NotificationLog{
		ID: uuid.New(), Direction: DirectionInbound, To: "+15550000001", From: patient.Phone,
		Body: "HELLO", Status: "received", CreatedAt: testNow,
	}))

	got, err := repo.GetAppointmentByID(ctx, a.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, got.NotificationLogIDs)
}

func TestSQLiteRepository_ReminderBookkeeping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	doctor := insertDoctor(t, repo, mondayHours())
	patient := insertPatient(t, repo)
	a := insertRaw(t, repo, doctor, patient, at(12, 0), StatusScheduled)

	require.NoError(t, repo.SetReminderJob(ctx, a.ID, ReminderJob{JobID: ReminderJobID(a.ID), ScheduledAt: at(9, 0)}))
	require.NoError(t, repo.MarkReminderSent(ctx, a.ID))

	got, err := repo.GetAppointmentByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.ReminderSent)
	require.NotNil(t, got.ReminderJob)
	assert.True(t, got.ReminderJob.ScheduledAt.Equal(at(9, 0)))

	assert.ErrorIs(t, repo.MarkReminderSent(ctx, uuid.New()), ErrAppointmentNotFound)
}

func TestSQLiteRepository_RepeatCancelKeepsFirstValues(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	doctor := insertDoctor(t, repo, mondayHours())
	patient := insertPatient(t, repo)
	a := insertRaw(t, repo, doctor, patient, at(12, 0), StatusScheduled)

	_, err := repo.UpdateAppointmentStatus(ctx, StatusUpdate{ID: a.ID, From: StatusScheduled, To: StatusCancelled, At: testNow, CancelReason: AutoCancelReason})
	require.NoError(t, err)

	later := testNow.Add(time.Hour)
	updated, err := repo.UpdateAppointmentStatus(ctx, StatusUpdate{ID: a.ID, From: StatusCancelled, To: StatusCancelled, At: later, CancelReason: PatientCancelReason})
	require.NoError(t, err)

	assert.Equal(t, AutoCancelReason, *updated.CancelReason)
	assert.True(t, updated.CancelledAt.Equal(testNow))
	assert.True(t, updated.UpdatedAt.Equal(later))
}
