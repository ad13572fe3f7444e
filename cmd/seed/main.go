package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduler/internal/app"
	"github.com/hackgods/clinic-scheduler/internal/appointment"
	"github.com/hackgods/clinic-scheduler/internal/availability"
	"github.com/hackgods/clinic-scheduler/internal/config"
	"github.com/hackgods/clinic-scheduler/internal/logging"
)

// Manifest lists the seeded users; cmd/simulate reads it.
type Manifest struct {
	Doctors  []uuid.UUID `json:"doctors"`
	Patients []uuid.UUID `json:"patients"`
}

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	var (
		doctors  int
		patients int
		out      string
	)

	rootCmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the store with fake doctors and patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), doctors, patients, out)
		},
	}
	rootCmd.Flags().IntVar(&doctors, "doctors", 20, "number of doctors")
	rootCmd.Flags().IntVar(&patients, "patients", 500, "number of patients")
	rootCmd.Flags().StringVar(&out, "out", "seed.json", "where to write the manifest of seeded ids")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, doctors, patients int, out string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)
	logger.Info().Int("doctors", doctors).Int("patients", patients).Msg("seed starting")

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var m Manifest
	if m.Doctors, err = seedDoctors(ctx, store.Repo, doctors, logger); err != nil {
		return fmt.Errorf("seed doctors: %w", err)
	}
	if m.Patients, err = seedPatients(ctx, store.Repo, patients, logger); err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	logger.Info().Str("manifest", out).Msg("seed complete")
	return nil
}

// weekdayHours is Monday to Friday, 09:00-17:00.
func weekdayHours() *availability.Profile {
	p := &availability.Profile{SlotDurationMin: availability.DefaultSlotDurationMin}
	for day := 0; day < 5; day++ {
		p.WeeklySchedule = append(p.WeeklySchedule, availability.WeeklyInterval{Weekday: day, Start: "09:00", End: "17:00"})
	}
	return p
}

// testPhone returns the n-th number under the test prefix, so seeded users never
// receive real texts and never collide.
func testPhone(n int) string {
	return fmt.Sprintf("+1555%07d", n)
}

// insertOnce stores u unless a user already holds its phone number, in which case the
// existing id is returned. Re-running the seeder therefore reuses earlier users.
func insertOnce(ctx context.Context, repo appointment.Repository, u *appointment.User) (uuid.UUID, error) {
	existing, err := repo.GetUserByPhone(ctx, u.Phone)
	switch {
	case err == nil:
		if existing.Role != u.Role {
			return uuid.Nil, fmt.Errorf("phone %s already belongs to a %s", u.Phone, existing.Role)
		}
		return existing.ID, nil
	case !errors.Is(err, appointment.ErrUserNotFound):
		return uuid.Nil, err
	}

	if err := repo.InsertUser(ctx, u); err != nil {
		return uuid.Nil, err
	}
	return u.ID, nil
}

func seedDoctors(ctx context.Context, repo appointment.Repository, count int, logger zerolog.Logger) ([]uuid.UUID, error) {
	hours := weekdayHours()
	if err := hours.Validate(); err != nil {
		return nil, fmt.Errorf("doctor hours: %w", err)
	}

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		u := &appointment.User{
			ID:             uuid.New(),
			Role:           appointment.RoleDoctor,
			Name:           "Dr. " + gofakeit.Name(),
			Phone:          testPhone(i),
			Specialization: &spec,
			Profile:        hours,
			CreatedAt:      time.Now().UTC(),
		}
		id, err := insertOnce(ctx, repo, u)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	logger.Info().Int("count", count).Msg("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, repo appointment.Repository, count int, logger zerolog.Logger) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		email := gofakeit.Email()
		u := &appointment.User{
			ID:        uuid.New(),
			Role:      appointment.RolePatient,
			Name:      gofakeit.Name(),
			Email:     &email,
			Phone:     testPhone(1_000_000 + i),
			CreatedAt: time.Now().UTC(),
		}
		id, err := insertOnce(ctx, repo, u)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)

		if (i+1)%500 == 0 {
			logger.Info().Msgf("patients seeded: %d/%d", i+1, count)
		}
	}
	logger.Info().Int("count", count).Msg("patients seeded")
	return ids, nil
}
