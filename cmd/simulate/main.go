package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduler/internal/api"
	"github.com/hackgods/clinic-scheduler/internal/appointment"
	"github.com/hackgods/clinic-scheduler/internal/config"
	"github.com/hackgods/clinic-scheduler/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Manifest     string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	SlotsPerDoc  int
}

type manifest struct {
	Doctors  []uuid.UUID `json:"doctors"`
	Patients []uuid.UUID `json:"patients"`
}

type booked struct {
	id      uuid.UUID
	patient uuid.UUID
}

// DataPool holds seeded users, the contended slots and the appointments created so far.
type DataPool struct {
	Patients []uuid.UUID
	Doctors  []uuid.UUID
	Slots    []time.Time

	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pick := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking OperationMetrics
	Confirm OperationMetrics
	Read    OperationMetrics
	List    OperationMetrics
	Slots   OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	tokens  map[uuid.UUID]string
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	var sc SimConfig

	rootCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a concurrent booking storm against the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(sc)
		},
	}
	f := rootCmd.Flags()
	f.StringVar(&sc.APIBaseURL, "base-url", "http://localhost:8080", "API base URL")
	f.StringVar(&sc.Manifest, "manifest", "seed.json", "manifest written by seed")
	f.DurationVar(&sc.Duration, "duration", 20*time.Second, "how long to run")
	f.IntVar(&sc.Workers, "workers", 20, "concurrent workers")
	f.Float64Var(&sc.BookingRatio, "booking-ratio", 0.6, "share of booking requests")
	f.Float64Var(&sc.ConfirmRatio, "confirm-ratio", 0.2, "share of confirm requests")
	f.IntVar(&sc.SlotsPerDoc, "slots", 4, "contended slots per doctor")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(sc SimConfig) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)

	if sc.Workers <= 0 || sc.Duration <= 0 {
		return fmt.Errorf("workers and duration must be positive")
	}

	pool, err := loadDataPool(sc)
	if err != nil {
		return err
	}

	tokens, err := issueTokens(api.NewAuthenticator(cfg.JWTSecret), pool, sc.Duration+time.Hour)
	if err != nil {
		return err
	}

	sim := &Simulator{
		config: sc,
		pool:   pool,
		tokens: tokens,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	logger.Info().
		Int("workers", sc.Workers).
		Dur("duration", sc.Duration).
		Int("doctors", len(pool.Doctors)).
		Int("slots", len(pool.Slots)).
		Msg("simulation starting")

	sim.Run()
	sim.PrintReport()
	return nil
}

func loadDataPool(sc SimConfig) (*DataPool, error) {
	raw, err := os.ReadFile(sc.Manifest)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if len(m.Doctors) == 0 || len(m.Patients) == 0 {
		return nil, fmt.Errorf("manifest has no doctors or patients")
	}

	return &DataPool{
		Doctors:  m.Doctors,
		Patients: m.Patients,
		Slots:    contendedSlots(time.Now().UTC(), sc.SlotsPerDoc),
	}, nil
}

// contendedSlots returns the first n half-hour starts from 09:00 on the next weekday,
// so every worker competes for the same few slots.
func contendedSlots(now time.Time, n int) []time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	slots := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		slots = append(slots, day.Add(9*time.Hour+time.Duration(i)*30*time.Minute))
	}
	return slots
}

func issueTokens(auth *api.Authenticator, pool *DataPool, ttl time.Duration) (map[uuid.UUID]string, error) {
	tokens := make(map[uuid.UUID]string, len(pool.Doctors)+len(pool.Patients))
	for _, id := range pool.Doctors {
		tok, err := auth.IssueToken(id, appointment.RoleDoctor, ttl)
		if err != nil {
			return nil, err
		}
		tokens[id] = tok
	}
	for _, id := range pool.Patients {
		tok, err := auth.IssueToken(id, appointment.RolePatient, ttl)
		if err != nil {
			return nil, err
		}
		tokens[id] = tok
	}
	return tokens, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.ConfirmRatio:
			s.doConfirm(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doRead(ctx, rng)
			case 1:
				s.doList(ctx, rng)
			case 2:
				s.doSlots(ctx, rng)
			}
		}
	}
}

// call sends one request as user and returns the status, or 0 on transport failure.
func (s *Simulator) call(ctx context.Context, method, path string, user uuid.UUID, body, into any) int {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.tokens[user])

	resp, err := s.client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	if into != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(into)
	}
	return resp.StatusCode
}

func (s *Simulator) timed(ctx context.Context, om *OperationMetrics, fn func() int) {
	start := time.Now()
	status := fn()
	if ctx.Err() != nil {
		return
	}
	om.Record(time.Since(start), status)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	start := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	s.timed(ctx, &s.metrics.Booking, func() int {
		var resp api.AppointmentResponse
		status := s.call(ctx, http.MethodPost, "/appointments", patient, api.CreateAppointmentRequest{
			DoctorID: doctor.String(),
			Start:    start,
			Reason:   "Simulated visit",
		}, &resp)
		if status == http.StatusCreated {
			s.pool.AddAppointment(booked{id: resp.ID, patient: patient})
		}
		return status
	})
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	s.timed(ctx, &s.metrics.Confirm, func() int {
		return s.call(ctx, http.MethodPatch, "/appointments/"+b.id.String()+"/status", b.patient,
			api.UpdateStatusRequest{Status: string(appointment.StatusConfirmed)}, nil)
	})
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	s.timed(ctx, &s.metrics.Read, func() int {
		return s.call(ctx, http.MethodGet, "/appointments/"+b.id.String(), b.patient, nil, nil)
	})
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	s.timed(ctx, &s.metrics.List, func() int {
		return s.call(ctx, http.MethodGet, "/appointments?limit=20", patient, nil, nil)
	})
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	date := s.pool.Slots[0].Format(time.DateOnly)
	s.timed(ctx, &s.metrics.Slots, func() int {
		return s.call(ctx, http.MethodGet, "/doctors/"+doctor.String()+"/slots?date="+date, patient, nil, nil)
	})
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Contended slots: %d across %d doctors\n", len(s.pool.Slots), len(s.pool.Doctors))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Read by ID", &s.metrics.Read)
	printOperationReport("List", &s.metrics.List)
	printOperationReport("Slots", &s.metrics.Slots)

	created := atomic.LoadInt64(&s.metrics.Booking.Success)
	capacity := int64(len(s.pool.Slots) * len(s.pool.Doctors))
	fmt.Printf("Created %d appointments for %d slots", created, capacity)
	if created > capacity {
		fmt.Print("  <-- DOUBLE BOOKING")
	}
	fmt.Println()
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}
