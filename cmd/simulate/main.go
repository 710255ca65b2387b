package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	Patients    int
	Doctors     int
	CancelRatio float64
	RemindRatio float64
	Date        time.Time
}

// Outcome counters for one kind of request.
type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Busy      int64
	Error     int64
	latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, wantStatus int) {
	atomic.AddInt64(&om.Total, 1)
	switch status {
	case wantStatus:
		atomic.AddInt64(&om.Success, 1)
	case http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		atomic.AddInt64(&om.Busy, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Percentiles() (p50, p95, slowest time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0
	}
	sorted := append([]time.Duration(nil), om.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	at := func(pct int) time.Duration {
		idx := len(sorted) * pct / 100
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}
	return at(50), at(95), sorted[len(sorted)-1]
}

type Simulator struct {
	config   SimConfig
	client   *http.Client
	logger   *logging.Logger
	patients []uuid.UUID
	doctors  []string

	mu     sync.RWMutex
	booked []uuid.UUID

	book, cancel, remind OperationMetrics
}

func main() {
	logger := logging.New(getEnv("LOG_LEVEL", "info")).With("service", "simulate")

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	logger.Info("simulator starting",
		"base_url", cfg.APIBaseURL,
		"duration", cfg.Duration.String(),
		"workers", cfg.Workers,
		"date", cfg.Date.Format(time.DateOnly),
	)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	for i := 0; i < cfg.Doctors; i++ {
		sim.doctors = append(sim.doctors, fmt.Sprintf("sim-dr-%02d", i+1))
	}

	ctx := context.Background()
	if err := sim.registerPatients(ctx); err != nil {
		logger.Error("register patients", "error", err)
		os.Exit(1)
	}

	sim.Run()
	sim.PrintReport()

	violations, err := sim.verifyNoOverlaps(ctx)
	if err != nil {
		logger.Error("verify schedule", "error", err)
		os.Exit(1)
	}
	if violations > 0 {
		logger.Error("double bookings detected", "count", violations)
		os.Exit(1)
	}
	logger.Info("no double bookings detected")
}

func loadConfig() (SimConfig, error) {
	dateStr := getEnv("SIM_DATE", time.Now().AddDate(0, 0, 1).Format(time.DateOnly))
	date, err := appointment.ParseDate(dateStr)
	if err != nil {
		return SimConfig{}, err
	}

	cfg := SimConfig{
		APIBaseURL:  strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		Patients:    getInt("SIM_PATIENTS", 50),
		Doctors:     getInt("SIM_DOCTORS", 3),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.15),
		RemindRatio: getFloat("SIM_REMIND_RATIO", 0.15),
		Date:        date,
	}
	if cfg.Workers <= 0 || cfg.Patients <= 0 || cfg.Doctors <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_WORKERS, SIM_PATIENTS and SIM_DOCTORS must be > 0")
	}
	if cfg.Duration <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_DURATION must be > 0")
	}
	return cfg, nil
}

func (s *Simulator) registerPatients(ctx context.Context) error {
	faker := gofakeit.New(0)
	oldest := time.Now().AddDate(-80, 0, 0)
	youngest := time.Now().AddDate(-18, 0, 0)

	for i := 0; i < s.config.Patients; i++ {
		body := map[string]any{
			"full_name":     faker.Name(),
			"date_of_birth": faker.DateRange(oldest, youngest).Format(time.DateOnly),
			"email":         faker.Email(),
			"phone":         faker.Phone(),
		}
		var resp struct {
			ID uuid.UUID `json:"id"`
		}
		status, err := s.post(ctx, "/patients", body, &resp)
		if err != nil {
			return err
		}
		if status != http.StatusCreated && status != http.StatusOK {
			return fmt.Errorf("register patient: unexpected status %d", status)
		}
		s.patients = append(s.patients, resp.ID)
	}
	s.logger.Info("patients registered", "count", len(s.patients))
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, gofakeit.New(0))
		}()
	}
	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, faker *gofakeit.Faker) {
	for ctx.Err() == nil {
		r := faker.Float64()
		switch {
		case r < s.config.CancelRatio:
			s.doTransition(ctx, faker, "cancel", &s.cancel)
		case r < s.config.CancelRatio+s.config.RemindRatio:
			s.doTransition(ctx, faker, "remind", &s.remind)
		default:
			s.doBooking(ctx, faker)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, faker *gofakeit.Faker) {
	// Quarter-hour starts with mixed lengths so requests overlap often
	start := appointment.Clock(9*60 + 15*faker.Number(0, 28))
	body := map[string]any{
		"patient_id":       s.patients[faker.Number(0, len(s.patients)-1)].String(),
		"doctor_id":        s.doctors[faker.Number(0, len(s.doctors)-1)],
		"date":             s.config.Date.Format(time.DateOnly),
		"start":            start.String(),
		"duration_minutes": []int{15, 30, 45}[faker.Number(0, 2)],
	}

	began := time.Now()
	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	status, err := s.post(ctx, "/appointments", body, &resp)
	if err != nil {
		return
	}
	s.book.Record(time.Since(began), status, http.StatusCreated)

	if status == http.StatusCreated {
		s.mu.Lock()
		s.booked = append(s.booked, resp.ID)
		s.mu.Unlock()
	}
}

func (s *Simulator) doTransition(ctx context.Context, faker *gofakeit.Faker, action string, om *OperationMetrics) {
	s.mu.RLock()
	if len(s.booked) == 0 {
		s.mu.RUnlock()
		return
	}
	id := s.booked[faker.Number(0, len(s.booked)-1)]
	s.mu.RUnlock()

	began := time.Now()
	status, err := s.post(ctx, "/appointments/"+id.String()+"/"+action, nil, nil)
	if err != nil {
		return
	}
	om.Record(time.Since(began), status, http.StatusOK)
}

// verifyNoOverlaps re-reads every simulated doctor's day and counts
// overlapping pairs among active appointments.
func (s *Simulator) verifyNoOverlaps(ctx context.Context) (int, error) {
	violations := 0
	for _, doctor := range s.doctors {
		url := fmt.Sprintf("%s/doctors/%s/appointments?date=%s", s.config.APIBaseURL, doctor, s.config.Date.Format(time.DateOnly))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return 0, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return 0, err
		}

		var appts []struct {
			ID              uuid.UUID         `json:"id"`
			Start           appointment.Clock `json:"start"`
			DurationMinutes int               `json:"duration_minutes"`
		}
		err = json.NewDecoder(resp.Body).Decode(&appts)
		resp.Body.Close()
		if err != nil {
			return 0, fmt.Errorf("decode %s schedule: %w", doctor, err)
		}

		for i := range appts {
			for j := i + 1; j < len(appts); j++ {
				a, b := appts[i], appts[j]
				if appointment.Overlaps(a.Start, a.DurationMinutes, b.Start, b.DurationMinutes) {
					s.logger.Error("overlap", "doctor", doctor, "a", a.ID, "b", b.ID)
					violations++
				}
			}
		}
		s.logger.Info("schedule verified", "doctor", doctor, "active", len(appts))
	}
	return violations, nil
}

func (s *Simulator) post(ctx context.Context, path string, body any, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s  Workers: %d  Doctors: %d  Date: %s\n\n",
		s.config.Duration, s.config.Workers, s.config.Doctors, s.config.Date.Format(time.DateOnly))

	printOperationReport("Book", &s.book)
	printOperationReport("Cancel", &s.cancel)
	printOperationReport("Remind", &s.remind)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	busy := atomic.LoadInt64(&om.Busy)
	failed := atomic.LoadInt64(&om.Error)

	p50, p95, slowest := om.Percentiles()
	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	fmt.Printf("  Busy: %d (%.1f%%)\n", busy, pct(busy))
	fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	fmt.Printf("  Latency: p50=%s p95=%s max=%s\n\n",
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), slowest.Round(time.Millisecond))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
