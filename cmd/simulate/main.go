package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logging"
	"github.com/hackgods/clinic-booking/internal/schedule"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	// HotRatio is the share of bookings that all aim at the earliest free
	// slot, which is where concurrent requests collide.
	HotRatio     float64
	PatientLimit int
	DoctorLimit  int
	DaysAhead    int
	PostgresDSN  string
	ClinicZone   *time.Location
}

type booked struct {
	id      uuid.UUID
	patient uuid.UUID
}

type DataPool struct {
	Doctors  []uuid.UUID
	Patients []uuid.UUID
	tokens   map[uuid.UUID]string

	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (booked, bool) {
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
	Timeout   int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeConflict
	outcomeTimeout
	outcomeError
)

func classify(resp *http.Response, err error, okStatus int) outcome {
	switch {
	case err != nil:
		return outcomeError
	case resp.StatusCode == okStatus:
		return outcomeSuccess
	case resp.StatusCode == http.StatusConflict:
		return outcomeConflict
	case resp.StatusCode == http.StatusGatewayTimeout:
		return outcomeTimeout
	default:
		return outcomeError
	}
}

func (om *OperationMetrics) Record(latency time.Duration, o outcome) {
	atomic.AddInt64(&om.Total, 1)
	switch o {
	case outcomeSuccess:
		atomic.AddInt64(&om.Success, 1)
	case outcomeConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case outcomeTimeout:
		atomic.AddInt64(&om.Timeout, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95, p99 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	percentile := func(p int) time.Duration {
		idx := len(latencies) * p / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}

	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1],
		percentile(50), percentile(95), percentile(99)
}

type Metrics struct {
	Booking   OperationMetrics
	Cancel    OperationMetrics
	FreeSlots OperationMetrics
	ListMine  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		logging.New("info", "prod").Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New(baseCfg.LogLevel, baseCfg.Env).With().Str("service", "simulate").Logger()

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Float64("hot", cfg.HotRatio).
		Msg("simulator starting")

	// Load data from Postgres
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	authn := auth.NewAuthenticator(baseCfg.JWTSecret, baseCfg.JWTIssuer)
	dataPool, err := loadDataPool(ctx, pgPool, authn, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}

	logger.Info().Int("doctors", len(dataPool.Doctors)).Int("patients", len(dataPool.Patients)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()

	doubles, err := countDoubleBookings(context.Background(), pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("double booking check")
	}
	fmt.Printf("Double-booked slots: %d\n", doubles)
	if doubles > 0 {
		os.Exit(1)
	}
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 20),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.4),
		HotRatio:     getFloat("SIM_HOT_RATIO", 0.5),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 2000),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 20),
		DaysAhead:    getInt("SIM_DAYS_AHEAD", 7),
		PostgresDSN:  base.PostgresDSN,
		ClinicZone:   base.ClinicLocation,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return errors.New("SIM_DURATION must be > 0")
	}
	if cfg.DaysAhead <= 0 {
		return errors.New("SIM_DAYS_AHEAD must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, authn *auth.Authenticator, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{tokens: make(map[uuid.UUID]string)}

	// Doctors that have published a schedule
	doctors, err := loadIDs(ctx, pool, `
		SELECT p.id FROM profiles p
		JOIN schedule_templates s ON s.doctor_id = p.id
		WHERE p.role = 'doctor'
		ORDER BY p.id
		LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	dataPool.Doctors = doctors

	patients, err := loadIDs(ctx, pool, `
		SELECT id FROM profiles WHERE role = 'patient' LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	dataPool.Patients = patients

	if len(dataPool.Doctors) == 0 {
		return nil, errors.New("no doctors with schedules loaded, run cmd/seed first")
	}
	if len(dataPool.Patients) == 0 {
		return nil, errors.New("no patients loaded, run cmd/seed first")
	}

	expires := jwt.NewNumericDate(time.Now().Add(cfg.Duration + time.Hour))
	for _, id := range dataPool.Patients {
		tok, err := authn.Sign(auth.Claims{
			Role: string(auth.RolePatient),
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   id.String(),
				ExpiresAt: expires,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("sign token: %w", err)
		}
		dataPool.tokens[id] = tok
	}

	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, sql string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// countDoubleBookings returns how many natural keys hold more than one
// scheduled appointment. Anything but zero means the booking race leaked.
func countDoubleBookings(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT 1 FROM appointments
			WHERE status = 'scheduled'
			GROUP BY doctor_id, appointment_date, start_time
			HAVING count(*) > 1
		) dup
	`).Scan(&n)
	return n, err
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

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

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doFreeSlots(ctx, rng)
				} else {
					s.doListMine(ctx, rng)
				}
			}
		}
	}
}

// randomWeekday picks a weekday between tomorrow and DaysAhead out. Hot
// bookings all use tomorrow's earliest weekday.
func (s *Simulator) randomWeekday(rng *rand.Rand, hot bool) schedule.Date {
	tomorrow := schedule.DateOf(time.Now().In(s.config.ClinicZone)).AddDays(1)
	d := tomorrow
	if !hot {
		d = tomorrow.AddDays(rng.Intn(s.config.DaysAhead))
	}
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDays(1)
	}
	return d
}

func (s *Simulator) randomPatient(rng *rand.Rand) (uuid.UUID, string) {
	id := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	return id, s.pool.tokens[id]
}

func (s *Simulator) newRequest(ctx context.Context, method, path, token string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (s *Simulator) freeSlots(ctx context.Context, token string, doctor uuid.UUID, date schedule.Date) ([]string, *http.Response, error) {
	req, err := s.newRequest(ctx, http.MethodGet,
		fmt.Sprintf("/doctors/%s/slots?date=%s", doctor, date), token, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Slots []string `json:"slots"`
	}
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, resp, err
		}
	}
	return out.Slots, resp, nil
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	patientID, token := s.randomPatient(rng)
	hot := rng.Float64() < s.config.HotRatio
	doctor := s.pool.Doctors[0]
	if !hot {
		doctor = s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	}
	date := s.randomWeekday(rng, hot)

	slots, _, err := s.freeSlots(ctx, token, doctor, date)
	if err != nil || len(slots) == 0 {
		return
	}
	slot := slots[0]
	if !hot {
		slot = slots[rng.Intn(len(slots))]
	}

	start := time.Now()

	req, err := s.newRequest(ctx, http.MethodPost, "/appointments", token, map[string]string{
		"doctorId":  doctor.String(),
		"date":      date.String(),
		"startTime": slot,
		"reason":    "simulated visit",
	})
	if err != nil {
		return
	}

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	o := classify(resp, err, http.StatusCreated)
	if err == nil {
		defer resp.Body.Close()
		if o == outcomeSuccess {
			var appt struct {
				ID uuid.UUID `json:"id"`
			}
			if json.NewDecoder(resp.Body).Decode(&appt) == nil && appt.ID != uuid.Nil {
				s.pool.AddAppointment(booked{id: appt.ID, patient: patientID})
			}
		}
	}

	s.metrics.Booking.Record(latency, o)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, err := s.newRequest(ctx, http.MethodPost,
		fmt.Sprintf("/appointments/%s/cancel", appt.id), s.pool.tokens[appt.patient], nil)
	if err != nil {
		return
	}

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		defer resp.Body.Close()
	}

	s.metrics.Cancel.Record(latency, classify(resp, err, http.StatusOK))
}

func (s *Simulator) doFreeSlots(ctx context.Context, rng *rand.Rand) {
	_, token := s.randomPatient(rng)
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]

	start := time.Now()
	_, resp, err := s.freeSlots(ctx, token, doctor, s.randomWeekday(rng, false))
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	s.metrics.FreeSlots.Record(latency, classify(resp, err, http.StatusOK))
}

func (s *Simulator) doListMine(ctx context.Context, rng *rand.Rand) {
	_, token := s.randomPatient(rng)

	start := time.Now()

	req, err := s.newRequest(ctx, http.MethodGet, "/appointments?status=scheduled&limit=20", token, nil)
	if err != nil {
		return
	}

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		defer resp.Body.Close()
	}

	s.metrics.ListMine.Record(latency, classify(resp, err, http.StatusOK))
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Free slots", &s.metrics.FreeSlots)
	printOperationReport("List mine", &s.metrics.ListMine)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	timeout := atomic.LoadInt64(&om.Timeout)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95, p99 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if timeout > 0 {
		fmt.Printf("  Timeouts: %d (%.1f%%)\n", timeout, pct(timeout))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s p99=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), p99.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

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
