package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careops/clinic-scheduling/internal/config"
	"github.com/careops/clinic-scheduling/internal/db"
)

// simulate hammers the booking API with concurrent workers fighting over
// the same slots, to verify that exactly one booking per slot wins and
// the rest get clean conflict responses.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	ReadRatio    float64
	ContactCount int
	SlotLimit    int
	PostgresDSN  string
}

type DataPool struct {
	Contacts []uuid.UUID
	Slots    []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment() (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rand.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0
	}
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]
	return avg, p50, p95
}

type Metrics struct {
	Booking OperationMetrics
	Confirm OperationMetrics
	Cancel  OperationMetrics
	Read    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadSimConfig()
	log.Printf("config: duration=%s workers=%d booking=%.2f confirm=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.ConfirmRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	pool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded: %d contacts, %d open slots", len(pool.Contacts), len(pool.Slots))

	sim := &Simulator{
		config: cfg,
		pool:   pool,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	sim.Run()
	sim.PrintReport()
}

func loadSimConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}
	return SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		ContactCount: getInt("SIM_CONTACT_COUNT", 500),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 200),
		PostgresDSN:  baseCfg.PostgresDSN,
	}
}

// loadDataPool pulls open slots from the database and fabricates contact
// ids; contacts live outside this system.
func loadDataPool(ctx context.Context, pgPool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	pool := &DataPool{}
	for i := 0; i < cfg.ContactCount; i++ {
		pool.Contacts = append(pool.Contacts, uuid.New())
	}

	rows, err := pgPool.Query(ctx, `
		SELECT id FROM procedure_slots
		WHERE status = 'available' AND start_time > now()
		ORDER BY start_time
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		pool.Slots = append(pool.Slots, id)
	}
	if len(pool.Slots) == 0 {
		return nil, fmt.Errorf("no open slots to book, run the seed and generate slots first")
	}
	return pool, rows.Err()
}

func (s *Simulator) Run() {
	deadline := time.Now().Add(s.config.Duration)
	var wg sync.WaitGroup

	for w := 0; w < s.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				roll := rand.Float64()
				switch {
				case roll < s.config.BookingRatio:
					s.doBook()
				case roll < s.config.BookingRatio+s.config.ConfirmRatio:
					s.doConfirm()
				case roll < s.config.BookingRatio+s.config.ConfirmRatio+s.config.ReadRatio:
					s.doRead()
				default:
					s.doCancel()
				}
			}
		}()
	}
	wg.Wait()
}

func (s *Simulator) doBook() {
	slotID := s.pool.Slots[rand.Intn(len(s.pool.Slots))]
	contactID := s.pool.Contacts[rand.Intn(len(s.pool.Contacts))]

	body, _ := json.Marshal(map[string]any{
		"slot_id":    slotID,
		"contact_id": contactID,
	})

	start := time.Now()
	resp, err := s.client.Post(s.config.APIBaseURL+"/appointments", "application/json", bytes.NewReader(body))
	latency := time.Since(start)
	if err != nil {
		s.metrics.Booking.Record(latency, false, false)
		return
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusCreated:
		var created struct {
			Appointment struct {
				ID uuid.UUID `json:"id"`
			} `json:"appointment"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err == nil {
			s.pool.AddAppointment(created.Appointment.ID)
		}
		s.metrics.Booking.Record(latency, true, false)
	case http.StatusConflict:
		s.metrics.Booking.Record(latency, false, true)
	default:
		s.metrics.Booking.Record(latency, false, false)
	}
}

func (s *Simulator) doConfirm() {
	id, ok := s.pool.RandomAppointment()
	if !ok {
		return
	}
	s.postTransition(&s.metrics.Confirm, id, "confirm", nil)
}

func (s *Simulator) doCancel() {
	id, ok := s.pool.RandomAppointment()
	if !ok {
		return
	}
	body, _ := json.Marshal(map[string]string{"reason": "simulation churn"})
	s.postTransition(&s.metrics.Cancel, id, "cancel", body)
}

func (s *Simulator) postTransition(m *OperationMetrics, id uuid.UUID, action string, body []byte) {
	url := fmt.Sprintf("%s/appointments/%s/%s", s.config.APIBaseURL, id, action)
	start := time.Now()
	resp, err := s.client.Post(url, "application/json", bytes.NewReader(body))
	latency := time.Since(start)
	if err != nil {
		m.Record(latency, false, false)
		return
	}
	defer drain(resp)
	m.Record(latency, resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusConflict)
}

func (s *Simulator) doRead() {
	id, ok := s.pool.RandomAppointment()
	if !ok {
		return
	}
	url := fmt.Sprintf("%s/appointments/%s", s.config.APIBaseURL, id)
	start := time.Now()
	resp, err := s.client.Get(url)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Read.Record(latency, false, false)
		return
	}
	defer drain(resp)
	s.metrics.Read.Record(latency, resp.StatusCode == http.StatusOK, false)
}

func (s *Simulator) PrintReport() {
	report := func(name string, m *OperationMetrics) {
		avg, p50, p95 := m.Stats()
		log.Printf("%-8s total=%d success=%d conflict=%d error=%d avg=%s p50=%s p95=%s",
			name, m.Total, m.Success, m.Conflict, m.Error, avg, p50, p95)
	}
	log.Println("simulation report:")
	report("book", &s.metrics.Booking)
	report("confirm", &s.metrics.Confirm)
	report("cancel", &s.metrics.Cancel)
	report("read", &s.metrics.Read)

	// The invariant the whole exercise is about: double bookings must
	// never exceed the slot count.
	if s.metrics.Booking.Success > int64(len(s.pool.Slots)) {
		log.Printf("WARNING: %d bookings succeeded against %d slots",
			s.metrics.Booking.Success, len(s.pool.Slots))
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			return f
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
