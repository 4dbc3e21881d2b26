package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/logging"
)

type simConfig struct {
	baseURL      string
	duration     time.Duration
	workers      int
	bookRatio    float64
	confirmRatio float64
	cancelRatio  float64
	movesRatio   float64
	patientLimit int
	doctorLimit  int
	daysAhead    int
}

// population holds the ids the workers draw from.
type population struct {
	patients []uuid.UUID
	doctors  []uuid.UUID

	mu     sync.RWMutex
	booked []uuid.UUID
}

func (p *population) add(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.booked = append(p.booked, id)
}

func (p *population) randomBooked(rng *rand.Rand) (uuid.UUID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.booked) == 0 {
		return uuid.Nil, false
	}
	return p.booked[rng.IntN(len(p.booked))], true
}

// opStats counts outcomes and keeps raw latencies for percentiles.
type opStats struct {
	total, ok, conflict, busy, failed atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (o *opStats) record(d time.Duration, status int, err error) {
	o.total.Add(1)
	switch {
	case err != nil:
		o.failed.Add(1)
	case status < 300:
		o.ok.Add(1)
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		o.conflict.Add(1)
	case status == http.StatusTooManyRequests:
		o.busy.Add(1)
	default:
		o.failed.Add(1)
	}
	o.mu.Lock()
	o.latencies = append(o.latencies, d)
	o.mu.Unlock()
}

func (o *opStats) percentile(p int) time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.latencies) == 0 {
		return 0
	}
	sorted := slices.Clone(o.latencies)
	slices.Sort(sorted)
	return sorted[min(len(sorted)*p/100, len(sorted)-1)]
}

type simulator struct {
	cfg    simConfig
	pop    *population
	client *http.Client
	log    logrus.FieldLogger

	stats map[string]*opStats
}

func main() {
	cfg := simConfig{}
	cmd := &cobra.Command{
		Use:          "simulate",
		Short:        "Drive concurrent booking traffic against a running api-server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, err := config.Load()
			if err != nil {
				return err
			}
			if base.PostgresDSN == "" {
				return fmt.Errorf("POSTGRES_DSN is required to load doctors and patients")
			}
			if cfg.workers <= 0 || cfg.duration <= 0 {
				return fmt.Errorf("workers and duration must be positive")
			}
			log := logging.New(base.LogLevel, base.Env)

			loadCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			pool, err := db.ConnectPostgres(loadCtx, base.PostgresDSN)
			if err != nil {
				return err
			}
			pop, err := loadPopulation(loadCtx, pool, cfg)
			pool.Close()
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"doctors":  len(pop.doctors),
				"patients": len(pop.patients),
				"workers":  cfg.workers,
				"duration": cfg.duration,
			}).Info("simulation starting")

			sim := &simulator{
				cfg:    cfg,
				pop:    pop,
				client: &http.Client{Timeout: 10 * time.Second},
				log:    log,
				stats:  map[string]*opStats{},
			}
			for _, name := range operations {
				sim.stats[name] = &opStats{}
			}
			if err := sim.run(cmd.Context()); err != nil {
				return err
			}
			sim.report(os.Stdout)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "api-server base URL")
	f.DurationVar(&cfg.duration, "duration", 30*time.Second, "how long to generate load")
	f.IntVar(&cfg.workers, "workers", 10, "concurrent workers")
	f.Float64Var(&cfg.bookRatio, "book", 0.4, "share of bookings")
	f.Float64Var(&cfg.confirmRatio, "confirm", 0.2, "share of payment confirmations")
	f.Float64Var(&cfg.cancelRatio, "cancel", 0.05, "share of cancellations")
	f.Float64Var(&cfg.movesRatio, "reschedule", 0.05, "share of reschedules; the rest are reads")
	f.IntVar(&cfg.patientLimit, "patients", 4000, "patients loaded from postgres")
	f.IntVar(&cfg.doctorLimit, "doctors", 50, "doctors loaded from postgres")
	f.IntVar(&cfg.daysAhead, "days", 14, "booking window in days from today")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var operations = []string{"book", "confirm", "cancel", "reschedule", "slots", "list_patient", "get"}

func loadPopulation(ctx context.Context, pool *pgxpool.Pool, cfg simConfig) (*population, error) {
	collect := func(query string, limit int) ([]uuid.UUID, error) {
		rows, err := pool.Query(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	}

	patients, err := collect(`SELECT id FROM patients LIMIT $1`, cfg.patientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	doctors, err := collect(`
		SELECT doctor_id FROM doctor_schedule_profiles
		WHERE active
		ORDER BY doctor_id
		LIMIT $1
	`, cfg.doctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	if len(patients) == 0 || len(doctors) == 0 {
		return nil, fmt.Errorf("no data to simulate with; run the seed command first")
	}
	return &population{patients: patients, doctors: doctors}, nil
}

func (s *simulator) run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.workers; i++ {
		seed := uint64(time.Now().UnixNano()) + uint64(i)
		g.Go(func() error {
			s.worker(ctx, rand.New(rand.NewPCG(seed, uint64(i))))
			return nil
		})
	}
	err := g.Wait()
	s.log.Info("simulation complete")
	return err
}

func (s *simulator) worker(ctx context.Context, rng *rand.Rand) {
	c := s.cfg
	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < c.bookRatio:
			s.book(ctx, rng)
		case r < c.bookRatio+c.confirmRatio:
			s.onBooked(ctx, rng, "confirm", func(id uuid.UUID) (string, string, any) {
				return http.MethodPost, "/appointments/" + id.String() + "/status", map[string]string{"status": "confirmed"}
			})
		case r < c.bookRatio+c.confirmRatio+c.cancelRatio:
			s.onBooked(ctx, rng, "cancel", func(id uuid.UUID) (string, string, any) {
				return http.MethodPost, "/appointments/" + id.String() + "/cancel", map[string]string{"reason": "simulated"}
			})
		case r < c.bookRatio+c.confirmRatio+c.cancelRatio+c.movesRatio:
			s.reschedule(ctx, rng)
		default:
			s.read(ctx, rng)
		}
	}
}

type slotListing struct {
	Days []struct {
		Date  string   `json:"date"`
		Slots []string `json:"slots"`
	} `json:"days"`
}

// pickSlot lists a random doctor's slots over a few days and returns one.
func (s *simulator) pickSlot(ctx context.Context, rng *rand.Rand, doctor uuid.UUID) (date, start, end string, ok bool) {
	from := time.Now().AddDate(0, 0, rng.IntN(max(s.cfg.daysAhead, 1)))
	q := url.Values{
		"doctor_id": {doctor.String()},
		"from":      {from.Format(time.DateOnly)},
		"to":        {from.AddDate(0, 0, 2).Format(time.DateOnly)},
	}
	var listing slotListing
	status, err := s.call(ctx, "slots", http.MethodGet, "/appointments/slots/available?"+q.Encode(), nil, &listing)
	if err != nil || status != http.StatusOK {
		return "", "", "", false
	}

	var candidates [][2]string
	for _, d := range listing.Days {
		for _, sl := range d.Slots {
			candidates = append(candidates, [2]string{d.Date, sl})
		}
	}
	if len(candidates) == 0 {
		return "", "", "", false
	}
	c := candidates[rng.IntN(len(candidates))]
	// slots are rendered as HH:MM-HH:MM
	return c[0], c[1][:5], c[1][6:], true
}

func (s *simulator) book(ctx context.Context, rng *rand.Rand) {
	doctor := s.pop.doctors[rng.IntN(len(s.pop.doctors))]
	date, start, end, ok := s.pickSlot(ctx, rng, doctor)
	if !ok {
		return
	}
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	status, err := s.call(ctx, "book", http.MethodPost, "/appointments", map[string]string{
		"doctor_id":  doctor.String(),
		"patient_id": s.pop.patients[rng.IntN(len(s.pop.patients))].String(),
		"date":       date,
		"start":      start,
		"end":        end,
		"mode":       []string{"video", "phone", "in_person"}[rng.IntN(3)],
	}, &created)
	if err == nil && status == http.StatusCreated && created.ID != uuid.Nil {
		s.pop.add(created.ID)
	}
}

func (s *simulator) onBooked(ctx context.Context, rng *rand.Rand, op string, req func(uuid.UUID) (string, string, any)) {
	id, ok := s.pop.randomBooked(rng)
	if !ok {
		return
	}
	method, path, body := req(id)
	_, _ = s.call(ctx, op, method, path, body, nil)
}

func (s *simulator) reschedule(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pop.randomBooked(rng)
	if !ok {
		return
	}
	var appt struct {
		DoctorID uuid.UUID `json:"doctor_id"`
		Status   string    `json:"status"`
	}
	if status, err := s.call(ctx, "get", http.MethodGet, "/appointments/"+id.String(), nil, &appt); err != nil || status != http.StatusOK {
		return
	}
	if appt.Status != "pending" && appt.Status != "confirmed" {
		return
	}
	date, start, end, ok := s.pickSlot(ctx, rng, appt.DoctorID)
	if !ok {
		return
	}
	_, _ = s.call(ctx, "reschedule", http.MethodPost, "/appointments/"+id.String()+"/reschedule",
		map[string]string{"date": date, "start": start, "end": end}, nil)
}

func (s *simulator) read(ctx context.Context, rng *rand.Rand) {
	switch rng.IntN(3) {
	case 0:
		if id, ok := s.pop.randomBooked(rng); ok {
			_, _ = s.call(ctx, "get", http.MethodGet, "/appointments/"+id.String(), nil, nil)
		}
	case 1:
		patient := s.pop.patients[rng.IntN(len(s.pop.patients))]
		_, _ = s.call(ctx, "list_patient", http.MethodGet, "/appointments?patient_id="+patient.String()+"&limit=20", nil, nil)
	default:
		s.pickSlot(ctx, rng, s.pop.doctors[rng.IntN(len(s.pop.doctors))])
	}
}

// call performs one request and records it under op. Calls cut short by the end
// of the run are not recorded.
func (s *simulator) call(ctx context.Context, op, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := s.client.Do(req)
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if err != nil {
		s.stats[op].record(time.Since(started), 0, err)
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		err = json.NewDecoder(resp.Body).Decode(out)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	s.stats[op].record(time.Since(started), resp.StatusCode, nil)
	return resp.StatusCode, err
}

func (s *simulator) report(w io.Writer) {
	fmt.Fprintf(w, "\nsimulation: %s with %d workers\n\n", s.cfg.duration, s.cfg.workers)
	fmt.Fprintf(w, "%-14s %8s %8s %9s %6s %7s %9s %9s %9s\n",
		"operation", "total", "ok", "conflict", "busy", "failed", "p50", "p95", "p99")
	for _, name := range operations {
		st := s.stats[name]
		total := st.total.Load()
		if total == 0 {
			continue
		}
		fmt.Fprintf(w, "%-14s %8d %8d %9d %6d %7d %9s %9s %9s\n",
			name, total, st.ok.Load(), st.conflict.Load(), st.busy.Load(), st.failed.Load(),
			st.percentile(50).Round(time.Millisecond),
			st.percentile(95).Round(time.Millisecond),
			st.percentile(99).Round(time.Millisecond))
	}
}
