package main

import (
	"context"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/logging"
	"github.com/hackgods/telehealth-scheduling/internal/schedule"
)

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

// Weekly templates handed out round-robin.
var templates = []availability.Weekly{
	{
		time.Monday:    {clinictime.MustInterval("09:00-12:00"), clinictime.MustInterval("13:00-17:00")},
		time.Tuesday:   {clinictime.MustInterval("09:00-12:00"), clinictime.MustInterval("13:00-17:00")},
		time.Wednesday: {clinictime.MustInterval("09:00-12:00")},
		time.Thursday:  {clinictime.MustInterval("09:00-12:00"), clinictime.MustInterval("13:00-17:00")},
		time.Friday:    {clinictime.MustInterval("09:00-13:00")},
	},
	{
		time.Monday:    {clinictime.MustInterval("14:00-20:00")},
		time.Wednesday: {clinictime.MustInterval("14:00-20:00")},
		time.Friday:    {clinictime.MustInterval("14:00-20:00")},
		time.Saturday:  {clinictime.MustInterval("10:00-14:00")},
	},
	{
		time.Tuesday:  {clinictime.MustInterval("08:00-16:00")},
		time.Thursday: {clinictime.MustInterval("08:00-16:00")},
	},
}

var timezones = []string{"Europe/Amsterdam", "Europe/London", "America/New_York"}

func main() {
	var doctors, patients int
	var migrate bool

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Populate postgres with fake doctors, patients and schedules",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.PostgresDSN == "" {
				return fmt.Errorf("POSTGRES_DSN is required")
			}
			log := logging.New(cfg.LogLevel, cfg.Env)

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()

			pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			if migrate {
				if _, err := db.Migrate(ctx, pool, log); err != nil {
					return err
				}
			}

			s := &seeder{
				pool:  pool,
				faker: gofakeit.New(0),
				log:   log,
				schedules: schedule.NewService(schedule.NewPgStore(pool), nil, schedule.Options{
					DefaultTimezone: cfg.DefaultTimezone,
					StorageTimeout:  cfg.StorageTimeout,
					Logger:          logrus.NewEntry(log).WithField("component", "seed"),
				}),
			}
			if err := s.doctors(ctx, doctors); err != nil {
				return fmt.Errorf("seed doctors: %w", err)
			}
			if err := s.patients(ctx, patients); err != nil {
				return fmt.Errorf("seed patients: %w", err)
			}
			log.Info("seed complete")
			return nil
		},
	}
	cmd.Flags().IntVar(&doctors, "doctors", 100, "number of doctors to create")
	cmd.Flags().IntVar(&patients, "patients", 9000, "number of patients to create")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations first")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type seeder struct {
	pool      *pgxpool.Pool
	faker     *gofakeit.Faker
	log       *logrus.Logger
	schedules *schedule.Service
}

func (s *seeder) doctors(ctx context.Context, count int) error {
	s.log.WithField("count", count).Info("seeding doctors")

	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := s.pool.Exec(ctx, `
			INSERT INTO doctors (id, name, email, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
			ON CONFLICT (email) DO NOTHING
		`, id, "Dr. "+s.faker.Name(), s.faker.Email(), specialties[s.faker.Number(0, len(specialties)-1)])
		if err != nil {
			return err
		}

		p := availability.DefaultProfile(id, timezones[i%len(timezones)])
		p.LeadTime = time.Duration(s.faker.RandomInt([]int{0, 60, 120})) * time.Minute
		p.ConsultationFee = decimal.NewFromInt(int64(s.faker.Number(25, 120)))
		if _, err := s.schedules.SaveProfile(ctx, p); err != nil {
			return err
		}
		if err := s.schedules.ReplaceWeekly(ctx, id, templates[i%len(templates)]); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) patients(ctx context.Context, count int) error {
	s.log.WithField("count", count).Info("seeding patients")

	const batchSize = 500
	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}
		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
				ON CONFLICT (email) DO NOTHING
			`, uuid.New(), s.faker.Name(), s.faker.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		s.log.WithField("done", end).Debug("patients batch committed")
	}
	return nil
}
