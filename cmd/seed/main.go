package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logging"
	"github.com/hackgods/clinic-booking/internal/profile"
	"github.com/hackgods/clinic-booking/internal/schedule"
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

func main() {
	_ = godotenv.Load()
	logger := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("APP_ENV")).With().Str("service", "seed").Logger()

	doctors := flag.Int("doctors", 50, "number of doctors to create")
	patients := flag.Int("patients", 2000, "number of patients to create")
	flag.Parse()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{MaxConns: 4})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctors(ctx, pool, *doctors, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(ctx, pool, *patients, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

// seedDoctors writes doctor profiles and a published weekly template each,
// through the same stores the API uses.
func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding doctors")

	profiles := profile.NewPgStore(pool)
	templates := schedule.NewPgStore(pool)
	now := time.Now().UTC()

	for i := 0; i < count; i++ {
		id := uuid.New()

		_, err := profiles.Create(ctx, profile.Profile{
			ID:        id,
			Email:     gofakeit.Email(),
			Role:      auth.RoleDoctor,
			FirstName: gofakeit.FirstName(),
			LastName:  gofakeit.LastName(),
			Phone:     gofakeit.Phone(),
			Specialty: specialties[gofakeit.Number(0, len(specialties)-1)],
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		tmpl := randomTemplate(id)
		tmpl.UpdatedAt = now
		if err := tmpl.Validate(); err != nil {
			return err
		}
		if err := templates.Put(ctx, tmpl); err != nil {
			return err
		}
	}

	logger.Info().Msg("doctors seeded")
	return nil
}

// randomTemplate varies the default week: a later start on some days, a
// Saturday morning for some doctors, and one of three slot lengths.
func randomTemplate(doctorID uuid.UUID) schedule.Template {
	tmpl := schedule.DefaultTemplate(doctorID)
	tmpl.SlotDurationMinutes = []int{15, 20, 30}[gofakeit.Number(0, 2)]

	for d := time.Monday; d <= time.Friday; d++ {
		if gofakeit.Bool() {
			tmpl.WeeklyRules[d].OpensAt = schedule.NewClock(gofakeit.Number(8, 10), 0)
		}
	}
	if gofakeit.Number(0, 3) == 0 {
		tmpl.WeeklyRules[time.Saturday].IsOpen = true
	}
	return tmpl
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	now := time.Now().UTC()
	rows := make([][]any, 0, count)
	for i := 0; i < count; i++ {
		rows = append(rows, []any{
			uuid.New(),
			gofakeit.Email(),
			string(auth.RolePatient),
			gofakeit.FirstName(),
			gofakeit.LastName(),
			gofakeit.Phone(),
			now,
			now,
		})
	}

	n, err := pool.CopyFrom(ctx,
		pgx.Identifier{"profiles"},
		[]string{"id", "email", "role", "first_name", "last_name", "phone", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return err
	}

	logger.Info().Int64("inserted", n).Msg("patients seeded")
	return nil
}
