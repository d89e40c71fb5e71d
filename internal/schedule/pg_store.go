package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	db rowQuerier
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	if pool == nil {
		panic("schedule: pgx pool required")
	}
	return &PgStore{db: pool}
}

func newPgStoreWithExec(db rowQuerier) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Get(ctx context.Context, doctorID uuid.UUID) (*Template, error) {
	var (
		t     Template
		rules []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT doctor_id, weekly_rules, slot_duration_minutes, updated_at
		FROM schedule_templates
		WHERE doctor_id = $1
	`, doctorID).Scan(&t.DoctorID, &rules, &t.SlotDurationMinutes, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("schedule: load template: %w", err)
	}

	if err := json.Unmarshal(rules, &t.WeeklyRules); err != nil {
		return nil, fmt.Errorf("schedule: decode weekly rules: %w", err)
	}
	return &t, nil
}

func (s *PgStore) Put(ctx context.Context, t Template) error {
	rules, err := json.Marshal(t.WeeklyRules)
	if err != nil {
		return fmt.Errorf("schedule: encode weekly rules: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO schedule_templates (doctor_id, weekly_rules, slot_duration_minutes, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (doctor_id) DO UPDATE
		SET weekly_rules = EXCLUDED.weekly_rules,
		    slot_duration_minutes = EXCLUDED.slot_duration_minutes,
		    updated_at = EXCLUDED.updated_at
	`, t.DoctorID, rules, t.SlotDurationMinutes, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("schedule: upsert template: %w", err)
	}
	return nil
}
