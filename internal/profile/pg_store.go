package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking/internal/auth"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	db pgxQuerier
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	if pool == nil {
		panic("profile: pgx pool required")
	}
	return &PgStore{db: pool}
}

func newPgStoreWithExec(db pgxQuerier) *PgStore {
	return &PgStore{db: db}
}

const profileColumns = `id, email, role, first_name, last_name, phone, specialty, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var (
		p    Profile
		role string
	)

	err := row.Scan(
		&p.ID,
		&p.Email,
		&role,
		&p.FirstName,
		&p.LastName,
		&p.Phone,
		&p.Specialty,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	if p.Role, err = auth.ParseRole(role); err != nil {
		return nil, fmt.Errorf("scan profile %s: %w", p.ID, err)
	}
	return &p, nil
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE id = $1
	`, id)
	return scanProfile(row)
}

func (s *PgStore) Create(ctx context.Context, p Profile) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO profiles (id, email, role, first_name, last_name, phone, specialty, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.Email, string(p.Role), p.FirstName, p.LastName, p.Phone, p.Specialty, p.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert profile: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// likeEscaper makes user input match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *PgStore) SearchDoctors(ctx context.Context, q DoctorSearch) ([]Profile, error) {
	where := []string{"role = 'doctor'"}
	var args []any

	if q.Specialty != "" {
		args = append(args, q.Specialty)
		where = append(where, fmt.Sprintf("lower(specialty) = lower($%d)", len(args)))
	}
	if q.Name != "" {
		args = append(args, "%"+likeEscaper.Replace(q.Name)+"%")
		where = append(where, fmt.Sprintf(`(first_name || ' ' || last_name) ILIKE $%d ESCAPE '\'`, len(args)))
	}
	args = append(args, q.Limit)

	rows, err := s.db.Query(ctx, `SELECT `+profileColumns+` FROM profiles WHERE `+
		strings.Join(where, " AND ")+
		fmt.Sprintf(" ORDER BY last_name, first_name LIMIT $%d", len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("search doctors: %w", err)
	}
	defer rows.Close()

	var result []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (s *PgStore) CountByRole(ctx context.Context) (map[auth.Role]int, error) {
	rows, err := s.db.Query(ctx, `SELECT role, count(*) FROM profiles GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("count profiles: %w", err)
	}
	defer rows.Close()

	counts := make(map[auth.Role]int)
	for rows.Next() {
		var (
			role string
			n    int64
		)
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[auth.Role(role)] = int(n)
	}
	return counts, rows.Err()
}
