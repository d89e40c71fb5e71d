package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking/internal/schedule"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgLedger stores appointments in Postgres. Conditional create relies on
// the partial unique index appointments_natural_key_scheduled.
type PgLedger struct {
	db pgxQuerier
}

func NewPgLedger(pool *pgxpool.Pool) *PgLedger {
	if pool == nil {
		panic("appointment: pgx pool required")
	}
	return &PgLedger{db: pool}
}

func newPgLedgerWithExec(db pgxQuerier) *PgLedger {
	return &PgLedger{db: db}
}

const appointmentColumns = `id, doctor_id, patient_id,
		to_char(appointment_date, 'YYYY-MM-DD'), to_char(start_time, 'HH24:MI'),
		duration_minutes, status, reason, notes, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a           Appointment
		date, start string
	)

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&date,
		&start,
		&a.DurationMinutes,
		&a.Status,
		&a.Reason,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if a.Date, err = schedule.ParseDate(date); err != nil {
		return nil, fmt.Errorf("scan appointment %s: %w", a.ID, err)
	}
	if a.StartTime, err = schedule.ParseClock(start); err != nil {
		return nil, fmt.Errorf("scan appointment %s: %w", a.ID, err)
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return result, nil
}

// classify maps driver errors onto the ledger's sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return ErrAlreadyExists
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "40001",
			pgErr.Code == "40P01",
			pgErr.Code == "57P01":
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// Interface methods

func (l *PgLedger) QueryByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date schedule.Date, status Status) ([]Appointment, error) {
	rows, err := l.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2::date
		  AND status = $3
		ORDER BY start_time
	`, doctorID, date.String(), string(status))
	if err != nil {
		return nil, fmt.Errorf("query doctor day: %w", classify(err))
	}
	return collectAppointments(rows)
}

func (l *PgLedger) ConditionalCreate(ctx context.Context, appt Appointment) (*Appointment, error) {
	row := l.db.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, appointment_date, start_time,
		                          duration_minutes, status, reason, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4::date, $5::time, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (doctor_id, appointment_date, start_time) WHERE status = 'scheduled'
		DO NOTHING
		RETURNING `+appointmentColumns,
		appt.ID, appt.DoctorID, appt.PatientID, appt.Date.String(), appt.StartTime.String(),
		appt.DurationMinutes, string(appt.Status), appt.Reason, appt.Notes, appt.CreatedAt)

	created, err := scanAppointment(row)
	switch {
	case errors.Is(err, ErrAppointmentNotFound):
		// DO NOTHING fired: the natural key is held
		return nil, ErrAlreadyExists
	case err != nil:
		return nil, classify(err)
	}
	return created, nil
}

func (l *PgLedger) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := l.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns, id, string(to), string(from))

	updated, err := scanAppointment(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, classify(err)
	}

	var exists bool
	if err := l.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, classify(err)
	}
	if !exists {
		return nil, ErrAppointmentNotFound
	}
	return nil, ErrStaleState
}

func (l *PgLedger) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := l.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	a, err := scanAppointment(row)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return nil, classify(err)
	}
	return a, err
}

func (l *PgLedger) List(ctx context.Context, q Query) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	if q.DoctorID != uuid.Nil {
		args = append(args, q.DoctorID)
		where = append(where, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if q.PatientID != uuid.Nil {
		args = append(args, q.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if q.Status != "" {
		args = append(args, string(q.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	sql := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, q.Limit, q.Offset)
	sql += fmt.Sprintf(" ORDER BY appointment_date, start_time, created_at LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := l.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", classify(err))
	}
	return collectAppointments(rows)
}

func (l *PgLedger) ListScheduledThrough(ctx context.Context, through schedule.Date) ([]Appointment, error) {
	rows, err := l.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND appointment_date <= $1::date
		ORDER BY appointment_date, start_time
	`, through.String())
	if err != nil {
		return nil, fmt.Errorf("list scheduled: %w", classify(err))
	}
	return collectAppointments(rows)
}

func (l *PgLedger) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := l.db.Query(ctx, `SELECT status, count(*) FROM appointments GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count appointments: %w", classify(err))
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Status(status)] = int(n)
	}
	return counts, rows.Err()
}

func (l *PgLedger) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
