package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/schedule"
)

// MemoryLedger is an in-process Ledger. The mutex makes the key check and
// the insert in ConditionalCreate one step.
type MemoryLedger struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]*Appointment
	scheduled    map[NaturalKey]uuid.UUID // natural key -> scheduled appointment id
	events       []EventLog
	now          func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		appointments: make(map[uuid.UUID]*Appointment),
		scheduled:    make(map[NaturalKey]uuid.UUID),
		now:          time.Now,
	}
}

func (l *MemoryLedger) QueryByDoctorAndDate(_ context.Context, doctorID uuid.UUID, date schedule.Date, status Status) ([]Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Appointment
	for _, a := range l.appointments {
		if a.DoctorID == doctorID && a.Date == date && a.Status == status {
			out = append(out, *a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (l *MemoryLedger) ConditionalCreate(_ context.Context, appt Appointment) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.scheduled[appt.Key()]; taken && appt.Status == StatusScheduled {
		return nil, ErrAlreadyExists
	}
	if _, dup := l.appointments[appt.ID]; dup {
		return nil, ErrAlreadyExists
	}

	stored := appt
	l.appointments[appt.ID] = &stored
	if appt.Status == StatusScheduled {
		l.scheduled[appt.Key()] = appt.ID
	}

	out := stored
	return &out, nil
}

func (l *MemoryLedger) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStaleState
	}
	if to == StatusScheduled {
		if holder, taken := l.scheduled[a.Key()]; taken && holder != id {
			return nil, ErrAlreadyExists
		}
		l.scheduled[a.Key()] = id
	} else if from == StatusScheduled {
		delete(l.scheduled, a.Key())
	}

	a.Status = to
	a.UpdatedAt = l.now().UTC()

	out := *a
	return &out, nil
}

func (l *MemoryLedger) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

func (l *MemoryLedger) List(_ context.Context, q Query) ([]Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []Appointment
	for _, a := range l.appointments {
		if q.DoctorID != uuid.Nil && a.DoctorID != q.DoctorID {
			continue
		}
		if q.PatientID != uuid.Nil && a.PatientID != q.PatientID {
			continue
		}
		if q.Status != "" && a.Status != q.Status {
			continue
		}
		matched = append(matched, *a)
	}
	sortAppointments(matched)

	if q.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (l *MemoryLedger) ListScheduledThrough(_ context.Context, through schedule.Date) ([]Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Appointment
	for _, id := range l.scheduled {
		a := l.appointments[id]
		if !a.Date.After(through) {
			out = append(out, *a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (l *MemoryLedger) CountByStatus(_ context.Context) (map[Status]int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[Status]int)
	for _, a := range l.appointments {
		counts[a.Status]++
	}
	return counts, nil
}

func (l *MemoryLedger) InsertEvent(_ context.Context, ev EventLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev.ID = int64(len(l.events) + 1)
	l.events = append(l.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (l *MemoryLedger) Events() []EventLog {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return append([]EventLog(nil), l.events...)
}

func sortAppointments(list []Appointment) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
