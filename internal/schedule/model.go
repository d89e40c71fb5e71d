package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTemplateNotFound = errors.New("schedule template not found")
	ErrInvalidTemplate  = errors.New("invalid schedule template")
	ErrNotTemplateOwner = errors.New("only the doctor may change their schedule")
)

const MaxSlotDurationMinutes = 240

// DayRule is the availability of one weekday.
type DayRule struct {
	OpensAt  Clock `json:"opensAt"`
	ClosesAt Clock `json:"closesAt"`
	IsOpen   bool  `json:"isOpen"`
}

// WeeklyRules is indexed by time.Weekday and encodes as an object keyed
// by lower-case day name. Days missing from the JSON are closed.
type WeeklyRules [7]DayRule

var dayNames = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func (w WeeklyRules) MarshalJSON() ([]byte, error) {
	m := make(map[string]DayRule, len(dayNames))
	for i, name := range dayNames {
		m[name] = w[i]
	}
	return json.Marshal(m)
}

func (w *WeeklyRules) UnmarshalJSON(b []byte) error {
	var m map[string]DayRule
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	var out WeeklyRules
	for key, rule := range m {
		idx := -1
		for i, name := range dayNames {
			if strings.EqualFold(key, name) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: unknown weekday %q", ErrInvalidTemplate, key)
		}
		out[idx] = rule
	}
	*w = out
	return nil
}

// Template is a doctor's recurring weekly availability.
type Template struct {
	DoctorID            uuid.UUID   `json:"doctorId"`
	WeeklyRules         WeeklyRules `json:"weeklyRules"`
	SlotDurationMinutes int         `json:"slotDurationMinutes"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

// DefaultTemplate mirrors the form defaults doctors start from:
// weekdays 09:00-17:00, weekends closed, 30 minute slots.
func DefaultTemplate(doctorID uuid.UUID) Template {
	t := Template{DoctorID: doctorID, SlotDurationMinutes: 30}
	for d := time.Sunday; d <= time.Saturday; d++ {
		switch d {
		case time.Saturday, time.Sunday:
			t.WeeklyRules[d] = DayRule{OpensAt: NewClock(9, 0), ClosesAt: NewClock(13, 0)}
		default:
			t.WeeklyRules[d] = DayRule{OpensAt: NewClock(9, 0), ClosesAt: NewClock(17, 0), IsOpen: true}
		}
	}
	return t
}

func (t Template) Rule(day time.Weekday) DayRule {
	return t.WeeklyRules[day]
}

func (t Template) Validate() error {
	if t.DoctorID == uuid.Nil {
		return fmt.Errorf("%w: doctor id is required", ErrInvalidTemplate)
	}
	if t.SlotDurationMinutes <= 0 || t.SlotDurationMinutes > MaxSlotDurationMinutes {
		return fmt.Errorf("%w: slot duration must be between 1 and %d minutes", ErrInvalidTemplate, MaxSlotDurationMinutes)
	}
	for day, rule := range t.WeeklyRules {
		if !rule.IsOpen {
			continue
		}
		if !rule.OpensAt.Valid() || !rule.ClosesAt.Valid() {
			return fmt.Errorf("%w: %s has an out of range time", ErrInvalidTemplate, dayNames[day])
		}
		if rule.OpensAt >= rule.ClosesAt {
			return fmt.Errorf("%w: %s opens at %s but closes at %s", ErrInvalidTemplate, dayNames[day], rule.OpensAt, rule.ClosesAt)
		}
	}
	return nil
}
