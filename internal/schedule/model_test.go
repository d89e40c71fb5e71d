package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateValidate(t *testing.T) {
	valid := DefaultTemplate(uuid.New())
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Template)
	}{
		{"missing doctor", func(t *Template) { t.DoctorID = uuid.Nil }},
		{"zero duration", func(t *Template) { t.SlotDurationMinutes = 0 }},
		{"huge duration", func(t *Template) { t.SlotDurationMinutes = MaxSlotDurationMinutes + 1 }},
		{"inverted day", func(t *Template) {
			t.WeeklyRules[time.Tuesday] = DayRule{OpensAt: NewClock(17, 0), ClosesAt: NewClock(9, 0), IsOpen: true}
		}},
		{"empty day", func(t *Template) {
			t.WeeklyRules[time.Friday] = DayRule{OpensAt: NewClock(9, 0), ClosesAt: NewClock(9, 0), IsOpen: true}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := DefaultTemplate(uuid.New())
			tt.mutate(&tmpl)
			assert.ErrorIs(t, tmpl.Validate(), ErrInvalidTemplate)
		})
	}
}

func TestClosedDayMayBeInverted(t *testing.T) {
	tmpl := DefaultTemplate(uuid.New())
	tmpl.WeeklyRules[time.Sunday] = DayRule{OpensAt: NewClock(13, 0), ClosesAt: NewClock(9, 0)}
	assert.NoError(t, tmpl.Validate())
}

func TestWeeklyRulesJSON(t *testing.T) {
	var rules WeeklyRules
	err := json.Unmarshal([]byte(`{"Monday":{"opensAt":"08:00","closesAt":"12:00","isOpen":true}}`), &rules)
	require.NoError(t, err)

	assert.Equal(t, DayRule{OpensAt: NewClock(8, 0), ClosesAt: NewClock(12, 0), IsOpen: true}, rules[time.Monday])
	assert.False(t, rules[time.Tuesday].IsOpen)

	out, err := json.Marshal(rules)
	require.NoError(t, err)
	var decoded map[string]DayRule
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Len(t, decoded, 7)
	assert.True(t, decoded["monday"].IsOpen)

	err = json.Unmarshal([]byte(`{"funday":{}}`), &rules)
	assert.ErrorIs(t, err, ErrInvalidTemplate)
}
