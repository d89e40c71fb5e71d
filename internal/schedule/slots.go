package schedule

// GenerateSlots lists the bookable start times for date in ascending order.
// A trailing interval shorter than the slot duration is dropped.
func GenerateSlots(t Template, date Date) []Clock {
	rule := t.Rule(date.Weekday())
	dur := t.SlotDurationMinutes
	if !rule.IsOpen || dur <= 0 || rule.OpensAt >= rule.ClosesAt {
		return []Clock{}
	}

	slots := make([]Clock, 0, int(rule.ClosesAt-rule.OpensAt)/dur)
	for start := rule.OpensAt; start.Add(dur) <= rule.ClosesAt; start = start.Add(dur) {
		slots = append(slots, start)
	}
	return slots
}

// IsSlot reports whether GenerateSlots(t, date) would contain start.
func IsSlot(t Template, date Date, start Clock) bool {
	rule := t.Rule(date.Weekday())
	dur := t.SlotDurationMinutes
	if !rule.IsOpen || dur <= 0 {
		return false
	}
	if start < rule.OpensAt || start.Add(dur) > rule.ClosesAt {
		return false
	}
	return int(start-rule.OpensAt)%dur == 0
}
