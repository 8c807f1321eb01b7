package reminder

import (
	"fmt"
	"time"

	"ontime/internal/alarms"
	"ontime/internal/praytimes"
)

// JumuahConfig covers the Friday congregational sessions. Slots are local
// clock times; a masjid may run more than one session.
type JumuahConfig struct {
	Enabled       bool
	Weeks         int // upcoming Fridays covered, default 4
	MinutesBefore int
	Slots         []string // "HH:MM"
	Sound         string
}

const (
	maxWeeks = 10
	maxSlots = 10
)

func (c JumuahConfig) withDefaults() JumuahConfig {
	if c.Weeks <= 0 {
		c.Weeks = 4
	}
	if c.Weeks > maxWeeks {
		c.Weeks = maxWeeks
	}
	if c.MinutesBefore <= 0 {
		c.MinutesBefore = 30
	}
	if len(c.Slots) > maxSlots {
		c.Slots = c.Slots[:maxSlots]
	}
	return c
}

// planWeekly materializes the Jumu'ah events: one per (week, slot) pair for
// the covered Fridays. Travel status has no effect here. Malformed slots are
// reported but do not fail the pass.
func planWeekly(now time.Time, cfg JumuahConfig, ch *Channels) ([]alarms.Event, []error) {
	var errs []error
	daysAhead := (int(time.Friday) - int(now.Weekday()) + 7) % 7
	y, m, d := now.Date()
	friday := time.Date(y, m, d+daysAhead, 0, 0, 0, 0, now.Location())

	events := make([]alarms.Event, 0, cfg.Weeks*len(cfg.Slots))
	for week := 0; week < cfg.Weeks; week++ {
		day := friday.AddDate(0, 0, week*7)
		for slot, hhmm := range cfg.Slots {
			hour, minute, err := parseSlot(hhmm)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			at := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
			firesAt := at.Add(-time.Duration(cfg.MinutesBefore) * time.Minute)
			if !firesAt.After(now) {
				continue
			}
			id, err := alarms.WeeklyEventID(week, slot)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			events = append(events, alarms.Event{
				ID:      id,
				FiresAt: firesAt,
				Title:   "Jumu'ah reminder",
				Body: fmt.Sprintf("Jumu'ah at %s on %s, in %d minutes.",
					at.Format("15:04"), at.Format("Monday, Jan 2"), cfg.MinutesBefore),
				Sound:     cfg.Sound,
				ChannelID: ch.Resolve(praytimes.Dhuhr, cfg.Sound),
			})
		}
	}
	return events, errs
}

func parseSlot(s string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("malformed time slot %q", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time slot %q out of range", s)
	}
	return hour, minute, nil
}
