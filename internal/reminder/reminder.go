// Package reminder maintains the live set of scheduled prayer notifications.
// Every pass rebuilds the pending set from settings alone: cancel everything
// this package owns, then schedule the new generation. Stale entries cannot
// survive a pass, so the scheduler's store never needs to be trusted.
package reminder

import (
	"context"
	"fmt"
	"time"

	"ontime/internal/alarms"
	"ontime/internal/geo"
	"ontime/internal/praytimes"
	"ontime/internal/travel"
)

// Spec is the per-prayer notification settings.
type Spec struct {
	Prayer        praytimes.Prayer
	Enabled       bool
	MinutesBefore int  // 0 disables the advance reminder
	AtPrayerTime  bool // fire again at the prayer instant
	Sound         string
}

// Config is the scheduling slice of the settings blob.
type Config struct {
	Enabled    bool
	WindowDays int // consecutive days covered, default 7
	Method     praytimes.Method
	AsrRule    praytimes.AsrRule
	Specs      []Spec
	Jumuah     JumuahConfig
}

// The day offset encodes into a single digit of the event ID.
const maxWindowDays = 10

func (c Config) withDefaults() Config {
	if c.WindowDays <= 0 {
		c.WindowDays = 7
	}
	if c.WindowDays > maxWindowDays {
		c.WindowDays = maxWindowDays
	}
	if c.Method == "" {
		c.Method = praytimes.MethodMWL
	}
	c.Jumuah = c.Jumuah.withDefaults()
	return c
}

// DefaultSpecs enables the five fard prayers with a 15 minute lead and the
// at-time alert; sunrise is informational only.
func DefaultSpecs() []Spec {
	specs := make([]Spec, 0, len(praytimes.Daily))
	for _, p := range praytimes.Daily {
		s := Spec{Prayer: p, Enabled: p != praytimes.Sunrise, MinutesBefore: 15, AtPrayerTime: true}
		if p == praytimes.Sunrise {
			s.MinutesBefore = 0
			s.AtPrayerTime = false
		}
		specs = append(specs, s)
	}
	return specs
}

// planDaily materializes the prayer events for the covered window. Instants
// already past at plan time are dropped, never fired retroactively.
func planDaily(ctx context.Context, now time.Time, coords geo.Coordinates, cfg Config, src praytimes.Source, ch *Channels, st travel.Status) ([]alarms.Event, error) {
	events := make([]alarms.Event, 0, cfg.WindowDays*len(cfg.Specs)*2)
	for day := 0; day < cfg.WindowDays; day++ {
		date := now.AddDate(0, 0, day)
		times, err := src.Times(ctx, coords, date, cfg.Method, cfg.AsrRule)
		if err != nil {
			return nil, fmt.Errorf("prayer times for %s: %w", date.Format("2006-01-02"), err)
		}
		byPrayer := make(map[praytimes.Prayer]time.Time, len(times))
		for _, in := range times {
			byPrayer[in.Prayer] = in.At
		}
		for _, spec := range cfg.Specs {
			if !spec.Enabled {
				continue
			}
			instant, ok := byPrayer[spec.Prayer]
			if !ok {
				continue
			}
			channel := ch.Resolve(spec.Prayer, spec.Sound)
			if spec.MinutesBefore > 0 {
				firesAt := instant.Add(-time.Duration(spec.MinutesBefore) * time.Minute)
				if firesAt.After(now) {
					id, err := alarms.PrayerEventID(spec.Prayer, day, alarms.KindReminder)
					if err != nil {
						return nil, err
					}
					title, body := reminderText(spec.Prayer, instant, spec.MinutesBefore, st)
					events = append(events, alarms.Event{
						ID: id, FiresAt: firesAt, Title: title, Body: body,
						Sound: spec.Sound, ChannelID: channel,
					})
				}
			}
			if spec.AtPrayerTime && instant.After(now) {
				id, err := alarms.PrayerEventID(spec.Prayer, day, alarms.KindAtTime)
				if err != nil {
					return nil, err
				}
				title, body := atTimeText(spec.Prayer, instant, st)
				events = append(events, alarms.Event{
					ID: id, FiresAt: instant, Title: title, Body: body,
					Sound: spec.Sound, ChannelID: channel,
				})
			}
		}
	}
	return events, nil
}

func reminderText(p praytimes.Prayer, instant time.Time, minutes int, st travel.Status) (title, body string) {
	title = p.Title() + " reminder"
	body = fmt.Sprintf("%s at %s, in %d minutes.%s", p.Title(), instant.Format("15:04"), minutes, travelNote(p, st))
	return title, body
}

func atTimeText(p praytimes.Prayer, instant time.Time, st travel.Status) (title, body string) {
	title = p.Title()
	body = fmt.Sprintf("It is time for %s (%s).%s", p.Title(), instant.Format("15:04"), travelNote(p, st))
	return title, body
}

// travelNote annotates the body while traveling. The event set itself is not
// changed by travel status; combining only affects the wording.
func travelNote(p praytimes.Prayer, st travel.Status) string {
	if !st.IsTraveling {
		return ""
	}
	switch p {
	case praytimes.Dhuhr:
		if st.CombineDhuhrAsr {
			return " Combined with Asr while traveling."
		}
		if st.ShortenDhuhr {
			return " Shortened to 2 rakaat while traveling."
		}
	case praytimes.Asr:
		if st.CombineDhuhrAsr {
			return " Combined with Dhuhr while traveling."
		}
		if st.ShortenAsr {
			return " Shortened to 2 rakaat while traveling."
		}
	case praytimes.Maghrib:
		if st.CombineMaghribIsha {
			return " Combined with Isha while traveling."
		}
	case praytimes.Isha:
		if st.CombineMaghribIsha {
			return " Combined with Maghrib while traveling."
		}
		if st.ShortenIsha {
			return " Shortened to 2 rakaat while traveling."
		}
	}
	return ""
}
