package app

import (
	"fmt"
	"time"

	"ontime/internal/config"
	"ontime/internal/geo"
	"ontime/internal/notifier"
	"ontime/internal/praytimes"
	"ontime/internal/reminder"
	"ontime/internal/storage"
	"ontime/internal/travel"
)

// The mappers translate the raw config blob into typed component configs.
// They double as the hot-reload validator: a blob that fails any mapper is
// rejected before commit.

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	if n == nil {
		return notifier.Config{Enabled: true}, nil
	}
	retryBase, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	dedupWindow, err := config.ParseDurationOrDefault("notifier.dedup_window", n.DedupWindow, time.Minute)
	if err != nil {
		return notifier.Config{}, err
	}
	if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: negative values are not allowed")
	}
	return notifier.Config{
		Enabled:       n.Enabled,
		Workers:       n.Workers,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMaxDelay,
		DedupWindow:   dedupWindow,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	s := cfg.Storage
	if s == nil {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: s.Driver, Path: s.Path, BusyTimeout: busy}, nil
}

func mapTravelSettings(t config.TravelConfig) (travel.Settings, error) {
	override, err := travel.ParseOverride(t.Override)
	if err != nil {
		return travel.Settings{}, fmt.Errorf("travel.override: %w", err)
	}
	if t.ThresholdKm < 0 {
		return travel.Settings{}, fmt.Errorf("travel.threshold_km must be >= 0")
	}
	if t.MaxTravelDays < 0 {
		return travel.Settings{}, fmt.Errorf("travel.max_travel_days must be >= 0")
	}
	s := travel.Settings{
		Enabled:             t.Enabled,
		Override:            override,
		DistanceThresholdKm: t.ThresholdKm,
		CombineDhuhrAsr:     t.CombineDhuhrAsr,
		CombineMaghribIsha:  t.CombineMaghribIsha,
		MaxTravelDays:       t.MaxTravelDays,
	}
	if t.Home != nil {
		s.HomeBase = &travel.HomeBase{
			Coordinates: geo.Coordinates{Lat: t.Home.Latitude, Lon: t.Home.Longitude},
			Name:        t.Home.Name,
		}
	}
	return s, nil
}

func mapReminderConfig(p config.PrayerConfig) (reminder.Config, error) {
	method, err := praytimes.ParseMethod(p.Method)
	if err != nil {
		return reminder.Config{}, fmt.Errorf("prayer.method: %w", err)
	}
	asr, err := praytimes.ParseAsrRule(p.AsrRule)
	if err != nil {
		return reminder.Config{}, fmt.Errorf("prayer.asr_rule: %w", err)
	}

	specs := reminder.DefaultSpecs()
	if len(p.Reminders) > 0 {
		specs = specs[:0]
		for i, rs := range p.Reminders {
			prayer, err := praytimes.ParsePrayer(rs.Prayer)
			if err != nil {
				return reminder.Config{}, fmt.Errorf("prayer.reminders[%d]: %w", i, err)
			}
			if rs.MinutesBefore < 0 {
				return reminder.Config{}, fmt.Errorf("prayer.reminders[%d].minutes_before must be >= 0", i)
			}
			enabled := rs.Enabled == nil || *rs.Enabled
			specs = append(specs, reminder.Spec{
				Prayer:        prayer,
				Enabled:       enabled,
				MinutesBefore: rs.MinutesBefore,
				AtPrayerTime:  rs.AtPrayerTime,
				Sound:         rs.Sound,
			})
		}
	}

	rcfg := reminder.Config{
		Enabled:    p.Enabled,
		WindowDays: p.WindowDays,
		Method:     method,
		AsrRule:    asr,
		Specs:      specs,
	}
	if j := p.Jumuah; j != nil {
		rcfg.Jumuah = reminder.JumuahConfig{
			Enabled:       j.Enabled,
			Weeks:         j.Weeks,
			MinutesBefore: j.MinutesBefore,
			Slots:         append([]string(nil), j.Slots...),
			Sound:         j.Sound,
		}
	}
	return rcfg, nil
}

// initialCoords returns the configured fallback location, if any.
func initialCoords(p config.PrayerConfig) *geo.Coordinates {
	if p.Latitude == nil || p.Longitude == nil {
		return nil
	}
	return &geo.Coordinates{Lat: *p.Latitude, Lon: *p.Longitude}
}

// deliveryChatID picks the reminder target: the explicit chat, else the
// first owner.
func deliveryChatID(t config.TelegramConfig) int64 {
	if t.ChatID != 0 {
		return t.ChatID
	}
	if len(t.OwnerUserIDs) > 0 {
		return t.OwnerUserIDs[0]
	}
	return 0
}
