package config

import (
	"reflect"
	"sort"
	"strings"

	logx "ontime/pkg/logx"
)

// SummarizeChange returns the changed top-level sections plus structured
// attrs safe for logging (never the token).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.chat_id_set", newCfg.Telegram.ChatID != 0),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs,
				logx.Bool("notifier.enabled", n.Enabled),
				logx.Int("notifier.workers", n.Workers),
				logx.Int("notifier.rate_per_sec", n.RatePerSec),
			)
		}
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if s := newCfg.Storage; s != nil {
			attrs = append(attrs,
				logx.String("storage.driver", strings.TrimSpace(s.Driver)),
				logx.Bool("storage.path_set", strings.TrimSpace(s.Path) != ""),
			)
		}
	}

	if !reflect.DeepEqual(oldCfg.Prayer, newCfg.Prayer) {
		changed = append(changed, "prayer")
		attrs = append(attrs,
			logx.Bool("prayer.enabled", newCfg.Prayer.Enabled),
			logx.String("prayer.method", newCfg.Prayer.Method),
			logx.Int("prayer.window_days", newCfg.Prayer.WindowDays),
			logx.Int("prayer.reminders", len(newCfg.Prayer.Reminders)),
			logx.Bool("prayer.jumuah", newCfg.Prayer.Jumuah != nil && newCfg.Prayer.Jumuah.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Travel, newCfg.Travel) {
		changed = append(changed, "travel")
		attrs = append(attrs,
			logx.Bool("travel.enabled", newCfg.Travel.Enabled),
			logx.String("travel.override", newCfg.Travel.Override),
			logx.Bool("travel.home_set", newCfg.Travel.Home != nil),
			logx.Float64("travel.threshold_km", newCfg.Travel.ThresholdKm),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
