package config

// Config is the on-disk settings blob. One file carries everything: the chat
// transport, logging, the delivery pipeline, persistence, the prayer
// schedule, and travel mode.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Notifier controls the async delivery pipeline. If the whole section is
	// omitted the pipeline runs with defaults.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	// Storage controls the optional persistence layer (fired-reminder audit,
	// dedup windows, channel registry). Nil means disabled.
	Storage *StorageConfig `json:"storage,omitempty"`

	Prayer PrayerConfig `json:"prayer"`
	Travel TravelConfig `json:"travel"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// ChatID is the delivery target for reminders. Defaults to the first
	// owner when omitted.
	ChatID int64 `json:"chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// NotifierConfig mirrors notifier.Config with durations as Go duration
// strings (e.g. "500ms", "10s", "1m").
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	DedupWindow   string `json:"dedup_window,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./ontime_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PrayerConfig is the scheduling slice of the blob.
type PrayerConfig struct {
	Enabled    bool   `json:"enabled"`
	Method     string `json:"method,omitempty"`   // mwl, isna, egypt, makkah, karachi
	AsrRule    string `json:"asr_rule,omitempty"` // standard, hanafi
	WindowDays int    `json:"window_days,omitempty"`

	// Fallback coordinates used until a location update arrives.
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	Reminders []ReminderSpec `json:"reminders,omitempty"`
	Jumuah    *JumuahConfig  `json:"jumuah,omitempty"`

	// DefaultChannel and FajrChannel feed the sound-channel registry.
	DefaultChannel string `json:"default_channel,omitempty"`
	FajrChannel    string `json:"fajr_channel,omitempty"`

	// AlarmsGranted models the host permission gate. Nil means granted.
	AlarmsGranted *bool `json:"alarms_granted,omitempty"`
}

// ReminderSpec configures one prayer's notifications. Enabled is a pointer so
// an omitted field defaults to true for the listed prayer.
type ReminderSpec struct {
	Prayer        string `json:"prayer"`
	Enabled       *bool  `json:"enabled,omitempty"`
	MinutesBefore int    `json:"minutes_before,omitempty"`
	AtPrayerTime  bool   `json:"at_prayer_time,omitempty"`
	Sound         string `json:"sound,omitempty"`
}

type JumuahConfig struct {
	Enabled       bool     `json:"enabled"`
	Weeks         int      `json:"weeks,omitempty"`
	MinutesBefore int      `json:"minutes_before,omitempty"`
	Slots         []string `json:"slots,omitempty"` // "HH:MM" local times
	Sound         string   `json:"sound,omitempty"`
}

type TravelConfig struct {
	Enabled            bool        `json:"enabled"`
	Override           string      `json:"override,omitempty"` // auto, on, off
	ThresholdKm        float64     `json:"threshold_km,omitempty"`
	Home               *HomeConfig `json:"home,omitempty"`
	CombineDhuhrAsr    bool        `json:"combine_dhuhr_asr,omitempty"`
	CombineMaghribIsha bool        `json:"combine_maghrib_isha,omitempty"`
	MaxTravelDays      int         `json:"max_travel_days,omitempty"`
}

type HomeConfig struct {
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
