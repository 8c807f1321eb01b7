package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseStrictJSON(t *testing.T) {
	p := writeFile(t, "config.json", `{
		"telegram": {"token": "t", "owner_user_ids": [7], "chat_id": 7},
		"logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
		"prayer": {"enabled": true, "method": "mwl", "window_days": 7},
		"travel": {"enabled": true, "home": {"latitude": -6.2, "longitude": 106.8}}
	}`)
	cfg, err := NewManager(p).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.ChatID != 7 || cfg.Prayer.Method != "mwl" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Travel.Home == nil || cfg.Travel.Home.Latitude != -6.2 {
		t.Fatalf("home not decoded: %+v", cfg.Travel)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	p := writeFile(t, "config.json", `{"telegram": {"token": "t"}, "bogus": 1}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("unknown top-level key must be rejected")
	}

	p = writeFile(t, "config2.json", `{"prayer": {"enabled": true, "windowdays": 7}}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("misspelled nested key must be rejected")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	p := writeFile(t, "config.json", `{"prayer": {"enabled": true}} {"extra": true}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("trailing JSON must be rejected")
	}
}

func TestParseYAML(t *testing.T) {
	p := writeFile(t, "config.yaml", `
telegram:
  token: t
  owner_user_ids: [42]
prayer:
  enabled: true
  method: makkah
  asr_rule: hanafi
  reminders:
    - prayer: fajr
      minutes_before: 20
      at_prayer_time: true
      sound: athan_makkah
  jumuah:
    enabled: true
    slots: ["12:00", "13:00"]
travel:
  enabled: true
  override: auto
  threshold_km: 88.7
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
`)
	cfg, err := NewManager(p).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Prayer.Method != "makkah" || cfg.Prayer.AsrRule != "hanafi" {
		t.Fatalf("prayer section wrong: %+v", cfg.Prayer)
	}
	if len(cfg.Prayer.Reminders) != 1 || cfg.Prayer.Reminders[0].MinutesBefore != 20 {
		t.Fatalf("reminders wrong: %+v", cfg.Prayer.Reminders)
	}
	if cfg.Prayer.Jumuah == nil || len(cfg.Prayer.Jumuah.Slots) != 2 {
		t.Fatalf("jumuah wrong: %+v", cfg.Prayer.Jumuah)
	}
	if cfg.Travel.ThresholdKm != 88.7 {
		t.Fatalf("threshold = %v, want 88.7", cfg.Travel.ThresholdKm)
	}
}

func TestSubscribeDropsOldest(t *testing.T) {
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	a, b := &Config{}, &Config{Prayer: PrayerConfig{Enabled: true}}
	m.publish(a)
	m.publish(b) // buffer full: a is dropped, b delivered

	got := <-ch
	if !got.Prayer.Enabled {
		t.Fatal("subscriber must receive the newest snapshot")
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected second delivery: %+v", extra)
	default:
	}
}

func TestSummarizeChange(t *testing.T) {
	oldCfg := &Config{}
	newCfg := &Config{
		Prayer: PrayerConfig{Enabled: true, Method: "isna"},
		Travel: TravelConfig{Enabled: true, Override: "on"},
	}
	changed, _ := SummarizeChange(oldCfg, newCfg)
	want := []string{"prayer", "travel"}
	if len(changed) != len(want) || changed[0] != want[0] || changed[1] != want[1] {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
}
