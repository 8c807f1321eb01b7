package reminder

import (
	"context"
	"testing"

	"ontime/internal/praytimes"
	logx "ontime/pkg/logx"
)

func TestResolvePrecedence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ch := NewChannels(nil, logx.Nop())
	if err := ch.Register(ctx, "adhan_makkah", "ch_makkah"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := ch.Register(ctx, "adhan_empty", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	ch.SetDefault("ch_default")
	ch.SetPrayerChannel(praytimes.Fajr, "ch_fajr")

	cases := []struct {
		name   string
		prayer praytimes.Prayer
		sound  string
		want   string
	}{
		{"asset channel wins", praytimes.Dhuhr, "adhan_makkah", "ch_makkah"},
		{"asset beats prayer override", praytimes.Fajr, "adhan_makkah", "ch_makkah"},
		{"prayer override when no asset", praytimes.Fajr, "", "ch_fajr"},
		{"unknown asset falls to prayer override", praytimes.Fajr, "missing", "ch_fajr"},
		{"default when nothing else matches", praytimes.Isha, "", "ch_default"},
		{"unknown asset falls to default", praytimes.Asr, "missing", "ch_default"},
		{"empty asset binding falls through", praytimes.Maghrib, "adhan_empty", "ch_default"},
	}
	for _, tc := range cases {
		if got := ch.Resolve(tc.prayer, tc.sound); got != tc.want {
			t.Errorf("%s: Resolve(%s, %q) = %q, want %q", tc.name, tc.prayer, tc.sound, got, tc.want)
		}
	}
}

func TestResolveDegradesToSystemSound(t *testing.T) {
	t.Parallel()
	ch := NewChannels(nil, logx.Nop())
	if got := ch.Resolve(praytimes.Dhuhr, "missing"); got != "" {
		t.Fatalf("Resolve on empty registry = %q, want system default", got)
	}
}

func TestRemoveAndClearOverride(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ch := NewChannels(nil, logx.Nop())
	if err := ch.Register(ctx, "adhan_fajr", "ch_a"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	ch.SetPrayerChannel(praytimes.Fajr, "ch_b")

	if err := ch.Remove(ctx, "adhan_fajr"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := ch.Resolve(praytimes.Fajr, "adhan_fajr"); got != "ch_b" {
		t.Fatalf("after Remove, Resolve = %q, want the prayer override", got)
	}

	ch.SetPrayerChannel(praytimes.Fajr, "")
	if got := ch.Resolve(praytimes.Fajr, ""); got != "" {
		t.Fatalf("after clearing the override, Resolve = %q, want system default", got)
	}
}
