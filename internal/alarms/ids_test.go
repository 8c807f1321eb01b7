package alarms

import (
	"testing"

	"ontime/internal/praytimes"
)

func TestPrayerEventIDRoundTrip(t *testing.T) {
	t.Parallel()
	for _, p := range praytimes.Daily {
		for day := 0; day <= 9; day++ {
			for _, k := range []Kind{KindReminder, KindAtTime} {
				id, err := PrayerEventID(p, day, k)
				if err != nil {
					t.Fatalf("PrayerEventID(%s,%d,%s): %v", p, day, k, err)
				}
				lo, hi := PrayerBand(p)
				if id < lo || id > hi {
					t.Fatalf("id %d outside band [%d,%d] for %s", id, lo, hi, p)
				}
				gp, gd, gk, ok := DecodePrayerEventID(id)
				if !ok || gp != p || gd != day || gk != k {
					t.Fatalf("decode(%d) = %s,%d,%s,%v; want %s,%d,%s", id, gp, gd, gk, ok, p, day, k)
				}
			}
		}
	}
}

func TestPrayerBandRanges(t *testing.T) {
	t.Parallel()
	if lo, hi := PrayerBand(praytimes.Fajr); lo != 100 || hi != 199 {
		t.Fatalf("fajr band = [%d,%d], want [100,199]", lo, hi)
	}
	if lo, hi := PrayerBand(praytimes.Isha); lo != 600 || hi != 699 {
		t.Fatalf("isha band = [%d,%d], want [600,699]", lo, hi)
	}
}

func TestWeeklyEventIDRoundTrip(t *testing.T) {
	t.Parallel()
	for week := 0; week <= 9; week++ {
		for slot := 0; slot <= 9; slot++ {
			id, err := WeeklyEventID(week, slot)
			if err != nil {
				t.Fatalf("WeeklyEventID(%d,%d): %v", week, slot, err)
			}
			if id < 700 || id > 799 {
				t.Fatalf("weekly id %d outside [700,799]", id)
			}
			gw, gs, ok := DecodeWeeklyEventID(id)
			if !ok || gw != week || gs != slot {
				t.Fatalf("decode(%d) = %d,%d,%v; want %d,%d", id, gw, gs, ok, week, slot)
			}
		}
	}
}

func TestPrayerBandIDsCoverWholeBand(t *testing.T) {
	t.Parallel()
	for _, p := range praytimes.Daily {
		lo, hi := PrayerBand(p)
		ids := PrayerBandIDs(p)
		if len(ids) != hi-lo+1 {
			t.Fatalf("%s band sweep = %d ids, want %d", p, len(ids), hi-lo+1)
		}
		seen := map[int]bool{}
		for _, id := range ids {
			seen[id] = true
		}
		// Every ID in the band is swept, including ones the codec never
		// allocates; a stale entry like fajr+23 must not outlive a cancel.
		for id := lo; id <= hi; id++ {
			if !seen[id] {
				t.Fatalf("%s band sweep misses id %d", p, id)
			}
		}
	}
}

func TestBandsAreDisjoint(t *testing.T) {
	t.Parallel()
	seen := map[int]string{}
	for _, p := range praytimes.Daily {
		for _, id := range PrayerBandIDs(p) {
			if prev, dup := seen[id]; dup {
				t.Fatalf("id %d allocated twice (%s and %s)", id, prev, p)
			}
			seen[id] = p.String()
		}
	}
	for _, id := range WeeklyBandIDs() {
		if prev, dup := seen[id]; dup {
			t.Fatalf("weekly id %d collides with %s", id, prev)
		}
		seen[id] = "weekly"
	}
}

func TestEventIDValidation(t *testing.T) {
	t.Parallel()
	if _, err := PrayerEventID(praytimes.Fajr, 10, KindReminder); err == nil {
		t.Fatal("day offset 10 should be rejected")
	}
	if _, err := PrayerEventID(praytimes.Prayer(7), 0, KindReminder); err == nil {
		t.Fatal("prayer 7 should be rejected")
	}
	if _, err := WeeklyEventID(0, 10); err == nil {
		t.Fatal("slot 10 should be rejected")
	}
	if _, _, _, ok := DecodePrayerEventID(700); ok {
		t.Fatal("700 is the weekly band, not a prayer id")
	}
	if _, _, ok := DecodeWeeklyEventID(699); ok {
		t.Fatal("699 is a prayer id, not weekly")
	}
}
