package alarms

import (
	"fmt"

	"ontime/internal/praytimes"
)

// ID namespace convention. The full-cancel step of every reconcile pass
// decodes prayer identity from the numeric band, so allocation and decoding
// live here together and nowhere else.
//
//	prayer bands:  100..699, 100 wide per prayer (fajr=1 .. isha=6),
//	               sub-offset dayOffset*10 + {0=reminder, 1=atTime}
//	weekly band:   700..799, sub-offset weekOffset*10 + slotIndex
const (
	bandWidth      = 100
	maxDayOffset   = 9
	WeeklyBandBase = 700
	weeklyBandEnd  = 799
	maxWeekOffset  = 9
	maxSlotIndex   = 9
)

// PrayerEventID allocates the ID for one (prayer, dayOffset, kind) event.
func PrayerEventID(p praytimes.Prayer, dayOffset int, kind Kind) (int, error) {
	if p < praytimes.Fajr || p > praytimes.Isha {
		return 0, fmt.Errorf("prayer %d outside id namespace", int(p))
	}
	if dayOffset < 0 || dayOffset > maxDayOffset {
		return 0, fmt.Errorf("day offset %d outside id namespace (0..%d)", dayOffset, maxDayOffset)
	}
	if kind != KindReminder && kind != KindAtTime {
		return 0, fmt.Errorf("unknown event kind %d", int(kind))
	}
	return int(p)*bandWidth + dayOffset*10 + int(kind), nil
}

// DecodePrayerEventID is the inverse of PrayerEventID. ok is false for IDs
// outside the prayer bands.
func DecodePrayerEventID(id int) (p praytimes.Prayer, dayOffset int, kind Kind, ok bool) {
	if id < int(praytimes.Fajr)*bandWidth || id >= WeeklyBandBase {
		return 0, 0, 0, false
	}
	p = praytimes.Prayer(id / bandWidth)
	rem := id % bandWidth
	dayOffset = rem / 10
	k := rem % 10
	if k != int(KindReminder) && k != int(KindAtTime) {
		return 0, 0, 0, false
	}
	return p, dayOffset, Kind(k), true
}

// PrayerBand returns the inclusive ID range owned by one prayer.
func PrayerBand(p praytimes.Prayer) (lo, hi int) {
	lo = int(p) * bandWidth
	return lo, lo + bandWidth - 1
}

// WeeklyEventID allocates the ID for one (weekOffset, slot) weekly event.
func WeeklyEventID(weekOffset, slot int) (int, error) {
	if weekOffset < 0 || weekOffset > maxWeekOffset {
		return 0, fmt.Errorf("week offset %d outside id namespace (0..%d)", weekOffset, maxWeekOffset)
	}
	if slot < 0 || slot > maxSlotIndex {
		return 0, fmt.Errorf("slot index %d outside id namespace (0..%d)", slot, maxSlotIndex)
	}
	return WeeklyBandBase + weekOffset*10 + slot, nil
}

// DecodeWeeklyEventID is the inverse of WeeklyEventID.
func DecodeWeeklyEventID(id int) (weekOffset, slot int, ok bool) {
	if id < WeeklyBandBase || id > weeklyBandEnd {
		return 0, 0, false
	}
	rem := id - WeeklyBandBase
	return rem / 10, rem % 10, true
}

// PrayerBandIDs enumerates the whole inclusive band a prayer owns, not just
// the IDs the current codec allocates. The full-cancel step sweeps every ID
// in the band so stale entries from an older layout cannot survive a pass.
func PrayerBandIDs(p praytimes.Prayer) []int {
	lo, hi := PrayerBand(p)
	ids := make([]int, 0, hi-lo+1)
	for id := lo; id <= hi; id++ {
		ids = append(ids, id)
	}
	return ids
}

// WeeklyBandIDs enumerates every ID the weekly scheduler can own.
func WeeklyBandIDs() []int {
	ids := make([]int, 0, weeklyBandEnd-WeeklyBandBase+1)
	for id := WeeklyBandBase; id <= weeklyBandEnd; id++ {
		ids = append(ids, id)
	}
	return ids
}
