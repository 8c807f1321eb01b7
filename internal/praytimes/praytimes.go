// Package praytimes computes the daily prayer timetable. The Source port is
// what the reminder engine consumes; SolarSource is the built-in
// implementation. Swapping in a remote timetable source only requires
// satisfying Source.
package praytimes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ontime/internal/geo"
)

// Prayer identifies one of the six fixed daily times. The numeric values are
// load-bearing: they seed the alarm ID bands (fajr=1 .. isha=6).
type Prayer int

const (
	Fajr Prayer = iota + 1
	Sunrise
	Dhuhr
	Asr
	Maghrib
	Isha
)

// Daily lists the six fixed times in chronological order.
var Daily = [6]Prayer{Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}

func (p Prayer) String() string {
	switch p {
	case Fajr:
		return "fajr"
	case Sunrise:
		return "sunrise"
	case Dhuhr:
		return "dhuhr"
	case Asr:
		return "asr"
	case Maghrib:
		return "maghrib"
	case Isha:
		return "isha"
	default:
		return fmt.Sprintf("prayer(%d)", int(p))
	}
}

// Title returns the display name used in reminder texts.
func (p Prayer) Title() string {
	s := p.String()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParsePrayer maps a config token to a Prayer.
func ParsePrayer(s string) (Prayer, error) {
	for _, p := range Daily {
		if strings.EqualFold(strings.TrimSpace(s), p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown prayer %q", s)
}

// AsrRule selects the shadow-length factor for Asr.
type AsrRule int

const (
	AsrStandard AsrRule = iota // shadow factor 1 (Shafi'i, Maliki, Hanbali)
	AsrHanafi                  // shadow factor 2
)

func ParseAsrRule(s string) (AsrRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "shafii":
		return AsrStandard, nil
	case "hanafi":
		return AsrHanafi, nil
	default:
		return 0, fmt.Errorf("unknown asr rule %q", s)
	}
}

// Method selects the fajr/isha twilight convention.
type Method string

const (
	MethodMWL     Method = "mwl"     // Muslim World League
	MethodISNA    Method = "isna"    // Islamic Society of North America
	MethodEgypt   Method = "egypt"   // Egyptian General Authority of Survey
	MethodMakkah  Method = "makkah"  // Umm al-Qura, Makkah
	MethodKarachi Method = "karachi" // University of Islamic Sciences, Karachi
)

type methodParams struct {
	fajrAngle float64
	ishaAngle float64
	// ishaAfterMaghrib, when > 0, replaces the isha angle with a fixed
	// offset from maghrib (Umm al-Qura convention).
	ishaAfterMaghrib time.Duration
}

var methods = map[Method]methodParams{
	MethodMWL:     {fajrAngle: 18, ishaAngle: 17},
	MethodISNA:    {fajrAngle: 15, ishaAngle: 15},
	MethodEgypt:   {fajrAngle: 19.5, ishaAngle: 17.5},
	MethodMakkah:  {fajrAngle: 18.5, ishaAfterMaghrib: 90 * time.Minute},
	MethodKarachi: {fajrAngle: 18, ishaAngle: 18},
}

func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return MethodMWL, nil
	}
	if _, ok := methods[m]; !ok {
		return "", fmt.Errorf("unknown calculation method %q", s)
	}
	return m, nil
}

// Instant is one prayer time on a concrete day.
type Instant struct {
	Prayer Prayer
	At     time.Time
}

// Source produces the ordered timetable for one calendar day.
// Implementations must return all six Daily prayers in chronological order.
type Source interface {
	Times(ctx context.Context, coords geo.Coordinates, date time.Time, method Method, asr AsrRule) ([]Instant, error)
}
