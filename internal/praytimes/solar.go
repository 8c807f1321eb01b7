package praytimes

import (
	"context"
	"fmt"
	"math"
	"time"

	"ontime/internal/geo"
)

// SolarSource computes prayer times from the sun's position. It is a
// self-contained implementation of the widely used twilight-angle algorithm;
// accuracy is within a minute or two of published timetables, which is enough
// for reminders.
type SolarSource struct{}

func NewSolarSource() *SolarSource { return &SolarSource{} }

// Times implements Source. The returned instants live in date's location and
// fall on date's calendar day (clock times computed in UTC and converted).
func (s *SolarSource) Times(_ context.Context, coords geo.Coordinates, date time.Time, method Method, asr AsrRule) ([]Instant, error) {
	params, ok := methods[method]
	if !ok {
		return nil, fmt.Errorf("unknown calculation method %q", method)
	}

	y, m, d := date.Date()
	jd := julianDay(y, int(m), d)
	// Sun position evaluated once near local solar noon; the drift across the
	// day is below the accuracy we need.
	decl, eqt := sunPosition(jd + 0.5 - coords.Lon/360)

	noon := fixHour(12 - coords.Lon/15 - eqt) // UTC fractional hours

	hourAngleAt := func(angle float64) (float64, bool) {
		cosHA := (-sinDeg(angle) - sinDeg(decl)*sinDeg(coords.Lat)) /
			(cosDeg(decl) * cosDeg(coords.Lat))
		if cosHA < -1 || cosHA > 1 {
			return 0, false // perpetual day/night at this latitude
		}
		return radToDeg(math.Acos(cosHA)) / 15, true
	}

	shadow := 1.0
	if asr == AsrHanafi {
		shadow = 2.0
	}
	asrAltitude := -radToDeg(math.Atan(1 / (shadow + tanDeg(math.Abs(coords.Lat-decl)))))

	type slot struct {
		prayer Prayer
		angle  float64
		before bool // before solar noon
	}
	slots := []slot{
		{Fajr, params.fajrAngle, true},
		{Sunrise, 0.833, true},
		{Dhuhr, 0, false},
		{Asr, asrAltitude, false},
		{Maghrib, 0.833, false},
		{Isha, params.ishaAngle, false},
	}

	hours := make(map[Prayer]float64, len(slots))
	for _, sl := range slots {
		if sl.prayer == Dhuhr {
			hours[Dhuhr] = noon
			continue
		}
		if sl.prayer == Isha && params.ishaAfterMaghrib > 0 {
			continue // derived from maghrib below
		}
		ha, ok := hourAngleAt(sl.angle)
		if !ok {
			return nil, fmt.Errorf("no %s time at latitude %.2f on %04d-%02d-%02d",
				sl.prayer, coords.Lat, y, m, d)
		}
		if sl.before {
			hours[sl.prayer] = noon - ha
		} else {
			hours[sl.prayer] = noon + ha
		}
	}
	if params.ishaAfterMaghrib > 0 {
		hours[Isha] = hours[Maghrib] + params.ishaAfterMaghrib.Hours()
	}

	loc := date.Location()
	out := make([]Instant, 0, len(Daily))
	for _, p := range Daily {
		h := hours[p]
		sec := int(math.Round(h * 3600))
		// time.Date normalizes out-of-range components, so hours < 0 or >= 24
		// (longitudes near the date line) land on the right absolute instant.
		at := time.Date(y, m, d, 0, 0, sec, 0, time.UTC).In(loc)
		out = append(out, Instant{Prayer: p, At: at})
	}
	return out, nil
}

// julianDay converts a calendar date to the Julian day number at 00:00 UT.
func julianDay(year, month, day int) float64 {
	if month <= 2 {
		year--
		month += 12
	}
	a := math.Floor(float64(year) / 100)
	b := 2 - a + math.Floor(a/4)
	return math.Floor(365.25*float64(year+4716)) +
		math.Floor(30.6001*float64(month+1)) +
		float64(day) + b - 1524.5
}

// sunPosition returns the sun's declination (degrees) and the equation of
// time (fractional hours) for the given Julian day.
func sunPosition(jd float64) (decl, eqt float64) {
	d := jd - 2451545.0
	g := fixAngle(357.529 + 0.98560028*d)
	q := fixAngle(280.459 + 0.98564736*d)
	l := fixAngle(q + 1.915*sinDeg(g) + 0.020*sinDeg(2*g))
	e := 23.439 - 0.00000036*d

	decl = radToDeg(math.Asin(sinDeg(e) * sinDeg(l)))
	ra := radToDeg(math.Atan2(cosDeg(e)*sinDeg(l), cosDeg(l))) / 15
	eqt = q/15 - fixHour(ra)
	return decl, eqt
}

func fixAngle(a float64) float64 { return fix(a, 360) }
func fixHour(h float64) float64  { return fix(h, 24) }

func fix(v, mod float64) float64 {
	v = math.Mod(v, mod)
	if v < 0 {
		v += mod
	}
	return v
}

func sinDeg(d float64) float64 { return math.Sin(d * math.Pi / 180) }
func cosDeg(d float64) float64 { return math.Cos(d * math.Pi / 180) }
func tanDeg(d float64) float64 { return math.Tan(d * math.Pi / 180) }
func radToDeg(r float64) float64 {
	return r * 180 / math.Pi
}
