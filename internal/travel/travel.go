package travel

import (
	"sync"
	"time"

	"ontime/internal/geo"
	logx "ontime/pkg/logx"
)

// Evaluate derives the travel status from settings, the current location and
// the session. Pure: no I/O, no failure modes. An absent home base is the
// Off state, not an error.
func Evaluate(s Settings, loc *geo.Coordinates, sess Session, now time.Time) Status {
	s = s.withDefaults()

	var dist *float64
	if s.HomeBase != nil && loc != nil {
		d := geo.DistanceKm(s.HomeBase.Coordinates, *loc)
		dist = &d
	}

	if !s.Enabled || s.HomeBase == nil {
		return Status{State: StateOff}
	}

	switch s.Override {
	case OverrideForceOff:
		return Status{State: StateForcedOff, DistanceFromHomeKm: dist}
	case OverrideForceOn:
		if expired(s, now) {
			return Status{State: StateExpiredByDuration, DistanceFromHomeKm: dist}
		}
		return travelingStatus(s, StateForcedOn, dist, false)
	}

	outside := dist != nil && *dist >= s.DistanceThresholdKm

	if outside && s.AutoConfirmed {
		if expired(s, now) {
			return Status{State: StateExpiredByDuration, DistanceFromHomeKm: dist}
		}
		return travelingStatus(s, StateConfirmedTraveling, dist, true)
	}
	if outside && !s.AutoConfirmed && !sess.Dismissed {
		return Status{State: StatePendingConfirmation, TravelPending: true, DistanceFromHomeKm: dist}
	}
	return Status{State: StateMonitoring, DistanceFromHomeKm: dist}
}

// expired reports whether the travel-duration cap suppresses travel effects.
// It only suppresses the effect; Override/AutoConfirmed stay untouched, so
// raising MaxTravelDays later revives the traveling state.
func expired(s Settings, now time.Time) bool {
	if s.MaxTravelDays <= 0 || s.TravelStartDate == nil {
		return false
	}
	return now.Sub(*s.TravelStartDate) > time.Duration(s.MaxTravelDays)*24*time.Hour
}

func travelingStatus(s Settings, state State, dist *float64, auto bool) Status {
	return Status{
		State:              state,
		IsTraveling:        true,
		DistanceFromHomeKm: dist,
		IsAutoDetected:     auto,
		ShortenDhuhr:       true,
		ShortenAsr:         true,
		ShortenIsha:        true,
		CombineDhuhrAsr:    s.CombineDhuhrAsr,
		CombineMaghribIsha: s.CombineMaghribIsha,
	}
}

// Tracker owns the travel settings, the last known location and the session
// flag, and re-derives Status on every read. All mutators are user- or
// config-triggered; the only data-triggered mutation is the auto-reset rule
// in UpdateLocation.
type Tracker struct {
	mu       sync.Mutex
	settings Settings
	location *geo.Coordinates
	sess     Session

	// wasOutside remembers whether the previous evaluation saw the user at or
	// beyond the threshold; the auto-reset rule fires on the outside→inside
	// edge only.
	wasOutside bool

	now      func() time.Time
	log      logx.Logger
	onChange func(Status)
}

func NewTracker(s Settings, log logx.Logger) *Tracker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Tracker{settings: s.withDefaults(), now: time.Now, log: log}
}

// SetClock replaces the time source (tests only).
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// SetOnChange installs a hook invoked (outside the lock) after every mutation
// that may have changed the derived status.
func (t *Tracker) SetOnChange(fn func(Status)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Status derives the current travel status.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *Tracker) statusLocked() Status {
	return Evaluate(t.settings, t.location, t.sess, t.now())
}

// Settings returns a copy of the current settings.
func (t *Tracker) Settings() Settings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings
}

// Location returns the last known location, if any.
func (t *Tracker) Location() *geo.Coordinates {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.location == nil {
		return nil
	}
	c := *t.location
	return &c
}

// ApplySettings replaces the persisted settings wholesale (config reload).
// Session state survives.
func (t *Tracker) ApplySettings(s Settings) {
	t.mutate(func() { t.settings = s.withDefaults() })
}

// UpdateLocation records a new live location and applies the auto-reset rule:
// when a confirmed traveler crosses back inside the threshold, the
// confirmation and start date are cleared so travel mode doesn't stick after
// returning home.
func (t *Tracker) UpdateLocation(c geo.Coordinates) {
	t.mutate(func() {
		t.location = &c
		s := t.settings.withDefaults()
		if s.HomeBase == nil {
			t.wasOutside = false
			return
		}
		d := geo.DistanceKm(s.HomeBase.Coordinates, c)
		outside := d >= s.DistanceThresholdKm
		if !outside {
			if t.settings.AutoConfirmed && t.wasOutside {
				t.settings.AutoConfirmed = false
				t.settings.TravelStartDate = nil
				t.log.Info("travel auto-reset: returned within threshold",
					logx.Float64("distance_km", d))
			}
			// Returning home clears the pending state, so the session
			// dismissal resets with it.
			t.sess.Dismissed = false
		}
		t.wasOutside = outside
	})
}

// Confirm accepts a pending automatic travel detection.
func (t *Tracker) Confirm() {
	t.mutate(func() {
		t.settings.AutoConfirmed = true
		if t.settings.TravelStartDate == nil {
			d := dateOnly(t.now())
			t.settings.TravelStartDate = &d
		}
		t.sess.Dismissed = false
	})
}

// Dismiss suppresses the current pending detection for this session only.
func (t *Tracker) Dismiss() {
	t.mutate(func() { t.sess.Dismissed = true })
}

// SetHomeBase pins a new home location.
func (t *Tracker) SetHomeBase(hb HomeBase) {
	t.mutate(func() {
		t.settings.HomeBase = &hb
		t.settings.AutoConfirmed = false
		t.settings.TravelStartDate = nil
		t.sess.Dismissed = false
		t.wasOutside = false
	})
}

// ClearHomeBase removes the home location, which also voids any automatic
// detection derived from it.
func (t *Tracker) ClearHomeBase() {
	t.mutate(func() {
		t.settings.HomeBase = nil
		t.settings.AutoConfirmed = false
		t.settings.TravelStartDate = nil
		t.sess.Dismissed = false
		t.wasOutside = false
	})
}

func (t *Tracker) SetEnabled(on bool) {
	t.mutate(func() { t.settings.Enabled = on })
}

// SetOverride switches the manual mode. Forcing travel on starts the travel
// clock if it isn't already running.
func (t *Tracker) SetOverride(o Override) {
	t.mutate(func() {
		t.settings.Override = o
		if o == OverrideForceOn && t.settings.TravelStartDate == nil {
			d := dateOnly(t.now())
			t.settings.TravelStartDate = &d
		}
	})
}

func (t *Tracker) SetCombineDhuhrAsr(on bool) {
	t.mutate(func() { t.settings.CombineDhuhrAsr = on })
}

func (t *Tracker) SetCombineMaghribIsha(on bool) {
	t.mutate(func() { t.settings.CombineMaghribIsha = on })
}

func (t *Tracker) SetMaxTravelDays(days int) {
	t.mutate(func() {
		if days < 0 {
			days = 0
		}
		t.settings.MaxTravelDays = days
	})
}

func (t *Tracker) mutate(fn func()) {
	t.mu.Lock()
	fn()
	st := t.statusLocked()
	hook := t.onChange
	t.mu.Unlock()
	if hook != nil {
		hook(st)
	}
}

func dateOnly(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}
