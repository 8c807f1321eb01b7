package travel

import (
	"testing"
	"time"

	"ontime/internal/geo"
	logx "ontime/pkg/logx"
)

var (
	home = geo.Coordinates{Lat: -6.2088, Lon: 106.8456} // Jakarta
	// ~100 km east of home (1 degree of longitude near the equator is ~111 km
	// but at 0.9 degrees this is comfortably past the 88.7 km threshold).
	faraway = geo.Coordinates{Lat: -6.2088, Lon: 107.7456}
)

func baseSettings() Settings {
	return Settings{
		Enabled:  true,
		HomeBase: &HomeBase{Coordinates: home, Name: "Home"},
		Override: OverrideAuto,
	}
}

func newTestTracker(s Settings, now time.Time) *Tracker {
	tr := NewTracker(s, logx.Nop())
	tr.SetClock(func() time.Time { return now })
	return tr
}

func TestEvaluateAtHomeIsMonitoring(t *testing.T) {
	t.Parallel()
	st := Evaluate(baseSettings(), &home, Session{}, time.Now())
	if st.State != StateMonitoring {
		t.Fatalf("state = %s, want monitoring", st.State)
	}
	if st.IsTraveling || st.TravelPending {
		t.Fatalf("unexpected travel flags: %+v", st)
	}
	if st.DistanceFromHomeKm == nil || *st.DistanceFromHomeKm != 0 {
		t.Fatalf("distance = %v, want 0", st.DistanceFromHomeKm)
	}
}

func TestEvaluateFarFromHomeIsPending(t *testing.T) {
	t.Parallel()
	st := Evaluate(baseSettings(), &faraway, Session{}, time.Now())
	if st.State != StatePendingConfirmation {
		t.Fatalf("state = %s, want pending_confirmation", st.State)
	}
	if !st.TravelPending || st.IsTraveling {
		t.Fatalf("want pending only, got %+v", st)
	}
	if st.ShortenDhuhr || st.ShortenAsr || st.ShortenIsha {
		t.Fatal("pending state must suppress shortening")
	}
}

func TestEvaluateDismissedIsMonitoring(t *testing.T) {
	t.Parallel()
	st := Evaluate(baseSettings(), &faraway, Session{Dismissed: true}, time.Now())
	if st.State != StateMonitoring {
		t.Fatalf("state = %s, want monitoring after dismissal", st.State)
	}
}

func TestEvaluateDisabledOrNoHomeIsOff(t *testing.T) {
	t.Parallel()
	s := baseSettings()
	s.Enabled = false
	if st := Evaluate(s, &faraway, Session{}, time.Now()); st.State != StateOff {
		t.Fatalf("disabled: state = %s, want off", st.State)
	}
	s = baseSettings()
	s.HomeBase = nil
	if st := Evaluate(s, &faraway, Session{}, time.Now()); st.State != StateOff {
		t.Fatalf("no home: state = %s, want off", st.State)
	}
}

func TestEvaluateForcedOffReportsDistance(t *testing.T) {
	t.Parallel()
	s := baseSettings()
	s.Override = OverrideForceOff
	st := Evaluate(s, &faraway, Session{}, time.Now())
	if st.State != StateForcedOff || st.IsTraveling {
		t.Fatalf("state = %+v, want forced_off and not traveling", st)
	}
	if st.DistanceFromHomeKm == nil || *st.DistanceFromHomeKm < DefaultThresholdKm {
		t.Fatalf("distance should still be reported, got %v", st.DistanceFromHomeKm)
	}
}

func TestEvaluateForcedOnIgnoresDistance(t *testing.T) {
	t.Parallel()
	s := baseSettings()
	s.Override = OverrideForceOn
	s.CombineDhuhrAsr = true
	st := Evaluate(s, &home, Session{}, time.Now())
	if st.State != StateForcedOn || !st.IsTraveling {
		t.Fatalf("state = %+v, want forced_on traveling", st)
	}
	if st.IsAutoDetected {
		t.Fatal("forced travel must not be flagged auto-detected")
	}
	if !st.ShortenDhuhr || !st.ShortenAsr || !st.ShortenIsha {
		t.Fatalf("shortening flags wrong: %+v", st)
	}
	if !st.CombineDhuhrAsr || st.CombineMaghribIsha {
		t.Fatalf("combine flags should mirror settings: %+v", st)
	}
}

func TestConfirmFlowAndStartDate(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.April, 3, 15, 0, 0, 0, time.UTC)
	tr := newTestTracker(baseSettings(), now)
	tr.UpdateLocation(faraway)

	if st := tr.Status(); st.State != StatePendingConfirmation {
		t.Fatalf("pre-confirm state = %s", st.State)
	}

	tr.Confirm()
	st := tr.Status()
	if st.State != StateConfirmedTraveling || !st.IsTraveling || !st.IsAutoDetected {
		t.Fatalf("post-confirm status = %+v", st)
	}
	start := tr.Settings().TravelStartDate
	if start == nil || !start.Equal(time.Date(2026, time.April, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("travel start date = %v, want 2026-04-03", start)
	}
}

func TestAutoResetOnReturnHome(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.April, 3, 15, 0, 0, 0, time.UTC)
	tr := newTestTracker(baseSettings(), now)
	tr.UpdateLocation(faraway)
	tr.Confirm()

	tr.UpdateLocation(home)
	st := tr.Status()
	if st.IsTraveling {
		t.Fatalf("still traveling after return: %+v", st)
	}
	s := tr.Settings()
	if s.AutoConfirmed {
		t.Fatal("autoConfirmed not cleared after returning home")
	}
	if s.TravelStartDate != nil {
		t.Fatalf("travelStartDate should be cleared, got %v", s.TravelStartDate)
	}
}

func TestDismissIsSessionScoped(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tr := newTestTracker(baseSettings(), now)
	tr.UpdateLocation(faraway)
	tr.Dismiss()

	if st := tr.Status(); st.State != StateMonitoring {
		t.Fatalf("dismissed state = %s, want monitoring", st.State)
	}

	// Returning home clears the pending state and with it the dismissal, so
	// leaving again raises a fresh pending confirmation.
	tr.UpdateLocation(home)
	tr.UpdateLocation(faraway)
	if st := tr.Status(); st.State != StatePendingConfirmation {
		t.Fatalf("state after re-leaving = %s, want pending_confirmation", st.State)
	}
}

func TestExpiryByDuration(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	s := baseSettings()
	s.AutoConfirmed = true
	s.MaxTravelDays = 4
	s.TravelStartDate = &start

	fiveDaysLater := start.Add(5 * 24 * time.Hour)
	st := Evaluate(s, &faraway, Session{}, fiveDaysLater)
	if st.State != StateExpiredByDuration || st.IsTraveling {
		t.Fatalf("status = %+v, want expired and not traveling", st)
	}

	// Expiry suppresses the effect without erasing the setting: raising the
	// cap revives the confirmed state on the next evaluation.
	s.MaxTravelDays = 10
	st = Evaluate(s, &faraway, Session{}, fiveDaysLater)
	if st.State != StateConfirmedTraveling || !st.IsTraveling {
		t.Fatalf("status after raising cap = %+v, want confirmed_traveling", st)
	}
}

func TestClearHomeBaseVoidsConfirmation(t *testing.T) {
	t.Parallel()
	tr := newTestTracker(baseSettings(), time.Now())
	tr.UpdateLocation(faraway)
	tr.Confirm()

	tr.ClearHomeBase()
	if st := tr.Status(); st.State != StateOff {
		t.Fatalf("state = %s, want off", st.State)
	}
	if s := tr.Settings(); s.AutoConfirmed || s.TravelStartDate != nil {
		t.Fatalf("confirmation not voided: %+v", s)
	}
}

func TestOnChangeHookFires(t *testing.T) {
	t.Parallel()
	tr := newTestTracker(baseSettings(), time.Now())
	var last Status
	calls := 0
	tr.SetOnChange(func(st Status) { last = st; calls++ })

	tr.UpdateLocation(faraway)
	tr.Confirm()
	if calls != 2 {
		t.Fatalf("onChange calls = %d, want 2", calls)
	}
	if last.State != StateConfirmedTraveling {
		t.Fatalf("last status = %s", last.State)
	}
}
