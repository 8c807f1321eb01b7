package reminder

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"ontime/internal/alarms"
	"ontime/internal/geo"
	"ontime/internal/praytimes"
	"ontime/internal/travel"
	logx "ontime/pkg/logx"
)

// fakeSource returns the same clock times every day so windows are easy to
// reason about.
type fakeSource struct{}

func (fakeSource) Times(_ context.Context, _ geo.Coordinates, date time.Time, _ praytimes.Method, _ praytimes.AsrRule) ([]praytimes.Instant, error) {
	at := func(h, m int) time.Time {
		return time.Date(date.Year(), date.Month(), date.Day(), h, m, 0, 0, date.Location())
	}
	return []praytimes.Instant{
		{Prayer: praytimes.Fajr, At: at(5, 0)},
		{Prayer: praytimes.Sunrise, At: at(6, 15)},
		{Prayer: praytimes.Dhuhr, At: at(12, 0)},
		{Prayer: praytimes.Asr, At: at(15, 15)},
		{Prayer: praytimes.Maghrib, At: at(18, 0)},
		{Prayer: praytimes.Isha, At: at(19, 30)},
	}, nil
}

// blockingSource parks every Times call until released so a pass can be held
// in flight from the test.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func newBlockingSource() *blockingSource {
	return &blockingSource{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (b *blockingSource) Times(ctx context.Context, c geo.Coordinates, date time.Time, m praytimes.Method, r praytimes.AsrRule) ([]praytimes.Instant, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.entered <- struct{}{}
	<-b.release
	return fakeSource{}.Times(ctx, c, date, m, r)
}

func (b *blockingSource) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type failingSource struct{}

func (failingSource) Times(context.Context, geo.Coordinates, time.Time, praytimes.Method, praytimes.AsrRule) ([]praytimes.Instant, error) {
	return nil, errors.New("timetable unavailable")
}

type fakeSched struct {
	mu           sync.Mutex
	pending      map[int]alarms.Event
	cancels      int
	schedules    int
	ops          []string
	failCancel   bool
	failSchedule bool
}

func newFakeSched() *fakeSched {
	return &fakeSched{pending: map[int]alarms.Event{}}
}

func (f *fakeSched) Schedule(_ context.Context, events []alarms.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules++
	f.ops = append(f.ops, "schedule")
	if f.failSchedule {
		return errors.New("scheduling service down")
	}
	for _, ev := range events {
		f.pending[ev.ID] = ev
	}
	return nil
}

func (f *fakeSched) Cancel(_ context.Context, ids []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	f.ops = append(f.ops, "cancel")
	if f.failCancel {
		return errors.New("scheduling service down")
	}
	for _, id := range ids {
		delete(f.pending, id)
	}
	return nil
}

func (f *fakeSched) ListPending(context.Context) ([]alarms.Pending, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]alarms.Pending, 0, len(f.pending))
	for id, ev := range f.pending {
		out = append(out, alarms.Pending{ID: id, FiresAt: ev.FiresAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeSched) ids() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int, 0, len(f.pending))
	for id := range f.pending {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (f *fakeSched) event(id int) (alarms.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.pending[id]
	return ev, ok
}

// Tuesday morning, well clear of any window edge.
var testNow = time.Date(2026, time.January, 6, 10, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, cfg Config, src praytimes.Source, sched alarms.Scheduler, gate alarms.PermissionGate) (*Engine, *travel.Tracker) {
	t.Helper()
	tr := travel.NewTracker(travel.Settings{}, logx.Nop())
	tr.SetClock(func() time.Time { return testNow })
	tr.UpdateLocation(geo.Coordinates{Lat: -6.2088, Lon: 106.8456})
	ch := NewChannels(nil, logx.Nop())
	e := NewEngine(cfg, src, sched, gate, ch, tr, logx.Nop(), nil)
	e.SetClock(func() time.Time { return testNow })
	return e, tr
}

func TestReconcileBuildsWindow(t *testing.T) {
	sched := newFakeSched()
	e, _ := newTestEngine(t, Config{Enabled: true, Specs: DefaultSpecs()}, fakeSource{}, sched, nil)

	if err := e.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	// Day 0 at 10:00: fajr already past, the other four fard prayers still
	// ahead. Days 1..6 carry all five.
	want := 4*2 + 6*5*2
	if got := len(sched.ids()); got != want {
		t.Fatalf("pending = %d events, want %d", got, want)
	}

	// Past instant dropped today but present tomorrow.
	todayFajr, _ := alarms.PrayerEventID(praytimes.Fajr, 0, alarms.KindAtTime)
	if _, ok := sched.event(todayFajr); ok {
		t.Fatal("fajr already past today must not be scheduled")
	}
	tomorrowFajr, _ := alarms.PrayerEventID(praytimes.Fajr, 1, alarms.KindAtTime)
	ev, ok := sched.event(tomorrowFajr)
	if !ok {
		t.Fatal("fajr tomorrow missing")
	}
	wantAt := time.Date(2026, time.January, 7, 5, 0, 0, 0, time.UTC)
	if !ev.FiresAt.Equal(wantAt) {
		t.Fatalf("fajr tomorrow fires at %v, want %v", ev.FiresAt, wantAt)
	}

	// Reminder leads its prayer by the configured minutes.
	dhuhrRem, _ := alarms.PrayerEventID(praytimes.Dhuhr, 0, alarms.KindReminder)
	ev, ok = sched.event(dhuhrRem)
	if !ok {
		t.Fatal("dhuhr reminder today missing")
	}
	if want := time.Date(2026, time.January, 6, 11, 45, 0, 0, time.UTC); !ev.FiresAt.Equal(want) {
		t.Fatalf("dhuhr reminder fires at %v, want %v", ev.FiresAt, want)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	sched := newFakeSched()
	e, _ := newTestEngine(t, Config{Enabled: true, Specs: DefaultSpecs()}, fakeSource{}, sched, nil)

	if err := e.Reconcile(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	first, _ := sched.ListPending(context.Background())

	// Corrupt the pending set; the next pass must self-correct.
	sched.mu.Lock()
	sched.pending[123] = alarms.Event{ID: 123, FiresAt: testNow.Add(time.Hour)}
	sched.mu.Unlock()

	if err := e.Reconcile(context.Background()); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	second, _ := sched.ListPending(context.Background())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("pending set changed across identical passes:\n%v\n%v", first, second)
	}
}

func TestConcurrentReconcilesCoalesceIntoOneTrailingPass(t *testing.T) {
	sched := newFakeSched()
	src := newBlockingSource()
	e, _ := newTestEngine(t, Config{Enabled: true, WindowDays: 1, Specs: DefaultSpecs()}, src, sched, nil)

	done := make(chan error, 1)
	go func() { done <- e.Reconcile(context.Background()) }()
	<-src.entered // first pass is in flight, parked inside the timetable call

	// Requests made while a pass is in flight all fold into one trailing run.
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.Reconcile(context.Background()); err != nil {
				t.Errorf("queued Reconcile: %v", err)
			}
		}()
	}
	wg.Wait()

	close(src.release)
	if err := <-done; err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if got := src.callCount(); got != 2 {
		t.Fatalf("timetable calls = %d, want 2 (initial + one trailing)", got)
	}
	sched.mu.Lock()
	ops := append([]string(nil), sched.ops...)
	sched.mu.Unlock()
	want := []string{"cancel", "schedule", "cancel", "schedule"}
	if !reflect.DeepEqual(ops, want) {
		t.Fatalf("scheduler ops = %v, want %v (passes must not interleave)", ops, want)
	}
}

func TestDisablingOnePrayerRemovesOnlyItsBand(t *testing.T) {
	sched := newFakeSched()
	cfg := Config{Enabled: true, Specs: DefaultSpecs()}
	e, _ := newTestEngine(t, cfg, fakeSource{}, sched, nil)
	if err := e.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	before := sched.ids()

	for i := range cfg.Specs {
		if cfg.Specs[i].Prayer == praytimes.Asr {
			cfg.Specs[i].Enabled = false
		}
	}
	if err := e.Apply(context.Background(), cfg); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	lo, hi := alarms.PrayerBand(praytimes.Asr)
	var wantRemaining []int
	for _, id := range before {
		if id < lo || id > hi {
			wantRemaining = append(wantRemaining, id)
		}
	}
	if got := sched.ids(); !reflect.DeepEqual(got, wantRemaining) {
		t.Fatalf("ids after disabling asr = %v, want %v", got, wantRemaining)
	}
}

func TestWeeklyEventCount(t *testing.T) {
	sched := newFakeSched()
	cfg := Config{
		Enabled: true,
		Specs:   []Spec{}, // daily empty, weekly only
		Jumuah:  JumuahConfig{Enabled: true, Weeks: 4, MinutesBefore: 30, Slots: []string{"12:00", "13:00"}},
	}
	e, _ := newTestEngine(t, cfg, fakeSource{}, sched, nil)
	if err := e.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	ids := sched.ids()
	if len(ids) != 8 {
		t.Fatalf("weekly events = %d, want 8: %v", len(ids), ids)
	}
	for _, id := range ids {
		if _, _, ok := alarms.DecodeWeeklyEventID(id); !ok {
			t.Fatalf("id %d outside the weekly band", id)
		}
	}

	// First Friday after Tuesday Jan 6 is Jan 9.
	id0, _ := alarms.WeeklyEventID(0, 0)
	ev, _ := sched.event(id0)
	if want := time.Date(2026, time.January, 9, 11, 30, 0, 0, time.UTC); !ev.FiresAt.Equal(want) {
		t.Fatalf("first slot fires at %v, want %v", ev.FiresAt, want)
	}
}

func TestWeeklyWeekZeroShrinksWhenSlotPassed(t *testing.T) {
	// Friday 12:10: the 12:00 session is underway, the 13:00 one still ahead.
	now := time.Date(2026, time.January, 9, 12, 10, 0, 0, time.UTC)
	ch := NewChannels(nil, logx.Nop())
	events, errs := planWeekly(now, JumuahConfig{
		Enabled: true, Weeks: 4, MinutesBefore: 30, Slots: []string{"12:00", "13:00"},
	}.withDefaults(), ch)
	if len(errs) != 0 {
		t.Fatalf("unexpected slot errors: %v", errs)
	}
	if len(events) != 7 {
		t.Fatalf("events = %d, want 7 (week 0 shrunk by one)", len(events))
	}
	for _, ev := range events {
		week, slot, _ := alarms.DecodeWeeklyEventID(ev.ID)
		if week == 0 && slot == 0 {
			t.Fatal("passed week-0 slot must be excluded")
		}
	}
}

func TestWeeklyMalformedSlotSkipped(t *testing.T) {
	ch := NewChannels(nil, logx.Nop())
	events, errs := planWeekly(testNow, JumuahConfig{
		Enabled: true, Weeks: 2, MinutesBefore: 30, Slots: []string{"12:00", "25:99"},
	}.withDefaults(), ch)
	if len(errs) != 2 {
		t.Fatalf("slot errors = %d, want 2 (one bad slot per week)", len(errs))
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
}

func TestNoPermissionSkipsPass(t *testing.T) {
	sched := newFakeSched()
	e, _ := newTestEngine(t, Config{Enabled: true, Specs: DefaultSpecs()}, fakeSource{}, sched, alarms.StaticGate(false))

	if err := e.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if sched.cancels != 0 || sched.schedules != 0 {
		t.Fatalf("scheduler touched without permission: cancels=%d schedules=%d", sched.cancels, sched.schedules)
	}
}

func TestCancelFailureAbortsBeforeScheduling(t *testing.T) {
	sched := newFakeSched()
	sched.failCancel = true
	e, _ := newTestEngine(t, Config{Enabled: true, Specs: DefaultSpecs()}, fakeSource{}, sched, nil)

	if err := e.Reconcile(context.Background()); err == nil {
		t.Fatal("Reconcile should surface the cancel failure")
	}
	if sched.schedules != 0 {
		t.Fatal("no schedule call may follow a failed cancel")
	}
}

func TestTimetableFailureAbortsPass(t *testing.T) {
	sched := newFakeSched()
	e, _ := newTestEngine(t, Config{Enabled: true, Specs: DefaultSpecs()}, failingSource{}, sched, nil)

	if err := e.Reconcile(context.Background()); err == nil {
		t.Fatal("Reconcile should surface the timetable failure")
	}
	if sched.schedules != 0 {
		t.Fatal("no schedule call may follow a failed plan")
	}
}

func TestDisabledConfigClearsPending(t *testing.T) {
	sched := newFakeSched()
	cfg := Config{Enabled: true, Specs: DefaultSpecs()}
	e, _ := newTestEngine(t, cfg, fakeSource{}, sched, nil)
	if err := e.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(sched.ids()) == 0 {
		t.Fatal("expected a populated window first")
	}

	cfg.Enabled = false
	if err := e.Apply(context.Background(), cfg); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := sched.ids(); len(got) != 0 {
		t.Fatalf("pending after disable = %v, want empty", got)
	}
}

func TestTravelNoteInBodyWhileTraveling(t *testing.T) {
	sched := newFakeSched()
	e, tr := newTestEngine(t, Config{Enabled: true, Specs: DefaultSpecs()}, fakeSource{}, sched, nil)
	tr.ApplySettings(travel.Settings{
		Enabled:            true,
		HomeBase:           &travel.HomeBase{Coordinates: geo.Coordinates{Lat: -6.2088, Lon: 106.8456}},
		Override:           travel.OverrideForceOn,
		CombineMaghribIsha: true,
	})

	if err := e.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	id, _ := alarms.PrayerEventID(praytimes.Maghrib, 0, alarms.KindAtTime)
	ev, ok := sched.event(id)
	if !ok {
		t.Fatal("maghrib at-time event missing")
	}
	if want := "Combined with Isha while traveling."; !strings.HasSuffix(ev.Body, want) {
		t.Fatalf("body %q lacks travel note %q", ev.Body, want)
	}

	id, _ = alarms.PrayerEventID(praytimes.Dhuhr, 0, alarms.KindReminder)
	ev, _ = sched.event(id)
	if want := "Shortened to 2 rakaat while traveling."; !strings.HasSuffix(ev.Body, want) {
		t.Fatalf("body %q lacks travel note %q", ev.Body, want)
	}
}
