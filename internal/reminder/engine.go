package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ontime/internal/alarms"
	"ontime/internal/eventbus"
	"ontime/internal/praytimes"
	"ontime/internal/travel"
	logx "ontime/pkg/logx"
)

// ReconcileEvent is the bus payload for reminders.rescheduled and
// reminders.skipped.
type ReconcileEvent struct {
	At     time.Time `json:"at"`
	Events int       `json:"events"`
	Reason string    `json:"reason,omitempty"`
}

// Engine owns the reconcile loop. A pass is never allowed to overlap with
// another: the cancel-then-schedule policy would let a second pass cancel
// events the first just created. Passes triggered while one is in flight are
// coalesced into a single trailing run with the latest inputs.
type Engine struct {
	log      logx.Logger
	bus      eventbus.Bus
	src      praytimes.Source
	sched    alarms.Scheduler
	gate     alarms.PermissionGate
	channels *Channels
	tracker  *travel.Tracker

	mu      sync.Mutex
	cfg     Config
	now     func() time.Time
	running bool
	pending bool

	cronMu sync.Mutex
	cron   *cron.Cron
}

func NewEngine(cfg Config, src praytimes.Source, sched alarms.Scheduler, gate alarms.PermissionGate, channels *Channels, tracker *travel.Tracker, log logx.Logger, bus eventbus.Bus) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if gate == nil {
		gate = alarms.StaticGate(true)
	}
	e := &Engine{
		log:      log.With(logx.String("svc", "reminder")),
		bus:      bus,
		src:      src,
		sched:    sched,
		gate:     gate,
		channels: channels,
		tracker:  tracker,
		now:      time.Now,
	}
	e.cfg = cfg.withDefaults()
	return e
}

// SetClock overrides the time source for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Apply installs new settings and runs a pass against them.
func (e *Engine) Apply(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	return e.Reconcile(ctx)
}

// Start arms the daily roll. Shortly after midnight the covered window slides
// by a day, so the whole set is rebuilt; the same pass refreshes the Friday
// band. Idempotent.
func (e *Engine) Start(ctx context.Context) error {
	e.cronMu.Lock()
	defer e.cronMu.Unlock()
	if e.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc("5 0 * * *", func() {
		if err := e.Reconcile(context.Background()); err != nil {
			e.log.Warn("window roll failed", logx.Err(err))
		}
	}); err != nil {
		return fmt.Errorf("arm window roll: %w", err)
	}
	c.Start()
	e.cron = c
	e.log.Info("reminder engine started")
	return nil
}

func (e *Engine) Stop(ctx context.Context) {
	e.cronMu.Lock()
	c := e.cron
	e.cron = nil
	e.cronMu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	e.log.Info("reminder engine stopped")
}

// Reconcile rebuilds the pending set from current settings. Concurrent calls
// coalesce: at most one pass runs, and at most one more is queued behind it.
func (e *Engine) Reconcile(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.pending = true
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	var err error
	for {
		err = e.reconcileOnce(ctx)

		e.mu.Lock()
		if !e.pending {
			e.running = false
			e.mu.Unlock()
			return err
		}
		e.pending = false
		e.mu.Unlock()
	}
}

func (e *Engine) reconcileOnce(ctx context.Context) error {
	e.mu.Lock()
	cfg := e.cfg
	now := e.now()
	e.mu.Unlock()

	if !e.gate.HasPermission() {
		e.log.Warn("notification permission absent, pass skipped")
		e.publishSkipped(now, "no_permission")
		return nil
	}

	loc := e.tracker.Location()
	if loc == nil {
		e.log.Debug("no known location, pass skipped")
		e.publishSkipped(now, "no_location")
		return nil
	}
	status := e.tracker.Status()

	// Full cancel first. On failure the old set stays untouched.
	ids := make([]int, 0, 700)
	for _, p := range praytimes.Daily {
		ids = append(ids, alarms.PrayerBandIDs(p)...)
	}
	ids = append(ids, alarms.WeeklyBandIDs()...)
	if err := e.sched.Cancel(ctx, ids); err != nil {
		e.log.Error("cancel previous generation", logx.Err(err))
		return fmt.Errorf("cancel previous generation: %w", err)
	}

	var events []alarms.Event
	if cfg.Enabled {
		var err error
		events, err = planDaily(ctx, now, *loc, cfg, e.src, e.channels, status)
		if err != nil {
			e.log.Error("plan daily window", logx.Err(err))
			return err
		}
		if cfg.Jumuah.Enabled {
			weekly, errs := planWeekly(now, cfg.Jumuah, e.channels)
			for _, perr := range errs {
				e.log.Warn("weekly slot skipped", logx.Err(perr))
			}
			events = append(events, weekly...)
		}
	}

	if len(events) > 0 {
		if err := e.sched.Schedule(ctx, events); err != nil {
			e.log.Error("schedule new generation", logx.Err(err))
			return fmt.Errorf("schedule new generation: %w", err)
		}
	}

	e.log.Info("reminders reconciled",
		logx.Int("events", len(events)),
		logx.Int("window_days", cfg.WindowDays),
		logx.String("travel_state", status.State.String()))
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{
			Type: eventbus.TypeRemindersRescheduled,
			Data: ReconcileEvent{At: now, Events: len(events)},
		})
	}
	return nil
}

func (e *Engine) publishSkipped(now time.Time, reason string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{
		Type: eventbus.TypeRemindersSkipped,
		Data: ReconcileEvent{At: now, Reason: reason},
	})
}
