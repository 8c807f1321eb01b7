package alarms

import (
	"context"
	"sort"
	"sync"
	"time"

	logx "ontime/pkg/logx"
)

// DeliverFunc hands a due event to the delivery pipeline.
type DeliverFunc func(ctx context.Context, ev Event)

// TimerScheduler implements Scheduler with in-process one-shot timers.
//
// Timers are runtime state; event definitions persist across Stop()/Start()
// so a lifecycle bounce re-arms everything. Each definition carries a version
// so a stale timer callback from a replaced event is ignored.
type TimerScheduler struct {
	mu      sync.Mutex
	log     logx.Logger
	deliver DeliverFunc

	started bool
	runCtx  context.Context
	cancel  context.CancelFunc

	entries map[int]*timerEntry
}

type timerEntry struct {
	ev    Event
	ver   uint64
	timer *time.Timer
}

func NewTimerScheduler(deliver DeliverFunc, log logx.Logger) *TimerScheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &TimerScheduler{
		log:     log,
		deliver: deliver,
		entries: map[int]*timerEntry{},
	}
}

// Start arms timers for all known definitions. Idempotent.
func (s *TimerScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.runCtx, s.cancel = context.WithCancel(ctx)
	for id := range s.entries {
		s.armLocked(id)
	}
	s.log.Debug("alarm scheduler started", logx.Int("pending", len(s.entries)))
}

// Stop disarms all timers but keeps definitions so Start can resume them.
func (s *TimerScheduler) Stop(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	for _, e := range s.entries {
		if e.timer != nil {
			_ = e.timer.Stop()
			e.timer = nil
		}
	}
	s.log.Debug("alarm scheduler stopped")
}

// Schedule upserts the batch. Events replacing an existing ID disarm the old
// timer via the version bump.
func (s *TimerScheduler) Schedule(ctx context.Context, events []Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		e := s.entries[ev.ID]
		if e == nil {
			e = &timerEntry{}
			s.entries[ev.ID] = e
		}
		if e.timer != nil {
			_ = e.timer.Stop()
			e.timer = nil
		}
		e.ev = ev
		e.ver++
		if s.started {
			s.armLocked(ev.ID)
		}
	}
	return nil
}

// Cancel removes the given IDs. Unknown IDs are ignored.
func (s *TimerScheduler) Cancel(ctx context.Context, ids []int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			if e.timer != nil {
				_ = e.timer.Stop()
			}
			delete(s.entries, id)
		}
	}
	return nil
}

// ListPending snapshots the outstanding events, sorted by ID for
// deterministic output.
func (s *TimerScheduler) ListPending(ctx context.Context) ([]Pending, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Pending, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, Pending{ID: id, FiresAt: e.ev.FiresAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// armLocked starts the one-shot timer for an entry. Call with s.mu held.
func (s *TimerScheduler) armLocked(id int) {
	e := s.entries[id]
	if e == nil {
		return
	}
	delay := time.Until(e.ev.FiresAt)
	if delay < 0 {
		delay = 0
	}
	ver := e.ver
	e.timer = time.AfterFunc(delay, func() { s.fire(id, ver) })
}

func (s *TimerScheduler) fire(id int, ver uint64) {
	s.mu.Lock()
	e := s.entries[id]
	if e == nil || e.ver != ver || !s.started {
		// Replaced, canceled, or stopped since this timer was armed.
		s.mu.Unlock()
		return
	}
	ev := e.ev
	delete(s.entries, id)
	ctx := s.runCtx
	deliver := s.deliver
	s.mu.Unlock()

	s.log.Info("alarm fired",
		logx.Int("id", ev.ID),
		logx.Time("fires_at", ev.FiresAt),
		logx.String("title", ev.Title))
	if deliver != nil {
		deliver(ctx, ev)
	}
}
