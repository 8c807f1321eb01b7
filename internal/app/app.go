// Package app wires the services together: config, logging, storage, the
// chat transport, the travel tracker, the reminder engine, and the delivery
// pipeline.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"ontime/internal/alarms"
	"ontime/internal/bot"
	"ontime/internal/config"
	"ontime/internal/eventbus"
	"ontime/internal/notifier"
	"ontime/internal/praytimes"
	"ontime/internal/reminder"
	rtsup "ontime/internal/runtime/supervisor"
	"ontime/internal/storage"
	"ontime/internal/travel"
	kit "ontime/internal/transport"
	"ontime/internal/transport/telegram"
	logx "ontime/pkg/logx"
)

// switchGate is the host permission gate, toggled from config.
type switchGate struct{ granted atomic.Bool }

func (g *switchGate) HasPermission() bool { return g.granted.Load() }
func (g *switchGate) RequestPermission(context.Context) (bool, error) {
	return g.granted.Load(), nil
}

type App struct {
	cfgPath string
	cfgm    *config.Manager
	sup     *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter  kit.Adapter
	notif    *notifier.Service
	tracker  *travel.Tracker
	channels *reminder.Channels
	timers   *alarms.TimerScheduler
	engine   *reminder.Engine
	router   *bot.Router

	gate   *switchGate
	chatID atomic.Int64
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	scfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(scfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", scfg.Driver))
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus, store)

	ts, err := mapTravelSettings(cfg.Travel)
	if err != nil {
		return nil, err
	}
	tracker := travel.NewTracker(ts, log.With(logx.String("comp", "travel")))
	if c := initialCoords(cfg.Prayer); c != nil {
		tracker.UpdateLocation(*c)
	}

	channels := reminder.NewChannels(store, log.With(logx.String("comp", "channels")))
	applyChannelConfig(channels, cfg.Prayer)

	gate := &switchGate{}
	gate.granted.Store(cfg.Prayer.AlarmsGranted == nil || *cfg.Prayer.AlarmsGranted)

	a := &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		notif:    notif,
		tracker:  tracker,
		channels: channels,
		gate:     gate,
	}
	a.chatID.Store(deliveryChatID(cfg.Telegram))

	a.timers = alarms.NewTimerScheduler(a.deliver, log.With(logx.String("comp", "alarms")))

	rcfg, err := mapReminderConfig(cfg.Prayer)
	if err != nil {
		return nil, err
	}
	src := praytimes.NewSolarSource()
	a.engine = reminder.NewEngine(rcfg, src, a.timers, gate, channels, tracker,
		log.With(logx.String("comp", "reminder")), bus)

	a.router = bot.NewRouter(ad, cfg.Telegram.OwnerUserIDs, log.With(logx.String("comp", "bot")))
	a.router.Register(bot.Commands(bot.Deps{
		Tracker:  tracker,
		Engine:   a.engine,
		Source:   src,
		Sched:    a.timers,
		Channels: channels,
	})...)

	// Every travel transition re-plans the window.
	tracker.SetOnChange(func(st travel.Status) {
		bus.Publish(eventbus.Event{Type: eventbus.TypeTravelChanged, Data: st})
		go func() {
			if err := a.engine.Reconcile(context.Background()); err != nil {
				log.Warn("reconcile after travel change failed", logx.Err(err))
			}
		}()
	})

	return a, nil
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapTravelSettings(cfg.Travel); err != nil {
			return err
		}
		_, err := mapReminderConfig(cfg.Prayer)
		return err
	})

	if a.store != nil {
		if err := a.channels.Load(runCtx); err != nil {
			a.log.Warn("channel registry load failed", logx.Err(err))
		}
	}

	if a.notif.Enabled() {
		a.notif.Start(runCtx)
	}
	if err := a.router.Start(runCtx); err != nil {
		return err
	}
	a.timers.Start(runCtx)
	if err := a.engine.Start(runCtx); err != nil {
		return err
	}
	if err := a.engine.Reconcile(runCtx); err != nil {
		// A failed first pass is retried by the next trigger; starting with an
		// empty pending set beats not starting at all.
		a.log.Warn("initial reconcile failed", logx.Err(err))
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// Trace every bus event so service transitions show up in one stream.
	busCh, unsub := a.bus.Subscribe(64)
	a.sup.Go("bus.trace", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case ev, ok := <-busCh:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", ev.Type))
			}
		}
	})

	a.log.Info("app started")
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest snapshot matters.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
					continue
				default:
				}
				break
			}
			a.applyConfig(ctx, last, cfg)
			last = cfg
		}
	}
}

// applyConfig pushes a validated reload into the running services. The
// validator already accepted this blob, so mapper errors here are unexpected
// and keep the previous component config.
func (a *App) applyConfig(ctx context.Context, oldCfg, cfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, cfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, no effective changes")
		return
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a.router.SetOwners(cfg.Telegram.OwnerUserIDs)
	a.chatID.Store(deliveryChatID(cfg.Telegram))

	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage config changed; restart required to take effect")
		}
	}

	if ncfg, err := mapNotifierConfig(cfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(ncfg)
		if wasEnabled && !ncfg.Enabled {
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		} else if !wasEnabled && ncfg.Enabled {
			a.notif.Start(ctx)
		}
	}

	if ts, err := mapTravelSettings(cfg.Travel); err != nil {
		a.log.Warn("invalid travel config; keeping previous", logx.Err(err))
	} else {
		a.tracker.ApplySettings(ts)
	}

	applyChannelConfig(a.channels, cfg.Prayer)
	a.gate.granted.Store(cfg.Prayer.AlarmsGranted == nil || *cfg.Prayer.AlarmsGranted)
	if c := initialCoords(cfg.Prayer); c != nil && a.tracker.Location() == nil {
		a.tracker.UpdateLocation(*c)
	}

	if rcfg, err := mapReminderConfig(cfg.Prayer); err != nil {
		a.log.Warn("invalid prayer config; keeping previous", logx.Err(err))
	} else if err := a.engine.Apply(ctx, rcfg); err != nil {
		a.log.Warn("reconcile after reload failed", logx.Err(err))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// deliver is the alarm sink: a due event becomes an outbound notification
// plus an audit record.
func (a *App) deliver(ctx context.Context, ev alarms.Event) {
	entry := storage.FiredEntry{
		At:        time.Now(),
		EventID:   ev.ID,
		Title:     ev.Title,
		ChannelID: ev.ChannelID,
	}
	// The athan itself outranks a lead reminder; both stay above the
	// notifier's silent threshold.
	priority := 5
	if p, _, kind, ok := alarms.DecodePrayerEventID(ev.ID); ok {
		entry.Prayer = p.String()
		entry.Kind = kind.String()
		if kind == alarms.KindAtTime {
			priority = 7
		}
	} else if _, _, ok := alarms.DecodeWeeklyEventID(ev.ID); ok {
		entry.Prayer = "jumuah"
		entry.Kind = "weekly"
	}

	err := a.notif.Notify(ctx, kit.Notification{
		Target:   kit.ChatTarget{ChatID: a.chatID.Load()},
		Text:     ev.Title + "\n" + ev.Body,
		Priority: priority,
	})
	if err != nil {
		entry.Error = err.Error()
		a.log.Warn("reminder delivery enqueue failed",
			logx.Int("id", ev.ID), logx.Err(err))
	}

	if a.store != nil {
		if serr := a.store.AppendFired(ctx, entry); serr != nil {
			a.log.Warn("fired audit append failed", logx.Err(serr))
		}
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderFired, Data: entry})
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	// Bounded shutdown steps so one component can't stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached", logx.String("name", name))
		}
	}

	step("reminder", 2*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("alarms", time.Second, func(c context.Context) error { a.timers.Stop(c); return nil })
	step("bot", 2*time.Second, func(c context.Context) error { return a.router.Stop(c) })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}

func applyChannelConfig(ch *reminder.Channels, p config.PrayerConfig) {
	ch.SetDefault(p.DefaultChannel)
	ch.SetPrayerChannel(praytimes.Fajr, p.FajrChannel)
}
