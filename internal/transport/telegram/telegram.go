// Package telegram adapts the transport boundary to the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "ontime/internal/runtime/supervisor"
	kit "ontime/internal/transport"
	logx "ontime/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot
	out atomic.Value // stores chan<- kit.Update

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	// dropped counts updates lost because the consumer was slower than the
	// poll loop; logged periodically instead of per update.
	dropped atomic.Uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}

	a := &Adapter{cfg: cfg, log: log, bot: b}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel; Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.sendUpdate(kit.Update{Message: &kit.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			Text:         m.Text,
		}})
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	if v == nil {
		return
	}
	ch, _ := v.(chan<- kit.Update)
	if ch == nil {
		return
	}
	select {
	case ch <- up:
	default:
		if n := a.dropped.Add(1); n%50 == 1 {
			a.log.Warn("telegram updates dropped (slow consumer)", logx.Int64("total", int64(n)))
		}
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.out.Store(out)
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))
	a.sup.Go("telegram.poll", func(c context.Context) error {
		// telebot owns its own loop; stop it when our context ends.
		done := make(chan struct{})
		go func() {
			a.bot.Start()
			close(done)
		}()
		select {
		case <-c.Done():
			a.bot.Stop()
			<-done
			return context.Canceled
		case <-done:
			return nil
		}
	})
	a.running = true
	a.log.Info("telegram adapter started")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.sup.Cancel()
	err := a.sup.Wait(ctx)
	a.sup = nil
	a.running = false
	a.log.Info("telegram adapter stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var opts []any
	if opt != nil && opt.Silent {
		opts = append(opts, &tele.SendOptions{DisableNotification: true})
	}
	_, err := a.bot.Send(tele.ChatID(to.ChatID), text, opts...)
	return err
}
