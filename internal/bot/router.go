// Package bot is the chat command surface: a flat registry of slash commands
// dispatched from the transport's update stream.
package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	rtsup "ontime/internal/runtime/supervisor"
	kit "ontime/internal/transport"
	logx "ontime/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

// Request carries one matched command invocation.
type Request struct {
	Chat   kit.ChatTarget
	FromID int64
	Args   []string
}

type HandlerFunc func(ctx context.Context, req *Request) (string, error)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Handle      HandlerFunc
}

type Router struct {
	mu     sync.RWMutex
	cmds   map[string]*Command
	order  []string
	owners []int64

	adapter kit.Adapter
	log     logx.Logger

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func NewRouter(adapter kit.Adapter, owners []int64, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		cmds:    map[string]*Command{},
		owners:  append([]int64(nil), owners...),
		adapter: adapter,
		log:     log.With(logx.String("svc", "bot")),
	}
	r.Register(Command{
		Name:        "help",
		Aliases:     []string{"h", "start"},
		Description: "show available commands",
		Usage:       "/help",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) (string, error) {
			return r.helpText(), nil
		},
	})
	return r
}

func (r *Router) Register(cmds ...Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		if c.Name == "" || c.Handle == nil {
			continue
		}
		cc := c
		if _, exists := r.cmds[c.Name]; !exists {
			r.order = append(r.order, c.Name)
		}
		r.cmds[c.Name] = &cc
		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a != "" && !strings.Contains(a, " ") {
				r.cmds[a] = &cc
			}
		}
	}
}

// SetOwners swaps the owner list on hot reload.
func (r *Router) SetOwners(owners []int64) {
	r.mu.Lock()
	r.owners = append([]int64(nil), owners...)
	r.mu.Unlock()
}

func (r *Router) Start(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.running {
		return nil
	}
	updates := make(chan kit.Update, 64)
	if err := r.adapter.Start(ctx, updates); err != nil {
		return err
	}
	r.sup = rtsup.New(ctx, rtsup.WithLogger(r.log))
	r.sup.Go("dispatch", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return nil
			case up := <-updates:
				r.dispatch(c, up)
			}
		}
	})
	r.running = true
	r.log.Info("command router started")
	return nil
}

func (r *Router) Stop(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return nil
	}
	err := r.adapter.Stop(ctx)
	r.sup.Cancel()
	_ = r.sup.Wait(ctx)
	r.sup = nil
	r.running = false
	r.log.Info("command router stopped")
	return err
}

func (r *Router) dispatch(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil || !strings.HasPrefix(msg.Text, "/") {
		return
	}
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return
	}
	name := strings.TrimPrefix(fields[0], "/")
	// Strip the @botname suffix Telegram appends in groups.
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	name = strings.ToLower(name)

	r.mu.RLock()
	cmd := r.cmds[name]
	owners := r.owners
	r.mu.RUnlock()

	chat := kit.ChatTarget{ChatID: msg.ChatID}
	if cmd == nil {
		r.reply(ctx, chat, "unknown command, try /help")
		return
	}
	if cmd.Access == AccessOwnerOnly && !contains(owners, msg.FromID) {
		r.log.Warn("command denied",
			logx.String("cmd", cmd.Name), logx.Int64("from", msg.FromID))
		r.reply(ctx, chat, "not authorized")
		return
	}

	req := &Request{Chat: chat, FromID: msg.FromID, Args: fields[1:]}
	text, err := r.run(ctx, cmd, req)
	if err != nil {
		r.log.Warn("command failed", logx.String("cmd", cmd.Name), logx.Err(err))
		text = "error: " + err.Error()
	}
	if text != "" {
		r.reply(ctx, chat, text)
	}
}

func (r *Router) run(ctx context.Context, cmd *Command, req *Request) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("command panicked",
				logx.String("cmd", cmd.Name),
				logx.Any("panic", rec),
				logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("internal error")
		}
	}()
	return cmd.Handle(ctx, req)
}

func (r *Router) reply(ctx context.Context, chat kit.ChatTarget, text string) {
	if err := r.adapter.SendText(ctx, chat, text, nil); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", chat.ChatID), logx.Err(err))
	}
}

func (r *Router) helpText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, name := range names {
		c := r.cmds[name]
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		fmt.Fprintf(&b, "%s: %s\n", usage, c.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
