package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const DefaultUnknownText = "Unknown command. Try /help"

type Command struct {
	Name        string // without the leading "/"
	Aliases     []string
	Description string
	// Hidden commands work but are left out of the menu and help.
	Hidden  bool
	Timeout time.Duration // overrides Config.CommandTimeout when > 0
	Handle  HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Sender kit.Sender
	Logger logx.Logger
}

// Reply sends text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Sender.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	if err != nil {
		return fmt.Errorf("reply to %d: %w", r.Chat.ChatID, err)
	}
	return nil
}

type Config struct {
	// Workers is the number of shards; all commands of one chat run on the
	// same shard in arrival order.
	Workers        int
	QueueSize      int
	CommandTimeout time.Duration
	UnknownText    string
}

type Router struct {
	cfg    Config
	sender kit.Sender
	log    logx.Logger

	mu       sync.RWMutex
	cmds     []Command
	byName   map[string]*Command
	username string
}

func New(cfg Config, sender kit.Sender, log logx.Logger) *Router {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if strings.TrimSpace(cfg.UnknownText) == "" {
		cfg.UnknownText = DefaultUnknownText
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{cfg: cfg, sender: sender, log: log, byName: map[string]*Command{}}
}

// SetBotUsername makes the router ignore "/cmd@otherbot" in group chats.
func (r *Router) SetBotUsername(name string) {
	r.mu.Lock()
	r.username = strings.TrimPrefix(strings.TrimSpace(name), "@")
	r.mu.Unlock()
}

// Register adds commands. A later command with the same name or alias wins.
func (r *Router) Register(cmds ...Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Name), "/"))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		r.cmds = append(r.cmds, c)
	}
	r.byName = make(map[string]*Command, len(r.cmds))
	for i := range r.cmds {
		c := &r.cmds[i]
		r.byName[c.Name] = c
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				r.byName[a] = c
			}
		}
	}
}

// Commands returns the visible commands in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.cmds))
	for _, c := range r.cmds {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	return out
}

// MenuCommands converts the visible commands into a Telegram menu.
func (r *Router) MenuCommands() []kit.BotCommand {
	cmds := r.Commands()
	out := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

// Run dispatches updates until ctx is done or updates is closed.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	shards := make([]chan kit.Update, r.cfg.Workers)
	for i := range shards {
		shards[i] = make(chan kit.Update, r.cfg.QueueSize)
		q := shards[i]
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case j, ok := <-q:
					if !ok {
						return nil
					}
					r.runJob(c, idx, j)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
		)
	}
	r.log.Info("command dispatcher started", logx.Int("workers", len(shards)), logx.Int("queue_cap", r.cfg.QueueSize))

	defer func() {
		for _, q := range shards {
			close(q)
		}
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if _, ok := r.accept(up); !ok {
				continue
			}
			q := shards[shardFor(up.Message.ChatID, len(shards))]
			select {
			case q <- up:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func shardFor(chatID int64, n int) int {
	if chatID < 0 {
		chatID = -chatID
	}
	return int(chatID % int64(n))
}

// accept filters out non-commands and commands addressed to another bot.
func (r *Router) accept(up kit.Update) (parsed, bool) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return parsed{}, false
	}
	p, ok := parseCommand(up.Message.Text)
	if !ok {
		return parsed{}, false
	}
	if p.Mention != "" {
		r.mu.RLock()
		me := r.username
		r.mu.RUnlock()
		if me != "" && !strings.EqualFold(p.Mention, me) {
			return parsed{}, false
		}
	}
	return p, true
}

func (r *Router) runJob(ctx context.Context, worker int, up kit.Update) {
	// middleware catches handler panics; this keeps the worker alive for
	// anything that slips past it
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()
	_ = r.Handle(ctx, up)
}

// Handle runs a single update synchronously. Non-command text is ignored.
func (r *Router) Handle(ctx context.Context, up kit.Update) error {
	p, ok := r.accept(up)
	if !ok {
		return nil
	}
	msg := up.Message
	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: p.Name,
		Args:    p.Args,
		ReqID:   uuid.NewString(),
		Sender:  r.sender,
	}
	req.Logger = r.log.With(logx.String("req_id", req.ReqID))

	r.mu.RLock()
	cmd, found := r.byName[p.Name]
	var c Command
	if found {
		c = *cmd
	}
	r.mu.RUnlock()

	h := r.unknown
	timeout := r.cfg.CommandTimeout
	if found {
		req.Command = c.Name
		h = c.Handle
		if c.Timeout > 0 {
			timeout = c.Timeout
		}
	}
	return Chain(h, MWPanicRecover(), MWRequestLog(), MWTimeout(timeout))(ctx, req)
}

func (r *Router) unknown(ctx context.Context, req *Request) error {
	return req.Reply(ctx, r.cfg.UnknownText)
}
