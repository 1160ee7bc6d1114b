package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/subscriber"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

type CommandsConfig struct {
	At       string // HH:MM, shown in replies
	Timezone string
	// Location renders times in /help; nil means the process local time.
	Location *time.Location
	// NextRun reports the next scheduled broadcast; nil hides it from /help.
	NextRun func(now time.Time) (time.Time, bool)
}

// Commands implements the chat commands on top of a registry and broadcaster.
type Commands struct {
	cfg   CommandsConfig
	reg   *subscriber.Registry
	bcast *Broadcaster
	bus   eventbus.Bus
	log   logx.Logger

	// menu lists the visible commands for /help; set by Register.
	menu func() []router.Command
}

func NewCommands(cfg CommandsConfig, b *Broadcaster, log logx.Logger) *Commands {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Commands{cfg: cfg, reg: b.reg, bcast: b, bus: b.bus, log: log}
}

// Register adds start, stop, test and help to r.
func (c *Commands) Register(r *router.Router) {
	c.menu = r.Commands
	r.Register(
		router.Command{Name: "start", Aliases: []string{"subscribe"}, Description: "Subscribe to the daily reminder", Handle: c.start},
		router.Command{Name: "stop", Aliases: []string{"unsubscribe"}, Description: "Unsubscribe from the daily reminder", Handle: c.stop},
		router.Command{Name: "test", Description: "Send the reminder to this chat now", Handle: c.test},
		router.Command{Name: "help", Description: "Show commands and status", Handle: c.help},
	)
}

func (c *Commands) start(ctx context.Context, req *router.Request) error {
	id := subscriber.ID(req.Chat.ChatID)
	if c.reg.Add(id) {
		c.changed(ctx, req, eventbus.SubscriberJoined, id)
	}
	return req.Reply(ctx, startReply(scheduleLabel(c.cfg.At, c.cfg.Timezone)))
}

func (c *Commands) stop(ctx context.Context, req *router.Request) error {
	id := subscriber.ID(req.Chat.ChatID)
	if c.reg.Remove(id) {
		c.changed(ctx, req, eventbus.SubscriberLeft, id)
	}
	return req.Reply(ctx, stopReply)
}

// test sends exactly one reminder to the invoking chat, subscribed or not.
func (c *Commands) test(ctx context.Context, req *router.Request) error {
	return c.bcast.SendTo(ctx, subscriber.ID(req.Chat.ChatID))
}

func (c *Commands) help(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, c.helpText(ctx, subscriber.ID(req.Chat.ChatID), time.Now()))
}

func (c *Commands) helpText(ctx context.Context, id subscriber.ID, now time.Time) string {
	var b strings.Builder
	b.WriteString(helpHeader)
	b.WriteString("\n\n")
	if c.menu != nil {
		for _, cmd := range c.menu() {
			fmt.Fprintf(&b, "/%s - %s\n", cmd.Name, cmd.Description)
		}
		b.WriteString("\n")
	}

	if c.reg.Contains(id) {
		b.WriteString("Status: subscribed\n")
	} else {
		b.WriteString("Status: not subscribed\n")
	}
	if c.cfg.NextRun != nil {
		if next, ok := c.cfg.NextRun(now); ok {
			fmt.Fprintf(&b, "Next reminder: %s\n", next.In(c.location()).Format("Mon 02 Jan 15:04 MST"))
		}
	} else {
		fmt.Fprintf(&b, "Daily reminder at %s\n", scheduleLabel(c.cfg.At, c.cfg.Timezone))
	}
	if last, ok := c.bcast.audit.lastRun(ctx); ok {
		fmt.Fprintf(&b, "Last broadcast: %s, %d/%d delivered\n", last.Started.In(c.location()).Format("02 Jan 15:04"), last.Sent, last.Total)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) location() *time.Location {
	if c.cfg.Location != nil {
		return c.cfg.Location
	}
	return time.Local
}

func (c *Commands) changed(ctx context.Context, req *router.Request, typ string, id subscriber.ID) {
	kind := storageKind(typ)
	req.Logger.Info("subscription changed",
		logx.String("change", string(kind)),
		logx.Int64("chat_id", int64(id)),
		logx.Int("subscribers", c.reg.Len()),
	)
	c.bcast.audit.delivery(ctx, recordFor(kind, id))
	if c.bus != nil {
		c.bus.Publish(eventbus.Event{Type: typ, Data: id})
	}
}
