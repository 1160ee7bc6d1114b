package reminder

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	"remindbot/internal/subscriber"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	// Message is the reminder text; empty means DefaultMessage.
	Message string
}

type Deps struct {
	Registry *subscriber.Registry
	Sender   kit.Sender
	Store    storage.Store // optional
	Bus      eventbus.Bus  // optional
}

type Failure struct {
	ChatID subscriber.ID
	Err    error
}

// Result summarizes one broadcast run.
type Result struct {
	RunID    string
	Total    int
	Sent     int
	Failed   int
	Failures []Failure
	Started  time.Time
	Took     time.Duration
}

type Broadcaster struct {
	reg    *subscriber.Registry
	sender kit.Sender
	bus    eventbus.Bus
	audit  auditor
	log    logx.Logger
	text   string
}

func NewBroadcaster(cfg Config, deps Deps, log logx.Logger) (*Broadcaster, error) {
	if deps.Registry == nil {
		return nil, errors.New("reminder: registry is required")
	}
	if deps.Sender == nil {
		return nil, errors.New("reminder: sender is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	text := cfg.Message
	if strings.TrimSpace(text) == "" {
		text = DefaultMessage
	}
	return &Broadcaster{
		reg:    deps.Registry,
		sender: deps.Sender,
		bus:    deps.Bus,
		audit:  auditor{store: deps.Store, log: log},
		log:    log,
		text:   text,
	}, nil
}

// Text is the reminder text this broadcaster sends.
func (b *Broadcaster) Text() string { return b.text }

// Run sends the reminder once to every current subscriber. Sends are
// sequential and independent: a failure is recorded and the loop moves on.
func (b *Broadcaster) Run(ctx context.Context) Result {
	res := Result{RunID: uuid.NewString(), Started: time.Now()}
	ids := b.reg.All()
	res.Total = len(ids)
	log := b.log.With(logx.String("run_id", res.RunID))
	log.Info("broadcast started", logx.Int("subscribers", res.Total))

	for _, id := range ids {
		if err := b.send(ctx, id); err != nil {
			res.Failed++
			res.Failures = append(res.Failures, Failure{ChatID: id, Err: err})
			log.Warn("reminder send failed", logx.Int64("chat_id", int64(id)), logx.Err(err))
			b.audit.delivery(ctx, storage.DeliveryRecord{RunID: res.RunID, ChatID: int64(id), Kind: storage.KindBroadcast, Error: err.Error()})
			continue
		}
		res.Sent++
		b.audit.delivery(ctx, storage.DeliveryRecord{RunID: res.RunID, ChatID: int64(id), Kind: storage.KindBroadcast, OK: true})
	}
	res.Took = time.Since(res.Started)

	log.Info("broadcast finished",
		logx.Int("total", res.Total),
		logx.Int("sent", res.Sent),
		logx.Int("failed", res.Failed),
		logx.Duration("took", res.Took),
	)
	b.audit.run(ctx, storage.RunSummary{
		RunID:   res.RunID,
		Started: res.Started,
		TookMS:  res.Took.Milliseconds(),
		Total:   res.Total,
		Sent:    res.Sent,
		Failed:  res.Failed,
	})
	if b.bus != nil {
		b.bus.Publish(eventbus.Event{Type: eventbus.ReminderBroadcast, Data: res})
	}
	return res
}

// Job adapts Run to the scheduler. Send failures are already logged per
// chat, so the job itself only fails when it ran past its context.
func (b *Broadcaster) Job(ctx context.Context) error {
	b.Run(ctx)
	return ctx.Err()
}

// SendTo sends the reminder to a single chat, independent of the registry.
func (b *Broadcaster) SendTo(ctx context.Context, id subscriber.ID) error {
	err := b.send(ctx, id)
	rec := storage.DeliveryRecord{ChatID: int64(id), Kind: storage.KindTest, OK: err == nil}
	if err != nil {
		rec.Error = err.Error()
	}
	b.audit.delivery(ctx, rec)
	return err
}

// send relies on the sender to bound each request (telegram.send_timeout).
func (b *Broadcaster) send(ctx context.Context, id subscriber.ID) error {
	_, err := b.sender.SendText(ctx, kit.ChatTarget{ChatID: int64(id)}, b.text, &kit.SendOptions{DisablePreview: true})
	return err
}
