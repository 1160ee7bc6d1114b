package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	"remindbot/internal/subscriber"
	"remindbot/internal/task/scheduler"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

const dailyJob = "reminder.daily"

// openStore is replaced in tests.
var openStore = storage.Open

// AdapterFactory builds the chat adapter once the config is known to be valid.
type AdapterFactory func(cfg *config.Config, log logx.Logger) (kit.Adapter, error)

// TelegramAdapter is the production AdapterFactory.
func TelegramAdapter(cfg *config.Config, log logx.Logger) (kit.Adapter, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	send, err := config.ParseDurationField("telegram.send_timeout", cfg.Telegram.SendTimeout)
	if err != nil {
		return nil, err
	}
	return telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: poll,
		SendTimeout: send,
		APIURL:      cfg.Telegram.APIURL,
	}, log)
}

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter  kit.Adapter
	registry *subscriber.Registry
	sched    *scheduler.Service
	bcast    *reminder.Broadcaster
	router   *router.Router

	updates chan kit.Update
}

// New loads the config at cfgPath (optional file plus environment) and
// wires the bot. It fails with config.ErrMissingToken before any Telegram
// client exists.
func New(cfgPath string) (*App, error) {
	return NewWith(cfgPath, TelegramAdapter)
}

func NewWith(cfgPath string, newAdapter AdapterFactory) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logSvc, log := logx.New(mapLogConfig(cfg), nil)
	appLog := log.With(logx.String("comp", "app"))

	ad, err := newAdapter(cfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logSvc.SetSender(ad)

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := openStore(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("storage: %w", err)
		}
		store = st
		appLog.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	// fail releases what NewWith opened so far.
	fail := func(err error) (*App, error) {
		if store != nil {
			_ = store.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()
	registry := subscriber.NewRegistry()

	bcast, err := reminder.NewBroadcaster(reminder.Config{
		Message: cfg.Reminder.Message,
	}, reminder.Deps{
		Registry: registry,
		Sender:   ad,
		Store:    store,
		Bus:      bus,
	}, log.With(logx.String("comp", "reminder")))
	if err != nil {
		return fail(err)
	}

	sched := scheduler.New(scheduler.Config{Timezone: cfg.Reminder.Timezone}, log.With(logx.String("comp", "scheduler")))
	if err := sched.AddDaily(dailyJob, cfg.Reminder.At, 0, bcast.Job); err != nil {
		return fail(err)
	}

	rt := router.New(router.Config{CommandTimeout: 30 * time.Second}, ad, log.With(logx.String("comp", "commands")))
	reminder.NewCommands(reminder.CommandsConfig{
		At:       cfg.Reminder.At,
		Timezone: cfg.Reminder.Timezone,
		Location: sched.Location(),
		NextRun: func(now time.Time) (time.Time, bool) {
			return sched.Next(dailyJob, now)
		},
	}, bcast, log.With(logx.String("comp", "reminder"))).Register(rt)
	if u, ok := ad.(interface{ Username() string }); ok {
		rt.SetBotUsername(u.Username())
	}

	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	return &App{
		cfgm:     cfgm,
		log:      appLog,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		registry: registry,
		sched:    sched,
		bcast:    bcast,
		router:   rt,
		updates:  make(chan kit.Update, 256),
	}, nil
}

func (a *App) Registry() *subscriber.Registry { return a.registry }

func (a *App) Broadcaster() *reminder.Broadcaster { return a.bcast }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	if up, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		menu := a.router.MenuCommands()
		a.sup.GoRestart("telegram.menu.update", func(c context.Context) error {
			mctx, cancel := context.WithTimeout(c, 5*time.Second)
			defer cancel()
			return up.UpdateMenuCommands(mctx, menu)
		},
			rtsup.WithRestartBackoff(2*time.Second, 30*time.Second),
			rtsup.WithMaxRestarts(3),
		)
	}

	a.sched.Start(a.sup.Context())
	for _, si := range a.sched.Snapshot() {
		a.log.Info("schedule registered",
			logx.String("name", si.Name),
			logx.String("spec", si.Spec),
			logx.Time("next", si.Next),
		)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started",
		logx.String("reminder_at", a.cfgm.Get().Reminder.At),
		logx.String("config", a.cfgm.Path()),
		logx.Bool("storage", a.store != nil),
	)
	return nil
}

// applyConfig applies the live-reloadable part of a new config (logging) and
// warns about sections that only take effect after a restart.
func (a *App) applyConfig(last, next *config.Config) {
	if sections := config.RestartRequired(last, next); len(sections) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(sections, ",")))
	}
	a.logs.Apply(mapLogConfig(next))
	a.log.Info("config reloaded", logx.String("level", next.Logging.Level))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	// cancel first so background loops start unwinding immediately
	a.sup.Cancel()

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		// never extend the caller's deadline
		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, max(time.Until(dl), 0))
		}
		stepCtx, cancel := context.WithTimeout(ctx, limit)
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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	cnt := a.sup.Counters()
	a.log.Info("stopped", logx.Uint64("goroutines_started", cnt.Started), logx.Int64("goroutines_left", cnt.Active))
	return a.logs.Close()
}
