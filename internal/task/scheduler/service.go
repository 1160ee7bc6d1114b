package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "remindbot/pkg/logx"
)

type Config struct {
	// Timezone is an IANA name; empty means the process local time.
	Timezone string
}

// Job is a scheduled unit of work. The context carries the job timeout and is
// canceled when the scheduler stops.
type Job func(ctx context.Context) error

type entry struct {
	name    string
	spec    string
	timeout time.Duration
	job     Job
	id      cron.EntryID
}

// Service owns one cron instance. Jobs may be added before or after Start.
type Service struct {
	cfg    Config
	log    logx.Logger
	parser cron.Parser

	mu      sync.Mutex
	c       *cron.Cron
	loc     *time.Location
	entries map[string]*entry

	// runCtx is canceled on Stop so in-flight jobs observe shutdown.
	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg: cfg,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: map[string]*entry{},
	}
	s.loc = s.loadLocation()
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	s.c = s.newCron()
	return s
}

func (s *Service) loadLocation() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) newCron() *cron.Cron {
	cl := cronLogger{log: s.log.With(logx.String("comp", "cron"))}
	return cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		// Recover must sit inside SkipIfStillRunning: the skip token is only
		// handed back when the wrapped job returns normally.
		cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
	)
}

func (s *Service) Location() *time.Location { return s.loc }

// AddCron registers job under name, replacing any job with the same name.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("schedule name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %s: invalid cron %q: %w", name, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[name]; ok {
		s.c.Remove(old.id)
		delete(s.entries, name)
	}
	e := &entry{name: name, spec: spec, timeout: timeout, job: job}
	id, err := s.c.AddFunc(spec, func() { s.run(e) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	e.id = id
	s.entries[name] = e
	s.log.Info("schedule added", logx.String("name", name), logx.String("spec", spec), logx.String("tz", s.loc.String()))
	return nil
}

// AddDaily runs job once a day at atHHMM in the service location.
func (s *Service) AddDaily(name, atHHMM string, timeout time.Duration, job Job) error {
	spec, err := DailySpec(atHHMM)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return s.AddCron(name, spec, timeout, job)
}

func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return false
	}
	s.c.Remove(e.id)
	delete(s.entries, name)
	return true
}

// RunNow runs the job registered under name on the calling goroutine, with
// the timeout and panic handling of a scheduled fire.
func (s *Service) RunNow(name string) bool {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.run(e)
	return true
}

func (s *Service) run(e *entry) {
	s.mu.Lock()
	parent := s.runCtx
	s.mu.Unlock()

	ctx := parent
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, e.timeout)
		defer cancel()
	}
	start := time.Now()
	s.log.Debug("schedule fired", logx.String("name", e.name))
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("schedule job panicked",
				logx.String("name", e.name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	if err := e.job(ctx); err != nil {
		s.log.Warn("schedule job failed", logx.String("name", e.name), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Debug("schedule job done", logx.String("name", e.name), logx.Duration("took", time.Since(start)))
}

// Start begins triggering. It is a no-op when already running.
func (s *Service) Start(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx.Err() != nil {
		// restarted after Stop
		s.runCtx, s.runCancel = context.WithCancel(context.Background())
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.entries)))
}

// Stop stops triggering and waits (bounded by ctx) for running jobs.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.mu.Unlock()

	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		// jobs still running: cancel them and stop waiting
		cancel()
		s.log.Warn("stop timed out waiting for running jobs")
	}
	cancel()
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// ScheduleInfo describes one registered schedule.
type ScheduleInfo struct {
	Name    string
	Spec    string
	Next    time.Time
	Prev    time.Time
	Timeout time.Duration
}

// Snapshot lists registered schedules sorted by name. Next is zero until
// the service has been started.
func (s *Service) Snapshot() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleInfo, 0, len(s.entries))
	for _, e := range s.entries {
		ce := s.c.Entry(e.id)
		out = append(out, ScheduleInfo{Name: e.name, Spec: e.spec, Next: ce.Next, Prev: ce.Prev, Timeout: e.timeout})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Next returns the next fire time of name computed from now.
func (s *Service) Next(name string, now time.Time) (time.Time, bool) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	sched, err := s.parser.Parse(e.spec)
	if err != nil {
		return time.Time{}, false
	}
	return sched.Next(now.In(s.loc)), true
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	// cron logs every wake-up at info
	l.log.Trace(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
