package router

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type sent struct {
	to   kit.ChatTarget
	text string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{to: to, text: text})
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.msgs)}, nil
}

func (f *fakeSender) snapshot() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.msgs...)
}

func msg(chatID int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: chatID, FromID: chatID, Text: text}}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		ok      bool
		name    string
		mention string
		args    []string
	}{
		{in: "/start", ok: true, name: "start", args: []string{}},
		{in: "  /STOP  ", ok: true, name: "stop", args: []string{}},
		{in: "/test@ReminderBot now", ok: true, name: "test", mention: "ReminderBot", args: []string{"now"}},
		{in: `/help "two words" x`, ok: true, name: "help", args: []string{"two words", "x"}},
		{in: "hello", ok: false},
		{in: "/", ok: false},
		{in: "/@bot", ok: false},
		{in: "", ok: false},
	}
	for _, tc := range cases {
		p, ok := parseCommand(tc.in)
		if ok != tc.ok {
			t.Fatalf("parseCommand(%q) ok = %v, want %v", tc.in, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if p.Name != tc.name || p.Mention != tc.mention {
			t.Fatalf("parseCommand(%q) = %+v", tc.in, p)
		}
		if len(p.Args) != len(tc.args) || (len(tc.args) > 0 && !reflect.DeepEqual(p.Args, tc.args)) {
			t.Fatalf("parseCommand(%q) args = %q, want %q", tc.in, p.Args, tc.args)
		}
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()
	got := tokenize(`/cmd a "b c" 'd e' f\ g ""`)
	want := []string{"/cmd", "a", "b c", "d e", "f g", ""}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tokenize = %q, want %q", got, want)
	}
}

func TestHandleRoutesRegisteredCommand(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	r := New(Config{}, s, logx.Nop())

	var got *Request
	r.Register(Command{Name: "start", Aliases: []string{"subscribe"}, Handle: func(ctx context.Context, req *Request) error {
		got = req
		return req.Reply(ctx, "ok")
	}})

	if err := r.Handle(context.Background(), msg(100, "/subscribe arg")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got == nil {
		t.Fatal("handler not called")
	}
	if got.Command != "start" || got.Chat.ChatID != 100 || got.ReqID == "" {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(got.Args) != 1 || got.Args[0] != "arg" {
		t.Fatalf("args = %q", got.Args)
	}
	out := s.snapshot()
	if len(out) != 1 || out[0].text != "ok" || out[0].to.ChatID != 100 {
		t.Fatalf("sent = %+v", out)
	}
}

func TestHandleUnknownAndPlainText(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	r := New(Config{}, s, logx.Nop())

	if err := r.Handle(context.Background(), msg(5, "good morning")); err != nil {
		t.Fatalf("plain text: %v", err)
	}
	if n := len(s.snapshot()); n != 0 {
		t.Fatalf("plain text produced %d sends", n)
	}

	if err := r.Handle(context.Background(), msg(5, "/frobnicate")); err != nil {
		t.Fatalf("unknown: %v", err)
	}
	out := s.snapshot()
	if len(out) != 1 || out[0].text != DefaultUnknownText {
		t.Fatalf("sent = %+v, want one unknown-command reply", out)
	}
}

func TestHandleIgnoresOtherBotMention(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	r := New(Config{}, s, logx.Nop())
	r.SetBotUsername("@ReminderBot")
	calls := 0
	r.Register(Command{Name: "start", Handle: func(ctx context.Context, req *Request) error {
		calls++
		return nil
	}})

	_ = r.Handle(context.Background(), msg(1, "/start@OtherBot"))
	_ = r.Handle(context.Background(), msg(1, "/start@reminderbot"))
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if n := len(s.snapshot()); n != 0 {
		t.Fatalf("other bot's command produced %d sends", n)
	}
}

func TestHandleRecoversPanic(t *testing.T) {
	t.Parallel()
	r := New(Config{}, &fakeSender{}, logx.Nop())
	r.Register(Command{Name: "boom", Handle: func(ctx context.Context, req *Request) error {
		panic("boom")
	}})
	if err := r.Handle(context.Background(), msg(1, "/boom")); err == nil {
		t.Fatal("expected panic to surface as error")
	}
}

func TestHandleReplyErrorIsReturned(t *testing.T) {
	t.Parallel()
	boom := errors.New("blocked by user")
	r := New(Config{}, &fakeSender{err: boom}, logx.Nop())
	err := r.Handle(context.Background(), msg(9, "/nope"))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped send error", err)
	}
}

func TestHandleAppliesTimeout(t *testing.T) {
	t.Parallel()
	r := New(Config{CommandTimeout: time.Hour}, &fakeSender{}, logx.Nop())
	var deadline time.Time
	r.Register(Command{Name: "slow", Timeout: 50 * time.Millisecond, Handle: func(ctx context.Context, req *Request) error {
		deadline, _ = ctx.Deadline()
		return nil
	}})
	_ = r.Handle(context.Background(), msg(1, "/slow"))
	if deadline.IsZero() || time.Until(deadline) > time.Second {
		t.Fatalf("deadline = %v, want per-command timeout", deadline)
	}
}

func TestMenuCommandsSkipsHidden(t *testing.T) {
	t.Parallel()
	r := New(Config{}, &fakeSender{}, logx.Nop())
	noop := func(ctx context.Context, req *Request) error { return nil }
	r.Register(
		Command{Name: "start", Description: "subscribe", Handle: noop},
		Command{Name: "debug", Hidden: true, Handle: noop},
		Command{Name: "stop", Description: "unsubscribe", Handle: noop},
	)
	got := r.MenuCommands()
	want := []kit.BotCommand{{Command: "start", Description: "subscribe"}, {Command: "stop", Description: "unsubscribe"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("menu = %+v, want %+v", got, want)
	}
}

func TestRunKeepsPerChatOrder(t *testing.T) {
	r := New(Config{Workers: 3, QueueSize: 4}, &fakeSender{}, logx.Nop())

	var mu sync.Mutex
	seen := map[int64][]int{}
	r.Register(Command{Name: "n", Handle: func(ctx context.Context, req *Request) error {
		n, _ := strconv.Atoi(req.Args[0])
		mu.Lock()
		seen[req.Chat.ChatID] = append(seen[req.Chat.ChatID], n)
		mu.Unlock()
		return nil
	}})

	updates := make(chan kit.Update)
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), updates) }()

	const per = 40
	chats := []int64{1, 2, -3, 4}
	for i := 0; i < per; i++ {
		for _, c := range chats {
			updates <- msg(c, "/n "+strconv.Itoa(i))
		}
		updates <- msg(1, "not a command")
	}
	close(updates)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after updates closed")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, c := range chats {
		got := seen[c]
		if len(got) != per {
			t.Fatalf("chat %d handled %d commands, want %d", c, len(got), per)
		}
		for i, n := range got {
			if n != i {
				t.Fatalf("chat %d out of order at %d: %v", c, i, got)
			}
		}
	}
}
