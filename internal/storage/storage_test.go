package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for file driver without path")
	}
}

func TestFileStoreAppendsAndRecoversLastRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit", "bot.db")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok, _ := st.LastRun(ctx); ok {
		t.Fatal("fresh store reports a last run")
	}

	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	recs := []DeliveryRecord{
		{At: at, ChatID: 100, Kind: KindJoin, OK: true},
		{At: at, RunID: "r1", ChatID: 100, Kind: KindBroadcast, OK: true},
		{At: at, RunID: "r1", ChatID: 200, Kind: KindBroadcast, OK: false, Error: "forbidden"},
	}
	for _, r := range recs {
		if err := st.AppendDelivery(ctx, r); err != nil {
			t.Fatalf("AppendDelivery: %v", err)
		}
	}
	run := RunSummary{RunID: "r1", Started: at, TookMS: 12, Total: 2, Sent: 1, Failed: 1}
	if err := st.AppendRun(ctx, run); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}
	if got, ok, _ := st.LastRun(ctx); !ok || got != run {
		t.Fatalf("LastRun = %+v, %v; want %+v", got, ok, run)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(filepath.Dir(path), "bot.deliveries.jsonl"))
	if err != nil {
		t.Fatalf("deliveries file: %v", err)
	}
	defer f.Close()
	var lines []DeliveryRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r DeliveryRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		lines = append(lines, r)
	}
	if len(lines) != len(recs) || lines[2].Error != "forbidden" {
		t.Fatalf("deliveries = %+v", lines)
	}

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	got, ok, err := st2.LastRun(ctx)
	if err != nil || !ok {
		t.Fatalf("LastRun after reopen: %v, %v", ok, err)
	}
	if got.RunID != "r1" || !got.Started.Equal(at) || got.Sent != 1 || got.Failed != 1 {
		t.Fatalf("LastRun after reopen = %+v", got)
	}
}

func TestFileStoreAfterClose(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "x.jsonl")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = st.Close()
	if err := st.AppendDelivery(context.Background(), DeliveryRecord{ChatID: 1}); err != ErrDisabled {
		t.Fatalf("AppendDelivery after close = %v, want ErrDisabled", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bot.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	if _, ok, err := st.LastRun(ctx); ok || err != nil {
		t.Fatalf("empty LastRun = %v, %v", ok, err)
	}
	for _, r := range []DeliveryRecord{
		{ChatID: 1, Kind: KindTest, OK: true},
		{RunID: "a", ChatID: 1, Kind: KindBroadcast, OK: true},
		{RunID: "a", ChatID: 2, Kind: KindBroadcast, OK: false, Error: "chat not found"},
	} {
		if err := st.AppendDelivery(ctx, r); err != nil {
			t.Fatalf("AppendDelivery: %v", err)
		}
	}

	db := st.(*sqliteStore).db
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deliveries WHERE kind = 'broadcast' AND ok = 0`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("failed broadcast rows = %d, want 1", n)
	}

	started := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	_ = st.AppendRun(ctx, RunSummary{RunID: "a", Started: started, Total: 2, Sent: 1, Failed: 1})
	_ = st.AppendRun(ctx, RunSummary{RunID: "b", Started: started.Add(24 * time.Hour), Total: 1, Sent: 1})
	got, ok, err := st.LastRun(ctx)
	if err != nil || !ok {
		t.Fatalf("LastRun: %v, %v", ok, err)
	}
	if got.RunID != "b" || !got.Started.Equal(started.Add(24*time.Hour)) || got.Sent != 1 {
		t.Fatalf("LastRun = %+v", got)
	}
}
