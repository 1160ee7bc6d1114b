package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines files next to Path
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

type Kind string

const (
	KindJoin      Kind = "join"
	KindLeave     Kind = "leave"
	KindBroadcast Kind = "broadcast"
	KindTest      Kind = "test"
)

// DeliveryRecord is one subscription change or one send attempt.
// RunID is set for broadcast sends only.
type DeliveryRecord struct {
	At     time.Time `json:"at"`
	RunID  string    `json:"run_id,omitempty"`
	ChatID int64     `json:"chat_id"`
	Kind   Kind      `json:"kind"`
	OK     bool      `json:"ok"`
	Error  string    `json:"error,omitempty"`
}

// RunSummary is the outcome of one daily broadcast.
type RunSummary struct {
	RunID   string    `json:"run_id"`
	Started time.Time `json:"started"`
	TookMS  int64     `json:"took_ms"`
	Total   int       `json:"total"`
	Sent    int       `json:"sent"`
	Failed  int       `json:"failed"`
}

type Store interface {
	AppendDelivery(ctx context.Context, r DeliveryRecord) error
	AppendRun(ctx context.Context, r RunSummary) error
	// LastRun returns the most recent broadcast run; ok is false when none
	// was recorded yet.
	LastRun(ctx context.Context) (r RunSummary, ok bool, err error)
	Close() error
}
