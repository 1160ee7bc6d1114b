package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "remindbot/pkg/logx"
)

// fileStore appends JSON Lines to two files:
//   - <prefix>.deliveries.jsonl
//   - <prefix>.runs.jsonl
//
// The last run is kept in memory and recovered from the runs file on open.
type fileStore struct {
	log logx.Logger

	mu         sync.Mutex
	deliveries *os.File
	runs       *os.File
	last       *RunSummary
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	runsPath := prefix + ".runs.jsonl"
	last, err := lastRunFromFile(runsPath)
	if err != nil {
		log.Warn("runs file unreadable; last run unknown", logx.String("path", runsPath), logx.Err(err))
	}

	df, err := os.OpenFile(prefix+".deliveries.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	rf, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = df.Close()
		return nil, err
	}
	return &fileStore{log: log, deliveries: df, runs: rf, last: last}, nil
}

// lastRunFromFile returns the last decodable line; a torn final line from a
// crash is skipped.
func lastRunFromFile(path string) (*RunSummary, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var last *RunSummary
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var r RunSummary
		if json.Unmarshal(line, &r) == nil {
			last = &r
		}
	}
	return last, sc.Err()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.deliveries != nil {
		errs = append(errs, s.deliveries.Close())
		s.deliveries = nil
	}
	if s.runs != nil {
		errs = append(errs, s.runs.Close())
		s.runs = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) AppendDelivery(ctx context.Context, r DeliveryRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveries == nil {
		return ErrDisabled
	}
	return json.NewEncoder(s.deliveries).Encode(r)
}

func (s *fileStore) AppendRun(ctx context.Context, r RunSummary) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		return ErrDisabled
	}
	if err := json.NewEncoder(s.runs).Encode(r); err != nil {
		return err
	}
	s.last = &r
	return nil
}

func (s *fileStore) LastRun(ctx context.Context) (RunSummary, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return RunSummary{}, false, nil
	}
	return *s.last, true, nil
}
