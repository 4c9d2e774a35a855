// Package memory persists the most recent low-risk outcome so the client can
// echo it back ("last time, X was calm; you did Y").
//
// There is exactly one record. It is loaded once at startup, replaced each
// time a LOW assessment is produced, and written back to a single JSON file.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/safewalk/guardian/internal/health"
	"github.com/safewalk/guardian/internal/metrics"
)

// Record is the persisted memory. The pointer fields are null until the
// first LOW result.
type Record struct {
	HasMemory         bool    `json:"hasMemory"`
	LastLowScenarioID *string `json:"lastLowScenarioId"`
	LastSaferAction   *string `json:"lastSaferAction"`
}

// clone returns a deep copy so callers never share the store's pointers.
func (r Record) clone() Record {
	out := Record{HasMemory: r.HasMemory}
	if r.LastLowScenarioID != nil {
		id := *r.LastLowScenarioID
		out.LastLowScenarioID = &id
	}
	if r.LastSaferAction != nil {
		action := *r.LastSaferAction
		out.LastSaferAction = &action
	}
	return out
}

// Store guards the record and its backing file.
type Store struct {
	path   string
	logger *slog.Logger

	// writeMu serializes disk writes; mu guards the fields below and is
	// never held across I/O.
	writeMu sync.Mutex

	mu        sync.Mutex
	record    Record
	dirty     bool
	lastError error
}

// Open loads the record at path. A missing file yields the empty record; a
// file that cannot be read or parsed is logged and also yields the empty
// record, so Open never fails.
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger}

	rec, err := load(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("no memory file yet, starting empty", "path", path)
	case err != nil:
		logger.Warn("memory file unreadable, starting empty", "path", path, "error", err)
	default:
		s.record = rec
	}
	return s
}

func load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parse memory file: %w", err)
	}
	return rec, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Get returns a copy of the current record.
func (s *Store) Get() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.clone()
}

// RecordLow remembers a LOW outcome and persists it with a single write
// attempt. The in-memory record is updated even when the write fails, so Get
// reflects the latest LOW result for the life of the process and Save can
// retry the write later.
func (s *Store) RecordLow(scenarioID, saferAction string) error {
	s.mu.Lock()
	s.record = Record{
		HasMemory:         true,
		LastLowScenarioID: &scenarioID,
		LastSaferAction:   &saferAction,
	}
	s.dirty = true
	s.mu.Unlock()

	return s.Save(context.Background())
}

// Save writes the current record to disk if it has changes that are not on
// disk yet. Each write snapshots the record while holding writeMu, so the
// last write always carries the latest record.
func (s *Store) Save(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	rec, dirty := s.record.clone(), s.dirty
	s.mu.Unlock()
	if !dirty {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal memory record: %w", err)
	}
	err = writeAtomic(s.path, data)

	s.mu.Lock()
	s.lastError = err
	if err == nil && recordsEqual(rec, s.record) {
		s.dirty = false
	}
	s.mu.Unlock()

	if err != nil {
		metrics.MemoryWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("save memory record: %w", err)
	}
	metrics.MemoryWritesTotal.WithLabelValues("ok").Inc()
	return nil
}

func recordsEqual(a, b Record) bool {
	return a.HasMemory == b.HasMemory &&
		stringPtrEqual(a.LastLowScenarioID, b.LastLowScenarioID) &&
		stringPtrEqual(a.LastSaferAction, b.LastSaferAction)
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// writeAtomic writes data beside path and renames it into place, so readers
// see either the old file or the new one.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".memory-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write memory file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync memory file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close memory file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename memory file: %w", err)
	}

	success = true
	return nil
}

// Check always reports the store healthy: a failed write is best effort and
// the record is still served from memory. The detail names the failure so it
// shows up on /health/ready.
func (s *Store) Check(_ context.Context) health.Status {
	s.mu.Lock()
	err := s.lastError
	s.mu.Unlock()

	if err != nil {
		return health.Status{Name: "memory_store", Healthy: true, Detail: "last write failed"}
	}
	return health.Status{Name: "memory_store", Healthy: true, Detail: s.path}
}
