// Package store persists benchmark results in a bbolt database.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cgast/prowrite/pkg/bench"
)

// Buckets.
const (
	BucketRuns    = "runs"    // run id -> SuiteReport
	BucketResults = "results" // run id/task id -> TaskResult, written as tasks finish
)

// ErrNotFound is returned when a run or result does not exist.
var ErrNotFound = errors.New("not found")

// RunInfo describes a stored run without its task results.
type RunInfo struct {
	RunID      string        `json:"run_id"`
	Model      string        `json:"model"`
	Judges     []string      `json:"judges,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Summary    bench.Summary `json:"summary"`
}

// BoltStore saves task results and suite reports. It implements
// bench.Recorder.
type BoltStore struct {
	db *bolt.DB
	mu sync.RWMutex
}

// Open opens or creates the store at path, creating its directory.
func Open(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{BucketRuns, BucketResults} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// resultKey orders a run's results by their position in the run.
func resultKey(runID string, index int) []byte {
	return fmt.Appendf(nil, "%s/%08d", runID, index)
}

// SaveResult stores one task result under its run, keyed by its index.
func (s *BoltStore) SaveResult(r bench.TaskResult) error {
	if r.RunID == "" {
		return errors.New("save result: empty run id")
	}
	return s.put(BucketResults, resultKey(r.RunID, r.Index), r)
}

// SaveReport stores a finished run.
func (s *BoltStore) SaveReport(r bench.SuiteReport) error {
	if r.RunID == "" {
		return errors.New("save report: empty run id")
	}
	return s.put(BucketRuns, []byte(r.RunID), r)
}

func (s *BoltStore) put(bucket string, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", bucket)
		}
		return b.Put(key, data)
	})
}

// LoadReport returns the report of run id.
func (s *BoltStore) LoadReport(runID string) (bench.SuiteReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var report bench.SuiteReport
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(BucketRuns)).Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return json.Unmarshal(data, &report)
	})
	return report, err
}

// Results returns the task results saved so far for run id, in run
// order. It works for runs that are still in progress.
func (s *BoltStore) Results(runID string) ([]bench.TaskResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []bench.TaskResult
	prefix := []byte(runID + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(BucketResults)).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var r bench.TaskResult
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal result %s: %w", string(k), err)
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

func hasPrefix(b, prefix []byte) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == string(prefix)
}

// ListRuns returns every finished run, most recent first.
func (s *BoltStore) ListRuns() ([]RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []RunInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketRuns)).ForEach(func(k, v []byte) error {
			var info RunInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return fmt.Errorf("unmarshal run %s: %w", string(k), err)
			}
			runs = append(runs, info)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// DeleteRun removes a run and its task results.
func (s *BoltStore) DeleteRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := []byte(runID + "/")
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(BucketRuns)).Delete([]byte(runID)); err != nil {
			return err
		}
		b := tx.Bucket([]byte(BucketResults))
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

var _ bench.Recorder = (*BoltStore)(nil)
