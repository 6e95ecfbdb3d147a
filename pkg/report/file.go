package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cgast/prowrite/pkg/bench"
)

// SaveResults writes r as indented JSON to path, creating parent
// directories.
func SaveResults(path string, r bench.SuiteReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write results %s: %w", path, err)
	}
	return nil
}

// LoadResults reads a results file written by SaveResults.
func LoadResults(path string) (bench.SuiteReport, error) {
	var r bench.SuiteReport
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read results %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("parse results %s: %w", path, err)
	}
	return r, nil
}

// DefaultResultsPath is results/<model>_<timestamp>.json under dir.
func DefaultResultsPath(dir string, r bench.SuiteReport) string {
	name := fmt.Sprintf("%s_%s.json", sanitize(r.Model), r.StartedAt.UTC().Format("20060102_150405"))
	return filepath.Join(dir, name)
}

func sanitize(s string) string {
	out := []rune(s)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '.':
		default:
			out[i] = '_'
		}
	}
	if len(out) == 0 {
		return "model"
	}
	return string(out)
}
