// Package sandbox confines file reads requested by serve-mode clients to
// the task directories and bounds their size.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrDenied is returned for paths or files the sandbox refuses.
var ErrDenied = errors.New("sandbox: access denied")

// Sandbox enforces allowed/denied paths and a file size limit.
type Sandbox struct {
	allowedPaths []string
	deniedPaths  []string
	maxFileSize  int64 // bytes, 0 means unlimited
}

// Config holds the sandbox configuration.
type Config struct {
	AllowedPaths []string
	DeniedPaths  []string
	MaxFileSize  string // e.g. "512KB", "1MB"
}

// New creates a Sandbox from the given configuration.
// Allowed and denied paths are resolved to absolute paths.
func New(cfg Config) (*Sandbox, error) {
	s := &Sandbox{}

	for _, p := range cfg.AllowedPaths {
		abs, err := resolve(p)
		if err != nil {
			return nil, fmt.Errorf("sandbox: resolve allowed path %q: %w", p, err)
		}
		s.allowedPaths = append(s.allowedPaths, abs)
	}

	for _, p := range cfg.DeniedPaths {
		abs, err := resolve(p)
		if err != nil {
			return nil, fmt.Errorf("sandbox: resolve denied path %q: %w", p, err)
		}
		s.deniedPaths = append(s.deniedPaths, abs)
	}

	if cfg.MaxFileSize != "" {
		size, err := ParseFileSize(cfg.MaxFileSize)
		if err != nil {
			return nil, fmt.Errorf("sandbox: parse max file size %q: %w", cfg.MaxFileSize, err)
		}
		s.maxFileSize = size
	}

	return s, nil
}

// resolve makes p absolute and follows symlinks when p exists, so a link
// inside an allowed directory cannot point outside it.
func resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs)), nil
	}
	return abs, nil
}

func under(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

// CheckPath returns nil if path may be read. Denied paths take precedence;
// with no allowed paths configured every other path is allowed.
func (s *Sandbox) CheckPath(path string) error {
	abs, err := resolve(path)
	if err != nil {
		return fmt.Errorf("sandbox: resolve path %q: %w", path, err)
	}

	for _, denied := range s.deniedPaths {
		if under(abs, denied) {
			return fmt.Errorf("%w: %s is under denied path %s", ErrDenied, abs, denied)
		}
	}

	if len(s.allowedPaths) == 0 {
		return nil
	}
	for _, allowed := range s.allowedPaths {
		if under(abs, allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not under any allowed path %v", ErrDenied, abs, s.allowedPaths)
}

// CheckFileSize returns nil if size is within the configured limit.
func (s *Sandbox) CheckFileSize(size int64) error {
	if s.maxFileSize <= 0 || size <= s.maxFileSize {
		return nil
	}
	return fmt.Errorf("%w: file size %d bytes exceeds maximum %s",
		ErrDenied, size, formatFileSize(s.maxFileSize))
}

// ReadFile reads path after checking it against the sandbox.
func (s *Sandbox) ReadFile(path string) ([]byte, error) {
	if err := s.CheckPath(path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if err := s.CheckFileSize(info.Size()); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// ParseFileSize parses a human-readable size such as "512KB" into bytes.
// Supported suffixes: B, KB, MB, GB (case-insensitive).
func ParseFileSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	suffixes := []struct {
		suffix     string
		multiplier int64
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}
	for _, sf := range suffixes {
		if strings.HasSuffix(s, sf.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, sf.suffix))
			n, err := strconv.ParseFloat(numStr, 64)
			if err != nil || n < 0 {
				return 0, fmt.Errorf("invalid number %q", numStr)
			}
			return int64(n * float64(sf.multiplier)), nil
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid file size %q", s)
	}
	return n, nil
}

func formatFileSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1fGB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1fMB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1fKB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
