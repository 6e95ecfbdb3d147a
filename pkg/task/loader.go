package task

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// MalformedTaskError reports a task file that could not be parsed or failed
// validation. The task is skipped and recorded, never silently dropped.
type MalformedTaskError struct {
	Path   string
	TaskID string
	Err    error
}

func (e *MalformedTaskError) Error() string {
	id := e.TaskID
	if id == "" {
		id = e.Path
	}
	return fmt.Sprintf("malformed task %s: %v", id, e.Err)
}

func (e *MalformedTaskError) Unwrap() error { return e.Err }

// IsMalformed reports whether err is (or wraps) a MalformedTaskError.
func IsMalformed(err error) bool {
	var m *MalformedTaskError
	return errors.As(err, &m)
}

// Loaded pairs a task file with its parse result. Err is a
// *MalformedTaskError when the file could not be used.
type Loaded struct {
	Path string
	Spec TaskSpec
	Err  error
}

// ID returns the task id, falling back to the file name for files that did
// not parse far enough to yield one.
func (l Loaded) ID() string {
	if l.Spec.ID != "" {
		return l.Spec.ID
	}
	base := filepath.Base(l.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadTask reads, parses and validates a single task file.
func LoadTask(path string) (TaskSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TaskSpec{}, &MalformedTaskError{Path: path, Err: fmt.Errorf("read task: %w", err)}
	}
	t, err := ParseTask(data)
	if err != nil {
		var m *MalformedTaskError
		if errors.As(err, &m) {
			m.Path = path
			return t, m
		}
		return t, &MalformedTaskError{Path: path, TaskID: t.ID, Err: err}
	}
	return t, nil
}

// ParseTask decodes a JSON or YAML task document and validates it.
func ParseTask(data []byte) (TaskSpec, error) {
	var t TaskSpec
	if err := yaml.Unmarshal(data, &t); err != nil {
		return TaskSpec{}, &MalformedTaskError{Err: fmt.Errorf("parse task: %w", err)}
	}
	if vr := ValidateTask(t); !vr.Valid() {
		return t, &MalformedTaskError{TaskID: t.ID, Err: vr}
	}
	return t, nil
}

// isTaskFile matches the file extensions the loader reads.
func isTaskFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadDir loads every task file under dir in lexical path order. A file
// whose task_id was already used by an earlier file is malformed. When
// category is non-empty, tasks of other categories are skipped; files that
// fail to load are always returned so callers can report them.
func LoadDir(dir string, category Category) ([]Loaded, error) {
	var all []Loaded
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isTaskFile(d.Name()) {
			return nil
		}
		t, loadErr := LoadTask(path)
		all = append(all, Loaded{Path: path, Spec: t, Err: loadErr})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load tasks from %s: %w", dir, err)
	}

	all = MarkDuplicates(all)
	if category == "" {
		return all, nil
	}
	out := all[:0]
	for _, l := range all {
		if l.Err != nil || l.Spec.Category == category {
			out = append(out, l)
		}
	}
	return out, nil
}

// MarkDuplicates returns a copy of all in which every entry repeating the id
// of an earlier entry carries a *MalformedTaskError. The first occurrence
// keeps the id.
func MarkDuplicates(all []Loaded) []Loaded {
	out := make([]Loaded, len(all))
	first := make(map[string]string, len(all))
	for i, l := range all {
		out[i] = l
		id := l.ID()
		prev, seen := first[id]
		if !seen {
			first[id] = l.Path
			continue
		}
		if l.Err != nil {
			continue
		}
		where := ""
		if prev != "" {
			where = " (first defined in " + prev + ")"
		}
		out[i].Err = &MalformedTaskError{
			Path:   l.Path,
			TaskID: id,
			Err:    fmt.Errorf("duplicate task_id %q%s", id, where),
		}
	}
	return out
}

// FindTask loads the task with the given id from dir.
func FindTask(dir, id string) (TaskSpec, error) {
	all, err := LoadDir(dir, "")
	if err != nil {
		return TaskSpec{}, err
	}
	for _, l := range all {
		if l.ID() == id || (l.Err == nil && l.Spec.ID == id) {
			if l.Err != nil {
				return TaskSpec{}, l.Err
			}
			return l.Spec, nil
		}
	}
	return TaskSpec{}, fmt.Errorf("task %q not found in %s", id, dir)
}

// Select keeps the loaded tasks whose ids appear in ids, in the order of ids.
// Every entry sharing a requested id is kept, duplicates included. Ids with
// no matching file are returned as malformed entries.
func Select(all []Loaded, ids []string) []Loaded {
	byID := make(map[string][]Loaded, len(all))
	for _, l := range all {
		byID[l.ID()] = append(byID[l.ID()], l)
	}
	out := make([]Loaded, 0, len(ids))
	for _, id := range ids {
		if ls, ok := byID[id]; ok {
			out = append(out, ls...)
			continue
		}
		out = append(out, Loaded{
			Spec: TaskSpec{ID: id},
			Err:  &MalformedTaskError{TaskID: id, Err: errors.New("task file not found")},
		})
	}
	return out
}
