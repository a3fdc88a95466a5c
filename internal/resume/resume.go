// Package resume persists which probes of a scan have finished so an
// interrupted scan can pick up where it stopped. One file holds the progress
// of every target of the scan.
package resume

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/failwarn/corstester/internal/scanner"
)

// File is the resume state of a whole scan, keyed by target URL.
type File struct {
	mu      sync.Mutex
	path    string
	targets map[string]*State
}

// State tracks the progress of a scan against one target.
type State struct {
	URL       string   `json:"url"`
	Completed []string `json:"completed"` // WorkItem keys
	Total     int      `json:"total"`

	mu   sync.Mutex
	done map[string]struct{}
}

type fileData struct {
	Targets []*State `json:"targets"`
}

// Open loads the resume file at path. A missing file yields an empty one.
func Open(path string) (*File, error) {
	f := &File{path: path, targets: make(map[string]*State)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, fmt.Errorf("reading resume file: %w", err)
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("parsing resume file: %w", err)
	}
	for _, s := range fd.Targets {
		if s == nil || s.URL == "" {
			continue
		}
		s.done = make(map[string]struct{}, len(s.Completed))
		for _, k := range s.Completed {
			s.done[k] = struct{}{}
		}
		f.targets[s.URL] = s
	}
	return f, nil
}

// Target returns the saved state for url, or registers a fresh one.
func (f *File) Target(url string, total int) *State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.targets[url]; ok {
		return s
	}
	s := &State{URL: url, Total: total, done: make(map[string]struct{})}
	f.targets[url] = s
	return s
}

// Finish drops url's state once every probe against it has run.
func (f *File) Finish(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.targets, url)
}

// Pending reports how many targets still have unfinished progress.
func (f *File) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.targets)
}

// Save writes every target's state to disk. The file is replaced atomically
// so a crash mid-write leaves the previous state intact.
func (f *File) Save() error {
	f.mu.Lock()
	fd := fileData{Targets: make([]*State, 0, len(f.targets))}
	for _, s := range f.targets {
		fd.Targets = append(fd.Targets, s)
	}
	f.mu.Unlock()

	for _, s := range fd.Targets {
		s.mu.Lock()
	}
	data, err := json.Marshal(fd)
	for _, s := range fd.Targets {
		s.mu.Unlock()
	}
	if err != nil {
		return fmt.Errorf("serializing resume state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".corstester-resume-*")
	if err != nil {
		return fmt.Errorf("writing resume state: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing resume state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing resume state: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}

// Remove deletes the resume file (called once the whole scan completed).
func (f *File) Remove() error {
	err := os.Remove(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// IsCompleted reports whether item was already probed.
func (s *State) IsCompleted(item scanner.WorkItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.done[item.Key()]
	return ok
}

// MarkCompleted records item as done.
func (s *State) MarkCompleted(item scanner.WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := item.Key()
	if _, ok := s.done[key]; !ok {
		s.done[key] = struct{}{}
		s.Completed = append(s.Completed, key)
	}
}

// FilterRemaining returns only the items that haven't been completed yet.
func (s *State) FilterRemaining(items []scanner.WorkItem) []scanner.WorkItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var remaining []scanner.WorkItem
	for _, it := range items {
		if _, ok := s.done[it.Key()]; !ok {
			remaining = append(remaining, it)
		}
	}
	return remaining
}
