package runner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/qa-tooling/uiprobe/internal/scenario"
)

// SuiteRegistry holds loaded suites by name.
type SuiteRegistry struct {
	mu     sync.RWMutex
	suites map[string]*scenario.Suite
	// files maps suite names to the file they were read from
	files map[string]string
}

// NewSuiteRegistry creates an empty registry.
func NewSuiteRegistry() *SuiteRegistry {
	return &SuiteRegistry{
		suites: make(map[string]*scenario.Suite),
		files:  make(map[string]string),
	}
}

// Register adds a suite. Names must be unique.
func (r *SuiteRegistry) Register(s *scenario.Suite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, exists := r.suites[s.Name]; exists {
		return fmt.Errorf("suite %q from %s already registered from %s", s.Name, s.Source, prev.Source)
	}
	r.suites[s.Name] = s
	return nil
}

// Reload reads every file-backed suite again so edits take effect without a
// restart. A file that no longer parses keeps its previous version; the
// errors are joined. Embedded suites never change.
func (r *SuiteRegistry) Reload() error {
	r.mu.RLock()
	files := make(map[string]string, len(r.files))
	for name, path := range r.files {
		files[name] = path
	}
	r.mu.RUnlock()

	var errs []error
	for name, path := range files {
		s, err := scenario.LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.replace(name, s, path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// replace swaps the suite registered as old for s, which may have been
// renamed in its file.
func (r *SuiteRegistry) replace(old string, s *scenario.Suite, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Name != old {
		if prev, exists := r.suites[s.Name]; exists {
			return fmt.Errorf("suite %q from %s already registered from %s", s.Name, path, prev.Source)
		}
		delete(r.suites, old)
		delete(r.files, old)
	}
	r.suites[s.Name] = s
	r.files[s.Name] = path
	return nil
}

// Names returns the registered suite names in sorted order.
func (r *SuiteRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.suites))
	for name := range r.suites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every suite ordered by name.
func (r *SuiteRegistry) All() []*scenario.Suite {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*scenario.Suite, 0, len(names))
	for _, name := range names {
		out = append(out, r.suites[name])
	}
	return out
}

// Len returns the number of registered suites.
func (r *SuiteRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.suites)
}

// IsSuiteFile reports whether name has a suite file extension.
func IsSuiteFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// LoadPaths registers every suite found at paths. A path is a suite file or
// a directory searched recursively for *.yaml and *.yml files.
func (r *SuiteRegistry) LoadPaths(paths ...string) error {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("failed to read suite path: %w", err)
		}
		if !info.IsDir() {
			if err := r.loadFile(p); err != nil {
				return err
			}
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !IsSuiteFile(d.Name()) {
				return nil
			}
			return r.loadFile(path)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *SuiteRegistry) loadFile(path string) error {
	s, err := scenario.LoadFile(path)
	if err != nil {
		return err
	}
	if err := r.Register(s); err != nil {
		return err
	}
	r.mu.Lock()
	r.files[s.Name] = path
	r.mu.Unlock()
	return nil
}

// LoadFS registers every suite file at the top of fsys, such as the
// built-in suites.
func (r *SuiteRegistry) LoadFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("failed to list suites: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !IsSuiteFile(e.Name()) {
			continue
		}
		s, err := scenario.LoadFS(fsys, e.Name())
		if err != nil {
			return err
		}
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}
