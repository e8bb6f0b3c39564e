package arq

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Shares is the registry of directories remote stations may read from and
// write to. Names on the wire are slash separated and relative to the root.
type Shares struct {
	mu sync.RWMutex

	root         string
	credFile     string
	autoRegister bool
	allow        []string
	protected    map[string]bool
	deny         map[string]bool
	dirs         map[string]bool

	logger Logger
}

// NewShares builds the registry from cfg and scans the root once. An empty
// SharedRoot yields a registry that rejects every path.
func NewShares(cfg *Config, logger Logger) *Shares {
	if logger == nil {
		logger = NoopLogger{}
	}
	s := &Shares{
		root:         cfg.SharedRoot,
		credFile:     cfg.CredentialFile,
		autoRegister: cfg.AutoRegisterDirs,
		protected:    make(map[string]bool),
		deny:         make(map[string]bool),
		dirs:         make(map[string]bool),
		logger:       logger,
	}
	for _, d := range cfg.AllowDirs {
		s.allow = append(s.allow, cleanDir(d))
	}
	for _, d := range cfg.ProtectedDirs {
		d = cleanDir(d)
		s.protected[d] = true
		s.allow = append(s.allow, d)
	}
	for _, d := range cfg.DenyDirs {
		s.deny[cleanDir(d)] = true
	}
	if err := s.Refresh(); err != nil {
		logger.Error("shares: %v", err)
	}
	return s
}

func cleanDir(d string) string {
	d = path.Clean("/" + filepath.ToSlash(d))
	return strings.TrimPrefix(d, "/")
}

// Enabled reports whether a shared root is configured.
func (s *Shares) Enabled() bool {
	return s.root != ""
}

// Root returns the shared root directory.
func (s *Shares) Root() string {
	return s.root
}

// CheckName rejects parent traversal, absolute paths and the credential
// file. It performs no I/O.
func (s *Shares) CheckName(name string) error {
	if name == "" {
		return NewError(ErrResource, "empty path")
	}
	if strings.Contains(name, "..") {
		return NewError(ErrResource, "path traversal rejected")
	}
	if strings.HasPrefix(name, "/") || strings.ContainsAny(name, "\\:\x00") {
		return NewError(ErrResource, "invalid path")
	}
	if s.credFile != "" && strings.EqualFold(path.Base(name), filepath.Base(s.credFile)) {
		return NewError(ErrResource, "access denied")
	}
	return nil
}

// Refresh rebuilds the set of registered sub-directories from the
// filesystem.
func (s *Shares) Refresh() error {
	if s.root == "" {
		return nil
	}
	dirs := make(map[string]bool)
	for _, d := range s.allow {
		if d == "" || s.denied(d) {
			continue
		}
		if fi, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(d))); err == nil && fi.IsDir() {
			dirs[d] = true
		}
	}
	if s.autoRegister {
		err := filepath.WalkDir(s.root, func(p string, e fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !e.IsDir() || p == s.root {
				return nil
			}
			rel, err := filepath.Rel(s.root, p)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if strings.HasPrefix(e.Name(), ".") || s.denied(rel) {
				return filepath.SkipDir
			}
			dirs[rel] = true
			return nil
		})
		if err != nil {
			return fmt.Errorf("scan %s: %w", s.root, err)
		}
	}

	s.mu.Lock()
	s.dirs = dirs
	s.mu.Unlock()
	return nil
}

func (s *Shares) denied(dir string) bool {
	for d := dir; d != "." && d != ""; d = path.Dir(d) {
		if s.deny[d] {
			return true
		}
	}
	return false
}

// Registered reports whether dir may be used; the root always may.
func (s *Shares) Registered(dir string) bool {
	dir = cleanDir(dir)
	if dir == "" {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirs[dir]
}

// Dirs returns the registered sub-directories in sorted order.
func (s *Shares) Dirs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.dirs))
	for d := range s.dirs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Protected reports whether dir or one of its parents requires
// authentication.
func (s *Shares) Protected(dir string) bool {
	for d := cleanDir(dir); d != "." && d != ""; d = path.Dir(d) {
		if s.protected[d] {
			return true
		}
	}
	return false
}

// Resolve maps a relative file name to its filesystem path for reading.
// It returns the directory part so callers can check Protected.
func (s *Shares) Resolve(name string) (string, string, error) {
	if !s.Enabled() {
		return "", "", NewError(ErrResource, "file sharing disabled")
	}
	if err := s.CheckName(name); err != nil {
		return "", "", err
	}
	dir := path.Dir(cleanDir(name))
	if dir == "." {
		dir = ""
	}
	if !s.Registered(dir) {
		return "", dir, NewError(ErrResource, "directory not found")
	}
	return filepath.Join(s.root, filepath.FromSlash(cleanDir(name))), dir, nil
}

// ResolveDir maps a relative directory to its filesystem path.
func (s *Shares) ResolveDir(dir string) (string, error) {
	if !s.Enabled() {
		return "", NewError(ErrResource, "file sharing disabled")
	}
	if dir != "" {
		if err := s.CheckName(dir); err != nil {
			return "", err
		}
	}
	if !s.Registered(dir) {
		return "", NewError(ErrResource, "directory not found")
	}
	return filepath.Join(s.root, filepath.FromSlash(cleanDir(dir))), nil
}

// ResolveDest maps a destination directory and a base file name to the
// filesystem path a received file is written to.
func (s *Shares) ResolveDest(dest, name string) (string, error) {
	if err := s.CheckName(name); err != nil {
		return "", err
	}
	if strings.Contains(name, "/") {
		return "", NewError(ErrResource, "file name may not contain a directory")
	}
	dir, err := s.ResolveDir(dest)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// Listing renders the contents of dir, one entry per line:
//
//	name size YYYY-MM-DD HH:MM
//
// Registered sub-directories carry a trailing slash. Dot files and the
// credential file are omitted.
func (s *Shares) Listing(dir string) ([]byte, error) {
	full, err := s.ResolveDir(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, WrapError(ErrResource, "read directory", err)
	}

	rel := cleanDir(dir)
	var buf bytes.Buffer
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if s.credFile != "" && strings.EqualFold(name, filepath.Base(s.credFile)) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stamp := info.ModTime().UTC().Format("2006-01-02 15:04")
		if e.IsDir() {
			if !s.Registered(path.Join(rel, name)) {
				continue
			}
			fmt.Fprintf(&buf, "%s/ %d %s\n", name, 0, stamp)
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		fmt.Fprintf(&buf, "%s %d %s\n", name, info.Size(), stamp)
	}
	return buf.Bytes(), nil
}

// Watch keeps the registry in step with directories created, removed or
// renamed under the root until ctx is done.
func (s *Shares) Watch(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool)
	rewatch := func() {
		want := map[string]bool{s.root: true}
		for _, d := range s.Dirs() {
			want[filepath.Join(s.root, filepath.FromSlash(d))] = true
		}
		for p := range want {
			if !watched[p] {
				if err := watcher.Add(p); err != nil {
					s.logger.Error("shares: watch %s: %v", p, err)
					continue
				}
				watched[p] = true
			}
		}
		for p := range watched {
			if !want[p] {
				watcher.Remove(p)
				delete(watched, p)
			}
		}
	}
	rewatch()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			if err := s.Refresh(); err != nil {
				s.logger.Error("shares: %v", err)
			}
			rewatch()
			s.logger.Debug("shares: %s %s, %d directories registered", event.Op, event.Name, len(s.Dirs()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("shares: watcher: %v", err)
		}
	}
}
