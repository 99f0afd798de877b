package remotestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process remote store used for local runs and tests. It
// keeps SFTP semantics: writes need an existing parent directory.
type Memory struct {
	name string

	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]struct{}
	sessions int
	dials    int
}

func NewMemory(name string) *Memory {
	return &Memory{
		name:  name,
		files: map[string][]byte{},
		dirs:  map[string]struct{}{"/": {}},
	}
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Dial(context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions++
	m.dials++
	return &memorySession{store: m, cwd: "/"}, nil
}

// Put stores data at the absolute path p, creating parent directories.
func (m *Memory) Put(p string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = resolve("/", p)
	m.mkdirAllLocked(path.Dir(p))
	m.files[p] = append([]byte(nil), data...)
}

// Get returns the content stored at the absolute path p.
func (m *Memory) Get(p string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[resolve("/", p)]
	return data, ok
}

// Files lists every stored file path in sorted order.
func (m *Memory) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// OpenSessions reports sessions dialed but not yet closed.
func (m *Memory) OpenSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions
}

// Dials reports how many sessions were ever dialed.
func (m *Memory) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}

func (m *Memory) mkdirAllLocked(dir string) {
	for dir != "/" && dir != "." {
		m.dirs[dir] = struct{}{}
		dir = path.Dir(dir)
	}
}

type memorySession struct {
	store  *Memory
	cwd    string
	closed bool
}

func (s *memorySession) ChangeDir(_ context.Context, dir string) error {
	if s.closed {
		return ErrClosed
	}
	target := resolve(s.cwd, dir)
	s.store.mu.Lock()
	_, ok := s.store.dirs[target]
	s.store.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", target, ErrNotFound)
	}
	s.cwd = target
	return nil
}

func (s *memorySession) MakeDir(_ context.Context, dir string) error {
	if s.closed {
		return ErrClosed
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.mkdirAllLocked(resolve(s.cwd, dir))
	return nil
}

func (s *memorySession) Stat(_ context.Context, name string) (FileInfo, error) {
	if s.closed {
		return FileInfo{}, ErrClosed
	}
	p := resolve(s.cwd, name)
	s.store.mu.Lock()
	data, ok := s.store.files[p]
	s.store.mu.Unlock()
	if !ok {
		return FileInfo{}, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return FileInfo{Name: path.Base(p), Size: int64(len(data))}, nil
}

func (s *memorySession) List(_ context.Context, dir, pattern string) ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	target := resolve(s.cwd, dir)
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if _, ok := s.store.dirs[target]; !ok {
		return nil, fmt.Errorf("%s: %w", target, ErrNotFound)
	}
	var names []string
	for p := range s.store.files {
		if path.Dir(p) != target {
			continue
		}
		name := path.Base(p)
		ok, err := path.Match(pattern, name)
		if err != nil {
			return nil, err
		}
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *memorySession) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if s.closed {
		return nil, ErrClosed
	}
	p := resolve(s.cwd, name)
	s.store.mu.Lock()
	data, ok := s.store.files[p]
	s.store.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memorySession) Write(_ context.Context, remotePath string, r io.Reader) error {
	if s.closed {
		return ErrClosed
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	p := resolve(s.cwd, remotePath)
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if _, ok := s.store.dirs[path.Dir(p)]; !ok {
		return fmt.Errorf("%s: %w", path.Dir(p), ErrNotFound)
	}
	if strings.HasSuffix(remotePath, "/") {
		return fmt.Errorf("%s is a directory", p)
	}
	s.store.files[p] = data
	return nil
}

func (s *memorySession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.store.mu.Lock()
	s.store.sessions--
	s.store.mu.Unlock()
	return nil
}
