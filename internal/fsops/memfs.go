package fsops

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
)

// MemFileSystem implements FileSystem for testing.
// Keeps the tree in memory and records every call so tests can assert on
// exactly which operations a cleanup pass performed.
type MemFileSystem struct {
	mu    sync.Mutex
	nodes map[string]bool // path -> isDir
	fails map[string]error
	Calls []string
}

// NewMemFileSystem returns an empty tree holding only the root directory.
func NewMemFileSystem() *MemFileSystem {
	return &MemFileSystem{
		nodes: map[string]bool{"/": true},
		fails: map[string]error{},
	}
}

func (m *MemFileSystem) URI() string { return "mem:///" }

// MkdirAll creates a directory and any missing parents.
func (m *MemFileSystem) MkdirAll(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAll(CleanPath(p))
}

// WriteFile creates a file entry, creating parents as needed.
func (m *MemFileSystem) WriteFile(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = CleanPath(p)
	m.mkdirAll(path.Dir(p))
	m.nodes[p] = false
}

// FailOn makes the next and every later call of op ("exists", "rmall",
// "ls") on p return err.
func (m *MemFileSystem) FailOn(op, p string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fails[op+":"+CleanPath(p)] = err
}

// Has reports whether p is present, without recording a call.
func (m *MemFileSystem) Has(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.nodes[CleanPath(p)]
	return ok
}

func (m *MemFileSystem) Exists(_ context.Context, p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = CleanPath(p)
	if err := m.record("exists", p); err != nil {
		return false, err
	}
	_, ok := m.nodes[p]
	return ok, nil
}

func (m *MemFileSystem) RemoveAll(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = CleanPath(p)
	if err := m.record("rmall", p); err != nil {
		return err
	}
	for k := range m.nodes {
		if k == p || strings.HasPrefix(k, strings.TrimSuffix(p, "/")+"/") {
			delete(m.nodes, k)
		}
	}
	return nil
}

func (m *MemFileSystem) List(_ context.Context, p string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = CleanPath(p)
	if err := m.record("ls", p); err != nil {
		return nil, err
	}
	isDir, ok := m.nodes[p]
	if !ok {
		return nil, &fs.PathError{Op: "ls", Path: p, Err: fs.ErrNotExist}
	}
	if !isDir {
		return nil, fmt.Errorf("ls %s: not a directory", p)
	}
	var names []string
	for k := range m.nodes {
		if k != "/" && path.Dir(k) == p {
			names = append(names, path.Base(k))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemFileSystem) record(op, p string) error {
	call := op + ":" + p
	m.Calls = append(m.Calls, call)
	return m.fails[call]
}

func (m *MemFileSystem) mkdirAll(p string) {
	for ; p != "/" && p != "." && p != ""; p = path.Dir(p) {
		m.nodes[p] = true
	}
}
