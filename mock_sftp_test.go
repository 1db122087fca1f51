package pipeline

import (
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"
)

// mockFileInfo implements os.FileInfo for testing.
type mockFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() os.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// MockSFTPFile implements SFTPFile for testing. Writes are mirrored into
// the owning mock client's file map on the fly.
type MockSFTPFile struct {
	path       string
	mock       *MockSFTPClient
	content    []byte
	readOffset int
	closed     bool
}

// NewMockSFTPFile creates a new mock SFTP file with the given content.
func NewMockSFTPFile(content []byte) *MockSFTPFile {
	return &MockSFTPFile{content: content}
}

func (f *MockSFTPFile) Read(p []byte) (int, error) {
	if f.readOffset >= len(f.content) {
		return 0, io.EOF
	}
	n := copy(p, f.content[f.readOffset:])
	f.readOffset += n
	return n, nil
}

func (f *MockSFTPFile) Write(p []byte) (int, error) {
	f.content = append(f.content, p...)
	if f.mock != nil && f.path != "" {
		f.mock.files[f.path] = f.content
	}
	return len(p), nil
}

func (f *MockSFTPFile) Close() error {
	f.closed = true
	return nil
}

// MockSFTPClient implements SFTPClientInterface for testing. It keeps an
// in-memory remote filesystem keyed by POSIX path; directories exist
// implicitly when a file lives under them, or explicitly via MkdirAll.
type MockSFTPClient struct {
	files  map[string][]byte
	dirs   map[string]bool
	errors map[string]error
	closed bool
}

// NewMockSFTPClient creates a new mock SFTP client.
func NewMockSFTPClient() *MockSFTPClient {
	return &MockSFTPClient{
		files:  make(map[string][]byte),
		dirs:   make(map[string]bool),
		errors: make(map[string]error),
	}
}

// Ensure MockSFTPClient implements SFTPClientInterface.
var _ SFTPClientInterface = (*MockSFTPClient)(nil)

// SetError sets an error for a method ("Open") or a method on a specific
// path ("Open:/data/in/a.txt").
func (m *MockSFTPClient) SetError(key string, err error) {
	m.errors[key] = err
}

// SetFile sets a file in the mock remote filesystem.
func (m *MockSFTPClient) SetFile(p string, content []byte) {
	m.files[p] = content
}

// Paths returns all file paths in the mock remote filesystem, sorted.
func (m *MockSFTPClient) Paths() []string {
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (m *MockSFTPClient) err(method, p string) error {
	if err, ok := m.errors[method+":"+p]; ok {
		return err
	}
	return m.errors[method]
}

func (m *MockSFTPClient) Open(p string) (SFTPFile, error) {
	if err := m.err("Open", p); err != nil {
		return nil, err
	}
	content, ok := m.files[p]
	if !ok {
		return nil, os.ErrNotExist
	}
	return NewMockSFTPFile(content), nil
}

func (m *MockSFTPClient) Create(p string) (SFTPFile, error) {
	if err := m.err("Create", p); err != nil {
		return nil, err
	}
	m.files[p] = []byte{}
	return &MockSFTPFile{path: p, mock: m}, nil
}

func (m *MockSFTPClient) Stat(p string) (os.FileInfo, error) {
	if err := m.err("Stat", p); err != nil {
		return nil, err
	}
	if content, ok := m.files[p]; ok {
		return &mockFileInfo{
			name:    path.Base(p),
			size:    int64(len(content)),
			mode:    0644,
			modTime: time.Now(),
		}, nil
	}
	if m.isDir(p) {
		return &mockFileInfo{name: path.Base(p), mode: os.ModeDir | 0755, isDir: true}, nil
	}
	return nil, os.ErrNotExist
}

func (m *MockSFTPClient) ReadDir(dir string) ([]os.FileInfo, error) {
	if err := m.err("ReadDir", dir); err != nil {
		return nil, err
	}
	if !m.isDir(dir) {
		return nil, os.ErrNotExist
	}

	prefix := strings.TrimSuffix(dir, "/") + "/"
	seen := make(map[string]os.FileInfo)
	for p, content := range m.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			name := rest[:i]
			seen[name] = &mockFileInfo{name: name, mode: os.ModeDir | 0755, isDir: true}
			continue
		}
		seen[rest] = &mockFileInfo{name: rest, size: int64(len(content)), mode: 0644}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]os.FileInfo, 0, len(names))
	for _, name := range names {
		entries = append(entries, seen[name])
	}
	return entries, nil
}

func (m *MockSFTPClient) MkdirAll(p string) error {
	if err := m.err("MkdirAll", p); err != nil {
		return err
	}
	m.dirs[strings.TrimSuffix(p, "/")] = true
	return nil
}

func (m *MockSFTPClient) Close() error {
	if err := m.err("Close", ""); err != nil {
		return err
	}
	m.closed = true
	return nil
}

func (m *MockSFTPClient) isDir(p string) bool {
	p = strings.TrimSuffix(p, "/")
	if p == "" || m.dirs[p] {
		return true
	}
	prefix := p + "/"
	for f := range m.files {
		if strings.HasPrefix(f, prefix) {
			return true
		}
	}
	return false
}
