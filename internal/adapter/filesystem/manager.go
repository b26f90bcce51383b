package filesystem

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/vertextoedge/url-retriever/internal/domain"
	"github.com/vertextoedge/url-retriever/internal/port"
)

// DefaultIndexFile names the local file for directory URLs
const DefaultIndexFile = "index.html"

// Manager handles local filesystem operations
type Manager struct {
	rootDir    string
	indexFile  string
	bufferSize int
}

// Ensure Manager implements port.OutputFiles
var _ port.OutputFiles = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager(rootDir string) (*Manager, error) {
	return NewManagerWithBufferSize(rootDir, 64*1024) // 64KB default
}

// NewManagerWithBufferSize creates a new filesystem manager with custom buffer size
func NewManagerWithBufferSize(rootDir string, bufferSize int) (*Manager, error) {
	// Ensure root directory exists
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output root dir: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 64 * 1024
	}

	return &Manager{
		rootDir:    rootDir,
		indexFile:  DefaultIndexFile,
		bufferSize: bufferSize,
	}, nil
}

// RootDir returns the output root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// LocalPath maps a URL to root/host[:port]/path. Directory URLs get the
// index file name. The path cannot escape the host directory.
func (m *Manager) LocalPath(u domain.URL) string {
	p := u.Path
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	p = path.Clean("/" + p)
	if u.IsDirectory() {
		p = path.Join(p, m.indexFile)
	}

	host := u.Host
	if u.Port != "" {
		host += ":" + u.Port
	}
	return filepath.Join(m.rootDir, host, filepath.FromSlash(p))
}

// EnsureDir ensures the directory for a file path exists
func (m *Manager) EnsureDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return os.MkdirAll(dir, 0755)
}

// Open opens a local file for writing. appendMode keeps existing
// content for resumed transfers.
func (m *Manager) Open(filePath string, appendMode bool) (port.OutputFile, error) {
	// Ensure parent directory exists
	if err := m.EnsureDir(filePath); err != nil {
		return nil, fmt.Errorf("failed to create parent dir: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendMode {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(filePath, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return &outputFile{
		file:   f,
		Writer: bufio.NewWriterSize(f, m.bufferSize),
	}, nil
}

// Remove deletes a local file. A missing file is not an error.
func (m *Manager) Remove(filePath string) error {
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists checks if a local file exists
func (m *Manager) Exists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}

// Size returns the size of a local file
func (m *Manager) Size(filePath string) (int64, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// CleanEmptyDirs removes empty directories under root, deepest first
func (m *Manager) CleanEmptyDirs() error {
	var dirs []string
	err := filepath.Walk(m.rootDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && p != m.rootDir {
			dirs = append(dirs, p)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		os.Remove(dirs[i]) // Will only succeed if empty
	}
	return nil
}

// outputFile is a buffered writer over an open file
type outputFile struct {
	*bufio.Writer
	file *os.File
}

// Close flushes buffered data and closes the file
func (o *outputFile) Close() error {
	flushErr := o.Writer.Flush()
	closeErr := o.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
