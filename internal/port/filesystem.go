package port

import "github.com/vertextoedge/url-retriever/internal/domain"

// OutputFile is an open local file receiving a transfer
type OutputFile interface {
	Output
	Close() error
}

// OutputFiles defines the local storage used by protocol loops
type OutputFiles interface {
	// RootDir returns the output root directory
	RootDir() string

	// LocalPath returns the local file path for a URL
	LocalPath(u domain.URL) string

	// Open opens a local file for writing, creating parent directories.
	// With appendMode the file is opened for appending (resume),
	// otherwise it is truncated.
	Open(path string, appendMode bool) (OutputFile, error)

	// Exists checks if a local file exists
	Exists(path string) bool

	// Size returns the size of a local file
	Size(path string) (int64, error)

	// Remove deletes a local file
	Remove(path string) error
}
