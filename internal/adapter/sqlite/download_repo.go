package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vertextoedge/url-retriever/internal/domain"
)

// RegisterDownload records that url was saved to localFile.
// Registering the same url again replaces the local file.
func (s *Store) RegisterDownload(url, localFile string) error {
	return s.register(url, localFile, false)
}

// RegisterHTML records that localFile holds HTML fetched from url
func (s *Store) RegisterHTML(url, localFile string) error {
	return s.register(url, localFile, true)
}

func (s *Store) register(url, localFile string, html bool) error {
	if url == "" || localFile == "" {
		return fmt.Errorf("%w: url and local file are required", domain.ErrInvalidInput)
	}

	// The html flag is sticky: a later plain registration keeps it.
	query := `
		INSERT INTO downloads (url, local_file, html, registered_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			local_file = excluded.local_file,
			html = downloads.html OR excluded.html,
			registered_at = excluded.registered_at
	`
	if _, err := s.db.Exec(query, url, localFile, html, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to register %s: %w", url, err)
	}
	return nil
}

// LocalFileFor returns the local file registered for url
func (s *Store) LocalFileFor(url string) (string, error) {
	var localFile string
	err := s.db.QueryRow("SELECT local_file FROM downloads WHERE url = ?", url).Scan(&localFile)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return localFile, nil
}

// Downloads returns every registered download in registration order
func (s *Store) Downloads() ([]*domain.Download, error) {
	return s.list(`
		SELECT id, url, local_file, html, registered_at
		FROM downloads
		ORDER BY id
	`)
}

// HTMLPages returns the registered downloads that hold HTML
func (s *Store) HTMLPages() ([]*domain.Download, error) {
	return s.list(`
		SELECT id, url, local_file, html, registered_at
		FROM downloads
		WHERE html = TRUE
		ORDER BY id
	`)
}

// Forget removes the registration of url
func (s *Store) Forget(url string) error {
	_, err := s.db.Exec("DELETE FROM downloads WHERE url = ?", url)
	return err
}

// Count returns the number of registered downloads
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM downloads").Scan(&n)
	return n, err
}

func (s *Store) list(query string, args ...any) ([]*domain.Download, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []*domain.Download
	for rows.Next() {
		d := &domain.Download{}
		if err := rows.Scan(&d.ID, &d.URL, &d.LocalFile, &d.HTML, &d.RegisteredAt); err != nil {
			return nil, err
		}
		downloads = append(downloads, d)
	}
	return downloads, rows.Err()
}
