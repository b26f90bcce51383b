package domain

import "time"

// Download is a registered local copy of a fully retrieved URL
type Download struct {
	ID           int64
	URL          string
	LocalFile    string
	HTML         bool
	RegisteredAt time.Time
}
