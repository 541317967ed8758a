package store

import "time"

// Upload is one cached CSV file, keyed by the id kept in the session cookie.
type Upload struct {
	ID        string
	Filename  string
	Size      int64
	Data      []byte
	CreatedAt time.Time
}
