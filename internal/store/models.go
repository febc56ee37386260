package store

import "time"

type User struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// NoteRecord is a flattened note row kept in note_index for the Postgres
// full-text search fallback. Body holds the note content with markup
// stripped.
type NoteRecord struct {
	Username string
	NoteID   string
	Title    string
	Body     string
}
