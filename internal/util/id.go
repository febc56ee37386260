package util

import "github.com/google/uuid"

// NewID returns a prefixed unique identifier, e.g. "note-4f9c…".
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
