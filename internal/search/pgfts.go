package search

import (
	"context"
	"fmt"

	"scribe/api/internal/store"
)

// RecordStore is the slice of the data store the FTS fallback needs.
type RecordStore interface {
	UpsertNoteRecord(ctx context.Context, rec store.NoteRecord) error
	DeleteNoteRecord(ctx context.Context, noteID string) error
	ReplaceNoteRecords(ctx context.Context, username string, records []store.NoteRecord) error
	SearchNotes(ctx context.Context, username, query string, limit int) ([]store.NoteRecord, error)
}

// PgFTS implements note search over the note_index table.
type PgFTS struct {
	store RecordStore
}

func NewPgFTS(store RecordStore) *PgFTS {
	return &PgFTS{store: store}
}

// Search runs the Postgres full-text query.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	records, err := p.store.SearchNotes(ctx, q.Username, q.Text, q.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}

	results := make([]Result, 0, len(records))
	for _, rec := range records {
		results = append(results, Result{
			NoteID:  rec.NoteID,
			Title:   rec.Title,
			Snippet: rec.Body,
		})
	}
	return results, len(results), nil
}
