package search

import (
	"context"
	"log"
	"strings"

	"scribe/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres FTS. The note_index table is always kept current since it is
// the fallback's source of truth; Meilisearch writes are fire-and-forget.
type Service struct {
	meili *Meili
	pgfts *PgFTS
	store RecordStore
}

// NewService creates a search service. meili may be nil when Meilisearch
// is not configured.
func NewService(meili *Meili, recordStore RecordStore) *Service {
	return &Service{
		meili: meili,
		pgfts: NewPgFTS(recordStore),
		store: recordStore,
	}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if strings.TrimSpace(q.Text) == "" {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}

	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexNote records a created or updated note.
func (s *Service) IndexNote(ctx context.Context, username, noteID, title, content string) {
	body := StripMarkup(content)
	if err := s.store.UpsertNoteRecord(ctx, store.NoteRecord{
		Username: username,
		NoteID:   noteID,
		Title:    title,
		Body:     body,
	}); err != nil {
		log.Printf("search: upsert note record %s: %v", noteID, err)
	}

	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexNote(Record{ID: noteID, Username: username, Title: title, Body: body}); err != nil {
			log.Printf("search: index note %s: %v", noteID, err)
		}
	}()
}

// DeleteNote removes a note from the index.
func (s *Service) DeleteNote(ctx context.Context, noteID string) {
	if err := s.store.DeleteNoteRecord(ctx, noteID); err != nil {
		log.Printf("search: delete note record %s: %v", noteID, err)
	}

	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteNote(noteID); err != nil {
			log.Printf("search: delete note %s: %v", noteID, err)
		}
	}()
}

// Reindex replaces a user's whole index, used after a tree restore.
func (s *Service) Reindex(ctx context.Context, username string, records []Record) {
	storeRecords := make([]store.NoteRecord, 0, len(records))
	for _, rec := range records {
		storeRecords = append(storeRecords, store.NoteRecord{
			Username: username,
			NoteID:   rec.ID,
			Title:    rec.Title,
			Body:     rec.Body,
		})
	}
	if err := s.store.ReplaceNoteRecords(ctx, username, storeRecords); err != nil {
		log.Printf("search: reindex records for %s: %v", username, err)
	}

	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexNotes(records); err != nil {
			log.Printf("search: reindex %s: %v", username, err)
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
