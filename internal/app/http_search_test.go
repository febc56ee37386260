package app

import (
	"context"
	"net/http"
	"testing"

	"scribe/api/internal/search"
	"scribe/api/internal/store"
)

// recordingSearchStore captures the limit the FTS fallback receives.
type recordingSearchStore struct {
	lastLimit int
}

func (r *recordingSearchStore) UpsertNoteRecord(context.Context, store.NoteRecord) error {
	return nil
}

func (r *recordingSearchStore) DeleteNoteRecord(context.Context, string) error {
	return nil
}

func (r *recordingSearchStore) ReplaceNoteRecords(context.Context, string, []store.NoteRecord) error {
	return nil
}

func (r *recordingSearchStore) SearchNotes(_ context.Context, _, _ string, limit int) ([]store.NoteRecord, error) {
	r.lastLimit = limit
	return []store.NoteRecord{{NoteID: "note-1", Title: "Milk run", Body: "buy <mark>milk</mark>"}}, nil
}

func TestSearchPassesPositiveLimitThrough(t *testing.T) {
	env := newTestEnv(t)
	rs := &recordingSearchStore{}
	env.service.search = search.NewService(nil, rs)

	rec, body := env.do(t, http.MethodGet, "/api/search?q=milk&limit=5", "avery", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp search.Response
	decodeData(t, body, &resp)
	if len(resp.Results) != 1 || resp.Results[0].NoteID != "note-1" {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
	if rs.lastLimit != 5 {
		t.Fatalf("backend saw limit %d, want 5", rs.lastLimit)
	}
}

func TestSearchClampsNonPositiveLimit(t *testing.T) {
	env := newTestEnv(t)
	rs := &recordingSearchStore{}
	env.service.search = search.NewService(nil, rs)

	for _, raw := range []string{"-3", "0"} {
		rec, _ := env.do(t, http.MethodGet, "/api/search?q=milk&limit="+raw, "avery", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("limit=%s status = %d body=%s", raw, rec.Code, rec.Body.String())
		}
		if rs.lastLimit != 20 {
			t.Fatalf("limit=%s: backend saw %d, want default 20", raw, rs.lastLimit)
		}
	}
}

func TestSearchRejectsNonIntegerLimit(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodGet, "/api/search?q=milk&limit=abc", "avery", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if body.Error != "limit must be an integer" {
		t.Fatalf("unexpected error: %q", body.Error)
	}
}
