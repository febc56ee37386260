package app

import (
	"net/http"
	"strings"
	"testing"
)

func TestExportNoteAsHTML(t *testing.T) {
	env := newTestEnv(t)
	forest := fetchTree(t, env, "avery")
	noteID := forest[0].Notes[0].ID

	rec, _ := env.do(t, http.MethodGet, "/api/notes/"+noteID+"/export?format=html", "avery", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), ".html") {
		t.Fatalf("content disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(rec.Body.String(), "Welcome to Scribe") {
		t.Fatal("exported page missing note title")
	}
}

func TestExportUnknownNote(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodGet, "/api/notes/note-missing/export", "avery", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if body.Error != "Note not found" {
		t.Fatalf("error = %q", body.Error)
	}
}

func TestExportBadFormat(t *testing.T) {
	env := newTestEnv(t)
	forest := fetchTree(t, env, "avery")
	noteID := forest[0].Notes[0].ID

	rec, _ := env.do(t, http.MethodGet, "/api/notes/"+noteID+"/export?format=odt", "avery", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
