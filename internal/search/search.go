// Package search provides full-text note search: Meilisearch when
// configured and healthy, Postgres FTS as the fallback.
package search

import "strings"

// Result is a single search hit returned to the caller.
type Result struct {
	NoteID  string `json:"noteId"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Query describes a search request, always scoped to one user.
type Query struct {
	Username string
	Text     string
	Limit    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Record is the data indexed per note. Body holds the note content with
// markup stripped.
type Record struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

// StripMarkup reduces rich-text markup to plain text for indexing. Tags
// are replaced with spaces so adjacent words do not run together.
func StripMarkup(markup string) string {
	var b strings.Builder
	b.Grow(len(markup))
	inTag := false
	for _, r := range markup {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
