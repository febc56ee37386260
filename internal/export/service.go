package export

import (
	"context"
	"fmt"
	"html/template"
	"time"
)

// NoteSource defines the interface for note access
type NoteSource interface {
	GetNote(ctx context.Context, username, noteID string) (NoteInfo, error)
}

// NoteInfo holds the note content and metadata needed for rendering
type NoteInfo struct {
	ID        string
	Title     string
	Content   string // stored HTML body
	UpdatedAt time.Time
}

// Service provides note export functionality
type Service struct {
	source NoteSource
}

// NewService creates a new export service
func NewService(source NoteSource) *Service {
	return &Service{source: source}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	note, err := s.source.GetNote(ctx, req.Username, req.NoteID)
	if err != nil {
		return nil, err
	}

	html, err := RenderNoteHTML(TemplateData{
		Title:       note.Title,
		ContentHTML: template.HTML(note.Content),
		Author:      req.Username,
		UpdatedAt:   note.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(note.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, note.Title)
	case FormatDOCX:
		return exportDOCX(html, note.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
