// Package export renders notes as standalone HTML, PDF, or DOCX files.
package export

import "errors"

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request contains parameters for an export operation
type Request struct {
	Username string
	NoteID   string
	Format   Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrNoteNotFound indicates the requested note does not exist in the user's tree.
	ErrNoteNotFound = errors.New("export note not found")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
