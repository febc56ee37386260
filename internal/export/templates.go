package export

import (
	"bytes"
	"html/template"
	"time"
)

// TemplateData holds data for note template rendering
type TemplateData struct {
	Title       string
	ContentHTML template.HTML
	Author      string
	UpdatedAt   time.Time
}

var noteTemplate = template.Must(template.New("note").Parse(noteTemplateText))

// RenderNoteHTML renders a note as a standalone HTML page
func RenderNoteHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := noteTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const noteTemplateText = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, serif; line-height: 1.6; max-width: 720px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    img { max-width: 100%; }
    blockquote { border-left: 3px solid #ccc; margin-left: 0; padding-left: 1rem; color: #555; }
    pre { background: #f5f5f5; padding: 1rem; overflow-x: auto; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.Author}}{{if not .UpdatedAt.IsZero}} | {{.UpdatedAt.Format "Jan 2, 2006"}}{{end}}</div>
  <div>{{.ContentHTML}}</div>
</body>
</html>`
