// Package render holds the default document renderer. Real template
// rendering (.docx orders with letterheads) lives in an external service;
// this HTML fallback keeps the render endpoint usable without it.
package render

import (
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"tabel/internal/model"
)

var orderTemplate = template.Must(template.New("order").Parse(`<!DOCTYPE html>
<html lang="uk">
<head><meta charset="utf-8"><title>Наказ</title></head>
<body>
<h1>Наказ</h1>
<p>Надати {{.staff_name}} відпустку ({{.type}})</p>
<p>з {{.date_start}} по {{.date_end}}</p>
<p>Статус: {{.status}}</p>
</body>
</html>
`))

// HTMLRenderer writes a minimal HTML artifact per document into a directory.
type HTMLRenderer struct {
	Dir string
}

func NewHTMLRenderer(dir string) *HTMLRenderer {
	return &HTMLRenderer{Dir: dir}
}

func (r *HTMLRenderer) Render(_ context.Context, doc *model.Document, renderCtx map[string]interface{}) (string, error) {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create render dir: %w", err)
	}
	path := filepath.Join(r.Dir, fmt.Sprintf("order-%s.html", doc.ID))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact: %w", err)
	}
	defer f.Close()

	if err := orderTemplate.Execute(f, renderCtx); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return path, nil
}
