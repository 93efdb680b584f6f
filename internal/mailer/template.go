package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/report.html
var templatesFS embed.FS

var reportTemplate = template.Must(
	template.ParseFS(templatesFS, "templates/report.html"))

// RenderHTML renders the HTML body shared by all delivery backends.
func RenderHTML(msg ReportEmail) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, msg); err != nil {
		return "", fmt.Errorf("render report template: %w", err)
	}
	return buf.String(), nil
}
