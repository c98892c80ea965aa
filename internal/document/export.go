package document

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"devunity/internal/domain"
	"devunity/internal/errors"
)

// Export is a rendered document ready to be sent as a download
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportedDocument is the json export shape; it is accepted back by the import endpoint
type ExportedDocument struct {
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Language   string    `json:"language"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	ExportedAt time.Time `json:"exportedAt"`
}

var (
	angleEscaper  = strings.NewReplacer("<", "&lt;", ">", "&gt;")
	unsafeFileRun = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// Render turns doc into one of the export formats: json (default), text or html
func Render(doc *domain.Document, format string) (*Export, error) {
	base := safeFilename(doc.Title)

	switch strings.ToLower(format) {
	case "", "json":
		body, err := json.MarshalIndent(ExportedDocument{
			Title:      doc.Title,
			Content:    doc.Content,
			Language:   doc.Language,
			CreatedAt:  doc.CreatedAt,
			UpdatedAt:  doc.UpdatedAt,
			ExportedAt: time.Now().UTC(),
		}, "", "  ")
		if err != nil {
			return nil, errors.Internal(err)
		}
		return &Export{Filename: base + ".json", ContentType: "application/json", Body: body}, nil

	case "text", "txt":
		return &Export{Filename: base + ".txt", ContentType: "text/plain; charset=utf-8", Body: []byte(doc.Content)}, nil

	case "html":
		title := angleEscaper.Replace(doc.Title)
		body := fmt.Sprintf(
			"<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n<h1>%s</h1>\n<pre><code class=\"language-%s\">%s</code></pre>\n</body>\n</html>\n",
			title, title, angleEscaper.Replace(doc.Language), angleEscaper.Replace(doc.Content),
		)
		return &Export{Filename: base + ".html", ContentType: "text/html; charset=utf-8", Body: []byte(body)}, nil
	}

	return nil, errors.BadRequest("Unsupported export format", nil)
}

func safeFilename(title string) string {
	name := strings.Trim(unsafeFileRun.ReplaceAllString(title, "_"), "_")
	if name == "" {
		return "document"
	}
	return name
}
