package document

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"devunity/internal/domain"
	"devunity/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_JSONRoundTripsThroughImportShape(t *testing.T) {
	doc := &domain.Document{Title: "a.js", Content: "const a = 1 < 2;", Language: "javascript"}

	out, err := Render(doc, "")
	require.NoError(t, err)
	assert.Equal(t, "application/json", out.ContentType)
	assert.Equal(t, "a.js.json", out.Filename)

	var imported ImportRequest
	require.NoError(t, json.Unmarshal(out.Body, &imported))
	assert.Equal(t, doc.Title, imported.Title)
	assert.Equal(t, doc.Content, *imported.Content)
	assert.Equal(t, doc.Language, imported.Language)
}

func TestRender_HTMLEscapesAngleBrackets(t *testing.T) {
	doc := &domain.Document{Title: "<b>", Content: "<script>alert(1)</script>", Language: "html"}

	out, err := Render(doc, "html")
	require.NoError(t, err)

	body := string(out.Body)
	assert.Contains(t, body, "<pre><code")
	assert.Contains(t, body, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.NotContains(t, body, "<script>")
	assert.True(t, strings.HasPrefix(out.ContentType, "text/html"))
}

func TestRender_Text(t *testing.T) {
	out, err := Render(&domain.Document{Title: "notes / today", Content: "plain"}, "text")
	require.NoError(t, err)

	assert.Equal(t, "plain", string(out.Body))
	assert.Equal(t, "notes_today.txt", out.Filename)
}

func TestRender_UnknownFormat(t *testing.T) {
	_, err := Render(&domain.Document{Title: "a"}, "pdf")

	assert.Equal(t, http.StatusBadRequest, errors.StatusOf(err))
}
