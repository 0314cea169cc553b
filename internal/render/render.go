// Package render converts a note's extended-markdown source into a complete
// themed HTML document. The dialect extensions (callouts, highlights, tags,
// wikilinks) run as ordered text-rewrite passes ahead of the standard
// markdown parse; each pass assumes the text shape produced by the previous
// one. Checkboxes are native GFM and are handled by the markdown parser
// itself. Rendering never fails on malformed input: anything that does not
// match a pass falls through to the markdown parser as literal text.
package render

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/permashare/backend/internal/notes"
	"github.com/permashare/backend/internal/themes"
)

// Engine renders notes. Safe for concurrent use.
type Engine struct {
	markdown goldmark.Markdown
}

// NewEngine builds the render engine. GFM covers tables, strikethrough and
// task-list checkboxes (rendered as disabled inputs with state preserved);
// hard wraps keep the authoring application's line-break behavior; unsafe
// HTML is required because the rewrite passes inject markup.
func NewEngine() *Engine {
	return &Engine{
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				goldmarkhtml.WithHardWraps(),
				goldmarkhtml.WithUnsafe(),
			),
		),
	}
}

// RenderBody runs the full dialect pipeline and returns the note body HTML.
func (e *Engine) RenderBody(note notes.Note) string {
	content := rewriteCallouts(note.Content, func(body string) string {
		return e.renderFragment(body, note.Vault, note.LinkedNotes)
	})
	return e.renderFragment(content, note.Vault, note.LinkedNotes)
}

// renderFragment applies the inline passes in their contracted order, then
// parses the result as GFM markdown.
func (e *Engine) renderFragment(content, vault string, links []notes.LinkedNote) string {
	content = rewriteHighlights(content)
	content = rewriteTags(content)
	content = rewriteWikilinks(content, vault, links)

	var buffer bytes.Buffer
	if err := e.markdown.Convert([]byte(content), &buffer); err != nil {
		// Conversion of plain text cannot realistically fail; degrade to the
		// rewritten source rather than surfacing an error.
		return content
	}
	return buffer.String()
}

// RenderPage renders the complete HTML document for a note view, applying
// the vault's stored theme or the built-in defaults per mode.
func (e *Engine) RenderPage(note notes.Note, theme *themes.DualTheme) string {
	body := e.RenderBody(note)

	var page bytes.Buffer
	err := pageTemplate.Execute(&page, pageData{
		Title:       note.Title,
		Description: describe(body),
		ThemeCSS:    template.CSS(themeCSS(theme)),
		Body:        template.HTML(strings.TrimSpace(body)),
	})
	if err != nil {
		// Template data is fully under our control; keep the body renderable
		// even if the shell somehow fails.
		return body
	}
	return page.String()
}

// RenderNotFound renders the public "note not found" page. The same page
// covers missing notes and vault mismatches so the two are
// indistinguishable to a viewer.
func (e *Engine) RenderNotFound() string {
	var page bytes.Buffer
	if err := notFoundTemplate.Execute(&page, struct{ ThemeCSS template.CSS }{ThemeCSS: template.CSS(themeCSS(nil))}); err != nil {
		return "<h1>Note not found</h1>"
	}
	return page.String()
}
