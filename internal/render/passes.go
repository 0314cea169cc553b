package render

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/permashare/backend/internal/identity"
	"github.com/permashare/backend/internal/notes"
)

var (
	highlightPattern = regexp.MustCompile(`==([^=\n][^=\n]*?)==`)

	// A tag fires only when the "#" is at the start of a line or preceded by
	// whitespace, and introduces an identifier-like token. This heuristic
	// also fires inside fenced code blocks; known limitation.
	tagPattern = regexp.MustCompile(`(?m)(^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

	wikilinkPattern = regexp.MustCompile(`\[\[([^\[\]|]+)(?:\|([^\[\]]+))?\]\]`)
)

// rewriteHighlights converts ==text== spans into <mark> elements.
func rewriteHighlights(content string) string {
	return highlightPattern.ReplaceAllString(content, `<mark>$1</mark>`)
}

// rewriteTags converts inline #tags into styled chips.
func rewriteTags(content string) string {
	return tagPattern.ReplaceAllString(content, `$1<span class="tag">#$2</span>`)
}

// rewriteWikilinks resolves [[Target]] and [[Target|Display]] references
// against the note's linked-note table. Targets that were not shared in the
// same operation render as an unresolved span instead of a dead link.
func rewriteWikilinks(content, vault string, links []notes.LinkedNote) string {
	table := make(map[string]string, len(links))
	for _, link := range links {
		table[link.TitleSlug] = link.Hash
	}

	return wikilinkPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := wikilinkPattern.FindStringSubmatch(match)
		target := strings.TrimSpace(groups[1])
		display := target
		if groups[2] != "" {
			display = strings.TrimSpace(groups[2])
		}

		slug := identity.Slugify(target)
		hash, ok := table[slug]
		if !ok {
			return fmt.Sprintf(`<span class="unresolved-link">%s</span>`, html.EscapeString(display))
		}
		return fmt.Sprintf(`<a href="%s" class="internal-link">%s</a>`,
			identity.ViewPath(vault, slug, hash), html.EscapeString(display))
	})
}
