package render

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// calloutIcons maps known callout types to their marker glyph. Unknown types
// fall back to defaultCalloutIcon.
var calloutIcons = map[string]string{
	"note":      "✏️",
	"abstract":  "📋",
	"summary":   "📋",
	"tldr":      "📋",
	"info":      "ℹ️",
	"todo":      "☑️",
	"tip":       "🔥",
	"hint":      "🔥",
	"important": "🔥",
	"success":   "✅",
	"check":     "✅",
	"done":      "✅",
	"question":  "❓",
	"help":      "❓",
	"faq":       "❓",
	"warning":   "⚠️",
	"caution":   "⚠️",
	"attention": "⚠️",
	"failure":   "❌",
	"fail":      "❌",
	"missing":   "❌",
	"danger":    "⚡",
	"error":     "⚡",
	"bug":       "🐞",
	"example":   "🧾",
	"quote":     "💬",
	"cite":      "💬",
}

const defaultCalloutIcon = "📝"

// calloutHeader matches the first line of a callout block:
// "> [!TYPE]" plus an optional fold marker and an optional inline title.
var calloutHeader = regexp.MustCompile(`^>\s*\[!([A-Za-z]+)\]([+-]?)\s*(.*)$`)

// rewriteCallouts converts callout blocks into HTML boxes. Body lines are
// the following ">"-prefixed lines; their content is rendered through
// renderBody so the markdown dialect keeps working inside the box.
// Fold markers: "+" renders expanded-foldable, "-" collapsed-foldable,
// absent renders a non-foldable box.
func rewriteCallouts(content string, renderBody func(string) string) string {
	lines := strings.Split(content, "\n")
	var out []string

	for lineIndex := 0; lineIndex < len(lines); lineIndex++ {
		match := calloutHeader.FindStringSubmatch(lines[lineIndex])
		if match == nil {
			out = append(out, lines[lineIndex])
			continue
		}

		calloutType := strings.ToLower(match[1])
		foldMarker := match[2]
		title := strings.TrimSpace(match[3])
		if title == "" {
			title = strings.ToUpper(calloutType[:1]) + calloutType[1:]
		}

		var body []string
		for lineIndex+1 < len(lines) && strings.HasPrefix(lines[lineIndex+1], ">") {
			line := strings.TrimPrefix(lines[lineIndex+1], ">")
			line = strings.TrimPrefix(line, " ")
			body = append(body, line)
			lineIndex++
		}

		icon, ok := calloutIcons[calloutType]
		if !ok {
			icon = defaultCalloutIcon
		}

		bodyHTML := ""
		if len(body) > 0 {
			bodyHTML = strings.TrimSpace(renderBody(strings.Join(body, "\n")))
		}
		out = append(out, buildCalloutHTML(calloutType, foldMarker, icon, title, bodyHTML))
	}

	return strings.Join(out, "\n")
}

func buildCalloutHTML(calloutType, foldMarker, icon, title, bodyHTML string) string {
	titleHTML := fmt.Sprintf(
		`<span class="callout-icon">%s</span><span class="callout-title-text">%s</span>`,
		icon, html.EscapeString(title))

	var block strings.Builder
	if foldMarker == "" {
		block.WriteString(fmt.Sprintf(`<div class="callout callout-%s">`, calloutType))
		block.WriteString(fmt.Sprintf(`<div class="callout-title">%s</div>`, titleHTML))
		if bodyHTML != "" {
			block.WriteString(fmt.Sprintf(`<div class="callout-content">%s</div>`, bodyHTML))
		}
		block.WriteString(`</div>`)
	} else {
		openAttr := ""
		if foldMarker == "+" {
			openAttr = " open"
		}
		block.WriteString(fmt.Sprintf(`<details class="callout callout-%s"%s>`, calloutType, openAttr))
		block.WriteString(fmt.Sprintf(`<summary class="callout-title">%s</summary>`, titleHTML))
		if bodyHTML != "" {
			block.WriteString(fmt.Sprintf(`<div class="callout-content">%s</div>`, bodyHTML))
		}
		block.WriteString(`</details>`)
	}

	// Surrounding blank lines keep the block out of adjacent paragraphs
	// when the result is handed to the markdown parser.
	return "\n" + block.String() + "\n"
}
