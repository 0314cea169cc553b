package render

import (
	"html/template"
	"regexp"
	"strings"
)

const descriptionLength = 160

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// describe extracts the plain-text link-preview description: rendered HTML
// with tags stripped, whitespace collapsed, cut to the first 160 characters
// on a rune boundary.
func describe(renderedHTML string) string {
	text := htmlTagPattern.ReplaceAllString(renderedHTML, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) <= descriptionLength {
		return text
	}
	return strings.TrimSpace(string(runes[:descriptionLength])) + "…"
}

var pageTemplate = template.Must(template.New("note").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="description" content="{{.Description}}">
<meta property="og:title" content="{{.Title}}">
<meta property="og:description" content="{{.Description}}">
<title>{{.Title}}</title>
<style>
{{.ThemeCSS}}
body {
	margin: 0 auto;
	max-width: 46rem;
	padding: 2rem 1.25rem 4rem;
	background: var(--background);
	color: var(--text);
	font-size: var(--font-size);
	font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
	line-height: 1.6;
}
a { color: var(--accent); }
h1, h2, h3, h4, h5, h6 { line-height: 1.25; }
pre, code { background: var(--code-background); border-radius: 4px; }
code { padding: 0.1em 0.35em; }
pre { padding: 0.85em 1em; overflow-x: auto; }
pre code { padding: 0; }
blockquote { margin: 0; padding: 0 1em; border-left: 3px solid var(--border); }
hr { border: none; border-top: 1px solid var(--border); }
table { border-collapse: collapse; }
th, td { border: 1px solid var(--border); padding: 0.3em 0.65em; }
mark { background: var(--highlight-background); color: inherit; padding: 0 0.15em; border-radius: 3px; }
.tag {
	background: var(--tag-background);
	color: var(--accent);
	padding: 0.1em 0.5em;
	border-radius: 999px;
	font-size: 0.85em;
}
.internal-link { text-decoration: none; border-bottom: 1px dashed var(--accent); }
.unresolved-link { color: var(--accent); opacity: 0.55; border-bottom: 1px dashed var(--border); }
.callout {
	border: 1px solid var(--border);
	border-left: 4px solid var(--accent);
	border-radius: 6px;
	margin: 1em 0;
	background: var(--tag-background);
}
.callout-title { display: flex; gap: 0.5em; align-items: center; font-weight: 600; padding: 0.6em 0.9em; }
summary.callout-title { cursor: pointer; }
.callout-content { padding: 0 0.9em 0.6em; }
.callout-content > p:first-child { margin-top: 0; }
input[type="checkbox"] { accent-color: var(--accent); }
.theme-toggle {
	position: fixed;
	top: 0.9rem;
	right: 0.9rem;
	border: 1px solid var(--border);
	border-radius: 999px;
	background: var(--background);
	color: var(--text);
	padding: 0.35em 0.75em;
	cursor: pointer;
}
</style>
</head>
<body>
<button class="theme-toggle" id="theme-toggle" type="button" aria-label="Toggle color scheme">◐</button>
<article>
{{.Body}}
</article>
<script>
(function () {
	var root = document.documentElement;
	var button = document.getElementById("theme-toggle");
	var prefersDark = window.matchMedia("(prefers-color-scheme: dark)");
	// Cycle: follow system, force the opposite of system, back to system.
	button.addEventListener("click", function () {
		var forced = root.classList.contains("theme-light") || root.classList.contains("theme-dark");
		root.classList.remove("theme-light", "theme-dark");
		if (!forced) {
			root.classList.add(prefersDark.matches ? "theme-light" : "theme-dark");
		}
	});
})();
</script>
</body>
</html>
`))

type pageData struct {
	Title       string
	Description string
	ThemeCSS    template.CSS
	Body        template.HTML
}

var notFoundTemplate = template.Must(template.New("notfound").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Note not found</title>
<style>
{{.ThemeCSS}}
body {
	margin: 0 auto;
	max-width: 46rem;
	padding: 6rem 1.25rem;
	background: var(--background);
	color: var(--text);
	font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
	text-align: center;
}
</style>
</head>
<body>
<h1>Note not found</h1>
<p>This note does not exist or is no longer shared.</p>
</body>
</html>
`))
