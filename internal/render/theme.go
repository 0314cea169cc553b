package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/permashare/backend/internal/themes"
)

// Built-in fallbacks approximating the authoring application's default
// light and dark appearance.
var (
	defaultLight = themes.Settings{
		BackgroundColor: "#ffffff",
		TextColor:       "#2e3338",
		AccentColor:     "#7852ee",
		CodeBackground:  "#f5f5f5",
		FontSize:        "16px",
	}
	defaultDark = themes.Settings{
		BackgroundColor: "#1e1e1e",
		TextColor:       "#dadada",
		AccentColor:     "#a78bfa",
		CodeBackground:  "#2d2d2d",
		FontSize:        "16px",
	}
)

// modeVariables is the resolved CSS variable set for one color mode.
type modeVariables struct {
	Background     string
	Text           string
	Accent         string
	CodeBackground string
	FontSize       string
	Border         string
	HighlightBg    string
	TagBg          string
}

// resolveMode fills one mode's variables from stored settings, falling back
// per field to the built-in defaults. Derived values (border, highlight and
// tag backgrounds) are computed from the primary colors with mode-specific
// opacities rather than stored.
func resolveMode(stored *themes.Settings, defaults themes.Settings, dark bool) modeVariables {
	settings := defaults
	if stored != nil {
		if stored.BackgroundColor != "" {
			settings.BackgroundColor = stored.BackgroundColor
		}
		if stored.TextColor != "" {
			settings.TextColor = stored.TextColor
		}
		if stored.AccentColor != "" {
			settings.AccentColor = stored.AccentColor
		}
		if stored.CodeBackground != "" {
			settings.CodeBackground = stored.CodeBackground
		}
		if stored.FontSize != "" {
			settings.FontSize = stored.FontSize
		}
	}

	borderAlpha, highlightAlpha, tagAlpha := 0.15, 0.25, 0.12
	if dark {
		borderAlpha, highlightAlpha, tagAlpha = 0.22, 0.35, 0.2
	}

	return modeVariables{
		Background:     settings.BackgroundColor,
		Text:           settings.TextColor,
		Accent:         settings.AccentColor,
		CodeBackground: settings.CodeBackground,
		FontSize:       settings.FontSize,
		Border:         withAlpha(settings.TextColor, defaults.TextColor, borderAlpha),
		HighlightBg:    withAlpha(settings.AccentColor, defaults.AccentColor, highlightAlpha),
		TagBg:          withAlpha(settings.AccentColor, defaults.AccentColor, tagAlpha),
	}
}

// withAlpha converts a hex color to an rgba() value with the given alpha.
// Unparsable colors degrade to the default, never to an error.
func withAlpha(hexColor, fallback string, alpha float64) string {
	red, green, blue, ok := parseHexColor(hexColor)
	if !ok {
		red, green, blue, ok = parseHexColor(fallback)
		if !ok {
			red, green, blue = 128, 128, 128
		}
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", red, green, blue,
		strconv.FormatFloat(alpha, 'f', -1, 64))
}

func parseHexColor(value string) (int, int, int, bool) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return 0, 0, 0, false
	}
	parsed, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(parsed >> 16 & 0xff), int(parsed >> 8 & 0xff), int(parsed & 0xff), true
}

func cssVariables(vars modeVariables) string {
	return fmt.Sprintf(`--background: %s;
	--text: %s;
	--accent: %s;
	--code-background: %s;
	--font-size: %s;
	--border: %s;
	--highlight-background: %s;
	--tag-background: %s;`,
		vars.Background, vars.Text, vars.Accent, vars.CodeBackground,
		vars.FontSize, vars.Border, vars.HighlightBg, vars.TagBg)
}

// themeCSS emits variables for both modes: light is the base, dark applies
// through the color-scheme media query unless the viewer forced a mode with
// the toggle (theme-light / theme-dark root classes).
func themeCSS(theme *themes.DualTheme) string {
	var storedLight, storedDark *themes.Settings
	if theme != nil {
		storedLight = theme.Light
		storedDark = theme.Dark
	}
	light := cssVariables(resolveMode(storedLight, defaultLight, false))
	dark := cssVariables(resolveMode(storedDark, defaultDark, true))

	return fmt.Sprintf(`:root {
	%s
}
@media (prefers-color-scheme: dark) {
	:root:not(.theme-light) {
	%s
	}
}
:root.theme-dark {
	%s
}`, light, dark, dark)
}
