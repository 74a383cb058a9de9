package output

import "github.com/muesli/termenv"

// Style applies a terminal rendering rule to text. Styles built from
// the Ascii profile render text unchanged.
type Style struct {
	profile termenv.Profile
	color   string
	bold    bool
	faint   bool
	glyph   string
}

// Render applies the style to text.
func (s Style) Render(text string) string {
	st := s.profile.String(text)
	if s.color != "" {
		st = st.Foreground(s.profile.Color(s.color))
	}
	if s.bold {
		st = st.Bold()
	}
	if s.faint {
		st = st.Faint()
	}
	return st.String()
}

// String renders the style's fixed glyph, if any.
func (s Style) String() string {
	return s.Render(s.glyph)
}

// Styles is the set of terminal styles used by text-mode output.
type Styles struct {
	Header1       Style
	Header2       Style
	Bold          Style
	Muted         Style
	Success       Style
	Warning       Style
	Error         Style
	Info          Style
	ResourceName  Style
	StatusSuccess Style
	StatusFailed  Style
}

// DefaultStyles builds styles using the color profile of the attached
// terminal.
func DefaultStyles() Styles {
	return stylesFor(termenv.ColorProfile())
}

// PlainStyles builds styles that emit no escape sequences.
func PlainStyles() Styles {
	return stylesFor(termenv.Ascii)
}

func stylesFor(p termenv.Profile) Styles {
	return Styles{
		Header1:       Style{profile: p, bold: true, color: "6"},
		Header2:       Style{profile: p, bold: true},
		Bold:          Style{profile: p, bold: true},
		Muted:         Style{profile: p, faint: true},
		Success:       Style{profile: p, color: "2"},
		Warning:       Style{profile: p, color: "3"},
		Error:         Style{profile: p, color: "1"},
		Info:          Style{profile: p, color: "4"},
		ResourceName:  Style{profile: p, color: "6"},
		StatusSuccess: Style{profile: p, color: "2", glyph: "✓"},
		StatusFailed:  Style{profile: p, color: "1", glyph: "✗"},
	}
}
