package cv

import (
	"regexp"
	"strings"
)

var (
	multiSpace   = regexp.MustCompile(` {2,}`)
	multiNewline = regexp.MustCompile(`\n{3,}`)
)

// Normalize cleans extracted text. It keeps printable ASCII, newlines and
// tabs, collapses runs of spaces, trims every line, caps blank-line runs at
// one empty line and trims the result. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\n' || c == '\t' || (c >= 0x20 && c <= 0x7e) {
			b.WriteByte(c)
		}
	}

	lines := strings.Split(multiSpace.ReplaceAllString(b.String(), " "), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	out := multiNewline.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out)
}
