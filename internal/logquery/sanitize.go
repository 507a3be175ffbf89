package logquery

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Sanitize returns line as valid UTF-8. Game servers write whatever bytes
// their players type, so anything that is not already UTF-8 is decoded as
// Windows-1252, which maps every byte to a printable rune.
func Sanitize(line string) string {
	if utf8.ValidString(line) {
		return line
	}
	decoded, err := charmap.Windows1252.NewDecoder().String(line)
	if err != nil {
		return strings.ToValidUTF8(line, "�")
	}
	return decoded
}

// SanitizeQuery trims q, repairs its encoding and cuts it to at most max
// bytes without splitting a rune. An empty result means "no filter".
func SanitizeQuery(q string, max int) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return ""
	}
	q = strings.ToValidUTF8(q, "")
	if max > 0 && len(q) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(q[cut]) {
			cut--
		}
		q = strings.TrimSpace(q[:cut])
	}
	return q
}
