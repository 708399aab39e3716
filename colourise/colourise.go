// Package colourise adorns terminal output with ANSI colours.
package colourise

import (
	"fmt"
	"hash/crc32"
)

// palette holds the 256-colour codes that read well against a black background.
var palette = func() []uint8 {
	var p []uint8
	for c := 9; c <= 231; c++ {
		switch {
		case c >= 15 && c <= 20, c >= 52 && c <= 62, c >= 88 && c <= 91, c == 145:
			continue
		}
		p = append(p, uint8(c))
	}
	return p
}()

// ApplyColour returns value wrapped in the escape sequence of a colour picked by a
// deterministic hash of value, so the same string is always the same colour.
func ApplyColour(value string) string {
	i := crc32.ChecksumIEEE([]byte(value)) % uint32(len(palette)) //nolint:gosec
	return fmt.Sprintf("\033[1;38;5;%dm%s\033[0m", palette[i], value)
}

// ErrorHighlight renders s as a highlighted error.
func ErrorHighlight(s string) string {
	return fmt.Sprintf("\033[1;37;41m%s\033[0m", s)
}

// Status colours s by the class of the HTTP status code: green for 2xx, cyan for 1xx and 3xx,
// yellow for 4xx and red for 5xx. Anything else is highlighted as an error.
func Status(code int, s string) string {
	var c int
	switch {
	case code >= 200 && code < 300:
		c = 32
	case code >= 100 && code < 400:
		c = 36
	case code >= 400 && code < 500:
		c = 33
	case code >= 500 && code < 600:
		c = 31
	default:
		return ErrorHighlight(s)
	}
	return fmt.Sprintf("\033[%dm%s\033[0m", c, s)
}
