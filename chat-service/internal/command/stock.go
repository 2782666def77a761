// Package command detects inline chat commands.
package command

import (
	"regexp"
	"strings"
)

// stockPattern is the whole-line syntax of a stock quote request. A message
// matching it is always treated as a command; there is no escape.
var stockPattern = regexp.MustCompile(`(?i)^/stock=([a-z0-9]+(?:\.[a-z]+)?)$`)

// ParseStock reports whether text is a stock command and returns its code in
// lowercase. text is trimmed before matching.
func ParseStock(text string) (string, bool) {
	m := stockPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}
