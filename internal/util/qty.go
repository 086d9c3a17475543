package util

import (
	"regexp"
	"strconv"
	"strings"
)

// Leading integer with an optional sign. Digit groups separated by a space or a
// no-break space ("1 000") are read as one number, as spreadsheets format them.
var leadingIntPattern = regexp.MustCompile(`^\s*([+-]?)(\d{1,3}(?:[ \x{00A0}]\d{3})+|\d+)`)

// ParseInt reads the integer at the start of input and ignores whatever follows
// it, so "10 шт" and "10.7" both give 10. ok is false when input does not start
// with a number or the number does not fit an int.
func ParseInt(input string) (int, bool) {
	m := leadingIntPattern.FindStringSubmatch(input)
	if m == nil {
		return 0, false
	}
	digits := strings.NewReplacer(" ", "", "\u00A0", "").Replace(m[2])
	n, err := strconv.Atoi(m[1] + digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

func IntOrDefault(input string, fallback int) int {
	if n, ok := ParseInt(input); ok {
		return n
	}
	return fallback
}
