package flow

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var nonDigitRe = regexp.MustCompile(`\D`)

// ValidName accepts anything longer than three characters. Names are free
// text; the bar only filters out "ok"-style replies.
func ValidName(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) > 3
}

// ValidatePhone strips formatting and requires at least 10 digits (two-digit
// area code plus the number). Returns the digit string.
func ValidatePhone(s string) (string, bool) {
	digits := nonDigitRe.ReplaceAllString(s, "")
	if len(digits) >= 10 {
		return digits, true
	}
	return "", false
}

// ValidateEmail requires an "@" and a "." somewhere after the last "@".
func ValidateEmail(s string) bool {
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return false
	}
	return strings.Contains(s[at+1:], ".")
}

// TitleCase uppercases the first letter of each word and lowercases the
// rest, normalizing names typed in all-lower or all-caps.
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	startOfWord := true
	for _, r := range s {
		if unicode.IsLetter(r) {
			if startOfWord {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(unicode.ToLower(r))
			}
			startOfWord = false
		} else {
			b.WriteRune(r)
			startOfWord = true
		}
	}
	return b.String()
}
