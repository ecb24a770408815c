package sentiment

import (
	"strings"
	"unicode"
)

var punctuation = strings.NewReplacer(
	",", " ", ".", " ", ";", " ", ":", " ", "!", " ", "?", " ",
	"(", " ", ")", " ", "[", " ", "]", " ", "{", " ", "}", " ",
)

// Tokenize lowercases text, turns punctuation into whitespace and drops
// numbers and single characters other than "a" and "i".
func Tokenize(text string) []string {
	fields := strings.Fields(punctuation.Replace(strings.ToLower(text)))
	tokens := fields[:0]
	for _, f := range fields {
		if isNumeric(f) {
			continue
		}
		if len([]rune(f)) == 1 && f != "a" && f != "i" {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
