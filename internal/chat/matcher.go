package chat

import (
	"strconv"
	"strings"
	"unicode"
)

// matchOption resolves free-form user input against the offered options.
// Matching is case-insensitive and tries, in order: exact label, substring
// in either direction, then 1-based numeric position. Returns the canonical
// label on success.
func matchOption(input string, options []string) (string, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(input))
	if cleaned == "" {
		return "", false
	}

	for _, opt := range options {
		if cleaned == strings.ToLower(opt) {
			return opt, true
		}
	}
	for _, opt := range options {
		lowered := strings.ToLower(opt)
		if strings.Contains(cleaned, lowered) || strings.Contains(lowered, cleaned) {
			return opt, true
		}
	}
	if n, err := strconv.Atoi(cleaned); err == nil && n >= 1 && n <= len(options) {
		return options[n-1], true
	}
	return "", false
}

// normalizeName validates and title-cases a person's name. At least two
// non-space characters are required.
func normalizeName(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if len(trimmed) < 2 {
		return "", false
	}
	hasLetter := false
	for _, r := range trimmed {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return "", false
	}

	words := strings.Fields(strings.ToLower(trimmed))
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " "), true
}

// normalizeMobile strips everything but digits and requires at least ten of
// them, which accepts separators, spaces, and a country prefix.
func normalizeMobile(input string) (string, bool) {
	var digits strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() < 10 {
		return "", false
	}
	return digits.String(), true
}
