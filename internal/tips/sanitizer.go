package tips

import (
	"strings"
	"unicode"
)

const (
	allowedPunctuation    = " .,!?:;-_'\"()[]{}@#$%&*+=|~`/\\<>"
	allowedAccentedLetter = "áéíóúñüÁÉÍÓÚÑÜàèìòùÀÈÌÒÙâêîôûÂÊÎÔÛäëïöÄËÏÖÿ"
	problematicCharacters = "\t\n\r\u200B\u200C\u200D\uFEFF"
)

type runeClass uint8

const (
	runeRejected runeClass = iota
	runeAllowed
	runeProblematic
)

// runeClasses is read-only after package initialization.
var runeClasses = buildRuneClasses()

func buildRuneClasses() map[rune]runeClass {
	classes := make(map[rune]runeClass, 64)
	for _, r := range allowedPunctuation + allowedAccentedLetter {
		classes[r] = runeAllowed
	}
	for _, r := range problematicCharacters {
		classes[r] = runeProblematic
	}
	return classes
}

func classifyRune(r rune) runeClass {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return runeAllowed
	}
	return runeClasses[r]
}

// SanitizeMessage maps raw message text onto the storable alphabet.
// Problematic invisible characters become spaces, whitespace runs collapse to a
// single space and the result is trimmed. Any other rune rejects the whole message.
func SanitizeMessage(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}

	var mapped strings.Builder
	mapped.Grow(len(raw))
	for _, r := range raw {
		switch classifyRune(r) {
		case runeAllowed:
			mapped.WriteRune(r)
		case runeProblematic:
			mapped.WriteByte(' ')
		default:
			return "", ErrInvalidCharacters
		}
	}

	return CollapseWhitespace(mapped.String()), nil
}

// CollapseWhitespace replaces each whitespace run with one space and trims the ends.
func CollapseWhitespace(value string) string {
	var collapsed strings.Builder
	collapsed.Grow(len(value))
	lastWasWhitespace := false
	for _, r := range value {
		if unicode.IsSpace(r) {
			if !lastWasWhitespace {
				collapsed.WriteByte(' ')
				lastWasWhitespace = true
			}
			continue
		}
		collapsed.WriteRune(r)
		lastWasWhitespace = false
	}
	return strings.TrimSpace(collapsed.String())
}
