package naming

import (
	"strings"
	"unicode"

	"github.com/tailor-media/tailor/internal/media"
)

const maxPrefixRunes = 80

// SanitizePrefix makes a user-supplied prefix safe to use as a file or
// directory name. Disallowed runes become '_', control runes are dropped.
func SanitizePrefix(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedPrefixRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimLeft(strings.TrimSpace(b.String()), ".")
	if runes := []rune(cleaned); len(runes) > maxPrefixRunes {
		cleaned = strings.TrimSpace(string(runes[:maxPrefixRunes]))
	}
	if cleaned == "" {
		return "video"
	}
	return cleaned
}

// DefaultPrefix derives a prefix from the video's file name.
func DefaultPrefix(path string) string {
	return SanitizePrefix(media.Stem(path))
}

func isAllowedPrefixRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}
