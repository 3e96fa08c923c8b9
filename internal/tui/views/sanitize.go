package views

import (
	"strings"
	"unicode/utf8"
)

// cleanForTerminal strips codepoints that break cell-width accounting
// in tcell: skin tone modifiers, zero width joiners, and variation
// selectors. Customer names and message bodies arrive with arbitrary
// emoji sequences; a multi-codepoint sequence collapses to its base
// emoji, which renders at a stable width.
func cleanForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !breaksCellWidth(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func breaksCellWidth(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF: // skin tone modifiers
		return true
	case r == 0x200D: // zero width joiner
		return true
	case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
		return true
	case r >= 0xE0100 && r <= 0xE01EF: // variation selectors supplement
		return true
	default:
		return false
	}
}
