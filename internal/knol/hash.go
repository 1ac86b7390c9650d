package knol

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/conorfennell/kanadeck/internal/domain"
)

// Normalize renders the card's front, back and category as one canonical string.
// Each part is NFKC-folded (so half-width kana and full-width latin match their
// usual forms), lowercased, trimmed and given Unix line endings. Parts are joined
// with a newline so adjacent fields cannot run together.
func Normalize(card domain.Card) string {
	parts := []string{card.Front, card.Back, card.Category}
	for i, p := range parts {
		p = norm.NFKC.String(p)
		p = strings.ToLower(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, "\n")
}

// Hash returns the SHA-256 of the normalized card as lowercase hex. Cards pulled
// from markdown sources use it as their id, so edits to the content yield a new card.
func Hash(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return hex.EncodeToString(sum[:])
}
