// Package namepart defines name tokens and the validation policy applied to
// user-entered name candidates before any provider lookup.
package namepart

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MaxPartLength bounds a single name token. Anything longer is junk input.
const MaxPartLength = 64

// Part is a single name token. Display preserves the user's casing for
// output, Key is the case-folded form used for lookups and deduplication.
type Part struct {
	Display string `json:"display"`
	Key     string `json:"key"`
}

// Rejection records a name token excluded by validation together with the
// reason, so callers can surface it instead of silently dropping input.
type Rejection struct {
	Part   string `json:"part"`
	Reason string `json:"reason"`
}

// New trims, normalizes and validates a raw name token. The returned Part
// carries the cleaned display form and the folded lookup key. Validation
// failures report the reason as the error message.
func New(raw string) (Part, error) {
	// Collapse internal whitespace runs and trim the ends; tabs and other
	// exotic whitespace never survive this
	display := strings.Join(strings.Fields(raw), " ")
	if display == "" {
		return Part{}, fmt.Errorf("empty after trimming")
	}

	// Compose combining sequences so decomposed diacritics validate and fold
	// the same way as their precomposed forms
	display = norm.NFC.String(display)

	if count := len([]rune(display)); count > MaxPartLength {
		return Part{}, fmt.Errorf("longer than %d characters", MaxPartLength)
	}

	hasLetter := false
	for _, r := range display {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.Is(unicode.Mn, r):
			// combining marks for scripts NFC cannot compose
		case r == '-' || r == '\'' || r == '’' || r == ' ':
			// permitted separators within multi-token names
		default:
			return Part{}, fmt.Errorf("disallowed character %q", r)
		}
	}
	if !hasLetter {
		return Part{}, fmt.Errorf("contains no letters")
	}

	return Part{
		Display: display,
		Key:     Fold(display),
	}, nil
}

// Fold returns the case-folded form of a name token, the canonical key for
// lookup and deduplication. Folding is Unicode-aware, so "JOSÉ", "josé" and
// "José" share one key.
func Fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// Combination is one candidate full name: a first name, an optional middle
// name, and the fixed last name. The zero-valued Middle means absent.
type Combination struct {
	First  Part `json:"first"`
	Middle Part `json:"middle,omitzero"`
	Last   Part `json:"last"`
}

// HasMiddle reports whether the combination carries a middle name.
func (c Combination) HasMiddle() bool {
	return c.Middle.Display != ""
}

// FullName derives the display string for the combination. It is derived
// output, never an identity.
func (c Combination) FullName() string {
	if c.HasMiddle() {
		return c.First.Display + " " + c.Middle.Display + " " + c.Last.Display
	}
	return c.First.Display + " " + c.Last.Display
}

// DistinctParts returns the parts from the given groups deduplicated by
// folded key, ordered by first appearance. The first occurrence decides the
// display form used for lookups.
func DistinctParts(groups ...[]Part) []Part {
	seen := make(map[string]struct{})
	var distinct []Part
	for _, group := range groups {
		for _, p := range group {
			if _, ok := seen[p.Key]; ok {
				continue
			}
			seen[p.Key] = struct{}{}
			distinct = append(distinct, p)
		}
	}
	return distinct
}
