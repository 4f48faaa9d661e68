package namepart

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidParts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		raw         string
		wantDisplay string
		wantKey     string
	}{
		{
			name:        "plain ascii",
			raw:         "Matilda",
			wantDisplay: "Matilda",
			wantKey:     "matilda",
		},
		{
			name:        "surrounding whitespace trimmed",
			raw:         "  Ana  ",
			wantDisplay: "Ana",
			wantKey:     "ana",
		},
		{
			name:        "internal whitespace collapsed",
			raw:         "Mary   Jane",
			wantDisplay: "Mary Jane",
			wantKey:     "mary jane",
		},
		{
			name:        "hyphenated",
			raw:         "Anne-Marie",
			wantDisplay: "Anne-Marie",
			wantKey:     "anne-marie",
		},
		{
			name:        "apostrophe",
			raw:         "O'Brien",
			wantDisplay: "O'Brien",
			wantKey:     "o'brien",
		},
		{
			name:        "typographic apostrophe",
			raw:         "D’Arcy",
			wantDisplay: "D’Arcy",
			wantKey:     "d’arcy",
		},
		{
			name:        "diacritics preserved in display",
			raw:         "José",
			wantDisplay: "José",
			wantKey:     "josé",
		},
		{
			name:        "decomposed diacritics composed",
			raw:         "José", // e + combining acute
			wantDisplay: "José",
			wantKey:     "josé",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			part, err := New(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDisplay, part.Display)
			assert.Equal(t, tt.wantKey, part.Key)
		})
	}
}

func TestNewRejectedParts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		wantReason string
	}{
		{
			name:       "empty",
			raw:        "",
			wantReason: "empty after trimming",
		},
		{
			name:       "whitespace only",
			raw:        "   ",
			wantReason: "empty after trimming",
		},
		{
			name:       "digits",
			raw:        "Anna2",
			wantReason: "disallowed character",
		},
		{
			name:       "punctuation",
			raw:        "Bob!",
			wantReason: "disallowed character",
		},
		{
			name:       "separators only",
			raw:        "--",
			wantReason: "contains no letters",
		},
		{
			name:       "too long",
			raw:        strings.Repeat("a", MaxPartLength+1),
			wantReason: "longer than",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.raw)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantReason)
		})
	}
}

func TestFoldSharesKeyAcrossCasings(t *testing.T) {
	t.Parallel()

	variants := []string{"JOSÉ", "josé", "José", "José"}
	want := Fold(variants[0])
	for _, v := range variants {
		assert.Equal(t, want, Fold(v), "variant %q should fold to the same key", v)
	}
}

func TestCombinationFullName(t *testing.T) {
	t.Parallel()

	first, err := New("Sam")
	require.NoError(t, err)
	last, err := New("Kim")
	require.NoError(t, err)

	combo := Combination{First: first, Last: last}
	assert.False(t, combo.HasMiddle())
	assert.Equal(t, "Sam Kim", combo.FullName())

	middle, err := New("Lee")
	require.NoError(t, err)
	combo.Middle = middle
	assert.True(t, combo.HasMiddle())
	assert.Equal(t, "Sam Lee Kim", combo.FullName())
}

func TestDistinctParts(t *testing.T) {
	t.Parallel()

	mk := func(raw string) Part {
		p, err := New(raw)
		require.NoError(t, err)
		return p
	}

	firsts := []Part{mk("Ana"), mk("Lee"), mk("ana")}
	middles := []Part{mk("Lee"), mk("Maya")}

	distinct := DistinctParts(firsts, middles)

	require.Len(t, distinct, 3)
	// ordered by first appearance, first occurrence decides the display form
	assert.Equal(t, "Ana", distinct[0].Display)
	assert.Equal(t, "Lee", distinct[1].Display)
	assert.Equal(t, "Maya", distinct[2].Display)
}
