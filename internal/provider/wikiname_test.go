package provider

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataFromExtract_FullPage(t *testing.T) {
	extract := `<p><b>Elizabeth</b> is a feminine given name, derived from ` +
		`<a href="/wiki/Elisheva">Elisheva</a>, meaning "my God is an oath". ` +
		`It has been borne by queens and commoners alike.</p>` +
		`<p>Diminutives include Beth, Betsy and <a href="/wiki/Liza">Liza</a>. ` +
		`The form Lizzie was once considered derogatory in parts of Scotland.</p>`

	meta := metadataFromExtract(extract, mustPart(t, "Elizabeth"))

	assert.Equal(t, GenderFemale, meta.Gender)
	assert.True(t, strings.HasPrefix(meta.Meaning, "Elizabeth is a feminine given name"),
		"meaning should start with the page prose, got %q", meta.Meaning)

	assert.Contains(t, meta.Nicknames.Good, "Beth")
	assert.Contains(t, meta.Nicknames.Good, "Betsy")
	assert.Contains(t, meta.Nicknames.Bad, "Lizzie")
	assert.Contains(t, meta.Variations, "Elisheva")
	assert.Contains(t, meta.Variations, "Liza", "anchor texts should contribute related forms")
	assert.NotContains(t, meta.Variations, "Elizabeth", "the page's own name is not a variation")
	assert.False(t, meta.FetchedAt.IsZero())
}

func TestMetadataFromExtract_MalformedHTMLKeepsProse(t *testing.T) {
	extract := `<p><b>Bob is a masculine given name, a short form of Robert`

	meta := metadataFromExtract(extract, mustPart(t, "Bob"))

	assert.Equal(t, GenderMale, meta.Gender)
	assert.Contains(t, meta.Variations, "Robert")
}

func TestGenderFromProse(t *testing.T) {
	tests := []struct {
		name  string
		prose string
		want  GenderSignal
	}{
		{"feminine", "ana is a feminine given name", GenderFemale},
		{"masculine", "bob is a masculine given name", GenderMale},
		{"female_contains_male", "maya is a female given name", GenderFemale},
		{"male", "liam is a male given name", GenderMale},
		{"unisex", "alex is a unisex name", GenderAndrogynous},
		{"both_signals", "lee is used as both a masculine and feminine name", GenderAndrogynous},
		{"no_signal", "lee is a common surname", GenderUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, genderFromProse(tt.prose))
		})
	}
}

func TestFirstSentences(t *testing.T) {
	prose := "First sentence. Second one! Third should be dropped."

	assert.Equal(t, "First sentence. Second one!", firstSentences(prose, 2))
	assert.Equal(t, "First sentence.", firstSentences(prose, 1))

	long := strings.Repeat("word ", 100) + "end."
	clipped := firstSentences(long, 1)
	assert.LessOrEqual(t, len([]rune(clipped)), maxMeaningChars+3)
	assert.True(t, strings.HasSuffix(clipped, "..."))
}

func TestNameListAfter(t *testing.T) {
	prose := "Beth is a diminutive of Elizabeth, first recorded in England. Unrelated Fred appears later."

	names := nameListAfter(prose, variationMarkers)

	assert.Contains(t, names, "Elizabeth")
	assert.Contains(t, names, "England", "capitalized tokens inside the sentence are candidates")
	assert.NotContains(t, names, "Fred", "the scan must stop at the sentence boundary")
	assert.NotContains(t, names, "diminutive")
}

func TestCapitalizedTokens(t *testing.T) {
	tokens := capitalizedTokens("of Elizabeth, Bess and Betsy (since 1500)")

	assert.Equal(t, []string{"Elizabeth", "Bess", "Betsy"}, tokens)
}

func TestSelfFiltered(t *testing.T) {
	part := mustPart(t, "Ana")

	out := selfFiltered([]string{"Anna", "ana", "ANA", "Anita"}, part)

	assert.Equal(t, []string{"Anna", "Anita"}, out)
}

func TestBuildWikiUserAgent(t *testing.T) {
	ua := buildWikiUserAgent("1.2.3")
	assert.Contains(t, ua, "NameAtlas/1.2.3")
	assert.Contains(t, ua, wikiUserAgentContact)

	require.Contains(t, buildWikiUserAgent(""), "NameAtlas/unknown")
}

func TestNewWikiname_Defaults(t *testing.T) {
	p, err := NewWikiname(WikinameConfig{})

	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, wikinameProviderName, p.Name())
	assert.Equal(t, maxRetries, p.maxRetries)
}
