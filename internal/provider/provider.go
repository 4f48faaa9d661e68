// Package provider defines the name-metadata model and the adapters that
// fetch it from third-party name-data services.
package provider

import (
	"context"
	"time"

	"github.com/nameatlas/nameatlas/internal/errors"
	"github.com/nameatlas/nameatlas/internal/namepart"
)

// GenderSignal classifies how strongly a name part leans toward a gender.
type GenderSignal string

const (
	GenderMale        GenderSignal = "male"
	GenderFemale      GenderSignal = "female"
	GenderAndrogynous GenderSignal = "androgynous"
	GenderUnknown     GenderSignal = "unknown"
)

// CultureSet carries cultural association tags for a name part, split into
// positive and negative associations.
type CultureSet struct {
	Positive []string `json:"positive"`
	Negative []string `json:"negative"`
}

// NicknameSet carries likely nicknames for a name part, split into flattering
// and teasing ones.
type NicknameSet struct {
	Good []string `json:"good"`
	Bad  []string `json:"bad"`
}

// PartMetadata is the result of analyzing one name part in isolation.
// Instances are shared read-only across every combination that references the
// same part, so consumers must never mutate one after handing it out.
type PartMetadata struct {
	Meaning    string       `json:"meaning"`
	Gender     GenderSignal `json:"gender"`
	Cultures   CultureSet   `json:"cultures"`
	Nicknames  NicknameSet  `json:"nicknames"`
	Variations []string     `json:"variations"`
	FetchedAt  time.Time    `json:"-"`
}

// Empty returns the degraded-default metadata: unknown gender, empty sets.
func Empty() *PartMetadata {
	return &PartMetadata{Gender: GenderUnknown}
}

// IsEmpty reports whether the metadata carries no usable signal.
func (m *PartMetadata) IsEmpty() bool {
	return m.Meaning == "" &&
		(m.Gender == "" || m.Gender == GenderUnknown) &&
		len(m.Cultures.Positive) == 0 && len(m.Cultures.Negative) == 0 &&
		len(m.Nicknames.Good) == 0 && len(m.Nicknames.Bad) == 0 &&
		len(m.Variations) == 0
}

// Merge folds another provider's result into the receiver. The receiver has
// priority: its meaning and gender win when both sides carry one, set fields
// become order-preserving unions.
func (m *PartMetadata) Merge(other *PartMetadata) {
	if other == nil {
		return
	}
	if m.Meaning == "" {
		m.Meaning = other.Meaning
	}
	if m.Gender == "" || m.Gender == GenderUnknown {
		if other.Gender != "" {
			m.Gender = other.Gender
		}
	}
	m.Cultures.Positive = UnionStrings(m.Cultures.Positive, other.Cultures.Positive)
	m.Cultures.Negative = UnionStrings(m.Cultures.Negative, other.Cultures.Negative)
	m.Nicknames.Good = UnionStrings(m.Nicknames.Good, other.Nicknames.Good)
	m.Nicknames.Bad = UnionStrings(m.Nicknames.Bad, other.Nicknames.Bad)
	m.Variations = UnionStrings(m.Variations, other.Variations)
}

// Clone returns a deep copy so callers can merge without touching shared
// cache entries.
func (m *PartMetadata) Clone() *PartMetadata {
	if m == nil {
		return Empty()
	}
	clone := *m
	clone.Cultures.Positive = append([]string(nil), m.Cultures.Positive...)
	clone.Cultures.Negative = append([]string(nil), m.Cultures.Negative...)
	clone.Nicknames.Good = append([]string(nil), m.Nicknames.Good...)
	clone.Nicknames.Bad = append([]string(nil), m.Nicknames.Bad...)
	clone.Variations = append([]string(nil), m.Variations...)
	return &clone
}

// UnionStrings appends the entries of add that are not already present in
// dst, comparing case-folded so "Ann" and "ann" count as one. Order of first
// appearance is preserved.
func UnionStrings(dst, add []string) []string {
	if len(add) == 0 {
		return dst
	}
	seen := make(map[string]struct{}, len(dst))
	for _, s := range dst {
		seen[namepart.Fold(s)] = struct{}{}
	}
	for _, s := range add {
		key := namepart.Fold(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}

// Provider is a single upstream name-data service.
type Provider interface {
	// Lookup fetches metadata for one name part. Implementations return an
	// error with CategoryNotFound when the service has no data for the part,
	// which callers treat as an answered lookup rather than a failure.
	Lookup(ctx context.Context, part namepart.Part) (*PartMetadata, error)

	// Name identifies the provider in logs, metrics and error context.
	Name() string
}

// NewNotFoundError reports that a provider has no data for a part. The part
// itself is anonymized before it can reach telemetry.
func NewNotFoundError(providerName string, part namepart.Part) error {
	return errors.Newf("%s: no data for name part", providerName).
		Category(errors.CategoryNotFound).
		Component("provider."+providerName).
		PartContext(part.Display).
		Build()
}
