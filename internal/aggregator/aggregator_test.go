package aggregator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nameatlas/nameatlas/internal/errors"
	"github.com/nameatlas/nameatlas/internal/namepart"
	"github.com/nameatlas/nameatlas/internal/provider"
)

// TestMain provides goleak verification to detect goroutine leaks
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"),
	)
}

var (
	tenFirstNames = []string{"Ana", "Bea", "Cora", "Dina", "Elsa", "Faye", "Gina", "Hana", "Iris", "Jade"}
	tenMiddles    = []string{"Kay", "Lena", "Mira", "Nora", "Opal", "Page", "Quin", "Rosa", "Sage", "Tess"}
)

// fakeGateway is a scripted lookup capability that counts calls per part.
type fakeGateway struct {
	fn func(ctx context.Context, part namepart.Part) (*provider.PartMetadata, error)

	mu      sync.Mutex
	calls   int
	perPart map[string]int
}

func (f *fakeGateway) Lookup(ctx context.Context, part namepart.Part) (*provider.PartMetadata, error) {
	f.mu.Lock()
	f.calls++
	if f.perPart == nil {
		f.perPart = make(map[string]int)
	}
	f.perPart[part.Key]++
	f.mu.Unlock()
	return f.fn(ctx, part)
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeGateway) callsFor(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perPart[key]
}

// metaFor builds deterministic metadata derived from the part so repeated
// runs produce identical results.
func metaFor(part namepart.Part) *provider.PartMetadata {
	return &provider.PartMetadata{
		Meaning:  "meaning of " + part.Key,
		Gender:   provider.GenderFemale,
		Cultures: provider.CultureSet{Positive: []string{"Latin"}},
	}
}

func resolveAll() *fakeGateway {
	return &fakeGateway{fn: func(_ context.Context, part namepart.Part) (*provider.PartMetadata, error) {
		return metaFor(part), nil
	}}
}

func failingFor(keys ...string) *fakeGateway {
	down := make(map[string]bool, len(keys))
	for _, k := range keys {
		down[k] = true
	}
	return &fakeGateway{fn: func(_ context.Context, part namepart.Part) (*provider.PartMetadata, error) {
		if down[part.Key] {
			return nil, errors.Newf("upstream unreachable").
				Component("gateway").
				Category(errors.CategoryNetwork).
				Build()
		}
		return metaFor(part), nil
	}}
}

func failingAll() *fakeGateway {
	return &fakeGateway{fn: func(context.Context, namepart.Part) (*provider.PartMetadata, error) {
		return nil, errors.Newf("upstream unreachable").
			Component("gateway").
			Category(errors.CategoryNetwork).
			Build()
	}}
}

func notFoundAll() *fakeGateway {
	return &fakeGateway{fn: func(_ context.Context, part namepart.Part) (*provider.PartMetadata, error) {
		return nil, provider.NewNotFoundError("fake", part)
	}}
}

func newTestAggregator(t *testing.T, gw PartLookup) *Aggregator {
	t.Helper()
	a, err := New(gw)
	require.NoError(t, err)
	return a
}

func fullNames(results []CombinationResult) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.FullName)
	}
	return names
}

func TestAnalyze_CountFormulaAndOrdering(t *testing.T) {
	a := newTestAggregator(t, resolveAll())

	res, err := a.Analyze(context.Background(),
		[]string{"Ana", "Bob"}, []string{"Lee", "May"}, "Kim", Options{})

	require.NoError(t, err)
	require.Len(t, res.Combinations, 4, "count is firsts times middles")
	assert.Equal(t, []string{"Ana Lee Kim", "Ana May Kim", "Bob Lee Kim", "Bob May Kim"},
		fullNames(res.Combinations),
		"output order follows input order, first names outermost")
	assert.Equal(t, 4, res.Stats.Combinations)
	assert.Equal(t, 4, res.Stats.DistinctParts)
}

func TestAnalyze_NoMiddleNames(t *testing.T) {
	a := newTestAggregator(t, resolveAll())

	res, err := a.Analyze(context.Background(), []string{"Sam"}, nil, "Kim", Options{})

	require.NoError(t, err)
	require.Len(t, res.Combinations, 1)
	combo := res.Combinations[0]
	assert.Equal(t, "Sam Kim", combo.FullName)
	assert.Empty(t, combo.Middle)
	assert.Equal(t, StatusOK, combo.Status.First)
	assert.Empty(t, combo.Status.Middle)
}

func TestAnalyze_DedupsDistinctPartLookups(t *testing.T) {
	gw := resolveAll()
	a := newTestAggregator(t, gw)

	res, err := a.Analyze(context.Background(), tenFirstNames, tenMiddles, "Lee", Options{})

	require.NoError(t, err)
	assert.Len(t, res.Combinations, 100)
	assert.Equal(t, 20, gw.callCount(),
		"twenty distinct parts mean twenty lookups, not one per combination")
	for _, name := range tenFirstNames {
		assert.Equal(t, 1, gw.callsFor(namepart.Fold(name)))
	}
	assert.Equal(t, 20, res.Stats.Lookups)
}

func TestAnalyze_CasingsShareOneLookup(t *testing.T) {
	gw := resolveAll()
	a := newTestAggregator(t, gw)

	res, err := a.Analyze(context.Background(),
		[]string{"Ana", "ANA", "ana"}, []string{"Ana"}, "Lee", Options{})

	require.NoError(t, err)
	assert.Len(t, res.Combinations, 3)
	assert.Equal(t, 1, gw.callCount(), "casings of one part fold to a single lookup")
}

func TestAnalyze_DuplicateFirstNamesKeepTheirCombinations(t *testing.T) {
	gw := resolveAll()
	a := newTestAggregator(t, gw)

	res, err := a.Analyze(context.Background(), []string{"Ana", "Ana"}, nil, "Lee", Options{})

	require.NoError(t, err)
	assert.Len(t, res.Combinations, 2, "duplicate inputs duplicate combinations, not lookups")
	assert.Equal(t, 1, gw.callCount())
}

func TestAnalyze_Idempotent(t *testing.T) {
	a := newTestAggregator(t, resolveAll())
	firsts := []string{"Ana", "Bob"}
	middles := []string{"Lee"}

	res1, err := a.Analyze(context.Background(), firsts, middles, "Kim", Options{})
	require.NoError(t, err)
	res2, err := a.Analyze(context.Background(), firsts, middles, "Kim", Options{})
	require.NoError(t, err)

	assert.Equal(t, res1.Combinations, res2.Combinations)
	assert.Equal(t, res1.Rejected, res2.Rejected)
}

func TestAnalyze_PartialFailureDegrades(t *testing.T) {
	a := newTestAggregator(t, failingFor("bob"))

	res, err := a.Analyze(context.Background(), []string{"Ana", "Bob"}, nil, "Lee", Options{})

	require.NoError(t, err, "one failing part must not fail the request")
	require.Len(t, res.Combinations, 2)

	ana := res.Combinations[0]
	assert.Equal(t, "Ana Lee", ana.FullName)
	assert.Equal(t, StatusOK, ana.Status.First)
	assert.Equal(t, "meaning of ana", ana.Meaning)
	assert.Equal(t, provider.GenderFemale, ana.Gender)

	bob := res.Combinations[1]
	assert.Equal(t, "Bob Lee", bob.FullName)
	assert.Equal(t, StatusProviderFailed, bob.Status.First)
	assert.Equal(t, StatusProviderFailed, bob.Status.Worst())
	assert.Empty(t, bob.Meaning)
	assert.Equal(t, provider.GenderUnknown, bob.Gender)
	assert.Empty(t, bob.Cultures.Positive)
	assert.Empty(t, bob.Cultures.Negative)
	assert.Empty(t, bob.Nicknames.Good)
	assert.Empty(t, bob.Variations)

	assert.Equal(t, 1, res.Stats.PartsFailed)
	assert.Equal(t, 1, res.Stats.PartsResolved)
}

func TestAnalyze_TotalOutage(t *testing.T) {
	a := newTestAggregator(t, failingAll())

	res, err := a.Analyze(context.Background(), []string{"Ana", "Bob"}, nil, "Lee", Options{})

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrAllProvidersUnavailable))

	var enhancedErr *errors.EnhancedError
	require.True(t, errors.As(err, &enhancedErr))
	assert.Equal(t, string(errors.CategoryProviderOutage), enhancedErr.GetCategory())
}

func TestAnalyze_NotFoundCountsAsResolved(t *testing.T) {
	a := newTestAggregator(t, notFoundAll())

	res, err := a.Analyze(context.Background(), []string{"Zyxxo"}, nil, "Lee", Options{})

	require.NoError(t, err, "providers answering no-data is not an outage")
	require.Len(t, res.Combinations, 1)
	combo := res.Combinations[0]
	assert.Equal(t, StatusNotFound, combo.Status.First)
	assert.Equal(t, provider.GenderUnknown, combo.Gender)
	assert.Equal(t, 1, res.Stats.PartsNotFound)
}

func TestAnalyze_CapEnforcedBeforeLookups(t *testing.T) {
	fifteenFirsts := append(append([]string{}, tenFirstNames...),
		"Uma", "Vera", "Wren", "Xena", "Yara")
	gw := resolveAll()
	a := newTestAggregator(t, gw)

	res, err := a.Analyze(context.Background(), fifteenFirsts, tenMiddles, "Lee",
		Options{MaxCombinations: 100})

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrTooManyCombinations))
	assert.Equal(t, 0, gw.callCount(), "over-cap requests must not reach any provider")

	var enhancedErr *errors.EnhancedError
	require.True(t, errors.As(err, &enhancedErr))
	assert.Equal(t, 150, enhancedErr.GetContext()["computed_count"])
	assert.Equal(t, 100, enhancedErr.GetContext()["max_combinations"])
}

func TestAnalyze_EmptyFirstNames(t *testing.T) {
	a := newTestAggregator(t, resolveAll())

	res, err := a.Analyze(context.Background(), nil, nil, "Lee", Options{})

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	var enhancedErr *errors.EnhancedError
	require.True(t, errors.As(err, &enhancedErr))
	assert.Equal(t, string(errors.CategoryValidation), enhancedErr.GetCategory())
}

func TestAnalyze_LastNameRequired(t *testing.T) {
	tests := []struct {
		name     string
		lastName string
	}{
		{"empty", ""},
		{"whitespace_only", "   "},
		{"disallowed_character", "K1m"},
	}
	a := newTestAggregator(t, resolveAll())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.Analyze(context.Background(), []string{"Ana"}, nil, tt.lastName, Options{})
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

func TestAnalyze_RejectedPartsExcludedFromExpansion(t *testing.T) {
	a := newTestAggregator(t, resolveAll())

	res, err := a.Analyze(context.Background(),
		[]string{"Ana", "B0b"}, []string{"May"}, "Lee", Options{})

	require.NoError(t, err)
	require.Len(t, res.Combinations, 1, "a rejected part drops only its own combinations")
	assert.Equal(t, "Ana May Lee", res.Combinations[0].FullName)

	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "B0b", res.Rejected[0].Part)
	assert.Contains(t, res.Rejected[0].Reason, "disallowed character")
	assert.Equal(t, 1, res.Stats.Rejected)
}

func TestAnalyze_AllFirstNamesRejected(t *testing.T) {
	gw := resolveAll()
	a := newTestAggregator(t, gw)

	res, err := a.Analyze(context.Background(), []string{"123", "!!!"}, nil, "Lee", Options{})

	require.NoError(t, err, "a non-empty list of invalid names is rejection, not invalid input")
	assert.Empty(t, res.Combinations)
	assert.Len(t, res.Rejected, 2)
	assert.Equal(t, 0, gw.callCount())
}

func TestAnalyze_MiddleGenderInformationalOnly(t *testing.T) {
	gw := &fakeGateway{fn: func(_ context.Context, part namepart.Part) (*provider.PartMetadata, error) {
		switch part.Key {
		case "ana":
			return &provider.PartMetadata{
				Gender:   provider.GenderUnknown,
				Cultures: provider.CultureSet{Positive: []string{"Spanish"}},
			}, nil
		case "maria":
			return &provider.PartMetadata{
				Meaning:  "of the sea",
				Gender:   provider.GenderFemale,
				Cultures: provider.CultureSet{Positive: []string{"Hebrew"}},
			}, nil
		default:
			return nil, provider.NewNotFoundError("fake", part)
		}
	}}
	a := newTestAggregator(t, gw)

	res, err := a.Analyze(context.Background(), []string{"Ana"}, []string{"Maria"}, "Lee", Options{})

	require.NoError(t, err)
	require.Len(t, res.Combinations, 1)
	combo := res.Combinations[0]
	assert.Equal(t, provider.GenderUnknown, combo.Gender,
		"a middle name's gender never fills the first name's gap")
	assert.Equal(t, "of the sea", combo.Meaning, "text fields do fill from the middle name")
	assert.Equal(t, []string{"Spanish", "Hebrew"}, combo.Cultures.Positive)
}

func TestAnalyze_GenderFromFirstName(t *testing.T) {
	gw := &fakeGateway{fn: func(_ context.Context, part namepart.Part) (*provider.PartMetadata, error) {
		if part.Key == "ana" {
			return &provider.PartMetadata{Gender: provider.GenderFemale}, nil
		}
		return &provider.PartMetadata{Gender: provider.GenderMale}, nil
	}}
	a := newTestAggregator(t, gw)

	res, err := a.Analyze(context.Background(), []string{"Ana"}, []string{"Jo"}, "Lee", Options{})

	require.NoError(t, err)
	require.Len(t, res.Combinations, 1)
	assert.Equal(t, provider.GenderFemale, res.Combinations[0].Gender)
}

func TestAnalyze_BoundedConcurrency(t *testing.T) {
	var current, peak atomic.Int32
	gw := &fakeGateway{fn: func(_ context.Context, part namepart.Part) (*provider.PartMetadata, error) {
		cur := current.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		current.Add(-1)
		return metaFor(part), nil
	}}
	a := newTestAggregator(t, gw)

	firsts := append(append([]string{}, tenFirstNames...), "Uma", "Vera")
	res, err := a.Analyze(context.Background(), firsts, nil, "Lee",
		Options{MaxConcurrentLookups: 3})

	require.NoError(t, err)
	assert.Len(t, res.Combinations, 12)
	assert.LessOrEqual(t, peak.Load(), int32(3), "fan-out width stays within the limit")
}

func TestAnalyze_PerLookupTimeout(t *testing.T) {
	gw := &fakeGateway{fn: func(ctx context.Context, part namepart.Part) (*provider.PartMetadata, error) {
		if part.Key == "bob" {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
				return metaFor(part), nil
			}
		}
		return metaFor(part), nil
	}}
	a := newTestAggregator(t, gw)

	res, err := a.Analyze(context.Background(), []string{"Ana", "Bob"}, nil, "Lee",
		Options{ProviderTimeout: 30 * time.Millisecond})

	require.NoError(t, err, "a timed-out part degrades like any provider failure")
	require.Len(t, res.Combinations, 2)
	assert.Equal(t, StatusOK, res.Combinations[0].Status.First)
	assert.Equal(t, StatusProviderFailed, res.Combinations[1].Status.First)
}

func TestAnalyze_CancelledRequest(t *testing.T) {
	gw := &fakeGateway{fn: func(ctx context.Context, part namepart.Part) (*provider.PartMetadata, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return metaFor(part), nil
	}}
	a := newTestAggregator(t, gw)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := a.Analyze(ctx, []string{"Ana", "Bob"}, nil, "Lee", Options{})

	require.Error(t, err)
	assert.Nil(t, res)

	var enhancedErr *errors.EnhancedError
	require.True(t, errors.As(err, &enhancedErr))
	assert.Equal(t, string(errors.CategoryCancellation), enhancedErr.GetCategory())
}

func TestCombinationStatus_Worst(t *testing.T) {
	tests := []struct {
		name     string
		status   CombinationStatus
		expected PartStatus
	}{
		{"all_ok", CombinationStatus{First: StatusOK, Middle: StatusOK}, StatusOK},
		{"no_middle", CombinationStatus{First: StatusOK}, StatusOK},
		{"first_failed", CombinationStatus{First: StatusProviderFailed, Middle: StatusOK}, StatusProviderFailed},
		{"middle_not_found", CombinationStatus{First: StatusOK, Middle: StatusNotFound}, StatusNotFound},
		{"failure_outranks_not_found", CombinationStatus{First: StatusNotFound, Middle: StatusProviderFailed}, StatusProviderFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.Worst())
		})
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	t.Run("zero_values_get_defaults", func(t *testing.T) {
		opts := Options{}.withDefaults()
		assert.Equal(t, 100, opts.MaxCombinations)
		assert.Equal(t, 5, opts.MaxConcurrentLookups)
		assert.Equal(t, 10*time.Second, opts.ProviderTimeout)
	})

	t.Run("explicit_values_kept", func(t *testing.T) {
		opts := Options{MaxCombinations: 10, MaxConcurrentLookups: 2, ProviderTimeout: time.Second}.withDefaults()
		assert.Equal(t, 10, opts.MaxCombinations)
		assert.Equal(t, 2, opts.MaxConcurrentLookups)
		assert.Equal(t, time.Second, opts.ProviderTimeout)
	})

	t.Run("fanout_width_clamped", func(t *testing.T) {
		opts := Options{MaxConcurrentLookups: 500}.withDefaults()
		assert.Equal(t, 64, opts.MaxConcurrentLookups)
	})
}

func TestNew_RequiresLookup(t *testing.T) {
	a, err := New(nil)

	require.Error(t, err)
	assert.Nil(t, a)

	var enhancedErr *errors.EnhancedError
	require.True(t, errors.As(err, &enhancedErr))
	assert.Equal(t, string(errors.CategoryConfiguration), enhancedErr.GetCategory())
}
