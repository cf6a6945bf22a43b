package resolver

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ProductScout/internal/domain"
	"ProductScout/internal/resilience"
	"ProductScout/internal/testutil"
)

func noRetry() resilience.RetryPolicy {
	return resilience.RetryPolicy{Sleep: func(context.Context, time.Duration) error { return nil }}
}

func totalMentions(cs []domain.CandidateProduct) int {
	n := 0
	for _, c := range cs {
		n += c.MentionCount
	}
	return n
}

func TestResolveEmptyAndSingle(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil, noRetry(), Config{}, nil)

	assert.Equal(t, []domain.CandidateProduct{}, r.Resolve(context.Background(), nil))
	assert.Equal(t, []domain.CandidateProduct{}, r.Resolve(context.Background(), []domain.CandidateProduct{}))

	single := []domain.CandidateProduct{{Brand: "Sony", Model: "WF-1000XM5", Category: "earbuds", MentionCount: 4, Sources: []string{"u1"}}}
	assert.Equal(t, single, r.Resolve(context.Background(), single))
}

func TestResolveMergesSameProduct(t *testing.T) {
	t.Parallel()

	in := []domain.CandidateProduct{
		{Brand: "Sony", Model: "WF-1000XM5", MentionCount: 3, Sources: []string{"u1", "u2"}},
		{Brand: "Sony", Model: "WF-1000XM5", MentionCount: 5, Sources: []string{"u2", "u3"}},
	}

	got := NewResolver(nil, noRetry(), Config{}, nil).Resolve(context.Background(), in)

	require.Len(t, got, 1)
	assert.Equal(t, 8, got[0].MentionCount)
	assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, got[0].Sources)
	assert.Equal(t, 3, in[0].MentionCount, "input must not be mutated")
}

func TestMergeLexicalCanonicalIsMostMentioned(t *testing.T) {
	t.Parallel()

	in := []domain.CandidateProduct{
		{Brand: "sony", Model: "wf1000xm5", MentionCount: 1},
		{Brand: "Sony", Model: "WF-1000XM5", Variant: "black", MentionCount: 6},
		{Brand: "Bose", Model: "Sleepbuds II", MentionCount: 2},
	}

	got := MergeLexical(in)

	require.Len(t, got, 2)
	assert.Equal(t, "WF-1000XM5", got[0].Model)
	assert.Equal(t, "black", got[0].Variant)
	assert.Equal(t, 7, got[0].MentionCount)
	assert.Equal(t, "Bose", got[1].Brand)
}

func TestMergeLexicalKeepsDistinctGenerations(t *testing.T) {
	t.Parallel()

	in := []domain.CandidateProduct{
		{Brand: "Sony", Model: "WF-1000XM4", MentionCount: 2},
		{Brand: "Sony", Model: "WF-1000XM5", MentionCount: 3},
	}

	assert.Len(t, MergeLexical(in), 2)
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sony wf1000xm5", Normalize("  Sony   WF-1000XM5! "))
	assert.True(t, Similar("bose sleepbuds ii", "bose sleepbuds ii"))
	assert.True(t, Similar("anker soundcore sleep a20", "soundcore sleep a20"))
	assert.False(t, Similar("sony wf1000xm4", "sony wf1000xm5"))
	assert.InDelta(t, 0.75, Jaccard("a b c d", "a b c"), 1e-9)
	assert.False(t, Similar("a b c d", "a b c e"), "jaccard 0.6 is below threshold")
}

func TestResolvePropertiesOnRandomSets(t *testing.T) {
	t.Parallel()

	brands := []string{"Sony", "sony", "Bose", "Anker", "JBL"}
	models := []string{"WF-1000XM5", "wf 1000xm5", "Sleepbuds II", "Soundcore A20", "Tune 230NC", "Flip 6"}
	rng := rand.New(rand.NewSource(42))
	r := NewResolver(nil, noRetry(), Config{}, nil)

	for round := 0; round < 50; round++ {
		n := rng.Intn(15)
		in := make([]domain.CandidateProduct, n)
		for i := range in {
			in[i] = domain.CandidateProduct{
				Brand:        brands[rng.Intn(len(brands))],
				Model:        models[rng.Intn(len(models))],
				MentionCount: 1 + rng.Intn(9),
				Sources:      []string{fmt.Sprintf("u%d", rng.Intn(5))},
			}
		}

		got := r.Resolve(context.Background(), in)

		assert.LessOrEqual(t, len(got), len(in))
		assert.Equal(t, totalMentions(in), totalMentions(got))
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].MentionCount, got[i].MentionCount)
		}
	}
}

func distinctCandidates(n int) []domain.CandidateProduct {
	out := make([]domain.CandidateProduct, n)
	for i := range out {
		out[i] = domain.CandidateProduct{
			Brand:        fmt.Sprintf("Brand%c", 'A'+i),
			Model:        fmt.Sprintf("Model%c%c", 'A'+i, 'A'+i),
			MentionCount: n - i,
			Sources:      []string{fmt.Sprintf("u%d", i)},
		}
	}
	return out
}

func TestResolveSemanticPassAppliesGroups(t *testing.T) {
	t.Parallel()

	in := distinctCandidates(22)
	fake := &testutil.FakeLLM{Respond: func(string) (string, error) {
		return `{"groups": [
			{"canonicalIndex": 0, "mergeIndices": [1, 0, 99]},
			{"canonicalIndex": 1, "mergeIndices": [2]},
			{"canonicalIndex": 3, "mergeIndices": [1, 4]}
		]}`, nil
	}}

	got := NewResolver(fake, noRetry(), Config{Threshold: 20, Window: 80}, nil).Resolve(context.Background(), in)

	require.Len(t, got, 20)
	assert.Equal(t, 22+21, got[0].MentionCount)
	assert.Equal(t, []string{"u0", "u1"}, got[0].Sources)
	assert.Equal(t, totalMentions(in), totalMentions(got))
	assert.Len(t, fake.Prompts(), 1)
}

func TestResolveSemanticWindowPassesTailThrough(t *testing.T) {
	t.Parallel()

	in := distinctCandidates(25)
	fake := &testutil.FakeLLM{Respond: func(string) (string, error) {
		return `[{"canonicalIndex": 0, "mergeIndices": [1]}]`, nil
	}}

	got := NewResolver(fake, noRetry(), Config{Threshold: 20, Window: 10}, nil).Resolve(context.Background(), in)

	assert.Len(t, got, 24)
	assert.Equal(t, totalMentions(in), totalMentions(got))
	assert.NotContains(t, fake.Prompts()[0], "[10]")
}

func TestResolveSemanticFailureKeepsLexicalResult(t *testing.T) {
	t.Parallel()

	in := distinctCandidates(21)
	got := NewResolver(testutil.FailingLLM(), noRetry(), Config{}, nil).Resolve(context.Background(), in)

	assert.Len(t, got, 21)
	assert.Equal(t, totalMentions(in), totalMentions(got))
}

func TestResolveSkipsSemanticPassForSmallSets(t *testing.T) {
	t.Parallel()

	fake := testutil.FailingLLM()
	NewResolver(fake, noRetry(), Config{}, nil).Resolve(context.Background(), distinctCandidates(20))

	assert.Empty(t, fake.Prompts())
}
