package candidate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ProductScout/internal/domain"
	"ProductScout/internal/resilience"
	"ProductScout/internal/source"
	"ProductScout/internal/testutil"
)

func noRetry() resilience.RetryPolicy {
	return resilience.RetryPolicy{Sleep: func(context.Context, time.Duration) error { return nil }}
}

func sleepIntent() domain.IntentResult {
	return domain.IntentResult{
		Intent:           domain.ParsedIntent{UseCase: "sleeping with headphones"},
		SeedTerms:        []string{"sleep earbuds", "sleep headphones", "side sleeper earbuds", "sleep buds reddit", "noise masking", "sixth", "seventh"},
		InferredCategory: "headphones",
	}
}

func sleepMentions() (*testutil.FakeAdapter, *testutil.FakeAdapter) {
	reddit := &testutil.FakeAdapter{AdapterName: "reddit", Mentions: []domain.Mention{
		{Platform: domain.PlatformReddit, URL: "https://reddit.com/r/headphones/1", Text: "The Sony WF-1000XM5 are great to sleep in"},
		{Platform: domain.PlatformReddit, URL: "https://reddit.com/r/sleep/2", Text: "I use Sony WF-1000XM5 every night"},
	}}
	web := &testutil.FakeAdapter{AdapterName: "websearch", Mentions: []domain.Mention{
		{Platform: domain.PlatformWeb, URL: "https://example.com/best-sleep-earbuds", Text: "Bose Sleepbuds II remain a classic"},
	}}
	return reddit, web
}

func TestGenerateExtractsDistinctProducts(t *testing.T) {
	t.Parallel()

	reddit, web := sleepMentions()
	reg := source.NewRegistry()
	reg.Register(reddit)
	reg.Register(web)

	fake := &testutil.FakeLLM{Respond: func(prompt string) (string, error) {
		return `{"products": [
			{"brand": "Sony", "model": "WF-1000XM5", "category": "earbuds", "sourceIndex": 0},
			{"brand": "Sony", "model": "WF-1000XM5", "category": "earbuds", "sourceIndex": 1},
			{"brand": "Bose", "model": "Sleepbuds II", "category": "earbuds", "sourceIndex": 2},
			{"brand": "generic", "model": "foam earplugs", "sourceIndex": 2}
		]}`, nil
	}}

	gen := NewGenerator(reg, nil, fake, noRetry(), Config{SeedTermCap: 5, BatchSize: 30}, nil)
	res := gen.Generate(context.Background(), sleepIntent())

	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "Sony", res.Candidates[0].Brand)
	assert.Equal(t, "WF-1000XM5", res.Candidates[0].Model)
	assert.Equal(t, 2, res.Candidates[0].MentionCount)
	assert.Equal(t, []string{"https://reddit.com/r/headphones/1", "https://reddit.com/r/sleep/2"}, res.Candidates[0].Sources)
	assert.Equal(t, "Bose", res.Candidates[1].Brand)
	assert.Equal(t, 1, res.Candidates[1].MentionCount)

	assert.Len(t, res.Mentions, 3)
	assert.Equal(t, 1, res.Stats.Batches)
	assert.Equal(t, 3, res.Stats.References)
	assert.Len(t, reddit.Terms()[0], 5, "seed terms capped")
}

func TestGenerateZeroMentionsShortCircuits(t *testing.T) {
	t.Parallel()

	reg := source.NewRegistry()
	reg.Register(&testutil.FakeAdapter{AdapterName: "reddit"})
	fake := &testutil.FakeLLM{Respond: func(string) (string, error) { return `[]`, nil }}

	res := NewGenerator(reg, nil, fake, noRetry(), Config{}, nil).Generate(context.Background(), sleepIntent())

	assert.Empty(t, res.Candidates)
	assert.Empty(t, res.Mentions)
	assert.Zero(t, res.Stats.Batches)
	assert.Empty(t, fake.Prompts(), "no LLM call without mentions")
}

func TestGenerateLLMRejectingEveryCallYieldsNoCandidates(t *testing.T) {
	t.Parallel()

	reddit, web := sleepMentions()
	reg := source.NewRegistry()
	reg.Register(reddit)
	reg.Register(web)

	res := NewGenerator(reg, nil, testutil.FailingLLM(), noRetry(), Config{}, nil).Generate(context.Background(), sleepIntent())

	assert.Empty(t, res.Candidates)
	assert.Len(t, res.Mentions, 3)
	assert.Equal(t, 1, res.Stats.FailedBatches)
}

func TestGenerateFailingSourceDoesNotAbort(t *testing.T) {
	t.Parallel()

	reddit, _ := sleepMentions()
	reg := source.NewRegistry()
	reg.Register(reddit)
	reg.Register(&testutil.FakeAdapter{AdapterName: "websearch", Err: errors.New("connection reset")})

	fake := &testutil.FakeLLM{Respond: func(string) (string, error) {
		return `[{"brand": "Sony", "model": "WF-1000XM5", "sourceIndex": 0}]`, nil
	}}
	res := NewGenerator(reg, nil, fake, noRetry(), Config{}, nil).Generate(context.Background(), sleepIntent())

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "headphones", res.Candidates[0].Category, "falls back to inferred category")
	assert.Equal(t, []string{"websearch"}, res.Stats.FailedSources)
	assert.Equal(t, 2, res.Stats.MentionsBySrc["reddit"])
}

func TestGenerateChunksMentionsAndIsolatesBatchFailures(t *testing.T) {
	t.Parallel()

	mentions := make([]domain.Mention, 65)
	for i := range mentions {
		mentions[i] = domain.Mention{Platform: domain.PlatformReddit, URL: fmt.Sprintf("https://reddit.com/r/x/%d", i), Text: fmt.Sprintf("post %d", i)}
	}
	reg := source.NewRegistry()
	reg.Register(&testutil.FakeAdapter{AdapterName: "reddit", Mentions: mentions})

	fake := &testutil.FakeLLM{Respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "post 30") {
			return "", errors.New("overloaded")
		}
		return `{"products": [{"brand": "Anker", "model": "Soundcore Sleep A20", "sourceIndex": 0}]}`, nil
	}}
	res := NewGenerator(reg, nil, fake, noRetry(), Config{BatchSize: 30, Workers: 3}, nil).Generate(context.Background(), sleepIntent())

	assert.Equal(t, 3, res.Stats.Batches)
	assert.Equal(t, 1, res.Stats.FailedBatches)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, 2, res.Candidates[0].MentionCount)
	assert.ElementsMatch(t, []string{"https://reddit.com/r/x/0", "https://reddit.com/r/x/60"}, res.Candidates[0].Sources)
}

func TestAggregateCaseInsensitiveKey(t *testing.T) {
	t.Parallel()

	idx := 0
	refs := []sourcedRef{
		{productRef: productRef{Brand: "Bose", Model: "QC Ultra", SourceIndex: &idx}, url: "u1"},
		{productRef: productRef{Brand: "Sony", Model: "XM5"}, url: "u1"},
		{productRef: productRef{Brand: "sony", Model: "xm5"}, url: "u2"},
		{productRef: productRef{Brand: "SONY", Model: "XM5"}, url: "u2"},
	}

	got := aggregate(refs, "general")

	require.Len(t, got, 2)
	assert.Equal(t, "Sony", got[0].Brand)
	assert.Equal(t, 3, got[0].MentionCount)
	assert.Equal(t, []string{"u1", "u2"}, got[0].Sources)
	assert.Equal(t, "general", got[1].Category)
}
