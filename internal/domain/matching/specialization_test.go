package matching

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carematch/carematch/internal/platform/cache"
)

func TestKeywordScore(t *testing.T) {
	tests := []struct {
		name    string
		concern string
		tags    []string
		want    float64
	}{
		{"synonyms for anxiety", "worried and nervous all the time", []string{"anxiety"}, 1},
		{"half the tags", "can't focus in class, gets very anxious", []string{"anxiety", "adhd", "trauma", "grief"}, 0.5},
		{"no overlap", "trouble with reading", []string{"anxiety"}, 0},
		{"no tags", "worried", nil, 0},
		{"unknown tag matches its own name", "questions about gender identity", []string{"identity"}, 1},
		{"case and punctuation", "PANIC attacks!!", []string{"Anxiety"}, 1},
		{"prefix only at word start", "unworried", []string{"anxiety"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeywordScore(tt.concern, tt.tags); got != tt.want {
				t.Errorf("KeywordScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeywordScore_Deterministic(t *testing.T) {
	concern := "sad, withdrawn and not sleeping; nightmares since the accident"
	tags := []string{"depression", "sleep", "trauma", "ocd"}
	first := KeywordScore(concern, tags)
	for i := 0; i < 100; i++ {
		if got := KeywordScore(concern, tags); got != first {
			t.Fatalf("call %d returned %v, first returned %v", i, got, first)
		}
	}
	if first != 0.75 {
		t.Errorf("expected 0.75, got %v", first)
	}
}

func TestMatchedTags_PreservesOrder(t *testing.T) {
	got := MatchedTags("angry outbursts and panic", []string{"behavioral", "ocd", "anxiety"})
	if len(got) != 2 || got[0] != "behavioral" || got[1] != "anxiety" {
		t.Errorf("unexpected matches %v", got)
	}
}

func TestSemanticCacheKey_IgnoresTagOrder(t *testing.T) {
	a := SemanticCacheKey("worried", []string{"anxiety", "Trauma"})
	b := SemanticCacheKey("worried", []string{"trauma", "anxiety"})
	if a != b {
		t.Error("expected identical keys for the same tag set")
	}
	if a == SemanticCacheKey("sad", []string{"anxiety", "trauma"}) {
		t.Error("expected different keys for different concerns")
	}
}

type countingRelevancer struct {
	calls atomic.Int32
	score float64
	err   error
}

func (c *countingRelevancer) Relevance(context.Context, string, []string) (float64, error) {
	c.calls.Add(1)
	return c.score, c.err
}

func TestReasoningScorer_Memoizes(t *testing.T) {
	rel := &countingRelevancer{score: 0.65}
	s := NewReasoningScorer(rel, cache.NewMemoryStore(), time.Hour, nil)

	for _, tags := range [][]string{{"anxiety", "ocd"}, {"ocd", "anxiety"}} {
		got, err := s.Score(context.Background(), "worried", tags)
		if err != nil {
			t.Fatal(err)
		}
		if got != 0.65 {
			t.Errorf("expected 0.65, got %v", got)
		}
	}
	if n := rel.calls.Load(); n != 1 {
		t.Errorf("expected one remote call, got %d", n)
	}
}

func TestReasoningScorer_RejectsOutOfRange(t *testing.T) {
	s := NewReasoningScorer(&countingRelevancer{score: 3}, nil, 0, nil)
	if _, err := s.Score(context.Background(), "x", []string{"y"}); err == nil {
		t.Error("expected an error for a score above 1")
	}
}

type blockingScorer struct{}

func (blockingScorer) Score(ctx context.Context, _ string, _ []string) (float64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

type fixedScorer struct {
	score float64
	err   error
}

func (f fixedScorer) Score(context.Context, string, []string) (float64, error) { return f.score, f.err }

func TestFallbackScorer(t *testing.T) {
	concern := "worried and nervous all the time"
	tags := []string{"anxiety", "adhd"}
	keyword := KeywordScore(concern, tags)

	tests := []struct {
		name         string
		primary      SpecializationScorer
		want         float64
		wantDegraded bool
	}{
		{"primary answers", fixedScorer{score: 0.2}, 0.2, false},
		{"primary errors", fixedScorer{err: errors.New("quota")}, keyword, true},
		{"primary times out", blockingScorer{}, keyword, true},
		{"no primary", nil, keyword, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFallbackScorer(tt.primary, 20*time.Millisecond, nil, zerolog.Nop())
			start := time.Now()
			got, degraded := f.ScoreWithStatus(context.Background(), concern, tags)
			if got != tt.want || degraded != tt.wantDegraded {
				t.Errorf("got (%v, %v), want (%v, %v)", got, degraded, tt.want, tt.wantDegraded)
			}
			if time.Since(start) > time.Second {
				t.Error("fallback must not wait beyond its timeout")
			}
		})
	}
}
