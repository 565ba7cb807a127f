package matching

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/carematch/carematch/internal/platform/cache"
	"github.com/carematch/carematch/internal/platform/metrics"
)

// SpecializationScorer rates in [0,1] how well a set of specialization tags
// fits a concern description.
type SpecializationScorer interface {
	Score(ctx context.Context, concern string, tags []string) (float64, error)
}

// synonyms maps a specialization tag to word prefixes that signal it. Tags
// missing here match on their own name.
var synonyms = map[string][]string{
	"anxiety":    {"anxi", "worr", "nervous", "panic", "fear", "phobi", "stress", "scared", "on edge"},
	"depression": {"depress", "sad", "hopeless", "low mood", "withdrawn", "crying", "unmotivated"},
	"adhd":       {"adhd", "attention", "focus", "hyperactiv", "impulsiv", "distract", "fidget"},
	"trauma":     {"trauma", "ptsd", "abuse", "flashback", "assault", "accident"},
	"behavioral": {"behavio", "tantrum", "aggress", "defian", "conduct", "anger", "outburst"},
	"sleep":      {"sleep", "insomnia", "nightmare", "tired", "awake at night"},
	"ocd":        {"ocd", "obsess", "compulsi", "ritual", "intrusive"},
	"autism":     {"autis", "asd", "sensory", "social communication", "spectrum"},
	"eating":     {"eating", "anorexi", "bulimi", "binge", "food", "weight"},
	"grief":      {"grief", "griev", "loss", "bereave", "passed away", "died"},
	"family":     {"family", "parent", "divorce", "sibling", "custody"},
	"substance":  {"substance", "alcohol", "drug", "addict", "drinking", "vaping"},
	"self-harm":  {"self-harm", "self harm", "cutting", "suicid"},
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// normalizeText lowercases text and collapses every run of non-letter,
// non-digit characters (hyphens aside) to one space, padding both ends.
func normalizeText(text string) string {
	var b strings.Builder
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

// KeywordScorer is the deterministic heuristic: the fraction of tags whose
// keywords start a word of the concern text.
type KeywordScorer struct{}

func (KeywordScorer) Score(_ context.Context, concern string, tags []string) (float64, error) {
	return KeywordScore(concern, tags), nil
}

// KeywordScore is KeywordScorer as a pure function.
func KeywordScore(concern string, tags []string) float64 {
	if len(tags) == 0 {
		return 0
	}
	return float64(len(MatchedTags(concern, tags))) / float64(len(tags))
}

// MatchedTags returns the tags, in input order, whose keywords appear in concern.
func MatchedTags(concern string, tags []string) []string {
	text := normalizeText(concern)
	var out []string
	for _, tag := range tags {
		if tagMatches(text, normalizeTag(tag)) {
			out = append(out, tag)
		}
	}
	return out
}

func tagMatches(text, tag string) bool {
	if tag == "" {
		return false
	}
	keywords, ok := synonyms[tag]
	if !ok {
		keywords = []string{tag}
	}
	for _, kw := range keywords {
		if strings.Contains(text, " "+kw) {
			return true
		}
	}
	return false
}

// Relevancer is the remote reasoning service.
type Relevancer interface {
	Relevance(ctx context.Context, concern string, specializations []string) (float64, error)
}

// ReasoningScorer asks the reasoning service and memoizes answers by concern
// and sorted tag set.
type ReasoningScorer struct {
	client  Relevancer
	cache   cache.Store
	ttl     time.Duration
	metrics *metrics.Metrics
}

func NewReasoningScorer(client Relevancer, store cache.Store, ttl time.Duration, m *metrics.Metrics) *ReasoningScorer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ReasoningScorer{client: client, cache: store, ttl: ttl, metrics: m}
}

// SemanticCacheKey is sha256(concern + "|" + sorted tags).
func SemanticCacheKey(concern string, tags []string) string {
	sorted := make([]string, len(tags))
	for i, t := range tags {
		sorted[i] = normalizeTag(t)
	}
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(concern + "|" + strings.Join(sorted, ",")))
	return "semantic:" + hex.EncodeToString(sum[:])
}

func (s *ReasoningScorer) Score(ctx context.Context, concern string, tags []string) (float64, error) {
	key := SemanticCacheKey(concern, tags)
	if s.cache != nil {
		var cached float64
		err := cache.GetJSON(ctx, s.cache, key, &cached)
		s.metrics.CacheLookup("semantic", err == nil)
		if err == nil {
			return cached, nil
		}
	}

	score, err := s.client.Relevance(ctx, concern, tags)
	if err != nil {
		return 0, err
	}
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("reasoning score %v out of range", score)
	}
	if s.cache != nil {
		_ = cache.SetJSON(ctx, s.cache, key, score, s.ttl)
	}
	return score, nil
}

// FallbackScorer bounds the primary scorer with a timeout and answers with
// the keyword heuristic whenever the primary is absent, slow or failing.
type FallbackScorer struct {
	primary SpecializationScorer
	timeout time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewFallbackScorer(primary SpecializationScorer, timeout time.Duration, m *metrics.Metrics, logger zerolog.Logger) *FallbackScorer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &FallbackScorer{primary: primary, timeout: timeout, metrics: m, logger: logger}
}

func (f *FallbackScorer) Score(ctx context.Context, concern string, tags []string) (float64, error) {
	score, _ := f.ScoreWithStatus(ctx, concern, tags)
	return score, nil
}

// ScoreWithStatus also reports whether the heuristic answered.
func (f *FallbackScorer) ScoreWithStatus(ctx context.Context, concern string, tags []string) (score float64, degraded bool) {
	if len(tags) == 0 {
		return 0, false
	}
	if f.primary == nil {
		f.metrics.SpecializationFallback("disabled")
		return KeywordScore(concern, tags), true
	}

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	score, err := f.primary.Score(callCtx, concern, tags)
	if err == nil {
		return score, false
	}

	reason := "error"
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		reason = "timeout"
	}
	f.metrics.SpecializationFallback(reason)
	f.logger.Warn().Err(err).Str("reason", reason).Msg("specialization scoring degraded to keyword heuristic")
	return KeywordScore(concern, tags), true
}
