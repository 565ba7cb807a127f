// Package matching ranks eligible providers for a case session.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/carematch/carematch/internal/domain/casesession"
	"github.com/carematch/carematch/internal/domain/provider"
	"github.com/carematch/carematch/internal/platform/cache"
	"github.com/carematch/carematch/internal/platform/metrics"
	"github.com/carematch/carematch/internal/platform/telemetry"
)

var ErrNotFound = errors.New("case session not found")

// PreconditionError names the upstream data a session still lacks.
type PreconditionError struct {
	Missing []string
}

func (e *PreconditionError) Error() string {
	return "matching preconditions not met: missing " + strings.Join(e.Missing, ", ")
}

type SessionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*casesession.CaseSession, error)
}

type ProfileReader interface {
	GetProfile(ctx context.Context, caseSessionID uuid.UUID) (*casesession.ClinicalProfile, error)
	ListRequesterWindows(ctx context.Context, caseSessionID uuid.UUID) ([]casesession.RequesterWindow, error)
}

// CandidateSource applies the payer filter in the store.
type CandidateSource interface {
	ListActiveByPayer(ctx context.Context, payer string) ([]*provider.Provider, error)
}

type Config struct {
	CacheTTL         time.Duration
	Timeout          time.Duration
	ReasoningTimeout time.Duration
	MinResults       int
	MaxResults       int
	Concurrency      int
	AgeFit           AgeFit
}

func (c *Config) applyDefaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 10 * time.Minute
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.ReasoningTimeout <= 0 {
		c.ReasoningTimeout = 2 * time.Second
	}
	if c.MinResults <= 0 {
		c.MinResults = 3
	}
	if c.MaxResults < c.MinResults {
		c.MaxResults = c.MinResults
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.AgeFit == (AgeFit{}) {
		c.AgeFit = DefaultAgeFit
	}
}

type Deps struct {
	Sessions   SessionReader
	Profiles   ProfileReader
	Candidates CandidateSource
	// Availability is optional; without it every candidate gets NeutralAvailability
	// and no next-opening estimate.
	Availability *AvailabilityScorer
	// Reasoning is optional; without it specialization uses the keyword heuristic.
	Reasoning SpecializationScorer
	Analytics AnalyticsRepository
	Cache     cache.Store
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

type Ranker struct {
	cfg            Config
	sessions       SessionReader
	profiles       ProfileReader
	candidates     CandidateSource
	specialization *FallbackScorer
	availability   *AvailabilityScorer
	analytics      AnalyticsRepository
	cache          cache.Store
	metrics        *metrics.Metrics
	logger         zerolog.Logger
	now            func() time.Time
}

func NewRanker(cfg Config, d Deps) *Ranker {
	cfg.applyDefaults()
	logger := d.Logger.With().Str("component", "matching").Logger()
	return &Ranker{
		cfg:            cfg,
		sessions:       d.Sessions,
		profiles:       d.Profiles,
		candidates:     d.Candidates,
		specialization: NewFallbackScorer(d.Reasoning, cfg.ReasoningTimeout, d.Metrics, logger),
		availability:   d.Availability,
		analytics:      d.Analytics,
		cache:          d.Cache,
		metrics:        d.Metrics,
		logger:         logger,
		now:            time.Now,
	}
}

func matchCacheKey(caseSessionID uuid.UUID) string {
	return "match:" + caseSessionID.String()
}

// Match returns the ranked providers for a case session, best first.
func (r *Ranker) Match(ctx context.Context, caseSessionID uuid.UUID) ([]MatchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "matching.Match",
		attribute.String("case_session.id", caseSessionID.String()))

	results, err := r.match(ctx, caseSessionID)
	var perr *PreconditionError
	if errors.As(err, &perr) || errors.Is(err, ErrNotFound) {
		telemetry.EndSpan(span, nil)
	} else {
		telemetry.EndSpan(span, err)
	}
	return results, err
}

func (r *Ranker) match(ctx context.Context, caseSessionID uuid.UUID) ([]MatchResult, error) {
	key := matchCacheKey(caseSessionID)
	if r.cache != nil {
		var cached []MatchResult
		err := cache.GetJSON(ctx, r.cache, key, &cached)
		r.metrics.CacheLookup("match", err == nil)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			r.logger.Warn().Err(err).Msg("match cache read failed")
		}
	}

	criteria, err := r.loadCriteria(ctx, caseSessionID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	started := time.Now()

	candidates, err := r.candidates.ListActiveByPayer(ctx, criteria.PayerID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	candidates = filterJurisdiction(candidates, criteria.Jurisdiction)
	candidates = filterAge(candidates, criteria.Age)

	results, degraded, err := r.scoreAll(ctx, candidates, criteria)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ProviderName < results[j].ProviderName
	})
	if len(results) > r.cfg.MaxResults {
		results = results[:r.cfg.MaxResults]
	}

	elapsed := time.Since(started)
	r.metrics.MatchCompleted(elapsed, len(candidates))
	r.recordAnalytics(ctx, &AnalyticsRecord{
		CaseSessionID:  caseSessionID,
		Criteria:       criteria,
		Results:        results,
		CandidateCount: len(candidates),
		Degraded:       degraded,
		LatencyMS:      elapsed.Milliseconds(),
	})
	if r.cache != nil {
		if err := cache.SetJSON(ctx, r.cache, key, results, r.cfg.CacheTTL); err != nil {
			r.metrics.BestEffortFailure("match_cache")
			r.logger.Warn().Err(err).Msg("match cache write failed")
		}
	}

	r.logger.Debug().
		Str("case_session_id", caseSessionID.String()).
		Int("candidates", len(candidates)).
		Bool("degraded", degraded).
		Dur("elapsed", elapsed).
		Msg("ranked providers")
	return results, nil
}

func (r *Ranker) loadCriteria(ctx context.Context, caseSessionID uuid.UUID) (Criteria, error) {
	s, err := r.sessions.GetByID(ctx, caseSessionID)
	if errors.Is(err, casesession.ErrNotFound) {
		return Criteria{}, fmt.Errorf("%w: %s", ErrNotFound, caseSessionID)
	}
	if err != nil {
		return Criteria{}, err
	}

	var missing []string
	profile, err := r.profiles.GetProfile(ctx, caseSessionID)
	switch {
	case errors.Is(err, casesession.ErrProfileNotFound):
		missing = append(missing, "clinical profile")
	case err != nil:
		return Criteria{}, err
	}
	if s.PayerID == nil || strings.TrimSpace(*s.PayerID) == "" {
		missing = append(missing, "insurance payer")
	}
	if profile != nil && !profile.AssessmentComplete() {
		missing = append(missing, "completed assessment")
	}
	if len(missing) > 0 {
		return Criteria{}, &PreconditionError{Missing: missing}
	}

	windows, err := r.profiles.ListRequesterWindows(ctx, caseSessionID)
	if err != nil {
		return Criteria{}, fmt.Errorf("list requester availability: %w", err)
	}
	return ExtractCriteria(s, profile, windows), nil
}

func (r *Ranker) scoreAll(ctx context.Context, candidates []*provider.Provider, c Criteria) ([]MatchResult, bool, error) {
	results := make([]MatchResult, len(candidates))
	var degraded atomic.Bool
	now := r.now()
	concern := c.ConcernText()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, p := range candidates {
		g.Go(func() error {
			spec, fellBack := r.specialization.ScoreWithStatus(gctx, concern, p.Specializations)
			if fellBack {
				degraded.Store(true)
			}
			avail, err := r.availability.score(gctx, p, c, now)
			if err != nil {
				return err
			}

			b := Breakdown{
				Specialization: clamp01(spec),
				AgeFit:         r.cfg.AgeFit.Score(c.Age, p.AgeRanges),
				Availability:   clamp01(avail.score),
				Modality:       NeutralModality,
			}
			results[i] = MatchResult{
				ProviderID:    p.ID,
				ProviderName:  p.DisplayName,
				Score:         b.Final(),
				Breakdown:     b,
				NextAvailable: avail.next,
				Rationale: rationale(rationaleInput{
					breakdown:    b,
					matchedTags:  MatchedTags(concern, p.Specializations),
					tags:         p.Specializations,
					age:          c.Age,
					availability: avail,
					now:          now,
				}),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, fmt.Errorf("score candidates: %w", err)
	}
	return results, degraded.Load(), nil
}

func (r *Ranker) recordAnalytics(ctx context.Context, rec *AnalyticsRecord) {
	if r.analytics == nil {
		return
	}
	if err := r.analytics.Record(ctx, rec); err != nil {
		r.metrics.BestEffortFailure("analytics")
		r.logger.Warn().Err(err).Str("case_session_id", rec.CaseSessionID.String()).Msg("match analytics not recorded")
	}
}

// Invalidate drops the cached ranking of a case session.
func (r *Ranker) Invalidate(ctx context.Context, caseSessionID uuid.UUID) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, matchCacheKey(caseSessionID)); err != nil {
		r.logger.Warn().Err(err).Str("case_session_id", caseSessionID.String()).Msg("match cache invalidation failed")
	}
}
