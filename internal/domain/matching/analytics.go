package matching

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carematch/carematch/internal/platform/db"
)

// AnalyticsRecord maps to the match_analytics table.
type AnalyticsRecord struct {
	ID             uuid.UUID     `json:"id"`
	CaseSessionID  uuid.UUID     `json:"case_session_id"`
	Criteria       Criteria      `json:"criteria"`
	Results        []MatchResult `json:"results"`
	CandidateCount int           `json:"candidate_count"`
	Degraded       bool          `json:"degraded"`
	LatencyMS      int64         `json:"latency_ms"`
}

type AnalyticsRepository interface {
	Record(ctx context.Context, r *AnalyticsRecord) error
}

type analyticsRepoPG struct{ pool *pgxpool.Pool }

func NewAnalyticsRepoPG(pool *pgxpool.Pool) AnalyticsRepository { return &analyticsRepoPG{pool: pool} }

func (r *analyticsRepoPG) Record(ctx context.Context, rec *AnalyticsRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO match_analytics (id, case_session_id, criteria, results, candidate_count, degraded, latency_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.CaseSessionID, rec.Criteria, rec.Results, rec.CandidateCount, rec.Degraded,
		rec.LatencyMS)
	return err
}
