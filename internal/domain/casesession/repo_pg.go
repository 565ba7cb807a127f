package casesession

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carematch/carematch/internal/domain/provider"
	"github.com/carematch/carematch/internal/platform/db"
)

// =========== Case Session Repository ===========

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewSessionRepoPG(pool *pgxpool.Pool) Repository { return &sessionRepoPG{pool: pool} }

func (r *sessionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const sessionCols = `id, status, payer_id, jurisdiction, progress, created_at, updated_at`

func (r *sessionRepoPG) scanSession(row pgx.Row) (*CaseSession, error) {
	var s CaseSession
	err := row.Scan(&s.ID, &s.Status, &s.PayerID, &s.Jurisdiction, &s.Progress, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepoPG) Create(ctx context.Context, s *CaseSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Progress.Version == 0 {
		s.Apply(NewProgress())
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO case_sessions (id, status, payer_id, jurisdiction, progress)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		s.ID, s.Status, s.PayerID, s.Jurisdiction, s.Progress).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *sessionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CaseSession, error) {
	return r.scanSession(r.conn(ctx).QueryRow(ctx, `SELECT `+sessionCols+` FROM case_sessions WHERE id = $1`, id))
}

func (r *sessionRepoPG) LockForUpdate(ctx context.Context, id uuid.UUID) (*CaseSession, error) {
	if db.TxFromContext(ctx) == nil {
		return nil, fmt.Errorf("lock case session %s: no transaction in context", id)
	}
	return r.scanSession(r.conn(ctx).QueryRow(ctx, `SELECT `+sessionCols+` FROM case_sessions WHERE id = $1 FOR UPDATE`, id))
}

func (r *sessionRepoPG) UpdateCoverage(ctx context.Context, id uuid.UUID, payerID, jurisdiction *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE case_sessions SET payer_id = $2, jurisdiction = $3, updated_at = NOW() WHERE id = $1`,
		id, payerID, jurisdiction)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sessionRepoPG) SaveProgress(ctx context.Context, s *CaseSession) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE case_sessions SET status = $2, progress = $3, updated_at = NOW()
		WHERE id = $1 AND COALESCE((progress->>'version')::int, 0) = $4`,
		s.ID, s.Status, s.Progress, s.Progress.Version-1)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, s.ID); err != nil {
			return err
		}
		return ErrStaleProgress
	}
	return nil
}

// =========== Profile Repository ===========

type profileRepoPG struct{ pool *pgxpool.Pool }

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository { return &profileRepoPG{pool: pool} }

func (r *profileRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *profileRepoPG) GetProfile(ctx context.Context, caseSessionID uuid.UUID) (*ClinicalProfile, error) {
	var p ClinicalProfile
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT case_session_id, recipient_age, concern_summary, subscale_scores, assessment_completed_at
		FROM clinical_profiles WHERE case_session_id = $1`, caseSessionID).
		Scan(&p.CaseSessionID, &p.RecipientAge, &p.ConcernSummary, &p.SubscaleScores, &p.AssessmentCompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepoPG) UpsertProfile(ctx context.Context, p *ClinicalProfile) error {
	scores := p.SubscaleScores
	if scores == nil {
		scores = map[string]float64{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinical_profiles (case_session_id, recipient_age, concern_summary, subscale_scores, assessment_completed_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (case_session_id) DO UPDATE SET
			recipient_age = EXCLUDED.recipient_age,
			concern_summary = EXCLUDED.concern_summary,
			subscale_scores = EXCLUDED.subscale_scores,
			assessment_completed_at = EXCLUDED.assessment_completed_at`,
		p.CaseSessionID, p.RecipientAge, p.ConcernSummary, scores, p.AssessmentCompletedAt)
	return err
}

func (r *profileRepoPG) ListRequesterWindows(ctx context.Context, caseSessionID uuid.UUID) ([]RequesterWindow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT day_of_week, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), time_zone
		FROM requester_availability WHERE case_session_id = $1
		ORDER BY day_of_week, start_time`, caseSessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RequesterWindow
	for rows.Next() {
		var w RequesterWindow
		var start, end string
		if err := rows.Scan(&w.DayOfWeek, &start, &end, &w.TimeZone); err != nil {
			return nil, err
		}
		if w.StartTime, err = provider.ParseLocalTime(start); err != nil {
			return nil, err
		}
		if w.EndTime, err = provider.ParseLocalTime(end); err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

func (r *profileRepoPG) ReplaceRequesterWindows(ctx context.Context, caseSessionID uuid.UUID, windows []RequesterWindow) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM requester_availability WHERE case_session_id = $1`, caseSessionID); err != nil {
		return fmt.Errorf("clear requester availability: %w", err)
	}
	for _, w := range windows {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO requester_availability (id, case_session_id, day_of_week, start_time, end_time, time_zone)
			VALUES ($1,$2,$3,$4::time,$5::time,$6)`,
			uuid.New(), caseSessionID, int(w.DayOfWeek), w.StartTime.String(), w.EndTime.String(), w.TimeZone)
		if err != nil {
			return fmt.Errorf("insert requester window: %w", err)
		}
	}
	return nil
}
