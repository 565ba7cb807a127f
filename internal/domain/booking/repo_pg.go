package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carematch/carematch/internal/platform/db"
	"github.com/carematch/carematch/pkg/pagination"
)

var dialect = goqu.Dialect("postgres")

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) Repository { return &appointmentRepoPG{pool: pool} }

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, provider_id, case_session_id, start_time, end_time, duration_minutes,
	location_type, meeting_ref, status, cancelled_at, cancellation_reason, rescheduled_from,
	created_at, updated_at`

var apptColumns = []interface{}{
	"id", "provider_id", "case_session_id", "start_time", "end_time", "duration_minutes",
	"location_type", "meeting_ref", "status", "cancelled_at", "cancellation_reason", "rescheduled_from",
	"created_at", "updated_at",
}

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ProviderID, &a.CaseSessionID, &a.StartTime, &a.EndTime, &a.DurationMinutes,
		&a.LocationType, &a.MeetingRef, &a.Status, &a.CancelledAt, &a.CancellationReason, &a.RescheduledFrom,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, provider_id, case_session_id, start_time, end_time, duration_minutes,
			location_type, meeting_ref, status, rescheduled_from)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		a.ID, a.ProviderID, a.CaseSessionID, a.StartTime, a.EndTime, a.DurationMinutes,
		string(a.LocationType), a.MeetingRef, string(a.Status), a.RescheduledFrom).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *appointmentRepoPG) LockForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if db.TxFromContext(ctx) == nil {
		return nil, fmt.Errorf("lock appointment %s: no transaction in context", id)
	}
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
}

func (r *appointmentRepoPG) ListOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time, exclude *uuid.UUID) ([]*Appointment, error) {
	conds := []exp.Expression{
		goqu.C("provider_id").Eq(providerID),
		goqu.C("status").Eq(string(StatusScheduled)),
		goqu.C("start_time").Lt(end),
		goqu.C("end_time").Gt(start),
	}
	if exclude != nil {
		conds = append(conds, goqu.C("id").Neq(*exclude))
	}
	query, args, err := dialect.From("appointments").
		Select(apptColumns...).
		Where(conds...).
		Order(goqu.C("start_time").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build overlap query: %w", err)
	}
	return r.queryAppointments(ctx, query, args...)
}

func (r *appointmentRepoPG) Cancel(ctx context.Context, id uuid.UUID, at time.Time, reason *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status = $2, cancelled_at = $3, cancellation_reason = $4, updated_at = NOW()
		WHERE id = $1`,
		id, string(StatusCancelled), at, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepoPG) ListByProvider(ctx context.Context, providerID uuid.UUID, from *time.Time, p pagination.Params) ([]*Appointment, int, error) {
	conds := []exp.Expression{goqu.C("provider_id").Eq(providerID)}
	if from != nil {
		conds = append(conds, goqu.C("start_time").Gte(*from))
	}
	base := dialect.From("appointments").Where(conds...).Prepared(true)

	countSQL, countArgs, err := base.Select(goqu.COUNT("*")).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := base.Select(apptColumns...).
		Order(goqu.C("start_time").Asc(), goqu.C("id").Asc()).
		Limit(uint(p.Limit)).
		Offset(uint(p.Offset)).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}
	items, err := r.queryAppointments(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *appointmentRepoPG) queryAppointments(ctx context.Context, query string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
