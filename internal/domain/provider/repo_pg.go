package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carematch/carematch/internal/platform/db"
)

var dialect = goqu.Dialect("postgres")

// =========== Provider Repository ===========

type providerRepoPG struct{ pool *pgxpool.Pool }

func NewProviderRepoPG(pool *pgxpool.Pool) Repository { return &providerRepoPG{pool: pool} }

func (r *providerRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const providerCols = `id, display_name, active, license_jurisdiction, specializations,
	accepted_payers, default_duration_minutes, buffer_minutes, created_at, updated_at`

var providerColumns = []interface{}{
	"id", "display_name", "active", "license_jurisdiction", "specializations",
	"accepted_payers", "default_duration_minutes", "buffer_minutes", "created_at", "updated_at",
}

func (r *providerRepoPG) scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.DisplayName, &p.Active, &p.LicenseJurisdiction, &p.Specializations,
		&p.AcceptedPayers, &p.DefaultDurationMinutes, &p.BufferMinutes, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *providerRepoPG) Create(ctx context.Context, p *Provider) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO providers (id, display_name, active, license_jurisdiction, specializations,
			accepted_payers, default_duration_minutes, buffer_minutes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.DisplayName, p.Active, p.LicenseJurisdiction, p.Specializations,
		p.AcceptedPayers, p.DefaultDurationMinutes, p.BufferMinutes)
	if err != nil {
		return fmt.Errorf("insert provider: %w", err)
	}
	for _, ar := range p.AgeRanges {
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO provider_age_ranges (provider_id, min_age, max_age) VALUES ($1,$2,$3)`,
			p.ID, ar.Min, ar.Max); err != nil {
			return fmt.Errorf("insert age range: %w", err)
		}
	}
	return nil
}

func (r *providerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	p, err := r.scanProvider(r.conn(ctx).QueryRow(ctx, `SELECT `+providerCols+` FROM providers WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadAgeRanges(ctx, []*Provider{p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *providerRepoPG) LockForUpdate(ctx context.Context, id uuid.UUID) (*Provider, error) {
	if db.TxFromContext(ctx) == nil {
		return nil, fmt.Errorf("lock provider %s: no transaction in context", id)
	}
	return r.scanProvider(r.conn(ctx).QueryRow(ctx, `SELECT `+providerCols+` FROM providers WHERE id = $1 FOR UPDATE`, id))
}

func (r *providerRepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE providers SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *providerRepoPG) ListActiveByPayer(ctx context.Context, payer string) ([]*Provider, error) {
	query, args, err := dialect.From("providers").
		Select(providerColumns...).
		Where(
			goqu.C("active").IsTrue(),
			goqu.L("lower(?) = ANY(SELECT lower(p) FROM unnest(accepted_payers) AS p)", payer),
		).
		Order(goqu.C("display_name").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build candidate query: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Provider
	for rows.Next() {
		p, err := r.scanProvider(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadAgeRanges(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *providerRepoPG) loadAgeRanges(ctx context.Context, providers []*Provider) error {
	if len(providers) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Provider, len(providers))
	ids := make([]string, 0, len(providers))
	for _, p := range providers {
		byID[p.ID] = p
		ids = append(ids, p.ID.String())
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT provider_id, min_age, max_age FROM provider_age_ranges
		WHERE provider_id = ANY($1::uuid[]) ORDER BY min_age`, ids)
	if err != nil {
		return fmt.Errorf("load age ranges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var ar AgeRange
		if err := rows.Scan(&id, &ar.Min, &ar.Max); err != nil {
			return err
		}
		if p, ok := byID[id]; ok {
			p.AgeRanges = append(p.AgeRanges, ar)
		}
	}
	return rows.Err()
}

// =========== Availability Repository ===========

type availabilityRepoPG struct{ pool *pgxpool.Pool }

func NewAvailabilityRepoPG(pool *pgxpool.Pool) AvailabilityRepository {
	return &availabilityRepoPG{pool: pool}
}

func (r *availabilityRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *availabilityRepoPG) ListWindows(ctx context.Context, providerID uuid.UUID) ([]AvailabilityWindow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, provider_id, day_of_week, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
			time_zone, repeating
		FROM availability_windows WHERE provider_id = $1
		ORDER BY day_of_week, start_time`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AvailabilityWindow
	for rows.Next() {
		var w AvailabilityWindow
		var start, end string
		if err := rows.Scan(&w.ID, &w.ProviderID, &w.DayOfWeek, &start, &end, &w.TimeZone, &w.Repeating); err != nil {
			return nil, err
		}
		if w.StartTime, err = ParseLocalTime(start); err != nil {
			return nil, err
		}
		if w.EndTime, err = ParseLocalTime(end); err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

func (r *availabilityRepoPG) ReplaceWindows(ctx context.Context, providerID uuid.UUID, windows []AvailabilityWindow) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability_windows WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("clear windows: %w", err)
	}
	for i := range windows {
		w := &windows[i]
		w.ID = uuid.New()
		w.ProviderID = providerID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO availability_windows (id, provider_id, day_of_week, start_time, end_time, time_zone, repeating)
			VALUES ($1,$2,$3,$4::time,$5::time,$6,$7)`,
			w.ID, w.ProviderID, int(w.DayOfWeek), w.StartTime.String(), w.EndTime.String(), w.TimeZone, w.Repeating)
		if err != nil {
			return fmt.Errorf("insert window: %w", err)
		}
	}
	return nil
}

func (r *availabilityRepoPG) ListTimeOff(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]TimeOff, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, provider_id, start_date, end_date, reason FROM time_off
		WHERE provider_id = $1 AND start_date <= $3::date AND end_date >= $2::date
		ORDER BY start_date`, providerID, Date(from), Date(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TimeOff
	for rows.Next() {
		var t TimeOff
		if err := rows.Scan(&t.ID, &t.ProviderID, &t.StartDate, &t.EndDate, &t.Reason); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *availabilityRepoPG) AddTimeOff(ctx context.Context, t *TimeOff) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO time_off (id, provider_id, start_date, end_date, reason)
		VALUES ($1,$2,$3::date,$4::date,$5)`,
		t.ID, t.ProviderID, Date(t.StartDate), Date(t.EndDate), t.Reason)
	return err
}
