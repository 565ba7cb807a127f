package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carematch/carematch/internal/domain/casesession"
	"github.com/carematch/carematch/internal/domain/provider"
	"github.com/carematch/carematch/pkg/pagination"
)

// memDB is an in-memory stand-in for PostgreSQL row locking: LockForUpdate
// blocks on a per-row mutex held until the transaction ends, and every write
// registers an undo step replayed on rollback.

type memTxKey struct{}

type memTx struct {
	held  map[string]*sync.Mutex
	keys  []string
	order []string
	undo  []func()
}

type memDB struct {
	mu        sync.Mutex
	rowLocks  map[string]*sync.Mutex
	providers map[uuid.UUID]*provider.Provider
	sessions  map[uuid.UUID]*casesession.CaseSession
	appts     map[uuid.UUID]*Appointment
	txOrders  [][]string

	failSaveProgress error
	failCreate       error
}

func newMemDB() *memDB {
	return &memDB{
		rowLocks:  make(map[string]*sync.Mutex),
		providers: make(map[uuid.UUID]*provider.Provider),
		sessions:  make(map[uuid.UUID]*casesession.CaseSession),
		appts:     make(map[uuid.UUID]*Appointment),
	}
}

func (m *memDB) WithTx(ctx context.Context, fn func(context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return fn(ctx)
	}
	tx := &memTx{held: make(map[string]*sync.Mutex)}
	err := fn(context.WithValue(ctx, memTxKey{}, tx))
	if err != nil {
		m.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		m.mu.Unlock()
	}
	m.mu.Lock()
	m.txOrders = append(m.txOrders, tx.order)
	m.mu.Unlock()
	for i := len(tx.keys) - 1; i >= 0; i-- {
		tx.held[tx.keys[i]].Unlock()
	}
	return err
}

func (m *memDB) lockRow(ctx context.Context, kind string, id uuid.UUID) error {
	tx, ok := ctx.Value(memTxKey{}).(*memTx)
	if !ok {
		return fmt.Errorf("lock %s %s: no transaction in context", kind, id)
	}
	key := kind + ":" + id.String()
	if _, held := tx.held[key]; held {
		return nil
	}
	m.mu.Lock()
	l, ok := m.rowLocks[key]
	if !ok {
		l = &sync.Mutex{}
		m.rowLocks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	tx.held[key] = l
	tx.keys = append(tx.keys, key)
	tx.order = append(tx.order, kind)
	return nil
}

// write applies change under the store mutex and records how to revert it.
func (m *memDB) write(ctx context.Context, change func() (undo func())) {
	m.mu.Lock()
	undo := change()
	m.mu.Unlock()
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}

func (m *memDB) lastOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.txOrders) == 0 {
		return nil
	}
	return m.txOrders[len(m.txOrders)-1]
}

func (m *memDB) scheduledFor(providerID uuid.UUID) []*Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appts {
		if a.ProviderID == providerID && a.Status == StatusScheduled {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

// -- providers --

type memProviders struct{ db *memDB }

func (r memProviders) LockForUpdate(ctx context.Context, id uuid.UUID) (*provider.Provider, error) {
	if err := r.db.lockRow(ctx, "provider", id); err != nil {
		return nil, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.providers[id]
	if !ok {
		return nil, provider.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// -- case sessions --

type memSessions struct{ db *memDB }

func (r memSessions) LockForUpdate(ctx context.Context, id uuid.UUID) (*casesession.CaseSession, error) {
	if err := r.db.lockRow(ctx, "session", id); err != nil {
		return nil, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.sessions[id]
	if !ok {
		return nil, casesession.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r memSessions) SaveProgress(ctx context.Context, s *casesession.CaseSession) error {
	if r.db.failSaveProgress != nil {
		return r.db.failSaveProgress
	}
	r.db.mu.Lock()
	stored, ok := r.db.sessions[s.ID]
	if !ok {
		r.db.mu.Unlock()
		return casesession.ErrNotFound
	}
	if stored.Progress.Version != s.Progress.Version-1 {
		r.db.mu.Unlock()
		return casesession.ErrStaleProgress
	}
	r.db.mu.Unlock()

	r.db.write(ctx, func() func() {
		prev := *stored
		cp := *s
		r.db.sessions[s.ID] = &cp
		return func() { r.db.sessions[s.ID] = &prev }
	})
	return nil
}

// -- appointments --

type memAppointments struct{ db *memDB }

func (r memAppointments) Create(ctx context.Context, a *Appointment) error {
	if r.db.failCreate != nil {
		return r.db.failCreate
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.db.write(ctx, func() func() {
		cp := *a
		r.db.appts[a.ID] = &cp
		return func() { delete(r.db.appts, a.ID) }
	})
	return nil
}

func (r memAppointments) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r memAppointments) LockForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if err := r.db.lockRow(ctx, "appointment", id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r memAppointments) ListOverlapping(_ context.Context, providerID uuid.UUID, start, end time.Time, exclude *uuid.UUID) ([]*Appointment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*Appointment
	for _, a := range r.db.appts {
		if a.ProviderID != providerID || a.Status != StatusScheduled {
			continue
		}
		if exclude != nil && a.ID == *exclude {
			continue
		}
		if a.Overlaps(start, end) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memAppointments) Cancel(ctx context.Context, id uuid.UUID, at time.Time, reason *string) error {
	r.db.mu.Lock()
	a, ok := r.db.appts[id]
	r.db.mu.Unlock()
	if !ok {
		return ErrAppointmentNotFound
	}
	r.db.write(ctx, func() func() {
		prev := *a
		a.Status = StatusCancelled
		a.CancelledAt = &at
		a.CancellationReason = reason
		return func() { *a = prev }
	})
	return nil
}

func (r memAppointments) ListByProvider(_ context.Context, providerID uuid.UUID, from *time.Time, p pagination.Params) ([]*Appointment, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var all []*Appointment
	for _, a := range r.db.appts {
		if a.ProviderID != providerID {
			continue
		}
		if from != nil && a.StartTime.Before(*from) {
			continue
		}
		cp := *a
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.Before(all[j].StartTime) })
	total := len(all)
	if p.Offset >= total {
		return nil, total, nil
	}
	end := p.Offset + p.Limit
	if end > total {
		end = total
	}
	return all[p.Offset:end], total, nil
}

var errBoom = errors.New("boom")
