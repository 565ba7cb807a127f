package casesession

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carematch/carematch/internal/domain/provider"
)

// -- Mock Repositories --

type mockSessionRepo struct {
	store map[uuid.UUID]*CaseSession
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{store: make(map[uuid.UUID]*CaseSession)}
}

func (m *mockSessionRepo) Create(_ context.Context, s *CaseSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *mockSessionRepo) GetByID(_ context.Context, id uuid.UUID) (*CaseSession, error) {
	s, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*CaseSession, error) {
	return m.GetByID(ctx, id)
}

func (m *mockSessionRepo) UpdateCoverage(_ context.Context, id uuid.UUID, payer, jurisdiction *string) error {
	s, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	s.PayerID, s.Jurisdiction = payer, jurisdiction
	return nil
}

func (m *mockSessionRepo) SaveProgress(_ context.Context, s *CaseSession) error {
	stored, ok := m.store[s.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Progress.Version != s.Progress.Version-1 {
		return ErrStaleProgress
	}
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

type mockProfileRepo struct {
	profiles map[uuid.UUID]*ClinicalProfile
	windows  map[uuid.UUID][]RequesterWindow
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{
		profiles: make(map[uuid.UUID]*ClinicalProfile),
		windows:  make(map[uuid.UUID][]RequesterWindow),
	}
}

func (m *mockProfileRepo) GetProfile(_ context.Context, id uuid.UUID) (*ClinicalProfile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

func (m *mockProfileRepo) UpsertProfile(_ context.Context, p *ClinicalProfile) error {
	m.profiles[p.CaseSessionID] = p
	return nil
}

func (m *mockProfileRepo) ListRequesterWindows(_ context.Context, id uuid.UUID) ([]RequesterWindow, error) {
	return m.windows[id], nil
}

func (m *mockProfileRepo) ReplaceRequesterWindows(_ context.Context, id uuid.UUID, w []RequesterWindow) error {
	m.windows[id] = w
	return nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type recordingInvalidator struct{ ids []uuid.UUID }

func (r *recordingInvalidator) Invalidate(_ context.Context, id uuid.UUID) { r.ids = append(r.ids, id) }

type testEnv struct {
	svc         *Service
	sessions    *mockSessionRepo
	profiles    *mockProfileRepo
	invalidated *recordingInvalidator
}

func newTestEnv() *testEnv {
	sessions := newMockSessionRepo()
	profiles := newMockProfileRepo()
	inv := &recordingInvalidator{}
	svc := NewService(sessions, profiles, passthroughTx{}, inv, zerolog.Nop())
	svc.now = func() time.Time { return t0 }
	return &testEnv{svc: svc, sessions: sessions, profiles: profiles, invalidated: inv}
}

func strPtr(s string) *string { return &s }

// -- Tests --

func TestOpen_TrimsCoverage(t *testing.T) {
	env := newTestEnv()
	cs, err := env.svc.Open(context.Background(), strPtr(" Aetna "), strPtr("  "))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs.Status != StatusIntake || cs.Progress.Version != 1 {
		t.Errorf("unexpected initial state %s v%d", cs.Status, cs.Progress.Version)
	}
	if cs.PayerID == nil || *cs.PayerID != "Aetna" {
		t.Errorf("expected trimmed payer, got %v", cs.PayerID)
	}
	if cs.Jurisdiction != nil {
		t.Error("expected blank jurisdiction to be dropped")
	}
}

func TestRecordProfile_StartsAssessment(t *testing.T) {
	env := newTestEnv()
	cs, _ := env.svc.Open(context.Background(), strPtr("Aetna"), strPtr("CA"))

	err := env.svc.RecordProfile(context.Background(), &ClinicalProfile{CaseSessionID: cs.ID, RecipientAge: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := env.sessions.store[cs.ID].Status; got != StatusAssessment {
		t.Errorf("expected assessment, got %s", got)
	}
	if len(env.invalidated.ids) != 1 {
		t.Errorf("expected cached matches to be invalidated")
	}
}

func TestRecordProfile_Validation(t *testing.T) {
	env := newTestEnv()
	cs, _ := env.svc.Open(context.Background(), nil, nil)

	if err := env.svc.RecordProfile(context.Background(), &ClinicalProfile{CaseSessionID: cs.ID, RecipientAge: -1}); err == nil {
		t.Error("expected error for negative age")
	}
	bad := &ClinicalProfile{CaseSessionID: cs.ID, RecipientAge: 9, SubscaleScores: map[string]float64{"anxiety": -2}}
	if err := env.svc.RecordProfile(context.Background(), bad); err == nil {
		t.Error("expected error for negative subscale")
	}
	err := env.svc.RecordProfile(context.Background(), &ClinicalProfile{CaseSessionID: uuid.New(), RecipientAge: 9})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkReadyToBook_RequiresPayerAndAssessment(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	noPayer, _ := env.svc.Open(ctx, nil, strPtr("CA"))
	_ = env.svc.RecordProfile(ctx, &ClinicalProfile{CaseSessionID: noPayer.ID, RecipientAge: 10, AssessmentCompletedAt: &t0})
	if _, err := env.svc.MarkReadyToBook(ctx, noPayer.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition without payer, got %v", err)
	}

	incomplete, _ := env.svc.Open(ctx, strPtr("Aetna"), strPtr("CA"))
	_ = env.svc.RecordProfile(ctx, &ClinicalProfile{CaseSessionID: incomplete.ID, RecipientAge: 10})
	if _, err := env.svc.MarkReadyToBook(ctx, incomplete.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition without assessment, got %v", err)
	}

	ready, _ := env.svc.Open(ctx, strPtr("Aetna"), strPtr("CA"))
	_ = env.svc.RecordProfile(ctx, &ClinicalProfile{CaseSessionID: ready.ID, RecipientAge: 10, AssessmentCompletedAt: &t0})
	cs, err := env.svc.MarkReadyToBook(ctx, ready.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs.Status != StatusReadyToBook || env.sessions.store[ready.ID].Status != StatusReadyToBook {
		t.Errorf("expected ready_to_book, got %s", cs.Status)
	}
}

func TestSubmitAvailability(t *testing.T) {
	env := newTestEnv()
	cs, _ := env.svc.Open(context.Background(), nil, nil)

	windows := []RequesterWindow{{
		DayOfWeek: provider.Tuesday,
		StartTime: provider.MustLocalTime("16:00"),
		EndTime:   provider.MustLocalTime("19:00"),
		TimeZone:  "America/Denver",
	}}
	if err := env.svc.SubmitAvailability(context.Background(), cs.ID, windows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.profiles.windows[cs.ID]) != 1 {
		t.Error("expected window stored")
	}

	windows[0].TimeZone = "bogus"
	if err := env.svc.SubmitAvailability(context.Background(), cs.ID, windows); err == nil {
		t.Error("expected validation error")
	}
}

func TestClose(t *testing.T) {
	env := newTestEnv()
	cs, _ := env.svc.Open(context.Background(), nil, nil)

	closed, err := env.svc.Close(context.Background(), cs.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed.Status != StatusClosed {
		t.Errorf("expected closed, got %s", closed.Status)
	}
	if _, err := env.svc.Close(context.Background(), cs.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected second close to fail, got %v", err)
	}
}
