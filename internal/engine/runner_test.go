package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/corpsim-engine/internal/agents"
	"github.com/xela07ax/corpsim-engine/internal/audit"
	"github.com/xela07ax/corpsim-engine/internal/domain"
)

// scriptedProvider — детерминированный провайдер для тестов: действия
// задаются функцией от запроса, nil означает «молчать».
type scriptedProvider struct {
	fn func(req agents.DecisionRequest) []domain.ProposedAction
}

func (p *scriptedProvider) Decide(_ context.Context, req agents.DecisionRequest) (*agents.DecisionResult, error) {
	var actions []domain.ProposedAction
	if p.fn != nil {
		actions = p.fn(req)
	}
	return &agents.DecisionResult{Reasoning: "scripted", Actions: actions}, nil
}

type stubHalt struct{ halted bool }

func (h *stubHalt) IsHalted(string) bool { return h.halted }

// failAfterStore отдает ошибку начиная с N-го батча.
type failAfterStore struct {
	ok     int
	writes int
}

func (s *failAfterStore) WriteBatch(_ context.Context, _ []audit.Entry) error {
	s.writes++
	if s.writes > s.ok {
		return errors.New("disk gone")
	}
	return nil
}

func testBlueprint() domain.Blueprint {
	return domain.Blueprint{
		ID: "bp-1",
		InitialConditions: domain.InitialConditions{
			Cash:        1_000_000,
			MonthlyBurn: 50_000,
			Headcount:   10,
			Pricing:     map[string]float64{"pro": 100},
		},
		Constraints: domain.Constraints{HiringVelocityMax: 5, CostPerHead: 10_000},
		Policies: domain.Policies{
			SpendLimitMonthly: 500_000,
			MaxPercentChange:  map[string]float64{"pricing": 0.2, "headcount": 0.25},
		},
	}
}

func testAgentConfig() domain.AgentConfig {
	return domain.AgentConfig{
		ID: "ac-1",
		Agents: []domain.AgentSpec{{
			Role:              domain.RoleCEO,
			Permissions:       []string{domain.ActionAllocateBudget, domain.ActionModifyCosts},
			ApprovalThreshold: 100_000,
			RiskAppetite:      0.5,
		}},
	}
}

func newTestRunner(t *testing.T, provider agents.Provider, store audit.Store, halt HaltChecker, seed int64, endTick int) *Runner {
	t.Helper()
	run := &domain.Run{
		ID:     "run-test",
		Seed:   seed,
		Status: domain.RunCreated,
	}
	tl := domain.Timeline{
		ID:        "tl-1",
		StartDate: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTick:   endTick,
		Events:    []domain.TimelineEvent{{Tick: 10, Type: domain.EventMarketShock, Magnitude: 0.3}},
	}
	return NewRunner(run, testBlueprint(), tl, testAgentConfig(),
		provider, store, nil, halt, nil, Config{TickDays: 30, DecisionTimeout: time.Second}, zap.NewNop())
}

func TestQuietRunBurnsExactly(t *testing.T) {
	r := newTestRunner(t, &scriptedProvider{}, audit.NewMemoryStore(), nil, 12345, 60)
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Advance(ctx, 5); err != nil {
		t.Fatalf("advance: %v", err)
	}

	run := r.Status()
	if run.CurrentTick != 5 || run.Status != domain.RunRunning {
		t.Fatalf("unexpected run state: tick=%d status=%s", run.CurrentTick, run.Status)
	}
	// Компания без выручки сжигает ровно burn за месячный тик
	if got := r.State().Cash; got != 750_000 {
		t.Fatalf("cash after 5 ticks = %v, want 750000", got)
	}

	entries, err := r.AuditTrail()
	if err != nil {
		t.Fatalf("audit chain broken: %v", err)
	}
	if len(entries) == 0 || entries[0].Type != audit.EntryStateTransition {
		t.Fatalf("expected genesis state transition, got %+v", entries[:1])
	}
}

func TestSimTimeAdvancesByTickDays(t *testing.T) {
	r := newTestRunner(t, &scriptedProvider{}, audit.NewMemoryStore(), nil, 1, 60)
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Advance(ctx, 2); err != nil {
		t.Fatalf("advance: %v", err)
	}
	want := time.Date(2030, 3, 2, 0, 0, 0, 0, time.UTC) // старт + 60 дней
	if got := r.Snapshot().SimTime; !got.Equal(want) {
		t.Fatalf("sim time = %s, want %s", got, want)
	}
}

func TestLifecycleGuards(t *testing.T) {
	r := newTestRunner(t, &scriptedProvider{}, audit.NewMemoryStore(), nil, 1, 60)
	ctx := context.Background()

	if err := r.Advance(ctx, 1); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("advance before start: got %v, want ErrInvalidState", err)
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(ctx); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("double start: got %v, want ErrInvalidState", err)
	}
	if err := r.Advance(ctx, 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("advance 0: got %v, want ErrValidation", err)
	}
}

func TestRunCompletesAtEndTick(t *testing.T) {
	r := newTestRunner(t, &scriptedProvider{}, audit.NewMemoryStore(), nil, 1, 3)
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Запросили больше тиков, чем осталось: серия останавливается на финише
	if err := r.Advance(ctx, 10); err != nil {
		t.Fatalf("advance: %v", err)
	}
	run := r.Status()
	if run.Status != domain.RunCompleted || run.CurrentTick != 3 {
		t.Fatalf("run = %s at tick %d, want completed at 3", run.Status, run.CurrentTick)
	}
	if err := r.Advance(ctx, 1); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("advance after completion: got %v, want ErrInvalidState", err)
	}
}

func TestReplayProducesIdenticalChain(t *testing.T) {
	// Провайдер с действиями ниже порога: одобряются и исполняются каждый
	// четный тик
	script := func(req agents.DecisionRequest) []domain.ProposedAction {
		if req.Observation.Tick%2 != 0 {
			return nil
		}
		return []domain.ProposedAction{{
			Type:   domain.ActionAllocateBudget,
			Params: domain.ActionParams{Allocation: map[string]float64{"marketing": 30_000}},
			Reason: "steady marketing",
		}}
	}

	runOnce := func() ([]audit.Entry, string) {
		r := newTestRunner(t, &scriptedProvider{fn: script}, audit.NewMemoryStore(), nil, 777, 60)
		ctx := context.Background()
		if err := r.Start(ctx); err != nil {
			t.Fatalf("start: %v", err)
		}
		if err := r.Advance(ctx, 12); err != nil {
			t.Fatalf("advance: %v", err)
		}
		entries, err := r.AuditTrail()
		if err != nil {
			t.Fatalf("audit chain broken: %v", err)
		}
		return entries, r.State().Hash()
	}

	a, aHash := runOnce()
	b, bHash := runOnce()

	if len(a) != len(b) {
		t.Fatalf("replay produced %d entries vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ContentHash != b[i].ContentHash {
			t.Fatalf("chains diverge at sequence %d: %s vs %s", i, a[i].ContentHash, b[i].ContentHash)
		}
	}
	if aHash != bHash {
		t.Fatalf("final state hashes differ: %s vs %s", aHash, bHash)
	}
}

func TestEscalatedActionAppliesNextTick(t *testing.T) {
	script := func(req agents.DecisionRequest) []domain.ProposedAction {
		if req.Observation.Tick != 1 {
			return nil
		}
		return []domain.ProposedAction{{
			Type:   domain.ActionAllocateBudget,
			Params: domain.ActionParams{Allocation: map[string]float64{"expansion": 150_000}},
		}}
	}
	r := newTestRunner(t, &scriptedProvider{fn: script}, audit.NewMemoryStore(), nil, 9, 60)
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Advance(ctx, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}

	// Действие выше порога зависло в очереди, кэш его не почувствовал
	pending := r.PendingApprovals()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending approval, got %d", len(pending))
	}
	if got := r.State().Cash; got != 950_000 {
		t.Fatalf("cash after escalation = %v, want 950000", got)
	}

	key := pending[0].Key.String()
	if want := fmt.Sprintf("d-0001-%s:0", domain.RoleCEO); key != want {
		t.Fatalf("approval key = %q, want %q", key, want)
	}

	req, err := r.ResolveApproval(ctx, key, true, "reviewer-1", "approved for q2 push")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if req.Status != domain.ApprovalApproved {
		t.Fatalf("status = %s, want APPROVED", req.Status)
	}

	// Повторное решение по тому же ключу — конфликт, первое остается в силе
	if _, err := r.ResolveApproval(ctx, key, false, "reviewer-2", ""); !errors.Is(err, domain.ErrAlreadyProcessed) {
		t.Fatalf("double decision: got %v, want ErrAlreadyProcessed", err)
	}

	// Одобренное действие исполняется на следующей границе тика
	if err := r.Advance(ctx, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got := r.State().Cash; got != 750_000 {
		t.Fatalf("cash after carried approval = %v, want 750000", got)
	}

	decs := r.Decisions(domain.RoleCEO)
	if len(decs) != 2 || !decs[0].Executed {
		t.Fatalf("escalated decision must be marked executed: %+v", decs)
	}

	// В журнале обе записи по заявке: PENDING при эскалации и APPROVED при резолве
	entries, err := r.AuditTrail()
	if err != nil {
		t.Fatalf("audit chain broken: %v", err)
	}
	var statuses []string
	for _, e := range entries {
		if e.Type == audit.EntryApproval && e.Details["approval_key"] == key {
			statuses = append(statuses, e.Details["status"])
		}
	}
	if len(statuses) != 2 || statuses[0] != string(domain.ApprovalPending) || statuses[1] != string(domain.ApprovalApproved) {
		t.Fatalf("approval audit trail = %v", statuses)
	}
}

func TestRejectedApprovalNeverApplied(t *testing.T) {
	script := func(req agents.DecisionRequest) []domain.ProposedAction {
		if req.Observation.Tick != 1 {
			return nil
		}
		return []domain.ProposedAction{{
			Type:   domain.ActionAllocateBudget,
			Params: domain.ActionParams{Allocation: map[string]float64{"expansion": 200_000}},
		}}
	}
	r := newTestRunner(t, &scriptedProvider{fn: script}, audit.NewMemoryStore(), nil, 9, 60)
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Advance(ctx, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}
	key := r.PendingApprovals()[0].Key.String()
	if _, err := r.ResolveApproval(ctx, key, false, "reviewer-1", "too rich"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := r.Advance(ctx, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got := r.State().Cash; got != 900_000 {
		t.Fatalf("cash after rejection = %v, want 900000 (burn only)", got)
	}
}

func TestHaltPausesBetweenTicks(t *testing.T) {
	halt := &stubHalt{halted: true}
	r := newTestRunner(t, &scriptedProvider{}, audit.NewMemoryStore(), halt, 1, 60)
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Advance(ctx, 3); err != nil {
		t.Fatalf("halted advance must not error: %v", err)
	}
	run := r.Status()
	if run.Status != domain.RunPaused || run.CurrentTick != 0 {
		t.Fatalf("run = %s at tick %d, want paused at 0", run.Status, run.CurrentTick)
	}

	halt.halted = false
	if err := r.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := r.Advance(ctx, 2); err != nil {
		t.Fatalf("advance after resume: %v", err)
	}
	if got := r.Status().CurrentTick; got != 2 {
		t.Fatalf("tick after resume = %d, want 2", got)
	}
}

// snapFailAfter отдает ошибку начиная с N-го снапшота.
type snapFailAfter struct {
	ok     int
	writes int
}

func (s *snapFailAfter) SaveSnapshot(_ context.Context, _ RunSnapshot) error {
	s.writes++
	if s.writes > s.ok {
		return errors.New("snapshot store gone")
	}
	return nil
}

func TestSnapshotFailureLeavesNoPartialTrail(t *testing.T) {
	run := &domain.Run{ID: "run-snap", Seed: 1, Status: domain.RunCreated}
	tl := domain.Timeline{
		ID:        "tl-1",
		StartDate: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTick:   60,
	}
	snaps := &snapFailAfter{ok: 1} // генезис проходит, первый тик — нет
	r := NewRunner(run, testBlueprint(), tl, testAgentConfig(),
		&scriptedProvider{}, audit.NewMemoryStore(), snaps, nil, nil,
		Config{TickDays: 30, DecisionTimeout: time.Second}, zap.NewNop())
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	err := r.Advance(ctx, 1)
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("advance: got %v, want PersistenceError", err)
	}

	got := r.Status()
	if got.Status != domain.RunFailed || got.CurrentTick != 0 {
		t.Fatalf("run = %s at tick %d, want failed at 0", got.Status, got.CurrentTick)
	}
	// Записи упавшего тика не видны: журнал заканчивается генезисом
	entries, verr := r.AuditTrail()
	if verr != nil {
		t.Fatalf("chain after aborted tick: %v", verr)
	}
	for _, e := range entries {
		if e.Tick != 0 {
			t.Fatalf("entry for aborted tick leaked into trail: tick=%d type=%s", e.Tick, e.Type)
		}
	}
}

func TestCommitFailureFailsRunAndKeepsLastState(t *testing.T) {
	store := &failAfterStore{ok: 1} // генезис проходит, первый тик — нет
	r := newTestRunner(t, &scriptedProvider{}, store, nil, 1, 60)
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	err := r.Advance(ctx, 1)
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("advance: got %v, want PersistenceError", err)
	}

	run := r.Status()
	if run.Status != domain.RunFailed || run.CurrentTick != 0 {
		t.Fatalf("run = %s at tick %d, want failed at 0", run.Status, run.CurrentTick)
	}
	// Последнее закоммиченное состояние остается в силе
	if got := r.State().Cash; got != 1_000_000 {
		t.Fatalf("state mutated despite failed commit: cash = %v", got)
	}
	if err := r.Advance(ctx, 1); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("advance on failed run: got %v, want ErrInvalidState", err)
	}
}
