package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/corpsim-engine/internal/agents"
	"github.com/xela07ax/corpsim-engine/internal/approval"
	"github.com/xela07ax/corpsim-engine/internal/audit"
	"github.com/xela07ax/corpsim-engine/internal/domain"
	"github.com/xela07ax/corpsim-engine/internal/policy"
)

// SnapshotStore — персистентность снапшотов прогона. Опциональна:
// nil-стор означает чисто in-memory прогон (тесты, оффлайн-реплей).
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap RunSnapshot) error
}

// RunSnapshot — экспортируемое состояние прогона на границе тика.
type RunSnapshot struct {
	RunID     string              `json:"run_id"`
	Tick      int                 `json:"tick"`
	SimTime   time.Time           `json:"sim_time"`
	Status    domain.RunStatus    `json:"status"`
	Company   domain.CompanyState `json:"company"`
	Market    domain.MarketState  `json:"market"`
	StateHash string              `json:"state_hash"`
}

// Config — параметры движка.
type Config struct {
	TickDays        int           // дней симуляции в одном тике, дефолт 30
	DecisionTimeout time.Duration // бюджет на решение одной роли
}

// Runner — один прогон симуляции: Run State Machine + конвейер тика.
// Единственный писатель своего состояния (мьютекс на весь тик); между
// прогонами НЕТ разделяемого мутабельного состояния.
type Runner struct {
	mu sync.Mutex

	run       *domain.Run
	blueprint domain.Blueprint
	timeline  domain.Timeline
	agentCfg  domain.AgentConfig

	state  domain.CompanyState
	market domain.MarketState
	rng    *rand.Rand

	ledger    *audit.Ledger
	policy    *policy.Engine
	queue     *approval.Queue
	orch      *agents.Orchestrator
	applier   *Applier
	halt      HaltChecker
	snapshots SnapshotStore
	metrics   *Metrics
	logger    *zap.Logger

	tickDays int

	// Накопленный ИСПОЛНЕННЫЙ спенд по индексу месяца. Пополняется только
	// при применении действия — политика остается идемпотентной функцией.
	monthSpend map[int]float64

	decisions  []domain.Decision
	decisionIx map[string]int // decision id → индекс в decisions

	// Одобренные HITL-действия, ждущие следующей границы тика
	carried []domain.ApprovalRequest
}

func NewRunner(
	run *domain.Run,
	blueprint domain.Blueprint,
	timeline domain.Timeline,
	agentCfg domain.AgentConfig,
	provider agents.Provider,
	store audit.Store,
	snapshots SnapshotStore,
	halt HaltChecker,
	metrics *Metrics,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if cfg.TickDays <= 0 {
		cfg.TickDays = 30
	}
	if halt == nil {
		halt = NoopHalt{}
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	log := logger.Named("runner").With(zap.String("run_id", run.ID))

	ic := blueprint.InitialConditions
	state := domain.CompanyState{
		Cash:            ic.Cash,
		MonthlyBurn:     ic.MonthlyBurn,
		CostsMonthly:    ic.MonthlyBurn,
		Margin:          ic.Margins,
		Headcount:       ic.Headcount,
		Pricing:         copyPricing(ic.Pricing),
		Capacity:        ic.Capacity,
		ServiceLevel:    orDefault(ic.ServiceLevel, 1.0),
		ComplianceScore: 1.0,
		MarketExposure:  blueprint.MarketExposure,
	}

	market := domain.MarketState{
		SentimentScore:   0.5,
		AwarenessLevel:   0.1,
		TrustLevel:       0.5,
		ViralCoefficient: 1.0,
		DemandMultiplier: 1.0,
	}

	// PCG, сидированный seed'ом прогона: одна и та же последовательность
	// розыгрышей при каждом реплее
	seed := uint64(run.Seed)
	rng := rand.New(rand.NewPCG(seed, seed))

	return &Runner{
		run:        run,
		blueprint:  blueprint,
		timeline:   timeline,
		agentCfg:   agentCfg,
		state:      state,
		market:     market,
		rng:        rng,
		ledger:     audit.NewLedger(run.ID, store, log),
		policy:     policy.NewEngine(blueprint.Policies, blueprint.Constraints, log),
		queue:      approval.NewQueue(),
		orch:       agents.NewOrchestrator(provider, cfg.DecisionTimeout, log),
		applier:    NewApplier(blueprint.Constraints, cfg.TickDays),
		halt:       halt,
		snapshots:  snapshots,
		metrics:    metrics,
		logger:     log,
		tickDays:   cfg.TickDays,
		monthSpend: make(map[int]float64),
		decisionIx: make(map[string]int),
	}
}

// Start переводит прогон created → running и пишет генезис-записи:
// стартовый снапшот компании и рынка на тике 0.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.run.CanTransitionTo(domain.RunRunning); err != nil {
		return fmt.Errorf("start run %s: %w", r.run.ID, err)
	}

	genesis := r.state
	r.ledger.Stage(audit.Entry{
		RunID:      r.run.ID,
		SimTime:    r.simTime(0),
		Tick:       0,
		Type:       audit.EntryStateTransition,
		StateAfter: &genesis,
		Details:    map[string]string{"event": "run_started"},
	})
	genesisMarket := r.market
	r.ledger.Stage(audit.Entry{
		RunID:   r.run.ID,
		SimTime: r.simTime(0),
		Tick:    0,
		Type:    audit.EntryMarketUpdate,
		Market:  &genesisMarket,
	})
	if err := r.commitTick(ctx, 0, r.state, r.market); err != nil {
		r.run.Status = domain.RunFailed
		r.run.UpdatedAt = time.Now().UTC()
		return err
	}

	r.run.Status = domain.RunRunning
	r.run.UpdatedAt = time.Now().UTC()
	r.logger.Info("run started", zap.Int64("seed", r.run.Seed))
	return nil
}

// Advance продвигает прогон на n атомарных тиков. Halt-сигнал между
// тиками переводит прогон в paused и прерывает серию без ошибки.
func (r *Runner) Advance(ctx context.Context, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 {
		return fmt.Errorf("advance run %s: %w: ticks must be positive", r.run.ID, domain.ErrValidation)
	}
	if r.run.Status != domain.RunRunning {
		return fmt.Errorf("advance run %s in status %s: %w", r.run.ID, r.run.Status, domain.ErrInvalidState)
	}

	for i := 0; i < n; i++ {
		if r.halt.IsHalted(r.run.ID) {
			r.run.Status = domain.RunPaused
			r.run.UpdatedAt = time.Now().UTC()
			r.logger.Info("run halted by external signal", zap.Int("at_tick", r.run.CurrentTick))
			return nil
		}
		if err := r.tick(ctx); err != nil {
			return err
		}
		if r.run.Status != domain.RunRunning {
			return nil // completed внутри tick
		}
	}
	return nil
}

// Resume возвращает приостановленный прогон в running.
func (r *Runner) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.run.CanTransitionTo(domain.RunRunning); err != nil {
		return fmt.Errorf("resume run %s in status %s: %w", r.run.ID, r.run.Status, err)
	}
	r.run.Status = domain.RunRunning
	r.run.UpdatedAt = time.Now().UTC()
	return nil
}

// tick — одна атомарная граница тика. Либо коммитится все (записи
// журнала, снапшот, состояние), либо прогон падает в failed, а последнее
// закоммиченное состояние остается в силе.
func (r *Runner) tick(ctx context.Context) error {
	started := time.Now()
	tick := r.run.CurrentTick + 1
	simTime := r.simTime(tick)
	month := tick * r.tickDays / 30

	// 1. События мира, срабатывающие на этом тике
	active := EventsAt(r.timeline, tick)

	// 2. Time-locked наблюдения по ролям
	observations := make(map[string]domain.Observation, len(r.agentCfg.Agents))
	for _, spec := range r.agentCfg.Agents {
		observations[spec.Role] = BuildObservation(tick, simTime, r.state, r.market, spec, r.timeline)
	}

	// 3. Сбор решений (параллельно, редукция в порядке конфигурации)
	roleDecisions := r.orch.CollectDecisions(ctx, r.agentCfg.Agents, observations)

	// 4. Политика + сбор одобренных действий этого тика
	var tickApproved []appliedAction
	for i, spec := range r.agentCfg.Agents {
		rd := roleDecisions[i]
		dec := r.recordDecision(tick, simTime, spec, rd, observations[spec.Role])
		if rd.Degraded {
			r.metrics.ProviderDegraded.WithLabelValues(r.run.ID, spec.Role).Inc()
			continue
		}
		r.metrics.DecisionsTotal.WithLabelValues(r.run.ID, spec.Role).Inc()

		for ai := range dec.ProposedActions {
			action := dec.ProposedActions[ai]
			res := r.policy.Evaluate(action, spec, r.state, r.monthSpend[month]+pendingSpend(tickApproved))
			r.decisions[r.decisionIx[dec.ID]].Results = append(r.decisions[r.decisionIx[dec.ID]].Results, res)
			r.metrics.PolicyOutcomes.WithLabelValues(r.run.ID, string(res.Decision)).Inc()

			r.stagePolicyCheck(tick, simTime, spec.Role, action, res)

			switch res.Decision {
			case domain.PolicyApprove:
				r.decisions[r.decisionIx[dec.ID]].Approved = true
				tickApproved = append(tickApproved, appliedAction{decisionID: dec.ID, action: action})
			case domain.PolicyEscalate:
				r.escalate(tick, simTime, dec.ID, ai, spec.Role, action, res.Reason)
			}
		}
	}

	// 5. Фолд состояния: пассивная динамика → одобренные ранее HITL-действия →
	//    одобренные действия этого тика → эффекты событий
	newState := r.applier.ApplyPassive(r.state, r.market)
	r.stageTransition(tick, simTime, "", nil, r.state, newState, map[string]string{"phase": "passive"})

	var executed []domain.ProposedAction
	for _, ca := range r.drainCarried() {
		before := newState
		newState = r.applier.ApplyAction(newState, ca.Action)
		r.stageTransition(tick, simTime, ca.AgentRole, &ca.Action, before, newState,
			map[string]string{"phase": "carried_approval", "approval_key": ca.Key.String()})
		r.monthSpend[month] += ca.Action.EstimatedCost
		executed = append(executed, ca.Action)
		r.markExecuted(ca.Key.DecisionID)
	}

	for _, aa := range tickApproved {
		before := newState
		newState = r.applier.ApplyAction(newState, aa.action)
		r.stageTransition(tick, simTime, aa.action.AgentRole, &aa.action, before, newState,
			map[string]string{"phase": "approved_action"})
		r.monthSpend[month] += aa.action.EstimatedCost
		executed = append(executed, aa.action)
		r.markExecuted(aa.decisionID)
	}

	for _, ev := range active {
		before := newState
		newState = r.applier.ApplyEvent(newState, ev)
		r.stageTransition(tick, simTime, "", nil, before, newState,
			map[string]string{"phase": "event", "event_type": ev.Type})
	}

	// 6. Рынок: ровно два сидированных розыгрыша за тик, порядок фиксирован
	sentNoise := r.rng.Float64()
	demandNoise := r.rng.Float64()
	newMarket := UpdateMarket(MarketInputs{
		Prev:           r.market,
		Company:        newState,
		Executed:       executed,
		Events:         active,
		SentimentNoise: sentNoise,
		DemandNoise:    demandNoise,
	})
	marketCopy := newMarket
	r.ledger.Stage(audit.Entry{
		RunID:   r.run.ID,
		SimTime: simTime,
		Tick:    tick,
		Type:    audit.EntryMarketUpdate,
		Market:  &marketCopy,
	})

	// 7. Коммит границы тика
	if err := r.commitTick(ctx, tick, newState, newMarket); err != nil {
		r.run.Status = domain.RunFailed
		r.run.UpdatedAt = time.Now().UTC()
		r.logger.Error("tick commit failed, run marked failed",
			zap.Int("tick", tick), zap.Error(err))
		return err
	}

	r.state = newState
	r.market = newMarket
	r.run.CurrentTick = tick
	r.run.UpdatedAt = time.Now().UTC()

	r.metrics.TicksTotal.WithLabelValues(r.run.ID).Inc()
	r.metrics.TickDuration.WithLabelValues(r.run.ID).Observe(time.Since(started).Seconds())
	r.metrics.ApprovalsPending.WithLabelValues(r.run.ID).Set(float64(len(r.queue.Pending())))

	if tick >= r.timeline.EndTick {
		r.run.Status = domain.RunCompleted
		r.logger.Info("run completed",
			zap.Int("ticks", tick),
			zap.Int("pending_approvals", len(r.queue.Pending())))
	}
	return nil
}

// commitTick публикует границу тика: сначала снапшот НОВОГО состояния,
// журнал — последним. Цепочка аудита — источник правды: в ней не может
// появиться запись о переходе, который не вступил в силу. Любой отказ —
// отказ всего тика, застейдженные записи сбрасываются.
func (r *Runner) commitTick(ctx context.Context, tick int, state domain.CompanyState, market domain.MarketState) error {
	if r.snapshots != nil {
		snap := RunSnapshot{
			RunID:     r.run.ID,
			Tick:      tick,
			SimTime:   r.simTime(tick),
			Status:    r.run.Status,
			Company:   state,
			Market:    market,
			StateHash: state.Hash(),
		}
		if err := r.snapshots.SaveSnapshot(ctx, snap); err != nil {
			r.ledger.Abort()
			return &domain.PersistenceError{Op: "save_snapshot", Cause: err}
		}
	}

	staged := r.ledger.StagedCount()
	if err := r.ledger.Commit(ctx); err != nil {
		return err
	}
	r.metrics.AuditEntriesTotal.WithLabelValues(r.run.ID).Add(float64(staged))
	return nil
}

// recordDecision фиксирует решение роли в истории и журнале.
// ID решений детерминированы (тик+роль): реплей дает байт-в-байт ту же
// цепочку хэшей.
func (r *Runner) recordDecision(tick int, simTime time.Time, spec domain.AgentSpec, rd agents.RoleDecision, obs domain.Observation) *domain.Decision {
	dec := domain.Decision{
		ID:              fmt.Sprintf("d-%04d-%s", tick, spec.Role),
		Tick:            tick,
		AgentRole:       spec.Role,
		ObservationHash: obs.Hash(),
		Reasoning:       rd.Reasoning,
		ProposedActions: rd.Actions,
		CreatedAt:       time.Now().UTC(),
	}
	r.decisionIx[dec.ID] = len(r.decisions)
	r.decisions = append(r.decisions, dec)

	details := map[string]string{"decision_id": dec.ID}
	if rd.Degraded {
		details["degraded"] = "true"
	}
	r.ledger.Stage(audit.Entry{
		RunID:     r.run.ID,
		SimTime:   simTime,
		Tick:      tick,
		Type:      audit.EntryDecision,
		AgentRole: spec.Role,
		Details:   details,
	})
	return &r.decisions[r.decisionIx[dec.ID]]
}

func (r *Runner) stagePolicyCheck(tick int, simTime time.Time, role string, action domain.ProposedAction, res domain.PolicyCheckResult) {
	actionCopy := action
	resCopy := res
	r.ledger.Stage(audit.Entry{
		RunID:       r.run.ID,
		SimTime:     simTime,
		Tick:        tick,
		Type:        audit.EntryPolicyCheck,
		AgentRole:   role,
		Action:      &actionCopy,
		PolicyCheck: &resCopy,
	})
}

func (r *Runner) stageTransition(tick int, simTime time.Time, role string, action *domain.ProposedAction, before, after domain.CompanyState, details map[string]string) {
	b, a := before, after
	r.ledger.Stage(audit.Entry{
		RunID:       r.run.ID,
		SimTime:     simTime,
		Tick:        tick,
		Type:        audit.EntryStateTransition,
		AgentRole:   role,
		Action:      action,
		StateBefore: &b,
		StateAfter:  &a,
		Details:     details,
	})
}

func (r *Runner) escalate(tick int, simTime time.Time, decisionID string, actionIndex int, role string, action domain.ProposedAction, reason string) {
	req := domain.ApprovalRequest{
		Key: domain.ApprovalKey{
			RunID:       r.run.ID,
			DecisionID:  decisionID,
			ActionIndex: actionIndex,
		},
		AgentRole: role,
		Action:    action,
		Reason:    reason,
		Tick:      tick,
	}
	r.queue.Add(req)

	actionCopy := action
	r.ledger.Stage(audit.Entry{
		RunID:     r.run.ID,
		SimTime:   simTime,
		Tick:      tick,
		Type:      audit.EntryApproval,
		AgentRole: role,
		Action:    &actionCopy,
		Details: map[string]string{
			"approval_key": req.Key.String(),
			"status":       string(domain.ApprovalPending),
		},
	})
}

// ResolveApproval — внешнее (HITL) решение по эскалации. Запись в журнал
// появляется сразу; одобренное действие применится на СЛЕДУЮЩЕЙ границе
// тика, прошлое не переписывается. Разрешено и для завершенного прогона.
func (r *Runner) ResolveApproval(ctx context.Context, key string, approve bool, resolverID, comment string) (domain.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, err := r.queue.Resolve(key, approve, resolverID, comment)
	if err != nil {
		return domain.ApprovalRequest{}, err
	}

	actionCopy := req.Action
	_, err = r.ledger.Append(ctx, audit.Entry{
		RunID:     r.run.ID,
		SimTime:   r.simTime(r.run.CurrentTick),
		Tick:      r.run.CurrentTick,
		Type:      audit.EntryApproval,
		AgentRole: req.AgentRole,
		Action:    &actionCopy,
		Details: map[string]string{
			"approval_key": key,
			"status":       string(req.Status),
			"resolver_id":  resolverID,
			"comment":      comment,
		},
	})
	if err != nil {
		return domain.ApprovalRequest{}, err
	}

	if approve && !r.run.Terminal() {
		r.carried = append(r.carried, req)
	}
	r.metrics.ApprovalsPending.WithLabelValues(r.run.ID).Set(float64(len(r.queue.Pending())))
	r.logger.Info("approval resolved",
		zap.String("key", key),
		zap.Bool("approved", approve),
		zap.String("resolver", resolverID))
	return req, nil
}

func (r *Runner) drainCarried() []domain.ApprovalRequest {
	out := r.carried
	r.carried = nil
	return out
}

func (r *Runner) markExecuted(decisionID string) {
	if ix, ok := r.decisionIx[decisionID]; ok {
		r.decisions[ix].Executed = true
	}
}

// Decisions возвращает историю решений, опционально отфильтрованную по роли.
func (r *Runner) Decisions(roleFilter string) []domain.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Decision, 0, len(r.decisions))
	for _, d := range r.decisions {
		if roleFilter == "" || d.AgentRole == roleFilter {
			out = append(out, d)
		}
	}
	return out
}

func (r *Runner) PendingApprovals() []domain.ApprovalRequest {
	return r.queue.Pending()
}

func (r *Runner) AllApprovals() []domain.ApprovalRequest {
	return r.queue.All()
}

// AuditTrail — упорядоченные записи журнала плюс итог верификации цепочки.
func (r *Runner) AuditTrail() ([]audit.Entry, error) {
	entries := r.ledger.Entries()
	return entries, audit.VerifyChain(entries)
}

// Snapshot — экспорт текущего состояния с детерминированным хэшем.
func (r *Runner) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunSnapshot{
		RunID:     r.run.ID,
		Tick:      r.run.CurrentTick,
		SimTime:   r.simTime(r.run.CurrentTick),
		Status:    r.run.Status,
		Company:   r.state,
		Market:    r.market,
		StateHash: r.state.Hash(),
	}
}

// Status возвращает копию агрегата Run.
func (r *Runner) Status() domain.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.run
}

// State и Market — копии текущих снапшотов (value-семантика).
func (r *Runner) State() domain.CompanyState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) Market() domain.MarketState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.market
}

// simTime — симуляционное время границы тика: старт таймлайна плюс
// tick×tick_days дней. Настенные часы в симуляционное время не протекают.
func (r *Runner) simTime(tick int) time.Time {
	return r.timeline.StartDate.AddDate(0, 0, tick*r.tickDays)
}

type appliedAction struct {
	decisionID string
	action     domain.ProposedAction
}

func pendingSpend(actions []appliedAction) float64 {
	var total float64
	for _, a := range actions {
		total += a.action.EstimatedCost
	}
	return total
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
