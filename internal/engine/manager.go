package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/corpsim-engine/internal/agents"
	"github.com/xela07ax/corpsim-engine/internal/audit"
	"github.com/xela07ax/corpsim-engine/internal/domain"
)

// StoreFactory выдает audit.Store для нового прогона (отдельная цепочка
// на прогон). nil-фабрика означает in-memory сторедж.
type StoreFactory func(runID string) audit.Store

// Manager — реестр прогонов. Каждый Runner — независимый агрегат со своим
// ledger'ом, очередью и RNG; менеджер только создает и находит их.
type Manager struct {
	mu      sync.RWMutex
	runners map[string]*Runner

	provider  agents.Provider
	stores    StoreFactory
	snapshots SnapshotStore
	halt      HaltChecker
	metrics   *Metrics
	cfg       Config
	logger    *zap.Logger
}

func NewManager(
	provider agents.Provider,
	stores StoreFactory,
	snapshots SnapshotStore,
	halt HaltChecker,
	metrics *Metrics,
	cfg Config,
	logger *zap.Logger,
) *Manager {
	if provider == nil {
		provider = agents.NewHeuristicProvider()
	}
	return &Manager{
		runners:   make(map[string]*Runner),
		provider:  provider,
		stores:    stores,
		snapshots: snapshots,
		halt:      halt,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger.Named("manager"),
	}
}

// CreateRun валидирует вход, создает Run-агрегат и регистрирует Runner.
func (m *Manager) CreateRun(
	blueprint domain.Blueprint,
	timeline domain.Timeline,
	agentCfg domain.AgentConfig,
	seed int64,
) (*Runner, error) {
	if err := blueprint.Validate(); err != nil {
		return nil, err
	}
	if err := timeline.Validate(); err != nil {
		return nil, err
	}
	if err := agentCfg.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	run := &domain.Run{
		ID:            uuid.NewString(),
		BlueprintID:   blueprint.ID,
		TimelineID:    timeline.ID,
		AgentConfigID: agentCfg.ID,
		Seed:          seed,
		Status:        domain.RunCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var store audit.Store
	if m.stores != nil {
		store = m.stores(run.ID)
	}

	runner := NewRunner(run, blueprint, timeline, agentCfg, m.provider,
		store, m.snapshots, m.halt, m.metrics, m.cfg, m.logger)

	m.mu.Lock()
	m.runners[run.ID] = runner
	m.mu.Unlock()

	m.logger.Info("run created",
		zap.String("run_id", run.ID),
		zap.Int64("seed", seed),
		zap.Int("end_tick", timeline.EndTick),
		zap.Int("agents", len(agentCfg.Agents)))
	return runner, nil
}

// Get находит Runner по ID прогона.
func (m *Manager) Get(runID string) (*Runner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runner, ok := m.runners[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return runner, nil
}

// List возвращает статусы всех зарегистрированных прогонов.
func (m *Manager) List(_ context.Context) []domain.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Run, 0, len(m.runners))
	for _, r := range m.runners {
		out = append(out, r.Status())
	}
	return out
}
