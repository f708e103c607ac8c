package engine

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/corpsim-engine/internal/infra"
)

// HaltChecker — то, что Runner спрашивает на каждой границе тика.
type HaltChecker interface {
	IsHalted(runID string) bool
}

// HaltManager — двухуровневое состояние halt-сигналов: L1 (RAM, RLock на
// горячем пути тика) + L2 (Redis set, переживает рестарт). Сигналы
// прилетают по pub/sub от Console API.
type HaltManager struct {
	mu         sync.RWMutex
	haltedRuns map[string]struct{}
	rdb        *redis.Client
	logger     *zap.Logger
}

func NewHaltManager(rdb *redis.Client, logger *zap.Logger) *HaltManager {
	return &HaltManager{
		haltedRuns: make(map[string]struct{}),
		rdb:        rdb,
		logger:     logger.Named("halt"),
	}
}

// Init загружает текущее состояние halt-флагов при старте сервиса
func (m *HaltManager) Init(ctx context.Context) error {
	runs, err := m.rdb.SMembers(ctx, infra.RedisKeyHaltedRuns).Result()
	if err != nil {
		return err
	}

	m.mu.Lock()
	for _, id := range runs {
		m.haltedRuns[id] = struct{}{}
	}
	m.mu.Unlock()
	return nil
}

func (m *HaltManager) IsHalted(runID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, halted := m.haltedRuns[runID]
	return halted
}

func (m *HaltManager) setHalted(runID string, halted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if halted {
		m.haltedRuns[runID] = struct{}{}
	} else {
		delete(m.haltedRuns, runID)
	}
}

// Halt поднимает флаг: L2 (Redis set) + сигнал остальным инстансам.
// Локальный L1 обновится через собственную подписку.
func (m *HaltManager) Halt(ctx context.Context, runID string) error {
	if err := m.rdb.SAdd(ctx, infra.RedisKeyHaltedRuns, runID).Err(); err != nil {
		return err
	}
	return m.rdb.Publish(ctx, infra.RedisChanRunHalt, runID+":on").Err()
}

// Resume снимает флаг.
func (m *HaltManager) Resume(ctx context.Context, runID string) error {
	if err := m.rdb.SRem(ctx, infra.RedisKeyHaltedRuns, runID).Err(); err != nil {
		return err
	}
	return m.rdb.Publish(ctx, infra.RedisChanRunHalt, runID+":off").Err()
}

// Warmup прогревает halt-флаги из персистентного источника (снапшоты
// paused-прогонов): L1 сразу, Redis set — один инстанс под блокировкой.
func (m *HaltManager) Warmup(ctx context.Context, runIDs []string) error {
	return WarmupState(ctx, m.rdb, m.logger, runIDs,
		infra.RedisKeyHaltedRuns, infra.RedisKeyLockHalted,
		func(ids []string) {
			m.mu.Lock()
			for _, id := range ids {
				m.haltedRuns[id] = struct{}{}
			}
			m.mu.Unlock()
		})
}

// StartListener — живучая подписка на halt-сигналы: переподключение с
// ресинком из Redis set, разбор формата "run_id:on|off".
func (m *HaltManager) StartListener(ctx context.Context) {
	ListenStateResilient(ctx, m.rdb, m.logger, infra.RedisChanRunHalt,
		func() error { return m.Init(ctx) },
		func(runID string, on bool) {
			m.logger.Info("halt signal received",
				zap.String("run_id", runID), zap.Bool("halted", on))
			m.setHalted(runID, on)
		})
}

// NoopHalt — для тестов и оффлайн-прогонов без Redis.
type NoopHalt struct{}

func (NoopHalt) IsHalted(string) bool { return false }
