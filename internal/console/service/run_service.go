package service

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/corpsim-engine/internal/audit"
	"github.com/xela07ax/corpsim-engine/internal/domain"
	"github.com/xela07ax/corpsim-engine/internal/engine"
	"github.com/xela07ax/corpsim-engine/internal/infra"
	"github.com/xela07ax/corpsim-engine/internal/infra/auth"
)

// CreateRunRequest — тело POST /v1/runs. Либо встроенный шаблон по имени
// индустрии, либо полный blueprint; таймлайн и состав агентов всегда явные.
type CreateRunRequest struct {
	Template    string             `json:"template,omitempty"` // saas, d2c, manufacturing
	Blueprint   *domain.Blueprint  `json:"blueprint,omitempty"`
	Timeline    domain.Timeline    `json:"timeline"`
	AgentConfig domain.AgentConfig `json:"agent_config"`
	Seed        int64              `json:"seed"`
}

// RunView — ответ GET /v1/runs/{id}: агрегат + экспорт состояния.
type RunView struct {
	Run      domain.Run         `json:"run"`
	Snapshot engine.RunSnapshot `json:"snapshot"`
	Pending  int                `json:"pending_approvals"`
}

// AuditView — записи журнала + итог верификации цепочки.
type AuditView struct {
	Entries  []audit.Entry `json:"entries"`
	Verified bool          `json:"verified"`
	Error    string        `json:"error,omitempty"`
}

// RunService — управление прогонами для Console API. Встраивает
// BaseValidator: сервис сам умеет проверять RS256 токены для middleware.
type RunService struct {
	*auth.BaseValidator
	manager *engine.Manager
	halt    *engine.HaltManager
	rdb     *redis.Client
	logger  *zap.Logger
}

func NewRunService(
	manager *engine.Manager,
	halt *engine.HaltManager,
	rdb *redis.Client,
	validator *auth.BaseValidator,
	logger *zap.Logger,
) *RunService {
	return &RunService{
		BaseValidator: validator,
		manager:       manager,
		halt:          halt,
		rdb:           rdb,
		logger:        logger.Named("run-service"),
	}
}

// CreateRun валидирует документы и регистрирует новый прогон.
func (s *RunService) CreateRun(_ context.Context, req CreateRunRequest) (domain.Run, error) {
	var bp domain.Blueprint
	switch {
	case req.Blueprint != nil:
		bp = *req.Blueprint
	case req.Template != "":
		tpl, err := domain.BlueprintTemplate(req.Template)
		if err != nil {
			return domain.Run{}, err
		}
		bp = tpl
	default:
		return domain.Run{}, fmt.Errorf("%w: blueprint or template is required", domain.ErrValidation)
	}

	runner, err := s.manager.CreateRun(bp, req.Timeline, req.AgentConfig, req.Seed)
	if err != nil {
		return domain.Run{}, err
	}
	return runner.Status(), nil
}

func (s *RunService) StartRun(ctx context.Context, runID string) (domain.Run, error) {
	runner, err := s.manager.Get(runID)
	if err != nil {
		return domain.Run{}, err
	}
	if err := runner.Start(ctx); err != nil {
		return domain.Run{}, err
	}
	return runner.Status(), nil
}

func (s *RunService) AdvanceRun(ctx context.Context, runID string, ticks int) (domain.Run, error) {
	runner, err := s.manager.Get(runID)
	if err != nil {
		return domain.Run{}, err
	}
	if err := runner.Advance(ctx, ticks); err != nil {
		return domain.Run{}, err
	}
	return runner.Status(), nil
}

// HaltRun поднимает halt-флаг в Redis: прогон встанет на ближайшей
// границе тика, даже если его двигает другой инстанс.
func (s *RunService) HaltRun(ctx context.Context, runID string) error {
	if _, err := s.manager.Get(runID); err != nil {
		return err
	}
	if err := s.halt.Halt(ctx, runID); err != nil {
		return fmt.Errorf("halt signal: %w", err)
	}
	s.logger.Info("halt requested", zap.String("run_id", runID))
	return nil
}

func (s *RunService) ResumeRun(ctx context.Context, runID string) (domain.Run, error) {
	runner, err := s.manager.Get(runID)
	if err != nil {
		return domain.Run{}, err
	}
	if err := s.halt.Resume(ctx, runID); err != nil {
		return domain.Run{}, fmt.Errorf("resume signal: %w", err)
	}
	if err := runner.Resume(); err != nil {
		return domain.Run{}, err
	}
	return runner.Status(), nil
}

func (s *RunService) GetRun(_ context.Context, runID string) (RunView, error) {
	runner, err := s.manager.Get(runID)
	if err != nil {
		return RunView{}, err
	}
	return RunView{
		Run:      runner.Status(),
		Snapshot: runner.Snapshot(),
		Pending:  len(runner.PendingApprovals()),
	}, nil
}

func (s *RunService) ListRuns(ctx context.Context) []domain.Run {
	return s.manager.List(ctx)
}

// GetAudit отдает журнал вместе с результатом верификации: админка всегда
// видит, целa ли цепочка.
func (s *RunService) GetAudit(_ context.Context, runID string) (AuditView, error) {
	runner, err := s.manager.Get(runID)
	if err != nil {
		return AuditView{}, err
	}
	entries, verifyErr := runner.AuditTrail()
	view := AuditView{Entries: entries, Verified: verifyErr == nil}
	if verifyErr != nil {
		view.Error = verifyErr.Error()
	}
	return view, nil
}

func (s *RunService) GetApprovals(_ context.Context, runID string, pendingOnly bool) ([]domain.ApprovalRequest, error) {
	runner, err := s.manager.Get(runID)
	if err != nil {
		return nil, err
	}
	if pendingOnly {
		return runner.PendingApprovals(), nil
	}
	return runner.AllApprovals(), nil
}

// DecideApproval фиксирует решение оператора (reviewerID — для
// подотчетности) и транслирует его наружу через Redis.
func (s *RunService) DecideApproval(ctx context.Context, runID, key string, approved bool, reviewerID, comment string) (domain.ApprovalRequest, error) {
	runner, err := s.manager.Get(runID)
	if err != nil {
		return domain.ApprovalRequest{}, err
	}

	req, err := runner.ResolveApproval(ctx, key, approved, reviewerID, comment)
	if err != nil {
		return domain.ApprovalRequest{}, err
	}

	// Сигнал внешним наблюдателям; недоставка не откатывает решение —
	// оно уже в журнале
	chanName := infra.RedisChanApprovalResolution + key
	if err := s.rdb.Publish(ctx, chanName, string(req.Status)).Err(); err != nil {
		s.logger.Warn("decision saved but signal not delivered",
			zap.String("approval_key", key),
			zap.Error(err))
	}

	s.logger.Info("HITL decision processed",
		zap.String("run_id", runID),
		zap.String("approval_key", key),
		zap.String("reviewer", reviewerID),
		zap.String("result", string(req.Status)))
	return req, nil
}

func (s *RunService) GetDecisions(_ context.Context, runID, roleFilter string) ([]domain.Decision, error) {
	runner, err := s.manager.Get(runID)
	if err != nil {
		return nil, err
	}
	decisions := runner.Decisions(roleFilter)
	// Фронтенд получает пустой массив [], а не null
	if decisions == nil {
		decisions = []domain.Decision{}
	}
	return decisions, nil
}
