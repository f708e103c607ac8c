package domain

import (
	"time"
)

// Статусы State Machine прогона симуляции
type RunStatus string

const (
	RunCreated   RunStatus = "created"
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunCompleted RunStatus = "completed" // Терминальный (кроме резолва approvals)
	RunFailed    RunStatus = "failed"    // Терминальный
)

// Run — корневой агрегат прогона. Владеет им исключительно Run State Machine:
// создается один раз, мутируется строго по тикам, после completed/failed
// неизменяем (за исключением append в аудит при резолве approvals).
type Run struct {
	ID            string    `json:"id"`
	BlueprintID   string    `json:"blueprint_id"`
	TimelineID    string    `json:"timeline_id"`
	AgentConfigID string    `json:"agent_config_id"`
	Seed          int64     `json:"seed"`
	Status        RunStatus `json:"status"`
	CurrentTick   int       `json:"current_tick"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanTransitionTo проверяет правила конечного автомата.
// created → running → {paused, completed, failed}; paused → running.
func (r *Run) CanTransitionTo(next RunStatus) error {
	switch r.Status {
	case RunCreated:
		if next == RunRunning || next == RunFailed {
			return nil
		}
	case RunRunning:
		if next == RunPaused || next == RunCompleted || next == RunFailed {
			return nil
		}
	case RunPaused:
		if next == RunRunning || next == RunFailed {
			return nil
		}
	case RunCompleted, RunFailed:
		// Терминальные статусы: выхода нет
		return ErrInvalidState
	}
	return ErrInvalidState
}

// Terminal сообщает, завершен ли прогон окончательно.
func (r *Run) Terminal() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}
