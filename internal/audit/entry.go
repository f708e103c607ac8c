package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/xela07ax/corpsim-engine/internal/domain"
)

// Типы записей аудита
type EntryType string

const (
	EntryDecision        EntryType = "decision"
	EntryPolicyCheck     EntryType = "policy_check"
	EntryStateTransition EntryType = "state_transition"
	EntryApproval        EntryType = "approval"
	EntryMarketUpdate    EntryType = "market_update"
)

// GenesisHash — фиксированное значение prev_hash нулевой записи.
var GenesisHash = strings.Repeat("0", 64)

// Entry — одна запись tamper-evident журнала. После append неизменяема;
// цепочка prev_hash → content_hash и есть механизм доказательства целостности.
type Entry struct {
	RunID    string    `json:"run_id"`
	Sequence int64     `json:"sequence"` // строго возрастающая, без дыр, с нуля
	SimTime  time.Time `json:"sim_time"` // деривируется из тика
	Tick     int       `json:"tick"`
	Type     EntryType `json:"entry_type"`

	AgentRole   string                    `json:"agent_role,omitempty"`
	Action      *domain.ProposedAction    `json:"action,omitempty"`
	StateBefore *domain.CompanyState      `json:"state_before,omitempty"`
	StateAfter  *domain.CompanyState      `json:"state_after,omitempty"`
	Market      *domain.MarketState       `json:"market,omitempty"`
	PolicyCheck *domain.PolicyCheckResult `json:"policy_check,omitempty"`
	Details     map[string]string         `json:"details,omitempty"`

	ContentHash string `json:"content_hash"`
	PrevHash    string `json:"prev_hash"`

	// Сторедж-таймстемп. В контент-хэш НЕ входит: детерминизм реплея
	// не должен зависеть от настенных часов.
	CreatedAt time.Time `json:"created_at"`
}

// hashEnvelope — канонический набор полей, покрытых дайджестом.
// Порядок полей структуры фиксирован, ключи мап encoding/json сортирует,
// поэтому сериализация детерминирована.
type hashEnvelope struct {
	RunID       string                    `json:"run_id"`
	Sequence    int64                     `json:"sequence"`
	SimTime     string                    `json:"sim_time"`
	Tick        int                       `json:"tick"`
	Type        EntryType                 `json:"entry_type"`
	AgentRole   string                    `json:"agent_role,omitempty"`
	Action      *domain.ProposedAction    `json:"action,omitempty"`
	StateBefore *domain.CompanyState      `json:"state_before,omitempty"`
	StateAfter  *domain.CompanyState      `json:"state_after,omitempty"`
	Market      *domain.MarketState       `json:"market,omitempty"`
	PolicyCheck *domain.PolicyCheckResult `json:"policy_check,omitempty"`
	Details     map[string]string         `json:"details,omitempty"`
	PrevHash    string                    `json:"prev_hash"`
}

// ComputeHash считает content_hash записи: SHA-256 поверх канонической
// сериализации полей записи плюс content_hash предыдущей записи.
func ComputeHash(e Entry) string {
	env := hashEnvelope{
		RunID:       e.RunID,
		Sequence:    e.Sequence,
		SimTime:     e.SimTime.UTC().Format(time.RFC3339),
		Tick:        e.Tick,
		Type:        e.Type,
		AgentRole:   e.AgentRole,
		Action:      e.Action,
		StateBefore: e.StateBefore,
		StateAfter:  e.StateAfter,
		Market:      e.Market,
		PolicyCheck: e.PolicyCheck,
		Details:     e.Details,
		PrevHash:    e.PrevHash,
	}
	raw, _ := json.Marshal(env)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// VerifyChain проверяет цепочку записей с нуля. Возвращает IntegrityError
// с номером ПЕРВОЙ битой записи. Read-only, вход не мутирует.
func VerifyChain(entries []Entry) error {
	prev := GenesisHash
	for i, e := range entries {
		if e.Sequence != int64(i) {
			return &domain.IntegrityError{Sequence: e.Sequence, Reason: "sequence gap or reorder"}
		}
		if e.PrevHash != prev {
			return &domain.IntegrityError{Sequence: e.Sequence, Reason: "prev_hash mismatch"}
		}
		if ComputeHash(e) != e.ContentHash {
			return &domain.IntegrityError{Sequence: e.Sequence, Reason: "content_hash mismatch"}
		}
		prev = e.ContentHash
	}
	return nil
}
