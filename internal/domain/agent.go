package domain

import "fmt"

// Канонические роли агентов
const (
	RoleCEO     = "ceo"
	RoleCFO     = "cfo"
	RoleCOO     = "coo"
	RoleProduct = "product"
	RoleSales   = "sales"
	RoleRisk    = "risk"
)

// AgentSpec — иммутабельная конфигурация одного агента на прогон.
type AgentSpec struct {
	Role string `json:"role"`
	// Веса целей. Движок НЕ предполагает нормализацию — сумма может не быть 1
	Objectives        map[string]float64 `json:"objectives"`
	Permissions       []string           `json:"permissions"` // разрешенные типы действий
	ApprovalThreshold float64            `json:"approval_threshold"`
	RiskAppetite      float64            `json:"risk_appetite"` // [0,1]
}

// HasPermission проверка по списку (список короткий, мапа не нужна).
func (s AgentSpec) HasPermission(actionType string) bool {
	for _, p := range s.Permissions {
		if p == actionType {
			return true
		}
	}
	return false
}

// AgentConfig — упорядоченный список ролей. Порядок конфигурации
// определяет детерминированный порядок обработки решений внутри тика.
type AgentConfig struct {
	ID     string      `json:"id,omitempty"`
	Agents []AgentSpec `json:"agents"`
}

func (c AgentConfig) Validate() error {
	seen := make(map[string]struct{}, len(c.Agents))
	for _, a := range c.Agents {
		if a.Role == "" {
			return fmt.Errorf("%w: agent role is empty", ErrValidation)
		}
		if _, dup := seen[a.Role]; dup {
			return fmt.Errorf("%w: duplicate agent role %q", ErrValidation, a.Role)
		}
		seen[a.Role] = struct{}{}
		if a.RiskAppetite < 0 || a.RiskAppetite > 1 {
			return fmt.Errorf("%w: risk_appetite for %q out of [0,1]", ErrValidation, a.Role)
		}
	}
	return nil
}
