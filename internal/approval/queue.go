package approval

/*
Файл queue.go содержит очередь Human-in-the-loop (HITL, «человек в контуре»).
Эскалированные политикой действия висят здесь до внешнего решения;
Resolve — единственный мутатор. Одобренное действие НЕ переписывает
прошлый тик: оно уходит аппликатору на СЛЕДУЮЩЕЙ границе тика.
*/

import (
	"sync"
	"time"

	"github.com/xela07ax/corpsim-engine/internal/domain"
)

// Queue — очередь эскалаций одного прогона. Порядок добавления сохраняем:
// он же порядок применения одобренных действий на следующем тике.
type Queue struct {
	mu    sync.RWMutex
	items map[string]*domain.ApprovalRequest // ключ — ApprovalKey.String()
	order []string
}

func NewQueue() *Queue {
	return &Queue{items: make(map[string]*domain.ApprovalRequest)}
}

// Add регистрирует эскалированное действие. Повторный ключ игнорируем:
// одно действие эскалируется максимум один раз.
func (q *Queue) Add(req domain.ApprovalRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := req.Key.String()
	if _, exists := q.items[key]; exists {
		return
	}
	req.Status = domain.ApprovalPending
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt
	q.items[key] = &req
	q.order = append(q.order, key)
}

// Resolve — единственный мутатор. Проверяет конечный автомат (повторное
// решение по той же заявке — ErrAlreadyProcessed) и фиксирует, кто решил.
func (q *Queue) Resolve(key string, approve bool, resolverID, comment string) (domain.ApprovalRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	req, ok := q.items[key]
	if !ok {
		return domain.ApprovalRequest{}, domain.ErrApprovalNotFound
	}

	next := domain.ApprovalRejected
	if approve {
		next = domain.ApprovalApproved
	}
	if err := req.CanTransitionTo(next); err != nil {
		return domain.ApprovalRequest{}, err
	}

	req.Status = next
	req.ReviewerID = &resolverID
	if comment != "" {
		req.Comment = &comment
	}
	req.UpdatedAt = time.Now().UTC()
	return *req, nil
}

// Pending возвращает нерешенные заявки в порядке поступления.
// Нерешенные заявки переживают тики; прогон может дойти до completed
// с непустой очередью — это репортится, а не считается ошибкой.
func (q *Queue) Pending() []domain.ApprovalRequest {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]domain.ApprovalRequest, 0, len(q.order))
	for _, key := range q.order {
		if req := q.items[key]; req.Status == domain.ApprovalPending {
			out = append(out, *req)
		}
	}
	return out
}

// All — все заявки (для чтения консолью), в порядке поступления.
func (q *Queue) All() []domain.ApprovalRequest {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]domain.ApprovalRequest, 0, len(q.order))
	for _, key := range q.order {
		out = append(out, *q.items[key])
	}
	return out
}
