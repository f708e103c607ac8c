package approval

import (
	"errors"
	"testing"

	"github.com/xela07ax/corpsim-engine/internal/domain"
)

func request(decisionID string, idx int) domain.ApprovalRequest {
	return domain.ApprovalRequest{
		Key: domain.ApprovalKey{
			RunID:       "run-1",
			DecisionID:  decisionID,
			ActionIndex: idx,
		},
		AgentRole: domain.RoleCFO,
		Reason:    "over threshold",
		Tick:      3,
	}
}

func TestAddAndPendingOrder(t *testing.T) {
	q := NewQueue()
	q.Add(request("d-1", 0))
	q.Add(request("d-2", 0))
	q.Add(request("d-2", 1))

	pending := q.Pending()
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}
	// Порядок поступления сохраняется
	want := []string{"d-1:0", "d-2:0", "d-2:1"}
	for i, req := range pending {
		if req.Key.String() != want[i] {
			t.Fatalf("order broken at %d: got %s want %s", i, req.Key.String(), want[i])
		}
	}
}

func TestAddDedupes(t *testing.T) {
	q := NewQueue()
	q.Add(request("d-1", 0))
	q.Add(request("d-1", 0))

	if got := len(q.Pending()); got != 1 {
		t.Fatalf("duplicate key must be ignored, got %d items", got)
	}
}

func TestResolveApprove(t *testing.T) {
	q := NewQueue()
	q.Add(request("d-1", 0))

	resolved, err := q.Resolve("d-1:0", true, "operator-7", "looks fine")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != domain.ApprovalApproved {
		t.Fatalf("expected APPROVED, got %s", resolved.Status)
	}
	if resolved.ReviewerID == nil || *resolved.ReviewerID != "operator-7" {
		t.Fatal("reviewer identity must be recorded")
	}
	if len(q.Pending()) != 0 {
		t.Fatal("resolved request still pending")
	}
}

func TestDoubleDecisionRejected(t *testing.T) {
	q := NewQueue()
	q.Add(request("d-1", 0))

	if _, err := q.Resolve("d-1:0", false, "op-1", ""); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	// Повторное решение по той же заявке — конфликт, не перезапись
	_, err := q.Resolve("d-1:0", true, "op-2", "changed my mind")
	if !errors.Is(err, domain.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}

	all := q.All()
	if all[0].Status != domain.ApprovalRejected {
		t.Fatalf("first decision must stand, got %s", all[0].Status)
	}
}

func TestResolveUnknownKey(t *testing.T) {
	q := NewQueue()
	if _, err := q.Resolve("ghost:0", true, "op", ""); !errors.Is(err, domain.ErrApprovalNotFound) {
		t.Fatalf("expected ErrApprovalNotFound, got %v", err)
	}
}
