package agents

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xela07ax/corpsim-engine/internal/domain"
)

func profitableRequest() DecisionRequest {
	state := domain.CompanyState{Cash: 1_000_000, RevenueMonthly: 80_000, CostsMonthly: 50_000}
	return DecisionRequest{
		Spec: domain.AgentSpec{Role: domain.RoleCEO},
		Observation: domain.Observation{
			Tick: 4,
			Company: domain.ObservedCompany{
				Cash:           state.Cash,
				RevenueMonthly: state.RevenueMonthly,
				CostsMonthly:   state.CostsMonthly,
				RunwayMonths:   state.RunwayMonths(),
			},
		},
	}
}

func TestRemoteProviderDecideProfitableCompany(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/decide" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req DecisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(DecisionResult{
			Reasoning: "remote",
			Actions:   []domain.ProposedAction{{Type: domain.ActionModifyCosts, EstimatedCost: 5_000}},
		})
	}))
	defer srv.Close()

	p := NewRemoteProvider(srv.URL, time.Second)
	res, err := p.Decide(context.Background(), profitableRequest())
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if res.Reasoning != "remote" || len(res.Actions) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRemoteProviderThrottle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewRemoteProvider(srv.URL, time.Second)
	_, err := p.Decide(context.Background(), profitableRequest())

	var tErr *ThrottleError
	if !errors.As(err, &tErr) {
		t.Fatalf("got %v, want ThrottleError", err)
	}
	if tErr.RetryAfter != 7*time.Second {
		t.Fatalf("retry after = %v, want 7s", tErr.RetryAfter)
	}
}

func TestParseRetryAfterDefault(t *testing.T) {
	if got := parseRetryAfter(""); got != 2*time.Second {
		t.Fatalf("empty header: %v, want 2s", got)
	}
	if got := parseRetryAfter("garbage"); got != 2*time.Second {
		t.Fatalf("bad header: %v, want 2s", got)
	}
	if got := parseRetryAfter("30"); got != 30*time.Second {
		t.Fatalf("explicit header: %v, want 30s", got)
	}
}
