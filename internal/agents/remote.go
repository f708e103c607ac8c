package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ThrottleError сигнализирует, что удаленный провайдер попросил подождать.
// ReliabilityWrapper использует RetryAfter вместо стандартного бэкоффа.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// RemoteProvider — HTTP-адаптер к внешнему decision-бэкенду (LLM-сервис
// или кастомная модель). Контракт: POST {endpoint}/decide, JSON туда и
// обратно.
type RemoteProvider struct {
	endpoint string
	client   *http.Client
}

func NewRemoteProvider(endpoint string, timeout time.Duration) *RemoteProvider {
	return &RemoteProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Decide реализует интерфейс Provider
func (p *RemoteProvider) Decide(ctx context.Context, req DecisionRequest) (*DecisionResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decision request: %w", err)
	}

	// Защитный таймаут на уровне вызова: даже если ReliabilityWrapper
	// имеет свой, адаптер должен иметь свой предел
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/decide", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      fmt.Errorf("provider returned %d", resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("provider returned error [%d]: %s", resp.StatusCode, msg)
	}

	var result DecisionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	return &result, nil
}

func parseRetryAfter(header string) time.Duration {
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 2 * time.Second
}
