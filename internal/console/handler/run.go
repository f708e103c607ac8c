package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/corpsim-engine/internal/console/service"
	"github.com/xela07ax/corpsim-engine/internal/domain"
)

type RunHandler struct {
	service *service.RunService
}

func NewRunHandler(s *service.RunService) *RunHandler {
	return &RunHandler{service: s}
}

func (h *RunHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	run, err := h.service.CreateRun(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(run)
}

func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	runs := h.service.ListRuns(r.Context())
	if runs == nil {
		runs = []domain.Run{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

func (h *RunHandler) Start(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.StartRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

type AdvanceRequest struct {
	Ticks int `json:"ticks"`
}

func (h *RunHandler) Advance(w http.ResponseWriter, r *http.Request) {
	var req AdvanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Ticks == 0 {
		req.Ticks = 1
	}

	run, err := h.service.AdvanceRun(r.Context(), chi.URLParam(r, "id"), req.Ticks)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

func (h *RunHandler) Halt(w http.ResponseWriter, r *http.Request) {
	if err := h.service.HaltRun(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *RunHandler) Resume(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.ResumeRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

func (h *RunHandler) Audit(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetAudit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

func (h *RunHandler) Approvals(w http.ResponseWriter, r *http.Request) {
	// Дефолт для удобства админки — только висящие заявки
	pendingOnly := r.URL.Query().Get("status") != "all"

	list, err := h.service.GetApprovals(r.Context(), chi.URLParam(r, "id"), pendingOnly)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []domain.ApprovalRequest{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

type DecideRequest struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment"`
}

func (h *RunHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// ReviewerID приходит из контекста (авторизованный оператор)
	reviewerID, _ := r.Context().Value("user_id").(string)
	if reviewerID == "" {
		http.Error(w, "reviewer identity is required", http.StatusBadRequest)
		return
	}

	resolved, err := h.service.DecideApproval(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "key"),
		req.Approved, reviewerID, req.Comment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resolved)
}

func (h *RunHandler) Decisions(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("agent_role")
	list, err := h.service.GetDecisions(r.Context(), chi.URLParam(r, "id"), role)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// writeDomainError маппит доменные ошибки на HTTP-статусы.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRunNotFound), errors.Is(err, domain.ErrApprovalNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrAlreadyProcessed),
		errors.Is(err, domain.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
