// Package handler exposes the approval engine over HTTP. The acting user
// is taken from the X-User-ID header; upstream authentication is expected
// to have populated it.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
	"github.com/pesio-ai/be-plt-approvals/internal/service"
)

const userIDHeader = "X-User-ID"

// HTTPHandler handles HTTP requests.
type HTTPHandler struct {
	orchestrator *service.ApprovalOrchestrator
	catalog      *service.CatalogService
	log          *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(orchestrator *service.ApprovalOrchestrator, catalog *service.CatalogService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		orchestrator: orchestrator,
		catalog:      catalog,
		log:          log,
	}
}

// Register wires all routes onto the router.
func (h *HTTPHandler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/approvals/submit", h.Submit).Methods(http.MethodPost)
	api.HandleFunc("/approvals/pending", h.ListPending).Methods(http.MethodGet)
	api.HandleFunc("/approvals/{id}", h.GetInstance).Methods(http.MethodGet)
	api.HandleFunc("/approvals/{id}/act", h.Act).Methods(http.MethodPost)
	api.HandleFunc("/approvals/{id}/cancel", h.Cancel).Methods(http.MethodPost)

	api.HandleFunc("/modules", h.SaveModule).Methods(http.MethodPost)
	api.HandleFunc("/modules", h.ListModules).Methods(http.MethodGet)
	api.HandleFunc("/modules/{id}", h.GetModule).Methods(http.MethodGet)

	api.HandleFunc("/flows", h.SaveFlow).Methods(http.MethodPost)
	api.HandleFunc("/flows", h.ListFlows).Methods(http.MethodGet)
	api.HandleFunc("/flows/{id}", h.GetFlow).Methods(http.MethodGet)
	api.HandleFunc("/flows/{id}", h.UpdateFlow).Methods(http.MethodPut)
	api.HandleFunc("/flows/{id}", h.DeleteFlow).Methods(http.MethodDelete)
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ── Approval lifecycle ───────────────────────────────────────────────────────

// Submit creates an approval instance for a submitted request.
func (h *HTTPHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid JSON"))
		return
	}
	if req.ModuleID == "" || req.RequestID == "" {
		h.writeError(w, errors.InvalidInput("body", "module_id and request_id are required"))
		return
	}

	inst, err := h.orchestrator.Submit(r.Context(), req.ModuleID, req.RequestID, actorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toInstanceResponse(inst))
}

// Act applies an approve or reject decision.
func (h *HTTPHandler) Act(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req actRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid JSON"))
		return
	}

	inst, err := h.orchestrator.Act(r.Context(), mux.Vars(r)["id"], actorID, repository.Action(req.Action), req.Comment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toInstanceResponse(inst))
}

// Cancel withdraws a pending instance.
func (h *HTTPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	inst, err := h.orchestrator.Cancel(r.Context(), mux.Vars(r)["id"], actorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toInstanceResponse(inst))
}

// GetInstance returns one instance with its decision log.
func (h *HTTPHandler) GetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := h.orchestrator.GetInstance(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toInstanceResponse(inst))
}

// ListPending returns the instances awaiting an actor's decision. The
// actor defaults to the calling user but can be overridden with the
// actor_id query parameter.
func (h *HTTPHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	actorID := r.URL.Query().Get("actor_id")
	if actorID == "" {
		var ok bool
		if actorID, ok = h.actor(w, r); !ok {
			return
		}
	}

	instances, err := h.orchestrator.ListPending(r.Context(), actorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]instanceResponse, 0, len(instances))
	for _, inst := range instances {
		out = append(out, toInstanceResponse(inst))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"approvals": out, "total": len(out)})
}

// ── Module administration ────────────────────────────────────────────────────

// SaveModule creates or updates a module.
func (h *HTTPHandler) SaveModule(w http.ResponseWriter, r *http.Request) {
	var req moduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid JSON"))
		return
	}

	m := &repository.Module{ID: req.ID, Name: req.Name, IsActive: true}
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}
	saved, err := h.catalog.SaveModule(r.Context(), m)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toModuleResponse(saved))
}

// GetModule returns one module.
func (h *HTTPHandler) GetModule(w http.ResponseWriter, r *http.Request) {
	m, err := h.catalog.GetModule(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toModuleResponse(m))
}

// ListModules returns all modules.
func (h *HTTPHandler) ListModules(w http.ResponseWriter, r *http.Request) {
	modules, err := h.catalog.ListModules(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]moduleResponse, 0, len(modules))
	for _, m := range modules {
		out = append(out, toModuleResponse(m))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"modules": out, "total": len(out)})
}

// ── Flow administration ──────────────────────────────────────────────────────

// SaveFlow creates or updates a flow template.
func (h *HTTPHandler) SaveFlow(w http.ResponseWriter, r *http.Request) {
	var req flowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid JSON"))
		return
	}

	saved, err := h.catalog.SaveFlow(r.Context(), req.toDomain())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toFlowResponse(saved))
}

// UpdateFlow replaces an existing flow template.
func (h *HTTPHandler) UpdateFlow(w http.ResponseWriter, r *http.Request) {
	var req flowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid JSON"))
		return
	}
	req.ID = mux.Vars(r)["id"]

	saved, err := h.catalog.SaveFlow(r.Context(), req.toDomain())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toFlowResponse(saved))
}

// GetFlow returns one flow with its rules and steps.
func (h *HTTPHandler) GetFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := h.catalog.GetFlow(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toFlowResponse(flow))
}

// ListFlows returns a module's flows.
func (h *HTTPHandler) ListFlows(w http.ResponseWriter, r *http.Request) {
	moduleID := r.URL.Query().Get("module_id")
	if moduleID == "" {
		h.writeError(w, errors.InvalidInput("module_id", "query parameter is required"))
		return
	}

	flows, err := h.catalog.ListFlows(r.Context(), moduleID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]flowResponse, 0, len(flows))
	for _, flow := range flows {
		out = append(out, toFlowResponse(flow))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"flows": out, "total": len(out)})
}

// DeleteFlow removes a flow template.
func (h *HTTPHandler) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteFlow(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func (h *HTTPHandler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID := r.Header.Get(userIDHeader)
	if actorID == "" {
		h.writeError(w, errors.New(errors.ErrCodeUnauthenticated, "X-User-ID header is required"))
		return "", false
	}
	return actorID, true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	h.writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    string(code),
			"message": errors.Message(err),
		},
	})
}

// statusFor maps error codes to HTTP statuses. Flow and approver
// configuration problems surface as 422 so callers can tell a broken
// template from bad input.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case errors.ErrCodeUnauthorized:
		return http.StatusForbidden
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeAlreadyDecided, errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodeFlowNotFound, errors.ErrCodeEmptyFlow, errors.ErrCodeInvalidFlow,
		errors.ErrCodeInvalidApprover, errors.ErrCodeNoSuperior, errors.ErrCodeNoDepartmentHead:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
