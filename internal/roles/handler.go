package roles

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rentops/rentops/internal/audit"
	"github.com/rentops/rentops/internal/guard"
	"github.com/rentops/rentops/internal/permissions"
	"github.com/rentops/rentops/internal/platform/httpx"
	"github.com/rentops/rentops/internal/session"
)

// Handler wires HTTP endpoints for role management and the matrix editor.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	audit     *audit.Service
	guard     guard.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, auditSvc *audit.Service, g guard.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		audit:     auditSvc,
		guard:     g,
		validator: validator.New(),
	}
}

// MountRoutes registers role routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.RequireSession)
	r.With(h.guard.Require(permissions.ModuleSettings, permissions.ActionView)).Group(func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Post("/preview", h.preview)
	})
	r.With(h.guard.Require(permissions.ModuleSettings, permissions.ActionManageSettings)).Group(func(r chi.Router) {
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.remove)
	})
}

type rolePayload struct {
	Name        string             `json:"name" validate:"required,min=2,max=80"`
	Description string             `json:"description" validate:"max=500"`
	Rules       []permissions.Rule `json:"rules"`
}

type roleResponse struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Rules       []permissions.Rule `json:"rules"`
	Matrix      permissions.Matrix `json:"matrix"`
	IsAdmin     bool               `json:"is_admin"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func toResponse(role Role) roleResponse {
	matrix := role.Matrix()
	return roleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		Rules:       role.Rules,
		Matrix:      matrix,
		IsAdmin:     permissions.IsAdmin(matrix),
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(list))
	for _, role := range list {
		out = append(out, toResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "role id must be numeric")
		return
	}
	role, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(role))
}

// preview resolves a rule list without saving, for live matrix editing.
func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Rules []permissions.Rule `json:"rules"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	view := h.service.MatrixPreview(payload.Rules)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"matrix":     view.Matrix,
		"is_admin":   view.IsAdmin,
		"violations": permissions.DependencyViolations(view.Matrix),
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload rolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.Create(r.Context(), payload.Name, payload.Description, payload.Rules)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "permission_change", role, audit.Diff(nil, ruleFields(role)))
	httpx.JSON(w, http.StatusCreated, toResponse(role))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "role id must be numeric")
		return
	}
	var payload rolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	before, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.Update(r.Context(), id, payload.Name, payload.Description, payload.Rules)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "permission_change", role, audit.Diff(ruleFields(before), ruleFields(role)))
	httpx.JSON(w, http.StatusOK, toResponse(role))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "role id must be numeric")
		return
	}
	role, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "delete", role, audit.Diff(ruleFields(role), nil))
	w.WriteHeader(http.StatusNoContent)
}

func ruleFields(role Role) map[string]any {
	rules := make([]string, 0, len(role.Rules))
	for _, rule := range role.Rules {
		rules = append(rules, rule.String())
	}
	return map[string]any{
		"name":        role.Name,
		"description": role.Description,
		"rules":       rules,
	}
}

func (h *Handler) record(r *http.Request, action string, role Role, diff audit.DiffResult) {
	if h.audit == nil {
		return
	}
	store := session.StoreFromContext(r.Context())
	if store == nil {
		return
	}
	snap, ok := store.Current()
	if !ok {
		return
	}
	actorRole := snap.RoleName
	if actorRole == "" {
		actorRole = string(snap.Kind)
	}
	entry := audit.Entry{
		ActorID:    snap.IdentityID,
		ActorName:  snap.DisplayName,
		ActorRole:  actorRole,
		Module:     permissions.ModuleSettings,
		Action:     action,
		TargetType: "role",
		TargetID:   strconv.FormatInt(role.ID, 10),
		Details:    audit.EncodeChanges(diff),
		IPAddress:  r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
	if err := h.audit.Record(r.Context(), entry); err != nil {
		h.logger.Warn("record role change", slog.Any("error", err))
	}
}
