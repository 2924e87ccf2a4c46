package accounts

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

// Handler wires HTTP endpoints for staff account management.
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

// MountRoutes registers account routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.RequireSession)
	r.With(h.guard.Require(permissions.ModuleEmployees, permissions.ActionView)).Group(func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
	r.With(h.guard.Require(permissions.ModuleEmployees, permissions.ActionCreate)).
		Post("/", h.create)
	r.With(h.guard.Require(permissions.ModuleEmployees, permissions.ActionUpdate)).Group(func(r chi.Router) {
		r.Put("/{id}", h.update)
		r.Post("/{id}/suspend", h.suspend)
		r.Post("/{id}/activate", h.activate)
	})
	// Override edits change effective permissions and need the settings grant
	// on top of an employee grant.
	r.With(h.guard.Require(permissions.ModuleSettings, permissions.ActionManageSettings)).
		Put("/{id}/overrides", h.setOverrides)
}

type createPayload struct {
	Login       string `json:"login" validate:"required,min=3,max=80"`
	DisplayName string `json:"display_name" validate:"required,min=2,max=120"`
	Password    string `json:"password" validate:"required,min=8"`
	RoleID      int64  `json:"role_id"`
	IsAdmin     bool   `json:"is_admin"`
}

type updatePayload struct {
	DisplayName string `json:"display_name" validate:"required,min=2,max=120"`
	RoleID      int64  `json:"role_id"`
	IsAdmin     bool   `json:"is_admin"`
}

type accountResponse struct {
	ID          int64              `json:"id"`
	Login       string             `json:"login"`
	DisplayName string             `json:"display_name"`
	RoleID      int64              `json:"role_id,omitempty"`
	RoleName    string             `json:"role_name,omitempty"`
	IsAdmin     bool               `json:"is_admin"`
	Active      bool               `json:"active"`
	Overrides   permissions.Matrix `json:"overrides,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func toResponse(account Account) accountResponse {
	return accountResponse{
		ID:          account.ID,
		Login:       account.Login,
		DisplayName: account.DisplayName,
		RoleID:      account.RoleID,
		RoleName:    account.RoleName,
		IsAdmin:     account.IsAdmin,
		Active:      account.Active,
		Overrides:   account.Overrides,
		CreatedAt:   account.CreatedAt,
		UpdatedAt:   account.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]accountResponse, 0, len(list))
	for _, account := range list {
		out = append(out, toResponse(account))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	account, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(account))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.Create(r.Context(), payload.Login, payload.DisplayName, payload.Password, payload.RoleID, payload.IsAdmin)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "create", account, audit.Diff(nil, profileFields(account)))
	httpx.JSON(w, http.StatusCreated, toResponse(account))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var payload updatePayload
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
	account, err := h.service.Update(r.Context(), id, payload.DisplayName, payload.RoleID, payload.IsAdmin)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "update", account, audit.Diff(profileFields(before), profileFields(account)))
	httpx.JSON(w, http.StatusOK, toResponse(account))
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	account, err := h.service.Suspend(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "suspend", account, audit.DiffResult{Changes: []string{"active: true → false"}})
	httpx.JSON(w, http.StatusOK, toResponse(account))
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	account, err := h.service.Activate(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "activate", account, audit.DiffResult{Changes: []string{"active: false → true"}})
	httpx.JSON(w, http.StatusOK, toResponse(account))
}

func (h *Handler) setOverrides(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Overrides permissions.Matrix `json:"overrides"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	before, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.SetOverrides(r.Context(), id, payload.Overrides)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.record(r, "permission_change", account,
		audit.Diff(overrideFields(before), overrideFields(account)))
	httpx.JSON(w, http.StatusOK, toResponse(account))
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "account id must be numeric")
		return 0, false
	}
	return id, true
}

func profileFields(account Account) map[string]any {
	return map[string]any{
		"login":        account.Login,
		"display_name": account.DisplayName,
		"role_id":      account.RoleID,
		"is_admin":     account.IsAdmin,
		// Always present so an accidental hash leak in a future field shuffle
		// still comes out masked.
		"password_hash": account.PasswordHash,
	}
}

func overrideFields(account Account) map[string]any {
	fields := make(map[string]any, len(account.Overrides))
	for module, row := range account.Overrides {
		for action, granted := range row {
			fields[permissions.Token(module, action)] = granted
		}
	}
	return fields
}

func (h *Handler) record(r *http.Request, action string, account Account, diff audit.DiffResult) {
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
		Module:     permissions.ModuleEmployees,
		Action:     action,
		TargetType: "account",
		TargetID:   strconv.FormatInt(account.ID, 10),
		Details:    audit.EncodeChanges(diff),
		IPAddress:  r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
	if err := h.audit.Record(r.Context(), entry); err != nil {
		h.logger.Warn("record account change", slog.Any("error", err))
	}
}
