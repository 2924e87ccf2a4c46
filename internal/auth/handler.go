// Package auth exposes the login, logout and session inspection endpoints.
package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/rentops/rentops/internal/audit"
	"github.com/rentops/rentops/internal/platform/httpx"
	"github.com/rentops/rentops/internal/session"
	"github.com/rentops/rentops/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	sessions  *session.Manager
	csrf      *shared.CSRFManager
	audit     *audit.Service
	validator *validator.Validate
	ttl       time.Duration
	secure    bool
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, sessions *session.Manager, csrf *shared.CSRFManager, auditSvc *audit.Service, ttl time.Duration, secureCookie bool) *Handler {
	return &Handler{
		logger:    logger,
		sessions:  sessions,
		csrf:      csrf,
		audit:     auditSvc,
		validator: validator.New(),
		ttl:       ttl,
		secure:    secureCookie,
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).
		Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/session", h.showSession)
}

type loginRequest struct {
	Kind       string `json:"kind" validate:"required,oneof=owner role_bound"`
	Login      string `json:"login" validate:"required_if=Kind role_bound"`
	Credential string `json:"credential" validate:"required"`
}

type sessionResponse struct {
	Kind            session.Kind `json:"kind"`
	IdentityID      string       `json:"identity_id"`
	DisplayName     string       `json:"display_name"`
	RoleName        string       `json:"role_name,omitempty"`
	IsAdmin         bool         `json:"is_admin"`
	Grants          []string     `json:"grants"`
	LastValidatedAt time.Time    `json:"last_validated_at"`
	CanRevalidate   bool         `json:"can_revalidate"`
	CSRFToken       string       `json:"csrf_token"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	store := h.sessions.Create()
	var err error
	switch req.Kind {
	case "owner":
		err = store.LoginOwner(r.Context(), req.Credential)
	default:
		err = store.LoginRoleBound(r.Context(), req.Login, req.Credential)
	}
	if err != nil {
		h.sessions.Destroy(r.Context(), store.ID())
		var denied *session.DeniedError
		if errors.As(err, &denied) {
			// The validator's rejection message is surfaced verbatim.
			httpx.Problem(w, http.StatusUnauthorized, "Login Failed", denied.Message)
			return
		}
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Login Failed", shared.ErrInvalidCredentials.Error())
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Validator Unreachable", "could not reach the identity validator")
		return
	}

	snap, _ := store.Current()
	h.setCookie(w, store.ID())
	h.record(r, snap, "login", store.ID())
	httpx.JSON(w, http.StatusOK, h.sessionResponse(store.ID(), snap))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	store := session.StoreFromContext(r.Context())
	if store != nil {
		if snap, ok := store.Current(); ok {
			h.record(r, snap, "logout", store.ID())
		}
		h.sessions.Destroy(r.Context(), store.ID())
	}
	h.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) showSession(w http.ResponseWriter, r *http.Request) {
	store := session.StoreFromContext(r.Context())
	if store == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	snap, ok := store.Current()
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, h.sessionResponse(store.ID(), snap))
}

func (h *Handler) sessionResponse(id string, snap session.Snapshot) sessionResponse {
	return sessionResponse{
		Kind:            snap.Kind,
		IdentityID:      snap.IdentityID,
		DisplayName:     snap.DisplayName,
		RoleName:        snap.RoleName,
		IsAdmin:         snap.IsAdmin,
		Grants:          snap.Grants,
		LastValidatedAt: snap.LastValidatedAt,
		CanRevalidate:   snap.CanRevalidate,
		CSRFToken:       h.csrf.Token(id),
	}
}

func (h *Handler) record(r *http.Request, snap session.Snapshot, action, sessionID string) {
	if h.audit == nil {
		return
	}
	role := snap.RoleName
	if role == "" {
		role = string(snap.Kind)
	}
	entry := audit.Entry{
		ActorID:    snap.IdentityID,
		ActorName:  snap.DisplayName,
		ActorRole:  role,
		Module:     "auth",
		Action:     action,
		TargetType: "session",
		TargetID:   sessionID,
		IPAddress:  r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
	if err := h.audit.Record(r.Context(), entry); err != nil {
		h.logger.Warn("record auth event", slog.Any("error", err))
	}
}

func (h *Handler) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     shared.SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(h.ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     shared.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
