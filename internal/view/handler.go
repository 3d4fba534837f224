// Package view exposes the reconciled order state to the display layer over
// HTTP, plus an event stream that pushes every change.
package view

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/go-chi/chi/v5"

	"github.com/appetiteclub/cafesync/internal/credential"
	"github.com/appetiteclub/cafesync/internal/navigation"
	"github.com/appetiteclub/cafesync/internal/orderapi"
	"github.com/appetiteclub/cafesync/internal/pipeline"
	"github.com/appetiteclub/cafesync/internal/reconcile"
	"github.com/appetiteclub/cafesync/internal/session"
	"github.com/appetiteclub/cafesync/pkg/enums/role"
)

// OrderState is the read side of the reconciliation core.
type OrderState interface {
	View() reconcile.View
	OnChange(fn func(reconcile.View))
}

// Refresher runs one poll cycle on demand.
type Refresher interface {
	RefreshNow(ctx context.Context) error
}

// SessionState is the read side of the session validator.
type SessionState interface {
	Status() session.Status
	FocusRegained()
	OnChange(fn func(session.Status))
}

// Sessions performs explicit login and logout.
type Sessions interface {
	Login(ctx context.Context, r role.Role, fields map[string]string) (*credential.Credentials, error)
	Logout(ctx context.Context, r role.Role) error
}

// CredentialReader reads the current credentials.
type CredentialReader interface {
	Get(ctx context.Context) (*credential.Credentials, error)
}

// Router is the navigation tracker as seen by the display layer.
type Router interface {
	navigation.Navigator
	Visit(path string)
	OnRedirect(fn func(path string))
}

// Deps wires the handler to the engine.
type Deps struct {
	Orders      OrderState
	Refresher   Refresher
	Session     SessionState
	Sessions    Sessions
	Credentials CredentialReader
	Router      Router
	Role        role.Role
}

type Handler struct {
	deps   Deps
	logger apt.Logger
	tlm    *telemetry.HTTP
	events *broadcaster
}

func NewHandler(deps Deps, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if !deps.Role.Valid() {
		deps.Role = role.Staff
	}

	h := &Handler{
		deps:   deps,
		logger: logger,
		tlm:    telemetry.NewHTTP(),
		events: newBroadcaster(logger),
	}
	h.observe()
	return h
}

// RegisterRoutes registers the display surface routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/orders", h.ListOrders)
	r.Get("/stats", h.GetStats)
	r.Get("/session", h.GetSession)
	r.Get("/events", h.ServeEvents)
	r.Post("/refresh", h.Refresh)
	r.Post("/focus", h.Focus)
	r.Post("/navigate", h.Navigate)
	r.Post("/login/{role}", h.Login)
	r.Post("/logout", h.Logout)
}

type statsResponse struct {
	Stats       interface{} `json:"stats"`
	ServerStats interface{} `json:"serverStats,omitempty"`
	Degraded    bool        `json:"degraded"`
}

type navigateRequest struct {
	Path string `json:"path"`
}

type loginResponse struct {
	Role     role.Role       `json:"role"`
	User     json.RawMessage `json:"user,omitempty"`
	LoggedAt interface{}     `json:"loggedAt,omitempty"`
}

// ListOrders handles GET /orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListOrders")
	defer finish()

	if h.deps.Orders == nil {
		apt.RespondError(w, http.StatusServiceUnavailable, "Orders not available")
		return
	}
	apt.RespondSuccess(w, h.deps.Orders.View())
}

// GetStats handles GET /stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetStats")
	defer finish()

	if h.deps.Orders == nil {
		apt.RespondError(w, http.StatusServiceUnavailable, "Orders not available")
		return
	}
	v := h.deps.Orders.View()
	resp := statsResponse{Stats: v.Stats, Degraded: v.Degraded}
	if v.ServerStats != nil {
		resp.ServerStats = v.ServerStats
	}
	apt.RespondSuccess(w, resp)
}

// GetSession handles GET /session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetSession")
	defer finish()

	if h.deps.Session == nil {
		apt.RespondError(w, http.StatusServiceUnavailable, "Session not available")
		return
	}
	apt.RespondSuccess(w, h.deps.Session.Status())
}

// Refresh handles POST /refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Refresh")
	defer finish()

	log := h.log(r)

	if h.deps.Refresher == nil || h.deps.Orders == nil {
		apt.RespondError(w, http.StatusServiceUnavailable, "Refresh not available")
		return
	}

	err := h.deps.Refresher.RefreshNow(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, orderapi.ErrAllSourcesFailed):
		log.Info("manual refresh found no order source", "error", err)
	default:
		log.Error("manual refresh failed", "error", err)
		apt.RespondError(w, http.StatusBadGateway, "Could not refresh orders")
		return
	}

	apt.RespondSuccess(w, h.deps.Orders.View())
}

// Focus handles POST /focus
func (h *Handler) Focus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Session != nil {
		h.deps.Session.FocusRegained()
	}
	apt.Respond(w, http.StatusAccepted, map[string]bool{"queued": true}, nil)
}

// Navigate handles POST /navigate
func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	req.Path = strings.TrimSpace(req.Path)
	if !strings.HasPrefix(req.Path, "/") {
		apt.RespondError(w, http.StatusBadRequest, "Path must be absolute")
		return
	}
	if h.deps.Router != nil {
		h.deps.Router.Visit(req.Path)
	}
	apt.RespondSuccess(w, req)
}

// Login handles POST /login/{role}
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Login")
	defer finish()

	log := h.log(r)

	rl := role.ByName(chi.URLParam(r, "role"))
	if rl == nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid role")
		return
	}

	var fields map[string]string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if h.deps.Sessions == nil {
		apt.RespondError(w, http.StatusServiceUnavailable, "Login not available")
		return
	}

	creds, err := h.deps.Sessions.Login(r.Context(), *rl, fields)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrLoginRejected):
			apt.RespondError(w, http.StatusUnauthorized, strings.TrimPrefix(err.Error(), session.ErrLoginRejected.Error()+": "))
		case errors.Is(err, credential.ErrPersistence):
			log.Error("login could not be persisted", "error", err)
			apt.RespondError(w, http.StatusInternalServerError, "Could not store session")
		case errors.Is(err, pipeline.ErrNetwork):
			apt.RespondError(w, http.StatusBadGateway, "Server unreachable")
		default:
			log.Error("login failed", "error", err)
			apt.RespondError(w, http.StatusBadGateway, "Login failed")
		}
		return
	}

	if h.deps.Session != nil {
		h.deps.Session.FocusRegained()
	}

	resp := loginResponse{Role: *rl}
	if creds != nil {
		resp.User = creds.User
		resp.LoggedAt = creds.LoggedAt
	}
	apt.RespondSuccess(w, resp)
}

// Logout handles POST /logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Logout")
	defer finish()

	log := h.log(r)

	if h.deps.Sessions == nil {
		apt.RespondError(w, http.StatusServiceUnavailable, "Logout not available")
		return
	}

	current := h.currentRole(r.Context())
	if err := h.deps.Sessions.Logout(r.Context(), current); err != nil {
		log.Error("logout failed", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not clear session")
		return
	}

	if h.deps.Router != nil {
		h.deps.Router.Redirect(navigation.LoginPathFor("/" + current.Code()))
	}
	apt.Respond(w, http.StatusOK, map[string]string{"role": current.Code()}, nil)
}

func (h *Handler) currentRole(ctx context.Context) role.Role {
	if h.deps.Credentials != nil {
		creds, err := h.deps.Credentials.Get(ctx)
		if err == nil && creds != nil && creds.Role.Valid() {
			return creds.Role
		}
	}
	return h.deps.Role
}

func (h *Handler) log(req ...*http.Request) apt.Logger {
	logger := h.logger
	if len(req) > 0 && req[0] != nil {
		r := req[0]
		return logger.With(
			"request_id", apt.RequestIDFrom(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
		)
	}
	return logger
}
