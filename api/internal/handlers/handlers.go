// Package handlers wires the HTTP API onto the patrol and logistics
// services. Route patterns use the 1.22 method-aware mux.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"guard-patrol-logistics-system/api/internal/logistics"
	"guard-patrol-logistics-system/api/internal/models"
	"guard-patrol-logistics-system/api/internal/patrol"
	"guard-patrol-logistics-system/api/internal/repos"
	"guard-patrol-logistics-system/shared/authx"
	"guard-patrol-logistics-system/shared/httpx"
	"guard-patrol-logistics-system/shared/logx"
)

const (
	RoleAdmin = "admin"
	RoleGuard = "guard"
)

const maxBodyBytes = 10 << 20

type Handlers struct {
	Log        logx.Logger
	Guards     *repos.GuardsRepo
	Posts      *repos.PostsRepo
	Sessions   *repos.SessionsRepo
	Stock      *repos.StockRepo
	Deliveries *repos.DeliveriesRepo
	Patrol     *patrol.Manager
	Logistics  *logistics.Service
	PostCache  *patrol.CachedPostRegistry
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/me", h.handleMe)

	mux.HandleFunc("POST /api/v1/patrol/sessions", h.handleStartSession)
	mux.HandleFunc("POST /api/v1/patrol/sessions/{id}/photos", h.handleAddEvidence)
	mux.HandleFunc("POST /api/v1/patrol/sessions/{id}/finish", h.handleFinishSession)
	mux.HandleFunc("GET /api/v1/patrol/sessions/active", h.handleListActiveSessions)
	mux.HandleFunc("GET /api/v1/patrol/sessions/{id}", h.handleGetSession)
	mux.HandleFunc("GET /api/v1/patrol/sessions", h.handleListSessions)
	mux.HandleFunc("GET /api/v1/patrol/posts", h.handleListMyPosts)

	mux.HandleFunc("GET /api/v1/guards", h.handleListGuards)
	mux.HandleFunc("POST /api/v1/guards", h.handleCreateGuard)
	mux.HandleFunc("PATCH /api/v1/guards/{id}", h.handleUpdateGuard)
	mux.HandleFunc("PUT /api/v1/guards/{id}/status", h.handleSetGuardStatus)

	mux.HandleFunc("GET /api/v1/posts", h.handleListPosts)
	mux.HandleFunc("POST /api/v1/posts", h.handleCreatePost)
	mux.HandleFunc("PATCH /api/v1/posts/{id}", h.handleUpdatePost)
	mux.HandleFunc("DELETE /api/v1/posts/{id}", h.handleDeletePost)
	mux.HandleFunc("PUT /api/v1/posts/{id}/authorizations", h.handleSetAuthorizations)
	mux.HandleFunc("GET /api/v1/posts/{id}/authorizations", h.handleListAuthorizations)

	mux.HandleFunc("GET /api/v1/stock/items", h.handleListStockItems)
	mux.HandleFunc("POST /api/v1/stock/items", h.handleCreateStockItem)
	mux.HandleFunc("PATCH /api/v1/stock/items/{id}", h.handleUpdateStockItem)
	mux.HandleFunc("POST /api/v1/stock/items/{id}/adjust", h.handleAdjustStock)
	mux.HandleFunc("GET /api/v1/stock/items/{id}/movements", h.handleListMovements)
	mux.HandleFunc("GET /api/v1/stock/low", h.handleListLowStock)

	mux.HandleFunc("POST /api/v1/deliveries", h.handleRegisterDelivery)
	mux.HandleFunc("POST /api/v1/deliveries/{id}/return", h.handleRegisterReturn)
	mux.HandleFunc("POST /api/v1/deliveries/{id}/dispute", h.handleMarkNotReceived)
	mux.HandleFunc("GET /api/v1/deliveries/{id}", h.handleGetDelivery)
	mux.HandleFunc("GET /api/v1/deliveries", h.handleListDeliveries)
}

func (h *Handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	auth, ok := authx.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
		return
	}
	resp := map[string]any{
		"subject": auth.Subject,
		"email":   auth.Email,
		"name":    auth.Name,
		"roles":   auth.Roles,
	}
	if guard, err := h.Guards.GetGuardBySubject(r.Context(), auth.Subject); err == nil {
		resp["guard"] = guardView(guard)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// currentGuard maps the verified token subject onto the guard registry.
func (h *Handlers) currentGuard(r *http.Request) (models.Guard, bool) {
	auth, ok := authx.FromContext(r.Context())
	if !ok {
		return models.Guard{}, false
	}
	guard, err := h.Guards.GetGuardBySubject(r.Context(), auth.Subject)
	if err != nil && auth.Email != "" {
		guard, err = h.Guards.GetGuardBySubject(r.Context(), auth.Email)
	}
	if err != nil {
		return models.Guard{}, false
	}
	return guard, true
}

func requireRole(w http.ResponseWriter, r *http.Request, role string) bool {
	auth, ok := authx.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
		return false
	}
	for _, have := range auth.Roles {
		if strings.EqualFold(have, role) || strings.EqualFold(have, RoleAdmin) {
			return true
		}
	}
	httpx.WriteError(w, r, http.StatusForbidden, "PERMISSION_DENIED", "missing role: "+role, nil)
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "failed to read body", nil)
		return false
	}
	if err := json.Unmarshal(body, dest); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid json body", nil)
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(r.PathValue(name)))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// writeDomainError maps service and repo sentinels onto the error
// envelope. Anything unmapped is an internal error.
func (h *Handlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var oor *patrol.OutOfRangeError
	switch {
	case errors.As(err, &oor):
		httpx.WriteError(w, r, http.StatusUnprocessableEntity, "OUT_OF_RANGE", "check-in outside post radius", map[string]any{
			"distance_m": oor.DistanceM,
			"radius_m":   oor.RadiusM,
		})
	case errors.Is(err, patrol.ErrUnknownPost):
		httpx.WriteError(w, r, http.StatusNotFound, "UNKNOWN_POST", "no post matches the scanned token", nil)
	case errors.Is(err, patrol.ErrNotAuthorized):
		httpx.WriteError(w, r, http.StatusForbidden, "NOT_AUTHORIZED", "guard is not authorized for this post", nil)
	case errors.Is(err, patrol.ErrGuardInactive):
		httpx.WriteError(w, r, http.StatusForbidden, "GUARD_INACTIVE", "guard is not active", nil)
	case errors.Is(err, patrol.ErrLocationUnavailable):
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "LOCATION_UNAVAILABLE", "device location unavailable", nil)
	case errors.Is(err, patrol.ErrNotSessionOwner):
		httpx.WriteError(w, r, http.StatusForbidden, "NOT_AUTHORIZED", "session belongs to another guard", nil)
	case errors.Is(err, patrol.ErrEvidenceTooLarge):
		httpx.WriteError(w, r, http.StatusRequestEntityTooLarge, "EVIDENCE_TOO_LARGE", "evidence photo exceeds size limit", nil)
	case errors.Is(err, repos.ErrSessionAlreadyActive):
		httpx.WriteError(w, r, http.StatusConflict, "SESSION_ALREADY_ACTIVE", "guard already has an active patrol session", nil)
	case errors.Is(err, repos.ErrSessionNotActive):
		httpx.WriteError(w, r, http.StatusConflict, "SESSION_NOT_ACTIVE", "patrol session is not active", nil)
	case errors.Is(err, repos.ErrInsufficientStock):
		httpx.WriteError(w, r, http.StatusConflict, "INSUFFICIENT_STOCK", "not enough stock for requested quantity", nil)
	case errors.Is(err, repos.ErrInvalidReturnState):
		httpx.WriteError(w, r, http.StatusConflict, "INVALID_RETURN_STATE", "delivery is not in a returnable state", nil)
	case errors.Is(err, repos.ErrStockItemNotFound), errors.Is(err, repos.ErrDeliveryNotFound), errors.Is(err, pgx.ErrNoRows):
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
	case errors.Is(err, logistics.ErrInvalidQuantity), errors.Is(err, logistics.ErrZeroDelta):
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
	default:
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", nil)
	}
}
