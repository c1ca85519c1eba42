package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"guard-patrol-logistics-system/api/internal/models"
	"guard-patrol-logistics-system/api/internal/patrol"
	"guard-patrol-logistics-system/shared/geo"
	"guard-patrol-logistics-system/shared/httpx"
)

// requestFix backs PositioningSource with the device fix submitted in
// the check-in request body. Age is zero by construction.
type requestFix struct {
	latitude  float64
	longitude float64
}

func (f requestFix) CurrentFix(context.Context) (patrol.Fix, error) {
	return patrol.Fix{
		Coordinates: geo.Coordinates{Latitude: f.latitude, Longitude: f.longitude},
		CapturedAt:  time.Now().UTC(),
	}, nil
}

func (h *Handlers) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleGuard) {
		return
	}
	guard, ok := h.currentGuard(r)
	if !ok {
		httpx.WriteError(w, r, http.StatusForbidden, "GUARD_INACTIVE", "no guard registered for this account", nil)
		return
	}

	var req struct {
		Token     string   `json:"token"`
		Latitude  *float64 `json:"lat"`
		Longitude *float64 `json:"lon"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "token is required", nil)
		return
	}

	var src patrol.PositioningSource
	if req.Latitude != nil && req.Longitude != nil {
		src = requestFix{latitude: *req.Latitude, longitude: *req.Longitude}
	}

	session, err := h.Patrol.StartSession(r.Context(), guard.GuardID, strings.TrimSpace(req.Token), src)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, sessionView(session))
}

func (h *Handlers) handleAddEvidence(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleGuard) {
		return
	}
	guard, ok := h.currentGuard(r)
	if !ok {
		httpx.WriteError(w, r, http.StatusForbidden, "GUARD_INACTIVE", "no guard registered for this account", nil)
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Photo string `json:"photo"`
		Ext   string `json:"ext"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	photo, err := base64.StdEncoding.DecodeString(req.Photo)
	if err != nil || len(photo) == 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "photo must be non-empty base64", nil)
		return
	}

	session, err := h.Patrol.AddEvidence(r.Context(), sessionID, guard.GuardID, photo, strings.TrimSpace(req.Ext))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"url": session.Photos[len(session.Photos)-1],
		"seq": len(session.Photos) - 1,
	})
}

func (h *Handlers) handleFinishSession(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleGuard) {
		return
	}
	guard, ok := h.currentGuard(r)
	if !ok {
		httpx.WriteError(w, r, http.StatusForbidden, "GUARD_INACTIVE", "no guard registered for this account", nil)
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	session, err := h.Patrol.FinishSession(r.Context(), sessionID, guard.GuardID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionView(session))
}

func (h *Handlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleGuard) {
		return
	}
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	session, err := h.Sessions.GetSessionByID(r.Context(), sessionID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionView(session))
}

func (h *Handlers) handleListActiveSessions(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleGuard) {
		return
	}
	sessions, err := h.Sessions.ListActiveSessions(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessionViews(sessions)})
}

func (h *Handlers) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleGuard) {
		return
	}

	var (
		sessions []models.PatrolSession
		err      error
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("guard_id")); raw != "" {
		guardID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid guard_id", nil)
			return
		}
		sessions, err = h.Sessions.ListSessionsByGuard(r.Context(), guardID, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	} else if raw := strings.TrimSpace(r.URL.Query().Get("post_id")); raw != "" {
		postID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid post_id", nil)
			return
		}
		sessions, err = h.Sessions.ListSessionsByPost(r.Context(), postID, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	} else {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "guard_id or post_id is required", nil)
		return
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessionViews(sessions)})
}

// handleListMyPosts returns the posts the calling guard may check in
// at, the list the mobile client shows before scanning.
func (h *Handlers) handleListMyPosts(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleGuard) {
		return
	}
	guard, ok := h.currentGuard(r)
	if !ok {
		httpx.WriteError(w, r, http.StatusForbidden, "GUARD_INACTIVE", "no guard registered for this account", nil)
		return
	}
	posts, err := h.Posts.ListAuthorizedPosts(r.Context(), guard.GuardID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		out = append(out, postView(p))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"posts": out})
}
