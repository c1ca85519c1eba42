package handlers

import (
	"crypto/rand"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"guard-patrol-logistics-system/api/internal/models"
	"guard-patrol-logistics-system/api/internal/repos"
	"guard-patrol-logistics-system/shared/httpx"
	"guard-patrol-logistics-system/shared/workflow"
)

func (h *Handlers) handleListGuards(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	guards, err := h.Guards.ListGuards(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(guards))
	for _, g := range guards {
		out = append(out, guardView(g))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"guards": out})
}

func (h *Handlers) handleCreateGuard(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	var req struct {
		FullName string `json:"full_name"`
		CallSign string `json:"call_sign"`
		Email    string `json:"email"`
		Phone    string `json:"phone"`
		Role     string `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.FullName) == "" || strings.TrimSpace(req.CallSign) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "full_name and call_sign are required", nil)
		return
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = RoleGuard
	}

	guard, err := h.Guards.UpsertGuard(r.Context(), models.Guard{
		FullName: strings.TrimSpace(req.FullName),
		CallSign: strings.TrimSpace(req.CallSign),
		Email:    strings.TrimSpace(req.Email),
		Phone:    strings.TrimSpace(req.Phone),
		Role:     role,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, guardView(guard))
}

func (h *Handlers) handleUpdateGuard(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	guardID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	existing, err := h.Guards.GetGuardByID(r.Context(), guardID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var req struct {
		FullName *string `json:"full_name"`
		Email    *string `json:"email"`
		Phone    *string `json:"phone"`
		Role     *string `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FullName != nil {
		existing.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Email != nil {
		existing.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		existing.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Role != nil {
		existing.Role = strings.TrimSpace(*req.Role)
	}

	guard, err := h.Guards.UpsertGuard(r.Context(), existing)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, guardView(guard))
}

// Deactivation blocks new sessions but does not terminate one already
// in flight.
func (h *Handlers) handleSetGuardStatus(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	guardID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	status := workflow.NormalizeStatus(req.Status)
	if status != repos.GuardStatusActive && status != repos.GuardStatusInactive {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "status must be active or inactive", nil)
		return
	}

	guard, err := h.Guards.SetGuardStatus(r.Context(), guardID, status)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, guardView(guard))
}

func (h *Handlers) handleListPosts(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	posts, err := h.Posts.ListPosts(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
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

func (h *Handlers) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	var req struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Latitude    *float64 `json:"latitude"`
		Longitude   *float64 `json:"longitude"`
		RadiusM     float64  `json:"radius_m"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" || req.Latitude == nil || req.Longitude == nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "name, latitude and longitude are required", nil)
		return
	}

	token := uuid.New().String()
	post, err := h.Posts.CreatePost(r.Context(), models.Post{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Latitude:    *req.Latitude,
		Longitude:   *req.Longitude,
		RadiusM:     req.RadiusM,
		ScanToken:   token,
		ManualCode:  newManualCode(),
		QRURL:       qrURL(token),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, postView(post))
}

func (h *Handlers) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	postID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	existing, err := h.Posts.GetPostByID(r.Context(), postID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var req struct {
		Name        *string  `json:"name"`
		Description *string  `json:"description"`
		Latitude    *float64 `json:"latitude"`
		Longitude   *float64 `json:"longitude"`
		RadiusM     *float64 `json:"radius_m"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		existing.Description = strings.TrimSpace(*req.Description)
	}
	if req.Latitude != nil {
		existing.Latitude = *req.Latitude
	}
	if req.Longitude != nil {
		existing.Longitude = *req.Longitude
	}
	if req.RadiusM != nil {
		existing.RadiusM = *req.RadiusM
	}

	post, err := h.Posts.UpdatePost(r.Context(), existing)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if h.PostCache != nil {
		h.PostCache.Invalidate(r.Context(), post.ScanToken)
		h.PostCache.Invalidate(r.Context(), post.ManualCode)
	}
	httpx.WriteJSON(w, http.StatusOK, postView(post))
}

func (h *Handlers) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	postID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	existing, err := h.Posts.GetPostByID(r.Context(), postID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Posts.DeletePost(r.Context(), postID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if h.PostCache != nil {
		h.PostCache.Invalidate(r.Context(), existing.ScanToken)
		h.PostCache.Invalidate(r.Context(), existing.ManualCode)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleSetAuthorizations(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	postID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		GuardIDs []uuid.UUID `json:"guard_ids"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.Posts.SetAuthorizations(r.Context(), postID, req.GuardIDs); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	grants, err := h.Posts.ListAuthorizations(r.Context(), postID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"authorizations": authorizationViews(grants)})
}

func (h *Handlers) handleListAuthorizations(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	postID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	grants, err := h.Posts.ListAuthorizations(r.Context(), postID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"authorizations": authorizationViews(grants)})
}

func authorizationViews(grants []models.PostAuthorization) []map[string]any {
	out := make([]map[string]any, 0, len(grants))
	for _, grant := range grants {
		out = append(out, map[string]any{
			"post_id":    grant.PostID,
			"guard_id":   grant.GuardID,
			"guard_name": grant.GuardName,
			"granted_at": grant.GrantedAt,
		})
	}
	return out
}

func qrURL(token string) string {
	return "https://api.qrserver.com/v1/create-qr-code/?size=240x240&data=" + url.QueryEscape(token)
}

// newManualCode mints the short fallback code guards can type when the
// QR plate is unreadable.
func newManualCode() string {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return strings.ToUpper(uuid.New().String()[:6])
	}
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b[:])
}
