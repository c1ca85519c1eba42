package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"guard-patrol-logistics-system/api/internal/logistics"
	"guard-patrol-logistics-system/api/internal/models"
	"guard-patrol-logistics-system/shared/authx"
	"guard-patrol-logistics-system/shared/httpx"
)

func (h *Handlers) handleListStockItems(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	items, err := h.Stock.ListItems(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, stockItemView(item))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handlers) handleCreateStockItem(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	var req struct {
		Name          string     `json:"name"`
		Category      string     `json:"category"`
		Description   string     `json:"description"`
		Total         int64      `json:"total"`
		Minimum       int64      `json:"minimum"`
		RelatedPostID *uuid.UUID `json:"related_post_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" || req.Total < 0 || req.Minimum < 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "name is required; total and minimum must be non-negative", nil)
		return
	}

	item, err := h.Stock.CreateItem(r.Context(), models.StockItem{
		Name:          strings.TrimSpace(req.Name),
		Category:      strings.TrimSpace(req.Category),
		Description:   strings.TrimSpace(req.Description),
		Total:         req.Total,
		Available:     req.Total,
		Minimum:       req.Minimum,
		RelatedPostID: req.RelatedPostID,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, stockItemView(item))
}

// handleUpdateStockItem edits descriptive fields only. Availability is
// writable solely through the ledger (adjust, delivery, return).
func (h *Handlers) handleUpdateStockItem(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	itemID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	existing, err := h.Stock.GetItemByID(r.Context(), itemID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var req struct {
		Name          *string    `json:"name"`
		Category      *string    `json:"category"`
		Description   *string    `json:"description"`
		Minimum       *int64     `json:"minimum"`
		RelatedPostID *uuid.UUID `json:"related_post_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		existing.Category = strings.TrimSpace(*req.Category)
	}
	if req.Description != nil {
		existing.Description = strings.TrimSpace(*req.Description)
	}
	if req.Minimum != nil {
		existing.Minimum = *req.Minimum
	}
	if req.RelatedPostID != nil {
		existing.RelatedPostID = req.RelatedPostID
	}

	item, err := h.Stock.UpdateItem(r.Context(), existing)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stockItemView(item))
}

func (h *Handlers) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	itemID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Delta  int64  `json:"delta"`
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	actor := ""
	if auth, ok := authx.FromContext(r.Context()); ok {
		actor = auth.Name
		if actor == "" {
			actor = auth.Subject
		}
	}

	item, err := h.Logistics.AdjustStock(r.Context(), itemID, req.Delta, strings.TrimSpace(req.Reason), actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stockItemView(item))
}

func (h *Handlers) handleListMovements(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	itemID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	movements, err := h.Stock.ListMovements(r.Context(), itemID, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementView(m))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"movements": out})
}

func (h *Handlers) handleListLowStock(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	items, err := h.Stock.ListLowStock(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, stockItemView(item))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handlers) handleRegisterDelivery(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	var req struct {
		GuardID   uuid.UUID  `json:"guard_id"`
		PostID    *uuid.UUID `json:"post_id"`
		ItemID    uuid.UUID  `json:"item_id"`
		Quantity  int64      `json:"quantity"`
		Receiver  string     `json:"receiver"`
		Notes     string     `json:"notes"`
		Signature string     `json:"signature"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.GuardID == uuid.Nil || req.ItemID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "guard_id and item_id are required", nil)
		return
	}

	var signature []byte
	if req.Signature != "" {
		var err error
		signature, err = base64.StdEncoding.DecodeString(req.Signature)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "signature must be base64", nil)
			return
		}
	}

	issuedBy := ""
	if auth, ok := authx.FromContext(r.Context()); ok {
		issuedBy = auth.Name
		if issuedBy == "" {
			issuedBy = auth.Subject
		}
	}

	delivery, err := h.Logistics.RegisterDelivery(r.Context(), logistics.DeliveryInput{
		GuardID:   req.GuardID,
		PostID:    req.PostID,
		ItemID:    req.ItemID,
		Quantity:  req.Quantity,
		IssuedBy:  issuedBy,
		Receiver:  strings.TrimSpace(req.Receiver),
		Notes:     strings.TrimSpace(req.Notes),
		Signature: signature,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, deliveryView(delivery))
}

func (h *Handlers) handleRegisterReturn(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	deliveryID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Receiver string `json:"receiver"`
		Note     string `json:"note"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	receiver := strings.TrimSpace(req.Receiver)
	if receiver == "" {
		if auth, ok := authx.FromContext(r.Context()); ok {
			receiver = auth.Name
		}
	}

	delivery, err := h.Logistics.RegisterReturn(r.Context(), deliveryID, receiver, strings.TrimSpace(req.Note))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, deliveryView(delivery))
}

func (h *Handlers) handleMarkNotReceived(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	deliveryID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Note string `json:"note"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	delivery, err := h.Logistics.MarkNotReceived(r.Context(), deliveryID, strings.TrimSpace(req.Note))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, deliveryView(delivery))
}

func (h *Handlers) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}
	deliveryID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	delivery, err := h.Deliveries.GetDeliveryByID(r.Context(), deliveryID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, deliveryView(delivery))
}

func (h *Handlers) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, RoleAdmin) {
		return
	}

	var (
		deliveries []models.DeliveryRecord
		err        error
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("guard_id")); raw != "" {
		guardID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid guard_id", nil)
			return
		}
		deliveries, err = h.Deliveries.ListDeliveriesByGuard(r.Context(), guardID, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	} else if raw := strings.TrimSpace(r.URL.Query().Get("item_id")); raw != "" {
		itemID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid item_id", nil)
			return
		}
		deliveries, err = h.Deliveries.ListDeliveriesByItem(r.Context(), itemID, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	} else {
		deliveries, err = h.Deliveries.ListDeliveries(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"deliveries": deliveryViews(deliveries)})
}
