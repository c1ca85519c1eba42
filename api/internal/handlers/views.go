package handlers

import (
	"guard-patrol-logistics-system/api/internal/models"
)

func guardView(g models.Guard) map[string]any {
	return map[string]any{
		"guard_id":   g.GuardID,
		"full_name":  g.FullName,
		"call_sign":  g.CallSign,
		"email":      g.Email,
		"phone":      g.Phone,
		"role":       g.Role,
		"status":     g.Status,
		"created_at": g.CreatedAt,
	}
}

func postView(p models.Post) map[string]any {
	return map[string]any{
		"post_id":     p.PostID,
		"name":        p.Name,
		"description": p.Description,
		"latitude":    p.Latitude,
		"longitude":   p.Longitude,
		"radius_m":    p.RadiusM,
		"scan_token":  p.ScanToken,
		"manual_code": p.ManualCode,
		"qr_url":      p.QRURL,
		"created_at":  p.CreatedAt,
	}
}

func sessionView(s models.PatrolSession) map[string]any {
	return map[string]any{
		"session_id":      s.SessionID,
		"guard_id":        s.GuardID,
		"guard_name":      s.GuardName,
		"post_id":         s.PostID,
		"post_name":       s.PostName,
		"status":          s.Status,
		"start_latitude":  s.StartLatitude,
		"start_longitude": s.StartLongitude,
		"started_at":      s.StartedAt,
		"ended_at":        s.EndedAt,
		"photos":          s.Photos,
	}
}

func stockItemView(item models.StockItem) map[string]any {
	return map[string]any{
		"item_id":         item.ItemID,
		"name":            item.Name,
		"category":        item.Category,
		"description":     item.Description,
		"total":           item.Total,
		"available":       item.Available,
		"minimum":         item.Minimum,
		"related_post_id": item.RelatedPostID,
		"created_at":      item.CreatedAt,
		"updated_at":      item.UpdatedAt,
	}
}

func movementView(m models.StockMovement) map[string]any {
	return map[string]any{
		"movement_id": m.MovementID,
		"item_id":     m.ItemID,
		"delta":       m.Delta,
		"available":   m.Available,
		"reason":      m.Reason,
		"actor_name":  m.ActorName,
		"occurred_at": m.OccurredAt,
	}
}

func deliveryView(d models.DeliveryRecord) map[string]any {
	return map[string]any{
		"delivery_id":     d.DeliveryID,
		"guard_id":        d.GuardID,
		"guard_name":      d.GuardName,
		"guard_call_sign": d.GuardCallSign,
		"post_id":         d.PostID,
		"post_name":       d.PostName,
		"item_id":         d.ItemID,
		"item_name":       d.ItemName,
		"quantity":        d.Quantity,
		"status":          d.Status,
		"issued_by":       d.IssuedBy,
		"receiver":        d.Receiver,
		"signature_url":   d.SignatureURL,
		"notes":           d.Notes,
		"delivered_at":    d.DeliveredAt,
		"returned_at":     d.ReturnedAt,
	}
}

func sessionViews(sessions []models.PatrolSession) []map[string]any {
	out := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView(s))
	}
	return out
}

func deliveryViews(deliveries []models.DeliveryRecord) []map[string]any {
	out := make([]map[string]any, 0, len(deliveries))
	for _, d := range deliveries {
		out = append(out, deliveryView(d))
	}
	return out
}
