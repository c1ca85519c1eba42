// Package logistics implements the material stock ledger and the
// delivery and return workflows built on top of it. Every stock change
// goes through a signed delta that can never drive availability
// negative or above the registered total.
package logistics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"guard-patrol-logistics-system/api/internal/models"
	"guard-patrol-logistics-system/api/internal/repos"
	"guard-patrol-logistics-system/shared/blobx"
	"guard-patrol-logistics-system/shared/events"
	"guard-patrol-logistics-system/shared/logx"
	"guard-patrol-logistics-system/shared/metricsx"
	"guard-patrol-logistics-system/shared/workflow"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrZeroDelta       = errors.New("delta must be non-zero")
)

type StockStore interface {
	GetItemByID(ctx context.Context, itemID uuid.UUID) (models.StockItem, error)
	Adjust(ctx context.Context, itemID uuid.UUID, delta int64, reason string, actorName string, outboxEvent models.OutboxEvent) (models.StockItem, error)
}

type DeliveryStore interface {
	CommitDelivery(ctx context.Context, delivery models.DeliveryRecord, outboxEvent models.OutboxEvent) (models.DeliveryRecord, error)
	RegisterReturn(ctx context.Context, deliveryID uuid.UUID, receiver string, notes string, outboxEvent models.OutboxEvent) (models.DeliveryRecord, error)
	MarkNotReceived(ctx context.Context, deliveryID uuid.UUID, notes string) (models.DeliveryRecord, error)
	GetDeliveryByID(ctx context.Context, deliveryID uuid.UUID) (models.DeliveryRecord, error)
}

type GuardRegistry interface {
	GetGuardByID(ctx context.Context, guardID uuid.UUID) (models.Guard, error)
}

type PostRegistry interface {
	GetPostByID(ctx context.Context, postID uuid.UUID) (models.Post, error)
}

type Service struct {
	stock      StockStore
	deliveries DeliveryStore
	guards     GuardRegistry
	posts      PostRegistry
	blobs      blobx.Store
	log        logx.Logger
}

func NewService(stock StockStore, deliveries DeliveryStore, guards GuardRegistry, posts PostRegistry, blobs blobx.Store, log logx.Logger) *Service {
	return &Service{stock: stock, deliveries: deliveries, guards: guards, posts: posts, blobs: blobs, log: log}
}

// AdjustStock applies an administrative signed delta, e.g. a restock or
// a damage write-off.
func (s *Service) AdjustStock(ctx context.Context, itemID uuid.UUID, delta int64, reason string, actorName string) (models.StockItem, error) {
	if delta == 0 {
		return models.StockItem{}, ErrZeroDelta
	}

	outboxEvent, err := stockEvent(itemID, events.EventStockDeltaApplied, map[string]any{
		"delta":  delta,
		"reason": reason,
		"actor":  actorName,
	})
	if err != nil {
		return models.StockItem{}, err
	}

	item, err := s.stock.Adjust(ctx, itemID, delta, reason, actorName, outboxEvent)
	if err != nil {
		if errors.Is(err, repos.ErrInsufficientStock) {
			metricsx.IncStockDeltaRejection()
		}
		return models.StockItem{}, err
	}
	s.log.Info(ctx, "stock_adjusted", "stock delta applied",
		slog.String("item_id", itemID.String()),
		slog.Int64("delta", delta),
		slog.Int64("available", item.Available),
	)
	return item, nil
}

type DeliveryInput struct {
	GuardID   uuid.UUID
	PostID    *uuid.UUID
	ItemID    uuid.UUID
	Quantity  int64
	IssuedBy  string
	Receiver  string
	Notes     string
	Signature []byte
}

// RegisterDelivery hands material to a guard. The stock decrement and
// the delivery record commit in one transaction, decrement first, so an
// insufficient balance means no record is written at all.
func (s *Service) RegisterDelivery(ctx context.Context, input DeliveryInput) (models.DeliveryRecord, error) {
	if input.Quantity <= 0 {
		return models.DeliveryRecord{}, ErrInvalidQuantity
	}

	guard, err := s.guards.GetGuardByID(ctx, input.GuardID)
	if err != nil {
		return models.DeliveryRecord{}, err
	}
	item, err := s.stock.GetItemByID(ctx, input.ItemID)
	if err != nil {
		return models.DeliveryRecord{}, err
	}

	delivery := models.DeliveryRecord{
		DeliveryID:    uuid.New(),
		GuardID:       guard.GuardID,
		GuardName:     guard.FullName,
		GuardCallSign: guard.CallSign,
		PostID:        input.PostID,
		ItemID:        item.ItemID,
		ItemName:      item.Name,
		Quantity:      input.Quantity,
		Status:        workflow.DeliveryStatusDelivered,
		IssuedBy:      input.IssuedBy,
		Receiver:      input.Receiver,
		Notes:         input.Notes,
		DeliveredAt:   time.Now().UTC(),
	}

	if input.PostID != nil && s.posts != nil {
		if post, err := s.posts.GetPostByID(ctx, *input.PostID); err == nil {
			delivery.PostName = post.Name
		}
	}

	if len(input.Signature) > 0 {
		path := fmt.Sprintf("deliveries/%s/signature_%d.png", delivery.DeliveryID, time.Now().UTC().UnixMilli())
		url, err := s.blobs.Store(ctx, input.Signature, path)
		if err != nil {
			metricsx.IncBlobStoreFailure()
			return models.DeliveryRecord{}, err
		}
		delivery.SignatureURL = url
	}

	outboxEvent, err := deliveryEvent(delivery.DeliveryID, workflow.DeliveryEventCommitted, map[string]any{
		"guard_id":  delivery.GuardID.String(),
		"item_id":   delivery.ItemID.String(),
		"item_name": delivery.ItemName,
		"quantity":  delivery.Quantity,
	})
	if err != nil {
		return models.DeliveryRecord{}, err
	}

	created, err := s.deliveries.CommitDelivery(ctx, delivery, outboxEvent)
	if err != nil {
		if errors.Is(err, repos.ErrInsufficientStock) {
			metricsx.IncStockDeltaRejection()
			s.log.Warn(ctx, "delivery_rejected", "insufficient stock for delivery",
				slog.String("item_id", input.ItemID.String()),
				slog.Int64("quantity", input.Quantity),
			)
		}
		return models.DeliveryRecord{}, err
	}

	s.log.Info(ctx, "delivery_committed", "material delivered",
		slog.String("delivery_id", created.DeliveryID.String()),
		slog.String("guard_id", created.GuardID.String()),
		slog.String("item_id", created.ItemID.String()),
		slog.Int64("quantity", created.Quantity),
	)
	return created, nil
}

// RegisterReturn takes material back from a guard, restoring stock in
// the same transaction that flips the record to returned.
func (s *Service) RegisterReturn(ctx context.Context, deliveryID uuid.UUID, receiver string, notes string) (models.DeliveryRecord, error) {
	outboxEvent, err := deliveryEvent(deliveryID, workflow.DeliveryEventReturned, map[string]any{
		"receiver": receiver,
	})
	if err != nil {
		return models.DeliveryRecord{}, err
	}

	returned, err := s.deliveries.RegisterReturn(ctx, deliveryID, receiver, notes, outboxEvent)
	if err != nil {
		return models.DeliveryRecord{}, err
	}
	s.log.Info(ctx, "delivery_returned", "material returned",
		slog.String("delivery_id", deliveryID.String()),
		slog.String("item_id", returned.ItemID.String()),
		slog.Int64("quantity", returned.Quantity),
	)
	return returned, nil
}

// MarkNotReceived flags a disputed delivery. Stock is left untouched
// until the dispute is resolved by hand.
func (s *Service) MarkNotReceived(ctx context.Context, deliveryID uuid.UUID, notes string) (models.DeliveryRecord, error) {
	return s.deliveries.MarkNotReceived(ctx, deliveryID, notes)
}

func stockEvent(itemID uuid.UUID, eventType string, payload map[string]any) (models.OutboxEvent, error) {
	return buildEvent(events.AggregateStockItem, itemID, eventType, events.TopicStockMovements, payload)
}

func deliveryEvent(deliveryID uuid.UUID, eventType string, payload map[string]any) (models.OutboxEvent, error) {
	return buildEvent(events.AggregateDelivery, deliveryID, eventType, events.TopicStockMovements, payload)
}

func buildEvent(aggregateType string, aggregateID uuid.UUID, eventType string, topic string, payload map[string]any) (models.OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return models.OutboxEvent{}, err
	}
	envelope := events.Envelope{
		EventID:       uuid.New(),
		OccurredAt:    time.Now().UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, err
	}
	return models.OutboxEvent{
		EventID:       envelope.EventID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID.String(),
		Topic:         topic,
		Payload:       raw,
	}, nil
}
