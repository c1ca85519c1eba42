package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

const (
	TopicPatrolSessions = "patrol.sessions"
	TopicStockMovements = "stock.movements"
	TopicStockAlerts    = "stock.alerts"
)

const (
	AggregatePatrolSession = "patrol_session"
	AggregateStockItem     = "stock_item"
	AggregateDelivery      = "delivery"
)

const (
	EventStockDeltaApplied = "stock_delta_applied"
	EventStockLow          = "stock_low"
)
