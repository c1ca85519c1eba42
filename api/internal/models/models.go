package models

import (
	"time"

	"github.com/google/uuid"
)

type Guard struct {
	GuardID   uuid.UUID
	FullName  string
	CallSign  string
	Email     string
	Phone     string
	Role      string
	Status    string
	CreatedAt time.Time
}

type Post struct {
	PostID      uuid.UUID
	Name        string
	Description string
	Latitude    float64
	Longitude   float64
	RadiusM     float64
	ScanToken   string
	ManualCode  string
	QRURL       string
	CreatedAt   time.Time
}

// PostAuthorization snapshots the guard name at grant time so the
// roster shown for a post stays stable even if the guard is renamed.
type PostAuthorization struct {
	PostID    uuid.UUID
	GuardID   uuid.UUID
	GuardName string
	GrantedAt time.Time
}

type PatrolSession struct {
	SessionID      uuid.UUID
	GuardID        uuid.UUID
	GuardName      string
	PostID         uuid.UUID
	PostName       string
	Status         string
	StartLatitude  float64
	StartLongitude float64
	StartedAt      time.Time
	EndedAt        *time.Time
	Photos         []string
}

type StockItem struct {
	ItemID        uuid.UUID
	Name          string
	Category      string
	Description   string
	Total         int64
	Available     int64
	Minimum       int64
	RelatedPostID *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type StockMovement struct {
	MovementID uuid.UUID
	ItemID     uuid.UUID
	Delta      int64
	Available  int64
	Reason     string
	ActorName  string
	OccurredAt time.Time
}

type DeliveryRecord struct {
	DeliveryID    uuid.UUID
	GuardID       uuid.UUID
	GuardName     string
	GuardCallSign string
	PostID        *uuid.UUID
	PostName      string
	ItemID        uuid.UUID
	ItemName      string
	Quantity      int64
	Status        string
	IssuedBy      string
	Receiver      string
	SignatureURL  string
	Notes         string
	DeliveredAt   time.Time
	ReturnedAt    *time.Time
	CreatedAt     time.Time
}

type OutboxEvent struct {
	EventID       uuid.UUID
	AggregateType string
	AggregateID   string
	Topic         string
	Payload       []byte
	Status        string
	Attempts      int
	NextRetryAt   *time.Time
	LockedAt      *time.Time
	LockedBy      *string
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PublishedAt   *time.Time
}

type AuditLog struct {
	AuditID      uuid.UUID
	OccurredAt   time.Time
	ActorGuardID *uuid.UUID
	Subject      string
	Action       string
	ResourceType *string
	ResourceID   *string
	RequestID    string
	Method       string
	Path         string
	StatusCode   int
	DurationMS   int64
	ClientIP     string
	UserAgent    string
	Details      []byte
}
