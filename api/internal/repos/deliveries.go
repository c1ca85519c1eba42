package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"guard-patrol-logistics-system/api/internal/models"
	"guard-patrol-logistics-system/shared/workflow"
)

var (
	ErrDeliveryNotFound   = errors.New("delivery record not found")
	ErrInvalidReturnState = errors.New("delivery is not in a returnable state")
)

type DeliveriesRepo struct {
	pool   *pgxpool.Pool
	stock  *StockRepo
	outbox *OutboxRepo
}

func NewDeliveriesRepo(pool *pgxpool.Pool, stock *StockRepo, outbox *OutboxRepo) *DeliveriesRepo {
	return &DeliveriesRepo{pool: pool, stock: stock, outbox: outbox}
}

const deliveryColumns = `delivery_id, guard_id, guard_name, COALESCE(guard_call_sign, ''), post_id, COALESCE(post_name, ''), item_id, item_name, quantity, status, COALESCE(issued_by, ''), COALESCE(receiver, ''), COALESCE(signature_url, ''), COALESCE(notes, ''), delivered_at, returned_at, created_at`

func scanDelivery(row pgx.Row) (models.DeliveryRecord, error) {
	var d models.DeliveryRecord
	err := row.Scan(&d.DeliveryID, &d.GuardID, &d.GuardName, &d.GuardCallSign, &d.PostID, &d.PostName, &d.ItemID, &d.ItemName, &d.Quantity, &d.Status, &d.IssuedBy, &d.Receiver, &d.SignatureURL, &d.Notes, &d.DeliveredAt, &d.ReturnedAt, &d.CreatedAt)
	return d, err
}

// CommitDelivery decrements stock and writes the delivery record in one
// transaction, decrement first. If the decrement finds insufficient
// stock the transaction rolls back and no record is ever visible, so a
// failed delivery leaves no trace beyond the error.
func (r *DeliveriesRepo) CommitDelivery(ctx context.Context, delivery models.DeliveryRecord, outboxEvent models.OutboxEvent) (models.DeliveryRecord, error) {
	if delivery.DeliveryID == uuid.Nil {
		delivery.DeliveryID = uuid.New()
	}
	if delivery.DeliveredAt.IsZero() {
		delivery.DeliveredAt = time.Now().UTC()
	}
	if delivery.Status == "" {
		delivery.Status = workflow.DeliveryStatusDelivered
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.DeliveryRecord{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := r.stock.ApplyDelta(ctx, tx, delivery.ItemID, -delivery.Quantity, "delivery", delivery.IssuedBy); err != nil {
		return models.DeliveryRecord{}, err
	}

	created, err := scanDelivery(tx.QueryRow(ctx, `
		INSERT INTO delivery_records (
			delivery_id, guard_id, guard_name, guard_call_sign, post_id, post_name,
			item_id, item_name, quantity, status, issued_by, receiver,
			signature_url, notes, delivered_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, now()
		)
		RETURNING `+deliveryColumns+`
	`, delivery.DeliveryID, delivery.GuardID, delivery.GuardName, nullIfEmpty(delivery.GuardCallSign), delivery.PostID, nullIfEmpty(delivery.PostName),
		delivery.ItemID, delivery.ItemName, delivery.Quantity, delivery.Status, nullIfEmpty(delivery.IssuedBy), nullIfEmpty(delivery.Receiver),
		nullIfEmpty(delivery.SignatureURL), nullIfEmpty(delivery.Notes), delivery.DeliveredAt))
	if err != nil {
		return models.DeliveryRecord{}, err
	}

	if _, err := r.outbox.Insert(ctx, tx, outboxEvent); err != nil {
		return models.DeliveryRecord{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.DeliveryRecord{}, err
	}
	return created, nil
}

// RegisterReturn flips a delivered record to returned and restores the
// stock in the same transaction. Only the delivered state is returnable.
func (r *DeliveriesRepo) RegisterReturn(ctx context.Context, deliveryID uuid.UUID, receiver string, notes string, outboxEvent models.OutboxEvent) (models.DeliveryRecord, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.DeliveryRecord{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	returned, err := scanDelivery(tx.QueryRow(ctx, `
		UPDATE delivery_records
		SET status = $3, returned_at = now(), receiver = COALESCE(NULLIF($4, ''), receiver), notes = COALESCE(NULLIF($5, ''), notes)
		WHERE delivery_id = $1 AND status = $2
		RETURNING `+deliveryColumns+`
	`, deliveryID, workflow.DeliveryStatusDelivered, workflow.DeliveryStatusReturned, receiver, notes))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if checkErr := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM delivery_records WHERE delivery_id = $1)
		`, deliveryID).Scan(&exists); checkErr != nil {
			return models.DeliveryRecord{}, checkErr
		}
		if !exists {
			return models.DeliveryRecord{}, ErrDeliveryNotFound
		}
		return models.DeliveryRecord{}, ErrInvalidReturnState
	}
	if err != nil {
		return models.DeliveryRecord{}, err
	}

	if _, err := r.stock.ApplyDelta(ctx, tx, returned.ItemID, returned.Quantity, "return", receiver); err != nil {
		return models.DeliveryRecord{}, err
	}

	if _, err := r.outbox.Insert(ctx, tx, outboxEvent); err != nil {
		return models.DeliveryRecord{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.DeliveryRecord{}, err
	}
	return returned, nil
}

// MarkNotReceived records a delivery dispute without touching stock.
func (r *DeliveriesRepo) MarkNotReceived(ctx context.Context, deliveryID uuid.UUID, notes string) (models.DeliveryRecord, error) {
	d, err := scanDelivery(r.pool.QueryRow(ctx, `
		UPDATE delivery_records
		SET status = $3, notes = COALESCE(NULLIF($4, ''), notes)
		WHERE delivery_id = $1 AND status = $2
		RETURNING `+deliveryColumns+`
	`, deliveryID, workflow.DeliveryStatusDelivered, workflow.DeliveryStatusNotReceived, notes))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if checkErr := r.pool.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM delivery_records WHERE delivery_id = $1)
		`, deliveryID).Scan(&exists); checkErr != nil {
			return models.DeliveryRecord{}, checkErr
		}
		if !exists {
			return models.DeliveryRecord{}, ErrDeliveryNotFound
		}
		return models.DeliveryRecord{}, ErrInvalidReturnState
	}
	return d, err
}

func (r *DeliveriesRepo) GetDeliveryByID(ctx context.Context, deliveryID uuid.UUID) (models.DeliveryRecord, error) {
	d, err := scanDelivery(r.pool.QueryRow(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_records
		WHERE delivery_id = $1
	`, deliveryID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DeliveryRecord{}, ErrDeliveryNotFound
	}
	return d, err
}

func (r *DeliveriesRepo) ListDeliveries(ctx context.Context, limit int, offset int) ([]models.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.listDeliveries(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_records
		ORDER BY delivered_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

func (r *DeliveriesRepo) ListDeliveriesByGuard(ctx context.Context, guardID uuid.UUID, limit int, offset int) ([]models.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.listDeliveries(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_records
		WHERE guard_id = $1
		ORDER BY delivered_at DESC
		LIMIT $2 OFFSET $3
	`, guardID, limit, offset)
}

func (r *DeliveriesRepo) ListDeliveriesByItem(ctx context.Context, itemID uuid.UUID, limit int, offset int) ([]models.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.listDeliveries(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_records
		WHERE item_id = $1
		ORDER BY delivered_at DESC
		LIMIT $2 OFFSET $3
	`, itemID, limit, offset)
}

func (r *DeliveriesRepo) listDeliveries(ctx context.Context, query string, args ...any) ([]models.DeliveryRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []models.DeliveryRecord
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
