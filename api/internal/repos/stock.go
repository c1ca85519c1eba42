package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"guard-patrol-logistics-system/api/internal/models"
)

var (
	ErrStockItemNotFound = errors.New("stock item not found")
	ErrInsufficientStock = errors.New("insufficient stock for requested delta")
)

type StockRepo struct {
	pool   *pgxpool.Pool
	outbox *OutboxRepo
}

func NewStockRepo(pool *pgxpool.Pool, outbox *OutboxRepo) *StockRepo {
	return &StockRepo{pool: pool, outbox: outbox}
}

const stockColumns = `item_id, name, COALESCE(category, ''), COALESCE(description, ''), total, available, minimum, related_post_id, created_at, updated_at`

func scanStockItem(row pgx.Row) (models.StockItem, error) {
	var item models.StockItem
	err := row.Scan(&item.ItemID, &item.Name, &item.Category, &item.Description, &item.Total, &item.Available, &item.Minimum, &item.RelatedPostID, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (r *StockRepo) CreateItem(ctx context.Context, item models.StockItem) (models.StockItem, error) {
	if item.ItemID == uuid.Nil {
		item.ItemID = uuid.New()
	}
	now := time.Now().UTC()
	return scanStockItem(r.pool.QueryRow(ctx, `
		INSERT INTO stock_items (item_id, name, category, description, total, available, minimum, related_post_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+stockColumns+`
	`, item.ItemID, item.Name, nullIfEmpty(item.Category), nullIfEmpty(item.Description), item.Total, item.Available, item.Minimum, item.RelatedPostID, now))
}

func (r *StockRepo) UpdateItem(ctx context.Context, item models.StockItem) (models.StockItem, error) {
	updated, err := scanStockItem(r.pool.QueryRow(ctx, `
		UPDATE stock_items
		SET name = $2, category = $3, description = $4, minimum = $5, related_post_id = $6, updated_at = now()
		WHERE item_id = $1
		RETURNING `+stockColumns+`
	`, item.ItemID, item.Name, nullIfEmpty(item.Category), nullIfEmpty(item.Description), item.Minimum, item.RelatedPostID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.StockItem{}, ErrStockItemNotFound
	}
	return updated, err
}

func (r *StockRepo) GetItemByID(ctx context.Context, itemID uuid.UUID) (models.StockItem, error) {
	item, err := scanStockItem(r.pool.QueryRow(ctx, `
		SELECT `+stockColumns+`
		FROM stock_items
		WHERE item_id = $1
	`, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.StockItem{}, ErrStockItemNotFound
	}
	return item, err
}

func (r *StockRepo) ListItems(ctx context.Context, limit int, offset int) ([]models.StockItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+stockColumns+`
		FROM stock_items
		ORDER BY name ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.StockItem
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *StockRepo) ListLowStock(ctx context.Context) ([]models.StockItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+stockColumns+`
		FROM stock_items
		WHERE available <= minimum
		ORDER BY available ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.StockItem
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ApplyDelta adjusts the available count by a signed delta in a single
// conditional UPDATE. The check and the write are one statement, so two
// concurrent withdrawals can never both pass a stale check: the second
// one sees the decremented row and gets no match.
func (r *StockRepo) ApplyDelta(ctx context.Context, db DBTX, itemID uuid.UUID, delta int64, reason string, actorName string) (models.StockItem, error) {
	row := db.QueryRow(ctx, `
		UPDATE stock_items
		SET available = available + $2, updated_at = now()
		WHERE item_id = $1
			AND available + $2 >= 0
			AND available + $2 <= total
		RETURNING `+stockColumns+`
	`, itemID, delta)

	item, err := scanStockItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// No row matched: either the item is missing or the delta
		// would have pushed available out of [0, total].
		var exists bool
		if checkErr := db.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM stock_items WHERE item_id = $1)
		`, itemID).Scan(&exists); checkErr != nil {
			return models.StockItem{}, checkErr
		}
		if !exists {
			return models.StockItem{}, ErrStockItemNotFound
		}
		return models.StockItem{}, ErrInsufficientStock
	}
	if err != nil {
		return models.StockItem{}, err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO stock_movements (movement_id, item_id, delta, available, reason, actor_name, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, uuid.New(), itemID, delta, item.Available, nullIfEmpty(reason), nullIfEmpty(actorName))
	return item, err
}

// Adjust applies a signed delta outside a delivery, e.g. restock or
// damage write-off, and queues the outbox event in the same transaction.
func (r *StockRepo) Adjust(ctx context.Context, itemID uuid.UUID, delta int64, reason string, actorName string, outboxEvent models.OutboxEvent) (models.StockItem, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.StockItem{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	item, err := r.ApplyDelta(ctx, tx, itemID, delta, reason, actorName)
	if err != nil {
		return models.StockItem{}, err
	}
	if _, err := r.outbox.Insert(ctx, tx, outboxEvent); err != nil {
		return models.StockItem{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.StockItem{}, err
	}
	return item, nil
}

func (r *StockRepo) ListMovements(ctx context.Context, itemID uuid.UUID, limit int, offset int) ([]models.StockMovement, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT movement_id, item_id, delta, available, COALESCE(reason, ''), COALESCE(actor_name, ''), occurred_at
		FROM stock_movements
		WHERE item_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3
	`, itemID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []models.StockMovement
	for rows.Next() {
		var m models.StockMovement
		if err := rows.Scan(&m.MovementID, &m.ItemID, &m.Delta, &m.Available, &m.Reason, &m.ActorName, &m.OccurredAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *StockRepo) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM stock_items WHERE item_id = $1`, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStockItemNotFound
	}
	return nil
}
