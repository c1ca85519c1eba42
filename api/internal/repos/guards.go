package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"guard-patrol-logistics-system/api/internal/models"
)

const (
	GuardStatusActive   = "active"
	GuardStatusInactive = "inactive"
)

type GuardsRepo struct {
	pool *pgxpool.Pool
}

func NewGuardsRepo(pool *pgxpool.Pool) *GuardsRepo {
	return &GuardsRepo{pool: pool}
}

func (r *GuardsRepo) UpsertGuard(ctx context.Context, guard models.Guard) (models.Guard, error) {
	if guard.GuardID == uuid.Nil {
		guard.GuardID = uuid.New()
	}
	if guard.Status == "" {
		guard.Status = GuardStatusActive
	}
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO guards (guard_id, full_name, call_sign, email, phone, role, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (call_sign) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			role = EXCLUDED.role,
			status = EXCLUDED.status
		RETURNING guard_id, full_name, call_sign, email, phone, role, status, created_at
	`, guard.GuardID, guard.FullName, guard.CallSign, nullIfEmpty(guard.Email), nullIfEmpty(guard.Phone), guard.Role, guard.Status, now).
		Scan(&guard.GuardID, &guard.FullName, &guard.CallSign, &guard.Email, &guard.Phone, &guard.Role, &guard.Status, &guard.CreatedAt)
	return guard, err
}

func (r *GuardsRepo) GetGuardByID(ctx context.Context, guardID uuid.UUID) (models.Guard, error) {
	var guard models.Guard
	err := r.pool.QueryRow(ctx, `
		SELECT guard_id, full_name, call_sign, COALESCE(email, ''), COALESCE(phone, ''), role, status, created_at
		FROM guards
		WHERE guard_id = $1
	`, guardID).
		Scan(&guard.GuardID, &guard.FullName, &guard.CallSign, &guard.Email, &guard.Phone, &guard.Role, &guard.Status, &guard.CreatedAt)
	return guard, err
}

func (r *GuardsRepo) GetGuardBySubject(ctx context.Context, subject string) (models.Guard, error) {
	var guard models.Guard
	err := r.pool.QueryRow(ctx, `
		SELECT guard_id, full_name, call_sign, COALESCE(email, ''), COALESCE(phone, ''), role, status, created_at
		FROM guards
		WHERE call_sign = $1 OR email = $1
	`, subject).
		Scan(&guard.GuardID, &guard.FullName, &guard.CallSign, &guard.Email, &guard.Phone, &guard.Role, &guard.Status, &guard.CreatedAt)
	return guard, err
}

func (r *GuardsRepo) ListGuards(ctx context.Context, limit int, offset int) ([]models.Guard, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT guard_id, full_name, call_sign, COALESCE(email, ''), COALESCE(phone, ''), role, status, created_at
		FROM guards
		ORDER BY full_name ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guards []models.Guard
	for rows.Next() {
		var guard models.Guard
		if err := rows.Scan(&guard.GuardID, &guard.FullName, &guard.CallSign, &guard.Email, &guard.Phone, &guard.Role, &guard.Status, &guard.CreatedAt); err != nil {
			return nil, err
		}
		guards = append(guards, guard)
	}
	return guards, rows.Err()
}

func (r *GuardsRepo) SetGuardStatus(ctx context.Context, guardID uuid.UUID, status string) (models.Guard, error) {
	var guard models.Guard
	err := r.pool.QueryRow(ctx, `
		UPDATE guards
		SET status = $2
		WHERE guard_id = $1
		RETURNING guard_id, full_name, call_sign, COALESCE(email, ''), COALESCE(phone, ''), role, status, created_at
	`, guardID, status).
		Scan(&guard.GuardID, &guard.FullName, &guard.CallSign, &guard.Email, &guard.Phone, &guard.Role, &guard.Status, &guard.CreatedAt)
	return guard, err
}
