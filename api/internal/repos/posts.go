package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"guard-patrol-logistics-system/api/internal/models"
)

type PostsRepo struct {
	pool *pgxpool.Pool
}

func NewPostsRepo(pool *pgxpool.Pool) *PostsRepo {
	return &PostsRepo{pool: pool}
}

const postColumns = `post_id, name, COALESCE(description, ''), latitude, longitude, radius_m, scan_token, manual_code, COALESCE(qr_url, ''), created_at`

func scanPost(row pgx.Row) (models.Post, error) {
	var post models.Post
	err := row.Scan(&post.PostID, &post.Name, &post.Description, &post.Latitude, &post.Longitude, &post.RadiusM, &post.ScanToken, &post.ManualCode, &post.QRURL, &post.CreatedAt)
	return post, err
}

func (r *PostsRepo) CreatePost(ctx context.Context, post models.Post) (models.Post, error) {
	if post.PostID == uuid.Nil {
		post.PostID = uuid.New()
	}
	now := time.Now().UTC()
	return scanPost(r.pool.QueryRow(ctx, `
		INSERT INTO posts (post_id, name, description, latitude, longitude, radius_m, scan_token, manual_code, qr_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+postColumns+`
	`, post.PostID, post.Name, nullIfEmpty(post.Description), post.Latitude, post.Longitude, post.RadiusM, post.ScanToken, post.ManualCode, nullIfEmpty(post.QRURL), now))
}

func (r *PostsRepo) UpdatePost(ctx context.Context, post models.Post) (models.Post, error) {
	return scanPost(r.pool.QueryRow(ctx, `
		UPDATE posts
		SET name = $2, description = $3, latitude = $4, longitude = $5, radius_m = $6, qr_url = $7
		WHERE post_id = $1
		RETURNING `+postColumns+`
	`, post.PostID, post.Name, nullIfEmpty(post.Description), post.Latitude, post.Longitude, post.RadiusM, nullIfEmpty(post.QRURL)))
}

func (r *PostsRepo) GetPostByID(ctx context.Context, postID uuid.UUID) (models.Post, error) {
	return scanPost(r.pool.QueryRow(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE post_id = $1
	`, postID))
}

// ResolveToken accepts either the scan token printed in the QR code or
// the short manual fallback code typed by the guard.
func (r *PostsRepo) ResolveToken(ctx context.Context, token string) (models.Post, error) {
	return scanPost(r.pool.QueryRow(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE scan_token = $1 OR manual_code = $1
	`, token))
}

func (r *PostsRepo) ListPosts(ctx context.Context, limit int, offset int) ([]models.Post, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+postColumns+`
		FROM posts
		ORDER BY name ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *PostsRepo) DeletePost(ctx context.Context, postID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM posts WHERE post_id = $1`, postID)
	return err
}

// SetAuthorizations replaces the authorized roster for a post in one
// transaction, snapshotting each guard's current name.
func (r *PostsRepo) SetAuthorizations(ctx context.Context, postID uuid.UUID, guardIDs []uuid.UUID) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM post_authorizations WHERE post_id = $1`, postID); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, guardID := range guardIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO post_authorizations (post_id, guard_id, guard_name, granted_at)
			SELECT $1, guard_id, full_name, $3
			FROM guards
			WHERE guard_id = $2
			ON CONFLICT (post_id, guard_id) DO NOTHING
		`, postID, guardID, now); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PostsRepo) ListAuthorizations(ctx context.Context, postID uuid.UUID) ([]models.PostAuthorization, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT post_id, guard_id, guard_name, granted_at
		FROM post_authorizations
		WHERE post_id = $1
		ORDER BY guard_name ASC
	`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []models.PostAuthorization
	for rows.Next() {
		var grant models.PostAuthorization
		if err := rows.Scan(&grant.PostID, &grant.GuardID, &grant.GuardName, &grant.GrantedAt); err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

func (r *PostsRepo) IsGuardAuthorized(ctx context.Context, postID uuid.UUID, guardID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM post_authorizations
			WHERE post_id = $1 AND guard_id = $2
		)
	`, postID, guardID).Scan(&exists)
	return exists, err
}

func (r *PostsRepo) ListAuthorizedPosts(ctx context.Context, guardID uuid.UUID) ([]models.Post, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.post_id, p.name, COALESCE(p.description, ''), p.latitude, p.longitude, p.radius_m, p.scan_token, p.manual_code, COALESCE(p.qr_url, ''), p.created_at
		FROM posts p
		JOIN post_authorizations a ON a.post_id = p.post_id
		WHERE a.guard_id = $1
		ORDER BY p.name ASC
	`, guardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}
