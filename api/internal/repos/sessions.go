package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"guard-patrol-logistics-system/api/internal/models"
	"guard-patrol-logistics-system/shared/workflow"
)

var (
	ErrSessionAlreadyActive = errors.New("guard already has an active patrol session")
	ErrSessionNotActive     = errors.New("patrol session is not active")
)

type SessionsRepo struct {
	pool   *pgxpool.Pool
	outbox *OutboxRepo
}

func NewSessionsRepo(pool *pgxpool.Pool, outbox *OutboxRepo) *SessionsRepo {
	return &SessionsRepo{pool: pool, outbox: outbox}
}

const sessionColumns = `session_id, guard_id, guard_name, post_id, post_name, status, start_latitude, start_longitude, started_at, ended_at, photos`

func scanSession(row pgx.Row) (models.PatrolSession, error) {
	var s models.PatrolSession
	err := row.Scan(&s.SessionID, &s.GuardID, &s.GuardName, &s.PostID, &s.PostName, &s.Status, &s.StartLatitude, &s.StartLongitude, &s.StartedAt, &s.EndedAt, &s.Photos)
	return s, err
}

// StartSession inserts a new online session unless the guard already has
// one, and queues the outbox event in the same transaction. The partial
// unique index on (guard_id) WHERE status = 'online' backs the same
// guarantee under concurrent starts; the WHERE NOT EXISTS guard turns
// the common case into a clean no-row result instead of a constraint
// violation.
func (r *SessionsRepo) StartSession(ctx context.Context, session models.PatrolSession, outboxEvent models.OutboxEvent) (models.PatrolSession, error) {
	if session.SessionID == uuid.Nil {
		session.SessionID = uuid.New()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	session.Status = workflow.SessionStatusOnline
	if session.Photos == nil {
		session.Photos = []string{}
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.PatrolSession{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created, err := scanSession(tx.QueryRow(ctx, `
		INSERT INTO patrol_sessions (session_id, guard_id, guard_name, post_id, post_name, status, start_latitude, start_longitude, started_at, photos)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		WHERE NOT EXISTS (
			SELECT 1 FROM patrol_sessions
			WHERE guard_id = $2 AND status = $6
		)
		RETURNING `+sessionColumns+`
	`, session.SessionID, session.GuardID, session.GuardName, session.PostID, session.PostName, session.Status, session.StartLatitude, session.StartLongitude, session.StartedAt, session.Photos))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PatrolSession{}, ErrSessionAlreadyActive
	}
	if isOnlineSessionConflict(err) {
		return models.PatrolSession{}, ErrSessionAlreadyActive
	}
	if err != nil {
		return models.PatrolSession{}, err
	}

	if _, err := r.outbox.Insert(ctx, tx, outboxEvent); err != nil {
		return models.PatrolSession{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.PatrolSession{}, err
	}
	return created, nil
}

// isOnlineSessionConflict reports a unique violation on the
// one-online-session index. Two simultaneous starts can both pass the
// NOT EXISTS guard on their snapshots; the loser then trips the index,
// which means the same thing as the guard firing.
func isOnlineSessionConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == "23505" &&
		pgErr.ConstraintName == "patrol_sessions_one_online"
}

// AppendPhoto attaches an evidence URL to a session while it is still
// online. A finished session rejects further evidence.
func (r *SessionsRepo) AppendPhoto(ctx context.Context, sessionID uuid.UUID, photoURL string, outboxEvent models.OutboxEvent) (models.PatrolSession, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.PatrolSession{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	session, err := scanSession(tx.QueryRow(ctx, `
		UPDATE patrol_sessions
		SET photos = array_append(photos, $2)
		WHERE session_id = $1 AND status = $3
		RETURNING `+sessionColumns+`
	`, sessionID, photoURL, workflow.SessionStatusOnline))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PatrolSession{}, ErrSessionNotActive
	}
	if err != nil {
		return models.PatrolSession{}, err
	}

	if _, err := r.outbox.Insert(ctx, tx, outboxEvent); err != nil {
		return models.PatrolSession{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.PatrolSession{}, err
	}
	return session, nil
}

// FinishSession flips an online session to offline. The conditional
// UPDATE makes a double finish come back as ErrSessionNotActive.
func (r *SessionsRepo) FinishSession(ctx context.Context, sessionID uuid.UUID, endedAt time.Time, outboxEvent models.OutboxEvent) (models.PatrolSession, error) {
	if endedAt.IsZero() {
		endedAt = time.Now().UTC()
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.PatrolSession{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	session, err := scanSession(tx.QueryRow(ctx, `
		UPDATE patrol_sessions
		SET status = $3, ended_at = $4
		WHERE session_id = $1 AND status = $2
		RETURNING `+sessionColumns+`
	`, sessionID, workflow.SessionStatusOnline, workflow.SessionStatusOffline, endedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PatrolSession{}, ErrSessionNotActive
	}
	if err != nil {
		return models.PatrolSession{}, err
	}

	if _, err := r.outbox.Insert(ctx, tx, outboxEvent); err != nil {
		return models.PatrolSession{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.PatrolSession{}, err
	}
	return session, nil
}

func (r *SessionsRepo) GetSessionByID(ctx context.Context, sessionID uuid.UUID) (models.PatrolSession, error) {
	return scanSession(r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM patrol_sessions
		WHERE session_id = $1
	`, sessionID))
}

func (r *SessionsRepo) GetActiveSessionForGuard(ctx context.Context, guardID uuid.UUID) (models.PatrolSession, error) {
	return scanSession(r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM patrol_sessions
		WHERE guard_id = $1 AND status = $2
	`, guardID, workflow.SessionStatusOnline))
}

func (r *SessionsRepo) ListActiveSessions(ctx context.Context, limit int, offset int) ([]models.PatrolSession, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.listSessions(ctx, `
		SELECT `+sessionColumns+`
		FROM patrol_sessions
		WHERE status = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`, workflow.SessionStatusOnline, limit, offset)
}

func (r *SessionsRepo) ListSessionsByGuard(ctx context.Context, guardID uuid.UUID, limit int, offset int) ([]models.PatrolSession, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.listSessions(ctx, `
		SELECT `+sessionColumns+`
		FROM patrol_sessions
		WHERE guard_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`, guardID, limit, offset)
}

func (r *SessionsRepo) ListSessionsByPost(ctx context.Context, postID uuid.UUID, limit int, offset int) ([]models.PatrolSession, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.listSessions(ctx, `
		SELECT `+sessionColumns+`
		FROM patrol_sessions
		WHERE post_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`, postID, limit, offset)
}

func (r *SessionsRepo) listSessions(ctx context.Context, query string, args ...any) ([]models.PatrolSession, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.PatrolSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}
