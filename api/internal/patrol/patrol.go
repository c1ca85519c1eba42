// Package patrol implements the geofenced patrol session workflow: a
// guard scans a post token, proves presence inside the post's radius,
// and runs exactly one online session at a time.
package patrol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"guard-patrol-logistics-system/api/internal/models"
	"guard-patrol-logistics-system/api/internal/repos"
	"guard-patrol-logistics-system/shared/blobx"
	"guard-patrol-logistics-system/shared/events"
	"guard-patrol-logistics-system/shared/geo"
	"guard-patrol-logistics-system/shared/logx"
	"guard-patrol-logistics-system/shared/metricsx"
	"guard-patrol-logistics-system/shared/workflow"
)

var (
	ErrUnknownPost         = errors.New("no post matches the scanned token")
	ErrNotAuthorized       = errors.New("guard is not authorized for this post")
	ErrGuardInactive       = errors.New("guard is not active")
	ErrLocationUnavailable = errors.New("device location unavailable")
	ErrEvidenceTooLarge    = errors.New("evidence photo exceeds size limit")
	ErrNotSessionOwner     = errors.New("session belongs to another guard")
)

// OutOfRangeError reports a check-in attempted outside the post's
// geofence, carrying the measured distance for the client to display.
type OutOfRangeError struct {
	DistanceM float64
	RadiusM   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("out of range: %.1fm from post, radius %.1fm", e.DistanceM, e.RadiusM)
}

// Fix is a single device position sample.
type Fix struct {
	Coordinates geo.Coordinates
	CapturedAt  time.Time
}

// PositioningSource yields the device's current fix. Implementations
// must honor ctx cancellation; the manager bounds each request with the
// configured fix timeout.
type PositioningSource interface {
	CurrentFix(ctx context.Context) (Fix, error)
}

type PostRegistry interface {
	ResolveToken(ctx context.Context, token string) (models.Post, error)
	IsGuardAuthorized(ctx context.Context, postID uuid.UUID, guardID uuid.UUID) (bool, error)
}

type GuardRegistry interface {
	GetGuardByID(ctx context.Context, guardID uuid.UUID) (models.Guard, error)
}

type SessionStore interface {
	StartSession(ctx context.Context, session models.PatrolSession, outboxEvent models.OutboxEvent) (models.PatrolSession, error)
	AppendPhoto(ctx context.Context, sessionID uuid.UUID, photoURL string, outboxEvent models.OutboxEvent) (models.PatrolSession, error)
	FinishSession(ctx context.Context, sessionID uuid.UUID, endedAt time.Time, outboxEvent models.OutboxEvent) (models.PatrolSession, error)
	GetSessionByID(ctx context.Context, sessionID uuid.UUID) (models.PatrolSession, error)
}

type ManagerConfig struct {
	DefaultRadiusM   float64
	FixTimeout       time.Duration
	MaxFixAge        time.Duration
	EvidenceMaxBytes int64
}

type Manager struct {
	posts    PostRegistry
	guards   GuardRegistry
	sessions SessionStore
	blobs    blobx.Store
	log      logx.Logger
	cfg      ManagerConfig
}

func NewManager(posts PostRegistry, guards GuardRegistry, sessions SessionStore, blobs blobx.Store, log logx.Logger, cfg ManagerConfig) *Manager {
	if cfg.DefaultRadiusM <= 0 {
		cfg.DefaultRadiusM = geo.DefaultRadiusMeters
	}
	if cfg.FixTimeout <= 0 {
		cfg.FixTimeout = 10 * time.Second
	}
	if cfg.EvidenceMaxBytes <= 0 {
		cfg.EvidenceMaxBytes = 5 << 20
	}
	return &Manager{posts: posts, guards: guards, sessions: sessions, blobs: blobs, log: log, cfg: cfg}
}

// StartSession performs the full check-in: resolve the token, verify the
// guard is active and on the post's roster, take a position fix, check
// the geofence, then open the session.
func (m *Manager) StartSession(ctx context.Context, guardID uuid.UUID, token string, src PositioningSource) (models.PatrolSession, error) {
	guard, err := m.guards.GetGuardByID(ctx, guardID)
	if err != nil {
		return models.PatrolSession{}, err
	}
	if workflow.NormalizeStatus(guard.Status) != repos.GuardStatusActive {
		metricsx.IncPatrolSessionStart("guard_inactive")
		return models.PatrolSession{}, ErrGuardInactive
	}

	post, err := m.posts.ResolveToken(ctx, token)
	if errors.Is(err, pgx.ErrNoRows) {
		metricsx.IncPatrolSessionStart("unknown_post")
		return models.PatrolSession{}, ErrUnknownPost
	}
	if err != nil {
		return models.PatrolSession{}, err
	}

	authorized, err := m.posts.IsGuardAuthorized(ctx, post.PostID, guardID)
	if err != nil {
		return models.PatrolSession{}, err
	}
	if !authorized {
		metricsx.IncPatrolSessionStart("not_authorized")
		return models.PatrolSession{}, ErrNotAuthorized
	}

	fix, err := m.currentFix(ctx, src)
	if err != nil {
		metricsx.IncPatrolSessionStart("location_unavailable")
		return models.PatrolSession{}, err
	}

	distance, err := geo.DistanceMeters(fix.Coordinates, geo.Coordinates{Latitude: post.Latitude, Longitude: post.Longitude})
	if err != nil {
		metricsx.IncPatrolSessionStart("location_unavailable")
		return models.PatrolSession{}, ErrLocationUnavailable
	}
	metricsx.ObserveGeofenceDistance(distance)

	radius := post.RadiusM
	if radius <= 0 {
		radius = m.cfg.DefaultRadiusM
	}
	if distance > radius {
		metricsx.IncPatrolSessionStart("out_of_range")
		m.log.Warn(ctx, "geofence_rejected", "check-in outside post radius",
			slog.String("guard_id", guardID.String()),
			slog.String("post_id", post.PostID.String()),
			slog.Float64("distance_m", distance),
			slog.Float64("radius_m", radius),
		)
		return models.PatrolSession{}, &OutOfRangeError{DistanceM: distance, RadiusM: radius}
	}

	session := models.PatrolSession{
		SessionID:      uuid.New(),
		GuardID:        guardID,
		GuardName:      guard.FullName,
		PostID:         post.PostID,
		PostName:       post.Name,
		StartLatitude:  fix.Coordinates.Latitude,
		StartLongitude: fix.Coordinates.Longitude,
		StartedAt:      time.Now().UTC(),
	}

	outboxEvent, err := sessionEvent(session.SessionID, workflow.SessionEventStarted, map[string]any{
		"guard_id":   guardID.String(),
		"guard_name": guard.FullName,
		"post_id":    post.PostID.String(),
		"post_name":  post.Name,
		"distance_m": distance,
		"started_at": session.StartedAt,
	})
	if err != nil {
		return models.PatrolSession{}, err
	}

	created, err := m.sessions.StartSession(ctx, session, outboxEvent)
	if err != nil {
		if errors.Is(err, repos.ErrSessionAlreadyActive) {
			metricsx.IncPatrolSessionStart("already_active")
		}
		return models.PatrolSession{}, err
	}
	metricsx.IncPatrolSessionStart("ok")

	m.log.Info(ctx, "patrol_session_started", "patrol session started",
		slog.String("session_id", created.SessionID.String()),
		slog.String("guard_id", guardID.String()),
		slog.String("post_id", post.PostID.String()),
		slog.Float64("distance_m", distance),
	)
	return created, nil
}

// AddEvidence stores a photo and appends its URL to the session's
// evidence list. Only the owning guard can attach evidence, and only
// while the session is online.
func (m *Manager) AddEvidence(ctx context.Context, sessionID uuid.UUID, guardID uuid.UUID, photo []byte, ext string) (models.PatrolSession, error) {
	if int64(len(photo)) > m.cfg.EvidenceMaxBytes {
		metricsx.IncEvidenceUpload("too_large")
		return models.PatrolSession{}, ErrEvidenceTooLarge
	}

	session, err := m.sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		return models.PatrolSession{}, err
	}
	if session.GuardID != guardID {
		metricsx.IncEvidenceUpload("not_owner")
		return models.PatrolSession{}, ErrNotSessionOwner
	}
	if workflow.NormalizeStatus(session.Status) != workflow.SessionStatusOnline {
		metricsx.IncEvidenceUpload("not_active")
		return models.PatrolSession{}, repos.ErrSessionNotActive
	}

	if ext == "" {
		ext = "jpg"
	}
	path := fmt.Sprintf("patrols/%s/photo_%d_%d.%s", sessionID, len(session.Photos), time.Now().UTC().UnixMilli(), ext)
	url, err := m.blobs.Store(ctx, photo, path)
	if err != nil {
		metricsx.IncEvidenceUpload("store_failed")
		metricsx.IncBlobStoreFailure()
		return models.PatrolSession{}, err
	}

	outboxEvent, err := sessionEvent(sessionID, workflow.SessionEventEvidence, map[string]any{
		"guard_id":  guardID.String(),
		"photo_url": url,
	})
	if err != nil {
		return models.PatrolSession{}, err
	}

	updated, err := m.sessions.AppendPhoto(ctx, sessionID, url, outboxEvent)
	if err != nil {
		// The session can go offline between the status check and the
		// conditional append. The blob has no record pointing at it, so
		// remove it rather than leave an orphan on disk.
		if delErr := m.blobs.Delete(ctx, path); delErr != nil {
			m.log.Warn(ctx, "evidence_blob_cleanup_failed", "orphan evidence blob not removed",
				slog.String("path", path),
				slog.Any("error", delErr),
			)
		}
		return models.PatrolSession{}, err
	}
	metricsx.IncEvidenceUpload("ok")
	return updated, nil
}

// FinishSession closes the guard's online session.
func (m *Manager) FinishSession(ctx context.Context, sessionID uuid.UUID, guardID uuid.UUID) (models.PatrolSession, error) {
	session, err := m.sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		return models.PatrolSession{}, err
	}
	if session.GuardID != guardID {
		return models.PatrolSession{}, ErrNotSessionOwner
	}

	endedAt := time.Now().UTC()
	outboxEvent, err := sessionEvent(sessionID, workflow.SessionEventFinished, map[string]any{
		"guard_id": guardID.String(),
		"post_id":  session.PostID.String(),
		"ended_at": endedAt,
		"photos":   len(session.Photos),
	})
	if err != nil {
		return models.PatrolSession{}, err
	}

	finished, err := m.sessions.FinishSession(ctx, sessionID, endedAt, outboxEvent)
	if err != nil {
		return models.PatrolSession{}, err
	}
	m.log.Info(ctx, "patrol_session_finished", "patrol session finished",
		slog.String("session_id", sessionID.String()),
		slog.String("guard_id", guardID.String()),
	)
	return finished, nil
}

func (m *Manager) currentFix(ctx context.Context, src PositioningSource) (Fix, error) {
	if src == nil {
		return Fix{}, ErrLocationUnavailable
	}
	fixCtx, cancel := context.WithTimeout(ctx, m.cfg.FixTimeout)
	defer cancel()

	fix, err := src.CurrentFix(fixCtx)
	if err != nil {
		return Fix{}, ErrLocationUnavailable
	}
	if !fix.Coordinates.Valid() {
		return Fix{}, ErrLocationUnavailable
	}
	if m.cfg.MaxFixAge > 0 && !fix.CapturedAt.IsZero() && time.Since(fix.CapturedAt) > m.cfg.MaxFixAge {
		return Fix{}, ErrLocationUnavailable
	}
	return fix, nil
}

func sessionEvent(sessionID uuid.UUID, eventType string, payload map[string]any) (models.OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return models.OutboxEvent{}, err
	}
	envelope := events.Envelope{
		EventID:       uuid.New(),
		OccurredAt:    time.Now().UTC(),
		AggregateType: events.AggregatePatrolSession,
		AggregateID:   sessionID,
		EventType:     eventType,
		Payload:       body,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, err
	}
	return models.OutboxEvent{
		EventID:       envelope.EventID,
		AggregateType: envelope.AggregateType,
		AggregateID:   sessionID.String(),
		Topic:         events.TopicPatrolSessions,
		Payload:       raw,
	}, nil
}
