package patrol

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"guard-patrol-logistics-system/api/internal/models"
	"guard-patrol-logistics-system/api/internal/repos"
	"guard-patrol-logistics-system/shared/geo"
	"guard-patrol-logistics-system/shared/logx"
	"guard-patrol-logistics-system/shared/workflow"
)

type fakeGuards struct {
	guards map[uuid.UUID]models.Guard
}

func (f *fakeGuards) GetGuardByID(_ context.Context, guardID uuid.UUID) (models.Guard, error) {
	guard, ok := f.guards[guardID]
	if !ok {
		return models.Guard{}, pgx.ErrNoRows
	}
	return guard, nil
}

type fakePosts struct {
	byToken    map[string]models.Post
	authorized map[uuid.UUID]map[uuid.UUID]bool
}

func (f *fakePosts) ResolveToken(_ context.Context, token string) (models.Post, error) {
	post, ok := f.byToken[token]
	if !ok {
		return models.Post{}, pgx.ErrNoRows
	}
	return post, nil
}

func (f *fakePosts) IsGuardAuthorized(_ context.Context, postID uuid.UUID, guardID uuid.UUID) (bool, error) {
	return f.authorized[postID][guardID], nil
}

type fakeSessions struct {
	sessions  map[uuid.UUID]models.PatrolSession
	events    []models.OutboxEvent
	appendErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[uuid.UUID]models.PatrolSession)}
}

func (f *fakeSessions) StartSession(_ context.Context, session models.PatrolSession, outboxEvent models.OutboxEvent) (models.PatrolSession, error) {
	for _, existing := range f.sessions {
		if existing.GuardID == session.GuardID && existing.Status == workflow.SessionStatusOnline {
			return models.PatrolSession{}, repos.ErrSessionAlreadyActive
		}
	}
	session.Status = workflow.SessionStatusOnline
	if session.Photos == nil {
		session.Photos = []string{}
	}
	f.sessions[session.SessionID] = session
	f.events = append(f.events, outboxEvent)
	return session, nil
}

func (f *fakeSessions) AppendPhoto(_ context.Context, sessionID uuid.UUID, photoURL string, outboxEvent models.OutboxEvent) (models.PatrolSession, error) {
	if f.appendErr != nil {
		return models.PatrolSession{}, f.appendErr
	}
	session, ok := f.sessions[sessionID]
	if !ok || session.Status != workflow.SessionStatusOnline {
		return models.PatrolSession{}, repos.ErrSessionNotActive
	}
	session.Photos = append(session.Photos, photoURL)
	f.sessions[sessionID] = session
	f.events = append(f.events, outboxEvent)
	return session, nil
}

func (f *fakeSessions) FinishSession(_ context.Context, sessionID uuid.UUID, endedAt time.Time, outboxEvent models.OutboxEvent) (models.PatrolSession, error) {
	session, ok := f.sessions[sessionID]
	if !ok || session.Status != workflow.SessionStatusOnline {
		return models.PatrolSession{}, repos.ErrSessionNotActive
	}
	session.Status = workflow.SessionStatusOffline
	session.EndedAt = &endedAt
	f.sessions[sessionID] = session
	f.events = append(f.events, outboxEvent)
	return session, nil
}

func (f *fakeSessions) GetSessionByID(_ context.Context, sessionID uuid.UUID) (models.PatrolSession, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return models.PatrolSession{}, pgx.ErrNoRows
	}
	return session, nil
}

type fakeBlobs struct {
	paths   []string
	deleted []string
}

func (f *fakeBlobs) Store(_ context.Context, _ []byte, path string) (string, error) {
	f.paths = append(f.paths, path)
	return "http://media.local/" + path, nil
}

func (f *fakeBlobs) Delete(_ context.Context, path string) error {
	f.deleted = append(f.deleted, path)
	return nil
}

type staticFix struct {
	fix Fix
}

func (s staticFix) CurrentFix(context.Context) (Fix, error) {
	return s.fix, nil
}

type blockedFix struct{}

func (blockedFix) CurrentFix(ctx context.Context) (Fix, error) {
	<-ctx.Done()
	return Fix{}, ctx.Err()
}

const postToken = "tok-armory-gate"

func newTestManager(t *testing.T) (*Manager, uuid.UUID, uuid.UUID, *fakeSessions, *fakeBlobs) {
	t.Helper()

	guardID := uuid.New()
	postID := uuid.New()

	guards := &fakeGuards{guards: map[uuid.UUID]models.Guard{
		guardID: {GuardID: guardID, FullName: "Ana Silva", CallSign: "G-07", Status: repos.GuardStatusActive},
	}}
	posts := &fakePosts{
		byToken: map[string]models.Post{
			postToken: {PostID: postID, Name: "Armory Gate", Latitude: -23.5505, Longitude: -46.6333, RadiusM: 100},
		},
		authorized: map[uuid.UUID]map[uuid.UUID]bool{
			postID: {guardID: true},
		},
	}
	sessions := newFakeSessions()
	blobs := &fakeBlobs{}

	manager := NewManager(posts, guards, sessions, blobs, logx.New("patrol-test", "test", "", "error"), ManagerConfig{
		DefaultRadiusM: 100,
		FixTimeout:     50 * time.Millisecond,
	})
	return manager, guardID, postID, sessions, blobs
}

func nearFix() PositioningSource {
	return staticFix{fix: Fix{
		Coordinates: geo.Coordinates{Latitude: -23.5505, Longitude: -46.6340},
		CapturedAt:  time.Now(),
	}}
}

func farFix() PositioningSource {
	return staticFix{fix: Fix{
		Coordinates: geo.Coordinates{Latitude: -23.5600, Longitude: -46.6400},
		CapturedAt:  time.Now(),
	}}
}

func TestStartSessionWithinRadius(t *testing.T) {
	manager, guardID, postID, sessions, _ := newTestManager(t)

	session, err := manager.StartSession(context.Background(), guardID, postToken, nearFix())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if session.Status != workflow.SessionStatusOnline {
		t.Fatalf("expected online session, got %q", session.Status)
	}
	if session.PostID != postID {
		t.Fatalf("unexpected post id: %s", session.PostID)
	}
	if session.GuardName != "Ana Silva" {
		t.Fatalf("expected guard name snapshot, got %q", session.GuardName)
	}
	if len(sessions.events) != 1 {
		t.Fatalf("expected 1 outbox event, got %d", len(sessions.events))
	}
	if sessions.events[0].Topic != "patrol.sessions" {
		t.Fatalf("unexpected topic: %q", sessions.events[0].Topic)
	}
}

func TestStartSessionOutOfRange(t *testing.T) {
	manager, guardID, _, _, _ := newTestManager(t)

	_, err := manager.StartSession(context.Background(), guardID, postToken, farFix())
	var oor *OutOfRangeError
	if !errors.As(err, &oor) {
		t.Fatalf("expected OutOfRangeError, got %v", err)
	}
	if oor.DistanceM <= oor.RadiusM {
		t.Fatalf("distance %.1f should exceed radius %.1f", oor.DistanceM, oor.RadiusM)
	}
}

func TestStartSessionUnknownToken(t *testing.T) {
	manager, guardID, _, _, _ := newTestManager(t)

	if _, err := manager.StartSession(context.Background(), guardID, "tok-bogus", nearFix()); !errors.Is(err, ErrUnknownPost) {
		t.Fatalf("expected ErrUnknownPost, got %v", err)
	}
}

func TestStartSessionNotAuthorized(t *testing.T) {
	manager, _, _, _, _ := newTestManager(t)

	strangerID := uuid.New()
	guards := manager.guards.(*fakeGuards)
	guards.guards[strangerID] = models.Guard{GuardID: strangerID, FullName: "Someone Else", Status: repos.GuardStatusActive}

	if _, err := manager.StartSession(context.Background(), strangerID, postToken, nearFix()); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestStartSessionInactiveGuard(t *testing.T) {
	manager, guardID, _, _, _ := newTestManager(t)

	guards := manager.guards.(*fakeGuards)
	guard := guards.guards[guardID]
	guard.Status = repos.GuardStatusInactive
	guards.guards[guardID] = guard

	if _, err := manager.StartSession(context.Background(), guardID, postToken, nearFix()); !errors.Is(err, ErrGuardInactive) {
		t.Fatalf("expected ErrGuardInactive, got %v", err)
	}
}

func TestStartSessionLocationTimeout(t *testing.T) {
	manager, guardID, _, _, _ := newTestManager(t)

	if _, err := manager.StartSession(context.Background(), guardID, postToken, blockedFix{}); !errors.Is(err, ErrLocationUnavailable) {
		t.Fatalf("expected ErrLocationUnavailable, got %v", err)
	}
}

func TestStartSessionRejectsSecondActive(t *testing.T) {
	manager, guardID, _, _, _ := newTestManager(t)

	if _, err := manager.StartSession(context.Background(), guardID, postToken, nearFix()); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if _, err := manager.StartSession(context.Background(), guardID, postToken, nearFix()); !errors.Is(err, repos.ErrSessionAlreadyActive) {
		t.Fatalf("expected ErrSessionAlreadyActive, got %v", err)
	}
}

func TestAddEvidence(t *testing.T) {
	manager, guardID, _, sessions, blobs := newTestManager(t)

	session, err := manager.StartSession(context.Background(), guardID, postToken, nearFix())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	updated, err := manager.AddEvidence(context.Background(), session.SessionID, guardID, []byte("jpeg-bytes"), "jpg")
	if err != nil {
		t.Fatalf("add evidence failed: %v", err)
	}
	if len(updated.Photos) != 1 {
		t.Fatalf("expected 1 photo, got %d", len(updated.Photos))
	}
	if len(blobs.paths) != 1 || !strings.HasPrefix(blobs.paths[0], "patrols/"+session.SessionID.String()+"/") {
		t.Fatalf("unexpected blob path: %#v", blobs.paths)
	}
	// start + evidence
	if len(sessions.events) != 2 {
		t.Fatalf("expected 2 outbox events, got %d", len(sessions.events))
	}
}

func TestAddEvidenceKeepsCaptureOrder(t *testing.T) {
	manager, guardID, _, _, blobs := newTestManager(t)

	session, err := manager.StartSession(context.Background(), guardID, postToken, nearFix())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	const count = 7
	var last models.PatrolSession
	for i := 0; i < count; i++ {
		last, err = manager.AddEvidence(context.Background(), session.SessionID, guardID, []byte{byte('a' + i)}, "jpg")
		if err != nil {
			t.Fatalf("add evidence %d failed: %v", i, err)
		}
		if len(last.Photos) != i+1 {
			t.Fatalf("after append %d: expected %d photos, got %d", i, i+1, len(last.Photos))
		}
	}

	if len(blobs.paths) != count {
		t.Fatalf("expected %d stored blobs, got %d", count, len(blobs.paths))
	}
	for i, url := range last.Photos {
		if url != "http://media.local/"+blobs.paths[i] {
			t.Fatalf("photo %d out of order: %q vs path %q", i, url, blobs.paths[i])
		}
		marker := fmt.Sprintf("/photo_%d_", i)
		if !strings.Contains(url, marker) {
			t.Fatalf("photo %d missing sequence marker %q: %q", i, marker, url)
		}
	}
}

func TestAddEvidenceCleansUpBlobWhenSessionCloses(t *testing.T) {
	manager, guardID, _, sessions, blobs := newTestManager(t)

	session, err := manager.StartSession(context.Background(), guardID, postToken, nearFix())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Session goes offline between the status check and the append.
	sessions.appendErr = repos.ErrSessionNotActive

	if _, err := manager.AddEvidence(context.Background(), session.SessionID, guardID, []byte("jpeg-bytes"), "jpg"); !errors.Is(err, repos.ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive, got %v", err)
	}
	if len(blobs.paths) != 1 {
		t.Fatalf("expected 1 stored blob, got %d", len(blobs.paths))
	}
	if len(blobs.deleted) != 1 || blobs.deleted[0] != blobs.paths[0] {
		t.Fatalf("expected stored blob %q to be deleted, got %#v", blobs.paths[0], blobs.deleted)
	}
}

func TestAddEvidenceRejectsWrongGuard(t *testing.T) {
	manager, guardID, _, _, _ := newTestManager(t)

	session, err := manager.StartSession(context.Background(), guardID, postToken, nearFix())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := manager.AddEvidence(context.Background(), session.SessionID, uuid.New(), []byte("x"), "jpg"); !errors.Is(err, ErrNotSessionOwner) {
		t.Fatalf("expected ErrNotSessionOwner, got %v", err)
	}
}

func TestAddEvidenceRejectsFinishedSession(t *testing.T) {
	manager, guardID, _, _, _ := newTestManager(t)

	session, err := manager.StartSession(context.Background(), guardID, postToken, nearFix())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := manager.FinishSession(context.Background(), session.SessionID, guardID); err != nil {
		t.Fatalf("finish failed: %v", err)
	}
	if _, err := manager.AddEvidence(context.Background(), session.SessionID, guardID, []byte("x"), "jpg"); !errors.Is(err, repos.ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive, got %v", err)
	}
}

func TestAddEvidenceRejectsOversizedPhoto(t *testing.T) {
	manager, guardID, _, _, _ := newTestManager(t)
	manager.cfg.EvidenceMaxBytes = 8

	session, err := manager.StartSession(context.Background(), guardID, postToken, nearFix())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := manager.AddEvidence(context.Background(), session.SessionID, guardID, []byte("way-too-many-bytes"), "jpg"); !errors.Is(err, ErrEvidenceTooLarge) {
		t.Fatalf("expected ErrEvidenceTooLarge, got %v", err)
	}
}

func TestFinishSessionIsTerminal(t *testing.T) {
	manager, guardID, _, _, _ := newTestManager(t)

	session, err := manager.StartSession(context.Background(), guardID, postToken, nearFix())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	finished, err := manager.FinishSession(context.Background(), session.SessionID, guardID)
	if err != nil {
		t.Fatalf("finish failed: %v", err)
	}
	if finished.Status != workflow.SessionStatusOffline {
		t.Fatalf("expected offline session, got %q", finished.Status)
	}
	if finished.EndedAt == nil {
		t.Fatalf("expected ended_at to be set")
	}

	if _, err := manager.FinishSession(context.Background(), session.SessionID, guardID); !errors.Is(err, repos.ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive on double finish, got %v", err)
	}

	// The guard can start a fresh session after finishing.
	if _, err := manager.StartSession(context.Background(), guardID, postToken, nearFix()); err != nil {
		t.Fatalf("restart after finish failed: %v", err)
	}
}
