package repos

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsOnlineSessionConflict(t *testing.T) {
	conflict := &pgconn.PgError{Code: "23505", ConstraintName: "patrol_sessions_one_online"}

	if !isOnlineSessionConflict(conflict) {
		t.Fatalf("expected unique violation on the one-online index to match")
	}
	if !isOnlineSessionConflict(fmt.Errorf("start session: %w", conflict)) {
		t.Fatalf("expected wrapped unique violation to match")
	}

	if isOnlineSessionConflict(&pgconn.PgError{Code: "23505", ConstraintName: "patrol_sessions_pkey"}) {
		t.Fatalf("unique violation on another constraint must not match")
	}
	if isOnlineSessionConflict(&pgconn.PgError{Code: "23503", ConstraintName: "patrol_sessions_one_online"}) {
		t.Fatalf("non-unique-violation code must not match")
	}
	if isOnlineSessionConflict(errors.New("connection reset")) {
		t.Fatalf("plain error must not match")
	}
	if isOnlineSessionConflict(nil) {
		t.Fatalf("nil error must not match")
	}
}
