package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/meet-service/internal/domain"
)

// Интеграционные тесты; без MEET_TEST_PG_DSN пропускаются.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("MEET_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("MEET_TEST_PG_DSN is not set")
	}

	ctx := context.Background()
	db, err := New(ctx, Config{DSN: dsn, MaxConns: 4, ApplicationName: "meet-service-test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(db.Close)
	return db
}

func createRoom(t *testing.T, repo *RoomRepository) *domain.Room {
	t.Helper()
	code := uuid.NewString()[:8]
	rm, err := domain.NewRoom(uuid.NewString(), code, "it "+code, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), rm))
	return rm
}

func TestPG_RoomLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	rooms := NewRoomRepository(db.Pool)
	parts := NewParticipantRepository(db.Pool)

	rm := createRoom(t, rooms)

	dup := *rm
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, rooms.Create(ctx, &dup), domain.ErrAlreadyExists)

	got, err := rooms.GetActiveByCode(ctx, rm.RoomCode)
	require.NoError(t, err)
	assert.Equal(t, rm.ID, got.ID)

	p, err := domain.NewParticipant(uuid.NewString(), rm.ID, "alice", uuid.NewString(), time.Now())
	require.NoError(t, err)
	require.NoError(t, parts.Join(ctx, p))

	assert.ErrorIs(t, rooms.Delete(ctx, rm.ID), domain.ErrConflict)

	sessions, err := rooms.Close(ctx, rm.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{p.SessionID}, sessions)

	_, err = rooms.GetActiveByCode(ctx, rm.RoomCode)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	late, _ := domain.NewParticipant(uuid.NewString(), rm.ID, "bob", uuid.NewString(), time.Now())
	assert.ErrorIs(t, parts.Join(ctx, late), domain.ErrRoomInactive)

	require.NoError(t, rooms.Delete(ctx, rm.ID))
	_, err = parts.GetBySession(ctx, p.SessionID)
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
}

func TestPG_ParticipantsAndChat(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	rooms := NewRoomRepository(db.Pool)
	parts := NewParticipantRepository(db.Pool)
	chat := NewChatRepository(db.Pool)

	rm := createRoom(t, rooms)
	sid := uuid.NewString()
	p, _ := domain.NewParticipant(uuid.NewString(), rm.ID, "alice", sid, time.Now())
	require.NoError(t, parts.Join(ctx, p))

	again, _ := domain.NewParticipant(uuid.NewString(), rm.ID, "alice", sid, time.Now())
	assert.ErrorIs(t, parts.Join(ctx, again), domain.ErrAlreadyExists)

	muted := true
	upd, err := parts.UpdateStatus(ctx, sid, domain.StatusUpdate{Muted: &muted})
	require.NoError(t, err)
	assert.True(t, upd.IsMuted)
	assert.True(t, upd.IsVideoEnabled)

	at := time.Now().UTC().Truncate(time.Microsecond)
	for _, text := range []string{"one", "two"} {
		m, err := domain.NewChatMessage(uuid.NewString(), rm.ID, "alice", sid, text, 0, at)
		require.NoError(t, err)
		require.NoError(t, chat.Save(ctx, m))
		assert.NotZero(t, m.Seq)
	}
	hist, err := chat.History(ctx, rm.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "one", hist[0].Message)
	assert.Equal(t, "two", hist[1].Message)

	_, err = parts.MarkLeft(ctx, sid, time.Now())
	require.NoError(t, err)
	_, err = parts.MarkLeft(ctx, sid, time.Now())
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
	_, err = parts.UpdateStatus(ctx, sid, domain.StatusUpdate{Muted: &muted})
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound, "status of a departed participant")

	_, err = rooms.Close(ctx, rm.ID, time.Now())
	require.NoError(t, err)
	require.NoError(t, rooms.Delete(ctx, rm.ID))
}

func TestMapPgError(t *testing.T) {
	assert.ErrorIs(t, mapPgError(&pgconn.PgError{Code: "23505"}), domain.ErrAlreadyExists)
	assert.ErrorIs(t, mapPgError(&pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"}), domain.ErrValidation)

	other := errors.New("boom")
	assert.Equal(t, other, mapPgError(other))
}

func TestValidID(t *testing.T) {
	assert.True(t, validID(uuid.NewString()))
	assert.False(t, validID("abc"))
	assert.False(t, validID(""))
}

func TestPG_MalformedRoomID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	rooms := NewRoomRepository(db.Pool)
	parts := NewParticipantRepository(db.Pool)
	chat := NewChatRepository(db.Pool)

	_, err := rooms.GetByID(ctx, "abc")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = rooms.Close(ctx, "abc", time.Now())
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.ErrorIs(t, rooms.Delete(ctx, "abc"), domain.ErrRoomNotFound)

	list, err := parts.ListConnected(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, list)
	hist, err := chat.History(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, hist)
}
