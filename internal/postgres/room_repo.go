package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwrk-planet/meet-service/internal/domain"
)

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	_, err := r.db.Exec(ctx, queryCreateRoom,
		room.ID, room.RoomCode, room.RoomName, room.CreatedAt, room.ClosedAt, room.IsActive)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *RoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	if !validID(id) {
		return nil, domain.ErrRoomNotFound
	}
	return r.getOne(ctx, r.db, queryGetRoomByID, id)
}

func (r *RoomRepository) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	return r.getOne(ctx, r.db, queryGetRoomByCode, code)
}

func (r *RoomRepository) GetActiveByCode(ctx context.Context, code string) (*domain.Room, error) {
	return r.getOne(ctx, r.db, queryGetActiveRoomByCode, code)
}

func (r *RoomRepository) getOne(ctx context.Context, q querier, sql string, arg any) (*domain.Room, error) {
	room, err := scanRoom(q.QueryRow(ctx, sql, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, mapPgError(err)
	}
	return room, nil
}

func (r *RoomRepository) List(ctx context.Context, limit int, cursorStr string) ([]domain.Room, string, error) {
	cur, err := domain.DecodeRoomCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}

	var createdAt any
	var id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := r.db.Query(ctx, queryListActiveRooms, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, "", err
		}
		rooms = append(rooms, *rm)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var nextCursor string
	if len(rooms) == limit {
		nextCursor = domain.EncodeRoomCursor(rooms[len(rooms)-1])
	}

	return rooms, nextCursor, nil
}

// Close — закрывает комнату и отключает оставшихся участников одной транзакцией.
// Возвращает session_id отключённых участников.
func (r *RoomRepository) Close(ctx context.Context, id string, at time.Time) ([]string, error) {
	if !validID(id) {
		return nil, domain.ErrRoomNotFound
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var active bool
	if err := tx.QueryRow(ctx, queryLockRoom, id).Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	if !active {
		return nil, nil
	}

	if _, err := tx.Exec(ctx, queryCloseRoom, id, at); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, queryDisconnectRoom, id, at)
	if err != nil {
		return nil, err
	}
	var sessions []string
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			rows.Close()
			return nil, err
		}
		sessions = append(sessions, sid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit close: %w", err)
	}
	return sessions, nil
}

// Delete — удаляет комнату вместе с участниками и сообщениями (ON DELETE CASCADE),
// но только если в ней никого не осталось.
func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrRoomNotFound
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var active bool
	if err := tx.QueryRow(ctx, queryLockRoom, id).Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrRoomNotFound
		}
		return err
	}

	var connected int64
	if err := tx.QueryRow(ctx, queryCountConnected, id).Scan(&connected); err != nil {
		return err
	}
	if connected > 0 {
		return domain.ErrRoomNotEmpty
	}

	if _, err := tx.Exec(ctx, queryDeleteRoom, id); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func scanRoom(row pgx.Row) (*domain.Room, error) {
	var rm domain.Room
	if err := row.Scan(&rm.ID, &rm.RoomCode, &rm.RoomName, &rm.CreatedAt, &rm.ClosedAt, &rm.IsActive); err != nil {
		return nil, err
	}
	return &rm, nil
}
