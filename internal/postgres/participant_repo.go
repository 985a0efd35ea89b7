package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwrk-planet/meet-service/internal/domain"
)

type ParticipantRepository struct {
	db *pgxpool.Pool
}

func NewParticipantRepository(db *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// Join — защищён от гонки с закрытием комнаты.
// Строка комнаты блокируется, параллельный Close по той же комнате будет ждать.
func (r *ParticipantRepository) Join(ctx context.Context, p *domain.Participant) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var active bool
	if err := tx.QueryRow(ctx, queryLockRoom, p.RoomID).Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrRoomNotFound
		}
		return err
	}
	if !active {
		return domain.ErrRoomInactive
	}

	if _, err := tx.Exec(ctx, queryCreateParticipant,
		p.ID, p.Username, p.SessionID, p.RoomID, p.JoinedAt, p.LeftAt,
		p.IsConnected, p.IsMuted, p.IsVideoEnabled,
	); err != nil {
		return mapPgError(err)
	}

	return tx.Commit(ctx)
}

func (r *ParticipantRepository) GetBySession(ctx context.Context, sessionID string) (*domain.Participant, error) {
	return r.getOne(ctx, queryGetParticipantBySession, sessionID)
}

func (r *ParticipantRepository) MarkLeft(ctx context.Context, sessionID string, at time.Time) (*domain.Participant, error) {
	return r.getOne(ctx, queryMarkParticipantLeft, sessionID, at)
}

func (r *ParticipantRepository) UpdateStatus(ctx context.Context, sessionID string, upd domain.StatusUpdate) (*domain.Participant, error) {
	return r.getOne(ctx, queryUpdateParticipantStatus, sessionID, upd.Muted, upd.VideoEnabled)
}

func (r *ParticipantRepository) getOne(ctx context.Context, sql string, args ...any) (*domain.Participant, error) {
	p, err := scanParticipant(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, mapPgError(err)
	}
	return p, nil
}

func (r *ParticipantRepository) ListConnected(ctx context.Context, roomID string) ([]domain.Participant, error) {
	if !validID(roomID) {
		return []domain.Participant{}, nil
	}
	rows, err := r.db.Query(ctx, queryListConnected, roomID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	list := make([]domain.Participant, 0, 8)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// SessionBindings — все подключённые сессии с кодами их комнат; нужен для прогрева presence.
func (r *ParticipantRepository) SessionBindings(ctx context.Context) ([]domain.SessionBinding, error) {
	rows, err := r.db.Query(ctx, queryListSessionBindings)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SessionBinding
	for rows.Next() {
		var b domain.SessionBinding
		if err := rows.Scan(&b.SessionID, &b.RoomCode); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanParticipant(row pgx.Row) (*domain.Participant, error) {
	var p domain.Participant
	err := row.Scan(
		&p.ID,
		&p.Username,
		&p.SessionID,
		&p.RoomID,
		&p.JoinedAt,
		&p.LeftAt,
		&p.IsConnected,
		&p.IsMuted,
		&p.IsVideoEnabled,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
