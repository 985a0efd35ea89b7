package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwrk-planet/meet-service/internal/domain"
)

type ChatRepository struct {
	db *pgxpool.Pool
}

func NewChatRepository(db *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{db: db}
}

// Save сохраняет сообщение; seq проставляет база, он служит тай-брейкером при равном sent_at.
func (r *ChatRepository) Save(ctx context.Context, m *domain.ChatMessage) error {
	err := r.db.QueryRow(ctx, queryCreateMessage,
		m.ID, m.RoomID, m.SenderUsername, m.SenderSessionID, m.Message, m.SentAt,
	).Scan(&m.Seq)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

// History возвращает всю историю комнаты по возрастанию sent_at, затем seq.
func (r *ChatRepository) History(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	if !validID(roomID) {
		return []domain.ChatMessage{}, nil
	}
	rows, err := r.db.Query(ctx, queryHistory, roomID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	out := make([]domain.ChatMessage, 0, 32)
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderUsername, &m.SenderSessionID, &m.Message, &m.SentAt, &m.Seq); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
