// Package memstore — хранилище в памяти с той же семантикой, что и postgres-репозитории.
// Используется, когда DSN не задан (локальный запуск, тесты).
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/meet-service/internal/domain"
)

// Store держит все таблицы под одной защёлкой, как одна база.
// Каждая операция короткая и не делает I/O.
type Store struct {
	mu sync.Mutex

	rooms        map[string]*domain.Room // id -> room
	roomsByCode  map[string]string       // code -> id
	participants map[string]*participantRow
	bySession    map[string]string // session -> participant id
	messages     map[string][]domain.ChatMessage

	partSeq int64
	msgSeq  int64
}

type participantRow struct {
	domain.Participant
	seq int64
}

func New() *Store {
	return &Store{
		rooms:        make(map[string]*domain.Room),
		roomsByCode:  make(map[string]string),
		participants: make(map[string]*participantRow),
		bySession:    make(map[string]string),
		messages:     make(map[string][]domain.ChatMessage),
	}
}

func (s *Store) Rooms() *RoomRepository               { return &RoomRepository{s: s} }
func (s *Store) Participants() *ParticipantRepository { return &ParticipantRepository{s: s} }
func (s *Store) Chat() *ChatRepository                { return &ChatRepository{s: s} }

// Ping — для readyz; хранилище в памяти всегда готово, если контекст жив.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

type RoomRepository struct{ s *Store }

func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roomsByCode[room.RoomCode]; ok {
		return domain.ErrAlreadyExists
	}
	if _, ok := s.rooms[room.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *room
	s.rooms[room.ID] = &cp
	s.roomsByCode[room.RoomCode] = room.ID
	return nil
}

func (r *RoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := *rm
	return &cp, nil
}

func (r *RoomRepository) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.roomsByCode[code]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := *s.rooms[id]
	return &cp, nil
}

func (r *RoomRepository) GetActiveByCode(ctx context.Context, code string) (*domain.Room, error) {
	rm, err := r.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !rm.IsActive {
		return nil, domain.ErrRoomNotFound
	}
	return rm, nil
}

func (r *RoomRepository) List(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error) {
	cur, err := domain.DecodeRoomCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	s := r.s
	s.mu.Lock()
	all := make([]domain.Room, 0, len(s.rooms))
	for _, rm := range s.rooms {
		if rm.IsActive && (cur == nil || cur.After(*rm)) {
			all = append(all, *rm)
		}
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if len(all) > limit {
		all = all[:limit]
	}
	var next string
	if len(all) == limit && limit > 0 {
		next = domain.EncodeRoomCursor(all[len(all)-1])
	}
	return all, next, nil
}

func (r *RoomRepository) Close(ctx context.Context, id string, at time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	if !rm.Close(at) {
		return nil, nil
	}

	var sessions []string
	for _, p := range s.participants {
		if p.RoomID == id && p.Leave(at) {
			sessions = append(sessions, p.SessionID)
		}
	}
	sort.Strings(sessions)
	return sessions, nil
}

func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	for _, p := range s.participants {
		if p.RoomID == id && p.IsConnected {
			return domain.ErrRoomNotEmpty
		}
	}

	for pid, p := range s.participants {
		if p.RoomID == id {
			delete(s.bySession, p.SessionID)
			delete(s.participants, pid)
		}
	}
	delete(s.messages, id)
	delete(s.roomsByCode, rm.RoomCode)
	delete(s.rooms, id)
	return nil
}

type ParticipantRepository struct{ s *Store }

func (r *ParticipantRepository) Join(ctx context.Context, p *domain.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.rooms[p.RoomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if !rm.IsActive {
		return domain.ErrRoomInactive
	}
	if _, ok := s.bySession[p.SessionID]; ok {
		return domain.ErrAlreadyExists
	}
	if _, ok := s.participants[p.ID]; ok {
		return domain.ErrAlreadyExists
	}

	s.partSeq++
	s.participants[p.ID] = &participantRow{Participant: *p, seq: s.partSeq}
	s.bySession[p.SessionID] = p.ID
	return nil
}

func (r *ParticipantRepository) lookup(sessionID string) (*participantRow, bool) {
	id, ok := r.s.bySession[sessionID]
	if !ok {
		return nil, false
	}
	return r.s.participants[id], true
}

func (r *ParticipantRepository) GetBySession(ctx context.Context, sessionID string) (*domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.lookup(sessionID)
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	cp := row.Participant
	return &cp, nil
}

func (r *ParticipantRepository) MarkLeft(ctx context.Context, sessionID string, at time.Time) (*domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.lookup(sessionID)
	if !ok || !row.Leave(at) {
		return nil, domain.ErrParticipantNotFound
	}
	cp := row.Participant
	return &cp, nil
}

func (r *ParticipantRepository) UpdateStatus(ctx context.Context, sessionID string, upd domain.StatusUpdate) (*domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.lookup(sessionID)
	if !ok || !row.IsConnected {
		return nil, domain.ErrParticipantNotFound
	}
	row.Apply(upd)
	cp := row.Participant
	return &cp, nil
}

func (r *ParticipantRepository) ListConnected(ctx context.Context, roomID string) ([]domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	rows := make([]participantRow, 0, 8)
	for _, p := range r.s.participants {
		if p.RoomID == roomID && p.IsConnected {
			rows = append(rows, *p)
		}
	}
	r.s.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].JoinedAt.Equal(rows[j].JoinedAt) {
			return rows[i].seq < rows[j].seq
		}
		return rows[i].JoinedAt.Before(rows[j].JoinedAt)
	})

	out := make([]domain.Participant, len(rows))
	for i := range rows {
		out[i] = rows[i].Participant
	}
	return out, nil
}

func (r *ParticipantRepository) SessionBindings(ctx context.Context) ([]domain.SessionBinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []domain.SessionBinding
	for _, p := range r.s.participants {
		if !p.IsConnected {
			continue
		}
		if rm, ok := r.s.rooms[p.RoomID]; ok {
			out = append(out, domain.SessionBinding{SessionID: p.SessionID, RoomCode: rm.RoomCode})
		}
	}
	return out, nil
}

type ChatRepository struct{ s *Store }

func (r *ChatRepository) Save(ctx context.Context, m *domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[m.RoomID]; !ok {
		return domain.ErrRoomNotFound
	}
	s.msgSeq++
	m.Seq = s.msgSeq
	s.messages[m.RoomID] = append(s.messages[m.RoomID], *m)
	return nil
}

func (r *ChatRepository) History(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	out := append([]domain.ChatMessage(nil), r.s.messages[roomID]...)
	r.s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].SentAt.Before(out[j].SentAt)
	})
	if out == nil {
		out = []domain.ChatMessage{}
	}
	return out, nil
}
