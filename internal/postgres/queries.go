package postgres

const (
	roomColumns = `id, room_code, room_name, created_at, closed_at, is_active`

	queryCreateRoom = `
		INSERT INTO rooms (id, room_code, room_name, created_at, closed_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)`
	queryGetRoomByID         = `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`
	queryGetRoomByCode       = `SELECT ` + roomColumns + ` FROM rooms WHERE room_code = $1`
	queryGetActiveRoomByCode = `SELECT ` + roomColumns + ` FROM rooms WHERE room_code = $1 AND is_active`
	queryLockRoom            = `SELECT is_active FROM rooms WHERE id = $1 FOR UPDATE`
	queryListActiveRooms     = `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE is_active
		  AND ($1::timestamptz IS NULL OR created_at < $1
		       OR (created_at = $1 AND id < $2::uuid))
		ORDER BY created_at DESC, id DESC
		LIMIT $3`
	queryCloseRoom = `
		UPDATE rooms SET is_active = FALSE, closed_at = $2
		WHERE id = $1 AND is_active`
	queryDisconnectRoom = `
		UPDATE participants SET is_connected = FALSE, left_at = $2
		WHERE room_id = $1 AND is_connected
		RETURNING session_id`
	queryCountConnected = `SELECT COUNT(*) FROM participants WHERE room_id = $1 AND is_connected`
	queryDeleteRoom     = `DELETE FROM rooms WHERE id = $1`

	participantColumns = `id, username, session_id, room_id, joined_at, left_at, is_connected, is_muted, is_video_enabled`

	queryCreateParticipant = `
		INSERT INTO participants (id, username, session_id, room_id, joined_at, left_at,
		                          is_connected, is_muted, is_video_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	queryGetParticipantBySession = `SELECT ` + participantColumns + ` FROM participants WHERE session_id = $1`
	queryMarkParticipantLeft     = `
		UPDATE participants SET is_connected = FALSE, left_at = $2
		WHERE session_id = $1 AND is_connected
		RETURNING ` + participantColumns
	queryUpdateParticipantStatus = `
		UPDATE participants
		SET is_muted = COALESCE($2, is_muted),
		    is_video_enabled = COALESCE($3, is_video_enabled)
		WHERE session_id = $1 AND is_connected
		RETURNING ` + participantColumns
	queryListConnected = `
		SELECT ` + participantColumns + `
		FROM participants
		WHERE room_id = $1 AND is_connected
		ORDER BY joined_at ASC, seq ASC`
	queryListSessionBindings = `
		SELECT p.session_id, r.room_code
		FROM participants AS p
		JOIN rooms AS r ON r.id = p.room_id
		WHERE p.is_connected`

	queryCreateMessage = `
		INSERT INTO chat_messages (id, room_id, sender_username, sender_session_id, message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq`
	queryHistory = `
		SELECT id, room_id, sender_username, sender_session_id, message, sent_at, seq
		FROM chat_messages
		WHERE room_id = $1
		ORDER BY sent_at ASC, seq ASC`
)
