package ws

import (
	"encoding/json"
	"strings"

	"github.com/cwrk-planet/meet-service/internal/domain"
)

// Команды STOMP-подобного протокола поверх websocket.
const (
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdSend        = "SEND"
	CmdMessage     = "MESSAGE" // сервер → клиент
	CmdError       = "ERROR"   // сервер → клиент
)

const appPrefix = "/app/"

// Frame — входящий кадр клиента.
type Frame struct {
	Command     string          `json:"command"`
	Destination string          `json:"destination"`
	Body        json.RawMessage `json:"body,omitempty"`
}

type ErrorFrame struct {
	Command string `json:"command"`
	Message string `json:"message"`
}

// ChatFrame — тело SEND /app/chat/{code}.
type ChatFrame struct {
	RoomID          string `json:"roomId"`
	SenderUsername  string `json:"senderUsername"`
	SenderSessionID string `json:"senderSessionId"`
	Message         string `json:"message"`
}

type appKind int

const (
	appUnknown appKind = iota
	appSignal
	appChat
	appStatus
	appJoin
	appLeave
)

// appRoute разбирает /app/signal/{code}, /app/chat/{code}, /app/participant/{code}/{status|join|leave}.
func appRoute(dest string) (appKind, string) {
	rest, ok := strings.CutPrefix(dest, appPrefix)
	if !ok {
		return appUnknown, ""
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[0] == "signal" && parts[1] != "":
		return appSignal, domain.NormalizeRoomCode(parts[1])
	case len(parts) == 2 && parts[0] == "chat" && parts[1] != "":
		return appChat, domain.NormalizeRoomCode(parts[1])
	case len(parts) == 3 && parts[0] == "participant" && parts[1] != "":
		code := domain.NormalizeRoomCode(parts[1])
		switch parts[2] {
		case "status":
			return appStatus, code
		case "join":
			return appJoin, code
		case "leave":
			return appLeave, code
		}
	}
	return appUnknown, ""
}

// encodeMessage собирает MESSAGE вручную: json.Marshal переформатировал бы
// RawMessage и экранировал HTML, а тело сигнала должно дойти байт в байт.
func encodeMessage(dest string, body json.RawMessage) ([]byte, error) {
	qd, err := json.Marshal(dest)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		body = json.RawMessage("null")
	}
	out := make([]byte, 0, len(qd)+len(body)+48)
	out = append(out, `{"command":"MESSAGE","destination":`...)
	out = append(out, qd...)
	out = append(out, `,"body":`...)
	out = append(out, body...)
	out = append(out, '}')
	return out, nil
}

func encodeError(msg string) []byte {
	b, _ := json.Marshal(ErrorFrame{Command: CmdError, Message: msg})
	return b
}
