package domain

import (
	"encoding/json"
	"strings"
)

type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice-candidate"
)

func (t SignalType) Valid() bool {
	switch t {
	case SignalOffer, SignalAnswer, SignalICECandidate:
		return true
	default:
		return false
	}
}

// SignalEnvelope не сохраняется. Data передаётся как есть, без разбора SDP/ICE.
type SignalEnvelope struct {
	Type            SignalType      `json:"type"`
	SenderSessionID string          `json:"senderSessionId"`
	TargetSessionID string          `json:"targetSessionId,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}

func (e SignalEnvelope) Targeted() bool {
	return strings.TrimSpace(e.TargetSessionID) != ""
}

type ParticipantEventType string

const (
	ParticipantJoined ParticipantEventType = "join"
	ParticipantLeft   ParticipantEventType = "leave"
)

// ParticipantEvent — обёртка над уведомлением о входе/выходе.
type ParticipantEvent struct {
	Type        ParticipantEventType `json:"type"`
	Participant json.RawMessage      `json:"participant"`
	Timestamp   string               `json:"timestamp"`
}
