package idgen

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomCode_Format(t *testing.T) {
	g := New()
	for i := 0; i < 200; i++ {
		code := g.RoomCode()
		assert.True(t, IsValidRoomCode(code), "bad code %q", code)
	}
}

func TestRoomCode_Uniqueness(t *testing.T) {
	g := New()
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		code := g.RoomCode()
		require.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestSessionID_IsUUID(t *testing.T) {
	g := New()
	a, b := g.SessionID(), g.SessionID()
	_, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestIsValidRoomCode(t *testing.T) {
	tests := []struct {
		name string
		code string
		want bool
	}{
		{"valid", "ABCD1234", true},
		{"lowercase", "abcd1234", false},
		{"too short", "ABC123", false},
		{"too long", "ABCD12345", false},
		{"symbol", "ABCD-123", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidRoomCode(tt.code))
		})
	}
}
