package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{name: "valid", content: "hello", want: nil},
		{name: "empty", content: "", want: ErrMessageEmpty},
		{name: "too long", content: strings.Repeat("a", MaxMessageLength+1), want: ErrMessageTooLong},
		{name: "at limit", content: strings.Repeat("a", MaxMessageLength), want: nil},
		{name: "invalid utf8", content: string([]byte{0xff, 0xfe}), want: ErrMessageInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateContent(tt.content), tt.want)
			if tt.want == nil {
				assert.NoError(t, ValidateContent(tt.content))
			}
		})
	}
}

func TestValidateRoomNameAndUserID(t *testing.T) {
	assert.NoError(t, ValidateRoomName("general"))
	assert.ErrorIs(t, ValidateRoomName(""), ErrRoomNameEmpty)
	assert.ErrorIs(t, ValidateRoomName(strings.Repeat("r", MaxRoomNameLength+1)), ErrRoomNameTooLong)

	assert.NoError(t, ValidateUserID("alice"))
	assert.ErrorIs(t, ValidateUserID(""), ErrUserIDEmpty)
	assert.ErrorIs(t, ValidateUserID(UserID(strings.Repeat("u", MaxUserIDLength+1))), ErrUserIDTooLong)
}

func TestRoomHasMember(t *testing.T) {
	room := Room{ID: "r1", Members: []UserID{"alice", "bob"}}

	assert.True(t, room.HasMember("alice"))
	assert.True(t, room.HasMember("bob"))
	assert.False(t, room.HasMember("carol"))
}
