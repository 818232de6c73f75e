package messages

import (
	"testing"

	"github.com/cbodonnell/tabletop/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeMessage(t *testing.T) {
	type args struct {
		t       MessageType
		payload interface{}
	}
	tests := []struct {
		name string
		args args
	}{
		{
			name: "Register user",
			args: args{
				t:       MessageTypeRegisterUser,
				payload: RegisterUser{Name: "Alice"},
			},
		},
		{
			name: "Add piece",
			args: args{
				t: MessageTypeAddOrUpdatePiece,
				payload: AddOrUpdatePiece{Piece: types.BoardPiece{
					ID:           "goblin-1",
					Name:         "Goblin",
					Position:     types.Position{X: 3, Y: 4},
					Size:         types.Size{Width: 1, Height: 1},
					SortingLayer: 2,
				}},
			},
		},
		{
			name: "Empty user list",
			args: args{
				t:       MessageTypeUserList,
				payload: UserList{Users: []types.Identity{}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.args.t, tt.args.payload)
			require.NoError(t, err)

			b, err := SerializeMessage(m)
			require.NoError(t, err)

			got, err := DeserializeMessage(b)
			require.NoError(t, err)

			assert.Equal(t, m.Type, got.Type)
			assert.JSONEq(t, string(m.Payload), string(got.Payload))
		})
	}
}

func TestDecodeTypedPayload(t *testing.T) {
	m, err := New(MessageTypeUpdateSkills, UpdateSkills{User: "Bob", Skill: "stealth", Proficient: true})
	require.NoError(t, err)

	b, err := SerializeMessage(m)
	require.NoError(t, err)
	got, err := DeserializeMessage(b)
	require.NoError(t, err)

	var payload UpdateSkills
	require.NoError(t, got.Decode(&payload))
	assert.Equal(t, UpdateSkills{User: "Bob", Skill: "stealth", Proficient: true}, payload)
}

func TestDeserializeMalformed(t *testing.T) {
	notCompressed := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	garbageFlatbuffer := encoder.EncodeAll([]byte{0xff, 0xff, 0xff, 0x7f, 0x00, 0x00, 0x00, 0x00}, nil)

	unknownType, err := SerializeMessageFlatbuffer(&Message{Type: MessageType(200), Payload: []byte(`{}`)})
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "not compressed", data: notCompressed},
		{name: "garbage flatbuffer", data: garbageFlatbuffer},
		{name: "unknown type", data: encoder.EncodeAll(unknownType, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeserializeMessage(tt.data)
			assert.ErrorIs(t, err, ErrMalformedMessage)
			assert.Nil(t, got)
		})
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	m := &Message{Type: MessageTypeDeletePiece, Payload: []byte(`{"id":`)}
	var payload DeletePiece
	assert.ErrorIs(t, m.Decode(&payload), ErrMalformedPayload)
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "RegisterUser", MessageTypeRegisterUser.String())
	assert.Equal(t, "CharacterData", MessageTypeCharacterData.String())
	assert.Equal(t, "MessageType(250)", MessageType(250).String())
	assert.False(t, MessageTypeUnknown.Valid())
	assert.True(t, MessageTypeLog.Valid())
}
