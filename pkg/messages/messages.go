package messages

import (
	"encoding/json"
	"fmt"

	"github.com/cbodonnell/tabletop/pkg/types"
)

const (
	// MessageBufferSize represents the maximum size of an encoded message
	MessageBufferSize = 1 << 20
)

// MessageType tags the variant carried in a Message payload.
type MessageType byte

// Message types. Values are part of the wire format and must not be reordered.
const (
	MessageTypeUnknown MessageType = iota
	MessageTypeRegisterUser
	MessageTypeUnregisterUser
	MessageTypeRetrieveCharacterData
	MessageTypeAddOrUpdatePiece
	MessageTypeDeletePiece
	MessageTypeStoreBackpackPiece
	MessageTypeRemoveBackpackPiece
	MessageTypeUpdateItemHandle
	MessageTypeUpdateAbilityCount
	MessageTypeUpdateCharacterStats
	MessageTypeUpdateSkills
	MessageTypeOverwriteAllData
	MessageTypeLog
	MessageTypeUserList
	MessageTypeUserNotificationAdded
	MessageTypeUserNotificationRemoved
	MessageTypeItemList
	MessageTypeAbilityList
	MessageTypeCharacterData
	messageTypeCount
)

var messageTypeNames = [...]string{
	MessageTypeUnknown:                 "Unknown",
	MessageTypeRegisterUser:            "RegisterUser",
	MessageTypeUnregisterUser:          "UnregisterUser",
	MessageTypeRetrieveCharacterData:   "RetrieveCharacterData",
	MessageTypeAddOrUpdatePiece:        "AddOrUpdatePiece",
	MessageTypeDeletePiece:             "DeletePiece",
	MessageTypeStoreBackpackPiece:      "StoreBackpackPiece",
	MessageTypeRemoveBackpackPiece:     "RemoveBackpackPiece",
	MessageTypeUpdateItemHandle:        "UpdateItemHandle",
	MessageTypeUpdateAbilityCount:      "UpdateAbilityCount",
	MessageTypeUpdateCharacterStats:    "UpdateCharacterStats",
	MessageTypeUpdateSkills:            "UpdateSkills",
	MessageTypeOverwriteAllData:        "OverwriteAllData",
	MessageTypeLog:                     "Log",
	MessageTypeUserList:                "UserList",
	MessageTypeUserNotificationAdded:   "UserNotificationAdded",
	MessageTypeUserNotificationRemoved: "UserNotificationRemoved",
	MessageTypeItemList:                "ItemList",
	MessageTypeAbilityList:             "AbilityList",
	MessageTypeCharacterData:           "CharacterData",
}

func (t MessageType) String() string {
	if t < messageTypeCount {
		return messageTypeNames[t]
	}
	return fmt.Sprintf("MessageType(%d)", byte(t))
}

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t > MessageTypeUnknown && t < messageTypeCount
}

// Message represents a generic message for serialization/deserialization
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// New builds a Message with the JSON encoding of payload.
func New(t MessageType, payload interface{}) (*Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %v", t, err)
	}
	return &Message{
		Type:    t,
		Payload: b,
	}, nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v interface{}) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedPayload, m.Type, err)
	}
	return nil
}

// Client requests

type RegisterUser struct {
	Name types.Identity `json:"name"`
}

type UnregisterUser struct {
	Name types.Identity `json:"name"`
}

type RetrieveCharacterData struct {
	User types.Identity `json:"user"`
}

// Board messages

type AddOrUpdatePiece struct {
	Piece types.BoardPiece `json:"piece"`
}

type DeletePiece struct {
	ID types.PieceID `json:"id"`
}

type StoreBackpackPiece struct {
	Piece types.BackpackPiece `json:"piece"`
}

type RemoveBackpackPiece struct {
	Name string `json:"name"`
}

// Data messages

type UpdateItemHandle struct {
	User   types.Identity   `json:"user"`
	Handle types.ItemHandle `json:"handle"`
}

type UpdateAbilityCount struct {
	User      types.Identity  `json:"user"`
	AbilityID types.AbilityID `json:"abilityId"`
	Count     int32           `json:"count"`
}

type UpdateCharacterStats struct {
	User  types.Identity `json:"user"`
	Stats types.Stats    `json:"stats"`
}

type UpdateSkills struct {
	User       types.Identity `json:"user"`
	Skill      string         `json:"skill"`
	Proficient bool           `json:"proficient"`
}

type OverwriteAllData struct {
	Data types.DataSnapshot `json:"data"`
}

// LogKind tags a log entry shown in the client's session log.
type LogKind string

const (
	LogKindJoined LogKind = "joined"
	LogKindLeft   LogKind = "left"
	LogKindChat   LogKind = "chat"
	LogKindRoll   LogKind = "roll"
)

type LogPayload struct {
	Kind LogKind `json:"kind"`
	Text string  `json:"text"`
}

type Log struct {
	User    types.Identity `json:"user"`
	Payload LogPayload     `json:"payload"`
}

// Server notifications

type UserList struct {
	Users []types.Identity `json:"users"`
}

type UserNotification struct {
	Name types.Identity `json:"name"`
}

type ItemList struct {
	Items []types.Item `json:"items"`
}

type AbilityList struct {
	Abilities []types.Ability `json:"abilities"`
}

type CharacterData struct {
	User      types.Identity          `json:"user"`
	Character *types.CharacterStorage `json:"character"`
}
