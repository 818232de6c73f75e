package state

import "errors"

var (
	ErrCharacterNotFound = errors.New("character not found")
	ErrItemNotFound      = errors.New("item not found")
	ErrAbilityNotFound   = errors.New("ability not found")
)
