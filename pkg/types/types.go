package types

import (
	"sort"
)

// Identity is the display name a client registers under.
// It keys all per-user data.
type Identity string

// PieceID identifies a board piece.
type PieceID string

// ItemID identifies an item in the catalog.
type ItemID int64

// AbilityID identifies an ability in the catalog.
type AbilityID int64

// Position is a point on the board in board units.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is the extent of a piece on the board.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BoardPiece is a token placed on the shared board.
type BoardPiece struct {
	ID           PieceID  `json:"id"`
	Name         string   `json:"name"`
	Image        string   `json:"image"`
	Position     Position `json:"position"`
	Size         Size     `json:"size"`
	SortingLayer int32    `json:"sortingLayer"`
	Locked       bool     `json:"locked"`
	SnapToGrid   bool     `json:"snapToGrid"`
}

// Contains reports whether the point lies inside the piece's rectangle.
// The rectangle includes its top and left edges but not its bottom and right edges.
func (p BoardPiece) Contains(x, y float64) bool {
	return x >= p.Position.X && x < p.Position.X+p.Size.Width &&
		y >= p.Position.Y && y < p.Position.Y+p.Size.Height
}

// BackpackPiece is a piece stowed off the board, keyed by name.
type BackpackPiece struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Image    string `json:"image"`
	Size     Size   `json:"size"`
}

// BoardData is the persisted board aggregate.
type BoardData struct {
	Pieces   []BoardPiece    `json:"pieces"`
	Backpack []BackpackPiece `json:"backpack"`
}

// Stats are a character's semi-static numbers.
type Stats struct {
	Strength     int32 `json:"strength"`
	Dexterity    int32 `json:"dexterity"`
	Constitution int32 `json:"constitution"`
	Intelligence int32 `json:"intelligence"`
	Wisdom       int32 `json:"wisdom"`
	Charisma     int32 `json:"charisma"`
	Health       int32 `json:"health"`
	MaxHealth    int32 `json:"maxHealth"`
	ArmorClass   int32 `json:"armorClass"`
}

// CharacterInfo holds the descriptive part of a character.
type CharacterInfo struct {
	Name    string          `json:"name"`
	Tagline string          `json:"tagline"`
	Skills  map[string]bool `json:"skills"`
	Stats   Stats           `json:"stats"`
}

// Item is a catalog entry.
type Item struct {
	ID          ItemID  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Weight      float64 `json:"weight"`
}

// Ability is a catalog entry.
type Ability struct {
	ID          AbilityID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	MaxUses     int32     `json:"maxUses"`
}

// ItemHandle is a character's reference to a catalog item.
type ItemHandle struct {
	ItemID   ItemID `json:"itemId"`
	Count    int32  `json:"count"`
	Equipped bool   `json:"equipped"`
}

// AbilityHandle is a character's reference to a catalog ability.
type AbilityHandle struct {
	AbilityID AbilityID `json:"abilityId"`
	Count     int32     `json:"count"`
}

// CharacterStorage is everything the server keeps for one identity.
type CharacterStorage struct {
	Info      CharacterInfo               `json:"info"`
	Items     map[ItemID]ItemHandle       `json:"items"`
	Abilities map[AbilityID]AbilityHandle `json:"abilities"`
}

// NewCharacterStorage returns an empty character with initialized maps.
func NewCharacterStorage(info CharacterInfo) *CharacterStorage {
	if info.Skills == nil {
		info.Skills = make(map[string]bool)
	}
	return &CharacterStorage{
		Info:      info,
		Items:     make(map[ItemID]ItemHandle),
		Abilities: make(map[AbilityID]AbilityHandle),
	}
}

// Copy returns a deep copy of the character.
func (c *CharacterStorage) Copy() *CharacterStorage {
	copied := &CharacterStorage{
		Info:      c.Info,
		Items:     make(map[ItemID]ItemHandle, len(c.Items)),
		Abilities: make(map[AbilityID]AbilityHandle, len(c.Abilities)),
	}
	copied.Info.Skills = make(map[string]bool, len(c.Info.Skills))
	for k, v := range c.Info.Skills {
		copied.Info.Skills[k] = v
	}
	for k, v := range c.Items {
		copied.Items[k] = v
	}
	for k, v := range c.Abilities {
		copied.Abilities[k] = v
	}
	return copied
}

// DataSnapshot is the wire and persistence form of the data store.
type DataSnapshot struct {
	Characters map[Identity]*CharacterStorage `json:"characters"`
	Items      []Item                         `json:"items"`
	Abilities  []Ability                      `json:"abilities"`
}

// CharacterNames returns the snapshot's character identities in sorted order.
func (s *DataSnapshot) CharacterNames() []Identity {
	names := make([]Identity, 0, len(s.Characters))
	for name := range s.Characters {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
