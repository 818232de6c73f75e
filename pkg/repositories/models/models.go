package models

import (
	"time"

	"github.com/cbodonnell/tabletop/pkg/types"
)

// Collection names in the backing store.
const (
	CollectionBoardData       = "board_data"
	CollectionCharacter       = "character"
	CollectionInventory       = "inventory"
	CollectionPlayerAbilities = "player_abilities"
	CollectionItems           = "items"
	CollectionAbilities       = "abilities"
)

// Snapshot tags.
const (
	// TagAutosave marks board snapshots written by the autosave timer.
	TagAutosave = "autosave"
	// TagManual marks board snapshots requested through the admin API.
	TagManual = "manual"
)

// BoardDataRecord is one saved snapshot of the board. Snapshots are append-only.
type BoardDataRecord struct {
	ID        int64           `json:"id,omitempty"`
	Tag       string          `json:"tag"`
	Data      types.BoardData `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

type Character struct {
	UserName string          `json:"user_name"`
	Name     string          `json:"name"`
	Tagline  string          `json:"tagline"`
	Stats    types.Stats     `json:"stats"`
	Skills   map[string]bool `json:"skills"`
}

type InventoryEntry struct {
	UserName string `json:"user_name"`
	ItemID   int64  `json:"item_id"`
	Count    int32  `json:"count"`
	Equipped bool   `json:"equipped"`
}

type PlayerAbility struct {
	UserName  string `json:"user_name"`
	AbilityID int64  `json:"ability_id"`
	Count     int32  `json:"count"`
}

type Item struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Weight      float64 `json:"weight"`
}

type Ability struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MaxUses     int32  `json:"max_uses"`
}
