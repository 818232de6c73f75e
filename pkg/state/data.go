package state

import (
	"fmt"
	"sort"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/types"
)

// DataStore holds every character plus the item and ability catalogs.
// DataStore is not safe for concurrent use; Store guards it.
type DataStore struct {
	characters map[types.Identity]*types.CharacterStorage
	items      map[types.ItemID]types.Item
	abilities  map[types.AbilityID]types.Ability
}

func NewDataStore() *DataStore {
	return &DataStore{
		characters: make(map[types.Identity]*types.CharacterStorage),
		items:      make(map[types.ItemID]types.Item),
		abilities:  make(map[types.AbilityID]types.Ability),
	}
}

// NewDataStoreFromSnapshot builds a DataStore from a snapshot. The snapshot is copied.
// Handles that reference an item or ability missing from the snapshot's catalogs are dropped.
func NewDataStoreFromSnapshot(snapshot types.DataSnapshot) *DataStore {
	d := NewDataStore()
	for _, item := range snapshot.Items {
		d.items[item.ID] = item
	}
	for _, ability := range snapshot.Abilities {
		d.abilities[ability.ID] = ability
	}
	for name, character := range snapshot.Characters {
		if character == nil {
			continue
		}
		copied := character.Copy()
		d.dropDangling(name, copied)
		d.characters[name] = copied
	}
	return d
}

func (d *DataStore) dropDangling(name types.Identity, character *types.CharacterStorage) {
	for id := range character.Items {
		if _, ok := d.items[id]; !ok {
			log.Warn("Dropping item %d for %s: not in the item catalog", id, name)
			delete(character.Items, id)
		}
	}
	for id := range character.Abilities {
		if _, ok := d.abilities[id]; !ok {
			log.Warn("Dropping ability %d for %s: not in the ability catalog", id, name)
			delete(character.Abilities, id)
		}
	}
}

func (d *DataStore) character(user types.Identity) (*types.CharacterStorage, error) {
	character, ok := d.characters[user]
	if !ok {
		return nil, fmt.Errorf("%w for user %s", ErrCharacterNotFound, user)
	}
	return character, nil
}

// Character returns a copy of the user's character.
func (d *DataStore) Character(user types.Identity) (*types.CharacterStorage, error) {
	character, err := d.character(user)
	if err != nil {
		return nil, err
	}
	return character.Copy(), nil
}

// CharacterNames returns the identities with a character, sorted.
func (d *DataStore) CharacterNames() []types.Identity {
	names := make([]types.Identity, 0, len(d.characters))
	for name := range d.characters {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Items returns the item catalog sorted by id.
func (d *DataStore) Items() []types.Item {
	items := make([]types.Item, 0, len(d.items))
	for _, item := range d.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

// Abilities returns the ability catalog sorted by id.
func (d *DataStore) Abilities() []types.Ability {
	abilities := make([]types.Ability, 0, len(d.abilities))
	for _, ability := range d.abilities {
		abilities = append(abilities, ability)
	}
	sort.Slice(abilities, func(i, j int) bool { return abilities[i].ID < abilities[j].ID })
	return abilities
}

func (d *DataStore) ValidateStats(user types.Identity) error {
	_, err := d.character(user)
	return err
}

func (d *DataStore) UpdateStats(user types.Identity, stats types.Stats) error {
	character, err := d.character(user)
	if err != nil {
		return err
	}
	character.Info.Stats = stats
	return nil
}

func (d *DataStore) ValidateSkill(user types.Identity, skill string) error {
	if skill == "" {
		return fmt.Errorf("empty skill name for user %s", user)
	}
	_, err := d.character(user)
	return err
}

// UpdateSkill sets the proficiency of one skill.
func (d *DataStore) UpdateSkill(user types.Identity, skill string, proficient bool) error {
	if err := d.ValidateSkill(user, skill); err != nil {
		return err
	}
	character := d.characters[user]
	if character.Info.Skills == nil {
		character.Info.Skills = make(map[string]bool)
	}
	character.Info.Skills[skill] = proficient
	return nil
}

// ValidateAbilityCount checks that the user holds the ability and that it is in the catalog.
func (d *DataStore) ValidateAbilityCount(user types.Identity, abilityID types.AbilityID) error {
	character, err := d.character(user)
	if err != nil {
		return err
	}
	if _, ok := d.abilities[abilityID]; !ok {
		return fmt.Errorf("%w: ability %d is not in the catalog", ErrAbilityNotFound, abilityID)
	}
	if _, ok := character.Abilities[abilityID]; !ok {
		return fmt.Errorf("%w: ability %d for user %s", ErrAbilityNotFound, abilityID, user)
	}
	return nil
}

// UpdateAbilityCount sets the remaining uses of an ability the user holds.
func (d *DataStore) UpdateAbilityCount(user types.Identity, abilityID types.AbilityID, count int32) error {
	if err := d.ValidateAbilityCount(user, abilityID); err != nil {
		return err
	}
	handle := d.characters[user].Abilities[abilityID]
	handle.Count = count
	d.characters[user].Abilities[abilityID] = handle
	return nil
}

// ValidateItemHandle checks that the user exists and the item is in the catalog.
func (d *DataStore) ValidateItemHandle(user types.Identity, handle types.ItemHandle) error {
	if _, err := d.character(user); err != nil {
		return err
	}
	if _, ok := d.items[handle.ItemID]; !ok {
		return fmt.Errorf("%w: item %d for user %s", ErrItemNotFound, handle.ItemID, user)
	}
	return nil
}

// UpdateItemHandle sets the user's handle for an item. A count of zero or less removes it.
func (d *DataStore) UpdateItemHandle(user types.Identity, handle types.ItemHandle) error {
	if err := d.ValidateItemHandle(user, handle); err != nil {
		return err
	}
	character := d.characters[user]
	if handle.Count <= 0 {
		delete(character.Items, handle.ItemID)
		return nil
	}
	if character.Items == nil {
		character.Items = make(map[types.ItemID]types.ItemHandle)
	}
	character.Items[handle.ItemID] = handle
	return nil
}

// Snapshot returns a deep copy of the store.
func (d *DataStore) Snapshot() types.DataSnapshot {
	snapshot := types.DataSnapshot{
		Characters: make(map[types.Identity]*types.CharacterStorage, len(d.characters)),
		Items:      d.Items(),
		Abilities:  d.Abilities(),
	}
	for name, character := range d.characters {
		snapshot.Characters[name] = character.Copy()
	}
	return snapshot
}

func (d *DataStore) CharacterCount() int {
	return len(d.characters)
}
