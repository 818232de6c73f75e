package repositories

import (
	"context"
	"sort"
	"sync"

	"github.com/cbodonnell/tabletop/pkg/repositories/models"
	"github.com/cbodonnell/tabletop/pkg/types"
)

type userKey struct {
	userName string
	id       int64
}

// MemoryRepository is an in-memory implementation of the repository interface.
// It is used for development and tests; nothing survives a restart.
type MemoryRepository struct {
	mu sync.RWMutex

	boardData       []models.BoardDataRecord
	nextBoardDataID int64
	items           map[int64]models.Item
	abilities       map[int64]models.Ability
	characters      map[string]models.Character
	inventory       map[userKey]models.InventoryEntry
	playerAbilities map[userKey]models.PlayerAbility
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items:           make(map[int64]models.Item),
		abilities:       make(map[int64]models.Ability),
		characters:      make(map[string]models.Character),
		inventory:       make(map[userKey]models.InventoryEntry),
		playerAbilities: make(map[userKey]models.PlayerAbility),
	}
}

// Ensure MemoryRepository implements the interface
var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) Close(ctx context.Context) error {
	return nil
}

// Seeding

func (r *MemoryRepository) PutItem(item models.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item
}

func (r *MemoryRepository) PutAbility(ability models.Ability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abilities[ability.ID] = ability
}

func (r *MemoryRepository) PutCharacter(character models.Character) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.characters[character.UserName] = copyCharacter(character)
}

func (r *MemoryRepository) PutPlayerAbility(ability models.PlayerAbility) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playerAbilities[userKey{ability.UserName, ability.AbilityID}] = ability
}

// BoardDataCount returns the number of saved snapshots.
func (r *MemoryRepository) BoardDataCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.boardData)
}

func copyCharacter(c models.Character) models.Character {
	skills := make(map[string]bool, len(c.Skills))
	for k, v := range c.Skills {
		skills[k] = v
	}
	c.Skills = skills
	return c
}

func (r *MemoryRepository) LoadLatestBoardData(ctx context.Context) (*models.BoardDataRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.boardData) == 0 {
		return nil, notFound("board data")
	}
	latest := r.boardData[0]
	for _, record := range r.boardData[1:] {
		if record.CreatedAt.After(latest.CreatedAt) ||
			(record.CreatedAt.Equal(latest.CreatedAt) && record.ID > latest.ID) {
			latest = record
		}
	}
	return &latest, nil
}

func (r *MemoryRepository) SaveBoardData(ctx context.Context, record *models.BoardDataRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextBoardDataID++
	record.ID = r.nextBoardDataID
	saved := *record
	saved.Data = types.BoardData{
		Pieces:   append([]types.BoardPiece(nil), record.Data.Pieces...),
		Backpack: append([]types.BackpackPiece(nil), record.Data.Backpack...),
	}
	r.boardData = append(r.boardData, saved)
	return nil
}

func (r *MemoryRepository) ListItems(ctx context.Context) ([]models.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]models.Item, 0, len(r.items))
	for _, item := range r.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r *MemoryRepository) ListAbilities(ctx context.Context) ([]models.Ability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	abilities := make([]models.Ability, 0, len(r.abilities))
	for _, ability := range r.abilities {
		abilities = append(abilities, ability)
	}
	sort.Slice(abilities, func(i, j int) bool { return abilities[i].ID < abilities[j].ID })
	return abilities, nil
}

func (r *MemoryRepository) ListCharacters(ctx context.Context) ([]models.Character, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	characters := make([]models.Character, 0, len(r.characters))
	for _, c := range r.characters {
		characters = append(characters, copyCharacter(c))
	}
	sort.Slice(characters, func(i, j int) bool { return characters[i].UserName < characters[j].UserName })
	return characters, nil
}

func (r *MemoryRepository) ListInventory(ctx context.Context) ([]models.InventoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]models.InventoryEntry, 0, len(r.inventory))
	for _, e := range r.inventory {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UserName != entries[j].UserName {
			return entries[i].UserName < entries[j].UserName
		}
		return entries[i].ItemID < entries[j].ItemID
	})
	return entries, nil
}

func (r *MemoryRepository) ListPlayerAbilities(ctx context.Context) ([]models.PlayerAbility, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	abilities := make([]models.PlayerAbility, 0, len(r.playerAbilities))
	for _, a := range r.playerAbilities {
		abilities = append(abilities, a)
	}
	sort.Slice(abilities, func(i, j int) bool {
		if abilities[i].UserName != abilities[j].UserName {
			return abilities[i].UserName < abilities[j].UserName
		}
		return abilities[i].AbilityID < abilities[j].AbilityID
	})
	return abilities, nil
}

func (r *MemoryRepository) UpdateCharacterStats(ctx context.Context, userName string, stats types.Stats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.characters[userName]
	if !ok {
		return notFound("character %s", userName)
	}
	c.Stats = stats
	r.characters[userName] = c
	return nil
}

func (r *MemoryRepository) UpdateCharacterSkills(ctx context.Context, userName string, skills map[string]bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.characters[userName]
	if !ok {
		return notFound("character %s", userName)
	}
	c.Skills = skills
	r.characters[userName] = copyCharacter(c)
	return nil
}

func (r *MemoryRepository) UpsertInventoryEntry(ctx context.Context, entry models.InventoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inventory[userKey{entry.UserName, entry.ItemID}] = entry
	return nil
}

func (r *MemoryRepository) DeleteInventoryEntry(ctx context.Context, userName string, itemID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inventory, userKey{userName, itemID})
	return nil
}

func (r *MemoryRepository) UpdatePlayerAbilityCount(ctx context.Context, userName string, abilityID int64, count int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := userKey{userName, abilityID}
	a, ok := r.playerAbilities[key]
	if !ok {
		return notFound("ability %d for %s", abilityID, userName)
	}
	a.Count = count
	r.playerAbilities[key] = a
	return nil
}
