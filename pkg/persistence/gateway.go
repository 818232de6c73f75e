package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/repositories"
	"github.com/cbodonnell/tabletop/pkg/repositories/models"
	"github.com/cbodonnell/tabletop/pkg/state"
	"github.com/cbodonnell/tabletop/pkg/types"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds each backing store call when no timeout is configured
const DefaultTimeout = 10 * time.Second

// Gateway moves state between the in-memory store and the repository.
type Gateway struct {
	repository repositories.Repository
	timeout    time.Duration
	now        func() time.Time
}

type NewGatewayOptions struct {
	Repository repositories.Repository
	Timeout    time.Duration
	// Now stamps saved snapshots. Defaults to time.Now.
	Now func() time.Time
}

func NewGateway(opts NewGatewayOptions) *Gateway {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Gateway{
		repository: opts.Repository,
		timeout:    timeout,
		now:        now,
	}
}

// Load returns the latest board snapshot and the character catalog.
// A store without any snapshot yields an empty board. The two halves load
// independently: if one fails the other is still returned, the failed half is
// empty, and the error reports what failed.
func (g *Gateway) Load(ctx context.Context) (types.BoardData, types.DataSnapshot, error) {
	board, boardErr := g.LoadBoard(ctx)
	if boardErr != nil {
		board = types.BoardData{}
	}
	data, dataErr := g.LoadCatalog(ctx)
	if dataErr != nil {
		data = types.DataSnapshot{}
	}
	return board, data, errors.Join(boardErr, dataErr)
}

func (g *Gateway) LoadBoard(ctx context.Context) (types.BoardData, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	record, err := g.repository.LoadLatestBoardData(ctx)
	if err != nil {
		if repositories.IsNotFound(err) {
			log.Info("No saved board found, starting empty")
			return types.BoardData{}, nil
		}
		return types.BoardData{}, fmt.Errorf("failed to load board data: %w", err)
	}
	log.Info("Loaded board data %d (%s) from %s", record.ID, record.Tag, record.CreatedAt.Format(time.RFC3339))
	return record.Data, nil
}

// LoadCatalog fetches every collection concurrently and assembles the data store
// once all of them succeed. Handles that reference unknown characters or catalog
// entries are dropped.
func (g *Gateway) LoadCatalog(ctx context.Context) (types.DataSnapshot, error) {
	var (
		items           []models.Item
		abilities       []models.Ability
		characters      []models.Character
		inventory       []models.InventoryEntry
		playerAbilities []models.PlayerAbility
	)

	eg, egCtx := errgroup.WithContext(ctx)
	fetch := func(name string, fn func(ctx context.Context) error) {
		eg.Go(func() error {
			ctx, cancel := context.WithTimeout(egCtx, g.timeout)
			defer cancel()
			if err := fn(ctx); err != nil {
				return fmt.Errorf("failed to load %s: %w", name, err)
			}
			return nil
		})
	}
	fetch(models.CollectionItems, func(ctx context.Context) (err error) {
		items, err = g.repository.ListItems(ctx)
		return err
	})
	fetch(models.CollectionAbilities, func(ctx context.Context) (err error) {
		abilities, err = g.repository.ListAbilities(ctx)
		return err
	})
	fetch(models.CollectionCharacter, func(ctx context.Context) (err error) {
		characters, err = g.repository.ListCharacters(ctx)
		return err
	})
	fetch(models.CollectionInventory, func(ctx context.Context) (err error) {
		inventory, err = g.repository.ListInventory(ctx)
		return err
	})
	fetch(models.CollectionPlayerAbilities, func(ctx context.Context) (err error) {
		playerAbilities, err = g.repository.ListPlayerAbilities(ctx)
		return err
	})
	if err := eg.Wait(); err != nil {
		return types.DataSnapshot{}, err
	}

	return assemble(items, abilities, characters, inventory, playerAbilities), nil
}

// assemble joins the rows into one snapshot. Rows for unknown characters are
// dropped here; handles for unknown catalog entries are dropped by the data store.
func assemble(items []models.Item, abilities []models.Ability, characters []models.Character, inventory []models.InventoryEntry, playerAbilities []models.PlayerAbility) types.DataSnapshot {
	snapshot := types.DataSnapshot{
		Characters: make(map[types.Identity]*types.CharacterStorage, len(characters)),
		Items:      make([]types.Item, 0, len(items)),
		Abilities:  make([]types.Ability, 0, len(abilities)),
	}

	for _, item := range items {
		snapshot.Items = append(snapshot.Items, ItemFromModel(item))
	}
	for _, ability := range abilities {
		snapshot.Abilities = append(snapshot.Abilities, AbilityFromModel(ability))
	}
	for _, c := range characters {
		snapshot.Characters[types.Identity(c.UserName)] = types.NewCharacterStorage(types.CharacterInfo{
			Name:    c.Name,
			Tagline: c.Tagline,
			Skills:  c.Skills,
			Stats:   c.Stats,
		})
	}

	for _, entry := range inventory {
		character, ok := snapshot.Characters[types.Identity(entry.UserName)]
		if !ok {
			log.Warn("Dropping inventory entry %d for %s: unknown character", entry.ItemID, entry.UserName)
			continue
		}
		character.Items[types.ItemID(entry.ItemID)] = types.ItemHandle{
			ItemID:   types.ItemID(entry.ItemID),
			Count:    entry.Count,
			Equipped: entry.Equipped,
		}
	}
	for _, a := range playerAbilities {
		character, ok := snapshot.Characters[types.Identity(a.UserName)]
		if !ok {
			log.Warn("Dropping ability %d for %s: unknown character", a.AbilityID, a.UserName)
			continue
		}
		character.Abilities[types.AbilityID(a.AbilityID)] = types.AbilityHandle{
			AbilityID: types.AbilityID(a.AbilityID),
			Count:     a.Count,
		}
	}

	return state.NewDataStoreFromSnapshot(snapshot).Snapshot()
}

// Autosave writes a new board snapshot when the store is dirty and reports whether
// it did. The dirty flag is cleared only if nothing changed while the write was in flight.
func (g *Gateway) Autosave(ctx context.Context, store *state.Store) (bool, error) {
	if !store.Dirty() {
		return false, nil
	}
	if err := g.SaveBoard(ctx, store, models.TagAutosave); err != nil {
		return false, err
	}
	return true, nil
}

// SaveBoard writes a snapshot regardless of the dirty flag.
func (g *Gateway) SaveBoard(ctx context.Context, store *state.Store, tag string) error {
	data, version := store.BoardSnapshot()
	record := &models.BoardDataRecord{
		Tag:       tag,
		Data:      data,
		CreatedAt: g.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.repository.SaveBoardData(ctx, record); err != nil {
		return fmt.Errorf("failed to save board data: %w", err)
	}

	if !store.MarkSaved(version) {
		log.Debug("Board changed during save of version %d, staying dirty", version)
	}
	log.Debug("Saved board data %d with %d pieces", record.ID, len(data.Pieces))
	return nil
}

func (g *Gateway) SaveCharacterStats(ctx context.Context, user types.Identity, stats types.Stats) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.repository.UpdateCharacterStats(ctx, string(user), stats); err != nil {
		return fmt.Errorf("failed to save stats for %s: %w", user, err)
	}
	return nil
}

func (g *Gateway) SaveCharacterSkills(ctx context.Context, user types.Identity, skills map[string]bool) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.repository.UpdateCharacterSkills(ctx, string(user), skills); err != nil {
		return fmt.Errorf("failed to save skills for %s: %w", user, err)
	}
	return nil
}

// SaveItemHandle upserts the inventory row, or deletes it when the count is not positive.
func (g *Gateway) SaveItemHandle(ctx context.Context, user types.Identity, handle types.ItemHandle) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if handle.Count <= 0 {
		if err := g.repository.DeleteInventoryEntry(ctx, string(user), int64(handle.ItemID)); err != nil {
			return fmt.Errorf("failed to delete item %d for %s: %w", handle.ItemID, user, err)
		}
		return nil
	}

	entry := models.InventoryEntry{
		UserName: string(user),
		ItemID:   int64(handle.ItemID),
		Count:    handle.Count,
		Equipped: handle.Equipped,
	}
	if err := g.repository.UpsertInventoryEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to save item %d for %s: %w", handle.ItemID, user, err)
	}
	return nil
}

func (g *Gateway) SaveAbilityCount(ctx context.Context, user types.Identity, abilityID types.AbilityID, count int32) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.repository.UpdatePlayerAbilityCount(ctx, string(user), int64(abilityID), count); err != nil {
		return fmt.Errorf("failed to save ability %d for %s: %w", abilityID, user, err)
	}
	return nil
}

func ItemFromModel(m models.Item) types.Item {
	return types.Item{
		ID:          types.ItemID(m.ID),
		Name:        m.Name,
		Description: m.Description,
		Category:    m.Category,
		Weight:      m.Weight,
	}
}

func AbilityFromModel(m models.Ability) types.Ability {
	return types.Ability{
		ID:          types.AbilityID(m.ID),
		Name:        m.Name,
		Description: m.Description,
		MaxUses:     m.MaxUses,
	}
}
