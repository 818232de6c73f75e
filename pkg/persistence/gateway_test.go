package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cbodonnell/tabletop/pkg/repositories"
	"github.com/cbodonnell/tabletop/pkg/repositories/models"
	"github.com/cbodonnell/tabletop/pkg/state"
	"github.com/cbodonnell/tabletop/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("store unavailable")

// faultyRepository fails the flagged calls and delegates the rest.
type faultyRepository struct {
	repositories.Repository
	failSave      bool
	failListItems bool
	failUpdate    bool
}

func (r *faultyRepository) SaveBoardData(ctx context.Context, record *models.BoardDataRecord) error {
	if r.failSave {
		return errUnavailable
	}
	return r.Repository.SaveBoardData(ctx, record)
}

func (r *faultyRepository) ListItems(ctx context.Context) ([]models.Item, error) {
	if r.failListItems {
		return nil, errUnavailable
	}
	return r.Repository.ListItems(ctx)
}

func (r *faultyRepository) UpdateCharacterStats(ctx context.Context, userName string, stats types.Stats) error {
	if r.failUpdate {
		return errUnavailable
	}
	return r.Repository.UpdateCharacterStats(ctx, userName, stats)
}

func seededRepository() *repositories.MemoryRepository {
	repo := repositories.NewMemoryRepository()
	repo.PutItem(models.Item{ID: 1, Name: "Longsword"})
	repo.PutItem(models.Item{ID: 2, Name: "Rope"})
	repo.PutAbility(models.Ability{ID: 7, Name: "Second Wind", MaxUses: 1})
	repo.PutCharacter(models.Character{UserName: "Alice", Name: "Alice the Bold", Skills: map[string]bool{"athletics": true}})
	repo.PutPlayerAbility(models.PlayerAbility{UserName: "Alice", AbilityID: 7, Count: 1})
	// dangling references
	repo.PutPlayerAbility(models.PlayerAbility{UserName: "Alice", AbilityID: 99, Count: 1})
	repo.PutPlayerAbility(models.PlayerAbility{UserName: "Ghost", AbilityID: 7, Count: 1})
	return repo
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestLoadEmptyStore(t *testing.T) {
	g := NewGateway(NewGatewayOptions{Repository: repositories.NewMemoryRepository()})

	board, data, err := g.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, board.Pieces)
	assert.Empty(t, board.Backpack)
	assert.Empty(t, data.Characters)
	assert.Empty(t, data.Items)
}

func TestLoadLatestBoard(t *testing.T) {
	repo := seededRepository()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveBoardData(ctx, &models.BoardDataRecord{
		Tag:       models.TagAutosave,
		Data:      types.BoardData{Pieces: []types.BoardPiece{{ID: "new"}}},
		CreatedAt: base.Add(time.Hour),
	}))
	require.NoError(t, repo.SaveBoardData(ctx, &models.BoardDataRecord{
		Tag:       models.TagAutosave,
		Data:      types.BoardData{Pieces: []types.BoardPiece{{ID: "old"}}},
		CreatedAt: base,
	}))

	g := NewGateway(NewGatewayOptions{Repository: repo})
	board, _, err := g.Load(ctx)
	require.NoError(t, err)
	require.Len(t, board.Pieces, 1)
	assert.Equal(t, types.PieceID("new"), board.Pieces[0].ID)
}

func TestLoadCatalogDropsDanglingHandles(t *testing.T) {
	g := NewGateway(NewGatewayOptions{Repository: seededRepository()})

	data, err := g.LoadCatalog(context.Background())
	require.NoError(t, err)

	assert.Len(t, data.Items, 2)
	assert.Len(t, data.Abilities, 1)
	require.Contains(t, data.Characters, types.Identity("Alice"))
	assert.NotContains(t, data.Characters, types.Identity("Ghost"))

	alice := data.Characters["Alice"]
	assert.Equal(t, "Alice the Bold", alice.Info.Name)
	assert.True(t, alice.Info.Skills["athletics"])
	assert.Equal(t, map[types.AbilityID]types.AbilityHandle{7: {AbilityID: 7, Count: 1}}, alice.Abilities)
	assert.Empty(t, alice.Items)
}

func TestLoadCatalogFailure(t *testing.T) {
	repo := &faultyRepository{Repository: seededRepository(), failListItems: true}
	g := NewGateway(NewGatewayOptions{Repository: repo})

	_, err := g.LoadCatalog(context.Background())
	assert.ErrorIs(t, err, errUnavailable)
}

func TestLoadKeepsBoardWhenCatalogFails(t *testing.T) {
	ctx := context.Background()
	inner := seededRepository()
	require.NoError(t, inner.SaveBoardData(ctx, &models.BoardDataRecord{
		Tag:       models.TagManual,
		Data:      types.BoardData{Pieces: []types.BoardPiece{{ID: "goblin"}}},
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}))
	g := NewGateway(NewGatewayOptions{Repository: &faultyRepository{Repository: inner, failListItems: true}})

	board, data, err := g.Load(ctx)
	assert.ErrorIs(t, err, errUnavailable)
	require.Len(t, board.Pieces, 1)
	assert.Equal(t, types.PieceID("goblin"), board.Pieces[0].ID)
	assert.Empty(t, data.Characters)
	assert.Empty(t, data.Items)
}

func TestAutosave(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		mutate    func(s *state.Store)
		failSave  bool
		wantSaved bool
		wantErr   bool
		wantDirty bool
		wantCount int
	}{
		{
			name:      "clean store is skipped",
			mutate:    func(s *state.Store) {},
			wantSaved: false,
			wantCount: 0,
		},
		{
			name: "dirty store is saved",
			mutate: func(s *state.Store) {
				s.AddOrUpdatePiece(types.BoardPiece{ID: "p1"})
				s.StoreBackpackPiece(types.BackpackPiece{Name: "Chest"})
			},
			wantSaved: true,
			wantCount: 1,
		},
		{
			name: "failed save stays dirty",
			mutate: func(s *state.Store) {
				s.AddOrUpdatePiece(types.BoardPiece{ID: "p1"})
			},
			failSave:  true,
			wantErr:   true,
			wantDirty: true,
			wantCount: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			memory := repositories.NewMemoryRepository()
			repo := &faultyRepository{Repository: memory, failSave: tt.failSave}
			g := NewGateway(NewGatewayOptions{Repository: repo, Now: fixedClock(now)})

			store := state.NewStore()
			tt.mutate(store)

			saved, err := g.Autosave(ctx, store)
			if tt.wantErr {
				assert.ErrorIs(t, err, errUnavailable)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantSaved, saved)
			assert.Equal(t, tt.wantDirty, store.Dirty())
			assert.Equal(t, tt.wantCount, memory.BoardDataCount())
		})
	}
}

func TestAutosaveRecord(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := repositories.NewMemoryRepository()
	g := NewGateway(NewGatewayOptions{Repository: repo, Now: fixedClock(now)})

	store := state.NewStore()
	store.AddOrUpdatePiece(types.BoardPiece{ID: "p1", SortingLayer: 3})
	_, err := g.Autosave(ctx, store)
	require.NoError(t, err)

	record, err := repo.LoadLatestBoardData(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TagAutosave, record.Tag)
	assert.True(t, record.CreatedAt.Equal(now))
	require.Len(t, record.Data.Pieces, 1)
	assert.Equal(t, int32(3), record.Data.Pieces[0].SortingLayer)
}

func TestSaveItemHandle(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemoryRepository()
	g := NewGateway(NewGatewayOptions{Repository: repo})

	require.NoError(t, g.SaveItemHandle(ctx, "Alice", types.ItemHandle{ItemID: 1, Count: 3, Equipped: true}))
	entries, err := repo.ListInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.InventoryEntry{{UserName: "Alice", ItemID: 1, Count: 3, Equipped: true}}, entries)

	require.NoError(t, g.SaveItemHandle(ctx, "Alice", types.ItemHandle{ItemID: 1, Count: 0}))
	entries, err = repo.ListInventory(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteThroughErrors(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(NewGatewayOptions{Repository: &faultyRepository{Repository: seededRepository(), failUpdate: true}})

	err := g.SaveCharacterStats(ctx, "Alice", types.Stats{Strength: 10})
	assert.ErrorIs(t, err, errUnavailable)

	g = NewGateway(NewGatewayOptions{Repository: seededRepository()})
	assert.NoError(t, g.SaveCharacterStats(ctx, "Alice", types.Stats{Strength: 10}))
	assert.NoError(t, g.SaveCharacterSkills(ctx, "Alice", map[string]bool{"stealth": true}))
	assert.NoError(t, g.SaveAbilityCount(ctx, "Alice", 7, 0))

	err = g.SaveAbilityCount(ctx, "Alice", 1, 1)
	assert.True(t, repositories.IsNotFound(err))
}
