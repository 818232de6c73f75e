package repositories

import (
	"context"
	"time"

	"github.com/cbodonnell/tabletop/pkg/repositories/models"
	"github.com/cbodonnell/tabletop/pkg/types"
	"github.com/stretchr/testify/suite"
)

// catalog is the fixture every backend is seeded with.
type catalog struct {
	items           []models.Item
	abilities       []models.Ability
	characters      []models.Character
	playerAbilities []models.PlayerAbility
}

func testCatalog() catalog {
	return catalog{
		items: []models.Item{
			{ID: 2, Name: "Rope", Category: "gear", Weight: 10},
			{ID: 1, Name: "Longsword", Category: "weapon", Weight: 3},
		},
		abilities: []models.Ability{
			{ID: 7, Name: "Second Wind", MaxUses: 1},
		},
		characters: []models.Character{
			{UserName: "Bob", Name: "Brother Bob", Skills: map[string]bool{}},
			{UserName: "Alice", Name: "Alice the Bold", Tagline: "Fighter", Skills: map[string]bool{"athletics": true}},
		},
		playerAbilities: []models.PlayerAbility{
			{UserName: "Alice", AbilityID: 7, Count: 1},
		},
	}
}

// RepositoryContractSuite runs the same behaviour checks against every backend.
type RepositoryContractSuite struct {
	suite.Suite
	ctx   context.Context
	repo  Repository
	newFn func() (Repository, func(catalog))
}

func (s *RepositoryContractSuite) SetupTest() {
	s.ctx = context.Background()
	var seed func(catalog)
	s.repo, seed = s.newFn()
	seed(testCatalog())
}

func (s *RepositoryContractSuite) TearDownTest() {
	if s.repo != nil {
		_ = s.repo.Close(s.ctx)
	}
}

func (s *RepositoryContractSuite) TestLoadLatestBoardDataEmpty() {
	_, err := s.repo.LoadLatestBoardData(s.ctx)
	s.True(IsNotFound(err), "got %v", err)
}

func (s *RepositoryContractSuite) TestLoadLatestBoardDataOrdersByCreation() {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	newer := &models.BoardDataRecord{
		Tag:       models.TagAutosave,
		Data:      types.BoardData{Pieces: []types.BoardPiece{{ID: "newer"}}},
		CreatedAt: base.Add(time.Minute),
	}
	older := &models.BoardDataRecord{
		Tag:       models.TagAutosave,
		Data:      types.BoardData{Pieces: []types.BoardPiece{{ID: "older"}}},
		CreatedAt: base,
	}
	s.Require().NoError(s.repo.SaveBoardData(s.ctx, newer))
	s.Require().NoError(s.repo.SaveBoardData(s.ctx, older))
	s.NotZero(newer.ID)

	latest, err := s.repo.LoadLatestBoardData(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.TagAutosave, latest.Tag)
	s.Require().Len(latest.Data.Pieces, 1)
	s.Equal(types.PieceID("newer"), latest.Data.Pieces[0].ID)
	s.True(latest.CreatedAt.Equal(newer.CreatedAt))
}

func (s *RepositoryContractSuite) TestListCatalog() {
	items, err := s.repo.ListItems(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	s.Equal(int64(1), items[0].ID)
	s.Equal("Rope", items[1].Name)

	abilities, err := s.repo.ListAbilities(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(abilities, 1)
	s.Equal(int32(1), abilities[0].MaxUses)

	characters, err := s.repo.ListCharacters(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(characters, 2)
	s.Equal("Alice", characters[0].UserName)
	s.True(characters[0].Skills["athletics"])

	playerAbilities, err := s.repo.ListPlayerAbilities(s.ctx)
	s.Require().NoError(err)
	s.Equal([]models.PlayerAbility{{UserName: "Alice", AbilityID: 7, Count: 1}}, playerAbilities)
}

func (s *RepositoryContractSuite) TestUpdateCharacter() {
	stats := types.Stats{Strength: 18, Health: 9, MaxHealth: 12, ArmorClass: 16}
	s.Require().NoError(s.repo.UpdateCharacterStats(s.ctx, "Alice", stats))
	s.Require().NoError(s.repo.UpdateCharacterSkills(s.ctx, "Alice", map[string]bool{"athletics": false, "stealth": true}))

	characters, err := s.repo.ListCharacters(s.ctx)
	s.Require().NoError(err)
	s.Equal(stats, characters[0].Stats)
	s.Equal(map[string]bool{"athletics": false, "stealth": true}, characters[0].Skills)

	s.True(IsNotFound(s.repo.UpdateCharacterStats(s.ctx, "Nobody", stats)))
	s.True(IsNotFound(s.repo.UpdateCharacterSkills(s.ctx, "Nobody", nil)))
}

func (s *RepositoryContractSuite) TestInventoryUpsertAndDelete() {
	s.Require().NoError(s.repo.UpsertInventoryEntry(s.ctx, models.InventoryEntry{UserName: "Alice", ItemID: 1, Count: 1}))
	s.Require().NoError(s.repo.UpsertInventoryEntry(s.ctx, models.InventoryEntry{UserName: "Alice", ItemID: 1, Count: 2, Equipped: true}))
	s.Require().NoError(s.repo.UpsertInventoryEntry(s.ctx, models.InventoryEntry{UserName: "Bob", ItemID: 2, Count: 5}))

	entries, err := s.repo.ListInventory(s.ctx)
	s.Require().NoError(err)
	s.Equal([]models.InventoryEntry{
		{UserName: "Alice", ItemID: 1, Count: 2, Equipped: true},
		{UserName: "Bob", ItemID: 2, Count: 5},
	}, entries)

	s.Require().NoError(s.repo.DeleteInventoryEntry(s.ctx, "Alice", 1))
	// deleting twice is not an error
	s.Require().NoError(s.repo.DeleteInventoryEntry(s.ctx, "Alice", 1))

	entries, err = s.repo.ListInventory(s.ctx)
	s.Require().NoError(err)
	s.Len(entries, 1)
}

func (s *RepositoryContractSuite) TestUpdatePlayerAbilityCount() {
	s.Require().NoError(s.repo.UpdatePlayerAbilityCount(s.ctx, "Alice", 7, 0))

	abilities, err := s.repo.ListPlayerAbilities(s.ctx)
	s.Require().NoError(err)
	s.Equal(int32(0), abilities[0].Count)

	s.True(IsNotFound(s.repo.UpdatePlayerAbilityCount(s.ctx, "Bob", 7, 1)))
}
