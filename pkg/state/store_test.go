package state

import (
	"testing"

	"github.com/cbodonnell/tabletop/pkg/types"
	"github.com/stretchr/testify/suite"
)

type StoreSuite struct {
	suite.Suite
	store *Store
}

func (s *StoreSuite) SetupTest() {
	s.store = NewStore()
}

func (s *StoreSuite) TestStartsClean() {
	s.False(s.store.Dirty())
}

func (s *StoreSuite) TestEveryBoardMutationSetsDirty() {
	mutations := map[string]func(){
		"add piece":       func() { s.store.AddOrUpdatePiece(piece("a", 0)) },
		"remove piece":    func() { s.store.RemovePiece("missing") },
		"store backpack":  func() { s.store.StoreBackpackPiece(types.BackpackPiece{Name: "Orc"}) },
		"remove backpack": func() { s.store.RemoveBackpackPiece("Orc") },
	}
	for name, mutate := range mutations {
		s.store.LoadBoard(types.BoardData{})
		s.Require().False(s.store.Dirty(), name)
		mutate()
		s.True(s.store.Dirty(), name)
	}
}

func (s *StoreSuite) TestMarkSavedClearsOnlyMatchingVersion() {
	s.store.AddOrUpdatePiece(piece("a", 0))
	_, version := s.store.BoardSnapshot()

	s.store.AddOrUpdatePiece(piece("b", 0))
	s.False(s.store.MarkSaved(version))
	s.True(s.store.Dirty())

	_, version = s.store.BoardSnapshot()
	s.True(s.store.MarkSaved(version))
	s.False(s.store.Dirty())
}

func (s *StoreSuite) TestBoardSnapshotIsCopy() {
	s.store.AddOrUpdatePiece(piece("a", 1))
	s.store.StoreBackpackPiece(types.BackpackPiece{Name: "Orc"})

	data, _ := s.store.BoardSnapshot()
	s.Len(data.Pieces, 1)
	s.Len(data.Backpack, 1)

	data.Pieces[0].Name = "changed"
	p, ok := s.store.Piece("a")
	s.True(ok)
	s.Equal("a", p.Name)
}

func (s *StoreSuite) TestLoadBoardReplacesAndCleans() {
	s.store.AddOrUpdatePiece(piece("old", 0))
	s.store.LoadBoard(types.BoardData{
		Pieces:   []types.BoardPiece{piece("new", 2)},
		Backpack: []types.BackpackPiece{{Name: "Chest"}},
	})

	s.False(s.store.Dirty())
	_, ok := s.store.Piece("old")
	s.False(ok)
	below, above := s.store.LayerInfo()
	s.Equal(int32(1), below)
	s.Equal(int32(3), above)
	s.Equal(1, s.store.Stats().Backpack)
}

func (s *StoreSuite) TestOverwriteData() {
	s.store.OverwriteData(testSnapshot())
	s.Equal([]types.Identity{"Alice"}, s.store.CharacterNames())
	s.Len(s.store.Items(), 2)
	s.Len(s.store.Abilities(), 1)
	s.False(s.store.Dirty())

	s.store.OverwriteData(types.DataSnapshot{})
	_, err := s.store.Character("Alice")
	s.ErrorIs(err, ErrCharacterNotFound)
}

func (s *StoreSuite) TestOverwriteDataDropsDanglingHandles() {
	snapshot := testSnapshot()
	snapshot.Characters["Alice"].Items[999] = types.ItemHandle{ItemID: 999, Count: 3}
	snapshot.Characters["Alice"].Abilities[888] = types.AbilityHandle{AbilityID: 888, Count: 1}
	s.store.OverwriteData(snapshot)

	alice, err := s.store.Character("Alice")
	s.Require().NoError(err)
	s.NotContains(alice.Items, types.ItemID(999))
	s.NotContains(alice.Abilities, types.AbilityID(888))
	s.Contains(alice.Items, types.ItemID(1))
	s.Contains(alice.Abilities, types.AbilityID(10))

	s.ErrorIs(s.store.ValidateAbilityCount("Alice", 888), ErrAbilityNotFound)
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}
