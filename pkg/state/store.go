package state

import (
	"sync"

	"github.com/cbodonnell/tabletop/pkg/types"
)

// Store is the authoritative in-memory world model.
// Board and backpack mutations set the dirty flag and bump the version;
// MarkSaved clears the flag only if nothing changed since the saved snapshot.
type Store struct {
	lock     sync.RWMutex
	board    *Board
	backpack *Backpack
	data     *DataStore
	dirty    bool
	version  uint64
}

func NewStore() *Store {
	return &Store{
		board:    NewBoard(),
		backpack: NewBackpack(),
		data:     NewDataStore(),
	}
}

// must hold the write lock
func (s *Store) touch() {
	s.dirty = true
	s.version++
}

func (s *Store) AddOrUpdatePiece(piece types.BoardPiece) types.BoardPiece {
	s.lock.Lock()
	defer s.lock.Unlock()
	piece = s.board.AddOrUpdate(piece)
	s.touch()
	return piece
}

// RemovePiece deletes a piece. Removing an absent piece is not an error but still marks the store dirty.
func (s *Store) RemovePiece(id types.PieceID) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	existed := s.board.Remove(id)
	s.touch()
	return existed
}

func (s *Store) Piece(id types.PieceID) (types.BoardPiece, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.board.Get(id)
}

func (s *Store) SortedByLayerDescending() []types.BoardPiece {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.board.SortedByLayerDescending()
}

func (s *Store) Pieces() []types.BoardPiece {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.board.Pieces()
}

func (s *Store) LayerInfo() (int32, int32) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.board.LayerInfo()
}

func (s *Store) TopmostAt(x, y float64) (types.BoardPiece, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.board.TopmostAt(x, y)
}

func (s *Store) StoreBackpackPiece(piece types.BackpackPiece) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.backpack.Store(piece)
	s.touch()
}

func (s *Store) RemoveBackpackPiece(name string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	existed := s.backpack.Remove(name)
	s.touch()
	return existed
}

func (s *Store) BackpackPieces() []types.BackpackPiece {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.backpack.Pieces()
}

func (s *Store) Dirty() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.dirty
}

func (s *Store) Version() uint64 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.version
}

// BoardSnapshot returns a copy of the board aggregate and the version it was taken at.
func (s *Store) BoardSnapshot() (types.BoardData, uint64) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return types.BoardData{
		Pieces:   s.board.Pieces(),
		Backpack: s.backpack.Pieces(),
	}, s.version
}

// MarkSaved clears the dirty flag if the store is still at version.
func (s *Store) MarkSaved(version uint64) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.version != version {
		return false
	}
	s.dirty = false
	return true
}

// LoadBoard replaces the board and backpack. The store is clean afterwards.
func (s *Store) LoadBoard(data types.BoardData) {
	board := NewBoard()
	for _, piece := range data.Pieces {
		board.AddOrUpdate(piece)
	}
	backpack := NewBackpack()
	for _, piece := range data.Backpack {
		backpack.Store(piece)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.board = board
	s.backpack = backpack
	s.dirty = false
	s.version++
}

// Character returns a copy of the user's character.
func (s *Store) Character(user types.Identity) (*types.CharacterStorage, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.data.Character(user)
}

func (s *Store) CharacterNames() []types.Identity {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.data.CharacterNames()
}

func (s *Store) Items() []types.Item {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.data.Items()
}

func (s *Store) Abilities() []types.Ability {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.data.Abilities()
}

func (s *Store) ValidateStats(user types.Identity) error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.data.ValidateStats(user)
}

func (s *Store) UpdateStats(user types.Identity, stats types.Stats) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.data.UpdateStats(user, stats)
}

func (s *Store) ValidateSkill(user types.Identity, skill string) error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.data.ValidateSkill(user, skill)
}

func (s *Store) UpdateSkill(user types.Identity, skill string, proficient bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.data.UpdateSkill(user, skill, proficient)
}

func (s *Store) ValidateAbilityCount(user types.Identity, abilityID types.AbilityID) error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.data.ValidateAbilityCount(user, abilityID)
}

func (s *Store) UpdateAbilityCount(user types.Identity, abilityID types.AbilityID, count int32) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.data.UpdateAbilityCount(user, abilityID, count)
}

func (s *Store) ValidateItemHandle(user types.Identity, handle types.ItemHandle) error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.data.ValidateItemHandle(user, handle)
}

func (s *Store) UpdateItemHandle(user types.Identity, handle types.ItemHandle) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.data.UpdateItemHandle(user, handle)
}

// OverwriteData replaces the data store wholesale, dropping handles the new catalogs do not cover.
func (s *Store) OverwriteData(snapshot types.DataSnapshot) {
	data := NewDataStoreFromSnapshot(snapshot)
	s.lock.Lock()
	defer s.lock.Unlock()
	s.data = data
}

// DataSnapshot returns a deep copy of the data store.
func (s *Store) DataSnapshot() types.DataSnapshot {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.data.Snapshot()
}

// Stats are counts for status reporting.
type Stats struct {
	Pieces     int    `json:"pieces"`
	Backpack   int    `json:"backpack"`
	Characters int    `json:"characters"`
	Items      int    `json:"items"`
	Abilities  int    `json:"abilities"`
	Dirty      bool   `json:"dirty"`
	Version    uint64 `json:"version"`
}

func (s *Store) Stats() Stats {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return Stats{
		Pieces:     s.board.Len(),
		Backpack:   s.backpack.Len(),
		Characters: s.data.CharacterCount(),
		Items:      len(s.data.items),
		Abilities:  len(s.data.abilities),
		Dirty:      s.dirty,
		Version:    s.version,
	}
}
