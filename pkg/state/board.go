package state

import (
	"sort"

	"github.com/cbodonnell/tabletop/pkg/types"
	"github.com/google/uuid"
)

// Board holds the pieces placed on the shared board, keyed by id.
// Board is not safe for concurrent use; Store guards it.
type Board struct {
	pieces map[types.PieceID]types.BoardPiece
}

func NewBoard() *Board {
	return &Board{
		pieces: make(map[types.PieceID]types.BoardPiece),
	}
}

// AddOrUpdate upserts a piece by id. A piece without an id is assigned a new one.
func (b *Board) AddOrUpdate(piece types.BoardPiece) types.BoardPiece {
	if piece.ID == "" {
		piece.ID = types.PieceID(uuid.NewString())
	}
	b.pieces[piece.ID] = piece
	return piece
}

// Remove deletes a piece and reports whether it existed.
func (b *Board) Remove(id types.PieceID) bool {
	_, ok := b.pieces[id]
	delete(b.pieces, id)
	return ok
}

func (b *Board) Get(id types.PieceID) (types.BoardPiece, bool) {
	piece, ok := b.pieces[id]
	return piece, ok
}

func (b *Board) Len() int {
	return len(b.pieces)
}

// SortedByLayerDescending returns the pieces in hit-test order: highest layer first,
// and within a layer the greater id first. Draw order is the reverse.
func (b *Board) SortedByLayerDescending() []types.BoardPiece {
	pieces := make([]types.BoardPiece, 0, len(b.pieces))
	for _, piece := range b.pieces {
		pieces = append(pieces, piece)
	}
	sort.Slice(pieces, func(i, j int) bool {
		if pieces[i].SortingLayer != pieces[j].SortingLayer {
			return pieces[i].SortingLayer > pieces[j].SortingLayer
		}
		return pieces[i].ID > pieces[j].ID
	})
	return pieces
}

// LayerInfo returns one below the lowest layer and one above the highest.
// An empty board returns zero for both.
func (b *Board) LayerInfo() (below int32, above int32) {
	if len(b.pieces) == 0 {
		return 0, 0
	}
	first := true
	var lo, hi int32
	for _, piece := range b.pieces {
		if first {
			lo, hi = piece.SortingLayer, piece.SortingLayer
			first = false
			continue
		}
		if piece.SortingLayer < lo {
			lo = piece.SortingLayer
		}
		if piece.SortingLayer > hi {
			hi = piece.SortingLayer
		}
	}
	return lo - 1, hi + 1
}

// TopmostAt returns the first piece in hit-test order containing the point.
func (b *Board) TopmostAt(x, y float64) (types.BoardPiece, bool) {
	for _, piece := range b.SortedByLayerDescending() {
		if piece.Contains(x, y) {
			return piece, true
		}
	}
	return types.BoardPiece{}, false
}

// Pieces returns the pieces in draw order.
func (b *Board) Pieces() []types.BoardPiece {
	pieces := b.SortedByLayerDescending()
	for i, j := 0, len(pieces)-1; i < j; i, j = i+1, j-1 {
		pieces[i], pieces[j] = pieces[j], pieces[i]
	}
	return pieces
}

// Backpack holds pieces stowed off the board, keyed by name.
type Backpack struct {
	pieces map[string]types.BackpackPiece
}

func NewBackpack() *Backpack {
	return &Backpack{
		pieces: make(map[string]types.BackpackPiece),
	}
}

// Store overwrites any piece with the same name.
func (b *Backpack) Store(piece types.BackpackPiece) {
	b.pieces[piece.Name] = piece
}

func (b *Backpack) Remove(name string) bool {
	_, ok := b.pieces[name]
	delete(b.pieces, name)
	return ok
}

func (b *Backpack) Len() int {
	return len(b.pieces)
}

// Pieces returns the backpack sorted by name.
func (b *Backpack) Pieces() []types.BackpackPiece {
	pieces := make([]types.BackpackPiece, 0, len(b.pieces))
	for _, piece := range b.pieces {
		pieces = append(pieces, piece)
	}
	sort.Slice(pieces, func(i, j int) bool { return pieces[i].Name < pieces[j].Name })
	return pieces
}
