package repositories

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestSQLiteRepository(t *testing.T) {
	s := &RepositoryContractSuite{}
	s.newFn = func() (Repository, func(catalog)) {
		t := s.T()
		path := filepath.Join(t.TempDir(), "tabletop.db")
		repo, err := NewSQLiteRepository(context.Background(), path)
		require.NoError(t, err)

		db := repo.(*SQLiteRepository).db
		return repo, func(c catalog) {
			ctx := context.Background()
			for _, item := range c.items {
				_, err := db.ExecContext(ctx, "INSERT INTO items (id, name, description, category, weight) VALUES (?, ?, ?, ?, ?)",
					item.ID, item.Name, item.Description, item.Category, item.Weight)
				require.NoError(t, err)
			}
			for _, ability := range c.abilities {
				_, err := db.ExecContext(ctx, "INSERT INTO abilities (id, name, description, max_uses) VALUES (?, ?, ?, ?)",
					ability.ID, ability.Name, ability.Description, ability.MaxUses)
				require.NoError(t, err)
			}
			for _, character := range c.characters {
				stats, err := json.Marshal(character.Stats)
				require.NoError(t, err)
				skills, err := json.Marshal(character.Skills)
				require.NoError(t, err)
				_, err = db.ExecContext(ctx, "INSERT INTO character (user_name, name, tagline, stats, skills) VALUES (?, ?, ?, ?, ?)",
					character.UserName, character.Name, character.Tagline, string(stats), string(skills))
				require.NoError(t, err)
			}
			for _, a := range c.playerAbilities {
				_, err := db.ExecContext(ctx, "INSERT INTO player_abilities (user_name, ability_id, count) VALUES (?, ?, ?)",
					a.UserName, a.AbilityID, a.Count)
				require.NoError(t, err)
			}
		}
	}
	suite.Run(t, s)
}

func TestSQLiteMigrationsAreRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabletop.db")
	ctx := context.Background()

	first, err := NewSQLiteRepository(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second, err := NewSQLiteRepository(ctx, path)
	require.NoError(t, err)
	require.NoError(t, second.Close(ctx))
}
