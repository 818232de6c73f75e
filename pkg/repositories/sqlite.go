package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cbodonnell/tabletop/pkg/repositories/models"
	"github.com/cbodonnell/tabletop/pkg/types"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens the database at path and applies migrations.
func NewSQLiteRepository(ctx context.Context, path string) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	// sqlite allows one writer
	db.SetMaxOpenConns(1)

	ms, err := readMigrations("sqlite")
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, m := range ms {
		if _, err := db.ExecContext(ctx, m.sql); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute migration %s: %v", m.name, err)
		}
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

// Ensure SQLiteRepository implements the interface
var _ Repository = (*SQLiteRepository)(nil)

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) LoadLatestBoardData(ctx context.Context) (*models.BoardDataRecord, error) {
	q := `
	SELECT id, tag, data, created_at FROM board_data
	ORDER BY created_at DESC, id DESC
	LIMIT 1;
	`
	record := &models.BoardDataRecord{}
	var data string
	var createdAt int64
	if err := r.db.QueryRowContext(ctx, q).Scan(&record.ID, &record.Tag, &data, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("board data")
		}
		return nil, fmt.Errorf("failed to scan board data: %v", err)
	}
	if err := json.Unmarshal([]byte(data), &record.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal board data %d: %v", record.ID, err)
	}
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	return record, nil
}

func (r *SQLiteRepository) SaveBoardData(ctx context.Context, record *models.BoardDataRecord) error {
	data, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal board data: %v", err)
	}
	q := `
	INSERT INTO board_data (tag, data, created_at) VALUES (?, ?, ?);
	`
	res, err := r.db.ExecContext(ctx, q, record.Tag, string(data), record.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert board data: %v", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		record.ID = id
	}
	return nil
}

func (r *SQLiteRepository) ListItems(ctx context.Context) ([]models.Item, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, description, category, weight FROM items ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %v", err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		var item models.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.Category, &item.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan item: %v", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *SQLiteRepository) ListAbilities(ctx context.Context) ([]models.Ability, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, description, max_uses FROM abilities ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query abilities: %v", err)
	}
	defer rows.Close()

	abilities := []models.Ability{}
	for rows.Next() {
		var ability models.Ability
		if err := rows.Scan(&ability.ID, &ability.Name, &ability.Description, &ability.MaxUses); err != nil {
			return nil, fmt.Errorf("failed to scan ability: %v", err)
		}
		abilities = append(abilities, ability)
	}
	return abilities, rows.Err()
}

func (r *SQLiteRepository) ListCharacters(ctx context.Context) ([]models.Character, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT user_name, name, tagline, stats, skills FROM character ORDER BY user_name")
	if err != nil {
		return nil, fmt.Errorf("failed to query characters: %v", err)
	}
	defer rows.Close()

	characters := []models.Character{}
	for rows.Next() {
		var c models.Character
		var stats, skills string
		if err := rows.Scan(&c.UserName, &c.Name, &c.Tagline, &stats, &skills); err != nil {
			return nil, fmt.Errorf("failed to scan character: %v", err)
		}
		if err := json.Unmarshal([]byte(stats), &c.Stats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stats for %s: %v", c.UserName, err)
		}
		if err := json.Unmarshal([]byte(skills), &c.Skills); err != nil {
			return nil, fmt.Errorf("failed to unmarshal skills for %s: %v", c.UserName, err)
		}
		characters = append(characters, c)
	}
	return characters, rows.Err()
}

func (r *SQLiteRepository) ListInventory(ctx context.Context) ([]models.InventoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT user_name, item_id, count, equipped FROM inventory ORDER BY user_name, item_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %v", err)
	}
	defer rows.Close()

	entries := []models.InventoryEntry{}
	for rows.Next() {
		var e models.InventoryEntry
		if err := rows.Scan(&e.UserName, &e.ItemID, &e.Count, &e.Equipped); err != nil {
			return nil, fmt.Errorf("failed to scan inventory entry: %v", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *SQLiteRepository) ListPlayerAbilities(ctx context.Context) ([]models.PlayerAbility, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT user_name, ability_id, count FROM player_abilities ORDER BY user_name, ability_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query player abilities: %v", err)
	}
	defer rows.Close()

	abilities := []models.PlayerAbility{}
	for rows.Next() {
		var a models.PlayerAbility
		if err := rows.Scan(&a.UserName, &a.AbilityID, &a.Count); err != nil {
			return nil, fmt.Errorf("failed to scan player ability: %v", err)
		}
		abilities = append(abilities, a)
	}
	return abilities, rows.Err()
}

func (r *SQLiteRepository) updateCharacterColumn(ctx context.Context, userName, column string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %v", column, err)
	}
	// column is one of a fixed set of names, never client input
	res, err := r.db.ExecContext(ctx, fmt.Sprintf("UPDATE character SET %s = ? WHERE user_name = ?", column), string(b), userName)
	if err != nil {
		return fmt.Errorf("failed to update %s: %v", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %v", err)
	}
	if n == 0 {
		return notFound("character %s", userName)
	}
	return nil
}

func (r *SQLiteRepository) UpdateCharacterStats(ctx context.Context, userName string, stats types.Stats) error {
	return r.updateCharacterColumn(ctx, userName, "stats", stats)
}

func (r *SQLiteRepository) UpdateCharacterSkills(ctx context.Context, userName string, skills map[string]bool) error {
	return r.updateCharacterColumn(ctx, userName, "skills", skills)
}

func (r *SQLiteRepository) UpsertInventoryEntry(ctx context.Context, entry models.InventoryEntry) error {
	q := `
	INSERT OR REPLACE INTO inventory (user_name, item_id, count, equipped)
	VALUES (?, ?, ?, ?);
	`
	if _, err := r.db.ExecContext(ctx, q, entry.UserName, entry.ItemID, entry.Count, entry.Equipped); err != nil {
		return fmt.Errorf("failed to upsert inventory entry: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteInventoryEntry(ctx context.Context, userName string, itemID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM inventory WHERE user_name = ? AND item_id = ?", userName, itemID); err != nil {
		return fmt.Errorf("failed to delete inventory entry: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdatePlayerAbilityCount(ctx context.Context, userName string, abilityID int64, count int32) error {
	res, err := r.db.ExecContext(ctx, "UPDATE player_abilities SET count = ? WHERE user_name = ? AND ability_id = ?", count, userName, abilityID)
	if err != nil {
		return fmt.Errorf("failed to update ability count: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %v", err)
	}
	if n == 0 {
		return notFound("ability %d for %s", abilityID, userName)
	}
	return nil
}
