package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/repositories/models"
	"github.com/cbodonnell/tabletop/pkg/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to the database and applies migrations.
// The caller is responsible for calling Close() on the repository.
func NewPostgresRepository(ctx context.Context, connStr string) (Repository, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	var username string
	var database string
	err = pool.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to query database: %v", err)
	}
	log.Info("Connected to %s as %s", database, username)

	ms, err := readMigrations("postgres")
	if err != nil {
		pool.Close()
		return nil, err
	}
	for _, m := range ms {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to execute migration %s: %v", m.name, err)
		}
	}

	return &PostgresRepository{
		pool: pool,
	}, nil
}

// Ensure PostgresRepository implements the interface
var _ Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) Close(ctx context.Context) error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) LoadLatestBoardData(ctx context.Context) (*models.BoardDataRecord, error) {
	q := `
	SELECT id, tag, data, created_at FROM board_data
	ORDER BY created_at DESC, id DESC
	LIMIT 1;
	`
	record := &models.BoardDataRecord{}
	var data []byte
	if err := r.pool.QueryRow(ctx, q).Scan(&record.ID, &record.Tag, &data, &record.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("board data")
		}
		return nil, fmt.Errorf("failed to scan board data: %v", err)
	}
	if err := json.Unmarshal(data, &record.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal board data %d: %v", record.ID, err)
	}
	return record, nil
}

func (r *PostgresRepository) SaveBoardData(ctx context.Context, record *models.BoardDataRecord) error {
	data, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal board data: %v", err)
	}
	q := `
	INSERT INTO board_data (tag, data, created_at) VALUES ($1, $2::jsonb, $3)
	RETURNING id;
	`
	if err := r.pool.QueryRow(ctx, q, record.Tag, string(data), record.CreatedAt).Scan(&record.ID); err != nil {
		return fmt.Errorf("failed to insert board data: %v", err)
	}
	return nil
}

func (r *PostgresRepository) ListItems(ctx context.Context) ([]models.Item, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, name, description, category, weight FROM items ORDER BY id")
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

func (r *PostgresRepository) ListAbilities(ctx context.Context) ([]models.Ability, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, name, description, max_uses FROM abilities ORDER BY id")
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

func (r *PostgresRepository) ListCharacters(ctx context.Context) ([]models.Character, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_name, name, tagline, stats, skills FROM "character" ORDER BY user_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query characters: %v", err)
	}
	defer rows.Close()

	characters := []models.Character{}
	for rows.Next() {
		var c models.Character
		var stats, skills []byte
		if err := rows.Scan(&c.UserName, &c.Name, &c.Tagline, &stats, &skills); err != nil {
			return nil, fmt.Errorf("failed to scan character: %v", err)
		}
		if err := json.Unmarshal(stats, &c.Stats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stats for %s: %v", c.UserName, err)
		}
		if err := json.Unmarshal(skills, &c.Skills); err != nil {
			return nil, fmt.Errorf("failed to unmarshal skills for %s: %v", c.UserName, err)
		}
		characters = append(characters, c)
	}
	return characters, rows.Err()
}

func (r *PostgresRepository) ListInventory(ctx context.Context) ([]models.InventoryEntry, error) {
	rows, err := r.pool.Query(ctx, "SELECT user_name, item_id, count, equipped FROM inventory ORDER BY user_name, item_id")
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

func (r *PostgresRepository) ListPlayerAbilities(ctx context.Context) ([]models.PlayerAbility, error) {
	rows, err := r.pool.Query(ctx, "SELECT user_name, ability_id, count FROM player_abilities ORDER BY user_name, ability_id")
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

func (r *PostgresRepository) UpdateCharacterStats(ctx context.Context, userName string, stats types.Stats) error {
	b, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %v", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE "character" SET stats = $2::jsonb WHERE user_name = $1`, userName, string(b))
	if err != nil {
		return fmt.Errorf("failed to update stats: %v", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("character %s", userName)
	}
	return nil
}

func (r *PostgresRepository) UpdateCharacterSkills(ctx context.Context, userName string, skills map[string]bool) error {
	b, err := json.Marshal(skills)
	if err != nil {
		return fmt.Errorf("failed to marshal skills: %v", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE "character" SET skills = $2::jsonb WHERE user_name = $1`, userName, string(b))
	if err != nil {
		return fmt.Errorf("failed to update skills: %v", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("character %s", userName)
	}
	return nil
}

func (r *PostgresRepository) UpsertInventoryEntry(ctx context.Context, entry models.InventoryEntry) error {
	q := `
	INSERT INTO inventory (user_name, item_id, count, equipped) VALUES ($1, $2, $3, $4)
	ON CONFLICT (user_name, item_id) DO UPDATE SET count = $3, equipped = $4;
	`
	if _, err := r.pool.Exec(ctx, q, entry.UserName, entry.ItemID, entry.Count, entry.Equipped); err != nil {
		return fmt.Errorf("failed to upsert inventory entry: %v", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteInventoryEntry(ctx context.Context, userName string, itemID int64) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM inventory WHERE user_name = $1 AND item_id = $2", userName, itemID); err != nil {
		return fmt.Errorf("failed to delete inventory entry: %v", err)
	}
	return nil
}

func (r *PostgresRepository) UpdatePlayerAbilityCount(ctx context.Context, userName string, abilityID int64, count int32) error {
	tag, err := r.pool.Exec(ctx, "UPDATE player_abilities SET count = $3 WHERE user_name = $1 AND ability_id = $2", userName, abilityID, count)
	if err != nil {
		return fmt.Errorf("failed to update ability count: %v", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("ability %d for %s", abilityID, userName)
	}
	return nil
}
