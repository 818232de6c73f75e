package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cbodonnell/tabletop/pkg/repositories/models"
	"github.com/cbodonnell/tabletop/pkg/types"
	"github.com/redis/go-redis/v9"
)

// Key prefix for all tabletop data
const redisKeyPrefix = "tabletop"

func boardDataIndexKey() string {
	return fmt.Sprintf("%s:%s:idx", redisKeyPrefix, models.CollectionBoardData)
}

func boardDataRecordsKey() string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, models.CollectionBoardData)
}

func boardDataSeqKey() string {
	return fmt.Sprintf("%s:%s:seq", redisKeyPrefix, models.CollectionBoardData)
}

// collectionKey returns the hash holding every document of a collection
func collectionKey(collection string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, collection)
}

// compoundField joins a user name and numeric id into one hash field
func compoundField(userName string, id int64) string {
	return userName + ":" + strconv.FormatInt(id, 10)
}

// boardDataMember pads ids so equal scores sort by id
func boardDataMember(id int64) string {
	return fmt.Sprintf("%020d", id)
}

// RedisRepository stores board snapshots in a sorted set scored by creation time
// and every other collection as a hash of JSON documents.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository connects to the server at url.
func NewRedisRepository(ctx context.Context, url string) (Repository, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %v", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %v", err)
	}

	return NewRedisRepositoryWithClient(client), nil
}

// NewRedisRepositoryWithClient wraps an existing client.
func NewRedisRepositoryWithClient(client *redis.Client) *RedisRepository {
	return &RedisRepository{
		client: client,
	}
}

// Ensure RedisRepository implements the interface
var _ Repository = (*RedisRepository)(nil)

func (r *RedisRepository) Close(ctx context.Context) error {
	return r.client.Close()
}

func (r *RedisRepository) LoadLatestBoardData(ctx context.Context) (*models.BoardDataRecord, error) {
	members, err := r.client.ZRevRange(ctx, boardDataIndexKey(), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read board data index: %v", err)
	}
	if len(members) == 0 {
		return nil, notFound("board data")
	}

	data, err := r.client.HGet(ctx, boardDataRecordsKey(), members[0]).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound("board data %s", members[0])
		}
		return nil, fmt.Errorf("failed to read board data: %v", err)
	}

	record := &models.BoardDataRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal board data: %v", err)
	}
	return record, nil
}

func (r *RedisRepository) SaveBoardData(ctx context.Context, record *models.BoardDataRecord) error {
	id, err := r.client.Incr(ctx, boardDataSeqKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate board data id: %v", err)
	}
	saved := *record
	saved.ID = id

	data, err := json.Marshal(saved)
	if err != nil {
		return fmt.Errorf("failed to marshal board data: %v", err)
	}

	member := boardDataMember(id)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, boardDataRecordsKey(), member, data)
	pipe.ZAdd(ctx, boardDataIndexKey(), redis.Z{
		Score:  float64(record.CreatedAt.UnixMilli()),
		Member: member,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save board data: %v", err)
	}

	record.ID = id
	return nil
}

// listDocuments decodes every document in a collection hash.
func listDocuments[T any](ctx context.Context, client *redis.Client, collection string) ([]T, error) {
	values, err := client.HGetAll(ctx, collectionKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", collection, err)
	}

	fields := make([]string, 0, len(values))
	for field := range values {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	docs := make([]T, 0, len(values))
	for _, field := range fields {
		var doc T
		if err := json.Unmarshal([]byte(values[field]), &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s %s: %v", collection, field, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (r *RedisRepository) ListItems(ctx context.Context) ([]models.Item, error) {
	items, err := listDocuments[models.Item](ctx, r.client, models.CollectionItems)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r *RedisRepository) ListAbilities(ctx context.Context) ([]models.Ability, error) {
	abilities, err := listDocuments[models.Ability](ctx, r.client, models.CollectionAbilities)
	if err != nil {
		return nil, err
	}
	sort.Slice(abilities, func(i, j int) bool { return abilities[i].ID < abilities[j].ID })
	return abilities, nil
}

func (r *RedisRepository) ListCharacters(ctx context.Context) ([]models.Character, error) {
	return listDocuments[models.Character](ctx, r.client, models.CollectionCharacter)
}

func (r *RedisRepository) ListInventory(ctx context.Context) ([]models.InventoryEntry, error) {
	entries, err := listDocuments[models.InventoryEntry](ctx, r.client, models.CollectionInventory)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UserName != entries[j].UserName {
			return entries[i].UserName < entries[j].UserName
		}
		return entries[i].ItemID < entries[j].ItemID
	})
	return entries, nil
}

func (r *RedisRepository) ListPlayerAbilities(ctx context.Context) ([]models.PlayerAbility, error) {
	abilities, err := listDocuments[models.PlayerAbility](ctx, r.client, models.CollectionPlayerAbilities)
	if err != nil {
		return nil, err
	}
	sort.Slice(abilities, func(i, j int) bool {
		if abilities[i].UserName != abilities[j].UserName {
			return abilities[i].UserName < abilities[j].UserName
		}
		return abilities[i].AbilityID < abilities[j].AbilityID
	})
	return abilities, nil
}

// updateDocument applies update to an existing document under WATCH so concurrent writers retry.
func updateDocument[T any](ctx context.Context, client *redis.Client, collection, field string, update func(doc *T)) error {
	key := collectionKey(collection)
	return client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.HGet(ctx, key, field).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return notFound("%s %s", collection, field)
			}
			return fmt.Errorf("failed to read %s %s: %v", collection, field, err)
		}

		var doc T
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to unmarshal %s %s: %v", collection, field, err)
		}
		update(&doc)

		b, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal %s %s: %v", collection, field, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, b)
			return nil
		})
		return err
	}, key)
}

func (r *RedisRepository) UpdateCharacterStats(ctx context.Context, userName string, stats types.Stats) error {
	return updateDocument(ctx, r.client, models.CollectionCharacter, userName, func(c *models.Character) {
		c.Stats = stats
	})
}

func (r *RedisRepository) UpdateCharacterSkills(ctx context.Context, userName string, skills map[string]bool) error {
	return updateDocument(ctx, r.client, models.CollectionCharacter, userName, func(c *models.Character) {
		c.Skills = skills
	})
}

func (r *RedisRepository) UpsertInventoryEntry(ctx context.Context, entry models.InventoryEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal inventory entry: %v", err)
	}
	field := compoundField(entry.UserName, entry.ItemID)
	if err := r.client.HSet(ctx, collectionKey(models.CollectionInventory), field, b).Err(); err != nil {
		return fmt.Errorf("failed to upsert inventory entry: %v", err)
	}
	return nil
}

func (r *RedisRepository) DeleteInventoryEntry(ctx context.Context, userName string, itemID int64) error {
	if err := r.client.HDel(ctx, collectionKey(models.CollectionInventory), compoundField(userName, itemID)).Err(); err != nil {
		return fmt.Errorf("failed to delete inventory entry: %v", err)
	}
	return nil
}

func (r *RedisRepository) UpdatePlayerAbilityCount(ctx context.Context, userName string, abilityID int64, count int32) error {
	field := compoundField(userName, abilityID)
	return updateDocument(ctx, r.client, models.CollectionPlayerAbilities, field, func(a *models.PlayerAbility) {
		a.Count = count
	})
}
