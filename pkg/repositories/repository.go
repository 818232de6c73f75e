package repositories

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cbodonnell/tabletop/pkg/repositories/models"
	"github.com/cbodonnell/tabletop/pkg/types"
)

// Repository is the backing store for board snapshots and character data.
// Implementations must be safe for concurrent use.
type Repository interface {
	Close(ctx context.Context) error

	// LoadLatestBoardData returns the most recently created snapshot, or *ErrNotFound if there is none.
	LoadLatestBoardData(ctx context.Context) (*models.BoardDataRecord, error)
	// SaveBoardData appends a snapshot.
	SaveBoardData(ctx context.Context, record *models.BoardDataRecord) error

	ListItems(ctx context.Context) ([]models.Item, error)
	ListAbilities(ctx context.Context) ([]models.Ability, error)
	ListCharacters(ctx context.Context) ([]models.Character, error)
	ListInventory(ctx context.Context) ([]models.InventoryEntry, error)
	ListPlayerAbilities(ctx context.Context) ([]models.PlayerAbility, error)

	// UpdateCharacterStats returns *ErrNotFound if the character does not exist.
	UpdateCharacterStats(ctx context.Context, userName string, stats types.Stats) error
	// UpdateCharacterSkills returns *ErrNotFound if the character does not exist.
	UpdateCharacterSkills(ctx context.Context, userName string, skills map[string]bool) error
	UpsertInventoryEntry(ctx context.Context, entry models.InventoryEntry) error
	DeleteInventoryEntry(ctx context.Context, userName string, itemID int64) error
	// UpdatePlayerAbilityCount returns *ErrNotFound if the user does not hold the ability.
	UpdatePlayerAbilityCount(ctx context.Context, userName string, abilityID int64, count int32) error
}

type NewRepositoryOptions struct {
	// URL selects the backend by scheme: http(s), postgres(ql), sqlite, redis(s) or memory.
	URL     string
	APIKey  string
	Timeout time.Duration
}

// New creates the repository selected by the URL scheme.
// The caller is responsible for calling Close() on the repository.
func New(ctx context.Context, opts NewRepositoryOptions) (Repository, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse store url: %v", err)
	}

	switch u.Scheme {
	case "http", "https":
		return NewRESTRepository(NewRESTRepositoryOptions{
			BaseURL: opts.URL,
			APIKey:  opts.APIKey,
			Timeout: opts.Timeout,
		})
	case "postgres", "postgresql":
		return NewPostgresRepository(ctx, opts.URL)
	case "sqlite", "sqlite3":
		path := strings.TrimPrefix(opts.URL, u.Scheme+"://")
		if path == "" {
			return nil, fmt.Errorf("sqlite store url has no path")
		}
		return NewSQLiteRepository(ctx, path)
	case "redis", "rediss":
		return NewRedisRepository(ctx, opts.URL)
	case "memory":
		return NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported store url scheme: %q", u.Scheme)
	}
}
