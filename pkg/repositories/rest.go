package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cbodonnell/tabletop/pkg/repositories/models"
	"github.com/cbodonnell/tabletop/pkg/types"
)

const (
	// DefaultRESTTimeout applies when no timeout is configured
	DefaultRESTTimeout = 10 * time.Second
	// maxErrorBody limits how much of an error response is kept in the error message
	maxErrorBody = 512
)

// RESTRepository talks to a PostgREST style document store.
// Collections are addressed as {base}/{collection} and filtered with query parameters.
type RESTRepository struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type NewRESTRepositoryOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Client overrides the HTTP client. Its timeout is left untouched.
	Client *http.Client
}

func NewRESTRepository(opts NewRESTRepositoryOptions) (Repository, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("rest repository requires a base url")
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultRESTTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &RESTRepository{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		client:  client,
	}, nil
}

// Ensure RESTRepository implements the interface
var _ Repository = (*RESTRepository)(nil)

func (r *RESTRepository) Close(ctx context.Context) error {
	r.client.CloseIdleConnections()
	return nil
}

// do sends a request and decodes a JSON response into out when out is not nil.
func (r *RESTRepository) do(ctx context.Context, method, collection string, query url.Values, body interface{}, prefer string, out interface{}) error {
	u := r.baseURL + "/" + collection
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s body: %v", collection, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.apiKey != "" {
		req.Header.Set("apikey", r.apiKey)
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, collection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s %s returned %d: %s", method, collection, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %v", collection, err)
	}
	return nil
}

func eq(v string) string {
	return "eq." + v
}

func (r *RESTRepository) LoadLatestBoardData(ctx context.Context) (*models.BoardDataRecord, error) {
	query := url.Values{
		"select": {"*"},
		"order":  {"created_at.desc,id.desc"},
		"limit":  {"1"},
	}
	var records []models.BoardDataRecord
	if err := r.do(ctx, http.MethodGet, models.CollectionBoardData, query, nil, "", &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, notFound("board data")
	}
	return &records[0], nil
}

func (r *RESTRepository) SaveBoardData(ctx context.Context, record *models.BoardDataRecord) error {
	body := struct {
		Tag       string          `json:"tag"`
		Data      types.BoardData `json:"data"`
		CreatedAt time.Time       `json:"created_at"`
	}{
		Tag:       record.Tag,
		Data:      record.Data,
		CreatedAt: record.CreatedAt,
	}
	var created []models.BoardDataRecord
	if err := r.do(ctx, http.MethodPost, models.CollectionBoardData, nil, body, "return=representation", &created); err != nil {
		return err
	}
	if len(created) > 0 {
		record.ID = created[0].ID
	}
	return nil
}

func (r *RESTRepository) ListItems(ctx context.Context) ([]models.Item, error) {
	items := []models.Item{}
	query := url.Values{"select": {"*"}, "order": {"id.asc"}}
	if err := r.do(ctx, http.MethodGet, models.CollectionItems, query, nil, "", &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *RESTRepository) ListAbilities(ctx context.Context) ([]models.Ability, error) {
	abilities := []models.Ability{}
	query := url.Values{"select": {"*"}, "order": {"id.asc"}}
	if err := r.do(ctx, http.MethodGet, models.CollectionAbilities, query, nil, "", &abilities); err != nil {
		return nil, err
	}
	return abilities, nil
}

func (r *RESTRepository) ListCharacters(ctx context.Context) ([]models.Character, error) {
	characters := []models.Character{}
	query := url.Values{"select": {"*"}, "order": {"user_name.asc"}}
	if err := r.do(ctx, http.MethodGet, models.CollectionCharacter, query, nil, "", &characters); err != nil {
		return nil, err
	}
	return characters, nil
}

func (r *RESTRepository) ListInventory(ctx context.Context) ([]models.InventoryEntry, error) {
	entries := []models.InventoryEntry{}
	query := url.Values{"select": {"*"}, "order": {"user_name.asc,item_id.asc"}}
	if err := r.do(ctx, http.MethodGet, models.CollectionInventory, query, nil, "", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *RESTRepository) ListPlayerAbilities(ctx context.Context) ([]models.PlayerAbility, error) {
	abilities := []models.PlayerAbility{}
	query := url.Values{"select": {"*"}, "order": {"user_name.asc,ability_id.asc"}}
	if err := r.do(ctx, http.MethodGet, models.CollectionPlayerAbilities, query, nil, "", &abilities); err != nil {
		return nil, err
	}
	return abilities, nil
}

// patch updates the rows matching query and fails with *ErrNotFound when none matched.
func (r *RESTRepository) patch(ctx context.Context, collection string, query url.Values, body interface{}, resource string) error {
	var updated []json.RawMessage
	if err := r.do(ctx, http.MethodPatch, collection, query, body, "return=representation", &updated); err != nil {
		return err
	}
	if len(updated) == 0 {
		return notFound("%s", resource)
	}
	return nil
}

func (r *RESTRepository) UpdateCharacterStats(ctx context.Context, userName string, stats types.Stats) error {
	query := url.Values{"user_name": {eq(userName)}}
	body := map[string]interface{}{"stats": stats}
	return r.patch(ctx, models.CollectionCharacter, query, body, "character "+userName)
}

func (r *RESTRepository) UpdateCharacterSkills(ctx context.Context, userName string, skills map[string]bool) error {
	query := url.Values{"user_name": {eq(userName)}}
	body := map[string]interface{}{"skills": skills}
	return r.patch(ctx, models.CollectionCharacter, query, body, "character "+userName)
}

func (r *RESTRepository) UpsertInventoryEntry(ctx context.Context, entry models.InventoryEntry) error {
	return r.do(ctx, http.MethodPost, models.CollectionInventory, nil, entry, "resolution=merge-duplicates,return=minimal", nil)
}

func (r *RESTRepository) DeleteInventoryEntry(ctx context.Context, userName string, itemID int64) error {
	query := url.Values{
		"user_name": {eq(userName)},
		"item_id":   {eq(strconv.FormatInt(itemID, 10))},
	}
	return r.do(ctx, http.MethodDelete, models.CollectionInventory, query, nil, "return=minimal", nil)
}

func (r *RESTRepository) UpdatePlayerAbilityCount(ctx context.Context, userName string, abilityID int64, count int32) error {
	query := url.Values{
		"user_name":  {eq(userName)},
		"ability_id": {eq(strconv.FormatInt(abilityID, 10))},
	}
	body := map[string]interface{}{"count": count}
	return r.patch(ctx, models.CollectionPlayerAbilities, query, body, fmt.Sprintf("ability %d for %s", abilityID, userName))
}
