package repositories

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cbodonnell/tabletop/pkg/repositories/models"
	"github.com/cbodonnell/tabletop/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	query  map[string]string
	prefer string
	body   map[string]interface{}
}

// fakeStore answers every request with the next canned response and records what it saw.
type fakeStore struct {
	t         *testing.T
	requests  []recordedRequest
	responses []string
	status    int
}

func (f *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "secret", r.Header.Get("apikey"))
	assert.Equal(f.t, "Bearer secret", r.Header.Get("Authorization"))
	assert.Equal(f.t, "application/json", r.Header.Get("Accept"))

	req := recordedRequest{
		method: r.Method,
		path:   r.URL.Path,
		query:  map[string]string{},
		prefer: r.Header.Get("Prefer"),
	}
	for k := range r.URL.Query() {
		req.query[k] = r.URL.Query().Get(k)
	}
	if b, _ := io.ReadAll(r.Body); len(b) > 0 {
		assert.NoError(f.t, json.Unmarshal(b, &req.body))
	}
	f.requests = append(f.requests, req)

	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if len(f.responses) > 0 {
		io.WriteString(w, f.responses[0])
		f.responses = f.responses[1:]
	}
}

func newRESTTest(t *testing.T, responses ...string) (*fakeStore, Repository) {
	store := &fakeStore{t: t, responses: responses}
	server := httptest.NewServer(store)
	t.Cleanup(server.Close)

	repo, err := NewRESTRepository(NewRESTRepositoryOptions{
		BaseURL: server.URL + "/rest/v1/",
		APIKey:  "secret",
		Timeout: time.Second,
	})
	require.NoError(t, err)
	return store, repo
}

func TestRESTLoadLatestBoardData(t *testing.T) {
	store, repo := newRESTTest(t, `[{"id":4,"tag":"autosave","data":{"pieces":[{"id":"p1"}],"backpack":[]},"created_at":"2024-05-01T12:00:00Z"}]`)

	record, err := repo.LoadLatestBoardData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), record.ID)
	assert.Equal(t, types.PieceID("p1"), record.Data.Pieces[0].ID)

	require.Len(t, store.requests, 1)
	got := store.requests[0]
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/rest/v1/board_data", got.path)
	assert.Equal(t, "created_at.desc,id.desc", got.query["order"])
	assert.Equal(t, "1", got.query["limit"])
}

func TestRESTLoadLatestBoardDataEmpty(t *testing.T) {
	_, repo := newRESTTest(t, `[]`)

	_, err := repo.LoadLatestBoardData(context.Background())
	assert.True(t, IsNotFound(err))
}

func TestRESTSaveBoardData(t *testing.T) {
	store, repo := newRESTTest(t, `[{"id":9,"tag":"autosave","data":{"pieces":[],"backpack":[]},"created_at":"2024-05-01T12:00:00Z"}]`)

	record := &models.BoardDataRecord{
		Tag:       models.TagAutosave,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.SaveBoardData(context.Background(), record))
	assert.Equal(t, int64(9), record.ID)

	got := store.requests[0]
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "return=representation", got.prefer)
	assert.Equal(t, "autosave", got.body["tag"])
	assert.NotContains(t, got.body, "id")
}

func TestRESTUpdateCharacterStats(t *testing.T) {
	store, repo := newRESTTest(t, `[{"user_name":"Alice"}]`, `[]`)
	ctx := context.Background()

	require.NoError(t, repo.UpdateCharacterStats(ctx, "Alice", types.Stats{Strength: 12}))
	got := store.requests[0]
	assert.Equal(t, http.MethodPatch, got.method)
	assert.Equal(t, "/rest/v1/character", got.path)
	assert.Equal(t, "eq.Alice", got.query["user_name"])
	assert.Contains(t, got.body, "stats")

	err := repo.UpdateCharacterStats(ctx, "Nobody", types.Stats{})
	assert.True(t, IsNotFound(err))
}

func TestRESTInventory(t *testing.T) {
	store, repo := newRESTTest(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertInventoryEntry(ctx, models.InventoryEntry{UserName: "Alice", ItemID: 3, Count: 2}))
	require.NoError(t, repo.DeleteInventoryEntry(ctx, "Alice", 3))

	require.Len(t, store.requests, 2)
	upsert := store.requests[0]
	assert.Equal(t, http.MethodPost, upsert.method)
	assert.Equal(t, "resolution=merge-duplicates,return=minimal", upsert.prefer)
	assert.Equal(t, float64(3), upsert.body["item_id"])

	del := store.requests[1]
	assert.Equal(t, http.MethodDelete, del.method)
	assert.Equal(t, "eq.Alice", del.query["user_name"])
	assert.Equal(t, "eq.3", del.query["item_id"])
}

func TestRESTErrorStatus(t *testing.T) {
	store, repo := newRESTTest(t, `{"message":"permission denied"}`)
	store.status = http.StatusForbidden

	_, err := repo.ListItems(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "permission denied")
	assert.False(t, IsNotFound(err))
}
