package db

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"zinga/config"
	"zinga/logger"
	"zinga/models"
	"zinga/utils"
)

// testClock is a settable clock shared by a store under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Helper function to create a config pointing at a fresh temp data dir
func createTestConfig(t *testing.T) *config.Config {
	return &config.Config{
		DataDir:            t.TempDir(),
		GuardedCollections: []string{models.CollectionModules},
		BackupKeep:         100,
		BcryptCost:         bcrypt.MinCost,
		SeedAdminEmail:     "admin@zingalinga.com",
		SeedAdminPassword:  "admin123",
		JwtSecret:          "test-secret",
		TokenLifetime:      time.Hour,
	}
}

// Helper function to set up a store with a fixed clock
func setupTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	store, err := NewStore(createTestConfig(t), logger.Nop(), nil, WithClock(clock.Now))
	require.NoError(t, err, "NewStore failed during setup")
	return store, clock
}

// Helper to replace the live document on disk
func writeLive(t *testing.T, s *Store, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(s.DataDir(), LiveFileName), []byte(content), 0o644))
}

func readFile(t *testing.T, s *Store, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(s.DataDir(), name))
	require.NoError(t, err)
	return data
}

func backupNames(t *testing.T, s *Store) []string {
	t.Helper()
	backups, err := s.ListBackups(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(backups))
	for _, b := range backups {
		names = append(names, b.Filename)
	}
	return names
}

func modulesDoc(ids ...string) *models.AppData {
	doc := &models.AppData{}
	for _, id := range ids {
		doc.Modules = append(doc.Modules, models.Module{ID: id, Title: "Module " + id, Price: 1})
	}
	return doc
}

// --- Load Tests ---

func TestStore_Load_WritesSeedOnFirstRun(t *testing.T) {
	store, _ := setupTestStore(t)

	doc, err := store.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, doc.Users, 1)
	assert.Equal(t, "admin@zingalinga.com", doc.Users[0].Email)
	assert.True(t, utils.IsPasswordHash(doc.Users[0].Password), "seed password must be hashed")
	assert.Len(t, doc.Modules, 2)
	assert.FileExists(t, filepath.Join(store.DataDir(), LiveFileName))
	assert.NoFileExists(t, filepath.Join(store.DataDir(), SidecarFileName))
}

func TestStore_LoadRaw_Idempotent(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	first, err := store.LoadRaw(ctx)
	require.NoError(t, err)
	second, err := store.LoadRaw(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestStore_Load_RestoresSidecar(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, modulesDoc("m1", "m2", "m3"), SaveOptions{})
	require.NoError(t, err)
	sidecar := readFile(t, store, SidecarFileName)

	require.NoError(t, os.Remove(filepath.Join(store.DataDir(), LiveFileName)))

	raw, err := store.LoadRaw(ctx)
	require.NoError(t, err)
	assert.Equal(t, sidecar, raw)
	assert.Equal(t, sidecar, readFile(t, store, LiveFileName))
}

func TestStore_Load_CorruptDocument(t *testing.T) {
	cfg := createTestConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, LiveFileName), []byte(`{"modules": [`), 0o644))

	store, err := NewStore(cfg, logger.Nop(), nil)
	require.NoError(t, err, "a corrupt document must not prevent startup")

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ErrCorruptDocument)
	_, err = store.LoadDocument(context.Background())
	assert.ErrorIs(t, err, ErrCorruptDocument)
	_, err = store.Save(context.Background(), modulesDoc("m1"), SaveOptions{})
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestStore_LoadWithReport_Quarantine(t *testing.T) {
	store, _ := setupTestStore(t)
	writeLive(t, store, `{"modules":[{"id":"m1","title":"Ok"},{"id":"m2"},{"id":"m3","title":"Neg","price":-1}]}`)

	doc, bad, err := store.LoadWithReport(context.Background())
	require.NoError(t, err)
	require.Len(t, doc.Modules, 1)
	assert.Equal(t, "m1", doc.Modules[0].ID)
	assert.Len(t, bad, 2)

	// The raw view keeps everything.
	raw, err := store.LoadDocument(context.Background())
	require.NoError(t, err)
	var modules []json.RawMessage
	require.NoError(t, json.Unmarshal(raw["modules"], &modules))
	assert.Len(t, modules, 3)
}

// --- Save Tests ---

func TestStore_Save_GuardRejectsDestructiveSave(t *testing.T) {
	testCases := []struct {
		name     string
		incoming *models.AppData
	}{
		{"modules empty", &models.AppData{Modules: []models.Module{}, Users: []models.User{{ID: "u1", Email: "a@b.co"}}}},
		{"modules missing", &models.AppData{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, _ := setupTestStore(t)
			ctx := context.Background()
			before, err := store.LoadRaw(ctx)
			require.NoError(t, err)

			_, err = store.Save(ctx, tc.incoming, SaveOptions{})
			assert.ErrorIs(t, err, ErrDestructiveSave)

			assert.Equal(t, before, readFile(t, store, LiveFileName), "live file must be unchanged")
			assert.Len(t, backupNames(t, store), 1, "only a backup may be added")
		})
	}
}

func TestStore_Save_GuardIsConfigurable(t *testing.T) {
	store, _ := setupTestStore(t)
	store.config.GuardedCollections = []string{models.CollectionModules, models.CollectionUsers}
	ctx := context.Background()

	_, err := store.Save(ctx, modulesDoc("m1"), SaveOptions{})
	assert.ErrorIs(t, err, ErrDestructiveSave, "users would be emptied")

	incoming := modulesDoc("m1")
	incoming.Users = []models.User{{ID: "u1", Email: "kid@example.com"}}
	_, err = store.Save(ctx, incoming, SaveOptions{})
	require.NoError(t, err)

	// Purchases are not guarded.
	incoming.Purchases = []models.Purchase{}
	_, err = store.Save(ctx, incoming, SaveOptions{})
	assert.NoError(t, err)
}

func TestStore_Save_MissingLiveFileIsEmptyBaseline(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, modulesDoc("a", "b"), SaveOptions{})
	require.NoError(t, err)
	sidecar := readFile(t, store, SidecarFileName)
	backupsBefore := backupNames(t, store)

	require.NoError(t, os.Remove(filepath.Join(store.DataDir(), LiveFileName)))

	incoming := &models.AppData{Users: []models.User{{ID: "u1", Email: "kid@example.com"}}}
	result, err := store.Save(ctx, incoming, SaveOptions{})
	require.NoError(t, err, "the guard has nothing on disk to protect")
	assert.Equal(t, SaveResult{Success: true, ModuleCount: 0, Version: 1}, result)

	assert.Equal(t, backupsBefore, backupNames(t, store), "no prior bytes, no backup")
	assert.Equal(t, sidecar, readFile(t, store, SidecarFileName), "sidecar keeps the last catalog")

	doc, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.Modules)
	require.Len(t, doc.Users, 1)
	assert.Equal(t, "u1", doc.Users[0].ID)
}

func TestStore_Save_MergePreference(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	writeLive(t, store, `{
		"modules": [{"id":"A","title":"A"},{"id":"B","title":"B"}],
		"users": [{"id":"U1","email":"u1@example.com","role":"user"}],
		"settings": {"siteName":"Zinga Linga","currency":"USD"},
		"comments": [{"id":"c1","text":"hi"}],
		"customKey": 7
	}`)

	incoming := &models.AppData{
		Modules:  []models.Module{{ID: "C", Title: "C"}},
		Users:    []models.User{},
		Settings: map[string]json.RawMessage{"siteName": json.RawMessage(`"Zinga"`)},
	}
	result, err := store.Save(ctx, incoming, SaveOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ModuleCount)

	doc, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Modules, 1)
	assert.Equal(t, "C", doc.Modules[0].ID)
	require.Len(t, doc.Users, 1)
	assert.Equal(t, "U1", doc.Users[0].ID)
	assert.JSONEq(t, `"Zinga"`, string(doc.Settings["siteName"]))
	assert.JSONEq(t, `"USD"`, string(doc.Settings["currency"]))
	assert.Len(t, doc.Auxiliary["comments"], 1)
	assert.JSONEq(t, `7`, string(doc.Extra["customKey"]))
	assert.NotNil(t, doc.LastSaved)
}

func TestStore_Save_BackupsMatchPriorStates(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	const saves = 4
	var priors [][]byte
	for i := 0; i < saves; i++ {
		before, err := store.LoadRaw(ctx)
		require.NoError(t, err)
		priors = append(priors, before)

		_, err = store.Save(ctx, modulesDoc("m1", strings.Repeat("x", i+1)), SaveOptions{})
		require.NoError(t, err)
	}

	names := backupNames(t, store)
	require.Len(t, names, saves)
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] }) // oldest first, same digit count
	for i, name := range names {
		assert.Equal(t, priors[i], readFile(t, store, name), "backup %s", name)
	}
}

func TestStore_Save_VersionConflict(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	first, err := store.Save(ctx, modulesDoc("m1"), SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)

	stale := int64(0)
	_, err = store.Save(ctx, modulesDoc("m2"), SaveOptions{BaseVersion: &stale})
	assert.ErrorIs(t, err, ErrVersionConflict)

	current := first.Version
	second, err := store.Save(ctx, modulesDoc("m2"), SaveOptions{BaseVersion: &current})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Version)
}

func TestStore_Save_Normalizes(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	incoming := &models.AppData{
		Users: []models.User{{ID: "u1", Email: "kid@example.com", Password: "secret"}},
		Modules: []models.Module{{
			ID:          "m1",
			Title:       `Tom & Jerry <script>alert(1)</script>`,
			Description: `<p>Fun</p><script>x()</script>`,
		}},
		Packages: []models.Package{{ID: "p1", Name: "<b>Bundle</b>"}},
	}
	_, err := store.Save(ctx, incoming, SaveOptions{})
	require.NoError(t, err)

	doc, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, utils.CheckPasswordHash("secret", doc.Users[0].Password))
	assert.Equal(t, "Tom & Jerry ", doc.Modules[0].Title)
	assert.Equal(t, "<p>Fun</p>", doc.Modules[0].Description)
	assert.Equal(t, "Bundle", doc.Packages[0].Name)

	// A second save keeps the hash instead of hashing it again.
	hash := doc.Users[0].Password
	_, err = store.Save(ctx, modulesDoc("m1"), SaveOptions{})
	require.NoError(t, err)
	doc, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, hash, doc.Users[0].Password)
}

func TestStore_Save_RejectsTextEmptiedBySanitizing(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	before := readFile(t, store, LiveFileName)

	cases := []struct {
		name     string
		incoming *models.AppData
	}{
		{"module title", &models.AppData{Modules: []models.Module{{ID: "keep", Title: "Keep"}, {ID: "m", Title: "<img src=x>"}}}},
		{"package name", &models.AppData{Modules: []models.Module{{ID: "keep", Title: "Keep"}}, Packages: []models.Package{{ID: "p", Name: "<script>x()</script>"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Save(ctx, tc.incoming, SaveOptions{})
			require.ErrorIs(t, err, ErrInvalidRecords)

			var invalid *models.InvalidRecordsError
			require.ErrorAs(t, err, &invalid)
			assert.Len(t, invalid.Records, 1)
			assert.Equal(t, before, readFile(t, store, LiveFileName), "live file untouched")
		})
	}

	_, quarantined, err := store.LoadWithReport(ctx)
	require.NoError(t, err)
	assert.Empty(t, quarantined)
}

func TestStore_Save_KeepsPasswordsOfEchoedUsers(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	doc, err := store.Load(ctx)
	require.NoError(t, err)
	admin := doc.Users[0]
	hash := admin.Password
	require.NotEmpty(t, hash)

	admin.Password = ""
	admin.Name = "Renamed"
	incoming := &models.AppData{Users: []models.User{admin, {ID: "u2", Email: "new@example.com"}}}
	_, err = store.Save(ctx, incoming, SaveOptions{})
	require.NoError(t, err)

	doc, err = store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Users, 2)
	assert.Equal(t, "Renamed", doc.Users[0].Name)
	assert.Equal(t, hash, doc.Users[0].Password)
	assert.Empty(t, doc.Users[1].Password, "new users get no password from elsewhere")
}

func TestRedactPasswords(t *testing.T) {
	doc := map[string]json.RawMessage{
		"users":   json.RawMessage(`[{"id":"u1","password":"$2a$04$hash","name":"A"},{"id":"u2"},"odd"]`),
		"modules": json.RawMessage(`[{"id":"m1","password":"not a user"}]`),
	}
	require.NoError(t, RedactPasswords(doc))
	assert.JSONEq(t, `[{"id":"u1","name":"A"},{"id":"u2"},"odd"]`, string(doc["users"]))
	assert.JSONEq(t, `[{"id":"m1","password":"not a user"}]`, string(doc["modules"]))

	notArray := map[string]json.RawMessage{"users": json.RawMessage(`{"id":"u1"}`)}
	require.NoError(t, RedactPasswords(notArray))
	assert.JSONEq(t, `{"id":"u1"}`, string(notArray["users"]))

	require.NoError(t, RedactPasswords(map[string]json.RawMessage{}))
}

func TestStore_Save_QuarantinesDroppedRecords(t *testing.T) {
	store, _ := setupTestStore(t)
	writeLive(t, store, `{"modules":[{"id":"m1","title":"Ok"}],"users":[{"id":"u1"}]}`)

	_, err := store.Save(context.Background(), modulesDoc("m1"), SaveOptions{})
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(store.DataDir(), "quarantine-*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	var records []models.Quarantined
	require.NoError(t, json.Unmarshal(readFile(t, store, filepath.Base(matches[0])), &records))
	require.Len(t, records, 1)
	assert.Equal(t, models.CollectionUsers, records[0].Collection)
	assert.JSONEq(t, `{"id":"u1"}`, string(records[0].Raw))
}

func TestStore_Save_SidecarOnlyWithModules(t *testing.T) {
	store, _ := setupTestStore(t)
	writeLive(t, store, `{"modules":[],"users":[]}`)

	_, err := store.Save(context.Background(), &models.AppData{Users: []models.User{{ID: "u1", Email: "a@b.co"}}}, SaveOptions{})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(store.DataDir(), SidecarFileName))

	_, err = store.Save(context.Background(), modulesDoc("m1"), SaveOptions{})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(store.DataDir(), SidecarFileName))
}

func TestStore_Save_Concurrent(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Save(ctx, modulesDoc("m1"), SaveOptions{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(writers), doc.Version, "no save may be lost")
	assert.Len(t, backupNames(t, store), writers)
}

func TestStore_Save_CanceledContext(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Save(ctx, modulesDoc("m1"), SaveOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, backupNames(t, store))
}
