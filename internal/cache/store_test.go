package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/feedmix/internal/fingerprint"
	"github.com/mohamedkhairy/feedmix/internal/models"
)

type stubSource struct {
	hashes map[string]string
}

func (s *stubSource) Fingerprint(date string) (string, bool) {
	h, ok := s.hashes[date]
	return h, ok
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type payload struct {
	Date  string  `json:"date"`
	Total float64 `json:"total"`
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *stubSource, *fakeClock) {
	t.Helper()
	src := &stubSource{hashes: map[string]string{"20250101": "h1", "20250102": "h2"}}
	clock := &fakeClock{now: time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	store, err := NewStore(t.TempDir(), src, opts...)
	require.NoError(t, err)
	return store, src, clock
}

func TestStore_PutGet(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.True(t, store.Put("20250101", payload{Date: "20250101", Total: 42}, models.ReportKindDailyConsumption, nil))

	var got payload
	require.True(t, store.Get("2025-01-01", models.ReportKindDailyConsumption, nil, &got))
	assert.Equal(t, 42.0, got.Total)

	assert.False(t, store.Get("20250101", "summary", nil, &got), "other kind is another key")
	assert.False(t, store.Get("20250101", models.ReportKindDailyConsumption, map[string]string{"x": "1"}, &got))
}

func TestStore_EmptyKindIsDailyConsumption(t *testing.T) {
	store, _, _ := newTestStore(t)
	require.True(t, store.Put("20250101", payload{Total: 1}, "", nil))

	var got payload
	assert.True(t, store.Get("20250101", models.ReportKindDailyConsumption, nil, &got))
}

func TestStore_ParamsOrderIndependent(t *testing.T) {
	store, _, _ := newTestStore(t)
	require.True(t, store.Put("20250101", payload{Total: 7}, "table", map[string]string{"a": "1", "b": "2"}))

	var got payload
	assert.True(t, store.Get("20250101", "table", map[string]string{"b": "2", "a": "1"}, &got))
	assert.Equal(t, 7.0, got.Total)
}

func TestStore_GetMissWithoutSource(t *testing.T) {
	store, src, _ := newTestStore(t)
	delete(src.hashes, "20250101")

	// put falls back to hashing the payload
	require.True(t, store.Put("20250101", payload{Total: 1}, models.ReportKindDailyConsumption, nil))

	var got payload
	assert.False(t, store.Get("20250101", models.ReportKindDailyConsumption, nil, &got))
}

func TestStore_GetMissOnStaleSource(t *testing.T) {
	store, src, _ := newTestStore(t)
	require.True(t, store.Put("20250101", payload{Total: 1}, models.ReportKindDailyConsumption, nil))

	src.hashes["20250101"] = "changed"
	var got payload
	assert.False(t, store.Get("20250101", models.ReportKindDailyConsumption, nil, &got))
}

func TestStore_ExpiryBoundary(t *testing.T) {
	store, _, clock := newTestStore(t, WithValidity(time.Hour))
	require.True(t, store.Put("20250101", payload{Total: 1}, models.ReportKindDailyConsumption, nil))

	var got payload
	clock.Advance(59 * time.Minute)
	assert.True(t, store.Get("20250101", models.ReportKindDailyConsumption, nil, &got))

	clock.Advance(time.Minute)
	assert.False(t, store.Get("20250101", models.ReportKindDailyConsumption, nil, &got), "age equal to the window is expired")
}

func TestStore_MissingOrCorruptPayload(t *testing.T) {
	store, _, _ := newTestStore(t)
	require.True(t, store.Put("20250101", payload{Total: 1}, models.ReportKindDailyConsumption, nil))
	require.True(t, store.Put("20250102", payload{Total: 2}, models.ReportKindDailyConsumption, nil))

	key1 := fingerprint.CacheKey("20250101", models.ReportKindDailyConsumption, nil)
	require.NoError(t, os.Remove(store.payloadPath(key1)))

	key2 := fingerprint.CacheKey("20250102", models.ReportKindDailyConsumption, nil)
	require.NoError(t, os.WriteFile(store.payloadPath(key2), []byte("{not json"), 0o644))

	var got payload
	assert.False(t, store.Get("20250101", models.ReportKindDailyConsumption, nil, &got))
	assert.False(t, store.Get("20250102", models.ReportKindDailyConsumption, nil, &got))
}

func TestStore_SourceChangeInvalidates(t *testing.T) {
	reportsDir := t.TempDir()
	reportPath := fingerprint.CanonicalPath(reportsDir, "20250101")
	require.NoError(t, os.WriteFile(reportPath, []byte(`{"date":"20250101","v":1}`), 0o644))

	store, err := NewStore(t.TempDir(), fingerprint.New(reportsDir))
	require.NoError(t, err)
	require.True(t, store.Put("20250101", payload{Date: "20250101", Total: 1}, models.ReportKindDailyConsumption, nil))

	var got payload
	require.True(t, store.Get("20250101", models.ReportKindDailyConsumption, nil, &got))

	require.NoError(t, os.WriteFile(reportPath, []byte(`{"date":"20250101","v":2}`), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(reportPath, later, later))

	assert.False(t, store.Get("20250101", models.ReportKindDailyConsumption, nil, &got))
}

func TestStore_Matches(t *testing.T) {
	store, src, _ := newTestStore(t)
	assert.False(t, store.Matches("20250101", models.ReportKindDailyConsumption), "no entry")

	require.True(t, store.Put("20250101", payload{Total: 1}, models.ReportKindDailyConsumption, nil))
	assert.True(t, store.Matches("2025-01-01", models.ReportKindDailyConsumption))
	assert.False(t, store.Matches("20250101", "summary"))
	assert.False(t, store.Matches("20250199", models.ReportKindDailyConsumption))

	src.hashes["20250101"] = "h1-edited"
	assert.False(t, store.Matches("20250101", models.ReportKindDailyConsumption))

	delete(src.hashes, "20250101")
	assert.False(t, store.Matches("20250101", models.ReportKindDailyConsumption), "no source file")
}

func TestStore_CorruptIndexStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte("garbage{"), 0o644))

	store, err := NewStore(dir, &stubSource{hashes: map[string]string{"20250101": "h"}})
	require.NoError(t, err)
	assert.Equal(t, 0, store.Statistics().TotalEntries)

	require.True(t, store.Put("20250101", payload{Total: 1}, models.ReportKindDailyConsumption, nil))
	assert.Equal(t, 1, store.Statistics().TotalEntries)
}

func TestStore_IndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	src := &stubSource{hashes: map[string]string{"20250101": "h"}}

	store, err := NewStore(dir, src)
	require.NoError(t, err)
	require.True(t, store.Put("20250101", payload{Total: 9}, models.ReportKindDailyConsumption, map[string]string{"v": "2"}))
	require.NoError(t, store.Flush())

	reopened, err := NewStore(dir, src)
	require.NoError(t, err)
	var got payload
	require.True(t, reopened.Get("20250101", models.ReportKindDailyConsumption, map[string]string{"v": "2"}, &got))
	assert.Equal(t, 9.0, got.Total)
}

func TestStore_Invalidate(t *testing.T) {
	store, _, _ := newTestStore(t)
	require.True(t, store.Put("20250101", payload{}, models.ReportKindDailyConsumption, nil))
	require.True(t, store.Put("20250101", payload{}, "summary", nil))
	require.True(t, store.Put("20250102", payload{}, models.ReportKindDailyConsumption, nil))

	assert.Equal(t, 1, store.Invalidate("20250101", "summary"))
	assert.Equal(t, 0, store.Invalidate("20250101", "summary"), "idempotent")
	assert.Equal(t, 0, store.Invalidate("bogus", ""))
	assert.Equal(t, 1, store.Invalidate("2025-01-01", ""))
	assert.Equal(t, 1, store.Statistics().TotalEntries)

	assert.Equal(t, 1, store.Invalidate("", ""))
	assert.Equal(t, 0, store.Statistics().TotalEntries)

	files, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	for _, f := range files {
		assert.Equal(t, MetadataFile, f.Name())
	}
}

func TestStore_CleanupExpired(t *testing.T) {
	store, _, clock := newTestStore(t)

	require.True(t, store.Put("20250101", payload{}, models.ReportKindDailyConsumption, nil))
	require.True(t, store.Put("20250101", payload{}, "summary", nil))
	clock.Advance(30 * time.Hour)
	require.True(t, store.Put("20250102", payload{}, models.ReportKindDailyConsumption, nil))

	orphan := filepath.Join(store.Dir(), "deadbeef.json")
	require.NoError(t, os.WriteFile(orphan, []byte("{}"), 0o644))

	assert.Equal(t, 3, store.Statistics().TotalEntries)
	assert.Equal(t, 2, store.CleanupExpired())

	stats := store.Statistics()
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, clock.now, stats.LastCleanup)
	assert.NoFileExists(t, orphan)

	var got payload
	assert.True(t, store.Get("20250102", models.ReportKindDailyConsumption, nil, &got))
}

func TestStore_CleanupOlderThan(t *testing.T) {
	store, _, clock := newTestStore(t, WithValidity(30*24*time.Hour))

	require.True(t, store.Put("20250101", payload{}, models.ReportKindDailyConsumption, nil))
	clock.Advance(8 * 24 * time.Hour)
	require.True(t, store.Put("20250102", payload{}, models.ReportKindDailyConsumption, nil))

	assert.Equal(t, 1, store.CleanupOlderThan(7))
	assert.Equal(t, 1, store.Statistics().TotalEntries)
	assert.Equal(t, 0, store.CleanupOlderThan(-1))
}

func TestStore_SizeEviction(t *testing.T) {
	store, src, clock := newTestStore(t)
	src.hashes["20250103"] = "h3"

	require.True(t, store.Put("20250101", payload{Date: "20250101"}, models.ReportKindDailyConsumption, nil))
	entrySize := store.Statistics().TotalSizeBytes
	store.maxSize = entrySize * 2

	clock.Advance(time.Minute)
	require.True(t, store.Put("20250102", payload{Date: "20250102"}, models.ReportKindDailyConsumption, nil))

	// touch the first entry so the second becomes least recently used
	clock.Advance(time.Minute)
	var got payload
	require.True(t, store.Get("20250101", models.ReportKindDailyConsumption, nil, &got))

	clock.Advance(time.Minute)
	require.True(t, store.Put("20250103", payload{Date: "20250103"}, models.ReportKindDailyConsumption, nil))

	stats := store.Statistics()
	assert.Equal(t, 2, stats.TotalEntries)
	assert.LessOrEqual(t, stats.TotalSizeBytes, entrySize*2)
	assert.True(t, store.Get("20250101", models.ReportKindDailyConsumption, nil, &got))
	assert.False(t, store.Get("20250102", models.ReportKindDailyConsumption, nil, &got))
	assert.True(t, store.Get("20250103", models.ReportKindDailyConsumption, nil, &got))
}

func TestStore_Statistics(t *testing.T) {
	store, _, clock := newTestStore(t)
	require.True(t, store.Put("20250101", payload{}, models.ReportKindDailyConsumption, nil))
	clock.Advance(25 * time.Hour)
	require.True(t, store.Put("20250102", payload{}, "summary", nil))

	stats := store.Statistics()
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 1, stats.RecentEntries24h)
	assert.Equal(t, map[string]int{models.ReportKindDailyConsumption: 1, "summary": 1}, stats.ReportTypes)
	assert.Equal(t, 24.0, stats.ValidityHours)
	assert.Equal(t, store.Dir(), stats.CacheDirectory)
	assert.Greater(t, stats.TotalSizeBytes, int64(0))
	assert.InDelta(t, float64(stats.TotalSizeBytes)/(1024*1024), stats.TotalSizeMB, 1e-12)
}

func TestStore_Status(t *testing.T) {
	store, src, _ := newTestStore(t)
	require.True(t, store.Put("20250101", payload{}, models.ReportKindDailyConsumption, nil))
	require.True(t, store.Put("20250101", payload{}, "summary", nil))

	src.hashes["20250101"] = "changed"
	require.True(t, store.Put("20250101", payload{}, "summary", nil))

	status := store.Status("2025-01-01")
	assert.Equal(t, "20250101", status.Date)
	require.Len(t, status.Entries, 2)
	assert.Equal(t, models.ReportKindDailyConsumption, status.Entries[0].ReportType)
	assert.False(t, status.Entries[0].Valid)
	assert.Equal(t, "summary", status.Entries[1].ReportType)
	assert.True(t, status.Entries[1].Valid)

	overall := store.Status("")
	require.NotNil(t, overall.Statistics)
	assert.Equal(t, 2, overall.Statistics.TotalEntries)

	assert.Empty(t, store.Status("nope").Entries)
}
