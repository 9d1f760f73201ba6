package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeReport(t *testing.T, dir, date, body string) string {
	t.Helper()
	path := CanonicalPath(dir, date)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestFingerprint_MissingFile(t *testing.T) {
	f := New(t.TempDir())
	sum, ok := f.Fingerprint("20250101")
	assert.False(t, ok)
	assert.Empty(t, sum)
}

func TestFingerprint_InvalidDate(t *testing.T) {
	f := New(t.TempDir())
	_, ok := f.Fingerprint("not-a-date")
	assert.False(t, ok)
}

func TestFingerprint_AcceptsDashedDate(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, "20250101", `{"date":"20250101"}`)

	f := New(dir)
	a, ok := f.Fingerprint("20250101")
	require.True(t, ok)
	b, ok := f.Fingerprint("2025-01-01")
	require.True(t, ok)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprint_ChangesWithContentAndMtime(t *testing.T) {
	dir := t.TempDir()
	path := writeReport(t, dir, "20250101", `{"date":"20250101"}`)
	f := New(dir)

	first, ok := f.Fingerprint("20250101")
	require.True(t, ok)

	again, ok := f.Fingerprint("20250101")
	require.True(t, ok)
	assert.Equal(t, first, again, "no side effects, stable result")

	// same bytes, different mtime
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	touched, ok := f.Fingerprint("20250101")
	require.True(t, ok)
	assert.NotEqual(t, first, touched)

	// different bytes, same mtime
	require.NoError(t, os.WriteFile(path, []byte(`{"date":"20250101","x":1}`), 0o644))
	require.NoError(t, os.Chtimes(path, later, later))
	edited, ok := f.Fingerprint("20250101")
	require.True(t, ok)
	assert.NotEqual(t, touched, edited)
}

func TestCacheKey_Deterministic(t *testing.T) {
	a := CacheKey("20250101", "daily_consumption", map[string]string{"x": "1", "y": "2"})
	b := CacheKey("20250101", "daily_consumption", map[string]string{"y": "2", "x": "1"})
	assert.Equal(t, a, b)

	assert.Equal(t, CacheKey("20250101", "k", nil), CacheKey("20250101", "k", map[string]string{}))
	assert.NotEqual(t, a, CacheKey("20250102", "daily_consumption", map[string]string{"x": "1", "y": "2"}))
	assert.NotEqual(t, a, CacheKey("20250101", "summary", map[string]string{"x": "1", "y": "2"}))
}

func TestHashBytes(t *testing.T) {
	assert.Equal(t, HashBytes([]byte("abc")), HashBytes([]byte("abc")))
	assert.NotEqual(t, HashBytes([]byte("abc")), HashBytes([]byte("abd")))
}

func TestHashFile_Missing(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
