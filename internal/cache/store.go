// Package cache stores computed report payloads on disk, keyed by
// (date, kind, params) and validated against the canonical source file.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mohamedkhairy/feedmix/internal/fingerprint"
	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/internal/storage"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

const (
	// MetadataFile is the name of the index file inside the cache directory
	MetadataFile = "cache_metadata.json"
	// DefaultValidity is how long an entry stays usable
	DefaultValidity = 24 * time.Hour
)

// SourceFingerprinter computes the current fingerprint of a date's canonical report
type SourceFingerprinter interface {
	Fingerprint(date string) (string, bool)
}

// Option configures a Store
type Option func(*Store)

// WithValidity sets the validity window
func WithValidity(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.validity = d
		}
	}
}

// WithMaxSize caps the total payload size; 0 means unlimited
func WithMaxSize(bytes int64) Option {
	return func(s *Store) {
		if bytes >= 0 {
			s.maxSize = bytes
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is the on-disk report cache. It exclusively owns its directory.
type Store struct {
	mu       sync.Mutex
	dir      string
	source   SourceFingerprinter
	validity time.Duration
	maxSize  int64
	now      func() time.Time
	index    *models.CacheIndex
}

// NewStore opens (or creates) a cache directory. A missing or corrupt
// index starts an empty cache.
func NewStore(dir string, source SourceFingerprinter, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	s := &Store{
		dir:      dir,
		source:   source,
		validity: DefaultValidity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.index = s.loadIndex()
	s.updateGauges()

	logger.Info("Cache store opened",
		logger.Path(dir),
		logger.Int("entries", len(s.index.CacheEntries)),
		logger.Duration("validity", s.validity),
	)
	return s, nil
}

// Dir returns the cache directory
func (s *Store) Dir() string {
	return s.dir
}

// Validity returns the validity window
func (s *Store) Validity() time.Duration {
	return s.validity
}

func (s *Store) clock() time.Time {
	return s.now().UTC()
}

func (s *Store) payloadPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dir, MetadataFile)
}

func (s *Store) loadIndex() *models.CacheIndex {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Failed to read cache index, starting empty",
				logger.Path(s.indexPath()),
				logger.ErrorField(err),
			)
		}
		return models.NewCacheIndex()
	}

	idx := models.NewCacheIndex()
	if err := json.Unmarshal(data, idx); err != nil {
		logger.Warn("Corrupt cache index, starting empty",
			logger.Path(s.indexPath()),
			logger.ErrorField(err),
		)
		logger.CountError("cache", "corrupt_index")
		return models.NewCacheIndex()
	}
	if idx.CacheEntries == nil {
		idx.CacheEntries = make(map[string]*models.CacheEntry)
	}
	for key, entry := range idx.CacheEntries {
		if entry == nil || entry.Validate() != nil {
			delete(idx.CacheEntries, key)
		}
	}
	idx.Recount()
	return idx
}

// saveIndexLocked rewrites the whole index file. Caller holds mu.
func (s *Store) saveIndexLocked() error {
	s.index.Recount()
	data, err := models.EncodeJSON(s.index)
	if err != nil {
		return fmt.Errorf("failed to encode cache index: %w", err)
	}
	if err := storage.AtomicWriteFile(s.indexPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache index: %w", err)
	}
	s.updateGauges()
	return nil
}

func (s *Store) updateGauges() {
	cacheEntries.Set(float64(len(s.index.CacheEntries)))
	cacheSizeBytes.Set(float64(s.index.TotalCacheSize))
}

func (s *Store) expired(entry *models.CacheEntry, now time.Time) bool {
	return entry.Age(now) >= s.validity
}

// Get loads the payload cached for (date, kind, params) into dst. It returns
// false on any miss: unknown key, expired entry, changed or absent source,
// missing or corrupt payload.
func (s *Store) Get(date, kind string, params map[string]string, dst interface{}) bool {
	date, err := models.NormalizeDate(date)
	if err != nil {
		recordMiss(reasonInvalidDate)
		return false
	}
	kind = kindOrDefault(kind)
	key := fingerprint.CacheKey(date, kind, params)

	currentHash, ok := s.source.Fingerprint(date)
	if !ok {
		recordMiss(reasonNoSource)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.index.CacheEntries[key]
	if !ok {
		recordMiss(reasonNotFound)
		return false
	}
	now := s.clock()
	if s.expired(entry, now) {
		recordMiss(reasonExpired)
		return false
	}
	if entry.SourceHash != currentHash {
		recordMiss(reasonStale)
		return false
	}

	data, err := os.ReadFile(s.payloadPath(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Failed to read cache payload",
				logger.Date(date),
				logger.Kind(kind),
				logger.ErrorField(err),
			)
		}
		recordMiss(reasonPayloadGone)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		logger.Warn("Corrupt cache payload",
			logger.Date(date),
			logger.Kind(kind),
			logger.ErrorField(err),
		)
		logger.CountError("cache", "corrupt_payload")
		recordMiss(reasonCorrupt)
		return false
	}

	entry.LastAccessed = now
	if err := s.saveIndexLocked(); err != nil {
		logger.Warn("Failed to persist cache access time", logger.Date(date), logger.ErrorField(err))
	}
	recordHit()
	return true
}

// Put stores payload for (date, kind, params). False means the write failed
// and the caller should carry on without the cache.
func (s *Store) Put(date string, payload interface{}, kind string, params map[string]string) bool {
	normalized, err := models.NormalizeDate(date)
	if err != nil {
		logger.Warn("Refusing to cache payload with invalid date", logger.Date(date), logger.ErrorField(err))
		return false
	}
	date = normalized
	kind = kindOrDefault(kind)
	key := fingerprint.CacheKey(date, kind, params)

	data, err := models.EncodeJSON(payload)
	if err != nil {
		logger.Error("Failed to encode cache payload", logger.Date(date), logger.Kind(kind), logger.ErrorField(err))
		logger.CountError("cache", "encode")
		return false
	}

	sourceHash, ok := s.source.Fingerprint(date)
	if !ok {
		sourceHash = fingerprint.HashBytes(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := storage.AtomicWriteFile(s.payloadPath(key), data, 0o644); err != nil {
		logger.Error("Failed to write cache payload", logger.Date(date), logger.Kind(kind), logger.ErrorField(err))
		logger.CountError("cache", "write")
		return false
	}

	now := s.clock()
	s.index.CacheEntries[key] = &models.CacheEntry{
		ReportDate:       date,
		ReportType:       kind,
		SourceHash:       sourceHash,
		CreatedAt:        now,
		LastAccessed:     now,
		FileSize:         int64(len(data)),
		AdditionalParams: copyParams(params),
	}
	s.index.Recount()
	s.evictLocked(key)

	if err := s.saveIndexLocked(); err != nil {
		logger.Error("Failed to update cache index", logger.Date(date), logger.ErrorField(err))
		logger.CountError("cache", "write")
		return false
	}
	return true
}

// evictLocked drops least recently accessed entries until the size cap holds.
// keep is never evicted.
func (s *Store) evictLocked(keep string) {
	if s.maxSize <= 0 || s.index.TotalCacheSize <= s.maxSize {
		return
	}

	keys := make([]string, 0, len(s.index.CacheEntries))
	for k := range s.index.CacheEntries {
		if k != keep {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := s.index.CacheEntries[keys[i]], s.index.CacheEntries[keys[j]]
		if a.LastAccessed.Equal(b.LastAccessed) {
			return keys[i] < keys[j]
		}
		return a.LastAccessed.Before(b.LastAccessed)
	})

	for _, k := range keys {
		if s.index.TotalCacheSize <= s.maxSize {
			break
		}
		s.index.TotalCacheSize -= s.index.CacheEntries[k].FileSize
		s.removeLocked(k, evictSizeLimit)
	}
}

// removeLocked deletes one entry and its payload file
func (s *Store) removeLocked(key, reason string) {
	if err := os.Remove(s.payloadPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Failed to remove cache payload", logger.String("cache_key", key), logger.ErrorField(err))
	}
	delete(s.index.CacheEntries, key)
	cacheEvictions.WithLabelValues(reason).Inc()
}

// Matches reports whether date has entries of kind and every one of them
// was cached from the canonical file as it is now.
func (s *Store) Matches(date, kind string) bool {
	date, err := models.NormalizeDate(date)
	if err != nil {
		return false
	}
	kind = kindOrDefault(kind)
	currentHash, ok := s.source.Fingerprint(date)
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, entry := range s.index.CacheEntries {
		if entry.ReportDate != date || entry.ReportType != kind {
			continue
		}
		if entry.SourceHash != currentHash {
			return false
		}
		found = true
	}
	return found
}

// Invalidate removes every entry matching date and kind. Empty filters
// match everything, so Invalidate("", "") clears the cache.
func (s *Store) Invalidate(date, kind string) int {
	if date != "" {
		normalized, err := models.NormalizeDate(date)
		if err != nil {
			return 0
		}
		date = normalized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.index.CacheEntries {
		if date != "" && entry.ReportDate != date {
			continue
		}
		if kind != "" && entry.ReportType != kind {
			continue
		}
		s.removeLocked(key, evictInvalidated)
		removed++
	}

	if removed > 0 {
		if err := s.saveIndexLocked(); err != nil {
			logger.Error("Failed to persist cache index after invalidation", logger.Date(date), logger.ErrorField(err))
		}
		logger.Info("Cache invalidated", logger.Date(date), logger.Kind(kind), logger.Int("removed", removed))
	}
	return removed
}

// CleanupExpired removes every entry past the validity window whatever its
// fingerprint, plus payload files the index does not know about.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	removed := 0
	for key, entry := range s.index.CacheEntries {
		if s.expired(entry, now) {
			s.removeLocked(key, evictExpired)
			removed++
		}
	}
	orphans := s.removeOrphansLocked()

	s.index.LastCleanup = now
	if err := s.saveIndexLocked(); err != nil {
		logger.Error("Failed to persist cache index after cleanup", logger.ErrorField(err))
	}
	logger.Info("Expired cache entries removed", logger.Int("removed", removed), logger.Int("orphans", orphans))
	return removed
}

// CleanupOlderThan removes entries created more than days days ago
func (s *Store) CleanupOlderThan(days int) int {
	if days < 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	removed := 0
	for key, entry := range s.index.CacheEntries {
		if entry.CreatedAt.Before(cutoff) {
			s.removeLocked(key, evictAged)
			removed++
		}
	}

	s.index.LastCleanup = now
	if err := s.saveIndexLocked(); err != nil {
		logger.Error("Failed to persist cache index after cleanup", logger.ErrorField(err))
	}
	logger.Info("Old cache entries removed", logger.Int("days", days), logger.Int("removed", removed))
	return removed
}

func (s *Store) removeOrphansLocked() int {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		logger.Warn("Failed to list cache directory", logger.Path(s.dir), logger.ErrorField(err))
		return 0
	}

	removed := 0
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || name == MetadataFile || !strings.HasSuffix(name, ".json") {
			continue
		}
		if _, known := s.index.CacheEntries[strings.TrimSuffix(name, ".json")]; known {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			logger.Warn("Failed to remove orphan cache file", logger.String("file", name), logger.ErrorField(err))
			continue
		}
		removed++
	}
	return removed
}

// Statistics summarizes the cache
func (s *Store) Statistics() models.CacheStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	stats := models.CacheStatistics{
		TotalEntries:   len(s.index.CacheEntries),
		ReportTypes:    make(map[string]int),
		ValidityHours:  s.validity.Hours(),
		CacheDirectory: s.dir,
		LastCleanup:    s.index.LastCleanup,
	}
	for _, entry := range s.index.CacheEntries {
		stats.TotalSizeBytes += entry.FileSize
		if now.Sub(entry.CreatedAt) < 24*time.Hour {
			stats.RecentEntries24h++
		}
		stats.ReportTypes[entry.ReportType]++
	}
	stats.TotalSizeMB = float64(stats.TotalSizeBytes) / (1024 * 1024)
	return stats
}

// Status lists the entries of one date, or returns Statistics when date is empty
func (s *Store) Status(date string) models.CacheStatus {
	if date == "" {
		stats := s.Statistics()
		return models.CacheStatus{Statistics: &stats}
	}

	normalized, err := models.NormalizeDate(date)
	if err != nil {
		return models.CacheStatus{Date: date, Entries: []models.CacheEntryStatus{}}
	}
	currentHash, hasSource := s.source.Fingerprint(normalized)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	status := models.CacheStatus{Date: normalized, Entries: []models.CacheEntryStatus{}}
	for key, entry := range s.index.CacheEntries {
		if entry.ReportDate != normalized {
			continue
		}
		valid := !s.expired(entry, now) && hasSource && entry.SourceHash == currentHash &&
			storage.FileExists(s.payloadPath(key))
		status.Entries = append(status.Entries, models.CacheEntryStatus{
			CacheKey:     key,
			ReportType:   entry.ReportType,
			CreatedAt:    entry.CreatedAt,
			LastAccessed: entry.LastAccessed,
			FileSize:     entry.FileSize,
			AgeHours:     entry.Age(now).Hours(),
			Valid:        valid,
		})
	}
	sort.Slice(status.Entries, func(i, j int) bool {
		return status.Entries[i].ReportType < status.Entries[j].ReportType
	})
	return status
}

// Flush persists the in-memory index
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveIndexLocked()
}

func kindOrDefault(kind string) string {
	if kind == "" {
		return models.ReportKindDailyConsumption
	}
	return kind
}

func copyParams(params map[string]string) map[string]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
