package models

import (
	"time"
)

// CacheEntry describes one cached payload in the cache metadata index
type CacheEntry struct {
	ReportDate       string            `json:"report_date"`
	ReportType       string            `json:"report_type"`
	SourceHash       string            `json:"source_hash"`
	CreatedAt        time.Time         `json:"created_at"`
	LastAccessed     time.Time         `json:"last_accessed"`
	FileSize         int64             `json:"file_size"`
	AdditionalParams map[string]string `json:"additional_params,omitempty"`
}

// Validate validates a CacheEntry
func (e *CacheEntry) Validate() error {
	if !IsCanonicalDate(e.ReportDate) {
		return ErrInvalidDate
	}
	if e.ReportType == "" {
		return ErrInvalidKind
	}
	if e.CreatedAt.IsZero() {
		return ErrCorruptMetadata
	}
	return nil
}

// Age returns how old the entry is at now
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// CacheIndex is the on-disk cache_metadata.json document
type CacheIndex struct {
	CacheEntries   map[string]*CacheEntry `json:"cache_entries"`
	LastCleanup    time.Time              `json:"last_cleanup,omitzero"`
	TotalCacheSize int64                  `json:"total_cache_size"`
}

// NewCacheIndex returns an empty index
func NewCacheIndex() *CacheIndex {
	return &CacheIndex{CacheEntries: make(map[string]*CacheEntry)}
}

// Recount recomputes TotalCacheSize from the entries
func (idx *CacheIndex) Recount() {
	var total int64
	for _, e := range idx.CacheEntries {
		total += e.FileSize
	}
	idx.TotalCacheSize = total
}

// CacheStatistics is the result of a cache statistics call
type CacheStatistics struct {
	TotalEntries     int            `json:"total_entries"`
	TotalSizeBytes   int64          `json:"total_size_bytes"`
	TotalSizeMB      float64        `json:"total_size_mb"`
	RecentEntries24h int            `json:"recent_entries_24h"`
	ReportTypes      map[string]int `json:"report_types"`
	ValidityHours    float64        `json:"cache_validity_hours"`
	CacheDirectory   string         `json:"cache_directory"`
	LastCleanup      time.Time      `json:"last_cleanup,omitzero"`
}

// CacheEntryStatus is one entry of a per-date cache status call
type CacheEntryStatus struct {
	CacheKey     string    `json:"cache_key"`
	ReportType   string    `json:"report_type"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	FileSize     int64     `json:"file_size"`
	AgeHours     float64   `json:"age_hours"`
	Valid        bool      `json:"is_valid"`
}

// CacheStatus answers get_cache_status. Exactly one of Entries or
// Statistics is set depending on whether a date was given.
type CacheStatus struct {
	Date       string             `json:"date,omitempty"`
	Entries    []CacheEntryStatus `json:"entries,omitempty"`
	Statistics *CacheStatistics   `json:"statistics,omitempty"`
}
