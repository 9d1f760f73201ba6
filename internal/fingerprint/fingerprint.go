// Package fingerprint computes content fingerprints of canonical report
// files and deterministic cache keys.
package fingerprint

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

// Fingerprinter hashes the canonical report file of a date
type Fingerprinter struct {
	reportsDir string
}

// New creates a fingerprinter over the canonical reports directory
func New(reportsDir string) *Fingerprinter {
	return &Fingerprinter{reportsDir: reportsDir}
}

// ReportsDir returns the directory holding canonical report files
func (f *Fingerprinter) ReportsDir() string {
	return f.reportsDir
}

// CanonicalPath returns report_<date>.json under the reports directory.
// date must already be canonical.
func CanonicalPath(reportsDir, date string) string {
	return filepath.Join(reportsDir, models.ReportFileName(date))
}

// Fingerprint returns the hex fingerprint of the canonical file for date.
// ok is false when the date is invalid, the file is absent or unreadable.
func (f *Fingerprinter) Fingerprint(date string) (string, bool) {
	date, err := models.NormalizeDate(date)
	if err != nil {
		return "", false
	}

	path := CanonicalPath(f.reportsDir, date)
	sum, err := HashFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Failed to fingerprint report file",
				logger.Date(date),
				logger.Path(path),
				logger.ErrorField(err),
			)
		}
		return "", false
	}
	return sum, true
}

// HashFile hashes the file's bytes and its modification time
func HashFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	h := blake3.New()
	h.Write(data)
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatInt(info.ModTime().UnixNano(), 10)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes hashes an in-memory payload, used when no canonical file exists
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type keyMaterial struct {
	Date   string            `json:"date"`
	Kind   string            `json:"kind"`
	Params map[string]string `json:"params"`
}

// CacheKey derives the cache key of (date, kind, params). Map keys are
// sorted by the JSON encoder, so params order never changes the key.
func CacheKey(date, kind string, params map[string]string) string {
	if params == nil {
		params = map[string]string{}
	}
	data, err := json.Marshal(keyMaterial{Date: date, Kind: kind, Params: params})
	if err != nil {
		// map[string]string always marshals
		panic(err)
	}
	return HashBytes(data)
}
