package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/mohamedkhairy/feedmix/internal/fingerprint"
	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/internal/storage"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

// pathResolver names a legacy location of a date's report
type pathResolver func(reportsDir, date string) string

// legacyResolvers are probed in order when the canonical file is missing.
// Drop this list once old installs have been migrated.
var legacyResolvers = []pathResolver{
	func(dir, date string) string {
		return filepath.Join(dir, "daily_report_"+date+".json")
	},
	func(dir, date string) string {
		return filepath.Join(dir, "report_"+dashed(date)+".json")
	},
	func(dir, date string) string {
		return filepath.Join(dir, date[:4], date[4:6], models.ReportFileName(date))
	},
}

func dashed(date string) string {
	return date[:4] + "-" + date[4:6] + "-" + date[6:]
}

// ResolveCanonicalPath returns the path to read the report of a canonical
// date from. A report found only at a legacy location is copied to the
// canonical path first. ok is false when no file exists anywhere.
func ResolveCanonicalPath(reportsDir, date string) (string, bool) {
	primary := fingerprint.CanonicalPath(reportsDir, date)
	if storage.FileExists(primary) {
		return primary, true
	}

	for _, resolve := range legacyResolvers {
		legacy := resolve(reportsDir, date)
		if !storage.FileExists(legacy) {
			continue
		}
		if err := storage.CopyFile(legacy, primary); err != nil {
			logger.Warn("Failed to migrate legacy report, reading it in place",
				logger.Date(date),
				logger.Path(legacy),
				logger.ErrorField(err),
			)
			return legacy, true
		}
		logger.Info("Migrated legacy report", logger.Date(date), logger.Path(legacy))
		return primary, true
	}
	return primary, false
}

// readReport decodes a report file
func readReport(path string) (*models.DailyReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r models.DailyReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("corrupt report %s: %w", path, err)
	}
	return &r, nil
}

// loadExisting returns the persisted report of date, or nil when there is
// none, it is not valid JSON, or it belongs to another date. Fields of an
// unexpected type decode as zero and do not reject the file.
func (c *Calculator) loadExisting(date string) *models.DailyReport {
	path, ok := ResolveCanonicalPath(c.reportsDir, date)
	if !ok {
		return nil
	}

	r, err := readReport(path)
	if err != nil {
		logger.Warn("Ignoring unreadable report", logger.Date(date), logger.Path(path), logger.ErrorField(err))
		logger.CountError("report", "corrupt_report")
		return nil
	}

	fileDate, err := models.NormalizeDate(r.Date)
	if err != nil || fileDate != date {
		logger.Warn("Ignoring report whose date does not match",
			logger.Date(date),
			logger.String("file_date", r.Date),
			logger.Path(path),
		)
		return nil
	}
	r.Date = fileDate
	return r
}

// backupPath picks an unused backup name for date
func (c *Calculator) backupPath(date string) string {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	base := filepath.Join(c.reportsDir, "report_"+date+"_backup_"+ts)
	path := base + ".json"
	for n := 1; storage.FileExists(path); n++ {
		path = base + "_" + strconv.Itoa(n) + ".json"
	}
	return path
}

// Save writes report as the canonical file of date. An existing file is
// copied to a backup first. The written file is read back and its date
// checked; a mismatch is a failed save.
func (c *Calculator) Save(date string, report *models.DailyReport) bool {
	normalized, err := models.NormalizeDate(date)
	if err != nil {
		logger.Error("Refusing to save report with invalid date", logger.Date(date), logger.ErrorField(err))
		return false
	}
	date = normalized

	if err := os.MkdirAll(c.reportsDir, 0o755); err != nil {
		logger.Error("Failed to create reports directory", logger.Path(c.reportsDir), logger.ErrorField(err))
		saves.WithLabelValues("failed").Inc()
		return false
	}

	path := fingerprint.CanonicalPath(c.reportsDir, date)
	if storage.FileExists(path) {
		backup := c.backupPath(date)
		if err := storage.CopyFile(path, backup); err != nil {
			logger.Error("Failed to back up report", logger.Date(date), logger.Path(backup), logger.ErrorField(err))
			saves.WithLabelValues("failed").Inc()
			return false
		}
	}

	report.Date = date
	report.Metadata.SavedToFile = true
	report.Metadata.SavePath = path

	data, err := models.EncodeJSON(report)
	if err != nil {
		report.Metadata.SavedToFile = false
		logger.Error("Failed to encode report", logger.Date(date), logger.ErrorField(err))
		saves.WithLabelValues("failed").Inc()
		return false
	}
	if err := storage.AtomicWriteFile(path, data, 0o644); err != nil {
		report.Metadata.SavedToFile = false
		logger.Error("Failed to write report", logger.Date(date), logger.Path(path), logger.ErrorField(err))
		saves.WithLabelValues("failed").Inc()
		return false
	}

	if err := verifySaved(path, date); err != nil {
		report.Metadata.SavedToFile = false
		logger.Error("Saved report failed verification", logger.Date(date), logger.Path(path), logger.ErrorField(err))
		saves.WithLabelValues("verify_failed").Inc()
		return false
	}

	saves.WithLabelValues("ok").Inc()
	logger.Info("Report saved", logger.Date(date), logger.Path(path), logger.Int("bytes", len(data)))
	return true
}

// verifySaved re-reads path and checks its date field
func verifySaved(path, date string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var probe struct {
		Date string `json:"date"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Date != date {
		return fmt.Errorf("%w: file has %q, want %q", models.ErrDateMismatch, probe.Date, date)
	}
	return nil
}

// AvailableReports lists the dates with a canonical report, newest first
func (c *Calculator) AvailableReports() []string {
	entries, err := os.ReadDir(c.reportsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to list reports", logger.Path(c.reportsDir), logger.ErrorField(err))
		}
		return []string{}
	}

	dates := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if date, ok := models.ParseReportFileName(e.Name()); ok {
			dates = append(dates, date)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates
}
