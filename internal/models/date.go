package models

import (
	"fmt"
	"regexp"
	"time"
)

const (
	// ReportDateLayout is the canonical on-disk date form
	ReportDateLayout = "20060102"
	// DashedDateLayout is accepted on input and used by one legacy file name
	DashedDateLayout = "2006-01-02"
)

// NormalizeDate returns the canonical YYYYMMDD form of s.
// Both YYYYMMDD and YYYY-MM-DD are accepted.
func NormalizeDate(s string) (string, error) {
	t, err := ParseReportDate(s)
	if err != nil {
		return "", err
	}
	return t.Format(ReportDateLayout), nil
}

// ParseReportDate parses a report date in either accepted layout
func ParseReportDate(s string) (time.Time, error) {
	var layout string
	switch len(s) {
	case len(ReportDateLayout):
		layout = ReportDateLayout
	case len(DashedDateLayout):
		layout = DashedDateLayout
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// IsCanonicalDate reports whether s is exactly 8 ASCII digits forming a real date
func IsCanonicalDate(s string) bool {
	if len(s) != len(ReportDateLayout) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	_, err := time.Parse(ReportDateLayout, s)
	return err == nil
}

var reportFilePattern = regexp.MustCompile(`^report_(\d{8})\.json$`)

// ReportFileName returns the canonical file name for a canonical date
func ReportFileName(date string) string {
	return "report_" + date + ".json"
}

// ParseReportFileName extracts the date from a canonical report file name.
// Backups and temp files do not match.
func ParseReportFileName(name string) (string, bool) {
	m := reportFilePattern.FindStringSubmatch(name)
	if m == nil || !IsCanonicalDate(m[1]) {
		return "", false
	}
	return m[1], true
}
