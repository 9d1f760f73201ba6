package models

import (
	"strings"
	"time"
)

// UsageKind selects the feed or the mix side of a report
type UsageKind string

const (
	UsageFeed UsageKind = "feed"
	UsageMix  UsageKind = "mix"
)

// ParseUsageKind validates a kind string
func ParseUsageKind(s string) (UsageKind, error) {
	switch UsageKind(strings.ToLower(strings.TrimSpace(s))) {
	case UsageFeed:
		return UsageFeed, nil
	case UsageMix:
		return UsageMix, nil
	}
	return "", ErrInvalidKind
}

// Calculations returns the aggregates of the given kind
func (r *DailyReport) Calculations(kind UsageKind) *Calculations {
	if kind == UsageMix {
		return &r.MixCalculations
	}
	return &r.FeedCalculations
}

// ToplistRanking is one farm of a published ranking
type ToplistRanking struct {
	Rank  int     `json:"rank"`
	Area  string  `json:"area"`
	Farm  string  `json:"farm"`
	Value float64 `json:"value"`
}

// ToplistUpdate is the message published when a ranking is rewritten
type ToplistUpdate struct {
	Date      string    `json:"date"`
	Kind      UsageKind `json:"kind"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate validates a ToplistUpdate
func (tu *ToplistUpdate) Validate() error {
	if !IsCanonicalDate(tu.Date) {
		return ErrInvalidDate
	}
	if _, err := ParseUsageKind(string(tu.Kind)); err != nil {
		return err
	}
	if tu.Timestamp.IsZero() {
		return ErrCorruptMetadata
	}
	return nil
}

// FarmToplistRedisKey returns the sorted-set key holding a day's farm ranking
func FarmToplistRedisKey(kind UsageKind, date string) string {
	return "toplist:farms:" + string(kind) + ":" + date
}

// FarmMember encodes a farm as a sorted-set member
func FarmMember(area, farm string) string {
	return area + "/" + farm
}

// SplitFarmMember reverses FarmMember. Areas never contain a slash; farms may.
func SplitFarmMember(member string) (area, farm string) {
	area, farm, found := strings.Cut(member, "/")
	if !found {
		return "", member
	}
	return area, farm
}
