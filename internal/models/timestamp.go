package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"
)

// timestampLayouts are tried in order. Zone-less layouts are read as local
// time, the way the desktop tools that wrote older reports meant them.
var timestampLayouts = []struct {
	layout string
	naive  bool
}{
	{time.RFC3339Nano, false},
	{"2006-01-02T15:04:05.999999999", true},
	{"2006-01-02 15:04:05.999999999Z07:00", false},
	{"2006-01-02 15:04:05.999999999", true},
	{"2006-01-02", true},
}

// parseTimestamp decodes a JSON timestamp leniently. RFC 3339 and zone-less
// ISO-8601 strings are accepted, as are unix seconds. Anything else is the
// zero time.
func parseTimestamp(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}

	if raw[0] != '"' {
		var secs float64
		if err := json.Unmarshal(raw, &secs); err != nil || secs <= 0 || math.IsInf(secs, 0) {
			return time.Time{}
		}
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)).UTC()
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}
	}
	s = strings.TrimSpace(s)
	for _, l := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if l.naive {
			t, err = time.ParseInLocation(l.layout, s, time.Local)
		} else {
			t, err = time.Parse(l.layout, s)
		}
		if err == nil {
			return t
		}
	}
	return time.Time{}
}
