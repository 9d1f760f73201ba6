package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Quantity is a non-negative kilogram amount that decodes leniently.
// Numbers, numeric strings, null and booleans are accepted; anything that
// does not parse, and any negative value, becomes 0.
type Quantity float64

// Float64 returns the quantity as a float64
func (q Quantity) Float64() float64 {
	return float64(q)
}

// UnmarshalJSON implements json.Unmarshaler
func (q *Quantity) UnmarshalJSON(data []byte) error {
	*q = Quantity(coerceFloat(data))
	return nil
}

func coerceFloat(data []byte) float64 {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0
	}

	var f float64
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, ",", "")), 64)
		if err != nil {
			return 0
		}
		f = parsed
	case 't':
		f = 1
	case 'f':
		f = 0
	default:
		if err := json.Unmarshal(data, &f); err != nil {
			return 0
		}
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

// Ratio is a float64 that may legitimately be +Inf (feed-to-mix ratio with no
// mix usage). Non-finite values are encoded as string sentinels because
// encoding/json refuses them.
type Ratio float64

const (
	infinitySentinel    = "Infinity"
	negInfinitySentinel = "-Infinity"
	// NotAvailable is how an infinite ratio is rendered for display
	NotAvailable = "N/A"
)

// InfiniteRatio returns the positive-infinity ratio
func InfiniteRatio() Ratio {
	return Ratio(math.Inf(1))
}

// IsInfinite reports whether the ratio is +Inf or -Inf
func (r Ratio) IsInfinite() bool {
	return math.IsInf(float64(r), 0)
}

// Display renders the ratio for tables and exports
func (r Ratio) Display() string {
	f := float64(r)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return NotAvailable
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// MarshalJSON implements json.Marshaler
func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	switch {
	case math.IsInf(f, 1):
		return []byte(`"` + infinitySentinel + `"`), nil
	case math.IsInf(f, -1):
		return []byte(`"` + negInfinitySentinel + `"`), nil
	case math.IsNaN(f):
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// UnmarshalJSON implements json.Unmarshaler
func (r *Ratio) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "infinity", "+infinity", "inf", "+inf":
			*r = Ratio(math.Inf(1))
			return nil
		case "-infinity", "-inf":
			*r = Ratio(math.Inf(-1))
			return nil
		case "n/a", "nan", "":
			*r = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*r = 0
			return nil
		}
		*r = Ratio(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}
