package models

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Extra holds JSON keys a record does not model. They are written back
// unchanged so files produced by older versions keep their data.
type Extra map[string]json.RawMessage

// Clone returns a copy of the map (the raw values are shared, they are immutable)
func (e Extra) Clone() Extra {
	if len(e) == 0 {
		return nil
	}
	out := make(Extra, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// mergeExtra adds extra keys to an encoded JSON object. Modelled keys win.
func mergeExtra(base []byte, extra Extra) ([]byte, error) {
	if len(extra) == 0 {
		return base, nil
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, known := fields[k]; !known {
			fields[k] = v
		}
	}
	return json.Marshal(fields)
}

// collectExtra returns every top-level key of data not listed in known
func collectExtra(data []byte, known map[string]struct{}) (Extra, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return nil, nil
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	var extra Extra
	for k, v := range fields {
		if _, ok := known[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(Extra)
		}
		extra[k] = v
	}
	return extra, nil
}

// encodeWithExtra encodes the plain form of a record and adds its extra keys.
// plain must not implement json.Marshaler.
func encodeWithExtra(plain interface{}, extra Extra) ([]byte, error) {
	base, err := json.Marshal(plain)
	if err != nil {
		return nil, err
	}
	return mergeExtra(base, extra)
}

// decodeWithExtra decodes data into plain and returns the keys it does not
// model. A value of the wrong JSON type leaves its field zero instead of
// failing the record; only malformed JSON is an error.
func decodeWithExtra(data []byte, plain interface{}, known map[string]struct{}) (Extra, error) {
	if err := json.Unmarshal(data, plain); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, err
		}
	}
	return collectExtra(data, known)
}

func keySet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// EncodeJSON renders v as indented UTF-8 JSON without HTML escaping
func EncodeJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
