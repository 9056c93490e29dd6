// Package model defines the persisted document types of the tenant graph:
// entities, signal clusters, spokes, templates, conflict records, and gap
// scorecards.
//
// Field names and enum values here are normative for the on-disk JSON layout.
// Parsing is tolerant: documents written by older versions may omit fields or
// carry extra ones, and both decode cleanly. Writes always emit the canonical
// shape. Unknown top-level keys on entities and clusters round-trip through
// an opaque extras map so forward-compatible extensions survive a
// read-modify-write cycle.
package model

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

// Timestamp wraps time.Time with tolerant JSON decoding. Legacy documents
// carry bare dates ("2021-06-01") or second-precision strings; all of them
// parse. Writes emit RFC 3339 UTC.
type Timestamp struct {
	time.Time
}

// Now returns the current time as a Timestamp, truncated to seconds.
func Now() Timestamp {
	return At(time.Now())
}

// At converts a time.Time to a Timestamp in UTC at second precision.
func At(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Second)}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParseTimestamp parses a date string in any accepted layout.
// Empty input yields the zero Timestamp and no error.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return Timestamp{t.UTC()}, nil
		}
		lastErr = err
	}
	return Timestamp{}, lastErr
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`null`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// jsonFieldNames returns the JSON object keys a struct type marshals to,
// derived from its json tags. Used to separate known from unknown keys when
// preserving extras.
func jsonFieldNames(v any) map[string]bool {
	keys := make(map[string]bool)
	rt := reflect.TypeOf(v)
	for i := 0; i < rt.NumField(); i++ {
		tag := rt.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		keys[name] = true
	}
	return keys
}

// mergeExtras folds unknown keys back into a marshaled document. Known keys
// always win over stale extras.
func mergeExtras(doc []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return doc, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(doc, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// splitExtras removes the known keys of a document from raw, leaving only
// unknown ones. Returns nil when nothing unknown remains.
func splitExtras(data []byte, known map[string]bool) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for k := range raw {
		if known[k] {
			delete(raw, k)
		}
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}
