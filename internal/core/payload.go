// Package core holds the domain types of the store and the pure functions
// that turn loosely structured producer payloads into persisted records.
//
// Producers label some fields differently (Plaid-style payloads use
// transaction_id and iso_currency_code, generic ones use id and currency), so
// lookups go through fixed alias lists resolved in priority order.
package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// IdentityAliases lists the identity field names in priority order.
	IdentityAliases = []string{"id", "transaction_id", "transactionId"}
	// CurrencyAliases lists the currency field names in priority order.
	CurrencyAliases = []string{"currency", "iso_currency_code", "unofficial_currency_code"}
)

// FirstPopulated returns the first alias whose value is present and non-empty.
func FirstPopulated(payload map[string]any, aliases ...string) (string, bool) {
	for _, key := range aliases {
		if s, ok := asString(payload[key]); ok {
			return s, true
		}
	}
	return "", false
}

// ParseTransaction normalizes a raw producer payload into a Transaction.
// A missing identity or a non-numeric amount yields a *ValidationError.
func ParseTransaction(payload map[string]any) (Transaction, error) {
	id, ok := FirstPopulated(payload, IdentityAliases...)
	if !ok {
		return Transaction{}, &ValidationError{Field: "id", Reason: "missing transaction identity"}
	}

	amount, ok := ToFloat(payload["amount"])
	if !ok {
		return Transaction{}, &ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("%v is not a number", payload["amount"]),
		}
	}

	date, _ := asString(payload["date"])

	return Transaction{
		ID:        id,
		Date:      date,
		Amount:    amount,
		Currency:  optional(FirstPopulated(payload, CurrencyAliases...)),
		Name:      optional(asString(payload["name"])),
		Category:  NormalizeCategory(payload["category"]),
		AccountID: optional(asString(payload["account_id"])),
		Raw:       EncodeRaw(payload),
	}, nil
}

// NormalizeCategory flattens a category given as a string or a list of
// strings into a single comma-joined string. Absent categories stay nil.
func NormalizeCategory(v any) *string {
	var s string
	switch c := v.(type) {
	case nil:
		return nil
	case string:
		s = c
	case []string:
		s = strings.Join(c, ",")
	case []any:
		parts := make([]string, len(c))
		for i, p := range c {
			parts[i] = fmt.Sprint(p)
		}
		s = strings.Join(parts, ",")
	default:
		s = fmt.Sprint(c)
	}
	return &s
}

// PointFromMap builds a point from a loosely typed object. Text fields given
// as anything but a string or number are left empty, so validation rejects
// only that point.
func PointFromMap(m map[string]any) PointPayload {
	return PointPayload{
		Source:    scalarString(m["source"]),
		Metric:    scalarString(m["metric"]),
		Timestamp: scalarString(m["timestamp"]),
		Value:     m["value"],
		IngestTS:  scalarString(m["ingest_ts"]),
		Meta:      m["meta"],
	}
}

// UnmarshalJSON decodes a point leniently: a mistyped field never fails the
// enclosing batch, and an element that is not an object decodes empty.
func (p *PointPayload) UnmarshalJSON(data []byte) error {
	var raw any
	if err := DecodeJSON(data, &raw); err != nil {
		return err
	}
	obj, _ := raw.(map[string]any)
	*p = PointFromMap(obj)
	return nil
}

// NormalizePoint coerces a submitted point into its persisted form.
// Unconvertible values become nil and a missing ingest timestamp is set to now.
func NormalizePoint(p PointPayload, now time.Time) TimeseriesPoint {
	pt := TimeseriesPoint{
		Source:    p.Source,
		Metric:    p.Metric,
		Timestamp: p.Timestamp,
		IngestTS:  p.IngestTS,
	}
	if v, ok := ToFloat(p.Value); ok {
		pt.Value = &v
	}
	if pt.IngestTS == "" {
		pt.IngestTS = now.UTC().Format(time.RFC3339)
	}
	switch m := p.Meta.(type) {
	case nil:
	case string:
		pt.Meta = &m
	default:
		s := EncodeRaw(m)
		pt.Meta = &s
	}
	return pt
}

// ToFloat converts numbers and numeric strings to a finite float64.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// EncodeRaw serializes an opaque payload, falling back to an empty object.
func EncodeRaw(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// DecodeRaw parses a stored raw payload. Empty input decodes to an empty map.
func DecodeRaw(raw string) (map[string]any, error) {
	out := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode raw payload: %w", err)
	}
	return out, nil
}

func asString(v any) (string, bool) {
	var s string
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		s = x
	case json.Number:
		s = x.String()
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		s = fmt.Sprint(x)
	}
	return s, s != ""
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string, json.Number, float64:
		s, _ := asString(x)
		return s
	default:
		return ""
	}
}

func optional(s string, ok bool) *string {
	if !ok {
		return nil
	}
	return &s
}
