package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DecodeJSON unmarshals a single JSON value, keeping numbers as json.Number so
// integer identities wider than a float64 mantissa survive intact.
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

// DecodeBatch accepts either a bare JSON array or an object holding the array
// under key.
func DecodeBatch[T any](data []byte, key string) ([]T, error) {
	body := bytes.TrimSpace(data)
	if len(body) > 0 && body[0] == '[' {
		var items []T
		if err := DecodeJSON(body, &items); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return items, nil
	}

	var wrapped map[string]json.RawMessage
	if err := DecodeJSON(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	field, ok := wrapped[key]
	if !ok {
		return nil, fmt.Errorf("body must be an array or an object with a %q array", key)
	}
	var items []T
	if err := DecodeJSON(field, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return items, nil
}
