package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// BuildKey returns the lowercase hex SHA-256 of the canonical JSON form of v.
//
// Canonical form sorts object keys at every level and sorts array elements
// by their own canonical encoding, so two values that differ only in key or
// element order produce the same key. Numbers keep their literal spelling.
func BuildKey(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode key source: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("decode key source: %w", err)
	}

	canon, err := canonicalize(generic)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(canon)
	if err != nil {
		return "", fmt.Errorf("encode canonical key: %w", err)
	}

	sum := sha256.Sum256(out)
	return hex.EncodeToString(sum[:]), nil
}

// MustBuildKey is BuildKey for inputs that are known to encode. It panics on
// failure.
func MustBuildKey(v any) string {
	key, err := BuildKey(v)
	if err != nil {
		panic(err)
	}
	return key
}

// canonicalize sorts arrays recursively. Maps need no work since
// encoding/json writes map keys in sorted order.
func canonicalize(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			c, err := canonicalize(val)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil

	case []any:
		type item struct {
			val any
			enc string
		}
		items := make([]item, len(t))
		for i, val := range t {
			c, err := canonicalize(val)
			if err != nil {
				return nil, err
			}
			enc, err := json.Marshal(c)
			if err != nil {
				return nil, fmt.Errorf("encode array element: %w", err)
			}
			items[i] = item{val: c, enc: string(enc)}
		}
		sort.SliceStable(items, func(i, j int) bool { return items[i].enc < items[j].enc })
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = it.val
		}
		return out, nil

	default:
		return v, nil
	}
}
