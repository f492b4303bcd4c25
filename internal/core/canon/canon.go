// Package canon produces canonical serializations for content comparison.
// Two structurally identical values always serialize identically regardless
// of source key ordering; arrays keep their order since ordering can be
// meaningful (question lists, rubric criteria)
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// StableSerialize renders v as canonical JSON with object keys sorted
// recursively. v may be any JSON-encodable value, typed or raw
func StableSerialize(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canon: marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("canon: decode: %w", err)
	}
	var sb strings.Builder
	writeCanonical(&sb, generic)
	return sb.String(), nil
}

// Equal reports whether a and b have identical canonical serializations
func Equal(a, b any) (bool, error) {
	sa, err := StableSerialize(a)
	if err != nil {
		return false, err
	}
	sb, err := StableSerialize(b)
	if err != nil {
		return false, err
	}
	return sa == sb, nil
}

// Hash returns the hex sha256 of the canonical serialization of v.
// Used to persist a compact fingerprint of the last imported snapshot
func Hash(v any) (string, error) {
	s, err := StableSerialize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:]), nil
}

func writeCanonical(sb *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if t {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case json.Number:
		sb.WriteString(t.String())
	case string:
		b, _ := json.Marshal(t)
		sb.Write(b)
	case []any:
		sb.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, el)
		}
		sb.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			sb.Write(kb)
			sb.WriteByte(':')
			writeCanonical(sb, t[k])
		}
		sb.WriteByte('}')
	default:
		// json.Decode into any only yields the cases above; keep a loud
		// fallback in case that ever changes
		b, _ := json.Marshal(t)
		sb.Write(b)
	}
}
