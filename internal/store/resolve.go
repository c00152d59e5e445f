package store

import (
	"encoding/json"
	"fmt"
	"math"

	"wellnest/internal/domain"
	"wellnest/internal/domain/types"
)

// resolveWrite computes the stored body after writing incoming at a path
// whose current body is existing (nil when absent). Without merge the
// document is replaced; with merge nested maps merge key by key. Sentinels
// resolve against now and the existing values.
func resolveWrite(existing, incoming domain.Data, merge bool, now int64) (domain.Data, error) {
	base := domain.Data{}
	if merge && existing != nil {
		base = copyData(existing)
	}
	if err := mergeInto(base, incoming, now); err != nil {
		return nil, err
	}
	return normalize(base)
}

func mergeInto(dst, src domain.Data, now int64) error {
	for k, v := range src {
		if types.IsServerTimestamp(v) {
			dst[k] = now
			continue
		}
		if n, ok := types.IncrementBy(v); ok {
			cur, err := toInt64(dst[k])
			if err != nil {
				return fmt.Errorf("increment %q: %w", k, err)
			}
			dst[k] = cur + n
			continue
		}
		if m, ok := asData(v); ok {
			child, ok := asData(dst[k])
			if !ok {
				child = domain.Data{}
			}
			if err := mergeInto(child, m, now); err != nil {
				return err
			}
			dst[k] = child
			continue
		}
		dst[k] = v
	}
	return nil
}

func asData(v any) (domain.Data, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[domain.UserID]any:
		out := make(domain.Data, len(m))
		for k, v := range m {
			out[k.String()] = v
		}
		return out, true
	}
	return nil, false
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(math.Round(n)), nil
	case json.Number:
		return n.Int64()
	}
	return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
}

// normalize round-trips a body through JSON so every backend holds the same
// value types (float64 numbers, map[string]any objects).
func normalize(d domain.Data) (domain.Data, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, domain.NewError(domain.KindInvalid, "encode document", err)
	}
	out := domain.Data{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, domain.NewError(domain.KindInvalid, "decode document", err)
	}
	return out, nil
}

func copyData(d domain.Data) domain.Data {
	out := make(domain.Data, len(d))
	for k, v := range d {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyData(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	}
	return v
}

func encodeBody(d domain.Data) ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, domain.NewError(domain.KindInvalid, "encode document", err)
	}
	return raw, nil
}

func decodeBody(raw []byte) (domain.Data, error) {
	out := domain.Data{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, domain.NewError(domain.KindInvalid, "decode document", err)
	}
	return out, nil
}
