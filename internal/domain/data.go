package domain

import (
	"encoding/json"
	"fmt"
)

// DecodeData converts a document body into a typed value through JSON.
func DecodeData(data Data, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// EncodeData converts a typed value into a document body through JSON.
// Sentinels must be added to the result afterwards; they do not survive JSON.
func EncodeData(v any) (Data, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	out := Data{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}
