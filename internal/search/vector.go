package search

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/insight"
)

// DecodeVector decodes a base64 string of little-endian float32 values into
// a native float slice.
func DecodeVector(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: vector is not base64: %v", insight.ErrMalformed, err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: vector byte length %d not a multiple of 4", insight.ErrMalformed, len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

func isVectorField(key string) bool {
	return key == "embedding" || strings.HasSuffix(key, "_embedding") || strings.HasSuffix(key, "_vector")
}

// decodeVectorFields replaces wire-encoded vector fields in a document with
// native float arrays, recursing into nested objects and arrays. The
// document is modified in place.
func decodeVectorFields(doc map[string]interface{}) error {
	for key, val := range doc {
		switch v := val.(type) {
		case string:
			if isVectorField(key) {
				vec, err := DecodeVector(v)
				if err != nil {
					return fmt.Errorf("field %q: %w", key, err)
				}
				doc[key] = vec
			}
		case map[string]interface{}:
			if err := decodeVectorFields(v); err != nil {
				return err
			}
		case []interface{}:
			for _, elem := range v {
				if nested, ok := elem.(map[string]interface{}); ok {
					if err := decodeVectorFields(nested); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
