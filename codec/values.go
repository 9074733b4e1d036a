// Package codec is the serialization boundary: msgpack encodings for
// user values, checkpoints, workloads, progress and wire messages, plus
// 64-bit fingerprints of encoded workloads.
package codec

import (
	"fmt"

	"github.com/shamaton/msgpack/v2"

	"github.com/canopy-dev/canopy/tree"
)

// Values is the default ValueCodec for cache values: msgpack with
// integers normalized to int64 so that encode/decode round-trips are
// bit-exact regardless of the Go type a value started as.
type Values struct{}

var _ tree.ValueCodec = Values{}

func (Values) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(normalize(v))
}

func (Values) Decode(data []byte) (any, error) {
	var v any
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

// normalize maps every integer shape msgpack can produce onto int64 and
// rebuilds containers recursively. Without this, a value cached as int
// would decode as uint64 and the replayed continuation would diverge.
func normalize(v any) any {
	switch v := v.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return float64(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		// Decoded msgpack maps arrive with any-typed keys; values only
		// ever encode string-keyed maps, so restore that shape.
		out := make(map[string]any, len(v))
		for k, e := range v {
			ks, ok := k.(string)
			if !ok {
				ks = fmt.Sprint(k)
			}
			out[ks] = normalize(e)
		}
		return out
	default:
		return v
	}
}

// NewCache builds a Cache instruction around the default value codec.
func NewCache(effect func() (any, bool), next func(any) tree.Tree) *tree.Cache {
	return &tree.Cache{Effect: effect, Codec: Values{}, Next: next}
}
