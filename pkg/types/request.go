package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Request is an immutable set of attributes describing one authorization
// question. Scalar values are normalized on construction so that 5, int64(5)
// and float64(5) compare equal during target matching.
type Request struct {
	attrs map[string]interface{}
}

// NewRequest copies attrs into a new Request
func NewRequest(attrs map[string]interface{}) Request {
	copied := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		if norm, ok := NormalizeScalar(v); ok {
			copied[k] = norm
			continue
		}
		copied[k] = v
	}
	return Request{attrs: copied}
}

// Get returns the attribute stored under key
func (r Request) Get(key string) (interface{}, bool) {
	v, ok := r.attrs[key]
	return v, ok
}

// Len returns the number of attributes
func (r Request) Len() int {
	return len(r.attrs)
}

// Keys returns the attribute names in sorted order
func (r Request) Keys() []string {
	keys := make([]string, 0, len(r.attrs))
	for k := range r.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Attributes returns a shallow copy of the attribute map
func (r Request) Attributes() map[string]interface{} {
	out := make(map[string]interface{}, len(r.attrs))
	for k, v := range r.attrs {
		out[k] = v
	}
	return out
}

// CacheKey generates a stable key for this request.
// Attributes are sorted so map iteration order never changes the key, and
// every name and value is length-prefixed so separators inside values cannot
// make two different requests collide.
func (r Request) CacheKey() string {
	var b strings.Builder
	for _, k := range r.Keys() {
		v := r.attrs[k]
		typ := fmt.Sprintf("%T", v)
		val := fmt.Sprintf("%v", v)
		fmt.Fprintf(&b, "%d:%s%d:%s%d:%s", len(k), k, len(typ), typ, len(val), val)
	}
	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:16])
}

// NormalizeScalar converts scalar attribute values to a canonical type:
// strings and bools are kept, integers become int64 and floats become
// int64 when integral or float64 otherwise. ok is false for non-scalars.
func NormalizeScalar(v interface{}) (interface{}, bool) {
	switch x := v.(type) {
	case string, bool:
		return x, true
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return normalizeUnsigned(uint64(x)), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return normalizeUnsigned(x), true
	case float32:
		return normalizeFloat(float64(x)), true
	case float64:
		return normalizeFloat(x), true
	default:
		return nil, false
	}
}

func normalizeUnsigned(u uint64) interface{} {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}

func normalizeFloat(f float64) interface{} {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}
