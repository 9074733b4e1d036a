package mode

import "fmt"

// IntSum is the integer addition monoid. Leaves may be any Go integer
// type; sums are normalized to int64 so that values survive a codec
// round-trip unchanged.
type IntSum struct{}

func (IntSum) Empty() any { return int64(0) }

func (IntSum) Lift(leaf any) any { return AsInt64(leaf) }

func (IntSum) Combine(a, b any) any {
	return AsInt64(a) + AsInt64(b)
}

// AsInt64 widens any integer to int64, panicking on other types. Worker
// panics surface as run failures, so a leaf of the wrong type fails the
// run with a message instead of corrupting the sum.
func AsInt64(v any) int64 {
	switch v := v.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int8:
		return int64(v)
	case uint64:
		return int64(v)
	case uint32:
		return int64(v)
	case uint16:
		return int64(v)
	case uint8:
		return int64(v)
	case uint:
		return int64(v)
	case float64:
		return int64(v)
	}
	panic(fmt.Sprintf("expected an integer leaf, got %T", v))
}

// ListAppend collects every leaf into a slice. Element order follows
// combine order, which under parallel exploration is not the tree order.
type ListAppend struct{}

func (ListAppend) Empty() any { return []any(nil) }

// Lift wraps the leaf as a one-element list, so a leaf that is itself a
// slice stays one result instead of splicing into its neighbors.
func (ListAppend) Lift(leaf any) any { return []any{leaf} }

func (ListAppend) Combine(a, b any) any {
	as, _ := a.([]any)
	bs, _ := b.([]any)
	out := make([]any, 0, len(as)+len(bs))
	out = append(out, as...)
	out = append(out, bs...)
	return out
}
