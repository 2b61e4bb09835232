// Package merge combines cached API responses with incoming ones.
//
// Values are plain decoded JSON: map[string]any, []any, string, bool, nil and
// numbers (json.Number when decoded by the cache). Merging never mutates its
// inputs; unchanged nested values are shared between input and output, so
// callers must treat results as immutable.
package merge

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"
)

// Shape is the merge strategy selected for an incoming value.
type Shape int

const (
	// Scalar values (primitives, null, lists without uniform ids) replace the
	// cached value wholesale.
	Scalar Shape = iota
	// Object values are shallow-merged over the cached object.
	Object
	// IdentifiedList values are upserted element by element into the cached
	// list, matching on "id".
	IdentifiedList
	// Replace is a directive: the wrapped value overwrites the cached slot.
	Replace
	// Remove is a directive: the cached slot is deleted.
	Remove
)

func (s Shape) String() string {
	switch s {
	case Object:
		return "object"
	case IdentifiedList:
		return "identified-list"
	case Replace:
		return "replace"
	case Remove:
		return "remove"
	default:
		return "scalar"
	}
}

// Replacement wraps a value that must overwrite the cached slot regardless of
// its shape. It lets callers shrink a list, which an upsert never does.
type Replacement struct {
	Value any
}

// Removal marks a cached slot for deletion.
type Removal struct{}

// Classify selects the merge strategy for an incoming value.
func Classify(v any) Shape {
	switch value := v.(type) {
	case Replacement, *Replacement:
		return Replace
	case Removal, *Removal:
		return Remove
	case map[string]any:
		if value == nil {
			return Scalar
		}
		return Object
	case []any:
		if value == nil {
			return Scalar
		}
		for _, item := range value {
			if _, ok := identified(item); !ok {
				return Scalar
			}
		}
		// an empty list is vacuously identified
		return IdentifiedList
	default:
		return Scalar
	}
}

// Merge applies every incoming slot to existing and returns the resulting
// mapping. A nil existing mapping is treated as empty. Merge always succeeds:
// shapes it cannot merge degrade to replacement.
func Merge(existing, incoming map[string]any) map[string]any {
	result := make(map[string]any, len(existing)+len(incoming))
	maps.Copy(result, existing)

	for key, value := range incoming {
		switch Classify(value) {
		case Remove:
			delete(result, key)
		case Replace:
			result[key] = unwrap(value)
		case IdentifiedList:
			current, _ := result[key].([]any)
			result[key] = UpsertList(current, value.([]any))
		case Object:
			current, _ := result[key].(map[string]any)
			result[key] = MergeObject(current, value.(map[string]any))
		default:
			result[key] = value
		}
	}

	return result
}

// MergeObject returns a new object holding existing's fields overwritten by
// incoming's. Fields absent from incoming survive.
func MergeObject(existing, incoming map[string]any) map[string]any {
	result := make(map[string]any, len(existing)+len(incoming))
	maps.Copy(result, existing)
	maps.Copy(result, incoming)
	return result
}

// UpsertList merges incoming identified elements into existing. A matching
// element (same id) is shallow-merged in place and consumed, so duplicate ids
// in incoming match successive duplicates in existing rather than merging
// twice. Unmatched incoming elements are appended. Existing elements absent
// from incoming are kept: the merge is additive.
//
// Ids are compared with strict equality on their decoded values, so the
// number 1 does not match the string "1".
func UpsertList(existing, incoming []any) []any {
	result := slices.Clone(existing)
	if result == nil {
		result = make([]any, 0, len(incoming))
	}
	consumed := make([]bool, len(existing))

	for _, item := range incoming {
		id, ok := identified(item)
		if !ok {
			// opaque elements are never merged
			result = append(result, item)
			continue
		}
		in := item.(map[string]any)

		match := -1
		for i, candidate := range existing {
			if consumed[i] {
				continue
			}
			current, ok := candidate.(map[string]any)
			if !ok {
				continue
			}
			if currentID, ok := current["id"]; ok && currentID == id {
				match = i
				break
			}
		}

		if match < 0 {
			result = append(result, in)
			continue
		}

		consumed[match] = true
		result[match] = MergeObject(existing[match].(map[string]any), in)
	}

	return result
}

// IDString renders an id value as a string for coerced comparisons. It
// reports false when v is not a string or number.
func IDString(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, true
	case json.Number:
		return id.String(), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(id), 'f', -1, 32), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case int32:
		return strconv.FormatInt(int64(id), 10), true
	case uint64:
		return strconv.FormatUint(id, 10), true
	default:
		return "", false
	}
}

// identified returns the id of an element that participates in list merges:
// a non-nil object carrying a string or numeric "id".
func identified(item any) (any, bool) {
	obj, ok := item.(map[string]any)
	if !ok || obj == nil {
		return nil, false
	}
	id, ok := obj["id"]
	if !ok {
		return nil, false
	}
	if _, ok := IDString(id); !ok {
		return nil, false
	}
	return id, true
}

func unwrap(v any) any {
	switch r := v.(type) {
	case Replacement:
		return r.Value
	case *Replacement:
		return r.Value
	}
	return v
}
