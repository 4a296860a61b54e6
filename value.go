package corestate

import "encoding/json"

// Value is the tagged union every store holds: an object, a string, a
// number, a boolean, an array, a map, or null. It is represented as a
// plain Go `any` constrained to these shapes so the rest of the engine
// can serialize it with encoding/json without a custom codec — mirrors
// the StateValue enum's compress()/decompress() round-trip through
// serde_json in the original implementation.
type Value = any

// undefinedType is the type of Undefined. It is distinct from nil (an
// explicit JSON null stored at a path) and distinct from any ordinary
// Value, so callers can tell "this path holds null" from "this path
// does not exist" without a second return value.
type undefinedType struct{}

// MarshalJSON renders Undefined the way the original select()'s
// JsValue::UNDEFINED serializes across the wire: as null, since JSON
// has no undefined literal of its own.
func (undefinedType) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Undefined is the sentinel Store.Get/Select returns for a path that
// does not resolve against the current root, matching spec.md's
// select(name, path) -> Value or Undefined and original_source's
// select() returning JsValue::UNDEFINED for a missing path rather than
// an error.
var Undefined Value = undefinedType{}

// IsUndefined reports whether v is the Undefined sentinel.
func IsUndefined(v Value) bool {
	_, ok := v.(undefinedType)
	return ok
}

// Clone deep-copies v by serializing and deserializing it through JSON,
// which is sufficient for the map/slice/scalar shapes Value is
// restricted to. The document store does not call it: its writers copy
// only the path spine (pkg/store's applyAt).
func Clone(v Value) (Value, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &Error{Kind: KindSerialization, Message: "clone: marshal", Cause: err}
	}
	var out Value
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &Error{Kind: KindSerialization, Message: "clone: unmarshal", Cause: err}
	}
	return out, nil
}

// Equal reports whether two Values serialize identically. Used by the
// document store to skip snapshotting and notification when an update
// is a no-op, mirroring StateManager::update_container's equals() guard.
func Equal(a, b Value) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

// Size estimates the in-memory footprint of v in bytes by measuring its
// JSON encoding. This is an approximation, not an exact accounting.
func Size(v Value) int {
	raw, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(raw)
}
