package capability

import "modscout/internal/object"

// Validity decides whether a candidate is usable as a capability. Predicates only
// read the candidate.
type Validity func(v any) bool

// Any accepts every non-nil candidate.
func Any(v any) bool { return v != nil }

// Collection accepts objects exposing an event-subscribe method and a get-by-key
// method, the shape every host model collection has.
func Collection(v any) bool {
	return object.HasMethods(v, "on", "get")
}

// Function accepts callables.
func Function(v any) bool { return object.IsCallable(v) }

// Constructor accepts callables carrying a prototype.
func Constructor(v any) bool { return object.IsConstructor(v) }

// EventBus accepts objects that can both subscribe and unsubscribe listeners.
func EventBus(v any) bool {
	return object.HasMethods(v, "on", "off")
}

// Identity accepts the module that knows the signed-in user.
func Identity(v any) bool {
	return object.HasMethods(v, "getMaybeMeUser") || object.HasMethods(v, "getMeUser")
}

// Profile accepts the connection object carrying the user's display data.
func Profile(v any) bool {
	return object.HasProps(v, "pushname") || object.HasMethods(v, "getPushname")
}

// Methods accepts objects on which every name is callable.
func Methods(names ...string) Validity {
	return func(v any) bool { return object.HasMethods(v, names...) }
}

// Props accepts objects on which every name is present.
func Props(names ...string) Validity {
	return func(v any) bool { return object.HasProps(v, names...) }
}

// Composite accepts objects whose every named field is itself an object.
func Composite(fields ...string) Validity {
	return func(v any) bool {
		if v == nil {
			return false
		}
		for _, f := range fields {
			if _, ok := object.Get(v, f).(object.Object); !ok {
				return false
			}
		}
		return true
	}
}

// All accepts candidates every predicate accepts.
func All(preds ...Validity) Validity {
	return func(v any) bool {
		for _, p := range preds {
			if !p(v) {
				return false
			}
		}
		return true
	}
}

// OneOf accepts candidates at least one predicate accepts.
func OneOf(preds ...Validity) Validity {
	return func(v any) bool {
		for _, p := range preds {
			if p(v) {
				return true
			}
		}
		return false
	}
}
