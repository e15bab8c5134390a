package workspace

import "errors"

// Validated wraps a decoded artifact together with a usability verdict made
// once at the workspace boundary. Downstream code checks Valid() instead of
// re-implementing emptiness probes at every call site.
type Validated[T any] struct {
	value T
	valid bool
}

// Valid reports whether the wrapped value holds usable data.
func (v Validated[T]) Valid() bool { return v.valid }

// Value returns the wrapped value. Meaningful only when Valid() is true.
func (v Validated[T]) Value() T { return v.value }

// ValidOf wraps an already-checked value.
func ValidOf[T any](value T) Validated[T] {
	return Validated[T]{value: value, valid: true}
}

// Invalid returns the zero-valued invalid wrapper.
func Invalid[T any]() Validated[T] { return Validated[T]{} }

// Load reads an artifact and validates it in one step. A missing artifact
// yields an invalid wrapper, not an error; IO failures propagate.
func Load[T any](s Store, namespace, name string) (Validated[T], error) {
	var out T
	err := s.ReadJSON(namespace, name, &out)
	if errors.Is(err, ErrNotFound) {
		return Invalid[T](), nil
	}
	if err != nil {
		return Invalid[T](), err
	}
	if !HasData(out) {
		return Invalid[T](), nil
	}
	return ValidOf(out), nil
}

// HasData reports whether v holds at least one real entry. Only maps and
// slices can carry data. A map whose sole key is literally "length" does
// not count: that shape is array-like leakage from upstream serializers,
// not payload.
func HasData(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case map[string]any:
		if len(val) == 0 {
			return false
		}
		if len(val) == 1 {
			if _, only := val["length"]; only {
				return false
			}
		}
		return true
	case []any:
		return len(val) > 0
	default:
		return false
	}
}
