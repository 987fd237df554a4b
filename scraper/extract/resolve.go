package extract

// Resolver extracts one value from a page snapshot; ok is false when the
// strategy has nothing to offer.
type Resolver[T any] func(p *Page) (value T, ok bool)

// FirstOf composes resolvers so that the first one yielding a value wins.
// Later resolvers are not consulted once a value is found. Nil entries are
// skipped, which lets callers build chains from optional strategies.
func FirstOf[T any](resolvers ...Resolver[T]) Resolver[T] {
	return func(p *Page) (T, bool) {
		for _, r := range resolvers {
			if r == nil {
				continue
			}
			if v, ok := r(p); ok {
				return v, true
			}
		}
		var zero T
		return zero, false
	}
}

// Map transforms a resolver's output; when fn reports false the value is
// treated as missing and the next strategy in a chain gets its turn.
func Map[T, U any](r Resolver[T], fn func(T) (U, bool)) Resolver[U] {
	if r == nil {
		return nil
	}
	return func(p *Page) (U, bool) {
		v, ok := r(p)
		if !ok {
			var zero U
			return zero, false
		}
		return fn(v)
	}
}

// Const is a resolver that always yields v when ok is true.
func Const[T any](v T, ok bool) Resolver[T] {
	return func(*Page) (T, bool) { return v, ok }
}
