package common

import (
	"iter"
	"slices"
)

func Iter[V any](in ...V) iter.Seq[V] {
	return slices.Values(in)
}

// Filter yields only the values of in which satisfy predicate.
func Filter[V any](in iter.Seq[V], predicate func(V) bool) iter.Seq[V] {
	return func(yield func(V) bool) {
		for v := range in {
			if predicate(v) && !yield(v) {
				return
			}
		}
	}
}
