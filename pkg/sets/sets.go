// Package sets provides small generic helpers for collections whose order and
// multiplicity carry no meaning.
package sets

import (
	"cmp"
	"slices"
)

// Set is an unordered collection of distinct values.
type Set[T comparable] map[T]struct{}

// Of builds a set from items, collapsing duplicates.
func Of[T comparable](items ...T) Set[T] {
	s := make(Set[T], len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

// Add inserts v and reports whether it was absent before.
func (s Set[T]) Add(v T) bool {
	if _, ok := s[v]; ok {
		return false
	}
	s[v] = struct{}{}
	return true
}

func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

func (s Set[T]) Len() int {
	return len(s)
}

// Equal reports whether both sets hold exactly the same members.
func (s Set[T]) Equal(other Set[T]) bool {
	if len(s) != len(other) {
		return false
	}
	for v := range s {
		if _, ok := other[v]; !ok {
			return false
		}
	}
	return true
}

// Items returns the members in unspecified order.
func (s Set[T]) Items() []T {
	out := make([]T, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	return out
}

// EqualUnordered compares two slices as sets: [A,B], [B,A] and [A,B,A] are all equal.
func EqualUnordered[T comparable](a, b []T) bool {
	return Of(a...).Equal(Of(b...))
}

// Dedupe drops repeated values, keeping the first occurrence of each.
// The result is never nil.
func Dedupe[T comparable](items []T) []T {
	seen := make(Set[T], len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		if seen.Add(item) {
			out = append(out, item)
		}
	}
	return out
}

// Normalize dedupes items and sorts them with compare, giving a canonical form
// suitable for storage and comparison.
func Normalize[T comparable](items []T, compare func(a, b T) int) []T {
	out := Dedupe(items)
	slices.SortFunc(out, compare)
	return out
}

// Sorted returns the members of s in ascending order.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	out := s.Items()
	slices.Sort(out)
	return out
}
