package labels

import (
	"slices"
	"sort"
)

// LabelSet is an ordered set of label names.
type LabelSet []string

// Contains reports whether name is in the set.
func (s LabelSet) Contains(name string) bool {
	return slices.Contains(s, name)
}

// Equal compares as sets, ignoring order and duplicates.
func (s LabelSet) Equal(other []string) bool {
	a := dedupeSorted(s)
	b := dedupeSorted(other)
	return slices.Equal(a, b)
}

// Strings returns a copy as a plain slice.
func (s LabelSet) Strings() []string {
	return append([]string(nil), s...)
}

func dedupeSorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return slices.Compact(out)
}
