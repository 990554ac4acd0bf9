package model

import (
	"encoding/json"
	"sort"
)

// IndexSet is a set of question indices. It encodes as a sorted JSON array.
type IndexSet map[int]struct{}

// Has reports membership of i.
func (s IndexSet) Has(i int) bool {
	_, ok := s[i]
	return ok
}

// Toggle flips membership of i and returns the new membership.
func (s IndexSet) Toggle(i int) bool {
	if s.Has(i) {
		delete(s, i)
		return false
	}
	s[i] = struct{}{}
	return true
}

// Sorted returns the members in ascending order.
func (s IndexSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Clone returns an independent copy.
func (s IndexSet) Clone() IndexSet {
	out := make(IndexSet, len(s))
	for i := range s {
		out[i] = struct{}{}
	}
	return out
}

func (s IndexSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *IndexSet) UnmarshalJSON(data []byte) error {
	var list []int
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	set := make(IndexSet, len(list))
	for _, i := range list {
		set[i] = struct{}{}
	}
	*s = set
	return nil
}
