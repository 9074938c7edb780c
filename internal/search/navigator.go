package search

import "errors"

// ErrBoundary signals an offset outside the cached id list. The session has
// come to an end; the caller forgets the cache entry and leaves.
var ErrBoundary = errors.New("offset outside search results")

// Locate validates the offset against the id list and returns the unit id
// at that position.
func Locate(ids []int64, offset int) (int64, error) {
	if offset < 0 || offset >= len(ids) {
		return 0, ErrBoundary
	}
	return ids[offset], nil
}

// IndexOf returns the position of id in the list, or -1 when absent.
func IndexOf(ids []int64, id int64) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}

// Links carries the adjacent offsets for an editing position. Values are
// pure arithmetic with no clamping: Prev is -1 at the start and Next equals
// the list length at the end, which callers render as disabled controls.
type Links struct {
	First int
	Last  int
	Prev  int
	Next  int
}

func Adjacent(length, offset int) Links {
	return Links{
		First: 0,
		Last:  length - 1,
		Prev:  offset - 1,
		Next:  offset + 1,
	}
}
