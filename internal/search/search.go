// Package search resolves unit queries into ordered id lists, caches them in
// the caller's session, and navigates within a cached list.
package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"polyglot/api/internal/store"
)

// Params are the navigation inputs of one request. HasOffset distinguishes
// paging (reuse the cached list) from a fresh query (always re-execute).
type Params struct {
	Query     string
	Offset    int
	HasOffset bool
	Checksum  string
}

// ParseParams extracts search parameters from a request query string.
func ParseParams(values url.Values) Params {
	p := Params{
		Query:    strings.TrimSpace(values.Get("q")),
		Checksum: strings.TrimSpace(values.Get("checksum")),
	}
	if raw := values.Get("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil {
			p.Offset = offset
			p.HasOffset = true
		}
	}
	return p
}

// Canonical renders the query as a stable URL fragment. url.Values.Encode
// sorts by key, so the same query always canonicalizes identically no
// matter how the caller ordered its arguments.
func (p Params) Canonical() string {
	values := url.Values{}
	if p.Query != "" {
		values.Set("q", p.Query)
	}
	return values.Encode()
}

// UnitQuery is a parsed unit search: zero or more state filters plus free
// text.
type UnitQuery struct {
	States []store.UnitState
	Text   string
}

func (q UnitQuery) Empty() bool {
	return len(q.States) == 0 && q.Text == ""
}

// ParseQuery splits a raw query into state: filters and free text. Unknown
// state names are kept as free text rather than silently dropped.
func ParseQuery(raw string) UnitQuery {
	var q UnitQuery
	var text []string
	for _, token := range strings.Fields(raw) {
		if name, ok := strings.CutPrefix(token, "state:"); ok {
			if state, known := store.ParseState(name); known {
				q.States = append(q.States, state)
				continue
			}
		}
		text = append(text, token)
	}
	q.Text = strings.Join(text, " ")
	return q
}

// Describe renders the human-readable name of the query for display in the
// editing session header.
func (q UnitQuery) Describe() string {
	var parts []string
	for _, state := range q.States {
		parts = append(parts, fmt.Sprintf("state %s", state))
	}
	if q.Text != "" {
		parts = append(parts, fmt.Sprintf("search for %q", q.Text))
	}
	if len(parts) == 0 {
		return "all strings"
	}
	return "strings with " + strings.Join(parts, ", ")
}

// UnitSearcher executes a unit query and returns matching unit ids in
// display order.
type UnitSearcher interface {
	SearchUnitIDs(ctx context.Context, translation store.Translation, q UnitQuery) ([]int64, error)
}

type unitFilterStore interface {
	FilterUnitIDs(ctx context.Context, translationID int64, filter store.UnitFilter) ([]int64, error)
}

// StoreSearcher answers queries straight from the persistence layer. It is
// the always-available fallback; ranked full-text goes through Meilisearch
// when configured.
type StoreSearcher struct {
	store unitFilterStore
}

func NewStoreSearcher(store unitFilterStore) *StoreSearcher {
	return &StoreSearcher{store: store}
}

func (s *StoreSearcher) SearchUnitIDs(ctx context.Context, translation store.Translation, q UnitQuery) ([]int64, error) {
	return s.store.FilterUnitIDs(ctx, translation.ID, store.UnitFilter{
		States: q.States,
		Text:   q.Text,
	})
}
