package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"polyglot/api/internal/session"
	"polyglot/api/internal/store"
)

// ErrEmptyResult signals a query that matched nothing; the caller redirects
// to the translation listing instead of entering the editing session.
var ErrEmptyResult = errors.New("no strings matched the search")

const (
	cacheKeyPrefix = "search_"
	cacheTTL       = 24 * time.Hour
)

// Result is one resolved search: the ordered unit id list plus the metadata
// the editing session renders.
type Result struct {
	Key   string
	IDs   []int64
	Query string
	URL   string
	Name  string
}

// Cache resolves queries against the unit collection and keeps the id lists
// in the caller's session so paging stays stable while units mutate
// underneath.
type Cache struct {
	sessions session.Store
	searcher UnitSearcher
	ttl      time.Duration
}

func NewCache(sessions session.Store, searcher UnitSearcher) *Cache {
	return &Cache{
		sessions: sessions,
		searcher: searcher,
		ttl:      cacheTTL,
	}
}

// Key computes the session key for a translation and query. Identical query
// text yields the identical key regardless of how the caller assembled its
// parameters.
func Key(translationID int64, p Params) string {
	return fmt.Sprintf("%s%d_%s", cacheKeyPrefix, translationID, p.Canonical())
}

// Resolve returns the id list for the request. A cached entry is reused
// only when the caller supplied an explicit offset, i.e. is paging through
// an existing session; a fresh query always re-executes even if an
// unexpired entry exists. On a successful fresh query, stale search entries
// in the same session are swept and the new entry is stored with a 24h
// expiry.
func (c *Cache) Resolve(ctx context.Context, sessionID string, translation store.Translation, p Params, now time.Time) (Result, error) {
	key := Key(translation.ID, p)

	if p.HasOffset {
		entry, ok, err := c.sessions.Get(ctx, sessionID, key)
		if err != nil {
			return Result{}, fmt.Errorf("read search cache: %w", err)
		}
		if ok && entry.Expires > now.Unix() && len(entry.IDs) > 0 {
			return Result{Key: key, IDs: entry.IDs, Query: entry.Query, URL: entry.URL, Name: entry.Name}, nil
		}
	}

	query := ParseQuery(p.Query)
	ids, err := c.searcher.SearchUnitIDs(ctx, translation, query)
	if err != nil {
		return Result{}, fmt.Errorf("execute search: %w", err)
	}
	if len(ids) == 0 {
		return Result{}, ErrEmptyResult
	}

	c.sweep(ctx, sessionID, now)

	entry := session.Entry{
		IDs:     ids,
		Query:   query.Describe(),
		URL:     p.Canonical(),
		Name:    query.Describe(),
		Expires: now.Add(c.ttl).Unix(),
	}
	if err := c.sessions.Put(ctx, sessionID, key, entry); err != nil {
		return Result{}, fmt.Errorf("store search cache: %w", err)
	}

	return Result{Key: key, IDs: ids, Query: entry.Query, URL: entry.URL, Name: entry.Name}, nil
}

// Forget drops one cached search, used when navigation walks off the end of
// the list and the session is finished.
func (c *Cache) Forget(ctx context.Context, sessionID, key string) error {
	return c.sessions.Delete(ctx, sessionID, key)
}

// sweep removes search-scoped entries that have expired or are malformed.
// The cost is bounded by the session's own key count; nothing global is
// scanned.
func (c *Cache) sweep(ctx context.Context, sessionID string, now time.Time) {
	keys, err := c.sessions.Keys(ctx, sessionID)
	if err != nil {
		log.Printf("search: sweep session %s: %v", sessionID, err)
		return
	}
	for _, key := range keys {
		if !strings.HasPrefix(key, cacheKeyPrefix) {
			continue
		}
		entry, ok, err := c.sessions.Get(ctx, sessionID, key)
		if err != nil || !ok {
			continue
		}
		if entry.Expires < now.Unix() || len(entry.IDs) == 0 {
			if err := c.sessions.Delete(ctx, sessionID, key); err != nil {
				log.Printf("search: sweep delete %s: %v", key, err)
			}
		}
	}
}
