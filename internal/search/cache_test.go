package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"polyglot/api/internal/session"
	"polyglot/api/internal/store"
)

type fakeSearcher struct {
	ids   []int64
	err   error
	calls int
}

func (f *fakeSearcher) SearchUnitIDs(context.Context, store.Translation, UnitQuery) ([]int64, error) {
	f.calls++
	return f.ids, f.err
}

var testTranslation = store.Translation{ID: 7, Project: "docs", Component: "ui", Language: "cs"}

func TestResolveStoresAndReturnsResult(t *testing.T) {
	searcher := &fakeSearcher{ids: []int64{11, 12, 13}}
	sessions := session.NewMemoryStore()
	cache := NewCache(sessions, searcher)
	now := time.Unix(1_700_000_000, 0)

	result, err := cache.Resolve(context.Background(), "sid", testTranslation, Params{Query: "state:translated"}, now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(result.IDs) != 3 || result.IDs[0] != 11 {
		t.Errorf("unexpected ids: %v", result.IDs)
	}

	entry, ok, _ := sessions.Get(context.Background(), "sid", result.Key)
	if !ok {
		t.Fatal("expected cache entry stored")
	}
	if entry.Expires != now.Add(24*time.Hour).Unix() {
		t.Errorf("expected 24h expiry, got %d", entry.Expires)
	}
}

func TestResolveEmptyResult(t *testing.T) {
	cache := NewCache(session.NewMemoryStore(), &fakeSearcher{ids: nil})

	_, err := cache.Resolve(context.Background(), "sid", testTranslation, Params{Query: "state:approved"}, time.Now())
	if !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", err)
	}
}

func TestResolvePagingReusesCachedList(t *testing.T) {
	searcher := &fakeSearcher{ids: []int64{1, 2, 3}}
	sessions := session.NewMemoryStore()
	cache := NewCache(sessions, searcher)
	now := time.Unix(1_700_000_000, 0)
	ctx := context.Background()

	first, err := cache.Resolve(ctx, "sid", testTranslation, Params{Query: "state:translated"}, now)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// The unit set mutates underneath the session.
	searcher.ids = []int64{9}

	paged, err := cache.Resolve(ctx, "sid", testTranslation, Params{Query: "state:translated", Offset: 1, HasOffset: true}, now)
	if err != nil {
		t.Fatalf("paging Resolve failed: %v", err)
	}
	if len(paged.IDs) != 3 || paged.IDs[1] != first.IDs[1] {
		t.Errorf("paging should reuse the cached list, got %v", paged.IDs)
	}
	if searcher.calls != 1 {
		t.Errorf("paging should not re-execute the query, calls=%d", searcher.calls)
	}
}

func TestResolveFreshQueryAlwaysReexecutes(t *testing.T) {
	searcher := &fakeSearcher{ids: []int64{1, 2}}
	cache := NewCache(session.NewMemoryStore(), searcher)
	now := time.Unix(1_700_000_000, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cache.Resolve(ctx, "sid", testTranslation, Params{Query: "state:translated"}, now); err != nil {
			t.Fatalf("Resolve %d failed: %v", i, err)
		}
	}
	if searcher.calls != 2 {
		t.Errorf("fresh queries must re-execute, calls=%d", searcher.calls)
	}
}

func TestResolveExpiredEntryReexecutes(t *testing.T) {
	searcher := &fakeSearcher{ids: []int64{1, 2}}
	sessions := session.NewMemoryStore()
	cache := NewCache(sessions, searcher)
	ctx := context.Background()

	start := time.Unix(1_700_000_000, 0)
	if _, err := cache.Resolve(ctx, "sid", testTranslation, Params{Query: "x"}, start); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	later := start.Add(25 * time.Hour)
	if _, err := cache.Resolve(ctx, "sid", testTranslation, Params{Query: "x", Offset: 0, HasOffset: true}, later); err != nil {
		t.Fatalf("Resolve after expiry failed: %v", err)
	}
	if searcher.calls != 2 {
		t.Errorf("expired entry must not be reused, calls=%d", searcher.calls)
	}
}

func TestSweepRemovesStaleSearchEntries(t *testing.T) {
	searcher := &fakeSearcher{ids: []int64{1}}
	sessions := session.NewMemoryStore()
	cache := NewCache(sessions, searcher)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	stale := session.Entry{IDs: []int64{5}, Expires: now.Add(-time.Hour).Unix()}
	if err := sessions.Put(ctx, "sid", "search_3_old", stale); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	malformed := session.Entry{}
	if err := sessions.Put(ctx, "sid", "search_4_bad", malformed); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	unrelated := session.Entry{IDs: []int64{6}, Expires: 0}
	if err := sessions.Put(ctx, "sid", "pref_theme", unrelated); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := cache.Resolve(ctx, "sid", testTranslation, Params{Query: "x"}, now); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if _, ok, _ := sessions.Get(ctx, "sid", "search_3_old"); ok {
		t.Error("expired search entry should be swept")
	}
	if _, ok, _ := sessions.Get(ctx, "sid", "search_4_bad"); ok {
		t.Error("malformed search entry should be swept")
	}
	if _, ok, _ := sessions.Get(ctx, "sid", "pref_theme"); !ok {
		t.Error("non-search entries must survive the sweep")
	}
}

func TestKeyDeterminism(t *testing.T) {
	a := Key(7, Params{Query: "state:translated hello"})
	b := Key(7, Params{Query: "state:translated hello", Offset: 4, HasOffset: true, Checksum: "abc"})
	if a != b {
		t.Errorf("offset and checksum must not affect the cache key: %q vs %q", a, b)
	}
	c := Key(8, Params{Query: "state:translated hello"})
	if a == c {
		t.Error("different translations must not share cache keys")
	}
}

func TestForget(t *testing.T) {
	searcher := &fakeSearcher{ids: []int64{1}}
	sessions := session.NewMemoryStore()
	cache := NewCache(sessions, searcher)
	ctx := context.Background()

	result, err := cache.Resolve(ctx, "sid", testTranslation, Params{Query: "x"}, time.Unix(1_700_000_000, 0))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := cache.Forget(ctx, "sid", result.Key); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if _, ok, _ := sessions.Get(ctx, "sid", result.Key); ok {
		t.Error("expected entry removed")
	}
}
