package search

import (
	"net/url"
	"testing"

	"polyglot/api/internal/store"
)

func TestParseParams(t *testing.T) {
	values := url.Values{}
	values.Set("q", " state:translated hello ")
	values.Set("offset", "3")
	values.Set("checksum", "ab12")

	p := ParseParams(values)
	if p.Query != "state:translated hello" {
		t.Errorf("unexpected query: %q", p.Query)
	}
	if !p.HasOffset || p.Offset != 3 {
		t.Errorf("expected offset 3, got %+v", p)
	}
	if p.Checksum != "ab12" {
		t.Errorf("unexpected checksum: %q", p.Checksum)
	}
}

func TestParseParamsNoOffset(t *testing.T) {
	p := ParseParams(url.Values{"q": {"x"}})
	if p.HasOffset {
		t.Error("missing offset must not count as paging")
	}
}

func TestParseQuery(t *testing.T) {
	q := ParseQuery("state:translated state:needs-edit hello world")
	if len(q.States) != 2 || q.States[0] != store.StateTranslated || q.States[1] != store.StateNeedsEdit {
		t.Errorf("unexpected states: %v", q.States)
	}
	if q.Text != "hello world" {
		t.Errorf("unexpected text: %q", q.Text)
	}
}

func TestParseQueryUnknownStateKeptAsText(t *testing.T) {
	q := ParseQuery("state:bogus")
	if len(q.States) != 0 {
		t.Errorf("unknown state should not filter, got %v", q.States)
	}
	if q.Text != "state:bogus" {
		t.Errorf("unknown state token should stay searchable, got %q", q.Text)
	}
}

func TestCanonicalOrderIndependent(t *testing.T) {
	a := Params{Query: "state:translated"}
	b := Params{Query: "state:translated", Offset: 9, HasOffset: true}
	if a.Canonical() != b.Canonical() {
		t.Errorf("canonical fragment must ignore offset: %q vs %q", a.Canonical(), b.Canonical())
	}
}

func TestDescribe(t *testing.T) {
	if got := ParseQuery("").Describe(); got != "all strings" {
		t.Errorf("unexpected description: %q", got)
	}
	got := ParseQuery("state:translated foo").Describe()
	if got != `strings with state translated, search for "foo"` {
		t.Errorf("unexpected description: %q", got)
	}
}
