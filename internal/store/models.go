package store

import (
	"hash/fnv"
	"strconv"
	"strings"
	"time"
)

// UnitState mirrors the translation workflow states. The numeric gaps leave
// room for intermediate states without renumbering stored rows.
type UnitState int

const (
	StateUntranslated UnitState = 0
	StateNeedsEdit    UnitState = 10
	StateTranslated   UnitState = 20
	StateApproved     UnitState = 30
)

func (s UnitState) String() string {
	switch s {
	case StateUntranslated:
		return "untranslated"
	case StateNeedsEdit:
		return "needs-edit"
	case StateTranslated:
		return "translated"
	case StateApproved:
		return "approved"
	default:
		return "state-" + strconv.Itoa(int(s))
	}
}

// ParseState resolves a state name used in search queries. The second value
// reports whether the name was recognized.
func ParseState(name string) (UnitState, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "untranslated":
		return StateUntranslated, true
	case "needs-edit", "fuzzy":
		return StateNeedsEdit, true
	case "translated":
		return StateTranslated, true
	case "approved":
		return StateApproved, true
	default:
		return StateUntranslated, false
	}
}

// pluralSeparator joins plural forms into the single target column.
const pluralSeparator = "\x1e\x1e"

func JoinPlural(forms []string) string {
	return strings.Join(forms, pluralSeparator)
}

func SplitPlural(target string) []string {
	return strings.Split(target, pluralSeparator)
}

// ContentHash computes the stable identity hash of a unit from its context
// and source text. Two units with the same hash are the same string.
func ContentHash(context, source string) string {
	h := fnv.New64a()
	h.Write([]byte(context))
	h.Write([]byte{0})
	h.Write([]byte(source))
	return strconv.FormatUint(h.Sum64(), 16)
}

// TargetHash fingerprints a stored target so programmatic callers can detect
// that a concurrent save changed the text under them.
func TargetHash(target string) string {
	h := fnv.New64a()
	h.Write([]byte(target))
	return strconv.FormatUint(h.Sum64(), 16)
}

type Unit struct {
	ID            int64
	TranslationID int64
	IDHash        string
	Source        string
	Target        string
	Context       string
	Position      int
	State         UnitState
	Pending       bool
	UpdatedAt     time.Time
}

func (u Unit) TargetForms() []string {
	return SplitPlural(u.Target)
}

type Translation struct {
	ID               int64
	Project          string
	Component        string
	Language         string
	Locked           bool
	CommitMessage    string
	IsTemplate       bool
	SuggestionVoting bool
	AutoacceptVotes  int
}

type Suggestion struct {
	ID        int64
	UnitID    int64
	Project   string
	Language  string
	Target    string
	Author    string
	CreatedAt time.Time
}

// Anonymous reports whether the suggestion came from an unauthenticated
// author.
func (s Suggestion) Anonymous() bool {
	return s.Author == ""
}

type Vote struct {
	SuggestionID int64
	User         string
	Value        int
}

// Change action kinds. Changes are append-only audit records.
const (
	ActionTranslate     = "translate"
	ActionSuggest       = "suggest"
	ActionAccept        = "accept"
	ActionRevert        = "revert"
	ActionMerge         = "merge"
	ActionComment       = "comment"
	ActionNewUnit       = "new-unit"
	ActionAutoTranslate = "auto-translate"
	ActionCommit        = "commit"
)

type Change struct {
	ID            int64
	TranslationID int64
	UnitID        int64
	Action        string
	Actor         string
	Target        string
	CreatedAt     time.Time
}

type Comment struct {
	ID        int64
	UnitID    int64
	Language  string
	Author    string
	Body      string
	CreatedAt time.Time
}

// UnitFilter is the query-by-filter input for unit id lookups.
type UnitFilter struct {
	States []UnitState
	Text   string
}

func (f UnitFilter) Empty() bool {
	return len(f.States) == 0 && strings.TrimSpace(f.Text) == ""
}
