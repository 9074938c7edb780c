// Package engine drives the editing session: it resolves the search cache,
// navigates to the unit under the cursor, and runs every submitted edit,
// suggestion, merge, revert, and suggestion action through the permission
// and quality gates before deciding whether the caller advances or stays.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"polyglot/api/internal/quality"
	"polyglot/api/internal/rbac"
	"polyglot/api/internal/search"
	"polyglot/api/internal/store"
)

type dataStore interface {
	GetTranslation(ctx context.Context, translationID int64) (store.Translation, error)
	UpdateCommitMessage(ctx context.Context, translationID int64, message string) error
	CommitPending(ctx context.Context, translationID int64, actor, message string) error
	GetUnit(ctx context.Context, unitID int64) (store.Unit, error)
	GetUnitByHash(ctx context.Context, translationID int64, idHash string) (store.Unit, error)
	UnitsByIDs(ctx context.Context, ids []int64) ([]store.Unit, error)
	CountUnits(ctx context.Context, translationID int64) (int, error)
	UpdateUnitTarget(ctx context.Context, unitID int64, target string, state store.UnitState) (bool, error)
	UnitExistsWithContext(ctx context.Context, translationID int64, context string) (bool, error)
	InsertUnit(ctx context.Context, item store.Unit) (store.Unit, error)
	MatchingUnits(ctx context.Context, unit store.Unit, project, language string) ([]store.Unit, error)
	ActiveChecks(ctx context.Context, unitID int64) ([]string, error)
	ReplaceChecks(ctx context.Context, unitID int64, kinds []string) error
	InsertSuggestion(ctx context.Context, item store.Suggestion) (store.Suggestion, error)
	GetSuggestion(ctx context.Context, suggestionID int64, project, language string) (store.Suggestion, error)
	ListSuggestions(ctx context.Context, unitID int64) ([]store.Suggestion, error)
	DeleteSuggestion(ctx context.Context, suggestionID int64) error
	UpsertVote(ctx context.Context, suggestionID int64, user string, value int) error
	VoteTally(ctx context.Context, suggestionID int64) (int, error)
	InsertChange(ctx context.Context, item store.Change) error
	GetChange(ctx context.Context, changeID, translationID int64) (store.Change, error)
	HasAuthoredChange(ctx context.Context, translationID int64) (bool, error)
	IncrementTranslated(ctx context.Context, user string) error
	InsertComment(ctx context.Context, item store.Comment) (store.Comment, error)
	GetComment(ctx context.Context, commentID int64) (store.Comment, error)
	DeleteComment(ctx context.Context, commentID int64) error
	CopyTranslations(ctx context.Context, translationID int64, fromComponent string, overwrite bool) (int, error)
}

// SpamChecker screens suggestion text from unauthenticated authors.
type SpamChecker interface {
	IsSpam(ctx context.Context, text, remoteAddr string) bool
}

// Indexer receives saved units for the search index. May be nil.
type Indexer interface {
	IndexUnit(unit store.Unit)
}

type Engine struct {
	store   dataStore
	cache   *search.Cache
	gate    *quality.Gate
	spam    SpamChecker
	indexer Indexer
	now     func() time.Time
}

func NewEngine(st dataStore, cache *search.Cache, spam SpamChecker, indexer Indexer) *Engine {
	return &Engine{
		store:   st,
		cache:   cache,
		gate:    quality.NewGate(st),
		spam:    spam,
		indexer: indexer,
		now:     time.Now,
	}
}

// Outcome tells the caller where to go next. Redirect points at the same
// unit when the request must stay, the adjacent unit when it advances, or
// the translation listing when the session ends.
type Outcome struct {
	Redirect string
	Messages *Messages
}

// RelatedUnit is one candidate from the matching-units lookup, labeled by
// which predicates it satisfies: full match, source only, or context only.
type RelatedUnit struct {
	Unit  store.Unit
	Label string
}

// View is the rendered editing position for a GET.
type View struct {
	Unit        store.Unit
	Translation store.Translation
	Offset      int
	Total       int
	Links       search.Links
	Search      search.Result
	Others      []RelatedUnit
	Suggestions []store.Suggestion
	Checks      []string
	CheckNames  []string
}

type SessionInput struct {
	SessionID     string
	Actor         rbac.Actor
	TranslationID int64
	Params        search.Params
}

type SubmitInput struct {
	SessionID     string
	Actor         rbac.Actor
	TranslationID int64
	Params        search.Params
	Request       SubmitRequest
	RemoteAddr    string
}

// cursor is one resolved editing position shared by GET and POST handling.
type cursor struct {
	translation store.Translation
	result      search.Result
	offset      int
	unit        store.Unit
}

// Session resolves the editing position for rendering. A nil View with a
// non-nil Outcome means the caller redirects instead.
func (e *Engine) Session(ctx context.Context, in SessionInput) (*View, *Outcome, error) {
	translation, err := e.store.GetTranslation(ctx, in.TranslationID)
	if err != nil {
		return nil, nil, e.mapStoreErr("get translation", err)
	}

	cur, redirect, err := e.resolveCursor(ctx, in.SessionID, translation, in.Params)
	if err != nil {
		return nil, nil, err
	}
	if redirect != nil {
		return nil, redirect, nil
	}

	view := &View{
		Unit:        cur.unit,
		Translation: translation,
		Offset:      cur.offset,
		Total:       len(cur.result.IDs),
		Links:       search.Adjacent(len(cur.result.IDs), cur.offset),
		Search:      cur.result,
	}

	others, err := e.relatedUnits(ctx, cur.unit, translation)
	if err != nil {
		log.Printf("engine: matching units for unit %d: %v", cur.unit.ID, err)
	} else {
		view.Others = others
	}

	suggestions, err := e.store.ListSuggestions(ctx, cur.unit.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list suggestions: %w", err)
	}
	view.Suggestions = suggestions

	checks, err := e.store.ActiveChecks(ctx, cur.unit.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("active checks: %w", err)
	}
	view.Checks = checks
	view.CheckNames = e.gate.Registry().DescribeKinds(checks)

	return view, nil, nil
}

// Submit runs one editing-session POST to completion and returns the
// redirect. Recoverable failures stay on the same unit with messages; only
// infrastructure errors propagate.
func (e *Engine) Submit(ctx context.Context, in SubmitInput) (Outcome, error) {
	msgs := &Messages{}

	translation, err := e.store.GetTranslation(ctx, in.TranslationID)
	if err != nil {
		return Outcome{}, e.mapStoreErr("get translation", err)
	}

	cur, redirect, err := e.resolveCursor(ctx, in.SessionID, translation, in.Params)
	if err != nil {
		return Outcome{}, err
	}
	if redirect != nil {
		return *redirect, nil
	}

	links := search.Adjacent(len(cur.result.IDs), cur.offset)
	stay := Outcome{Redirect: e.unitURL(in.TranslationID, in.Params, cur.offset), Messages: msgs}
	advance := Outcome{Redirect: e.unitURL(in.TranslationID, in.Params, links.Next), Messages: msgs}

	req := in.Request
	if req.Kind == KindSkip {
		return advance, nil
	}
	// Honeypot hits look like a success to the bot and change nothing.
	if req.Honeypot {
		log.Printf("engine: honeypot tripped on unit %d from %s", cur.unit.ID, in.RemoteAddr)
		return advance, nil
	}

	if translation.Locked && req.Kind != KindDeleteSuggestion {
		msgs.Error("this translation is currently locked")
		return stay, nil
	}

	switch req.Kind {
	case KindTranslate:
		advanced, err := e.handleTranslate(ctx, in, cur, msgs)
		if err != nil {
			return Outcome{}, err
		}
		if advanced {
			msgs.Success("translation saved")
			return advance, nil
		}
		return stay, nil
	case KindSuggest:
		if err := e.handleSuggest(ctx, in, cur, msgs); err != nil {
			return Outcome{}, err
		}
		if msgs.State() == LevelDanger {
			return stay, nil
		}
		msgs.Success("suggestion added")
		return advance, nil
	case KindMerge:
		advanced, err := e.handleMerge(ctx, in, cur, msgs)
		if err != nil {
			return Outcome{}, err
		}
		if advanced {
			return advance, nil
		}
		return stay, nil
	case KindRevert:
		if err := e.handleRevert(ctx, in, cur, msgs); err != nil {
			return Outcome{}, err
		}
		return stay, nil
	case KindAccept, KindAcceptEdit:
		advanced, err := e.acceptSuggestion(ctx, in.Actor, cur, req.SuggestionID, msgs)
		if err != nil {
			return Outcome{}, err
		}
		if advanced && req.Kind == KindAccept {
			return advance, nil
		}
		return stay, nil
	case KindDeleteSuggestion:
		if err := e.deleteSuggestion(ctx, in.Actor, cur, req.SuggestionID, msgs); err != nil {
			return Outcome{}, err
		}
		return stay, nil
	case KindUpvote:
		if err := e.voteSuggestion(ctx, in.Actor, cur, req.SuggestionID, 1, msgs); err != nil {
			return Outcome{}, err
		}
		return stay, nil
	case KindDownvote:
		if err := e.voteSuggestion(ctx, in.Actor, cur, req.SuggestionID, -1, msgs); err != nil {
			return Outcome{}, err
		}
		return stay, nil
	default:
		msgs.Error("unknown action")
		return stay, nil
	}
}

func (e *Engine) handleTranslate(ctx context.Context, in SubmitInput, cur cursor, msgs *Messages) (bool, error) {
	if !rbac.CanTranslate(in.Actor) {
		msgs.Warning("insufficient privileges for saving translations")
		return false, nil
	}

	if in.Request.HasCommitMessage && in.Request.CommitMessage != cur.translation.CommitMessage {
		// Pending changes were authored under the old message; flush them
		// before the override takes effect so the messages do not bleed.
		if err := e.store.CommitPending(ctx, cur.translation.ID, in.Actor.Name, cur.translation.CommitMessage); err != nil {
			return false, fmt.Errorf("flush pending changes: %w", err)
		}
		if err := e.store.UpdateCommitMessage(ctx, cur.translation.ID, in.Request.CommitMessage); err != nil {
			return false, fmt.Errorf("update commit message: %w", err)
		}
	}

	advanced, _, err := e.saveTarget(ctx, in.Actor, cur.translation, cur.unit, in.Request.Target, in.Request.State, store.ActionTranslate, msgs)
	return advanced, err
}

// saveTarget is the shared save path for translations and accepted
// suggestions: fixups, persist, then the check gate. The write stands even
// when the gate reports new failures; the caller stays on the unit.
func (e *Engine) saveTarget(ctx context.Context, actor rbac.Actor, translation store.Translation, unit store.Unit, forms []string, state store.UnitState, action string, msgs *Messages) (bool, store.Unit, error) {
	sources := store.SplitPlural(unit.Source)
	fixed, fired := quality.Fix(sources, forms, translation.IsTemplate)
	if len(fired) > 0 {
		msgs.Info("applied automatic fixups: %s", strings.Join(fired, ", "))
	}

	target := store.JoinPlural(fixed)
	state = resolveState(fixed, state, rbac.CanReview(actor))

	before, err := e.gate.Snapshot(ctx, unit.ID)
	if err != nil {
		return false, unit, err
	}

	changed, err := e.store.UpdateUnitTarget(ctx, unit.ID, target, state)
	if err != nil {
		return false, unit, fmt.Errorf("update unit target: %w", err)
	}

	saved := unit
	saved.Target = target
	saved.State = state

	if changed {
		change := store.Change{
			TranslationID: translation.ID,
			UnitID:        unit.ID,
			Action:        action,
			Actor:         actor.Name,
			Target:        target,
		}
		if err := e.store.InsertChange(ctx, change); err != nil {
			return false, saved, fmt.Errorf("record change: %w", err)
		}
		if actor.Authenticated() {
			if err := e.store.IncrementTranslated(ctx, actor.Name); err != nil {
				log.Printf("engine: increment translated for %s: %v", actor.Name, err)
			}
		}
		if e.indexer != nil {
			e.indexer.IndexUnit(saved)
		}
	}

	introduced, err := e.gate.Evaluate(ctx, saved, before)
	if err != nil {
		return false, saved, err
	}
	if len(introduced) > 0 {
		names := e.gate.Registry().DescribeKinds(introduced)
		msgs.Error("the translation was saved but introduced failing checks: %s", strings.Join(names, ", "))
		return false, saved, nil
	}
	return true, saved, nil
}

// resolveState decides the stored state from the submitted one. Empty
// targets always land untranslated; approval needs review rights.
func resolveState(forms []string, requested store.UnitState, canReview bool) store.UnitState {
	empty := true
	for _, form := range forms {
		if strings.TrimSpace(form) != "" {
			empty = false
			break
		}
	}
	if empty {
		return store.StateUntranslated
	}
	switch requested {
	case store.StateNeedsEdit:
		return store.StateNeedsEdit
	case store.StateApproved:
		if canReview {
			return store.StateApproved
		}
		return store.StateTranslated
	default:
		return store.StateTranslated
	}
}

func (e *Engine) handleMerge(ctx context.Context, in SubmitInput, cur cursor, msgs *Messages) (bool, error) {
	if !rbac.CanTranslate(in.Actor) {
		msgs.Warning("insufficient privileges for merging translations")
		return false, nil
	}

	merged, err := e.store.GetUnit(ctx, in.Request.MergeID)
	if errors.Is(err, sql.ErrNoRows) {
		msgs.Error("merge source not found")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get merge unit: %w", err)
	}
	if merged.IDHash != cur.unit.IDHash {
		msgs.Error("cannot merge a different string")
		return false, nil
	}

	changed, err := e.store.UpdateUnitTarget(ctx, cur.unit.ID, merged.Target, merged.State)
	if err != nil {
		return false, fmt.Errorf("merge unit target: %w", err)
	}
	if !changed {
		msgs.Info("translation already matches the merged string")
		return true, nil
	}

	change := store.Change{
		TranslationID: cur.translation.ID,
		UnitID:        cur.unit.ID,
		Action:        store.ActionMerge,
		Actor:         in.Actor.Name,
		Target:        merged.Target,
	}
	if err := e.store.InsertChange(ctx, change); err != nil {
		return false, fmt.Errorf("record change: %w", err)
	}
	if in.Actor.Authenticated() {
		if err := e.store.IncrementTranslated(ctx, in.Actor.Name); err != nil {
			log.Printf("engine: increment translated for %s: %v", in.Actor.Name, err)
		}
	}
	if e.indexer != nil {
		saved := cur.unit
		saved.Target = merged.Target
		saved.State = merged.State
		e.indexer.IndexUnit(saved)
	}
	msgs.Success("translation merged")
	return true, nil
}

func (e *Engine) handleRevert(ctx context.Context, in SubmitInput, cur cursor, msgs *Messages) error {
	if !rbac.CanTranslate(in.Actor) {
		msgs.Warning("insufficient privileges for reverting translations")
		return nil
	}

	change, err := e.store.GetChange(ctx, in.Request.RevertID, cur.translation.ID)
	if errors.Is(err, sql.ErrNoRows) {
		msgs.Error("revert target not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get change: %w", err)
	}
	if change.Target == "" {
		msgs.Error("cannot revert to an empty translation")
		return nil
	}

	changed, err := e.store.UpdateUnitTarget(ctx, cur.unit.ID, change.Target, cur.unit.State)
	if err != nil {
		return fmt.Errorf("revert unit target: %w", err)
	}
	if changed {
		audit := store.Change{
			TranslationID: cur.translation.ID,
			UnitID:        cur.unit.ID,
			Action:        store.ActionRevert,
			Actor:         in.Actor.Name,
			Target:        change.Target,
		}
		if err := e.store.InsertChange(ctx, audit); err != nil {
			return fmt.Errorf("record change: %w", err)
		}
		if e.indexer != nil {
			saved := cur.unit
			saved.Target = change.Target
			e.indexer.IndexUnit(saved)
		}
	}
	msgs.Success("translation reverted")
	return nil
}

// resolveCursor turns the search parameters into a concrete editing
// position. A non-nil Outcome means the session cannot continue here and
// the caller redirects.
func (e *Engine) resolveCursor(ctx context.Context, sessionID string, translation store.Translation, p search.Params) (cursor, *Outcome, error) {
	msgs := &Messages{}

	result, err := e.cache.Resolve(ctx, sessionID, translation, p, e.now())
	if errors.Is(err, search.ErrEmptyResult) {
		msgs.Info("no strings matched your search")
		return cursor{}, &Outcome{Redirect: e.listingURL(translation.ID), Messages: msgs}, nil
	}
	if err != nil {
		return cursor{}, nil, fmt.Errorf("resolve search: %w", err)
	}

	offset := p.Offset
	if p.Checksum != "" {
		unit, err := e.store.GetUnitByHash(ctx, translation.ID, p.Checksum)
		if errors.Is(err, sql.ErrNoRows) {
			msgs.Error("string not found")
			return cursor{}, &Outcome{Redirect: e.listingURL(translation.ID), Messages: msgs}, nil
		}
		if err != nil {
			return cursor{}, nil, fmt.Errorf("get unit by hash: %w", err)
		}
		idx := search.IndexOf(result.IDs, unit.ID)
		if idx < 0 {
			msgs.Error("string not found in the current search")
			return cursor{}, &Outcome{Redirect: e.listingURL(translation.ID), Messages: msgs}, nil
		}
		offset = idx
	} else if !p.HasOffset {
		offset = 0
	}

	unitID, err := search.Locate(result.IDs, offset)
	if errors.Is(err, search.ErrBoundary) {
		// The session ran past its last unit; drop the cached list.
		if err := e.cache.Forget(ctx, sessionID, result.Key); err != nil {
			log.Printf("engine: forget search entry %s: %v", result.Key, err)
		}
		msgs.Info("you have reached the end of the translating session")
		return cursor{}, &Outcome{Redirect: e.listingURL(translation.ID), Messages: msgs}, nil
	}
	if err != nil {
		return cursor{}, nil, err
	}

	unit, err := e.store.GetUnit(ctx, unitID)
	if errors.Is(err, sql.ErrNoRows) {
		msgs.Error("string no longer exists")
		return cursor{}, &Outcome{Redirect: e.listingURL(translation.ID), Messages: msgs}, nil
	}
	if err != nil {
		return cursor{}, nil, fmt.Errorf("get unit: %w", err)
	}

	return cursor{translation: translation, result: result, offset: offset, unit: unit}, nil, nil
}

// relatedUnits classifies units sharing the content hash, source, or
// context with the current one. Each candidate gets one label from its
// predicate membership, not from any type hierarchy.
func (e *Engine) relatedUnits(ctx context.Context, unit store.Unit, translation store.Translation) ([]RelatedUnit, error) {
	candidates, err := e.store.MatchingUnits(ctx, unit, translation.Project, translation.Language)
	if err != nil {
		return nil, fmt.Errorf("matching units: %w", err)
	}
	var related []RelatedUnit
	for _, candidate := range candidates {
		if candidate.ID == unit.ID {
			continue
		}
		matchSource := candidate.Source == unit.Source
		matchContext := candidate.Context == unit.Context
		var label string
		switch {
		case matchSource && matchContext:
			label = "same"
		case candidate.IDHash == unit.IDHash:
			label = "matching"
		case matchSource:
			label = "source"
		case matchContext:
			label = "context"
		default:
			continue
		}
		related = append(related, RelatedUnit{Unit: candidate, Label: label})
	}
	return related, nil
}

func (e *Engine) unitURL(translationID int64, p search.Params, offset int) string {
	base := fmt.Sprintf("/api/translate/%d", translationID)
	if q := p.Canonical(); q != "" {
		return base + "?" + q + "&offset=" + strconv.Itoa(offset)
	}
	return base + "?offset=" + strconv.Itoa(offset)
}

func (e *Engine) listingURL(translationID int64) string {
	return fmt.Sprintf("/api/translations/%d", translationID)
}

func (e *Engine) mapStoreErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("translation not found")
	}
	return fmt.Errorf("%s: %w", op, err)
}
