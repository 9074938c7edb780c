package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"polyglot/api/internal/rbac"
	"polyglot/api/internal/store"
)

func (e *Engine) handleSuggest(ctx context.Context, in SubmitInput, cur cursor, msgs *Messages) error {
	if emptyForms(in.Request.Target) {
		msgs.Error("your suggestion is empty")
		return nil
	}
	if !rbac.CanSuggest(in.Actor) {
		msgs.Error("insufficient privileges for adding suggestions")
		return nil
	}
	if !in.Actor.Authenticated() && e.spam != nil {
		if e.spam.IsSpam(ctx, store.JoinPlural(in.Request.Target), in.RemoteAddr) {
			msgs.Error("your suggestion has been identified as spam")
			return nil
		}
	}

	// When votes cannot promote suggestions on their own and nobody has
	// authored a change here yet, suggestions pile up with no one to act
	// on them. Nudge the submitter, but do not block.
	if !(cur.translation.SuggestionVoting && cur.translation.AutoacceptVotes > 0) {
		authored, err := e.store.HasAuthoredChange(ctx, cur.translation.ID)
		if err != nil {
			return fmt.Errorf("check authored changes: %w", err)
		}
		if !authored {
			msgs.Info("there is currently no active translator for this language, consider becoming one")
		}
	}

	suggestion := store.Suggestion{
		UnitID:   cur.unit.ID,
		Project:  cur.translation.Project,
		Language: cur.translation.Language,
		Target:   store.JoinPlural(in.Request.Target),
		Author:   in.Actor.Name,
	}
	created, err := e.store.InsertSuggestion(ctx, suggestion)
	if errors.Is(err, store.ErrDuplicateSuggestion) {
		msgs.Error("an identical suggestion already exists")
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert suggestion: %w", err)
	}

	change := store.Change{
		TranslationID: cur.translation.ID,
		UnitID:        cur.unit.ID,
		Action:        store.ActionSuggest,
		Actor:         in.Actor.Name,
		Target:        created.Target,
	}
	if err := e.store.InsertChange(ctx, change); err != nil {
		return fmt.Errorf("record change: %w", err)
	}
	return nil
}

func (e *Engine) acceptSuggestion(ctx context.Context, actor rbac.Actor, cur cursor, suggestionID int64, msgs *Messages) (bool, error) {
	if !rbac.CanAcceptSuggestion(actor) {
		msgs.Warning("insufficient privileges for accepting suggestions")
		return false, nil
	}
	suggestion, err := e.store.GetSuggestion(ctx, suggestionID, cur.translation.Project, cur.translation.Language)
	if errors.Is(err, sql.ErrNoRows) {
		msgs.Error("suggestion not found")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get suggestion: %w", err)
	}
	return e.applySuggestion(ctx, actor, cur, suggestion, msgs)
}

// applySuggestion materializes a suggestion's text through the same save
// path as a direct translation, then consumes the suggestion. The check
// gate may still hold the cursor on the unit; the suggestion is gone
// either way.
func (e *Engine) applySuggestion(ctx context.Context, actor rbac.Actor, cur cursor, suggestion store.Suggestion, msgs *Messages) (bool, error) {
	forms := store.SplitPlural(suggestion.Target)
	advanced, _, err := e.saveTarget(ctx, actor, cur.translation, cur.unit, forms, store.StateTranslated, store.ActionAccept, msgs)
	if err != nil {
		return false, err
	}
	if err := e.store.DeleteSuggestion(ctx, suggestion.ID); err != nil {
		return false, fmt.Errorf("delete suggestion: %w", err)
	}
	msgs.Success("suggestion accepted")
	return advanced, nil
}

func (e *Engine) deleteSuggestion(ctx context.Context, actor rbac.Actor, cur cursor, suggestionID int64, msgs *Messages) error {
	suggestion, err := e.store.GetSuggestion(ctx, suggestionID, cur.translation.Project, cur.translation.Language)
	if errors.Is(err, sql.ErrNoRows) {
		msgs.Error("suggestion not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get suggestion: %w", err)
	}
	if !rbac.CanDeleteSuggestion(actor, suggestion.Author) {
		msgs.Warning("insufficient privileges for deleting suggestions")
		return nil
	}
	if err := e.store.DeleteSuggestion(ctx, suggestion.ID); err != nil {
		return fmt.Errorf("delete suggestion: %w", err)
	}
	msgs.Success("suggestion deleted")
	return nil
}

func (e *Engine) voteSuggestion(ctx context.Context, actor rbac.Actor, cur cursor, suggestionID int64, value int, msgs *Messages) error {
	if !rbac.CanVoteSuggestion(actor) {
		msgs.Warning("insufficient privileges for voting on suggestions")
		return nil
	}
	suggestion, err := e.store.GetSuggestion(ctx, suggestionID, cur.translation.Project, cur.translation.Language)
	if errors.Is(err, sql.ErrNoRows) {
		msgs.Error("suggestion not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get suggestion: %w", err)
	}

	if err := e.store.UpsertVote(ctx, suggestion.ID, actor.Name, value); err != nil {
		return fmt.Errorf("upsert vote: %w", err)
	}
	msgs.Info("vote recorded")

	if !cur.translation.SuggestionVoting || cur.translation.AutoacceptVotes <= 0 {
		return nil
	}
	tally, err := e.store.VoteTally(ctx, suggestion.ID)
	if err != nil {
		return fmt.Errorf("vote tally: %w", err)
	}
	if tally < cur.translation.AutoacceptVotes {
		return nil
	}
	// The threshold itself carries the authority here, not the voter.
	log.Printf("engine: suggestion %d reached %d votes, auto-accepting", suggestion.ID, tally)
	if _, err := e.applySuggestion(ctx, actor, cur, suggestion, msgs); err != nil {
		return err
	}
	return nil
}

func emptyForms(forms []string) bool {
	for _, form := range forms {
		if strings.TrimSpace(form) != "" {
			return false
		}
	}
	return true
}
