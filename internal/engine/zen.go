package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"polyglot/api/internal/rbac"
	"polyglot/api/internal/search"
	"polyglot/api/internal/store"
)

// zenWindowSize is how many units one zen page loads at a time.
const zenWindowSize = 20

// ZenView is one window of the batch-editing session.
type ZenView struct {
	Units       []store.Unit
	Offset      int
	Total       int
	LastSection bool
	Search      search.Result
}

// ZenStatus is the structured payload the batch save endpoint returns to
// programmatic callers.
type ZenStatus struct {
	Messages   string `json:"messages"`
	State      string `json:"state"`
	ResultHash string `json:"resultHash,omitempty"`
}

type ZenSaveInput struct {
	SessionID     string
	Actor         rbac.Actor
	TranslationID int64
	UnitID        int64
	Target        []string
	State         store.UnitState
	Honeypot      bool
	RemoteAddr    string
}

// ZenWindow loads a slice of the cached id list for batch editing. An
// empty search renders as an already-finished session rather than an
// error.
func (e *Engine) ZenWindow(ctx context.Context, in SessionInput) (ZenView, error) {
	translation, err := e.store.GetTranslation(ctx, in.TranslationID)
	if err != nil {
		return ZenView{}, e.mapStoreErr("get translation", err)
	}

	result, err := e.cache.Resolve(ctx, in.SessionID, translation, in.Params, e.now())
	if errors.Is(err, search.ErrEmptyResult) {
		return ZenView{LastSection: true}, nil
	}
	if err != nil {
		return ZenView{}, fmt.Errorf("resolve search: %w", err)
	}

	offset := 0
	if in.Params.HasOffset && in.Params.Offset > 0 {
		offset = in.Params.Offset
	}
	if offset >= len(result.IDs) {
		return ZenView{Offset: offset, Total: len(result.IDs), LastSection: true, Search: result}, nil
	}

	end := offset + zenWindowSize
	if end > len(result.IDs) {
		end = len(result.IDs)
	}
	units, err := e.store.UnitsByIDs(ctx, result.IDs[offset:end])
	if err != nil {
		return ZenView{}, fmt.Errorf("load units: %w", err)
	}

	return ZenView{
		Units:       units,
		Offset:      offset,
		Total:       len(result.IDs),
		LastSection: end >= len(result.IDs),
		Search:      result,
	}, nil
}

// SaveZen persists one unit from a batch page. All failures collapse into
// the status payload; only infrastructure errors propagate.
func (e *Engine) SaveZen(ctx context.Context, in ZenSaveInput) (ZenStatus, error) {
	msgs := &Messages{}

	if in.Honeypot {
		log.Printf("engine: honeypot tripped on zen save for unit %d from %s", in.UnitID, in.RemoteAddr)
		return ZenStatus{State: LevelSuccess}, nil
	}

	translation, err := e.store.GetTranslation(ctx, in.TranslationID)
	if err != nil {
		return ZenStatus{}, e.mapStoreErr("get translation", err)
	}
	if translation.Locked {
		msgs.Error("this translation is currently locked")
		return zenStatus(msgs, ""), nil
	}
	if !rbac.CanTranslate(in.Actor) {
		msgs.Error("insufficient privileges for saving translations")
		return zenStatus(msgs, ""), nil
	}

	unit, err := e.store.GetUnit(ctx, in.UnitID)
	if errors.Is(err, sql.ErrNoRows) {
		msgs.Error("string no longer exists")
		return zenStatus(msgs, ""), nil
	}
	if err != nil {
		return ZenStatus{}, fmt.Errorf("get unit: %w", err)
	}
	if unit.TranslationID != translation.ID {
		msgs.Error("string does not belong to this translation")
		return zenStatus(msgs, ""), nil
	}

	advanced, saved, err := e.saveTarget(ctx, in.Actor, translation, unit, in.Target, in.State, store.ActionTranslate, msgs)
	if err != nil {
		return ZenStatus{}, err
	}
	if advanced {
		msgs.Success("translation saved")
	}
	return zenStatus(msgs, store.TargetHash(saved.Target)), nil
}

func zenStatus(msgs *Messages, resultHash string) ZenStatus {
	return ZenStatus{
		Messages:   msgs.Render(),
		State:      msgs.State(),
		ResultHash: resultHash,
	}
}
