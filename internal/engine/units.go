package engine

import (
	"context"
	"fmt"
	"strings"

	"polyglot/api/internal/rbac"
	"polyglot/api/internal/store"
)

// NewUnit adds a string to a template translation. Creation has no editing
// cursor, so permission failures abort the request outright.
func (e *Engine) NewUnit(ctx context.Context, actor rbac.Actor, translationID int64, key string, sourceForms []string) (store.Unit, error) {
	if !rbac.CanAddUnit(actor) {
		return store.Unit{}, permissionDenied("insufficient privileges for adding strings")
	}

	translation, err := e.store.GetTranslation(ctx, translationID)
	if err != nil {
		return store.Unit{}, e.mapStoreErr("get translation", err)
	}
	if !translation.IsTemplate {
		return store.Unit{}, validationError("new strings can only be added to the template")
	}
	if translation.Locked {
		return store.Unit{}, validationError("this translation is currently locked")
	}

	key = strings.TrimSpace(key)
	if key == "" || emptyForms(sourceForms) {
		return store.Unit{}, validationError("both key and source text are required")
	}

	exists, err := e.store.UnitExistsWithContext(ctx, translation.ID, key)
	if err != nil {
		return store.Unit{}, fmt.Errorf("check existing key: %w", err)
	}
	if exists {
		return store.Unit{}, validationError(fmt.Sprintf("a string with key %q already exists", key))
	}

	source := store.JoinPlural(sourceForms)
	unit := store.Unit{
		TranslationID: translation.ID,
		IDHash:        store.ContentHash(key, source),
		Source:        source,
		Context:       key,
		State:         store.StateTranslated,
	}
	created, err := e.store.InsertUnit(ctx, unit)
	if err != nil {
		return store.Unit{}, fmt.Errorf("insert unit: %w", err)
	}

	change := store.Change{
		TranslationID: translation.ID,
		UnitID:        created.ID,
		Action:        store.ActionNewUnit,
		Actor:         actor.Name,
		Target:        source,
	}
	if err := e.store.InsertChange(ctx, change); err != nil {
		return store.Unit{}, fmt.Errorf("record change: %w", err)
	}
	if e.indexer != nil {
		e.indexer.IndexUnit(created)
	}
	return created, nil
}

// AutoTranslate copies already-translated targets from same-hash units in
// another component. Reports how many units were filled in.
func (e *Engine) AutoTranslate(ctx context.Context, actor rbac.Actor, translationID int64, fromComponent string, overwrite bool) (int, error) {
	if !rbac.CanAutoTranslate(actor) {
		return 0, permissionDenied("insufficient privileges for automatic translation")
	}

	translation, err := e.store.GetTranslation(ctx, translationID)
	if err != nil {
		return 0, e.mapStoreErr("get translation", err)
	}
	if translation.Locked {
		return 0, validationError("this translation is currently locked")
	}
	if fromComponent == "" || fromComponent == translation.Component {
		return 0, validationError("automatic translation needs a different source component")
	}

	count, err := e.store.CopyTranslations(ctx, translation.ID, fromComponent, overwrite)
	if err != nil {
		return 0, fmt.Errorf("copy translations: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	change := store.Change{
		TranslationID: translation.ID,
		Action:        store.ActionAutoTranslate,
		Actor:         actor.Name,
		Target:        fmt.Sprintf("%d strings from %s", count, fromComponent),
	}
	if err := e.store.InsertChange(ctx, change); err != nil {
		return count, fmt.Errorf("record change: %w", err)
	}
	return count, nil
}
