package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"polyglot/api/internal/rbac"
	"polyglot/api/internal/store"
)

// AddComment attaches a note to a unit, either source-scoped (global) or
// for one language. Comment endpoints have no unit cursor to fall back on,
// so denials are hard failures.
func (e *Engine) AddComment(ctx context.Context, actor rbac.Actor, unitID int64, language, body string) (store.Comment, error) {
	if !rbac.CanAddComment(actor) {
		return store.Comment{}, permissionDenied("insufficient privileges for adding comments")
	}
	if strings.TrimSpace(body) == "" {
		return store.Comment{}, validationError("comment text is empty")
	}

	unit, err := e.store.GetUnit(ctx, unitID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Comment{}, notFound("string not found")
	}
	if err != nil {
		return store.Comment{}, fmt.Errorf("get unit: %w", err)
	}

	comment := store.Comment{
		UnitID:   unit.ID,
		Language: language,
		Author:   actor.Name,
		Body:     strings.TrimSpace(body),
	}
	created, err := e.store.InsertComment(ctx, comment)
	if err != nil {
		return store.Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	change := store.Change{
		TranslationID: unit.TranslationID,
		UnitID:        unit.ID,
		Action:        store.ActionComment,
		Actor:         actor.Name,
		Target:        created.Body,
	}
	if err := e.store.InsertChange(ctx, change); err != nil {
		return store.Comment{}, fmt.Errorf("record change: %w", err)
	}
	return created, nil
}

func (e *Engine) DeleteComment(ctx context.Context, actor rbac.Actor, commentID int64) error {
	comment, err := e.store.GetComment(ctx, commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("comment not found")
	}
	if err != nil {
		return fmt.Errorf("get comment: %w", err)
	}
	if !rbac.CanDeleteComment(actor, comment.Author) {
		return permissionDenied("insufficient privileges for deleting comments")
	}
	if err := e.store.DeleteComment(ctx, comment.ID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}
