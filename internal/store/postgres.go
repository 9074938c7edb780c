package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateSuggestion is returned when an identical pending suggestion
// already exists for the unit.
var ErrDuplicateSuggestion = errors.New("identical suggestion already exists")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetTranslation(ctx context.Context, translationID int64) (Translation, error) {
	var item Translation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project, component, language, locked, commit_message, is_template,
			suggestion_voting, autoaccept_votes
		FROM translations
		WHERE id=$1
	`, translationID).Scan(
		&item.ID, &item.Project, &item.Component, &item.Language, &item.Locked,
		&item.CommitMessage, &item.IsTemplate, &item.SuggestionVoting, &item.AutoacceptVotes,
	)
	if err != nil {
		return Translation{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateCommitMessage(ctx context.Context, translationID int64, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE translations SET commit_message=$2 WHERE id=$1
	`, translationID, message)
	if err != nil {
		return fmt.Errorf("update commit message: %w", err)
	}
	return nil
}

// CommitPending flushes units still marked pending and records the flush as
// a Change carrying the message they were committed under.
func (s *PostgresStore) CommitPending(ctx context.Context, translationID int64, actor, message string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE units SET pending=FALSE WHERE translation_id=$1 AND pending
	`, translationID)
	if err != nil {
		return fmt.Errorf("commit pending units: %w", err)
	}
	flushed, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit pending units: %w", err)
	}
	if flushed == 0 {
		return nil
	}
	return s.InsertChange(ctx, Change{
		TranslationID: translationID,
		Action:        ActionCommit,
		Actor:         actor,
		Target:        message,
	})
}

func (s *PostgresStore) GetUnit(ctx context.Context, unitID int64) (Unit, error) {
	return s.scanUnit(s.db.QueryRowContext(ctx, `
		SELECT id, translation_id, id_hash, source, target, context, position, state, pending, updated_at
		FROM units
		WHERE id=$1
	`, unitID))
}

func (s *PostgresStore) GetUnitByHash(ctx context.Context, translationID int64, idHash string) (Unit, error) {
	return s.scanUnit(s.db.QueryRowContext(ctx, `
		SELECT id, translation_id, id_hash, source, target, context, position, state, pending, updated_at
		FROM units
		WHERE translation_id=$1 AND id_hash=$2
	`, translationID, idHash))
}

func (s *PostgresStore) scanUnit(row *sql.Row) (Unit, error) {
	var item Unit
	err := row.Scan(
		&item.ID, &item.TranslationID, &item.IDHash, &item.Source, &item.Target,
		&item.Context, &item.Position, &item.State, &item.Pending, &item.UpdatedAt,
	)
	if err != nil {
		return Unit{}, err
	}
	return item, nil
}

// FilterUnitIDs returns unit ids of a translation matching the filter, in
// position order. Free-text matching is a substring scan over source, target
// and context; ranked full-text lives in the search package.
func (s *PostgresStore) FilterUnitIDs(ctx context.Context, translationID int64, filter UnitFilter) ([]int64, error) {
	where := []string{"translation_id = $1"}
	args := []any{translationID}

	if len(filter.States) > 0 {
		marks := make([]string, 0, len(filter.States))
		for _, state := range filter.States {
			args = append(args, int(state))
			marks = append(marks, fmt.Sprintf("$%d", len(args)))
		}
		where = append(where, "state IN ("+strings.Join(marks, ", ")+")")
	}
	if text := strings.TrimSpace(filter.Text); text != "" {
		args = append(args, "%"+text+"%")
		mark := fmt.Sprintf("$%d", len(args))
		where = append(where, fmt.Sprintf("(source ILIKE %s OR target ILIKE %s OR context ILIKE %s)", mark, mark, mark))
	}

	query := `
		SELECT id FROM units
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY position, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter unit ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan unit id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unit ids: %w", err)
	}
	return ids, nil
}

// UnitsByIDs fetches the given units and returns them in the order ids were
// supplied. Ids that no longer exist are skipped.
func (s *PostgresStore) UnitsByIDs(ctx context.Context, ids []int64) ([]Unit, error) {
	if len(ids) == 0 {
		return []Unit{}, nil
	}
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, translation_id, id_hash, source, target, context, position, state, pending, updated_at
		FROM units
		WHERE id IN (`+strings.Join(marks, ", ")+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("units by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]Unit, len(ids))
	for rows.Next() {
		var item Unit
		if err := rows.Scan(
			&item.ID, &item.TranslationID, &item.IDHash, &item.Source, &item.Target,
			&item.Context, &item.Position, &item.State, &item.Pending, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		byID[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}

	ordered := make([]Unit, 0, len(byID))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			ordered = append(ordered, item)
		}
	}
	return ordered, nil
}

func (s *PostgresStore) CountUnits(ctx context.Context, translationID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM units WHERE translation_id=$1`, translationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count units: %w", err)
	}
	return count, nil
}

// UpdateUnitTarget stores a new target and state for a unit and marks it
// pending for the next commit. Returns false when the row was already in
// that exact state, so callers can skip statistics and audit records.
func (s *PostgresStore) UpdateUnitTarget(ctx context.Context, unitID int64, target string, state UnitState) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE units
		SET target=$2, state=$3, pending=TRUE, updated_at=NOW()
		WHERE id=$1 AND (target <> $2 OR state <> $3)
	`, unitID, target, int(state))
	if err != nil {
		return false, fmt.Errorf("update unit target: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update unit target: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) UnitExistsWithContext(ctx context.Context, translationID int64, context string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM units WHERE translation_id=$1 AND context=$2)
	`, translationID, context).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check unit context: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) InsertUnit(ctx context.Context, item Unit) (Unit, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO units (translation_id, id_hash, source, target, context, position, state)
		VALUES ($1, $2, $3, $4, $5,
			COALESCE((SELECT MAX(position) FROM units WHERE translation_id=$1), 0) + 1,
			$6)
		RETURNING id, position, updated_at
	`, item.TranslationID, item.IDHash, item.Source, item.Target, item.Context, int(item.State)).
		Scan(&item.ID, &item.Position, &item.UpdatedAt)
	if err != nil {
		return Unit{}, fmt.Errorf("insert unit: %w", err)
	}
	return item, nil
}

// MatchingUnits implements the distinct union of the three related-unit
// sets: same content hash, same source, or same context, scoped to the
// unit's project and language. The unit itself is included so callers can
// classify it alongside the candidates.
func (s *PostgresStore) MatchingUnits(ctx context.Context, unit Unit, project, language string) ([]Unit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT u.id, u.translation_id, u.id_hash, u.source, u.target, u.context,
			u.position, u.state, u.pending, u.updated_at
		FROM units u
		JOIN translations t ON t.id = u.translation_id
		WHERE t.project=$1 AND t.language=$2
			AND (u.id_hash=$3 OR u.source=$4 OR u.context=$5)
		ORDER BY u.id
	`, project, language, unit.IDHash, unit.Source, unit.Context)
	if err != nil {
		return nil, fmt.Errorf("matching units: %w", err)
	}
	defer rows.Close()

	items := make([]Unit, 0)
	for rows.Next() {
		var item Unit
		if err := rows.Scan(
			&item.ID, &item.TranslationID, &item.IDHash, &item.Source, &item.Target,
			&item.Context, &item.Position, &item.State, &item.Pending, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan matching unit: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matching units: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ActiveChecks(ctx context.Context, unitID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind FROM unit_checks WHERE unit_id=$1 ORDER BY kind
	`, unitID)
	if err != nil {
		return nil, fmt.Errorf("active checks: %w", err)
	}
	defer rows.Close()

	kinds := make([]string, 0)
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		kinds = append(kinds, kind)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checks: %w", err)
	}
	return kinds, nil
}

// ReplaceChecks swaps the unit's failing check set wholesale. Check rows are
// recomputed state, never history.
func (s *PostgresStore) ReplaceChecks(ctx context.Context, unitID int64, kinds []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace checks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM unit_checks WHERE unit_id=$1`, unitID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear checks: %w", err)
	}
	for _, kind := range kinds {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO unit_checks (unit_id, kind) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, unitID, kind); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert check: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace checks: %w", err)
	}
	return nil
}

// InsertSuggestion stores a new suggestion. Uniqueness of (unit, target)
// is enforced by the database so concurrent submitters cannot both win.
func (s *PostgresStore) InsertSuggestion(ctx context.Context, item Suggestion) (Suggestion, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suggestions (unit_id, project, language, target, author)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, item.UnitID, item.Project, item.Language, item.Target, item.Author).
		Scan(&item.ID, &item.CreatedAt)
	if isUniqueViolation(err) {
		return Suggestion{}, ErrDuplicateSuggestion
	}
	if err != nil {
		return Suggestion{}, fmt.Errorf("insert suggestion: %w", err)
	}
	return item, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// GetSuggestion looks a suggestion up within its project and language scope,
// so a suggestion id from another translation session cannot be acted on.
func (s *PostgresStore) GetSuggestion(ctx context.Context, suggestionID int64, project, language string) (Suggestion, error) {
	var item Suggestion
	err := s.db.QueryRowContext(ctx, `
		SELECT id, unit_id, project, language, target, author, created_at
		FROM suggestions
		WHERE id=$1 AND project=$2 AND language=$3
	`, suggestionID, project, language).Scan(
		&item.ID, &item.UnitID, &item.Project, &item.Language, &item.Target, &item.Author, &item.CreatedAt,
	)
	if err != nil {
		return Suggestion{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListSuggestions(ctx context.Context, unitID int64) ([]Suggestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, unit_id, project, language, target, author, created_at
		FROM suggestions
		WHERE unit_id=$1
		ORDER BY id
	`, unitID)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	items := make([]Suggestion, 0)
	for rows.Next() {
		var item Suggestion
		if err := rows.Scan(&item.ID, &item.UnitID, &item.Project, &item.Language, &item.Target, &item.Author, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suggestions: %w", err)
	}
	return items, nil
}

// DeleteSuggestion removes the suggestion and its votes.
func (s *PostgresStore) DeleteSuggestion(ctx context.Context, suggestionID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete suggestion: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE suggestion_id=$1`, suggestionID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete votes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM suggestions WHERE id=$1`, suggestionID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete suggestion: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete suggestion: %w", err)
	}
	return nil
}

// UpsertVote stores the user's vote on a suggestion; re-voting overwrites
// the previous direction.
func (s *PostgresStore) UpsertVote(ctx context.Context, suggestionID int64, user string, value int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO votes (suggestion_id, voter, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (suggestion_id, voter) DO UPDATE SET value=EXCLUDED.value
	`, suggestionID, user, value)
	if err != nil {
		return fmt.Errorf("upsert vote: %w", err)
	}
	return nil
}

func (s *PostgresStore) VoteTally(ctx context.Context, suggestionID int64) (int, error) {
	var tally int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(value), 0) FROM votes WHERE suggestion_id=$1
	`, suggestionID).Scan(&tally)
	if err != nil {
		return 0, fmt.Errorf("vote tally: %w", err)
	}
	return tally, nil
}

func (s *PostgresStore) InsertChange(ctx context.Context, item Change) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO changes (translation_id, unit_id, action, actor, target)
		VALUES ($1, NULLIF($2, 0), $3, NULLIF($4, ''), $5)
	`, item.TranslationID, item.UnitID, item.Action, item.Actor, item.Target)
	if err != nil {
		return fmt.Errorf("insert change: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChange(ctx context.Context, changeID, translationID int64) (Change, error) {
	var item Change
	var unitID sql.NullInt64
	var actor sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, translation_id, unit_id, action, actor, target, created_at
		FROM changes
		WHERE id=$1 AND translation_id=$2
	`, changeID, translationID).Scan(
		&item.ID, &item.TranslationID, &unitID, &item.Action, &actor, &item.Target, &item.CreatedAt,
	)
	if err != nil {
		return Change{}, err
	}
	item.UnitID = unitID.Int64
	item.Actor = actor.String
	return item, nil
}

// HasAuthoredChange reports whether any content change with a known actor
// exists for the translation. Used for the no-active-translator nudge.
func (s *PostgresStore) HasAuthoredChange(ctx context.Context, translationID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM changes
			WHERE translation_id=$1 AND actor IS NOT NULL
				AND action IN ($2, $3, $4, $5)
		)
	`, translationID, ActionTranslate, ActionAccept, ActionRevert, ActionMerge).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check authored change: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) IncrementTranslated(ctx context.Context, user string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_name, translated)
		VALUES ($1, 1)
		ON CONFLICT (user_name) DO UPDATE SET translated = user_profiles.translated + 1
	`, user)
	if err != nil {
		return fmt.Errorf("increment translated: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, item Comment) (Comment, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (unit_id, language, author, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, item.UnitID, item.Language, item.Author, item.Body).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID int64) (Comment, error) {
	var item Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, unit_id, language, author, body, created_at
		FROM comments
		WHERE id=$1
	`, commentID).Scan(&item.ID, &item.UnitID, &item.Language, &item.Author, &item.Body, &item.CreatedAt)
	if err != nil {
		return Comment{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// CopyTranslations fills units of the target translation from same-hash
// translated units of another component in the same project and language.
// With overwrite false only untranslated units are touched. Returns the
// number of updated units.
func (s *PostgresStore) CopyTranslations(ctx context.Context, translationID int64, fromComponent string, overwrite bool) (int, error) {
	query := `
		UPDATE units AS u
		SET target=src.target, state=src.state, pending=TRUE, updated_at=NOW()
		FROM units AS src
		JOIN translations AS st ON st.id = src.translation_id
		JOIN translations AS tt ON tt.project = st.project AND tt.language = st.language
		WHERE u.translation_id=$1
			AND tt.id=$1
			AND st.component=$2
			AND src.id_hash = u.id_hash
			AND src.state >= $3
			AND u.target <> src.target`
	if !overwrite {
		query += fmt.Sprintf(" AND u.state = %d", int(StateUntranslated))
	}
	result, err := s.db.ExecContext(ctx, query, translationID, fromComponent, int(StateTranslated))
	if err != nil {
		return 0, fmt.Errorf("copy translations: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("copy translations: %w", err)
	}
	return int(affected), nil
}
