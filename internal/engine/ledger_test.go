package engine

import (
	"context"
	"strings"
	"testing"

	"polyglot/api/internal/rbac"
	"polyglot/api/internal/search"
	"polyglot/api/internal/session"
	"polyglot/api/internal/store"
)

type spamAlways struct{}

func (spamAlways) IsSpam(ctx context.Context, text, remoteAddr string) bool { return true }

func TestSubmitSuggestCreatesSuggestionAndChange(t *testing.T) {
	fs := idsStore(testUnits(), []int64{11, 12, 13})
	var created store.Suggestion
	fs.insertSuggestionFn = func(_ context.Context, item store.Suggestion) (store.Suggestion, error) {
		item.ID = 5
		created = item
		return item, nil
	}
	var change store.Change
	fs.insertChangeFn = func(_ context.Context, item store.Change) error {
		change = item
		return nil
	}
	engine := newTestEngine(fs)

	req := SubmitRequest{Kind: KindSuggest, Target: []string{"Ahoj."}}
	outcome, err := engine.Submit(context.Background(), submitInput(req, 0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if created.UnitID != 11 || created.Target != "Ahoj." || created.Author != "mira" {
		t.Errorf("unexpected suggestion %+v", created)
	}
	if change.Action != store.ActionSuggest {
		t.Errorf("expected suggest change, got %+v", change)
	}
	if !strings.Contains(outcome.Redirect, "offset=1") {
		t.Errorf("expected advance, got %q", outcome.Redirect)
	}
}

func TestSubmitSuggestEmptyStays(t *testing.T) {
	fs := idsStore(testUnits(), []int64{11, 12, 13})
	inserted := false
	fs.insertSuggestionFn = func(_ context.Context, item store.Suggestion) (store.Suggestion, error) {
		inserted = true
		return item, nil
	}
	engine := newTestEngine(fs)

	req := SubmitRequest{Kind: KindSuggest, Target: []string{"  "}}
	outcome, err := engine.Submit(context.Background(), submitInput(req, 0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if inserted {
		t.Error("empty suggestion was stored")
	}
	if outcome.Messages.State() != LevelDanger {
		t.Errorf("expected danger, got %q", outcome.Messages.State())
	}
	if !strings.Contains(outcome.Redirect, "offset=0") {
		t.Errorf("expected stay, got %q", outcome.Redirect)
	}
}

func TestSubmitSuggestAnonymousSpamRejected(t *testing.T) {
	fs := idsStore(testUnits(), []int64{11, 12, 13})
	inserted := false
	fs.insertSuggestionFn = func(_ context.Context, item store.Suggestion) (store.Suggestion, error) {
		inserted = true
		return item, nil
	}
	cache := search.NewCache(session.NewMemoryStore(), search.NewStoreSearcher(fs))
	engine := NewEngine(fs, cache, spamAlways{}, nil)

	in := submitInput(SubmitRequest{Kind: KindSuggest, Target: []string{"buy now"}}, 0)
	in.Actor = rbac.Actor{Role: rbac.RoleGuest}
	outcome, err := engine.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if inserted {
		t.Error("spam suggestion was stored")
	}
	if outcome.Messages.State() != LevelDanger {
		t.Errorf("expected danger, got %q", outcome.Messages.State())
	}
}

func TestSubmitSuggestAuthenticatedSkipsSpamCheck(t *testing.T) {
	fs := idsStore(testUnits(), []int64{11, 12, 13})
	cache := search.NewCache(session.NewMemoryStore(), search.NewStoreSearcher(fs))
	engine := NewEngine(fs, cache, spamAlways{}, nil)

	outcome, err := engine.Submit(context.Background(), submitInput(SubmitRequest{Kind: KindSuggest, Target: []string{"Ahoj."}}, 0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Messages.State() == LevelDanger {
		t.Errorf("authenticated author hit the spam screen: %v", outcome.Messages.Items())
	}
}

func TestSubmitSuggestDuplicateStays(t *testing.T) {
	fs := idsStore(testUnits(), []int64{11, 12, 13})
	fs.insertSuggestionFn = func(_ context.Context, item store.Suggestion) (store.Suggestion, error) {
		return store.Suggestion{}, store.ErrDuplicateSuggestion
	}
	engine := newTestEngine(fs)

	outcome, err := engine.Submit(context.Background(), submitInput(SubmitRequest{Kind: KindSuggest, Target: []string{"Ahoj."}}, 0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Messages.State() != LevelDanger {
		t.Errorf("expected danger, got %q", outcome.Messages.State())
	}
	if !strings.Contains(outcome.Redirect, "offset=0") {
		t.Errorf("expected stay, got %q", outcome.Redirect)
	}
}

func TestSubmitSuggestNudgesWithoutActiveTranslator(t *testing.T) {
	fs := idsStore(testUnits(), []int64{11, 12, 13})
	fs.hasAuthoredChangeFn = func(context.Context, int64) (bool, error) {
		return false, nil
	}
	engine := newTestEngine(fs)

	outcome, err := engine.Submit(context.Background(), submitInput(SubmitRequest{Kind: KindSuggest, Target: []string{"Ahoj."}}, 0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	nudged := false
	for _, item := range outcome.Messages.Items() {
		if item.Level == LevelInfo && strings.Contains(item.Text, "no active translator") {
			nudged = true
		}
	}
	if !nudged {
		t.Errorf("expected nudge, got %v", outcome.Messages.Items())
	}
	// The nudge informs, it does not block.
	if !strings.Contains(outcome.Redirect, "offset=1") {
		t.Errorf("expected advance, got %q", outcome.Redirect)
	}
}

func TestSubmitSuggestNoNudgeWithVoting(t *testing.T) {
	fs := idsStore(testUnits(), []int64{11, 12, 13})
	fs.getTranslationFn = func(_ context.Context, translationID int64) (store.Translation, error) {
		return store.Translation{ID: translationID, Project: "hello", Language: "cs", SuggestionVoting: true, AutoacceptVotes: 3}, nil
	}
	fs.hasAuthoredChangeFn = func(context.Context, int64) (bool, error) {
		t.Error("authored-change lookup should be skipped when voting can accept")
		return false, nil
	}
	engine := newTestEngine(fs)

	if _, err := engine.Submit(context.Background(), submitInput(SubmitRequest{Kind: KindSuggest, Target: []string{"Ahoj."}}, 0)); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestSubmitAcceptSuggestion(t *testing.T) {
	fs := idsStore(testUnits(), []int64{11, 12, 13})
	fs.getSuggestionFn = func(context.Context, int64, string, string) (store.Suggestion, error) {
		return store.Suggestion{ID: 5, UnitID: 11, Target: "Ahoj.", Author: "jon"}, nil
	}
	var savedTarget string
	fs.updateUnitTargetFn = func(_ context.Context, _ int64, target string, _ store.UnitState) (bool, error) {
		savedTarget = target
		return true, nil
	}
	var deleted int64
	fs.deleteSuggestionFn = func(_ context.Context, suggestionID int64) error {
		deleted = suggestionID
		return nil
	}
	var changes []store.Change
	fs.insertChangeFn = func(_ context.Context, item store.Change) error {
		changes = append(changes, item)
		return nil
	}
	engine := newTestEngine(fs)

	outcome, err := engine.Submit(context.Background(), submitInput(SubmitRequest{Kind: KindAccept, SuggestionID: 5}, 0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if savedTarget != "Ahoj." {
		t.Errorf("accepted target %q", savedTarget)
	}
	if deleted != 5 {
		t.Errorf("suggestion %d deleted, want 5", deleted)
	}
	accepts := 0
	for _, change := range changes {
		if change.Action == store.ActionAccept {
			accepts++
		}
	}
	if accepts != 1 {
		t.Errorf("expected exactly one accept change, got %d in %+v", accepts, changes)
	}
	if !strings.Contains(outcome.Redirect, "offset=1") {
		t.Errorf("plain accept advances, got %q", outcome.Redirect)
	}
}

func TestSubmitAcceptEditStays(t *testing.T) {
	fs := idsStore(testUnits(), []int64{11, 12, 13})
	fs.getSuggestionFn = func(context.Context, int64, string, string) (store.Suggestion, error) {
		return store.Suggestion{ID: 5, UnitID: 11, Target: "Ahoj.", Author: "jon"}, nil
	}
	engine := newTestEngine(fs)

	outcome, err := engine.Submit(context.Background(), submitInput(SubmitRequest{Kind: KindAcceptEdit, SuggestionID: 5}, 0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(outcome.Redirect, "offset=0") {
		t.Errorf("accept-and-edit stays, got %q", outcome.Redirect)
	}
}

func TestSubmitVoteUpserts(t *testing.T) {
	fs := idsStore(testUnits(), []int64{11, 12, 13})
	fs.getSuggestionFn = func(context.Context, int64, string, string) (store.Suggestion, error) {
		return store.Suggestion{ID: 5, UnitID: 11, Target: "Ahoj.", Author: "jon"}, nil
	}
	votes := map[string]int{}
	fs.upsertVoteFn = func(_ context.Context, _ int64, user string, value int) error {
		votes[user] = value
		return nil
	}
	engine := newTestEngine(fs)

	if _, err := engine.Submit(context.Background(), submitInput(SubmitRequest{Kind: KindUpvote, SuggestionID: 5}, 0)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := engine.Submit(context.Background(), submitInput(SubmitRequest{Kind: KindDownvote, SuggestionID: 5}, 0)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(votes) != 1 || votes["mira"] != -1 {
		t.Errorf("expected one vote row holding the latest direction, got %v", votes)
	}
}

func TestSubmitVoteAutoAcceptsAtThreshold(t *testing.T) {
	fs := idsStore(testUnits(), []int64{11, 12, 13})
	fs.getTranslationFn = func(_ context.Context, translationID int64) (store.Translation, error) {
		return store.Translation{ID: translationID, Project: "hello", Language: "cs", SuggestionVoting: true, AutoacceptVotes: 2}, nil
	}
	fs.getSuggestionFn = func(context.Context, int64, string, string) (store.Suggestion, error) {
		return store.Suggestion{ID: 5, UnitID: 11, Target: "Ahoj.", Author: "jon"}, nil
	}
	tally := 1
	fs.voteTallyFn = func(context.Context, int64) (int, error) {
		return tally, nil
	}
	var savedTarget string
	fs.updateUnitTargetFn = func(_ context.Context, _ int64, target string, _ store.UnitState) (bool, error) {
		savedTarget = target
		return true, nil
	}
	deleted := false
	fs.deleteSuggestionFn = func(context.Context, int64) error {
		deleted = true
		return nil
	}
	engine := newTestEngine(fs)

	// Below threshold: vote recorded, nothing accepted.
	if _, err := engine.Submit(context.Background(), submitInput(SubmitRequest{Kind: KindUpvote, SuggestionID: 5}, 0)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if deleted || savedTarget != "" {
		t.Fatal("auto-accept fired below threshold")
	}

	tally = 2
	if _, err := engine.Submit(context.Background(), submitInput(SubmitRequest{Kind: KindUpvote, SuggestionID: 5}, 0)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if savedTarget != "Ahoj." || !deleted {
		t.Errorf("expected auto-accept, saved %q deleted %v", savedTarget, deleted)
	}
}

func TestSubmitVoteRequiresAccount(t *testing.T) {
	fs := idsStore(testUnits(), []int64{11, 12, 13})
	voted := false
	fs.upsertVoteFn = func(context.Context, int64, string, int) error {
		voted = true
		return nil
	}
	engine := newTestEngine(fs)

	in := submitInput(SubmitRequest{Kind: KindUpvote, SuggestionID: 5}, 0)
	in.Actor = rbac.Actor{Role: rbac.RoleUser}
	outcome, err := engine.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if voted {
		t.Error("anonymous vote recorded")
	}
	if outcome.Messages.State() != LevelWarning {
		t.Errorf("expected warning, got %q", outcome.Messages.State())
	}
}

func TestSubmitDeleteSuggestionByAuthor(t *testing.T) {
	fs := idsStore(testUnits(), []int64{11, 12, 13})
	fs.getSuggestionFn = func(context.Context, int64, string, string) (store.Suggestion, error) {
		return store.Suggestion{ID: 5, UnitID: 11, Author: "jon"}, nil
	}
	deleted := false
	fs.deleteSuggestionFn = func(context.Context, int64) error {
		deleted = true
		return nil
	}
	engine := newTestEngine(fs)

	in := submitInput(SubmitRequest{Kind: KindDeleteSuggestion, SuggestionID: 5}, 0)
	in.Actor = rbac.Actor{Name: "jon", Role: rbac.RoleUser}
	if _, err := engine.Submit(context.Background(), in); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !deleted {
		t.Error("author could not withdraw own suggestion")
	}

	deleted = false
	in.Actor = rbac.Actor{Name: "someone", Role: rbac.RoleUser}
	outcome, err := engine.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if deleted {
		t.Error("stranger deleted someone else's suggestion")
	}
	if outcome.Messages.State() != LevelWarning {
		t.Errorf("expected warning, got %q", outcome.Messages.State())
	}
}
