package engine

import (
	"context"
	"fmt"
	"testing"

	"polyglot/api/internal/search"
	"polyglot/api/internal/store"
)

func zenStore(count int) *fakeStore {
	ids := make([]int64, count)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return &fakeStore{
		filterUnitIDsFn: func(context.Context, int64, store.UnitFilter) ([]int64, error) {
			return ids, nil
		},
		getUnitFn: func(_ context.Context, unitID int64) (store.Unit, error) {
			return store.Unit{ID: unitID, TranslationID: 1, Source: fmt.Sprintf("String %d.", unitID)}, nil
		},
		unitsByIDsFn: func(_ context.Context, ids []int64) ([]store.Unit, error) {
			units := make([]store.Unit, len(ids))
			for i, id := range ids {
				units[i] = store.Unit{ID: id, TranslationID: 1}
			}
			return units, nil
		},
	}
}

func TestZenWindowSlices(t *testing.T) {
	engine := newTestEngine(zenStore(25))

	view, err := engine.ZenWindow(context.Background(), SessionInput{
		SessionID:     "sess-1",
		TranslationID: 1,
		Params:        search.Params{},
	})
	if err != nil {
		t.Fatalf("zen window: %v", err)
	}
	if len(view.Units) != 20 {
		t.Errorf("expected 20 units, got %d", len(view.Units))
	}
	if view.Total != 25 || view.LastSection {
		t.Errorf("expected total 25 and more to come, got total %d last %v", view.Total, view.LastSection)
	}

	view, err = engine.ZenWindow(context.Background(), SessionInput{
		SessionID:     "sess-1",
		TranslationID: 1,
		Params:        search.Params{Offset: 20, HasOffset: true},
	})
	if err != nil {
		t.Fatalf("zen window: %v", err)
	}
	if len(view.Units) != 5 || !view.LastSection {
		t.Errorf("expected trailing 5 units, got %d last %v", len(view.Units), view.LastSection)
	}
	if view.Units[0].ID != 21 {
		t.Errorf("window starts at unit %d, want 21", view.Units[0].ID)
	}
}

func TestZenWindowEmptySearch(t *testing.T) {
	fs := &fakeStore{
		filterUnitIDsFn: func(context.Context, int64, store.UnitFilter) ([]int64, error) {
			return nil, nil
		},
	}
	engine := newTestEngine(fs)

	view, err := engine.ZenWindow(context.Background(), SessionInput{SessionID: "sess-1", TranslationID: 1})
	if err != nil {
		t.Fatalf("zen window: %v", err)
	}
	if len(view.Units) != 0 || !view.LastSection {
		t.Errorf("empty search should render as a finished session, got %+v", view)
	}
}

func TestSaveZenSuccess(t *testing.T) {
	fs := zenStore(5)
	var savedTarget string
	fs.updateUnitTargetFn = func(_ context.Context, _ int64, target string, _ store.UnitState) (bool, error) {
		savedTarget = target
		return true, nil
	}
	engine := newTestEngine(fs)

	status, err := engine.SaveZen(context.Background(), ZenSaveInput{
		SessionID:     "sess-1",
		Actor:         translator(),
		TranslationID: 1,
		UnitID:        3,
		Target:        []string{"Třetí řetězec."},
		State:         store.StateTranslated,
	})
	if err != nil {
		t.Fatalf("save zen: %v", err)
	}
	if status.State != LevelSuccess {
		t.Errorf("expected success, got %q with %q", status.State, status.Messages)
	}
	if status.ResultHash != store.TargetHash(savedTarget) {
		t.Errorf("result hash %q does not match saved target", status.ResultHash)
	}
}

func TestSaveZenCheckRegression(t *testing.T) {
	engine := newTestEngine(zenStore(5))

	// Source ends with a stop, the target does not.
	status, err := engine.SaveZen(context.Background(), ZenSaveInput{
		SessionID:     "sess-1",
		Actor:         translator(),
		TranslationID: 1,
		UnitID:        3,
		Target:        []string{"Třetí"},
		State:         store.StateTranslated,
	})
	if err != nil {
		t.Fatalf("save zen: %v", err)
	}
	if status.State != LevelDanger {
		t.Errorf("expected danger, got %q", status.State)
	}
}

func TestSaveZenLocked(t *testing.T) {
	fs := zenStore(5)
	fs.getTranslationFn = func(_ context.Context, translationID int64) (store.Translation, error) {
		return store.Translation{ID: translationID, Locked: true}, nil
	}
	saved := false
	fs.updateUnitTargetFn = func(context.Context, int64, string, store.UnitState) (bool, error) {
		saved = true
		return true, nil
	}
	engine := newTestEngine(fs)

	status, err := engine.SaveZen(context.Background(), ZenSaveInput{
		SessionID:     "sess-1",
		Actor:         translator(),
		TranslationID: 1,
		UnitID:        3,
		Target:        []string{"x"},
	})
	if err != nil {
		t.Fatalf("save zen: %v", err)
	}
	if saved {
		t.Error("locked translation accepted a zen save")
	}
	if status.State != LevelDanger {
		t.Errorf("expected danger, got %q", status.State)
	}
}

func TestSaveZenHoneypot(t *testing.T) {
	fs := zenStore(5)
	saved := false
	fs.updateUnitTargetFn = func(context.Context, int64, string, store.UnitState) (bool, error) {
		saved = true
		return true, nil
	}
	engine := newTestEngine(fs)

	status, err := engine.SaveZen(context.Background(), ZenSaveInput{
		SessionID:     "sess-1",
		Actor:         translator(),
		TranslationID: 1,
		UnitID:        3,
		Target:        []string{"x"},
		Honeypot:      true,
	})
	if err != nil {
		t.Fatalf("save zen: %v", err)
	}
	if saved {
		t.Error("honeypot request saved a target")
	}
	if status.State != LevelSuccess || status.Messages != "" {
		t.Errorf("honeypot should look like a quiet success, got %+v", status)
	}
}

func TestSaveZenForeignUnit(t *testing.T) {
	fs := zenStore(5)
	fs.getUnitFn = func(_ context.Context, unitID int64) (store.Unit, error) {
		return store.Unit{ID: unitID, TranslationID: 99}, nil
	}
	engine := newTestEngine(fs)

	status, err := engine.SaveZen(context.Background(), ZenSaveInput{
		SessionID:     "sess-1",
		Actor:         translator(),
		TranslationID: 1,
		UnitID:        3,
		Target:        []string{"x"},
	})
	if err != nil {
		t.Fatalf("save zen: %v", err)
	}
	if status.State != LevelDanger {
		t.Errorf("expected danger, got %q", status.State)
	}
}
