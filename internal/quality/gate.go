package quality

import (
	"context"
	"fmt"

	"polyglot/api/internal/store"
)

// CheckStore persists the failing check set per unit.
type CheckStore interface {
	ActiveChecks(ctx context.Context, unitID int64) ([]string, error)
	ReplaceChecks(ctx context.Context, unitID int64, kinds []string) error
}

// Gate evaluates checks around a unit save. The ordering is deliberate:
// the caller snapshots the failing set, persists the new target, then calls
// Evaluate on the saved unit. The write stands even when new failures
// appear; the caller reports the regression and keeps the cursor on the
// unit instead of advancing.
type Gate struct {
	store    CheckStore
	registry *Registry
}

func NewGate(store CheckStore) *Gate {
	return &Gate{store: store, registry: NewRegistry()}
}

func (g *Gate) Registry() *Registry {
	return g.registry
}

// Snapshot captures the unit's failing checks before a save.
func (g *Gate) Snapshot(ctx context.Context, unitID int64) (map[string]struct{}, error) {
	kinds, err := g.store.ActiveChecks(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("snapshot checks: %w", err)
	}
	old := make(map[string]struct{}, len(kinds))
	for _, kind := range kinds {
		old[kind] = struct{}{}
	}
	return old, nil
}

// Evaluate recomputes the failing set for the saved unit, persists it, and
// returns the checks that were not failing before the save. An empty result
// means the write passed the gate.
func (g *Gate) Evaluate(ctx context.Context, unit store.Unit, before map[string]struct{}) ([]string, error) {
	kinds := g.registry.Evaluate(unit)
	if err := g.store.ReplaceChecks(ctx, unit.ID, kinds); err != nil {
		return nil, fmt.Errorf("persist checks: %w", err)
	}

	var introduced []string
	for _, kind := range kinds {
		if _, existed := before[kind]; !existed {
			introduced = append(introduced, kind)
		}
	}
	return introduced, nil
}
