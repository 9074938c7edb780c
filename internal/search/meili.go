package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"polyglot/api/internal/store"
)

const idxUnits = "polyglot_units"

// UnitRecord is the data indexed per unit.
type UnitRecord struct {
	ID            int64  `json:"id"`
	TranslationID int64  `json:"translationId"`
	Source        string `json:"source"`
	Target        string `json:"target"`
	Context       string `json:"context"`
	State         int    `json:"state"`
	Position      int    `json:"position"`
}

// Meili provides ranked full-text unit search via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the unit index. The
// returned instance keeps monitoring health in the background; callers must
// check Healthy before relying on it.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxUnits,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxUnits, err)
	}

	index := m.client.Index(idxUnits)
	filterable := []interface{}{"translationId", "state"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxUnits, err)
	}
	searchable := []string{"source", "target", "context"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxUnits, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// SearchUnitIDs runs the free-text part of a query scoped to one
// translation, honoring any state filters, and returns ids ranked by
// relevance.
func (m *Meili) SearchUnitIDs(translationID int64, q UnitQuery) ([]int64, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	filter := fmt.Sprintf("translationId = %d", translationID)
	if len(q.States) > 0 {
		stateFilter := ""
		for i, state := range q.States {
			if i > 0 {
				stateFilter += " OR "
			}
			stateFilter += fmt.Sprintf("state = %d", int(state))
		}
		filter += " AND (" + stateFilter + ")"
	}

	resp, err := m.client.Index(idxUnits).Search(q.Text, &meili.SearchRequest{
		Filter: filter,
		Limit:  10000,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	ids := make([]int64, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if id, ok := hitID(hit); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func hitID(hit meili.Hit) (int64, bool) {
	raw, ok := hit["id"]
	if !ok {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, false
	}
	return id, true
}

// IndexUnit adds or updates one unit in the index.
func (m *Meili) IndexUnit(unit store.Unit) error {
	_, err := m.client.Index(idxUnits).AddDocuments([]UnitRecord{unitRecord(unit)}, nil)
	return err
}

// IndexUnits bulk-indexes units.
func (m *Meili) IndexUnits(units []store.Unit) error {
	if len(units) == 0 {
		return nil
	}
	records := make([]UnitRecord, len(units))
	for i, unit := range units {
		records[i] = unitRecord(unit)
	}
	_, err := m.client.Index(idxUnits).AddDocuments(records, nil)
	return err
}

// DeleteUnit removes a unit from the index.
func (m *Meili) DeleteUnit(unitID int64) error {
	_, err := m.client.Index(idxUnits).DeleteDocument(fmt.Sprintf("%d", unitID), nil)
	return err
}

func unitRecord(unit store.Unit) UnitRecord {
	return UnitRecord{
		ID:            unit.ID,
		TranslationID: unit.TranslationID,
		Source:        unit.Source,
		Target:        unit.Target,
		Context:       unit.Context,
		State:         int(unit.State),
		Position:      unit.Position,
	}
}
