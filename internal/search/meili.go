package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxCards     = "cardvault_cards"
	idxCompanies = "cardvault_companies"
)

// Meili implements Backend via Meilisearch. It mirrors index writes and
// serves simple-mode queries from Meilisearch's ranked engine; it cannot
// evaluate the compiled mini-language, so Execute matches on the sanitized
// raw text with the engine's own implicit-AND semantics.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the card and company
// indexes. The backend starts unhealthy if the initial connection fails and
// recovers via the background health loop.
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
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	for _, uid := range []string{idxCards, idxCompanies} {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", uid, err)
		}

		index := m.client.Index(uid)
		filterable := []interface{}{"type", "metadata"}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", uid, err)
		}
		searchable := []string{"title", "content", "highlight"}
		if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", uid, err)
		}
		sortable := []string{"createdAt", "updatedAt", "title"}
		if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
			log.Printf("search: update sortable attrs for %s: %v", uid, err)
		}
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
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Ping reports the last observed health state.
func (m *Meili) Ping(ctx context.Context) error {
	if !m.healthy.Load() {
		return fmt.Errorf("meilisearch unhealthy")
	}
	return nil
}

func indexFor(typ DocumentType) string {
	if typ == DocCompany {
		return idxCompanies
	}
	return idxCards
}

// Upsert mirrors documents into their per-type index. AddDocuments replaces
// by primary key, so repeats are safe.
func (m *Meili) Upsert(ctx context.Context, docs []Document) error {
	if !m.healthy.Load() {
		return fmt.Errorf("meilisearch unhealthy")
	}
	byIndex := map[string][]Document{}
	for _, doc := range docs {
		uid := indexFor(doc.Type)
		byIndex[uid] = append(byIndex[uid], doc)
	}
	for uid, batch := range byIndex {
		if _, err := m.client.Index(uid).AddDocuments(batch, nil); err != nil {
			return fmt.Errorf("meilisearch add documents to %s: %w", uid, err)
		}
	}
	return nil
}

// Delete removes one document; deleting an unknown id is accepted by
// Meilisearch as a no-op task.
func (m *Meili) Delete(ctx context.Context, typ DocumentType, id string) error {
	if !m.healthy.Load() {
		return fmt.Errorf("meilisearch unhealthy")
	}
	if _, err := m.client.Index(indexFor(typ)).DeleteDocument(id, nil); err != nil {
		return fmt.Errorf("meilisearch delete %s/%s: %w", typ, id, err)
	}
	return nil
}

// Execute searches the ranked engine with the sanitized raw text.
func (m *Meili) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if strings.TrimSpace(req.Raw) == "" {
		return &ExecuteResult{Hits: []Hit{}}, nil
	}

	var queries []*meili.SearchRequest
	for _, typ := range []DocumentType{DocCard, DocCompany} {
		if req.Type != "" && req.Type != typ {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:         indexFor(typ),
			Query:            req.Raw,
			Limit:            int64(req.Limit),
			Offset:           int64(req.Offset),
			ShowRankingScore: true,
		}
		if req.Highlight {
			sr.AttributesToHighlight = []string{"highlight"}
			sr.HighlightPreTag = req.HighlightPre
			sr.HighlightPostTag = req.HighlightEnd
		}
		if filters := meiliFilters(req, typ); len(filters) > 0 {
			sr.Filter = filters
		}
		var sorts []string
		for _, sp := range req.Sort {
			if sp.Field == "rank" {
				continue // relevance order is the engine default
			}
			sorts = append(sorts, sp.Field+":"+strings.ToLower(sp.Direction))
		}
		if len(sorts) > 0 {
			sr.Sort = sorts
		}
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return &ExecuteResult{Hits: []Hit{}}, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	out := &ExecuteResult{Hits: []Hit{}}
	for _, sr := range resp.Results {
		out.Total += int(sr.EstimatedTotalHits)
		typ := DocCard
		if sr.IndexUID == idxCompanies {
			typ = DocCompany
		}
		for _, hit := range sr.Hits {
			out.Hits = append(out.Hits, hitToResult(hit, typ))
		}
	}
	return out, nil
}

// meiliFilters renders the filter expressions for one index. The owner
// restriction applies to the cards index only; company documents are shared
// and carry no ownerId metadata.
func meiliFilters(req ExecuteRequest, typ DocumentType) []string {
	var filters []string
	if req.OwnerID != "" && typ == DocCard {
		filters = append(filters, fmt.Sprintf("metadata.ownerId = %q", req.OwnerID))
	}
	for _, f := range req.Filters {
		filters = append(filters, fmt.Sprintf("metadata.%s = %q", f.Field, f.Value))
	}
	return filters
}

// Stats sums per-index document counts. Meilisearch does not report a
// last-updated timestamp, so it is left unset.
func (m *Meili) Stats(ctx context.Context) (Stats, error) {
	if !m.healthy.Load() {
		return Stats{}, fmt.Errorf("meilisearch unhealthy")
	}
	stats := Stats{Types: map[DocumentType]TypeStats{}}
	for typ, uid := range map[DocumentType]string{DocCard: idxCards, DocCompany: idxCompanies} {
		idxStats, err := m.client.Index(uid).GetStats()
		if err != nil {
			return Stats{}, fmt.Errorf("meilisearch stats for %s: %w", uid, err)
		}
		count := int(idxStats.NumberOfDocuments)
		stats.Types[typ] = TypeStats{Count: count}
		stats.Total += count
	}
	return stats, nil
}

func hitToResult(hit meili.Hit, typ DocumentType) Hit {
	h := Hit{
		ID:      decodeString(hit, "id"),
		Type:    typ,
		Title:   decodeString(hit, "title"),
		Snippet: decodeFormattedString(hit, "highlight"),
	}
	var score float64
	if raw, ok := hit["_rankingScore"]; ok {
		_ = json.Unmarshal(raw, &score)
	}
	h.Rank = score
	if raw, ok := hit["metadata"]; ok {
		_ = json.Unmarshal(raw, &h.Metadata)
	}
	return h
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
