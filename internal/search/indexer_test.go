package search

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"cardvault/api/internal/store"
)

// memoryBackend is the test double standing in for a live text index.
type memoryBackend struct {
	mu       sync.Mutex
	docs     map[string]Document // keyed type/id
	failIDs  map[string]bool
	execReqs []ExecuteRequest
	execRes  *ExecuteResult
	execErr  error
	pingErr  error
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		docs:    map[string]Document{},
		failIDs: map[string]bool{},
	}
}

func key(typ DocumentType, id string) string {
	return string(typ) + "/" + id
}

func (m *memoryBackend) Upsert(ctx context.Context, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		if m.failIDs[doc.ID] {
			return errors.New("synthetic upsert failure")
		}
	}
	for _, doc := range docs {
		m.docs[key(doc.Type, doc.ID)] = doc
	}
	return nil
}

func (m *memoryBackend) Delete(ctx context.Context, typ DocumentType, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, key(typ, id))
	return nil
}

func (m *memoryBackend) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execReqs = append(m.execReqs, req)
	if m.execErr != nil {
		return nil, m.execErr
	}
	if m.execRes != nil {
		return m.execRes, nil
	}
	return &ExecuteResult{Hits: []Hit{}}, nil
}

func (m *memoryBackend) Stats(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Stats{Types: map[DocumentType]TypeStats{}}
	for _, doc := range m.docs {
		ts := stats.Types[doc.Type]
		ts.Count++
		if ts.LastUpdated == nil || doc.UpdatedAt.After(*ts.LastUpdated) {
			updated := doc.UpdatedAt
			ts.LastUpdated = &updated
		}
		stats.Types[doc.Type] = ts
		stats.Total++
	}
	return stats, nil
}

func (m *memoryBackend) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *memoryBackend) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

type staticLister struct {
	cards     []store.Card
	companies []store.Company
	cardsErr  error
}

func (l *staticLister) ListCards(ctx context.Context) ([]store.Card, error) {
	return l.cards, l.cardsErr
}

func (l *staticLister) ListCompanies(ctx context.Context) ([]store.Company, error) {
	return l.companies, nil
}

func TestIndexerUpsertReplacesDocument(t *testing.T) {
	backend := newMemoryBackend()
	ix := NewIndexer(&staticLister{}, backend)
	ctx := context.Background()

	card := sampleCard()
	if err := ix.IndexCard(ctx, card); err != nil {
		t.Fatalf("index card: %v", err)
	}

	card.Notes = "changed"
	card.UpdatedAt = card.UpdatedAt.Add(time.Minute)
	if err := ix.IndexCard(ctx, card); err != nil {
		t.Fatalf("reindex card: %v", err)
	}

	if backend.count() != 1 {
		t.Fatalf("expected 1 document, got %d", backend.count())
	}
	stored := backend.docs[key(DocCard, card.ID)]
	if stored.Content == "" || !strings.Contains(stored.Content, "changed") {
		t.Fatalf("upsert did not fully replace content: %q", stored.Content)
	}
}

func TestIndexerRemoveMissingIsNoOp(t *testing.T) {
	backend := newMemoryBackend()
	ix := NewIndexer(&staticLister{}, backend)
	if err := ix.Remove(context.Background(), DocCard, "never-indexed"); err != nil {
		t.Fatalf("remove of missing id should be a no-op, got %v", err)
	}
}

func TestIndexerReindexAll(t *testing.T) {
	backend := newMemoryBackend()
	lister := &staticLister{}
	for i := 0; i < 120; i++ {
		lister.cards = append(lister.cards, store.Card{
			ID:      "card_" + strconv.Itoa(i),
			OwnerID: "u",
			Name:    "Card " + strconv.Itoa(i),
		})
	}
	lister.companies = []store.Company{{ID: "co_1", Name: "Acme"}}

	ix := NewIndexer(lister, backend)
	indexed, err := ix.ReindexAll(context.Background())
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if indexed != 121 {
		t.Fatalf("indexed = %d, want 121", indexed)
	}
	if backend.count() != 121 {
		t.Fatalf("backend holds %d documents, want 121", backend.count())
	}
}

func TestIndexerReindexAllIsRepeatable(t *testing.T) {
	backend := newMemoryBackend()
	lister := &staticLister{cards: []store.Card{{ID: "c1", OwnerID: "u", Name: "One"}}}
	ix := NewIndexer(lister, backend)

	for i := 0; i < 3; i++ {
		if _, err := ix.ReindexAll(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if backend.count() != 1 {
		t.Fatalf("repeat reindex duplicated documents: %d", backend.count())
	}
}

func TestIndexerReindexSkipsFailingDocuments(t *testing.T) {
	backend := newMemoryBackend()
	backend.failIDs["c2"] = true
	lister := &staticLister{cards: []store.Card{
		{ID: "c1", OwnerID: "u", Name: "One"},
		{ID: "c2", OwnerID: "u", Name: "Two"},
		{ID: "c3", OwnerID: "u", Name: "Three"},
	}}

	ix := NewIndexer(lister, backend)
	indexed, err := ix.ReindexAll(context.Background())
	if err != nil {
		t.Fatalf("per-document failure must not abort the batch: %v", err)
	}
	if indexed != 2 {
		t.Fatalf("indexed = %d, want 2", indexed)
	}
	if backend.count() != 2 {
		t.Fatalf("backend holds %d documents, want 2", backend.count())
	}
}

func TestIndexerReindexAbortsOnListingFailure(t *testing.T) {
	backend := newMemoryBackend()
	lister := &staticLister{cardsErr: errors.New("database gone")}
	ix := NewIndexer(lister, backend)
	if _, err := ix.ReindexAll(context.Background()); err == nil {
		t.Fatal("expected error when the listing query fails")
	}
}

func TestIndexerStats(t *testing.T) {
	backend := newMemoryBackend()
	lister := &staticLister{
		cards:     []store.Card{{ID: "c1", OwnerID: "u", Name: "One"}},
		companies: []store.Company{{ID: "co1", Name: "Acme"}, {ID: "co2", Name: "Globex"}},
	}
	ix := NewIndexer(lister, backend)
	if _, err := ix.ReindexAll(context.Background()); err != nil {
		t.Fatalf("reindex: %v", err)
	}

	stats, err := ix.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("total = %d, want 3", stats.Total)
	}
	if stats.Types[DocCard].Count != 1 || stats.Types[DocCompany].Count != 2 {
		t.Fatalf("per-type counts = %+v", stats.Types)
	}
}

func TestIndexerMirrorFailureDoesNotFailWrite(t *testing.T) {
	primary := newMemoryBackend()
	mirror := newMemoryBackend()
	mirror.failIDs["c1"] = true

	ix := NewIndexer(&staticLister{}, primary, mirror)
	if err := ix.IndexCard(context.Background(), store.Card{ID: "c1", OwnerID: "u", Name: "One"}); err != nil {
		t.Fatalf("mirror failure must not surface: %v", err)
	}
	if primary.count() != 1 {
		t.Fatalf("primary missing document")
	}
}
