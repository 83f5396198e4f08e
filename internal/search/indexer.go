package search

import (
	"context"
	"fmt"
	"log"
	"sync"

	"cardvault/api/internal/store"
)

const (
	reindexWorkers   = 4
	reindexBatchSize = 50
)

// EntityLister supplies every indexable entity from the system of record.
type EntityLister interface {
	ListCards(ctx context.Context) ([]store.Card, error)
	ListCompanies(ctx context.Context) ([]store.Company, error)
}

// Indexer keeps the text index consistent with the primary data store. The
// first backend is authoritative; additional backends (the ranked engine
// mirror) receive the same writes on a best-effort basis.
type Indexer struct {
	backends []Backend
	lister   EntityLister
}

// NewIndexer creates an indexer over one or more backends. Backends must be
// non-empty; the first entry is the source of truth for stats.
func NewIndexer(lister EntityLister, backends ...Backend) *Indexer {
	return &Indexer{backends: backends, lister: lister}
}

// IndexCard transforms and upserts a single card. The upsert fully replaces
// any prior document with the same id.
func (ix *Indexer) IndexCard(ctx context.Context, card store.Card) error {
	return ix.upsert(ctx, []Document{TransformCard(card)})
}

// IndexCompany transforms and upserts a single company.
func (ix *Indexer) IndexCompany(ctx context.Context, company store.Company) error {
	return ix.upsert(ctx, []Document{TransformCompany(company)})
}

// IndexDocuments upserts already-transformed documents in one batch.
func (ix *Indexer) IndexDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	return ix.upsert(ctx, docs)
}

// Remove deletes a document by id within its type partition. Removing an id
// that was never indexed is a no-op.
func (ix *Indexer) Remove(ctx context.Context, typ DocumentType, id string) error {
	var firstErr error
	for i, backend := range ix.backends {
		if err := backend.Delete(ctx, typ, id); err != nil {
			if i == 0 {
				firstErr = fmt.Errorf("delete %s/%s: %w", typ, id, err)
				continue
			}
			log.Printf("search: mirror delete %s/%s: %v", typ, id, err)
		}
	}
	return firstErr
}

// ReindexAll fetches every entity of every indexed type, transforms it, and
// upserts in bounded batches. It ensures documents are present and current;
// it does not delete documents for entities that no longer exist, so callers
// needing exact parity must run a removal pass separately. Only a failed
// listing query aborts; individual batch failures are logged and skipped.
func (ix *Indexer) ReindexAll(ctx context.Context) (int, error) {
	cards, err := ix.lister.ListCards(ctx)
	if err != nil {
		return 0, fmt.Errorf("list cards: %w", err)
	}
	companies, err := ix.lister.ListCompanies(ctx)
	if err != nil {
		return 0, fmt.Errorf("list companies: %w", err)
	}

	docs := make([]Document, 0, len(cards)+len(companies))
	for _, card := range cards {
		docs = append(docs, TransformCard(card))
	}
	for _, company := range companies {
		docs = append(docs, TransformCompany(company))
	}

	batches := make(chan []Document)
	var wg sync.WaitGroup
	var mu sync.Mutex
	indexed := 0

	for i := 0; i < reindexWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batches {
				ok := len(batch)
				if err := ix.upsert(ctx, batch); err != nil {
					// retry one by one so a single bad document cannot
					// take down its whole batch
					ok = 0
					for _, doc := range batch {
						if err := ix.upsert(ctx, []Document{doc}); err != nil {
							log.Printf("search: reindex %s/%s skipped: %v", doc.Type, doc.ID, err)
							continue
						}
						ok++
					}
				}
				mu.Lock()
				indexed += ok
				mu.Unlock()
			}
		}()
	}

	for start := 0; start < len(docs); start += reindexBatchSize {
		end := start + reindexBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batches <- docs[start:end]
	}
	close(batches)
	wg.Wait()

	return indexed, nil
}

// Stats returns per-type document counts from the authoritative backend.
func (ix *Indexer) Stats(ctx context.Context) (Stats, error) {
	return ix.backends[0].Stats(ctx)
}

func (ix *Indexer) upsert(ctx context.Context, docs []Document) error {
	var firstErr error
	for i, backend := range ix.backends {
		if err := backend.Upsert(ctx, docs); err != nil {
			if i == 0 {
				firstErr = fmt.Errorf("upsert %d documents: %w", len(docs), err)
				continue
			}
			log.Printf("search: mirror upsert of %d documents: %v", len(docs), err)
		}
	}
	return firstErr
}
