// Package app wires the HTTP surface to the store, the search pipeline, and
// the enrichment client.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"cardvault/api/internal/enrich"
	"cardvault/api/internal/search"
	"cardvault/api/internal/store"
)

// CardStore is the subset of the data store the service needs.
type CardStore interface {
	CreateCard(ctx context.Context, card store.Card) (store.Card, error)
	GetCard(ctx context.Context, id string) (store.Card, error)
	UpdateCard(ctx context.Context, card store.Card) (store.Card, error)
	DeleteCard(ctx context.Context, id string) error
	ListCards(ctx context.Context) ([]store.Card, error)
	ListCardsByOwner(ctx context.Context, ownerID string) ([]store.Card, error)
	LinkCompany(ctx context.Context, cardID, companyID string) error

	CreateCompany(ctx context.Context, company store.Company) (store.Company, error)
	GetCompany(ctx context.Context, id string) (store.Company, error)
	FindCompanyByName(ctx context.Context, name string) (store.Company, error)
	UpdateCompany(ctx context.Context, company store.Company) (store.Company, error)
	DeleteCompany(ctx context.Context, id string) error
	ListCompanies(ctx context.Context) ([]store.Company, error)
}

// Enricher looks up external company data. Nil-able: enrichment is optional.
type Enricher interface {
	Lookup(ctx context.Context, query string) (enrich.CompanyProfile, error)
}

// Service implements the application operations behind the HTTP handlers.
type Service struct {
	store    CardStore
	searcher *search.Service
	indexer  *search.Indexer
	enricher Enricher
}

func New(store CardStore, searcher *search.Service, indexer *search.Indexer, enricher Enricher) *Service {
	return &Service{store: store, searcher: searcher, indexer: indexer, enricher: enricher}
}

// CreateCard stores a card and indexes it. Index failures are logged, not
// surfaced: the card exists and a later reindex repairs the index.
func (s *Service) CreateCard(ctx context.Context, card store.Card) (store.Card, error) {
	if card.OwnerID == "" {
		return store.Card{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "ownerId is required", nil)
	}
	created, err := s.store.CreateCard(ctx, card)
	if err != nil {
		return store.Card{}, fmt.Errorf("create card: %w", err)
	}
	if err := s.indexer.IndexCard(ctx, created); err != nil {
		log.Printf("app: index card %s: %v", created.ID, err)
	}
	return created, nil
}

func (s *Service) GetCard(ctx context.Context, ownerID, id string) (store.Card, error) {
	card, err := s.store.GetCard(ctx, id)
	if err != nil {
		return store.Card{}, mapStoreErr(err, "card")
	}
	if ownerID != "" && card.OwnerID != ownerID {
		return store.Card{}, domainError(http.StatusNotFound, "NOT_FOUND", "card not found", nil)
	}
	return card, nil
}

func (s *Service) UpdateCard(ctx context.Context, ownerID string, card store.Card) (store.Card, error) {
	if _, err := s.GetCard(ctx, ownerID, card.ID); err != nil {
		return store.Card{}, err
	}
	updated, err := s.store.UpdateCard(ctx, card)
	if err != nil {
		return store.Card{}, mapStoreErr(err, "card")
	}
	if err := s.indexer.IndexCard(ctx, updated); err != nil {
		log.Printf("app: index card %s: %v", updated.ID, err)
	}
	return updated, nil
}

func (s *Service) DeleteCard(ctx context.Context, ownerID, id string) error {
	if _, err := s.GetCard(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.store.DeleteCard(ctx, id); err != nil {
		return mapStoreErr(err, "card")
	}
	if err := s.indexer.Remove(ctx, search.DocCard, id); err != nil {
		log.Printf("app: remove card %s from index: %v", id, err)
	}
	return nil
}

func (s *Service) ListCards(ctx context.Context, ownerID string) ([]store.Card, error) {
	if ownerID == "" {
		return s.store.ListCards(ctx)
	}
	return s.store.ListCardsByOwner(ctx, ownerID)
}

func (s *Service) CreateCompany(ctx context.Context, company store.Company) (store.Company, error) {
	if company.Name == "" {
		return store.Company{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	created, err := s.store.CreateCompany(ctx, company)
	if err != nil {
		return store.Company{}, fmt.Errorf("create company: %w", err)
	}
	if err := s.indexer.IndexCompany(ctx, created); err != nil {
		log.Printf("app: index company %s: %v", created.ID, err)
	}
	return created, nil
}

func (s *Service) GetCompany(ctx context.Context, id string) (store.Company, error) {
	company, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return store.Company{}, mapStoreErr(err, "company")
	}
	return company, nil
}

func (s *Service) UpdateCompany(ctx context.Context, company store.Company) (store.Company, error) {
	updated, err := s.store.UpdateCompany(ctx, company)
	if err != nil {
		return store.Company{}, mapStoreErr(err, "company")
	}
	if err := s.indexer.IndexCompany(ctx, updated); err != nil {
		log.Printf("app: index company %s: %v", updated.ID, err)
	}
	return updated, nil
}

func (s *Service) DeleteCompany(ctx context.Context, id string) error {
	if err := s.store.DeleteCompany(ctx, id); err != nil {
		return mapStoreErr(err, "company")
	}
	if err := s.indexer.Remove(ctx, search.DocCompany, id); err != nil {
		log.Printf("app: remove company %s from index: %v", id, err)
	}
	return nil
}

func (s *Service) ListCompanies(ctx context.Context) ([]store.Company, error) {
	return s.store.ListCompanies(ctx)
}

// EnrichCard looks up the card's company with the external provider, links
// (or creates) the company record, and reindexes the card so its enriched
// flag and linked names become searchable.
func (s *Service) EnrichCard(ctx context.Context, ownerID, cardID string) (store.Card, error) {
	if s.enricher == nil {
		return store.Card{}, domainError(http.StatusServiceUnavailable, "ENRICHMENT_DISABLED", "enrichment provider not configured", nil)
	}
	card, err := s.GetCard(ctx, ownerID, cardID)
	if err != nil {
		return store.Card{}, err
	}
	query := card.Company
	if query == "" {
		query = card.Website
	}
	if query == "" {
		return store.Card{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "card has no company name or website to enrich from", nil)
	}

	profile, err := s.enricher.Lookup(ctx, query)
	if err != nil {
		if errors.Is(err, enrich.ErrRateLimited) {
			return store.Card{}, domainError(http.StatusTooManyRequests, "RATE_LIMITED", "enrichment rate limit exceeded, retry later", nil)
		}
		return store.Card{}, domainError(http.StatusBadGateway, "ENRICHMENT_FAILED", "enrichment provider unavailable", nil)
	}

	company, err := s.store.FindCompanyByName(ctx, profile.Name)
	if errors.Is(err, store.ErrNotFound) {
		company, err = s.store.CreateCompany(ctx, store.Company{
			Name:        profile.Name,
			Description: profile.Description,
			Industry:    profile.Industry,
			Size:        profile.Size,
			Location:    profile.Location,
			Website:     profile.Website,
			FoundedYear: profile.FoundedYear,
			Tags:        profile.Tags,
		})
	}
	if err != nil {
		return store.Card{}, fmt.Errorf("enrich company record: %w", err)
	}

	if err := s.store.LinkCompany(ctx, card.ID, company.ID); err != nil {
		return store.Card{}, fmt.Errorf("link enriched company: %w", err)
	}

	refreshed, err := s.store.GetCard(ctx, card.ID)
	if err != nil {
		return store.Card{}, mapStoreErr(err, "card")
	}
	if err := s.indexer.IndexCard(ctx, refreshed); err != nil {
		log.Printf("app: reindex enriched card %s: %v", refreshed.ID, err)
	}
	if err := s.indexer.IndexCompany(ctx, company); err != nil {
		log.Printf("app: index enriched company %s: %v", company.ID, err)
	}
	return refreshed, nil
}

// Search delegates to the search service, translating its one hard
// rejection into a client-facing validation error.
func (s *Service) Search(ctx context.Context, req search.Request) (*search.Result, error) {
	result, err := s.searcher.Search(ctx, req)
	if err != nil {
		if errors.Is(err, search.ErrInvalidRequest) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		}
		return nil, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "search backend unavailable", nil)
	}
	return result, nil
}

func (s *Service) Reindex(ctx context.Context) (int, error) {
	indexed, err := s.indexer.ReindexAll(ctx)
	if err != nil {
		return 0, domainError(http.StatusServiceUnavailable, "REINDEX_FAILED", "could not list entities for reindex", nil)
	}
	return indexed, nil
}

func (s *Service) IndexStats(ctx context.Context) (search.Stats, error) {
	return s.indexer.Stats(ctx)
}

func (s *Service) Health(ctx context.Context) map[string]bool {
	return s.searcher.HealthCheck(ctx)
}

func mapStoreErr(err error, entity string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusNotFound, "NOT_FOUND", entity+" not found", nil)
	}
	return fmt.Errorf("%s: %w", entity, err)
}
