package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

const (
	maxLimit     = 100
	defaultLimit = 20
)

// ErrInvalidRequest marks malformed request parameters, the one class of
// input that is hard-rejected instead of softened. Malformed free text is
// never an error; it degrades through the compiler fallbacks.
var ErrInvalidRequest = errors.New("invalid search request")

// Service executes searches: it compiles the query, runs it against a
// backend, and assembles paginated, ranked, optionally highlighted results.
type Service struct {
	primary Backend // executes the compiled mini-language
	ranked  Backend // optional ranked engine for simple-mode queries
}

// NewService creates a search service. ranked may be nil; every query then
// executes on the primary backend.
func NewService(primary, ranked Backend) *Service {
	return &Service{primary: primary, ranked: ranked}
}

// Search runs one search call. Out-of-range pagination and oversized raw
// queries are rejected with ErrInvalidRequest before any compilation; these
// bounds protect the backend from abusive queries. Everything past that
// point degrades instead of failing: invalid compiled output falls back to
// simple mode and an empty compiled query returns an empty result, never a
// match-all.
func (s *Service) Search(ctx context.Context, req Request) (*Result, error) {
	if len(req.RawQuery) > maxQueryLength {
		return nil, fmt.Errorf("%w: query exceeds %d characters", ErrInvalidRequest, maxQueryLength)
	}
	if req.Page.Limit > maxLimit {
		return nil, fmt.Errorf("%w: limit exceeds %d", ErrInvalidRequest, maxLimit)
	}
	if req.Page.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", ErrInvalidRequest)
	}

	limit := req.Page.Limit
	if limit < 1 {
		limit = defaultLimit
	}
	offset := req.Page.Offset

	mode := req.Mode
	if _, ok := compilers[mode]; !ok {
		mode = ModeSimple
	}

	sanitized := Sanitize(req.RawQuery)
	compiled := Compile(mode, CompileInput{
		Raw:      req.RawQuery,
		Distance: req.Distance,
		Advanced: req.Advanced,
	})
	if compiled != "" && !Validate(compiled) {
		// degrade, never surface query-language errors to the caller
		compiled = Compile(ModeSimple, CompileInput{Raw: req.RawQuery})
		mode = ModeSimple
	}

	meta := Meta{
		ProcessedQuery: compiled,
		Mode:           mode,
		Complexity:     ComplexityScore(req.RawQuery),
	}
	page := PageInfo{
		Limit:  limit,
		Offset: offset,
		Page:   offset/limit + 1,
	}

	// nothing usable compiled: match none, by design
	if compiled == "" {
		return &Result{Items: []Item{}, Meta: meta, Pagination: page}, nil
	}

	ownerID := ""
	if req.Type == "" || req.Type == DocCard {
		// never search another user's cards; backends scope this to card
		// documents so shared companies stay visible in mixed searches
		ownerID = req.OwnerID
	}

	exec := ExecuteRequest{
		Compiled:     compiled,
		Raw:          sanitized,
		Type:         req.Type,
		OwnerID:      ownerID,
		Fields:       req.Fields,
		Filters:      req.Filters,
		Sort:         normalizeSort(req.Sort),
		Limit:        limit,
		Offset:       offset,
		Highlight:    req.Highlight,
		HighlightPre: HighlightPre,
		HighlightEnd: HighlightEnd,
	}

	started := time.Now()
	res, err := s.execute(ctx, mode, exec)
	if err != nil {
		return nil, err
	}
	meta.ExecutionTimeMs = time.Since(started).Milliseconds()
	meta.TotalMatches = res.Total
	meta.HasMore = offset+len(res.Hits) < res.Total
	page.HasNext = meta.HasMore

	items := make([]Item, 0, len(res.Hits))
	for _, hit := range res.Hits {
		item := Item{
			ID:       hit.ID,
			Type:     hit.Type,
			Title:    hit.Title,
			Rank:     hit.Rank,
			Metadata: hit.Metadata,
		}
		if req.Highlight && hit.Snippet != "" {
			item.Snippet = hit.Snippet
			item.Highlights = ParseHighlights(hit.Snippet, HighlightPre, HighlightEnd)
		}
		items = append(items, item)
	}

	return &Result{Items: items, Meta: meta, Pagination: page}, nil
}

// execute routes a compiled search to a backend. Simple-mode queries may use
// the ranked engine, whose implicit-AND matching is equivalent; every other
// mode needs the primary backend's compiled-query evaluator.
func (s *Service) execute(ctx context.Context, mode Mode, exec ExecuteRequest) (*ExecuteResult, error) {
	if mode == ModeSimple && s.ranked != nil {
		res, err := s.ranked.Execute(ctx, exec)
		if err == nil {
			return res, nil
		}
		log.Printf("search: ranked engine error, falling back to primary: %v", err)
	}
	return s.primary.Execute(ctx, exec)
}

// HealthCheck pings each backend and reports which are reachable.
func (s *Service) HealthCheck(ctx context.Context) map[string]bool {
	health := map[string]bool{
		"primary": s.primary.Ping(ctx) == nil,
	}
	if s.ranked != nil {
		health["ranked"] = s.ranked.Ping(ctx) == nil
	}
	return health
}

// IndexInfo is a pass-through status query against the primary backend.
func (s *Service) IndexInfo(ctx context.Context) (Stats, error) {
	return s.primary.Stats(ctx)
}

// normalizeSort keeps only whitelisted sort fields and directions. Unknown
// fields are dropped; an empty direction defaults to descending.
func normalizeSort(sorts []SortSpec) []SortSpec {
	out := make([]SortSpec, 0, len(sorts))
	for _, sp := range sorts {
		switch sp.Field {
		case "createdAt", "updatedAt", "title", "rank":
		default:
			continue
		}
		dir := strings.ToLower(sp.Direction)
		if dir != "asc" && dir != "desc" {
			dir = "desc"
		}
		out = append(out, SortSpec{Field: sp.Field, Direction: dir})
	}
	return out
}
