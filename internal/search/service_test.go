package search

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSearchRejectsOutOfRangeParameters(t *testing.T) {
	svc := NewService(newMemoryBackend(), nil)
	ctx := context.Background()

	cases := []struct {
		name string
		req  Request
	}{
		{name: "oversized query", req: Request{RawQuery: strings.Repeat("a", maxQueryLength+1)}},
		{name: "limit too large", req: Request{RawQuery: "x", Page: Pagination{Limit: maxLimit + 1}}},
		{name: "negative offset", req: Request{RawQuery: "x", Page: Pagination{Offset: -1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Search(ctx, tc.req); !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestSearchExecutesCompiledQuery(t *testing.T) {
	backend := newMemoryBackend()
	backend.execRes = &ExecuteResult{
		Hits: []Hit{
			{ID: "c1", Type: DocCard, Title: "Grace Hopper", Rank: 0.9},
			{ID: "c2", Type: DocCard, Title: "Ada Lovelace", Rank: 0.7},
		},
		Total: 10,
	}
	svc := NewService(backend, nil)

	res, err := svc.Search(context.Background(), Request{
		RawQuery: "software engineer",
		Mode:     ModeSimple,
		Page:     Pagination{Limit: 2, Offset: 0},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if res.Meta.ProcessedQuery != "software & engineer" {
		t.Fatalf("processedQuery = %q", res.Meta.ProcessedQuery)
	}
	if res.Meta.Mode != ModeSimple {
		t.Fatalf("mode = %q", res.Meta.Mode)
	}
	if res.Meta.TotalMatches != 10 {
		t.Fatalf("totalMatches = %d", res.Meta.TotalMatches)
	}
	if !res.Meta.HasMore || !res.Pagination.HasNext {
		t.Fatal("hasMore should be true: 0 + 2 < 10")
	}
	if res.Pagination.Page != 1 {
		t.Fatalf("page = %d, want 1", res.Pagination.Page)
	}
	if len(res.Items) != 2 || res.Items[0].ID != "c1" {
		t.Fatalf("items = %+v", res.Items)
	}
}

func TestSearchHasNextOnLastPage(t *testing.T) {
	backend := newMemoryBackend()
	backend.execRes = &ExecuteResult{
		Hits:  []Hit{{ID: "c9", Type: DocCard, Title: "Last"}},
		Total: 9,
	}
	svc := NewService(backend, nil)

	res, err := svc.Search(context.Background(), Request{
		RawQuery: "last",
		Page:     Pagination{Limit: 4, Offset: 8},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Meta.HasMore {
		t.Fatal("hasMore should be false: 8 + 1 == 9")
	}
	if res.Pagination.Page != 3 {
		t.Fatalf("page = %d, want 3", res.Pagination.Page)
	}
}

func TestSearchInjectsOwnerScopeForCards(t *testing.T) {
	backend := newMemoryBackend()
	svc := NewService(backend, nil)

	_, err := svc.Search(context.Background(), Request{
		RawQuery: "golang",
		Type:     DocCard,
		OwnerID:  "user_42",
		Filters:  []FilterSpec{{Field: "tags", Value: "vip"}},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if len(backend.execReqs) != 1 {
		t.Fatalf("expected one execution, got %d", len(backend.execReqs))
	}
	exec := backend.execReqs[0]
	if exec.OwnerID != "user_42" {
		t.Fatalf("owner scope missing, OwnerID = %q", exec.OwnerID)
	}
	if len(exec.Filters) != 1 || exec.Filters[0].Field != "tags" {
		t.Fatalf("caller filters altered: %+v", exec.Filters)
	}
}

func TestSearchOwnerScopeCarriedForMixedSearch(t *testing.T) {
	backend := newMemoryBackend()
	svc := NewService(backend, nil)

	_, err := svc.Search(context.Background(), Request{
		RawQuery: "acme",
		OwnerID:  "user_42",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got := backend.execReqs[0].OwnerID; got != "user_42" {
		t.Fatalf("OwnerID = %q, want user_42", got)
	}
}

func TestSearchNoOwnerScopeForCompanies(t *testing.T) {
	backend := newMemoryBackend()
	svc := NewService(backend, nil)

	_, err := svc.Search(context.Background(), Request{
		RawQuery: "acme",
		Type:     DocCompany,
		OwnerID:  "user_42",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got := backend.execReqs[0].OwnerID; got != "" {
		t.Fatalf("company search must not be owner-scoped, OwnerID = %q", got)
	}
}

func TestSearchEmptyCompiledQueryMatchesNone(t *testing.T) {
	backend := newMemoryBackend()
	svc := NewService(backend, nil)

	res, err := svc.Search(context.Background(), Request{
		Mode:     ModeAdvanced,
		Advanced: &AdvancedQuery{},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Items) != 0 || res.Meta.TotalMatches != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if len(backend.execReqs) != 0 {
		t.Fatal("empty compiled query must not hit the backend")
	}
}

func TestSearchUnknownModeDefaultsToSimple(t *testing.T) {
	backend := newMemoryBackend()
	svc := NewService(backend, nil)

	res, err := svc.Search(context.Background(), Request{RawQuery: "go rust", Mode: Mode("telepathic")})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Meta.Mode != ModeSimple || res.Meta.ProcessedQuery != "go & rust" {
		t.Fatalf("meta = %+v", res.Meta)
	}
}

func TestSearchSimpleModePrefersRankedEngine(t *testing.T) {
	primary := newMemoryBackend()
	ranked := newMemoryBackend()
	ranked.execRes = &ExecuteResult{Hits: []Hit{{ID: "r1", Type: DocCard}}, Total: 1}
	svc := NewService(primary, ranked)

	res, err := svc.Search(context.Background(), Request{RawQuery: "golang", Mode: ModeSimple})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(primary.execReqs) != 0 {
		t.Fatal("simple mode should have gone to the ranked engine")
	}
	if len(res.Items) != 1 || res.Items[0].ID != "r1" {
		t.Fatalf("items = %+v", res.Items)
	}
}

func TestSearchFallsBackWhenRankedEngineFails(t *testing.T) {
	primary := newMemoryBackend()
	primary.execRes = &ExecuteResult{Hits: []Hit{{ID: "p1", Type: DocCard}}, Total: 1}
	ranked := newMemoryBackend()
	ranked.execErr = errors.New("engine down")
	svc := NewService(primary, ranked)

	res, err := svc.Search(context.Background(), Request{RawQuery: "golang", Mode: ModeSimple})
	if err != nil {
		t.Fatalf("search must degrade, got %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "p1" {
		t.Fatalf("items = %+v", res.Items)
	}
}

func TestSearchBooleanModeSkipsRankedEngine(t *testing.T) {
	primary := newMemoryBackend()
	ranked := newMemoryBackend()
	svc := NewService(primary, ranked)

	_, err := svc.Search(context.Background(), Request{RawQuery: "go AND rust", Mode: ModeBoolean})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(ranked.execReqs) != 0 {
		t.Fatal("boolean mode must execute on the compiled-query backend")
	}
	if len(primary.execReqs) != 1 || primary.execReqs[0].Compiled != "go & rust" {
		t.Fatalf("primary executions = %+v", primary.execReqs)
	}
}

func TestSearchParsesHighlights(t *testing.T) {
	backend := newMemoryBackend()
	backend.execRes = &ExecuteResult{
		Hits: []Hit{{
			ID:      "c1",
			Type:    DocCard,
			Title:   "Grace Hopper",
			Snippet: "senior <b>golang</b> developer",
		}},
		Total: 1,
	}
	svc := NewService(backend, nil)

	res, err := svc.Search(context.Background(), Request{RawQuery: "golang", Highlight: true})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	segments := res.Items[0].Highlights
	if len(segments) != 3 {
		t.Fatalf("segments = %+v", segments)
	}
	if !segments[1].Highlighted || segments[1].Text != "golang" {
		t.Fatalf("segments = %+v", segments)
	}

	exec := backend.execReqs[0]
	if !exec.Highlight || exec.HighlightPre != HighlightPre || exec.HighlightEnd != HighlightEnd {
		t.Fatalf("highlight markers not requested: %+v", exec)
	}
}

func TestHealthCheck(t *testing.T) {
	primary := newMemoryBackend()
	ranked := newMemoryBackend()
	ranked.pingErr = errors.New("down")
	svc := NewService(primary, ranked)

	health := svc.HealthCheck(context.Background())
	if !health["primary"] || health["ranked"] {
		t.Fatalf("health = %+v", health)
	}
}

func TestSearchComplexityReported(t *testing.T) {
	svc := NewService(newMemoryBackend(), nil)
	res, err := svc.Search(context.Background(), Request{RawQuery: "go AND rust NOT java"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Meta.Complexity <= 0 || res.Meta.Complexity > 1 {
		t.Fatalf("complexity = %f", res.Meta.Complexity)
	}
}
