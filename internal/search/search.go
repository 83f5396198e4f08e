// Package search implements the full-text search pipeline for CardVault:
// query sanitizing and compilation into the backend's boolean/proximity
// mini-language, entity-to-document transformation, index maintenance, and
// result assembly with highlighting.
package search

import (
	"context"
	"time"
)

// DocumentType identifies the kind of entity behind a search document.
type DocumentType string

const (
	DocCard    DocumentType = "card"
	DocCompany DocumentType = "company"
)

// Mode selects a query compilation strategy.
type Mode string

const (
	ModeSimple    Mode = "simple"
	ModeBoolean   Mode = "boolean"
	ModeProximity Mode = "proximity"
	ModeAdvanced  Mode = "advanced"
)

// Document is the canonical indexable unit. For a given entity state the
// transformer always produces the same Document, so upserts are safe to
// repeat.
type Document struct {
	ID        string         `json:"id"`
	Type      DocumentType   `json:"type"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Highlight string         `json:"highlight"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// AdvancedQuery is the structured input for ModeAdvanced.
type AdvancedQuery struct {
	MustHave    []string `json:"mustHave"`
	ShouldHave  []string `json:"shouldHave"`
	MustNotHave []string `json:"mustNotHave"`
	Q           string   `json:"q"`
}

// SortSpec orders results by a whitelisted document field.
type SortSpec struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// FilterSpec matches a metadata key against an exact value.
type FilterSpec struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Pagination bounds a result page. Limit is clamped to [1,100] and Offset
// to >= 0 by the service before execution.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Request describes one search call. String parsing of HTTP parameters is
// the caller's job; the service accepts only this typed form.
type Request struct {
	RawQuery  string
	Mode      Mode
	Type      DocumentType // empty = all types
	OwnerID   string       // scopes card results to the caller
	Fields    []string
	Highlight bool
	Distance  int // proximity mode token distance; 0 = adjacent
	Advanced  *AdvancedQuery
	Sort      []SortSpec
	Filters   []FilterSpec
	Page      Pagination
}

// Segment is one span of highlighted or plain text. Concatenating the Text
// of all segments reproduces the source snippet with its markers removed.
type Segment struct {
	Text        string `json:"text"`
	Highlighted bool   `json:"highlighted"`
}

// Item is a single ranked hit.
type Item struct {
	ID         string         `json:"id"`
	Type       DocumentType   `json:"type"`
	Title      string         `json:"title"`
	Rank       float64        `json:"rank"`
	Snippet    string         `json:"snippet,omitempty"`
	Highlights []Segment      `json:"highlights,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Meta reports how a search was executed.
type Meta struct {
	ProcessedQuery  string  `json:"processedQuery"`
	Mode            Mode    `json:"mode"`
	Complexity      float64 `json:"complexity"`
	ExecutionTimeMs int64   `json:"executionTimeMs"`
	TotalMatches    int     `json:"totalMatches"`
	HasMore         bool    `json:"hasMore"`
}

// PageInfo echoes the effective pagination back to the caller.
type PageInfo struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Page    int  `json:"page"`
	HasNext bool `json:"hasNext"`
}

// Result is the envelope returned by Service.Search.
type Result struct {
	Items      []Item   `json:"items"`
	Meta       Meta     `json:"meta"`
	Pagination PageInfo `json:"pagination"`
}

// TypeStats are per-type index counts, informational only.
type TypeStats struct {
	Count       int        `json:"count"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// Stats summarizes the index state.
type Stats struct {
	Types map[DocumentType]TypeStats `json:"types"`
	Total int                        `json:"total"`
}

// ExecuteRequest is the backend-facing form of a compiled search. Compiled
// holds the mini-language expression; Raw holds the sanitized free text for
// backends that run their own query parsing. A non-empty OwnerID restricts
// card documents to that owner; documents of other types are unaffected, so
// a mixed search still returns shared company records.
type ExecuteRequest struct {
	Compiled     string
	Raw          string
	Type         DocumentType
	OwnerID      string
	Fields       []string
	Filters      []FilterSpec
	Sort         []SortSpec
	Limit        int
	Offset       int
	Highlight    bool
	HighlightPre string
	HighlightEnd string
}

// Hit is one ranked backend match. Snippet carries the backend's marked-up
// headline when highlighting was requested.
type Hit struct {
	ID       string
	Type     DocumentType
	Title    string
	Rank     float64
	Snippet  string
	Metadata map[string]any
}

// ExecuteResult is the raw backend response before assembly.
type ExecuteResult struct {
	Hits  []Hit
	Total int
}

// Backend is the capability set required of a text index. Upsert fully
// replaces any prior document with the same id; Delete of a missing id is a
// no-op.
type Backend interface {
	Upsert(ctx context.Context, docs []Document) error
	Delete(ctx context.Context, typ DocumentType, id string) error
	Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error)
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
}
