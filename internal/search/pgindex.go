package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgIndex implements Backend on PostgreSQL full-text search. It is the
// authoritative executor: the compiled mini-language is tsquery syntax and
// runs verbatim through to_tsquery.
type PgIndex struct {
	db *sql.DB
}

// NewPgIndex creates a Postgres-backed text index.
func NewPgIndex(db *sql.DB) *PgIndex {
	return &PgIndex{db: db}
}

// Ping checks database connectivity.
func (p *PgIndex) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Upsert fully replaces each document keyed by (type, id). The fts column
// is generated from title and content, so writes never touch it directly.
func (p *PgIndex) Upsert(ctx context.Context, docs []Document) error {
	for _, doc := range docs {
		metadata, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s/%s: %w", doc.Type, doc.ID, err)
		}
		_, err = p.db.ExecContext(ctx, `
			INSERT INTO search_documents (id, doc_type, title, content, highlight, metadata, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (doc_type, id) DO UPDATE SET
				title = EXCLUDED.title,
				content = EXCLUDED.content,
				highlight = EXCLUDED.highlight,
				metadata = EXCLUDED.metadata,
				created_at = EXCLUDED.created_at,
				updated_at = EXCLUDED.updated_at
		`, doc.ID, string(doc.Type), doc.Title, doc.Content, doc.Highlight, metadata, doc.CreatedAt, doc.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert %s/%s: %w", doc.Type, doc.ID, err)
		}
	}
	return nil
}

// Delete removes a document from its type partition. A missing id deletes
// zero rows and is not an error.
func (p *PgIndex) Delete(ctx context.Context, typ DocumentType, id string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM search_documents WHERE doc_type = $1 AND id = $2
	`, string(typ), id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", typ, id, err)
	}
	return nil
}

// Execute runs the compiled expression with to_tsquery, ranking with
// ts_rank and producing marked-up headlines when highlighting is requested.
func (p *PgIndex) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	if strings.TrimSpace(req.Compiled) == "" {
		return &ExecuteResult{Hits: []Hit{}}, nil
	}

	where, args := whereClauses(req)
	argN := len(args) + 1
	whereSQL := strings.Join(where, " AND ")

	var total int
	countSQL := "SELECT count(*) FROM search_documents WHERE " + whereSQL
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("pgindex count: %w", err)
	}

	snippetCol := "''::text AS snippet"
	if req.Highlight {
		snippetCol = fmt.Sprintf(
			"ts_headline('english', highlight, to_tsquery('english', $1), $%d) AS snippet", argN)
		args = append(args, fmt.Sprintf(
			"StartSel=%s, StopSel=%s, MaxFragments=2, MaxWords=30", req.HighlightPre, req.HighlightEnd))
		argN++
	}

	dataSQL := fmt.Sprintf(`
		SELECT id, doc_type, title, ts_rank(fts, to_tsquery('english', $1)) AS rank, %s, metadata
		FROM search_documents
		WHERE %s
		ORDER BY %s
		LIMIT %d OFFSET %d`,
		snippetCol, whereSQL, orderBy(req.Sort), req.Limit, req.Offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("pgindex query: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, req.Limit)
	for rows.Next() {
		var h Hit
		var typ string
		var metadata []byte
		if err := rows.Scan(&h.ID, &typ, &h.Title, &h.Rank, &h.Snippet, &metadata); err != nil {
			return nil, fmt.Errorf("pgindex scan: %w", err)
		}
		h.Type = DocumentType(typ)
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &h.Metadata)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgindex rows: %w", err)
	}

	return &ExecuteResult{Hits: hits, Total: total}, nil
}

// Stats returns per-type document counts and the latest update timestamp.
func (p *PgIndex) Stats(ctx context.Context) (Stats, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT doc_type, count(*), max(updated_at)
		FROM search_documents
		GROUP BY doc_type
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("pgindex stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{Types: map[DocumentType]TypeStats{}}
	for rows.Next() {
		var typ string
		var ts TypeStats
		if err := rows.Scan(&typ, &ts.Count, &ts.LastUpdated); err != nil {
			return Stats{}, fmt.Errorf("pgindex stats scan: %w", err)
		}
		stats.Types[DocumentType(typ)] = ts
		stats.Total += ts.Count
	}
	return stats, rows.Err()
}

// whereClauses builds the predicate list and its positional arguments. The
// owner predicate restricts card rows only; other document types carry no
// ownerId metadata and must stay visible in owner-scoped mixed searches.
func whereClauses(req ExecuteRequest) ([]string, []any) {
	args := []any{req.Compiled}
	argN := 2

	where := []string{matchExpr(req.Fields) + " @@ to_tsquery('english', $1)"}
	if req.Type != "" {
		where = append(where, fmt.Sprintf("doc_type = $%d", argN))
		args = append(args, string(req.Type))
		argN++
	}
	if req.OwnerID != "" {
		where = append(where, fmt.Sprintf("(doc_type <> 'card' OR metadata->>'ownerId' = $%d)", argN))
		args = append(args, req.OwnerID)
		argN++
	}
	for _, f := range req.Filters {
		where = append(where, fmt.Sprintf("metadata->>$%d = $%d", argN, argN+1))
		args = append(args, f.Field, f.Value)
		argN += 2
	}
	return where, args
}

// matchExpr picks the tsvector to match against. The stored fts column
// covers the weighted title+content pair; a fields subset narrows the match
// to just those columns.
func matchExpr(fields []string) string {
	if len(fields) == 0 {
		return "fts"
	}
	title, content := false, false
	for _, f := range fields {
		switch f {
		case "title":
			title = true
		case "content":
			content = true
		}
	}
	switch {
	case title && !content:
		return "to_tsvector('english', title)"
	case content && !title:
		return "to_tsvector('english', content)"
	default:
		return "fts"
	}
}

var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"title":     "title",
	"rank":      "rank",
}

// orderBy renders the whitelisted sort specs, defaulting to rank descending.
func orderBy(sorts []SortSpec) string {
	var parts []string
	for _, sp := range sorts {
		col, ok := sortColumns[sp.Field]
		if !ok {
			continue
		}
		dir := "DESC"
		if strings.EqualFold(sp.Direction, "asc") {
			dir = "ASC"
		}
		parts = append(parts, col+" "+dir)
	}
	if len(parts) == 0 {
		return "rank DESC"
	}
	return strings.Join(parts, ", ")
}
