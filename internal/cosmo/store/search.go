package store

import (
	"context"
	"fmt"
	"strings"
)

// SearchResult is one ranked hit from keyword search.
type SearchResult struct {
	UUID    string
	Type    string
	Title   string
	Snippet string
}

// Search is the keyword search engine over atoms. Ranking is simple and
// deterministic: title matches outrank body matches, recency breaks ties.
type Search struct {
	store *Store
}

// NewSearch returns the search engine backed by s.
func NewSearch(s *Store) *Search {
	return &Search{store: s}
}

// Query runs a keyword search and returns ranked snippets.
func (r *Search) Query(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	terms := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	if len(terms) == 0 {
		return nil, nil
	}

	// Every term must hit title or body; score 2 per title hit, 1 per body
	// hit. Placeholders bind in query order: score expression first (it sits
	// in the SELECT list), then the WHERE clauses, then the limit.
	var where []string
	scoreExpr := "0"
	for range terms {
		where = append(where, "(lower(title) LIKE ? OR lower(body) LIKE ?)")
		scoreExpr += " + (CASE WHEN lower(title) LIKE ? THEN 2 ELSE 0 END)" +
			" + (CASE WHEN lower(body) LIKE ? THEN 1 ELSE 0 END)"
	}
	var args []any
	for _, term := range terms {
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern)
	}
	for _, term := range terms {
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, limit)

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT uuid, type, title, substr(body, 1, 160), `+scoreExpr+` AS score
		FROM atoms
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY score DESC, created_at DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("search atoms: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var res SearchResult
		var score int
		if err := rows.Scan(&res.UUID, &res.Type, &res.Title, &res.Snippet, &score); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
