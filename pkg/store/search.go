package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/recall/internal/models"
)

const candidateColumns = `id, call_id, chunk_idx, COALESCE(speaker, ''), text,
	org_name, COALESCE(project_name, ''), COALESCE(title, ''), COALESCE(summary, ''), call_date`

// buildFilter renders the filter as additional AND conditions against
// chunks_with_context. Placeholders are numbered from next.
func buildFilter(filter models.Filter, next int) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.Org != "" {
		clauses = append(clauses, fmt.Sprintf("org_name = $%d", next))
		args = append(args, filter.Org)
		next++
	}
	if filter.Project != "" {
		clauses = append(clauses, fmt.Sprintf("project_name = $%d", next))
		args = append(args, filter.Project)
		next++
	}
	if filter.Since != nil {
		clauses = append(clauses, fmt.Sprintf("call_date >= $%d", next))
		args = append(args, *filter.Since)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

// SemanticCandidates returns embedded chunks ordered by cosine distance to
// embedding.
func (vs *VectorStore) SemanticCandidates(ctx context.Context, embedding []float32, filter models.Filter, maxDistance float64, limit int) ([]models.Candidate, error) {
	args := []any{pgvector.NewVector(embedding)}
	where, filterArgs := buildFilter(filter, 2)
	args = append(args, filterArgs...)

	if maxDistance > 0 {
		args = append(args, maxDistance)
		where += fmt.Sprintf(" AND (embedding <=> $1) < $%d", len(args))
	}

	query := fmt.Sprintf(`
		SELECT %s, embedding <=> $1 AS distance
		FROM chunks_with_context
		WHERE embedding IS NOT NULL%s
		ORDER BY distance, id`, candidateColumns, where)

	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query semantic candidates", err)
	}
	return scanCandidates(rows, func(c *models.Candidate) []any {
		return []any{&c.Distance}
	})
}

// LexicalCandidates returns chunks matching query under English full-text
// search, ordered by ts_rank_cd.
func (vs *VectorStore) LexicalCandidates(ctx context.Context, query string, filter models.Filter, limit int) ([]models.Candidate, error) {
	args := []any{query}
	where, filterArgs := buildFilter(filter, 2)
	args = append(args, filterArgs...)

	sql := fmt.Sprintf(`
		SELECT %s, ts_rank_cd(search_vector, q) AS rank
		FROM chunks_with_context, websearch_to_tsquery('english', $1) q
		WHERE search_vector @@ q%s
		ORDER BY rank DESC, id`, candidateColumns, where)

	if limit > 0 {
		args = append(args, limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := vs.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapErr("query lexical candidates", err)
	}
	return scanCandidates(rows, func(c *models.Candidate) []any {
		return []any{&c.LexicalRank}
	})
}

func scanCandidates(rows pgx.Rows, extra func(*models.Candidate) []any) ([]models.Candidate, error) {
	defer rows.Close()

	candidates := []models.Candidate{}
	for rows.Next() {
		var c models.Candidate
		dest := []any{
			&c.ChunkID, &c.ParentID, &c.Index, &c.Speaker, &c.Text,
			&c.Org, &c.Project, &c.Title, &c.Summary, &c.CallDate,
		}
		dest = append(dest, extra(&c)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("read rows", err)
	}
	return candidates, nil
}
