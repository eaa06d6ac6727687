package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
)

const memberColumns = `cc.cluster_id, v.id, v.call_id, v.chunk_idx, v.text, COALESCE(v.speaker, ''),
	v.org_name, COALESCE(v.project_name, ''), COALESCE(v.title, ''), COALESCE(v.summary, ''), v.call_date`

// ChunkEmbeddings returns the embedded chunks of scope ordered by parent and
// sequence index.
func (vs *VectorStore) ChunkEmbeddings(ctx context.Context, scope models.Scope) ([]models.ChunkEmbedding, error) {
	query := `
		SELECT id, call_id, chunk_idx, embedding::text
		FROM chunks
		WHERE embedding IS NOT NULL`
	var args []any
	if !scope.IsGlobal() {
		query += ` AND call_id = $1`
		args = append(args, scope.CallID)
	}
	query += ` ORDER BY call_id, chunk_idx`

	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query chunk embeddings", err)
	}
	defer rows.Close()

	out := []models.ChunkEmbedding{}
	for rows.Next() {
		var (
			ce  models.ChunkEmbedding
			vec pgvector.Vector
		)
		if err := rows.Scan(&ce.ID, &ce.ParentID, &ce.Index, &vec); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ce.Embedding = vec.Slice()
		out = append(out, ce)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("read rows", err)
	}
	return out, nil
}

// ReplaceAssignments deletes every assignment of run.Scope, inserts the new
// ones and records the run, all in one transaction.
func (vs *VectorStore) ReplaceAssignments(ctx context.Context, run models.ClusterRun, assignments []models.Assignment) error {
	key := run.Scope.Key()

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunk_clusters WHERE scope = $1`, key); err != nil {
		return wrapErr("clear assignments", err)
	}

	if len(assignments) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"chunk_clusters"},
			[]string{"chunk_id", "scope", "cluster_id"},
			pgx.CopyFromSlice(len(assignments), func(i int) ([]any, error) {
				a := assignments[i]
				return []any{a.ChunkID, key, int32(a.ClusterID)}, nil
			}),
		)
		if err != nil {
			return wrapErr("insert assignments", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO cluster_runs (id, scope, threshold, clusters, chunks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, key, run.Threshold, run.Clusters, run.Chunks, run.CreatedAt)
	if err != nil {
		return wrapErr("record cluster run", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapErr("commit transaction", err)
	}

	vs.logger.Info("cluster assignments replaced", "scope", key, "clusters", run.Clusters, "chunks", len(assignments))
	return nil
}

// LatestRun returns the most recent stored run for scope.
func (vs *VectorStore) LatestRun(ctx context.Context, scope models.Scope) (*models.ClusterRun, error) {
	run := models.ClusterRun{Scope: scope}
	err := vs.pool.QueryRow(ctx, `
		SELECT id, threshold, clusters, chunks, created_at
		FROM cluster_runs
		WHERE scope = $1
		ORDER BY created_at DESC
		LIMIT 1`, scope.Key()).Scan(&run.ID, &run.Threshold, &run.Clusters, &run.Chunks, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: no cluster run for %s", types.ErrNotFound, scope)
	}
	if err != nil {
		return nil, wrapErr("query cluster run", err)
	}
	return &run, nil
}

// ClusterSizes returns clusters of scope with at least minSize members,
// largest first.
func (vs *VectorStore) ClusterSizes(ctx context.Context, scope models.Scope, minSize int) ([]models.ClusterSize, error) {
	rows, err := vs.pool.Query(ctx, `
		SELECT cluster_id, COUNT(*) AS size
		FROM chunk_clusters
		WHERE scope = $1
		GROUP BY cluster_id
		HAVING COUNT(*) >= $2
		ORDER BY size DESC, cluster_id`, scope.Key(), minSize)
	if err != nil {
		return nil, wrapErr("query cluster sizes", err)
	}
	defer rows.Close()

	sizes := []models.ClusterSize{}
	for rows.Next() {
		var s models.ClusterSize
		if err := rows.Scan(&s.ClusterID, &s.Size); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		sizes = append(sizes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("read rows", err)
	}
	return sizes, nil
}

// ClusterMembers returns the members of one cluster in chronological order.
func (vs *VectorStore) ClusterMembers(ctx context.Context, scope models.Scope, clusterID int) ([]models.ClusterMember, error) {
	rows, err := vs.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM chunk_clusters cc
		JOIN chunks_with_context v ON v.id = cc.chunk_id
		WHERE cc.scope = $1 AND cc.cluster_id = $2
		ORDER BY v.call_date, v.call_id, v.chunk_idx`, memberColumns), scope.Key(), clusterID)
	if err != nil {
		return nil, wrapErr("query cluster members", err)
	}
	return scanMembers(rows)
}

// ClusterIDsFor returns the distinct clusters the given chunks belong to.
func (vs *VectorStore) ClusterIDsFor(ctx context.Context, scope models.Scope, chunkIDs []int64) ([]int, error) {
	if len(chunkIDs) == 0 {
		return []int{}, nil
	}
	rows, err := vs.pool.Query(ctx, `
		SELECT DISTINCT cluster_id
		FROM chunk_clusters
		WHERE scope = $1 AND chunk_id = ANY($2)
		ORDER BY cluster_id`, scope.Key(), chunkIDs)
	if err != nil {
		return nil, wrapErr("query cluster ids", err)
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("read rows", err)
	}
	return ids, nil
}

// ChunksInClusters returns every chunk of the given clusters except the
// excluded ones, newest call first.
func (vs *VectorStore) ChunksInClusters(ctx context.Context, scope models.Scope, clusterIDs []int, exclude []int64) ([]models.ClusterMember, error) {
	if len(clusterIDs) == 0 {
		return []models.ClusterMember{}, nil
	}
	if exclude == nil {
		// A NULL array would make the NOT ANY predicate drop every row.
		exclude = []int64{}
	}
	rows, err := vs.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM chunk_clusters cc
		JOIN chunks_with_context v ON v.id = cc.chunk_id
		WHERE cc.scope = $1
			AND cc.cluster_id = ANY($2::int[])
			AND NOT (v.id = ANY($3::bigint[]))
		ORDER BY v.call_date DESC, v.chunk_idx, v.id`, memberColumns), scope.Key(), clusterIDs, exclude)
	if err != nil {
		return nil, wrapErr("query cluster chunks", err)
	}
	return scanMembers(rows)
}

func scanMembers(rows pgx.Rows) ([]models.ClusterMember, error) {
	defer rows.Close()

	members := []models.ClusterMember{}
	for rows.Next() {
		var m models.ClusterMember
		err := rows.Scan(
			&m.ClusterID, &m.ChunkID, &m.ParentID, &m.Index, &m.Text, &m.Speaker,
			&m.Org, &m.Project, &m.Title, &m.Summary, &m.CallDate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("read rows", err)
	}
	return members, nil
}
