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

// SaveDocument inserts a parent and all of its chunks in one transaction and
// returns the new parent ID.
func (vs *VectorStore) SaveDocument(ctx context.Context, doc models.ProcessedDocument) (int64, error) {
	if err := vs.checkDocument(doc); err != nil {
		return 0, err
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return 0, wrapErr("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	callID, err := vs.insertDocument(ctx, tx, doc)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, wrapErr("commit transaction", err)
	}

	vs.logger.Info("document saved", "call_id", callID, "org", doc.Org, "chunks", len(doc.Chunks))
	return callID, nil
}

// ReplaceDocument deletes parent previousID and inserts doc in one
// transaction. On any failure the previous version is kept. It returns the
// new parent ID and the number of chunks deleted.
func (vs *VectorStore) ReplaceDocument(ctx context.Context, previousID int64, doc models.ProcessedDocument) (int64, int, error) {
	if err := vs.checkDocument(doc); err != nil {
		return 0, 0, err
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return 0, 0, wrapErr("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	deleted, err := deleteCall(ctx, tx, previousID)
	if err != nil {
		return 0, 0, err
	}
	callID, err := vs.insertDocument(ctx, tx, doc)
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, wrapErr("commit transaction", err)
	}

	vs.logger.Info("document replaced", "previous_call_id", previousID, "call_id", callID, "deleted", deleted, "chunks", len(doc.Chunks))
	return callID, deleted, nil
}

func (vs *VectorStore) checkDocument(doc models.ProcessedDocument) error {
	if doc.Org == "" {
		return fmt.Errorf("%w: document has no org", types.ErrInvalidInput)
	}
	if doc.CallDate.IsZero() {
		return fmt.Errorf("%w: document has no date", types.ErrInvalidInput)
	}
	for _, chunk := range doc.Chunks {
		if n := len(chunk.Embedding); n > 0 && n != vs.config.VectorDim {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				types.ErrInvalidInput, chunk.Index, n, vs.config.VectorDim)
		}
	}
	return nil
}

func (vs *VectorStore) insertDocument(ctx context.Context, tx pgx.Tx, doc models.ProcessedDocument) (int64, error) {
	var orgID int64
	err := tx.QueryRow(ctx, `
		INSERT INTO orgs (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, doc.Org).Scan(&orgID)
	if err != nil {
		return 0, wrapErr("upsert org", err)
	}

	var projectID *int64
	if doc.Project != "" {
		var id int64
		err = tx.QueryRow(ctx, `
			INSERT INTO projects (org_id, name) VALUES ($1, $2)
			ON CONFLICT (org_id, name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, orgID, doc.Project).Scan(&id)
		if err != nil {
			return 0, wrapErr("upsert project", err)
		}
		projectID = &id
	}

	sourceType := doc.SourceType
	if sourceType == "" {
		sourceType = models.SourceTranscript
	}

	var callID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO calls (org_id, project_id, title, call_date, source_type, source_file, summary)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
		RETURNING id`,
		orgID, projectID, sanitizeUTF8(doc.Title), doc.CallDate,
		sourceType, doc.SourceFile, sanitizeUTF8(doc.Summary),
	).Scan(&callID)
	if err != nil {
		return 0, wrapErr("insert call", err)
	}

	stmt := `
		INSERT INTO chunks (call_id, chunk_idx, speaker, text, embedding)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)`

	for _, chunk := range doc.Chunks {
		var embedding any
		if len(chunk.Embedding) > 0 {
			embedding = pgvector.NewVector(chunk.Embedding)
		}
		_, err = tx.Exec(ctx, stmt, callID, chunk.Index, chunk.Speaker, sanitizeUTF8(chunk.Text), embedding)
		if err != nil {
			return 0, wrapErr("insert chunk", err)
		}
	}
	return callID, nil
}

// FindBySourceFile returns the most recent parent ingested from sourceFile.
func (vs *VectorStore) FindBySourceFile(ctx context.Context, sourceFile string) (*models.Parent, error) {
	var p models.Parent
	err := vs.pool.QueryRow(ctx, `
		SELECT c.id, o.name, COALESCE(p.name, ''), COALESCE(c.title, ''), c.call_date,
			c.source_type, COALESCE(c.source_file, ''), COALESCE(c.summary, '')
		FROM calls c
		JOIN orgs o ON o.id = c.org_id
		LEFT JOIN projects p ON p.id = c.project_id
		WHERE c.source_file = $1
		ORDER BY c.id DESC
		LIMIT 1`, sourceFile).Scan(
		&p.ID, &p.Org, &p.Project, &p.Title, &p.CallDate,
		&p.SourceType, &p.SourceFile, &p.Summary,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: no parent for %s", types.ErrNotFound, sourceFile)
	}
	if err != nil {
		return nil, wrapErr("find parent", err)
	}
	return &p, nil
}

// DeleteParent removes a parent. Its chunks and their cluster assignments are
// removed by cascade. It returns the number of chunks deleted.
func (vs *VectorStore) DeleteParent(ctx context.Context, parentID int64) (int, error) {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return 0, wrapErr("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	chunks, err := deleteCall(ctx, tx, parentID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, wrapErr("commit transaction", err)
	}

	vs.logger.Info("parent deleted", "call_id", parentID, "chunks", chunks)
	return chunks, nil
}

func deleteCall(ctx context.Context, tx pgx.Tx, parentID int64) (int, error) {
	var chunks int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE call_id = $1`, parentID).Scan(&chunks); err != nil {
		return 0, wrapErr("count chunks", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM calls WHERE id = $1`, parentID)
	if err != nil {
		return 0, wrapErr("delete call", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, fmt.Errorf("%w: call %d", types.ErrNotFound, parentID)
	}
	return chunks, nil
}
