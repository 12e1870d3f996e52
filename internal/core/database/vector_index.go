package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/memora-ai/memora/internal/core"
	"github.com/memora-ai/memora/internal/models"
)

const pointsTable = "vector_points"

var _ core.VectorIndex = (*Client)(nil)

func (c *Client) CollectionExists(ctx context.Context, name string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM vector_collections WHERE name = $1)`
	var exists bool
	if err := c.db.QueryRowContext(ctx, q, name).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CreateCollection registers the collection. The insert is idempotent
// at the database level; a lost race reports ErrCollectionExists so
// concurrent creators all treat the outcome as success.
func (c *Client) CreateCollection(ctx context.Context, name string, dims int, distance core.Distance) error {
	const q = `
		INSERT INTO vector_collections (name, dims, distance)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING
	`
	res, err := c.db.ExecContext(ctx, q, name, dims, string(distance))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrCollectionExists
	}
	return nil
}

func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	// Points cascade via the foreign key.
	_, err := c.db.ExecContext(ctx, `DELETE FROM vector_collections WHERE name = $1`, name)
	return err
}

// Upsert overwrites points by id, bumping the stored version.
func (c *Client) Upsert(ctx context.Context, collection string, points []models.IndexedPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO ` + pointsTable + ` (id, collection, embedding, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET embedding = EXCLUDED.embedding,
		    payload   = EXCLUDED.payload,
		    version   = ` + pointsTable + `.version + 1
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range points {
		p := &points[i]
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal payload: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, collection, pgvector.NewVector(p.Vector), payload); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Search runs one nearest-neighbor query ordered by the collection's
// distance metric, constrained by jsonb containment for the exact-match
// filter. An unknown collection simply matches no rows.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, filter map[string]string, limit int) ([]models.ScoredPoint, error) {
	distance, err := c.collectionDistance(ctx, collection)
	if err != nil {
		return nil, err
	}
	if distance == "" {
		return nil, nil
	}

	op, score := "<=>", "1 - (embedding <=> $2)"
	if distance == string(core.DistanceEuclidean) {
		op, score = "<->", "-(embedding <-> $2)"
	}

	if filter == nil {
		filter = map[string]string{}
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("marshal filter: %w", err)
	}

	q := `
		SELECT id, version, payload, ` + score + ` AS score
		FROM ` + pointsTable + `
		WHERE collection = $1 AND payload @> $3
		ORDER BY embedding ` + op + ` $2
		LIMIT $4
	`
	rows, err := c.db.QueryContext(ctx, q, collection, pgvector.NewVector(vector), filterJSON, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredPoint
	for rows.Next() {
		var (
			sp      models.ScoredPoint
			payload []byte
		)
		if err := rows.Scan(&sp.ID, &sp.Version, &payload, &sp.Score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &sp.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// collectionDistance returns the registered metric, empty string when
// the collection does not exist.
func (c *Client) collectionDistance(ctx context.Context, name string) (string, error) {
	const q = `SELECT distance FROM vector_collections WHERE name = $1`
	rows, err := c.db.QueryContext(ctx, q, name)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", rows.Err()
	}
	var distance string
	if err := rows.Scan(&distance); err != nil {
		return "", err
	}
	return distance, nil
}
