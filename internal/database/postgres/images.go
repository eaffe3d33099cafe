package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/picarch/internal/database"
)

// ImageRepository stores image paths and their face embeddings.
type ImageRepository struct {
	pool *Pool
}

// NewImageRepository creates a new PostgreSQL image repository
func NewImageRepository(pool *Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

// SaveImage inserts the image row and one embedding row per face in a single
// transaction. If path is already stored nothing is written and the existing
// ID is returned together with database.ErrImageExists.
func (r *ImageRepository) SaveImage(ctx context.Context, path string, embeddings [][]float32) (int64, error) {
	if err := database.ValidateEmbeddings(embeddings); err != nil {
		return 0, fmt.Errorf("image %s: %w", path, err)
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var imageID int64
	err = tx.QueryRowContext(ctx,
		"INSERT INTO images (path) VALUES ($1) ON CONFLICT (path) DO NOTHING RETURNING id",
		path,
	).Scan(&imageID)
	if errors.Is(err, sql.ErrNoRows) {
		if err := tx.QueryRowContext(ctx, "SELECT id FROM images WHERE path = $1", path).Scan(&imageID); err != nil {
			return 0, fmt.Errorf("look up existing image: %w", err)
		}
		return imageID, database.ErrImageExists
	}
	if err != nil {
		return 0, fmt.Errorf("insert image: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO embeddings (image_id, embedding) VALUES ($1, $2)")
	if err != nil {
		return 0, fmt.Errorf("prepare embedding insert: %w", err)
	}
	defer stmt.Close()

	for i, emb := range embeddings {
		if _, err := stmt.ExecContext(ctx, imageID, pgvector.NewVector(emb)); err != nil {
			return 0, fmt.Errorf("insert embedding %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit image: %w", err)
	}
	return imageID, nil
}

// GetAllImagePaths returns every stored path
func (r *ImageRepository) GetAllImagePaths(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, "SELECT path FROM images ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("query image paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan image path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate image paths: %w", err)
	}
	return paths, nil
}

// Count returns the number of image rows and embedding rows
func (r *ImageRepository) Count(ctx context.Context) (int, int, error) {
	var images, embeddings int
	err := r.pool.QueryRow(ctx,
		"SELECT (SELECT COUNT(*) FROM images), (SELECT COUNT(*) FROM embeddings)",
	).Scan(&images, &embeddings)
	if err != nil {
		return 0, 0, fmt.Errorf("count images: %w", err)
	}
	return images, embeddings, nil
}

// FindSimilar returns each image having a face within maxDistance (cosine) of
// the query, with the distance of its closest face, closest first.
func (r *ImageRepository) FindSimilar(ctx context.Context, embedding []float32, maxDistance float64) ([]database.Match, error) {
	// Use transaction to set ef_search for better recall
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	query := `
		SELECT path, distance FROM (
			SELECT DISTINCT ON (i.path) i.path, e.embedding <=> $1 AS distance
			FROM embeddings e
			JOIN images i ON i.id = e.image_id
			WHERE e.embedding <=> $1 <= $2
			ORDER BY i.path, distance
		) best
		ORDER BY distance, path
	`
	rows, err := tx.QueryContext(ctx, query, pgvector.NewVector(embedding), maxDistance)
	if err != nil {
		return nil, fmt.Errorf("query similar images: %w", err)
	}
	defer rows.Close()

	var matches []database.Match
	for rows.Next() {
		var m database.Match
		if err := rows.Scan(&m.Path, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return matches, nil
}

// GetAllEmbeddings returns every embedding with its image path, for building
// the in-memory index.
func (r *ImageRepository) GetAllEmbeddings(ctx context.Context) ([]database.StoredEmbedding, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.id, e.image_id, i.path, e.embedding
		FROM embeddings e
		JOIN images i ON i.id = e.image_id
		ORDER BY e.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var result []database.StoredEmbedding
	for rows.Next() {
		var emb database.StoredEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&emb.ID, &emb.ImageID, &emb.Path, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		emb.Embedding = vec.Slice()
		result = append(result, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return result, nil
}

// IndexMetadata describes the current embeddings table, for deciding whether a
// persisted HNSW index is stale.
func (r *ImageRepository) IndexMetadata(ctx context.Context) (database.EmbeddingIndexMetadata, error) {
	var meta database.EmbeddingIndexMetadata
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*), COALESCE(MAX(id), 0) FROM embeddings").
		Scan(&meta.EmbeddingCount, &meta.MaxEmbeddingID)
	if err != nil {
		return meta, fmt.Errorf("query index metadata: %w", err)
	}
	return meta, nil
}

// GetImage returns the image stored under path, or nil if there is none.
func (r *ImageRepository) GetImage(ctx context.Context, path string) (*database.StoredImage, error) {
	var img database.StoredImage
	err := r.pool.QueryRow(ctx, "SELECT id, path, created_at FROM images WHERE path = $1", path).
		Scan(&img.ID, &img.Path, &img.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query image: %w", err)
	}
	return &img, nil
}

// Truncate removes every image and embedding and resets the ID sequences.
func (r *ImageRepository) Truncate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, "TRUNCATE TABLE embeddings, images RESTART IDENTITY"); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

// Drop removes the tables and forgets the applied migrations, so the next
// Open recreates the schema.
func (r *ImageRepository) Drop(ctx context.Context) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS embeddings, images"); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS schema_migrations"); err != nil {
		return fmt.Errorf("drop migrations table: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit drop: %w", err)
	}
	return nil
}

var _ database.Store = (*ImageRepository)(nil)
