package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/storefront/internal/model"
)

// PostgresImageCacheRepo はPostgreSQLを使用した画像キャッシュリポジトリ。
type PostgresImageCacheRepo struct {
	db *sql.DB
}

// NewPostgresImageCacheRepo はPostgresImageCacheRepoを生成する。
func NewPostgresImageCacheRepo(db *sql.DB) *PostgresImageCacheRepo {
	return &PostgresImageCacheRepo{db: db}
}

// FindBySourceURL は元URLに対応するキャッシュを取得する。
func (r *PostgresImageCacheRepo) FindBySourceURL(ctx context.Context, sourceURL string) (*model.CachedImage, error) {
	img := &model.CachedImage{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, source_url, content_type, data, fetched_at
		 FROM image_cache
		 WHERE source_url = $1`,
		sourceURL,
	).Scan(&img.ID, &img.SourceURL, &img.ContentType, &img.Data, &img.FetchedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cached image: %w", err)
	}
	return img, nil
}

// Upsert はキャッシュを保存する。IDが空の場合はUUIDを採番する。
func (r *PostgresImageCacheRepo) Upsert(ctx context.Context, image *model.CachedImage) error {
	if image.ID == "" {
		image.ID = uuid.NewString()
	}
	if image.FetchedAt.IsZero() {
		image.FetchedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO image_cache (id, source_url, content_type, data, fetched_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (source_url) DO UPDATE
		 SET content_type = EXCLUDED.content_type,
		     data = EXCLUDED.data,
		     fetched_at = EXCLUDED.fetched_at`,
		image.ID, image.SourceURL, image.ContentType, image.Data, image.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cached image: %w", err)
	}
	return nil
}

// DeleteFetchedBefore はcutoffより前に取得されたキャッシュを削除する。
func (r *PostgresImageCacheRepo) DeleteFetchedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM image_cache WHERE fetched_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale images: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ ImageCacheRepository = (*PostgresImageCacheRepo)(nil)
