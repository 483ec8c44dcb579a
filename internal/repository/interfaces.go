// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

// SessionRepository はストアフロントセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れまたは存在しない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired はnow時点で期限切れのセッションを削除し、件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ImageCacheRepository は画像プロキシのキャッシュ永続化インターフェース。
type ImageCacheRepository interface {
	// FindBySourceURL は元URLに対応するキャッシュを取得する。見つからない場合はnilを返す。
	FindBySourceURL(ctx context.Context, sourceURL string) (*model.CachedImage, error)
	// Upsert はキャッシュを作成、または同一source_urlの行を更新する。
	Upsert(ctx context.Context, image *model.CachedImage) error
	// DeleteFetchedBefore はcutoffより前に取得されたキャッシュを削除し、件数を返す。
	DeleteFetchedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
