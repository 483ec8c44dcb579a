// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 期限切れのセッションと、保持期間を超過した画像キャッシュを日次バッチで削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SessionPurger は期限切れセッションの削除を行う。
type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ImagePurger は古い画像キャッシュの削除を行う。
type ImagePurger interface {
	DeleteFetchedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は期限切れデータの自動削除ジョブ。
// 冪等: 削除対象がない場合でもエラーにならない。
type CleanupJob struct {
	sessions SessionPurger
	images   ImagePurger
	logger   *slog.Logger
	ImageTTL time.Duration // 画像キャッシュの保持期間（デフォルト: 7日）
	now      func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。imagesがnilの場合は画像キャッシュを対象外とする。
func NewCleanupJob(sessions SessionPurger, images ImagePurger, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		images:   images,
		logger:   logger,
		ImageTTL: 7 * 24 * time.Hour,
		now:      time.Now,
	}
}

// Run は期限切れセッションと古い画像キャッシュを削除する。
// 一方が失敗しても他方は実行し、両方のエラーをまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	var errs []error

	deletedSessions, err := j.sessions.DeleteExpired(ctx, start)
	if err != nil {
		j.logger.Error("セッションのクリーンアップに失敗しました", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err))
	}

	var deletedImages int64
	if j.images != nil {
		deletedImages, err = j.images.DeleteFetchedBefore(ctx, start.Add(-j.ImageTTL))
		if err != nil {
			j.logger.Error("画像キャッシュのクリーンアップに失敗しました",
				slog.String("error", err.Error()),
				slog.Duration("image_ttl", j.ImageTTL),
			)
			errs = append(errs, fmt.Errorf("画像キャッシュクリーンアップの実行に失敗: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", deletedSessions),
		slog.Int64("deleted_images", deletedImages),
		slog.Duration("image_ttl", j.ImageTTL),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、その後intervalごとに実行する。ctxがキャンセルされると戻る。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
