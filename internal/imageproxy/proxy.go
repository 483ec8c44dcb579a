// Package imageproxy は商品画像を取得・キャッシュして同一オリジンから配信する。
package imageproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

// 取得失敗の種類。
var (
	ErrBlocked     = errors.New("image url blocked")
	ErrUnavailable = errors.New("image unavailable")
)

// 取得結果のラベル。メトリクスに使用する。
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultBlocked = "blocked"
	ResultError   = "error"
)

// URLValidator は取得前のURL検証を行う。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Recorder は画像取得結果の記録先。
type Recorder interface {
	RecordImageFetch(result string)
}

// Config は画像プロキシの設定。
type Config struct {
	MaxSize  int64
	CacheTTL time.Duration
}

// Proxy は商品画像の取得とキャッシュを行う。
type Proxy struct {
	repo      repository.ImageCacheRepository
	validator URLValidator
	client    *http.Client
	recorder  Recorder
	config    Config
	now       func() time.Time
}

// New はProxyを生成する。clientにはSSRF対策済みのクライアントを渡す。
func New(repo repository.ImageCacheRepository, validator URLValidator, client *http.Client, recorder Recorder, cfg Config) *Proxy {
	return &Proxy{
		repo:      repo,
		validator: validator,
		client:    client,
		recorder:  recorder,
		config:    cfg,
		now:       time.Now,
	}
}

// Get は画像を返す。キャッシュが新しければそれを返し、古いか存在しなければ取得し直す。
// 取得に失敗した場合、古いキャッシュがあればそれを返す。
func (p *Proxy) Get(ctx context.Context, src string) (*model.CachedImage, error) {
	if err := p.validator.ValidateURL(src); err != nil {
		p.recorder.RecordImageFetch(ResultBlocked)
		return nil, fmt.Errorf("%w: %v", ErrBlocked, err)
	}

	cached, err := p.repo.FindBySourceURL(ctx, src)
	if err != nil {
		slog.Warn("画像キャッシュの参照に失敗しました", slog.String("url", src), slog.String("error", err.Error()))
		cached = nil
	}
	if cached != nil && !cached.Stale(p.now(), p.config.CacheTTL) {
		p.recorder.RecordImageFetch(ResultHit)
		return cached, nil
	}

	img, err := p.fetch(ctx, src)
	if err != nil {
		if cached != nil {
			slog.Warn("画像の再取得に失敗したため古いキャッシュを返します",
				slog.String("url", src), slog.String("error", err.Error()))
			p.recorder.RecordImageFetch(ResultHit)
			return cached, nil
		}
		p.recorder.RecordImageFetch(ResultError)
		return nil, err
	}

	if cached != nil {
		img.ID = cached.ID
	}
	if err := p.repo.Upsert(ctx, img); err != nil {
		slog.Warn("画像キャッシュの保存に失敗しました", slog.String("url", src), slog.String("error", err.Error()))
	}
	p.recorder.RecordImageFetch(ResultMiss)
	return img, nil
}

// fetch は元URLから画像を取得する。内容から判定したMIMEが画像でなければ拒否する。
func (p *Proxy) fetch(ctx context.Context, src string) (*model.CachedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", "Storefront/1.0 ImageProxy")
	req.Header.Set("Accept", "image/*")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.config.MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if int64(len(body)) > p.config.MaxSize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrUnavailable, p.config.MaxSize)
	}

	mime := mimetype.Detect(body)
	if !allowedMIME(mime.String()) {
		return nil, fmt.Errorf("%w: unsupported content %s", ErrUnavailable, mime.String())
	}

	return &model.CachedImage{
		SourceURL:   src,
		ContentType: mime.String(),
		Data:        body,
		FetchedAt:   p.now(),
	}, nil
}

// allowedMIME はラスター画像のみ許可する。SVGはスクリプトを含みうるため除外する。
func allowedMIME(m string) bool {
	return strings.HasPrefix(m, "image/") && !strings.HasPrefix(m, "image/svg")
}
