package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/storefront/internal/imageproxy"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
)

// ImageSource は画像プロキシの取得処理。
type ImageSource interface {
	Get(ctx context.Context, src string) (*model.CachedImage, error)
}

// ImageURLVerifier は /images のsrcに付与された署名を検証する。
type ImageURLVerifier interface {
	Verify(src, sig string) bool
}

// ImageHandler は商品画像を同一オリジンから配信する。
type ImageHandler struct {
	source   ImageSource
	verifier ImageURLVerifier
}

// NewImageHandler はImageHandlerを生成する。verifierがnilの場合は全て拒否する。
func NewImageHandler(source ImageSource, verifier ImageURLVerifier) *ImageHandler {
	return &ImageHandler{source: source, verifier: verifier}
}

// Serve はsrcクエリの画像を返す。画面描画時に発行した署名付きURLのみ受け付ける。
// GET /images?src=https://...&sig=...
func (h *ImageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	src := r.URL.Query().Get("src")

	if h.verifier == nil || !h.verifier.Verify(src, r.URL.Query().Get("sig")) {
		slog.Info("image proxy request rejected: invalid signature", slog.String("src", src))
		middleware.WriteErrorResponse(w, r, http.StatusBadRequest, model.NewImageUnavailableError())
		return
	}

	img, err := h.source.Get(r.Context(), src)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, imageproxy.ErrBlocked) {
			status = http.StatusBadRequest
		}
		slog.Info("image proxy request failed",
			slog.String("src", src),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, r, status, model.NewImageUnavailableError())
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}
