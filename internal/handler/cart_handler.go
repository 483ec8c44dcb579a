package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storefront/internal/cart"
	"github.com/hitoshi/storefront/internal/flash"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
)

const dashboardPath = "/dashboard"

// CartServiceInterface はカートハンドラーが必要とするサービスインターフェース。
type CartServiceInterface interface {
	Load(ctx context.Context) *cart.Page
	Add(ctx context.Context, actor cart.Actor, productID model.ProductID, quantity int) cart.Outcome
	UpdateQty(ctx context.Context, actor cart.Actor, productID model.ProductID, quantity int) cart.Outcome
	Remove(ctx context.Context, actor cart.Actor, productID model.ProductID) cart.Outcome
}

// FlashStore はリダイレクト越しにメッセージを受け渡す。
type FlashStore interface {
	Set(w http.ResponseWriter, r *http.Request, kind, msg string) error
	Pop(w http.ResponseWriter, r *http.Request) flash.Messages
}

// CartHandler はストア＆カート画面とカート操作のHTTPハンドラー。
type CartHandler struct {
	service  CartServiceInterface
	flash    FlashStore
	renderer *Renderer
}

// NewCartHandler はCartHandlerを生成する。
func NewCartHandler(service CartServiceInterface, flashStore FlashStore, renderer *Renderer) *CartHandler {
	return &CartHandler{
		service:  service,
		flash:    flashStore,
		renderer: renderer,
	}
}

// dashboardView はストア＆カート画面の表示データ。
type dashboardView struct {
	layoutData
	Page           *cart.Page
	Notice         string
	Alert          string
	NoProductsText string
	EmptyCartText  string
}

// Dashboard は商品一覧とカートを取得して表示する。
// 読み込みに失敗した場合もエラー文言付きで画面を返す。
// GET /dashboard
func (h *CartHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	msgs := h.flash.Pop(w, r)
	page := h.service.Load(r.Context())

	h.renderer.Render(w, r, http.StatusOK, pageDashboard, dashboardView{
		layoutData:     newLayout(r, "Store"),
		Page:           page,
		Notice:         msgs.Notice,
		Alert:          msgs.Alert,
		NoProductsText: cart.MsgNoProducts,
		EmptyCartText:  cart.MsgEmptyCart,
	})
}

// Add はカートに商品を追加する。quantityが未指定の場合は1とする。
// POST /dashboard/cart/add/{productId}
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	quantity := 1
	if raw := strings.TrimSpace(r.PostFormValue("quantity")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteErrorResponse(w, r, http.StatusBadRequest, model.NewInvalidQuantityError(raw))
			return
		}
		quantity = n
	}

	h.finish(w, r, h.service.Add(r.Context(), actorFromRequest(r), productID, quantity))
}

// Update はカート内の数量を変更する。負の数量は何もせずに画面へ戻る。
// POST /dashboard/cart/update/{productId}
func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	raw := strings.TrimSpace(r.PostFormValue("quantity"))
	quantity, err := strconv.Atoi(raw)
	if err != nil {
		middleware.WriteErrorResponse(w, r, http.StatusBadRequest, model.NewInvalidQuantityError(raw))
		return
	}

	h.finish(w, r, h.service.UpdateQty(r.Context(), actorFromRequest(r), productID, quantity))
}

// Remove はカートから商品を削除する。
// POST /dashboard/cart/remove/{productId}
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	h.finish(w, r, h.service.Remove(r.Context(), actorFromRequest(r), productID))
}

// finish は操作結果をフラッシュに積み、ストア画面へリダイレクトする。
// リダイレクト先のGETで商品とカートを再取得する。
func (h *CartHandler) finish(w http.ResponseWriter, r *http.Request, out cart.Outcome) {
	if err := h.flash.Set(w, r, flash.KindNotice, out.Notice); err != nil {
		slog.Warn("failed to set flash", slog.String("error", err.Error()))
	}
	if err := h.flash.Set(w, r, flash.KindAlert, out.Alert); err != nil {
		slog.Warn("failed to set flash", slog.String("error", err.Error()))
	}
	http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
}

// productIDParam はURLパスから商品IDを取り出す。不正な場合は400を書き込む。
func productIDParam(w http.ResponseWriter, r *http.Request) (model.ProductID, bool) {
	raw := chi.URLParam(r, "productId")
	id, err := url.PathUnescape(raw)
	if err != nil || strings.TrimSpace(id) == "" {
		middleware.WriteErrorResponse(w, r, http.StatusBadRequest, model.NewInvalidProductIDError(raw))
		return "", false
	}
	return model.ProductID(id), true
}

// actorFromRequest はカート操作の主体を組み立てる。
// ゲストはCSRFトークンを実行中ガードのキーに使い、トークンなしで送信する。
func actorFromRequest(r *http.Request) cart.Actor {
	if s := middleware.SessionFromContext(r.Context()); s != nil {
		return cart.Actor{Key: s.ID, Token: s.Token}
	}
	return cart.Actor{Key: "guest:" + middleware.CSRFTokenFromContext(r.Context())}
}
