package cart

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/storefront/internal/guard"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/storeapi"
)

// 画面に表示する文言。
const (
	MsgFetchFailed  = "Failed to fetch data"
	MsgAdded        = "Added to cart"
	MsgAddFailed    = "Failed to add item"
	MsgUpdateFailed = "Failed to update item"
	MsgRemoveFailed = "Failed to remove item"
	MsgInFlight     = "Request already in progress"
	MsgNoProducts   = "No products found right now."
	MsgEmptyCart    = "Cart is empty."
)

// StoreClient はカート画面で使うストアAPIの操作。
type StoreClient interface {
	ProductsCart(ctx context.Context) (*model.CatalogSnapshot, error)
	AddToCart(ctx context.Context, token string, productID model.ProductID, quantity int) error
	UpdateCartItem(ctx context.Context, token string, productID model.ProductID, quantity int) error
	RemoveCartItem(ctx context.Context, token string, productID model.ProductID) error
}

// Recorder はカート操作のメトリクス記録先。
type Recorder interface {
	RecordInflightRejected()
}

// TextSanitizer は商品名・カテゴリからマークアップを取り除く。
// サーバーメッセージは加工せずに表示する。
type TextSanitizer interface {
	SanitizeText(raw string) string
}

// Actor はカート操作の主体。
// Tokenが空のゲストはAuthorizationヘッダーなしで送信される。
type Actor struct {
	Key   string // 実行中ガードのキーに使う識別子（セッションIDなど）
	Token string
}

// Outcome はカート操作の結果。NoticeとAlertは同時に設定されない。
type Outcome struct {
	Notice  string
	Alert   string
	Skipped bool // リクエストを送信しなかった
}

// Service はカート画面のデータ読み込みとカート操作を提供する。
// 楽観的更新は行わず、操作後は呼び出し側がLoadで再同期する。
type Service struct {
	store     StoreClient
	guard     guard.Guard
	recorder  Recorder
	sanitizer TextSanitizer
}

// NewService はServiceを生成する。gがnilの場合はガードを無効にする。
func NewService(store StoreClient, g guard.Guard, recorder Recorder, sanitizer TextSanitizer) *Service {
	if g == nil {
		g = guard.NoopGuard{}
	}
	return &Service{store: store, guard: g, recorder: recorder, sanitizer: sanitizer}
}

// Load は商品一覧とカートを取得してPageを返す。
// 失敗時はサーバーメッセージまたは既定文言をErrorに設定し、一覧は空になる。
func (s *Service) Load(ctx context.Context) *Page {
	page := NewPage()
	page.begin()

	snap, err := s.store.ProductsCart(ctx)
	if err != nil {
		slog.Warn("商品とカートの取得に失敗しました", slog.String("error", err.Error()))
		page.fail(s.message(err, MsgFetchFailed))
		return page
	}

	for i := range snap.Products {
		snap.Products[i].Title = s.sanitizer.SanitizeText(snap.Products[i].Title)
		snap.Products[i].Category = s.sanitizer.SanitizeText(snap.Products[i].Category)
	}
	page.succeed(snap)
	return page
}

// Add はカートに商品を追加する。quantityの既定値は呼び出し側で1とする。
func (s *Service) Add(ctx context.Context, actor Actor, productID model.ProductID, quantity int) Outcome {
	return s.mutate(ctx, actor, productID, "add", MsgAddFailed, func(ctx context.Context) error {
		return s.store.AddToCart(ctx, actor.Token, productID, quantity)
	}, MsgAdded)
}

// UpdateQty はカート内の数量を変更する。
// 負の数量はリクエストを送らずに無視する。0はそのままストアAPIに送る。
func (s *Service) UpdateQty(ctx context.Context, actor Actor, productID model.ProductID, quantity int) Outcome {
	if quantity < 0 {
		return Outcome{Skipped: true}
	}
	return s.mutate(ctx, actor, productID, "update", MsgUpdateFailed, func(ctx context.Context) error {
		return s.store.UpdateCartItem(ctx, actor.Token, productID, quantity)
	}, "")
}

// Remove はカートから商品を削除する。
func (s *Service) Remove(ctx context.Context, actor Actor, productID model.ProductID) Outcome {
	return s.mutate(ctx, actor, productID, "remove", MsgRemoveFailed, func(ctx context.Context) error {
		return s.store.RemoveCartItem(ctx, actor.Token, productID)
	}, "")
}

// mutate は実行中ガードを確保してからカート操作を実行する。
func (s *Service) mutate(
	ctx context.Context,
	actor Actor,
	productID model.ProductID,
	op, fallback string,
	call func(ctx context.Context) error,
	notice string,
) Outcome {
	release, err := s.guard.Acquire(ctx, guard.Key(actor.Key, productID.String()))
	if errors.Is(err, guard.ErrInFlight) {
		s.recorder.RecordInflightRejected()
		return Outcome{Alert: MsgInFlight, Skipped: true}
	}
	if err != nil {
		// ガード基盤の障害で操作を止めない
		slog.Warn("実行中ガードを確保できませんでした",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		release = func() {}
	}
	defer release()

	if err := call(ctx); err != nil {
		slog.Warn("カート操作に失敗しました",
			slog.String("op", op),
			slog.String("product_id", productID.String()),
			slog.String("error", err.Error()),
		)
		return Outcome{Alert: s.message(err, fallback)}
	}
	return Outcome{Notice: notice}
}

// message はサーバーメッセージをそのまま、なければfallbackを返す。
func (s *Service) message(err error, fallback string) string {
	return storeapi.MessageOr(err, fallback)
}
