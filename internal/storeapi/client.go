// Package storeapi はストアAPI（商品・カート・認証のREST API）のクライアントを提供する。
// ストアフロントの状態はすべてストアAPI側が所有し、このクライアントは
// リクエストの転送と応答のデコードのみを行う。リトライは行わない。
package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hitoshi/storefront/internal/model"
)

const (
	// maxResponseSize はレスポンスボディの最大読み取りサイズ（10MB）。
	maxResponseSize = 10 * 1024 * 1024
	userAgent       = "Storefront/1.0"
)

// エンドポイント名。メトリクスとログのラベルに使用する。
const (
	EndpointSignup       = "signup"
	EndpointLogin        = "login"
	EndpointProductsCart = "products_cart"
	EndpointCartAdd      = "cart_add"
	EndpointCartUpdate   = "cart_update"
	EndpointCartRemove   = "cart_remove"
)

// ErrTransport はストアAPIに到達できなかった（応答を得られなかった）ことを示す。
var ErrTransport = errors.New("store api unreachable")

// APIError はストアAPIがリクエストを拒否した場合のエラー。
// Messageはサーバーが返したmessageフィールドで、空の場合もある。
type APIError struct {
	StatusCode int
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("store api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("store api returned status %d: %s", e.StatusCode, e.Message)
}

// MessageOr はerrがサーバーメッセージ付きのAPIErrorであればそのメッセージを、
// それ以外（通信失敗、メッセージなし）の場合はfallbackを返す。
func MessageOr(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// CallRecorder はストアAPI呼び出しの計測を記録するインターフェース。
type CallRecorder interface {
	RecordUpstreamCall(endpoint string, statusCode int, duration time.Duration)
}

// AuthResponse は /api/auth/signup と /api/auth/login の応答。
type AuthResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
	UserID  string `json:"-"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// UnmarshalJSON はuserIdが数値・文字列のどちらでも受け付ける。
func (a *AuthResponse) UnmarshalJSON(b []byte) error {
	type alias AuthResponse
	aux := struct {
		*alias
		UserID json.RawMessage `json:"userId"`
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if len(aux.UserID) > 0 {
		id, err := model.ParseFlexibleID(aux.UserID)
		if err != nil {
			return fmt.Errorf("userIdのパースに失敗しました: %w", err)
		}
		a.UserID = id
	}
	return nil
}

// quantityRequest はカート追加・更新リクエストのボディ。
type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// errorResponse はストアAPIのエラー応答。
type errorResponse struct {
	Message string `json:"message"`
}

// Client はストアAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	recorder   CallRecorder
}

// NewHTTPClient はストアAPI呼び出し用のHTTPクライアントを生成する。
// トランスポートはOpenTelemetryで計装する。
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLはプロセス起動時に1回だけ解決された設定値を渡す。recorderはnil可。
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger, recorder CallRecorder) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		recorder:   recorder,
	}
}

// Signup はアカウント登録を行う。
// success:false の応答はメッセージ付きのAPIErrorとして返す。
func (c *Client) Signup(ctx context.Context, creds model.Credentials) (*AuthResponse, error) {
	var res AuthResponse
	if err := c.do(ctx, EndpointSignup, http.MethodPost, "/api/auth/signup", "", creds, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, &APIError{StatusCode: http.StatusOK, Message: res.Message}
	}
	return &res, nil
}

// Login は認証を行い、トークンとユーザー情報を返す。
func (c *Client) Login(ctx context.Context, form model.LoginForm) (*AuthResponse, error) {
	var res AuthResponse
	if err := c.do(ctx, EndpointLogin, http.MethodPost, "/api/auth/login", "", form, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, &APIError{StatusCode: http.StatusOK, Message: res.Message}
	}
	return &res, nil
}

// ProductsCart は商品カタログと現在のカートを1回のリクエストで取得する。
// products/cartが欠落している場合は空として扱う。
func (c *Client) ProductsCart(ctx context.Context) (*model.CatalogSnapshot, error) {
	var snap model.CatalogSnapshot
	if err := c.do(ctx, EndpointProductsCart, http.MethodGet, "/api/cart/products-cart", "", nil, &snap); err != nil {
		return nil, err
	}
	if snap.Products == nil {
		snap.Products = []model.Product{}
	}
	if snap.Cart == nil {
		snap.Cart = &model.Cart{}
	}
	if snap.Cart.Items == nil {
		snap.Cart.Items = []model.CartItem{}
	}
	return &snap, nil
}

// AddToCart はカートに商品を追加する。tokenが空の場合はAuthorizationヘッダーを付与しない。
func (c *Client) AddToCart(ctx context.Context, token string, productID model.ProductID, quantity int) error {
	path := "/api/cart/add/" + url.PathEscape(productID.String())
	return c.do(ctx, EndpointCartAdd, http.MethodPost, path, token, quantityRequest{Quantity: quantity}, nil)
}

// UpdateCartItem はカート内の商品の数量を更新する。数量0の解釈はストアAPIに委ねる。
func (c *Client) UpdateCartItem(ctx context.Context, token string, productID model.ProductID, quantity int) error {
	path := "/api/cart/update/" + url.PathEscape(productID.String())
	return c.do(ctx, EndpointCartUpdate, http.MethodPut, path, token, quantityRequest{Quantity: quantity}, nil)
}

// RemoveCartItem はカートから商品を削除する。
func (c *Client) RemoveCartItem(ctx context.Context, token string, productID model.ProductID) error {
	path := "/api/cart/remove/" + url.PathEscape(productID.String())
	return c.do(ctx, EndpointCartRemove, http.MethodDelete, path, token, nil, nil)
}

// do はストアAPIへリクエストを送信し、2xx応答をoutにデコードする。
// 応答を得られない場合はErrTransportをラップして返し、
// 2xx以外の応答はAPIErrorとして返す。
func (c *Client) do(ctx context.Context, endpoint, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(endpoint, 0, time.Since(start))
		c.logger.Error("ストアAPIの呼び出しに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()
	c.record(endpoint, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: レスポンスボディの読み取りに失敗しました: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		// エラー応答がJSONでない場合はメッセージなしとして扱う
		_ = json.Unmarshal(data, &er)
		c.logger.Warn("ストアAPIがエラーステータスを返しました",
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		return &APIError{StatusCode: resp.StatusCode, Message: er.Message}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("ストアAPIのレスポンスのパースに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

func (c *Client) record(endpoint string, status int, d time.Duration) {
	if c.recorder != nil {
		c.recorder.RecordUpstreamCall(endpoint, status, d)
	}
}
