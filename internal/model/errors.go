// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// 画面またはJSONレスポンスに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, cart, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	ErrCodeCSRFFailed       = "CSRF_FAILED"
	ErrCodeInvalidProductID = "INVALID_PRODUCT_ID"
	ErrCodeInvalidQuantity  = "INVALID_QUANTITY"
	ErrCodeImageUnavailable = "IMAGE_UNAVAILABLE"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未ログインエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Login required.",
		Category: "auth",
		Action:   "Please log in and try again.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewCSRFFailedError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "Reload the page and submit the form again.",
	}
}

// NewInvalidProductIDError は商品IDが不正な場合のエラーを生成する。
func NewInvalidProductIDError(productID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProductID,
		Message:  fmt.Sprintf("invalid product id: %q", productID),
		Category: "validation",
		Action:   "Go back to the store page and pick a product.",
	}
}

// NewInvalidQuantityError は数量が数値として解釈できない場合のエラーを生成する。
func NewInvalidQuantityError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuantity,
		Message:  fmt.Sprintf("invalid quantity: %q", raw),
		Category: "validation",
		Action:   "Quantity must be a whole number.",
	}
}

// NewImageUnavailableError は商品画像を取得できない場合のエラーを生成する。
func NewImageUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeImageUnavailable,
		Message:  "image unavailable",
		Category: "cart",
		Action:   "The product image could not be loaded.",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Something went wrong",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}
