// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はストアAPIから受け取った文字列（メッセージ、商品名、カテゴリ）から
// マークアップを取り除くインターフェース。
type TextSanitizer interface {
	// SanitizeText はタグを除去したプレーンテキストを返す。
	// 出力はテンプレート側で再度エスケープされるため、エンティティは元の文字に戻す。
	SanitizeText(raw string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを使うTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はタグを除去し、前後の空白を取り除く。
func (s *textSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

var _ TextSanitizer = (*textSanitizer)(nil)
