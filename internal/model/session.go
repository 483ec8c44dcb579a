package model

import "time"

// Session はログイン済みユーザーのストアフロントセッションを表す。
// ストアAPIのログイン応答（token, userId, email, name）を保持し、
// カート操作時のAuthorizationヘッダー構築に使用する。
type Session struct {
	ID        string // session_id Cookieの値
	Token     string // ストアAPIが発行したBearerトークン（不透明な文字列）
	UserID    string
	Email     string
	Name      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はセッションが指定時刻時点で期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
