// Package flash はPOST→リダイレクト→GETの間でメッセージを受け渡す署名付きCookieを提供する。
package flash

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
)

// CookieName はフラッシュメッセージ用Cookieの名前。
const CookieName = "storefront_flash"

// メッセージの種類。
const (
	KindNotice = "notice"
	KindAlert  = "alert"
)

// Messages は1回の表示で取り出したメッセージ。
type Messages struct {
	Notice string
	Alert  string
}

// Store はフラッシュメッセージの保存先。
type Store struct {
	store sessions.Store
}

// Options はCookieの属性。
type Options struct {
	Secure bool
	Domain string
}

// NewStore はSESSION_SECRETで署名するCookieベースのStoreを生成する。
func NewStore(secret string, opts Options) *Store {
	cs := sessions.NewCookieStore([]byte(secret))
	cs.Options = &sessions.Options{
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   300,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Store{store: cs}
}

// Set はメッセージを保存する。空のメッセージは無視する。
func (s *Store) Set(w http.ResponseWriter, r *http.Request, kind, msg string) error {
	if msg == "" {
		return nil
	}
	sess, err := s.store.Get(r, CookieName)
	if err != nil {
		// 署名不一致などで復元できない場合は新しいCookieで上書きする
		slog.Debug("フラッシュCookieを復元できませんでした", slog.String("error", err.Error()))
	}
	sess.AddFlash(msg, kind)
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("failed to save flash: %w", err)
	}
	return nil
}

// Pop は保存済みメッセージを取り出して削除する。
func (s *Store) Pop(w http.ResponseWriter, r *http.Request) Messages {
	var m Messages

	sess, err := s.store.Get(r, CookieName)
	if err != nil || sess.IsNew {
		return m
	}

	m.Notice = last(sess.Flashes(KindNotice))
	m.Alert = last(sess.Flashes(KindAlert))

	if err := sess.Save(r, w); err != nil {
		slog.Warn("フラッシュCookieの更新に失敗しました", slog.String("error", err.Error()))
	}
	return m
}

func last(flashes []interface{}) string {
	for i := len(flashes) - 1; i >= 0; i-- {
		if s, ok := flashes[i].(string); ok {
			return s
		}
	}
	return ""
}
