package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, creds model.Credentials) (string, error)
	Login(ctx context.Context, form model.LoginForm) (*model.Session, string, error)
	Logout(ctx context.Context, sessionID string) error
	FailureMessage(err error) string
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	Cookie             middleware.CookieConfig
	LoginRedirectDelay time.Duration // ログイン成功からストア画面へ遷移するまでの待ち時間
}

// AuthHandler はサインアップ・ログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	renderer *Renderer
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, renderer *Renderer, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		renderer: renderer,
		config:   config,
	}
}

// signupView はサインアップ画面の表示データ。
// パスワード欄は再表示しないため、Formには含めない。
type signupView struct {
	layoutData
	Form    signupFields
	Success string
	Error   string
}

type signupFields struct {
	Name     string
	MobileNo string
	Email    string
}

// loginView はログイン画面の表示データ。
type loginView struct {
	layoutData
	Form    struct{ Email string }
	Success string
	Error   string
}

// SignupPage はサインアップ画面を表示する。
// GET /signup
func (h *AuthHandler) SignupPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, pageSignup, signupView{layoutData: newLayout(r, "Sign up")})
}

// Signup はサインアップフォームを処理する。成功・失敗のどちらも同じ画面に留まる。
// POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	creds := model.Credentials{
		Name:            r.PostFormValue("name"),
		MobileNo:        r.PostFormValue("mobileNo"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
	}

	view := signupView{layoutData: newLayout(r, "Sign up")}

	msg, err := h.service.Signup(r.Context(), creds)
	if err != nil {
		slog.Info("signup rejected", slog.String("error", err.Error()))
		view.Error = h.service.FailureMessage(err)
		view.Form = signupFields{Name: creds.Name, MobileNo: creds.MobileNo, Email: creds.Email}
		h.renderer.Render(w, r, http.StatusUnprocessableEntity, pageSignup, view)
		return
	}

	// 成功時は入力欄をすべて空に戻す
	view.Success = msg
	h.renderer.Render(w, r, http.StatusOK, pageSignup, view)
}

// LoginPage はログイン画面を表示する。
// GET /login
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, pageLogin, loginView{layoutData: newLayout(r, "Login")})
}

// Login はログインフォームを処理する。
// 成功時はセッションCookieを設定し、待ち時間の後にストア画面へ遷移するページを返す。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	form := model.LoginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}

	view := loginView{layoutData: newLayout(r, "Login")}
	view.Form.Email = form.Email

	session, msg, err := h.service.Login(r.Context(), form)
	if err != nil {
		slog.Info("login rejected", slog.String("error", err.Error()))
		view.Error = h.service.FailureMessage(err)
		h.renderer.Render(w, r, http.StatusUnprocessableEntity, pageLogin, view)
		return
	}

	middleware.SetSessionCookie(w, session, h.config.Cookie)

	// ログイン中の再ログインでは、新しいセッションの発行後に旧セッションを破棄する
	if prev := middleware.SessionFromContext(r.Context()); prev != nil && prev.ID != session.ID {
		if err := h.service.Logout(r.Context(), prev.ID); err != nil {
			slog.Warn("failed to delete previous session", slog.String("error", err.Error()))
		}
	}

	view.Session = session
	view.Success = msg
	view.Refresh = refreshContent(h.config.LoginRedirectDelay, "/dashboard")
	h.renderer.Render(w, r, http.StatusOK, pageLogin, view)
}

// Logout はセッションを破棄してログイン画面へリダイレクトする。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := middleware.SessionFromContext(r.Context()); session != nil {
		if err := h.service.Logout(r.Context(), session.ID); err != nil {
			// 削除に失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	middleware.ClearSessionCookie(w, h.config.Cookie)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// refreshContent はmeta refreshのcontent値を組み立てる。
func refreshContent(delay time.Duration, target string) string {
	if delay < 0 {
		delay = 0
	}
	return strconv.FormatFloat(delay.Seconds(), 'f', -1, 64) + ";url=" + target
}
