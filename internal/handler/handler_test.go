package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/storefront/internal/cart"
	"github.com/hitoshi/storefront/internal/flash"
	"github.com/hitoshi/storefront/internal/imageproxy"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/validation"
)

const testCSRFToken = "test-csrf-token"

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	signupFn func(ctx context.Context, creds model.Credentials) (string, error)
	loginFn  func(ctx context.Context, form model.LoginForm) (*model.Session, string, error)
	logoutFn func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) Signup(ctx context.Context, creds model.Credentials) (string, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, creds)
	}
	return "", nil
}

func (m *mockAuthService) Login(ctx context.Context, form model.LoginForm) (*model.Session, string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, form)
	}
	return nil, "", errors.New("not configured")
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) FailureMessage(err error) string {
	var ve *validation.Error
	if errors.As(err, &ve) {
		return ve.Message
	}
	return "Something went wrong"
}

// mockCartService はCartServiceInterfaceのモック実装。
type mockCartService struct {
	loadFn   func(ctx context.Context) *cart.Page
	addFn    func(ctx context.Context, actor cart.Actor, id model.ProductID, qty int) cart.Outcome
	updateFn func(ctx context.Context, actor cart.Actor, id model.ProductID, qty int) cart.Outcome
	removeFn func(ctx context.Context, actor cart.Actor, id model.ProductID) cart.Outcome
}

func (m *mockCartService) Load(ctx context.Context) *cart.Page {
	if m.loadFn != nil {
		return m.loadFn(ctx)
	}
	return &cart.Page{State: cart.StateReady, View: cart.BuildView(nil)}
}

func (m *mockCartService) Add(ctx context.Context, actor cart.Actor, id model.ProductID, qty int) cart.Outcome {
	if m.addFn != nil {
		return m.addFn(ctx, actor, id, qty)
	}
	return cart.Outcome{}
}

func (m *mockCartService) UpdateQty(ctx context.Context, actor cart.Actor, id model.ProductID, qty int) cart.Outcome {
	if m.updateFn != nil {
		return m.updateFn(ctx, actor, id, qty)
	}
	return cart.Outcome{}
}

func (m *mockCartService) Remove(ctx context.Context, actor cart.Actor, id model.ProductID) cart.Outcome {
	if m.removeFn != nil {
		return m.removeFn(ctx, actor, id)
	}
	return cart.Outcome{}
}

// mockSessionFinder はセッションIDをキーにしたマップから検索する。
type mockSessionFinder struct {
	sessions map[string]*model.Session
}

func (m *mockSessionFinder) Current(ctx context.Context, id string) (*model.Session, error) {
	return m.sessions[id], nil
}

// --- テストヘルパー ---

var testImageSigner = imageproxy.NewSigner("test-image-secret")

type testRouterOption func(*RouterDeps)

func newTestRouter(t *testing.T, opts ...testRouterOption) http.Handler {
	t.Helper()

	renderer, err := NewRenderer(RenderConfig{ImageURLs: testImageSigner})
	if err != nil {
		t.Fatalf("NewRenderer() error: %v", err)
	}
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(1000, 1000))
	t.Cleanup(rl.Stop)

	deps := &RouterDeps{
		Logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),
		SessionFinder: &mockSessionFinder{sessions: map[string]*model.Session{}},
		RateLimiter:   rl,
		Renderer:      renderer,
		AuthService:   &mockAuthService{},
		AuthConfig:    AuthHandlerConfig{LoginRedirectDelay: 1500 * time.Millisecond},
		CartService:   &mockCartService{},
		Flash:         flash.NewStore("test-secret-for-flash-cookies-0123", flash.Options{}),
	}
	for _, opt := range opts {
		opt(deps)
	}
	return NewRouter(deps)
}

func withSessions(sessions ...*model.Session) testRouterOption {
	return func(d *RouterDeps) {
		m := map[string]*model.Session{}
		for _, s := range sessions {
			m[s.ID] = s
		}
		d.SessionFinder = &mockSessionFinder{sessions: m}
	}
}

// postForm はCSRFトークン付きのフォーム送信リクエストを生成する。
func postForm(path string, values url.Values, cookies ...*http.Cookie) *http.Request {
	if values == nil {
		values = url.Values{}
	}
	values.Set(middleware.CSRFFormField, testCSRFToken)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "192.0.2.10:5000"
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: testCSRFToken})
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func getPage(path string, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.10:5000"
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: testCSRFToken})
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func responseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}

func assertContains(t *testing.T, body, want string) {
	t.Helper()
	if !strings.Contains(body, want) {
		t.Errorf("body does not contain %q\nbody: %s", want, body)
	}
}

func assertNotContains(t *testing.T, body, unwanted string) {
	t.Helper()
	if strings.Contains(body, unwanted) {
		t.Errorf("body should not contain %q", unwanted)
	}
}
