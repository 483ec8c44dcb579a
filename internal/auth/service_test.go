package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/storeapi"
	"github.com/hitoshi/storefront/internal/validation"
)

// --- モック定義 ---

type mockStore struct {
	signupFn func(ctx context.Context, creds model.Credentials) (*storeapi.AuthResponse, error)
	loginFn  func(ctx context.Context, form model.LoginForm) (*storeapi.AuthResponse, error)
	calls    int
}

func (m *mockStore) Signup(ctx context.Context, creds model.Credentials) (*storeapi.AuthResponse, error) {
	m.calls++
	if m.signupFn != nil {
		return m.signupFn(ctx, creds)
	}
	return &storeapi.AuthResponse{Success: true}, nil
}

func (m *mockStore) Login(ctx context.Context, form model.LoginForm) (*storeapi.AuthResponse, error) {
	m.calls++
	if m.loginFn != nil {
		return m.loginFn(ctx, form)
	}
	return &storeapi.AuthResponse{Success: true}, nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	findByIDFn   func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn func(ctx context.Context, id string) error
	created      []*model.Session
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	m.created = append(m.created, session)
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type mockRecorder struct {
	rejected map[string]int
	created  int
	deleted  int
}

func (m *mockRecorder) RecordValidationRejected(form string) {
	if m.rejected == nil {
		m.rejected = map[string]int{}
	}
	m.rejected[form]++
}
func (m *mockRecorder) RecordSessionCreated() { m.created++ }
func (m *mockRecorder) RecordSessionDeleted() { m.deleted++ }

func newTestService(store *mockStore, repo *mockSessionRepo, rec *mockRecorder) *Service {
	return NewService(store, repo, validation.New(), rec, ServiceConfig{SessionMaxAge: 86400})
}

func validCredentials() model.Credentials {
	return model.Credentials{
		Name:            "Ann",
		MobileNo:        "9876543210",
		Email:           "ann@example.com",
		Password:        "secret",
		ConfirmPassword: "secret",
	}
}

// --- Signup ---

func TestSignup_Success_PrefixesServerMessage(t *testing.T) {
	var got model.Credentials
	store := &mockStore{signupFn: func(_ context.Context, c model.Credentials) (*storeapi.AuthResponse, error) {
		got = c
		return &storeapi.AuthResponse{Success: true, Message: "User registered"}, nil
	}}
	svc := newTestService(store, &mockSessionRepo{}, &mockRecorder{})

	msg, err := svc.Signup(context.Background(), validCredentials())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "🎉 User registered" {
		t.Errorf("msg = %q, want %q", msg, "🎉 User registered")
	}
	if got != validCredentials() {
		t.Errorf("store received %+v", got)
	}
}

func TestSignup_ValidationFailure_NoNetworkCall(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *model.Credentials)
		want   string
	}{
		{"空項目", func(c *model.Credentials) { c.Name = "" }, validation.MsgFillAllFields},
		{"パスワード不一致", func(c *model.Credentials) { c.ConfirmPassword = "other" }, validation.MsgPasswordMismatch},
		{"携帯番号9桁", func(c *model.Credentials) { c.MobileNo = "123456789" }, validation.MsgInvalidMobile},
		{"メール形式", func(c *model.Credentials) { c.Email = "ann@example" }, validation.MsgInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			rec := &mockRecorder{}
			svc := newTestService(store, &mockSessionRepo{}, rec)

			c := validCredentials()
			tt.modify(&c)

			_, err := svc.Signup(context.Background(), c)
			if !validation.IsValidationError(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := svc.FailureMessage(err); got != tt.want {
				t.Errorf("FailureMessage = %q, want %q", got, tt.want)
			}
			if store.calls != 0 {
				t.Errorf("store called %d times, want 0", store.calls)
			}
			if rec.rejected[FormSignup] != 1 {
				t.Errorf("rejected[signup] = %d, want 1", rec.rejected[FormSignup])
			}
		})
	}
}

func TestSignup_ServerRejection_UsesServerMessage(t *testing.T) {
	store := &mockStore{signupFn: func(context.Context, model.Credentials) (*storeapi.AuthResponse, error) {
		return nil, &storeapi.APIError{StatusCode: 409, Message: "Email already exists"}
	}}
	svc := newTestService(store, &mockSessionRepo{}, &mockRecorder{})

	_, err := svc.Signup(context.Background(), validCredentials())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := svc.FailureMessage(err); got != "Email already exists" {
		t.Errorf("FailureMessage = %q, want %q", got, "Email already exists")
	}
}

func TestFailureMessage_ServerMessageIsVerbatim(t *testing.T) {
	svc := newTestService(&mockStore{}, &mockSessionRepo{}, &mockRecorder{})

	err := fmt.Errorf("login failed: %w", &storeapi.APIError{StatusCode: 400, Message: "Use <8 chars> & digits"})
	if got := svc.FailureMessage(err); got != "Use <8 chars> & digits" {
		t.Errorf("FailureMessage = %q, want server message unchanged", got)
	}
}

func TestSignup_TransportFailure_UsesFallback(t *testing.T) {
	store := &mockStore{signupFn: func(context.Context, model.Credentials) (*storeapi.AuthResponse, error) {
		return nil, fmt.Errorf("dial: %w", storeapi.ErrTransport)
	}}
	svc := newTestService(store, &mockSessionRepo{}, &mockRecorder{})

	_, err := svc.Signup(context.Background(), validCredentials())
	if !errors.Is(err, storeapi.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if got := svc.FailureMessage(err); got != MsgSomethingWentWrong {
		t.Errorf("FailureMessage = %q, want %q", got, MsgSomethingWentWrong)
	}
}

// --- Login ---

func TestLogin_Success_PersistsSession(t *testing.T) {
	store := &mockStore{loginFn: func(_ context.Context, f model.LoginForm) (*storeapi.AuthResponse, error) {
		return &storeapi.AuthResponse{
			Success: true, Message: "Login successful",
			Token: "opaque-token", UserID: "7", Email: f.Email, Name: "Ann",
		}, nil
	}}
	repo := &mockSessionRepo{}
	rec := &mockRecorder{}
	svc := newTestService(store, repo, rec)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	session, msg, err := svc.Login(context.Background(), model.LoginForm{Email: "ann@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "✅ Login successful" {
		t.Errorf("msg = %q", msg)
	}
	if len(repo.created) != 1 || repo.created[0] != session {
		t.Fatalf("expected session to be persisted once, got %d", len(repo.created))
	}
	if session.Token != "opaque-token" || session.UserID != "7" || session.Email != "ann@example.com" || session.Name != "Ann" {
		t.Errorf("unexpected session fields: %+v", session)
	}
	if len(session.ID) != 64 {
		t.Errorf("session ID length = %d, want 64", len(session.ID))
	}
	if want := fixed.Add(24 * time.Hour); !session.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", session.ExpiresAt, want)
	}
	if rec.created != 1 {
		t.Errorf("RecordSessionCreated called %d times, want 1", rec.created)
	}
}

func TestLogin_Rejected_NoSession(t *testing.T) {
	store := &mockStore{loginFn: func(context.Context, model.LoginForm) (*storeapi.AuthResponse, error) {
		return nil, &storeapi.APIError{StatusCode: 401, Message: "Invalid credentials"}
	}}
	repo := &mockSessionRepo{}
	svc := newTestService(store, repo, &mockRecorder{})

	session, _, err := svc.Login(context.Background(), model.LoginForm{Email: "ann@example.com", Password: "bad"})
	if err == nil {
		t.Fatal("expected error")
	}
	if session != nil {
		t.Error("expected nil session")
	}
	if len(repo.created) != 0 {
		t.Error("session must not be persisted on failure")
	}
	if got := svc.FailureMessage(err); got != "Invalid credentials" {
		t.Errorf("FailureMessage = %q", got)
	}
}

func TestLogin_ValidationFailure(t *testing.T) {
	tests := []struct {
		name string
		form model.LoginForm
		want string
	}{
		{"メール空", model.LoginForm{Password: "pw"}, validation.MsgFillAllFields},
		{"パスワード空", model.LoginForm{Email: "a@b.co"}, validation.MsgFillAllFields},
		{"メール形式", model.LoginForm{Email: "abc", Password: "pw"}, validation.MsgInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			svc := newTestService(store, &mockSessionRepo{}, &mockRecorder{})

			_, _, err := svc.Login(context.Background(), tt.form)
			if got := svc.FailureMessage(err); got != tt.want {
				t.Errorf("FailureMessage = %q, want %q", got, tt.want)
			}
			if store.calls != 0 {
				t.Error("store must not be called on validation failure")
			}
		})
	}
}

func TestLogin_RepoFailure_ReturnsError(t *testing.T) {
	repo := &mockSessionRepo{createFn: func(context.Context, *model.Session) error {
		return errors.New("db down")
	}}
	svc := newTestService(&mockStore{}, repo, &mockRecorder{})

	_, _, err := svc.Login(context.Background(), model.LoginForm{Email: "a@b.co", Password: "pw"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := svc.FailureMessage(err); got != MsgSomethingWentWrong {
		t.Errorf("FailureMessage = %q, want fallback", got)
	}
}

// --- Session lifecycle ---

func TestCurrent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	live := &model.Session{ID: "live", ExpiresAt: now.Add(time.Minute)}
	dead := &model.Session{ID: "dead", ExpiresAt: now}

	repo := &mockSessionRepo{findByIDFn: func(_ context.Context, id string) (*model.Session, error) {
		switch id {
		case "live":
			return live, nil
		case "dead":
			return dead, nil
		case "broken":
			return nil, errors.New("db down")
		}
		return nil, nil
	}}
	svc := newTestService(&mockStore{}, repo, &mockRecorder{})
	svc.now = func() time.Time { return now }

	if s, err := svc.Current(context.Background(), "live"); err != nil || s != live {
		t.Errorf("live: got %v, %v", s, err)
	}
	if s, err := svc.Current(context.Background(), "dead"); err != nil || s != nil {
		t.Errorf("dead: got %v, %v; want nil, nil", s, err)
	}
	if s, err := svc.Current(context.Background(), ""); err != nil || s != nil {
		t.Errorf("empty: got %v, %v; want nil, nil", s, err)
	}
	if _, err := svc.Current(context.Background(), "broken"); err == nil {
		t.Error("broken: expected error")
	}
}

func TestLogout(t *testing.T) {
	var deleted string
	repo := &mockSessionRepo{deleteByIDFn: func(_ context.Context, id string) error {
		deleted = id
		return nil
	}}
	rec := &mockRecorder{}
	svc := newTestService(&mockStore{}, repo, rec)

	if err := svc.Logout(context.Background(), "sess-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != "sess-1" {
		t.Errorf("deleted = %q, want sess-1", deleted)
	}
	if rec.deleted != 1 {
		t.Errorf("RecordSessionDeleted = %d, want 1", rec.deleted)
	}
	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Error("expected error for empty session ID")
	}
}

// --- Token expiry ---

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func TestSessionExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	maxAge := 86400

	tests := []struct {
		name  string
		token string
		want  time.Time
	}{
		{"不透明トークン", "opaque", now.Add(24 * time.Hour)},
		{"空トークン", "", now.Add(24 * time.Hour)},
		{"expが設定値より早い", signedToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}), now.Add(time.Hour)},
		{"expが設定値より遅い", signedToken(t, jwt.MapClaims{"exp": now.Add(72 * time.Hour).Unix()}), now.Add(24 * time.Hour)},
		{"expなし", signedToken(t, jwt.MapClaims{"sub": "7"}), now.Add(24 * time.Hour)},
		{"expが過去", signedToken(t, jwt.MapClaims{"exp": now.Add(-time.Hour).Unix()}), now.Add(24 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sessionExpiry(now, maxAge, tt.token); !got.Equal(tt.want) {
				t.Errorf("sessionExpiry = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateSessionID_Unique(t *testing.T) {
	a, err := generateSessionID()
	if err != nil {
		t.Fatal(err)
	}
	b, err := generateSessionID()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("expected unique session IDs")
	}
}
