// Package auth はサインアップ・ログインの処理とストアフロントセッションの管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/storeapi"
	"github.com/hitoshi/storefront/internal/validation"
)

// MsgSomethingWentWrong はサーバーメッセージがない失敗時の表示文言。
const MsgSomethingWentWrong = "Something went wrong"

const (
	signupSuccessPrefix = "🎉 "
	loginSuccessPrefix  = "✅ "
)

// フォーム名。検証エラーのメトリクスラベルに使用する。
const (
	FormSignup = "signup"
	FormLogin  = "login"
)

// StoreClient は認証に使うストアAPIの操作。
type StoreClient interface {
	Signup(ctx context.Context, creds model.Credentials) (*storeapi.AuthResponse, error)
	Login(ctx context.Context, form model.LoginForm) (*storeapi.AuthResponse, error)
}

// Recorder は認証まわりのメトリクス記録先。
type Recorder interface {
	RecordValidationRejected(form string)
	RecordSessionCreated()
	RecordSessionDeleted()
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	store       StoreClient
	sessionRepo repository.SessionRepository
	validator   *validation.Validator
	recorder    Recorder
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	store StoreClient,
	sessionRepo repository.SessionRepository,
	validator *validation.Validator,
	recorder Recorder,
	config ServiceConfig,
) *Service {
	return &Service{
		store:       store,
		sessionRepo: sessionRepo,
		validator:   validator,
		recorder:    recorder,
		config:      config,
		now:         time.Now,
	}
}

// Signup は入力を検証し、ストアAPIにユーザー登録を依頼する。
// 成功時は表示用メッセージ（"🎉 " + サーバーメッセージ）を返す。
// 検証エラー時はストアAPIを呼び出さない。
func (s *Service) Signup(ctx context.Context, creds model.Credentials) (string, error) {
	if err := s.validator.ValidateSignup(creds); err != nil {
		s.recorder.RecordValidationRejected(FormSignup)
		return "", err
	}

	resp, err := s.store.Signup(ctx, creds)
	if err != nil {
		return "", fmt.Errorf("signup failed: %w", err)
	}

	slog.Info("サインアップに成功しました", slog.String("email", creds.Email))
	return signupSuccessPrefix + resp.Message, nil
}

// Login は入力を検証してストアAPIでログインし、セッションを発行する。
// 成功時は永続化済みのセッションと表示用メッセージ（"✅ " + サーバーメッセージ）を返す。
// 失敗時はセッションを作成しない。
func (s *Service) Login(ctx context.Context, form model.LoginForm) (*model.Session, string, error) {
	if err := s.validator.ValidateLogin(form); err != nil {
		s.recorder.RecordValidationRejected(FormLogin)
		return nil, "", err
	}

	resp, err := s.store.Login(ctx, form)
	if err != nil {
		return nil, "", fmt.Errorf("login failed: %w", err)
	}

	session, err := s.createSession(ctx, resp)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("ログインに成功しました",
		slog.String("user_id", session.UserID),
		slog.Time("expires_at", session.ExpiresAt),
	)
	return session, loginSuccessPrefix + resp.Message, nil
}

// Current はセッションIDから有効なセッションを取得する。
// 未ログイン・期限切れの場合は (nil, nil) を返す。
func (s *Service) Current(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.Expired(s.now()) {
		return nil, nil
	}
	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.recorder.RecordSessionDeleted()
	slog.Info("ログアウトしました")
	return nil
}

// FailureMessage はSignup/Loginのエラーを画面表示用の文言に変換する。
// 検証エラーはその文言、サーバー拒否はサーバーメッセージ（加工しない）、それ以外は既定文言を返す。
func (s *Service) FailureMessage(err error) string {
	var ve *validation.Error
	if errors.As(err, &ve) {
		return ve.Message
	}
	return storeapi.MessageOr(err, MsgSomethingWentWrong)
}

// createSession はログイン応答からセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, resp *storeapi.AuthResponse) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		Token:     resp.Token,
		UserID:    resp.UserID,
		Email:     resp.Email,
		Name:      resp.Name,
		ExpiresAt: sessionExpiry(now, s.config.SessionMaxAge, resp.Token),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	s.recorder.RecordSessionCreated()

	return session, nil
}

// sessionExpiry はセッションの有効期限を返す。
// トークンがJWTでexpクレームを持つ場合、設定値とexpの早い方を採用する。
// 署名は検証しない（検証はストアAPIの責務）。
func sessionExpiry(now time.Time, maxAgeSec int, token string) time.Time {
	expiry := now.Add(time.Duration(maxAgeSec) * time.Second)

	exp, ok := tokenExpiry(token)
	if !ok {
		return expiry
	}
	if !exp.After(now) {
		slog.Warn("トークンのexpが過去のため設定値の有効期限を使用します", slog.Time("exp", exp))
		return expiry
	}
	if exp.Before(expiry) {
		return exp
	}
	return expiry
}

// tokenExpiry はJWTのexpクレームを署名検証なしで取り出す。
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
