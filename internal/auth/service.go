// Package auth はメール+パスワード認証とGoogleログイン、セッション管理を提供する。
// どちらの認証経路でも同じ形式のセッションを発行する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/menuya/internal/model"
	"github.com/hitoshi/menuya/internal/repository"
)

// minPasswordLength は登録時に要求するパスワードの最低文字数。
const minPasswordLength = 8

// OAuthUserInfo はGoogleから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	GoogleID string // Googleのsubクレーム
	Email    string
	Name     string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 本番実装はGoogleOAuthProvider。テストではモックに差し替える。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge   int // セッション有効期間（秒）
	DefaultMaxMenus int // 新規ユーザーのメニュー上限
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
// Googleログインを無効にする場合はoauthにnilを渡す。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// GoogleEnabled はGoogleログインが構成されているかを返す。
func (s *Service) GoogleEnabled() bool {
	return s.oauth != nil
}

// Register はメール+パスワードでユーザーを登録し、セッションを発行する。
// メールアドレスは小文字に正規化して保存する。登録済みメールの場合は
// EMAIL_TAKENエラーを返す。
func (s *Service) Register(ctx context.Context, email, password, name, businessName string) (*model.User, *model.Session, error) {
	email = normalizeEmail(email)
	if err := validateRegistration(email, password, name); err != nil {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, nil, model.NewValidationError("パスワードは72文字以内で入力してください")
		}
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(name),
		BusinessName: strings.TrimSpace(businessName),
		PlanTier:     model.PlanTierFree,
		MaxMenus:     s.config.DefaultMaxMenus,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActiveAt: now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, nil, model.NewEmailTakenError()
		}
		return nil, nil, model.NewStorageError(fmt.Errorf("failed to create user: %w", err))
	}

	slog.Info("new user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	return user, session, nil
}

// Login はメール+パスワードを検証し、セッションを発行する。
// メールが未登録の場合もパスワード不一致の場合も同じエラーを返し、
// アカウントの存在有無を漏らさない。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	email = normalizeEmail(email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, model.NewStorageError(fmt.Errorf("failed to find user by email: %w", err))
	}
	if user == nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}
	// PasswordHashが空のアカウントはGoogleログイン専用
	if user.PasswordHash == "" {
		return nil, nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	s.touchLastActive(ctx, user.ID)

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return user, session, nil
}

// GetLoginURL はGoogle認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はGoogleのOAuthコールバックを処理し、セッションを発行する。
// ユーザーの特定は次の順で行う:
//  1. GoogleIDが一致する既存ユーザー -> そのままログイン
//  2. メールアドレスが一致する既存ユーザー -> GoogleIDを紐付けてログイン
//  3. どちらも無し -> パスワード無しの新規ユーザーを作成
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	user, err := s.userRepo.FindByGoogleID(ctx, userInfo.GoogleID)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("failed to find user by google ID: %w", err))
	}

	if user == nil {
		user, err = s.linkOrCreateGoogleUser(ctx, userInfo)
		if err != nil {
			return nil, err
		}
	} else {
		slog.Info("existing user logged in via google", slog.String("user_id", user.ID))
	}

	s.touchLastActive(ctx, user.ID)

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return session, nil
}

// linkOrCreateGoogleUser はGoogleID未登録のGoogleユーザーを既存アカウントに
// 紐付けるか、新規アカウントを作成する。
func (s *Service) linkOrCreateGoogleUser(ctx context.Context, userInfo *OAuthUserInfo) (*model.User, error) {
	email := normalizeEmail(userInfo.Email)
	if email == "" {
		return nil, fmt.Errorf("google user info has no email")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("failed to find user by email: %w", err))
	}

	if user != nil {
		// メールが一致する既存アカウントにGoogleIDを紐付ける
		user.GoogleID = userInfo.GoogleID
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, model.NewStorageError(fmt.Errorf("failed to link google account: %w", err))
		}
		slog.Info("google account linked to existing user",
			slog.String("user_id", user.ID),
		)
		return user, nil
	}

	now := time.Now()
	user = &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         userInfo.Name,
		PlanTier:     model.PlanTierFree,
		MaxMenus:     s.config.DefaultMaxMenus,
		GoogleID:     userInfo.GoogleID,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActiveAt: now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, model.NewStorageError(fmt.Errorf("failed to create user: %w", err))
	}

	slog.Info("new user created via google",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return model.NewStorageError(fmt.Errorf("failed to delete session: %w", err))
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("failed to find session: %w", err))
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("failed to find user: %w", err))
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	// /api/auth/me の参照を活動時刻の更新に使う（ベストエフォート）
	s.touchLastActive(ctx, user.ID)

	return user, nil
}

// touchLastActive は最終アクティブ日時を更新する。
// ログイン処理を失敗させないため、エラーは警告ログに留める。
func (s *Service) touchLastActive(ctx context.Context, userID string) {
	if err := s.userRepo.UpdateLastActive(ctx, userID); err != nil {
		slog.Warn("failed to update last active",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, model.NewStorageError(fmt.Errorf("failed to save session: %w", err))
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// validateRegistration は登録入力を検証する。emailは正規化済みであること。
func validateRegistration(email, password, name string) error {
	if email == "" || !strings.Contains(email, "@") {
		return model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	if len(password) < minPasswordLength {
		return model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で入力してください", minPasswordLength))
	}
	if strings.TrimSpace(name) == "" {
		return model.NewValidationError("名前を入力してください")
	}
	return nil
}

// normalizeEmail はメールアドレスを小文字に正規化する。
// リポジトリのメール検索は正規化済みの値を前提とする。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
