// Package user はユーザープロフィール管理と管理者向け機能を提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/menuya/internal/model"
	"github.com/hitoshi/menuya/internal/repository"
)

// AdminChecker は管理者判定のインターフェース。*config.Configが満たす。
type AdminChecker interface {
	IsAdmin(email string) bool
}

// TextSanitizer は自由入力テキストのサニタイズインターフェース。
type TextSanitizer interface {
	SanitizeText(raw string) string
}

// Service はユーザープロフィールと管理者操作のサービス層。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer TextSanitizer
	admin     AdminChecker
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sanitizer TextSanitizer, admin AdminChecker) *Service {
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
		admin:     admin,
	}
}

// UpdateProfile は表示名と店舗名を更新し、更新後のユーザーを返す。
// 名前は空にできない。店舗名は空で上書きできる。
func (s *Service) UpdateProfile(ctx context.Context, userID, name, businessName string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("ユーザーの取得に失敗しました: %w", err))
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	name = s.sanitize(name)
	if name == "" {
		return nil, model.NewValidationError("名前を入力してください")
	}

	user.Name = name
	user.BusinessName = s.sanitize(businessName)

	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, model.NewStorageError(fmt.Errorf("プロフィールの更新に失敗しました: %w", err))
	}

	slog.Info("プロフィールを更新しました",
		slog.String("user_id", userID),
	)

	// updated_atはリポジトリ側で進むため、正確な値を返すには再取得する
	updated, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("ユーザーの再取得に失敗しました: %w", err))
	}
	if updated == nil {
		return nil, model.NewUserNotFoundError()
	}
	return updated, nil
}

// ListUsers は全ユーザーをメニュー数・公開数の集計付きで返す。
// 管理者メールリストに含まれるユーザーのみ呼び出せる。
func (s *Service) ListUsers(ctx context.Context, requesterID string) ([]model.UserWithCounts, error) {
	requester, err := s.userRepo.FindByID(ctx, requesterID)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("ユーザーの取得に失敗しました: %w", err))
	}
	if requester == nil {
		return nil, model.NewUnauthorizedError()
	}
	if s.admin == nil || !s.admin.IsAdmin(requester.Email) {
		return nil, model.NewAdminOnlyError()
	}

	users, err := s.userRepo.ListWithMenuCounts(ctx)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err))
	}
	return users, nil
}

func (s *Service) sanitize(raw string) string {
	if s.sanitizer == nil {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(s.sanitizer.SanitizeText(raw))
}
