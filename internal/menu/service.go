// Package menu はメニューの作成・編集・公開のドメインロジックを提供する。
// 所有権の強制と公開スラッグの一意性はすべてこの層で検査される。
package menu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/menuya/internal/model"
	"github.com/hitoshi/menuya/internal/repository"
)

// slugPattern は公開スラッグの形式。小文字英数字とハイフンのみ、3〜50文字。
var slugPattern = regexp.MustCompile(`^[a-z0-9-]{3,50}$`)

// TextSanitizer は公開ページに到達するテキストを無害化する。
type TextSanitizer interface {
	SanitizeText(raw string) string
}

// LogoFetcher はURLからロゴ画像を取得する。
type LogoFetcher interface {
	DiscoverAndFetch(ctx context.Context, rawURL string) ([]byte, string, error)
}

// MetricsRecorder は公開・ロゴ取得のメトリクスを記録する。
type MetricsRecorder interface {
	RecordMenuPublished()
	RecordLogoFetchFailure(reason string)
}

// UpdateFields は部分更新で指定可能なフィールド。nilのフィールドは変更されない。
type UpdateFields struct {
	Name        *string
	Description *string
	Background  *string
	FontFamily  *string
	ColorTheme  *string
	NavTheme    *string
	LogoSize    *string
}

// ServiceConfig はメニューサービスの設定。
type ServiceConfig struct {
	BaseURL string // 公開URLの組み立てに使用
}

// Service はメニュー管理のサービス層。
// 取得・作成・部分更新・セクション保存・公開・削除・公開参照を提供する。
type Service struct {
	menuRepo  repository.MenuRepository
	userRepo  repository.UserRepository
	sanitizer TextSanitizer
	logo      LogoFetcher
	metrics   MetricsRecorder
	config    ServiceConfig
}

// NewService はServiceを生成する。logoとmetricsはnil許容。
func NewService(
	menuRepo repository.MenuRepository,
	userRepo repository.UserRepository,
	sanitizer TextSanitizer,
	logo LogoFetcher,
	metrics MetricsRecorder,
	config ServiceConfig,
) *Service {
	return &Service{
		menuRepo:  menuRepo,
		userRepo:  userRepo,
		sanitizer: sanitizer,
		logo:      logo,
		metrics:   metrics,
		config:    config,
	}
}

// List はユーザーのメニュー一覧をセクション付きで返す。削除済みは含まれない。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Menu, error) {
	menus, err := s.menuRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("メニュー一覧の取得に失敗しました: %w", err))
	}
	return menus, nil
}

// Get は自分のメニューをセクション付きで1件返す。
func (s *Service) Get(ctx context.Context, userID, menuID string) (*model.Menu, error) {
	menu, err := s.ownedMenu(ctx, userID, menuID)
	if err != nil {
		return nil, err
	}

	sections, err := s.menuRepo.ListSections(ctx, menuID)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("セクション一覧の取得に失敗しました: %w", err))
	}
	menu.Sections = sections
	return menu, nil
}

// Create は新しい下書きメニューを作成する。
// 作成前に所有者のメニュー上限（削除済みを除く）を検査する。
func (s *Service) Create(ctx context.Context, userID, name, description string) (*model.Menu, error) {
	name = s.sanitizeText(name)
	if name == "" {
		return nil, model.NewValidationError("メニュー名を入力してください")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("ユーザーの取得に失敗しました: %w", err))
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	count, err := s.menuRepo.CountActiveByUserID(ctx, userID)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("メニュー数の取得に失敗しました: %w", err))
	}
	if count >= user.MaxMenus {
		return nil, model.NewMenuLimitError(user.MaxMenus)
	}

	now := time.Now()
	menu := &model.Menu{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        name,
		Description: s.sanitizeText(description),
		Status:      model.MenuStatusDraft,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.menuRepo.Create(ctx, menu); err != nil {
		return nil, model.NewStorageError(fmt.Errorf("メニューの作成に失敗しました: %w", err))
	}

	slog.Info("menu created",
		slog.String("menu_id", menu.ID),
		slog.String("user_id", userID),
	)
	return menu, nil
}

// Update はメニューを部分更新する。指定されたフィールドだけがマージされる。
func (s *Service) Update(ctx context.Context, userID, menuID string, fields UpdateFields) (*model.Menu, error) {
	menu, err := s.ownedMenu(ctx, userID, menuID)
	if err != nil {
		return nil, err
	}

	if fields.Name != nil {
		name := s.sanitizeText(*fields.Name)
		if name == "" {
			return nil, model.NewValidationError("メニュー名を入力してください")
		}
		menu.Name = name
	}
	if fields.Description != nil {
		menu.Description = s.sanitizeText(*fields.Description)
	}
	if fields.Background != nil {
		menu.Background = strings.TrimSpace(*fields.Background)
	}
	if fields.FontFamily != nil {
		menu.FontFamily = strings.TrimSpace(*fields.FontFamily)
	}
	if fields.ColorTheme != nil {
		menu.ColorTheme = strings.TrimSpace(*fields.ColorTheme)
	}
	if fields.NavTheme != nil {
		menu.NavTheme = strings.TrimSpace(*fields.NavTheme)
	}
	if fields.LogoSize != nil {
		menu.LogoSize = strings.TrimSpace(*fields.LogoSize)
	}

	if err := s.menuRepo.Update(ctx, menu); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewMenuNotFoundError(menuID)
		}
		return nil, model.NewStorageError(fmt.Errorf("メニューの更新に失敗しました: %w", err))
	}

	// updated_atはリポジトリが進めるため、正確な値を返すには再取得する
	return s.Get(ctx, userID, menuID)
}

// SaveSections はメニューの全セクションを置換する。全か無かで行われ、
// 成功するとメニューのversionが+1される。
func (s *Service) SaveSections(ctx context.Context, userID, menuID string, sections []model.MenuSection) (*model.Menu, error) {
	if _, err := s.ownedMenu(ctx, userID, menuID); err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(sections))
	cleaned := make([]model.MenuSection, len(sections))
	for i, sec := range sections {
		if seen[sec.SectionID] {
			return nil, model.NewValidationError(fmt.Sprintf("セクションIDが重複しています: %d", sec.SectionID))
		}
		seen[sec.SectionID] = true
		cleaned[i] = s.sanitizeSection(menuID, sec)
	}

	if err := s.menuRepo.ReplaceSections(ctx, menuID, cleaned); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewMenuNotFoundError(menuID)
		}
		return nil, model.NewStorageError(fmt.Errorf("セクションの保存に失敗しました: %w", err))
	}

	return s.Get(ctx, userID, menuID)
}

// Publish はメニューを公開する。スラッグ形式を検査し、公開中メニューの中で
// 一意であること（自分自身の再公開は除く）を確認してから書き込む。
// 同時公開の競合はバックエンドの一意性強制が検出し、スラッグ重複として返る。
func (s *Service) Publish(ctx context.Context, userID, menuID, slug, title, subtitle string) (*model.Menu, string, error) {
	menu, err := s.ownedMenu(ctx, userID, menuID)
	if err != nil {
		return nil, "", err
	}

	if !slugPattern.MatchString(slug) {
		return nil, "", model.NewInvalidSlugError(slug)
	}

	// 公開中メニューの中でスラッグが一意かを事前確認する。
	// 自分自身の前回スラッグとの一致は衝突ではない。
	existing, err := s.menuRepo.FindPublishedBySlug(ctx, slug)
	if err != nil {
		return nil, "", model.NewStorageError(fmt.Errorf("スラッグの確認に失敗しました: %w", err))
	}
	if existing != nil && existing.ID != menu.ID {
		return nil, "", model.NewSlugConflictError(slug)
	}

	title = s.sanitizeText(title)
	if title == "" {
		title = menu.Name
	}

	now := time.Now()
	menu.Status = model.MenuStatusPublished
	menu.Slug = slug
	menu.Title = title
	menu.Subtitle = s.sanitizeText(subtitle)
	menu.PublishedAt = &now

	if err := s.menuRepo.Update(ctx, menu); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// 事前確認をすり抜けた同時公開の敗者
			return nil, "", model.NewSlugConflictError(slug)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", model.NewMenuNotFoundError(menuID)
		}
		return nil, "", model.NewStorageError(fmt.Errorf("メニューの公開に失敗しました: %w", err))
	}

	if s.metrics != nil {
		s.metrics.RecordMenuPublished()
	}
	slog.Info("menu published",
		slog.String("menu_id", menuID),
		slog.String("slug", slug),
	)

	updated, err := s.Get(ctx, userID, menuID)
	if err != nil {
		return nil, "", err
	}
	return updated, s.PublicURL(slug), nil
}

// Delete はメニューをdeleted状態に遷移させ、全セクションを物理削除する。
// deletedは終端状態で、復元パスはない。
func (s *Service) Delete(ctx context.Context, userID, menuID string) error {
	if _, err := s.ownedMenu(ctx, userID, menuID); err != nil {
		return err
	}

	if err := s.menuRepo.SoftDelete(ctx, menuID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewMenuNotFoundError(menuID)
		}
		return model.NewStorageError(fmt.Errorf("メニューの削除に失敗しました: %w", err))
	}

	slog.Info("menu deleted",
		slog.String("menu_id", menuID),
		slog.String("user_id", userID),
	)
	return nil
}

// PublishedBySlug は公開中メニューをスラッグで返す。認証不要の公開参照。
func (s *Service) PublishedBySlug(ctx context.Context, slug string) (*model.Menu, error) {
	menu, err := s.menuRepo.FindPublishedBySlug(ctx, slug)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("スラッグによるメニューの検索に失敗しました: %w", err))
	}
	if menu == nil {
		return nil, model.NewMenuNotFoundError(slug)
	}
	return menu, nil
}

// SetLogo はURLからロゴ画像を取得してメニューに設定する。
// 取得失敗は検証系エラーとして呼び出し元に返る。
func (s *Service) SetLogo(ctx context.Context, userID, menuID, logoURL string) (*model.Menu, error) {
	menu, err := s.ownedMenu(ctx, userID, menuID)
	if err != nil {
		return nil, err
	}
	if s.logo == nil {
		return nil, fmt.Errorf("logo fetcher is not configured")
	}

	data, mime, err := s.logo.DiscoverAndFetch(ctx, logoURL)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordLogoFetchFailure(logoFailureReason(err))
		}
		return nil, err
	}

	menu.LogoData = data
	menu.LogoMime = mime

	if err := s.menuRepo.Update(ctx, menu); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewMenuNotFoundError(menuID)
		}
		return nil, model.NewStorageError(fmt.Errorf("ロゴの保存に失敗しました: %w", err))
	}

	slog.Info("menu logo updated",
		slog.String("menu_id", menuID),
		slog.String("mime", mime),
		slog.Int("size_bytes", len(data)),
	)
	return s.Get(ctx, userID, menuID)
}

// PublicURL はスラッグから公開URLを組み立てる。
func (s *Service) PublicURL(slug string) string {
	return strings.TrimSuffix(s.config.BaseURL, "/") + "/api/public/menus/" + slug
}

// ownedMenu はメニューを取得し、生存状態と所有権を検査する。
// 存在しない・削除済み -> not found、他ユーザー所有 -> forbidden。
// 所有権は作成後に移転しないため、check-then-actで十分。
func (s *Service) ownedMenu(ctx context.Context, userID, menuID string) (*model.Menu, error) {
	menu, err := s.menuRepo.FindByID(ctx, menuID)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("メニューの取得に失敗しました: %w", err))
	}
	if menu == nil {
		return nil, model.NewMenuNotFoundError(menuID)
	}
	// 削除済みは存在しない扱い。所有判定より先に返し、IDの存在を漏らさない。
	if menu.Status == model.MenuStatusDeleted {
		return nil, model.NewMenuNotFoundError(menuID)
	}
	if menu.UserID != userID {
		return nil, model.NewMenuForbiddenError()
	}
	return menu, nil
}

// sanitizeSection はセクション内のテキストをすべて無害化し、MenuIDを強制する。
func (s *Service) sanitizeSection(menuID string, sec model.MenuSection) model.MenuSection {
	out := model.MenuSection{
		MenuID:    menuID,
		SectionID: sec.SectionID,
		Name:      s.sanitizeText(sec.Name),
		Type:      strings.TrimSpace(sec.Type),
	}

	out.Columns = make([]string, len(sec.Columns))
	for i, c := range sec.Columns {
		out.Columns[i] = s.sanitizeText(c)
	}
	out.TitleColumns = make([]string, len(sec.TitleColumns))
	for i, c := range sec.TitleColumns {
		out.TitleColumns[i] = s.sanitizeText(c)
	}
	out.Items = make([]model.SectionItem, len(sec.Items))
	for i, item := range sec.Items {
		cleaned := make(model.SectionItem, len(item))
		for k, v := range item {
			cleaned[s.sanitizeText(k)] = s.sanitizeText(v)
		}
		out.Items[i] = cleaned
	}
	return out
}

// sanitizeText はサニタイザ未設定でも安全に動くためのラッパー。
func (s *Service) sanitizeText(raw string) string {
	if s.sanitizer == nil {
		return strings.TrimSpace(raw)
	}
	return s.sanitizer.SanitizeText(raw)
}

// logoFailureReason はメトリクスのラベルに使う失敗理由コードを取り出す。
func logoFailureReason(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return "INTERNAL"
}
