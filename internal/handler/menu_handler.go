package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/menuya/internal/menu"
	"github.com/hitoshi/menuya/internal/middleware"
	"github.com/hitoshi/menuya/internal/model"
)

// MenuServiceInterface はメニューハンドラーが必要とするサービスインターフェース。
type MenuServiceInterface interface {
	// List はユーザーのメニュー一覧をセクション付きで返す。
	List(ctx context.Context, userID string) ([]*model.Menu, error)
	// Get は自分のメニューをセクション付きで1件返す。
	Get(ctx context.Context, userID, menuID string) (*model.Menu, error)
	// Create は新しい下書きメニューを作成する。
	Create(ctx context.Context, userID, name, description string) (*model.Menu, error)
	// Update はメニューを部分更新する。
	Update(ctx context.Context, userID, menuID string, fields menu.UpdateFields) (*model.Menu, error)
	// SaveSections はセクションを全置換する。
	SaveSections(ctx context.Context, userID, menuID string, sections []model.MenuSection) (*model.Menu, error)
	// Publish はメニューをスラッグ付きで公開し、公開URLを返す。
	Publish(ctx context.Context, userID, menuID, slug, title, subtitle string) (*model.Menu, string, error)
	// Delete はメニューをソフト削除する。
	Delete(ctx context.Context, userID, menuID string) error
	// SetLogo はURLからロゴを取得してメニューに設定する。
	SetLogo(ctx context.Context, userID, menuID, logoURL string) (*model.Menu, error)
}

// MenuHandler はメニュー管理のHTTPハンドラー。
type MenuHandler struct {
	service MenuServiceInterface
}

// NewMenuHandler はMenuHandlerを生成する。
func NewMenuHandler(service MenuServiceInterface) *MenuHandler {
	return &MenuHandler{
		service: service,
	}
}

// createMenuRequest はメニュー作成リクエストのボディ。
type createMenuRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// updateMenuRequest はメニュー部分更新リクエストのボディ。
// nilのフィールドは変更されない。
type updateMenuRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Background  *string `json:"background"`
	FontFamily  *string `json:"font_family"`
	ColorTheme  *string `json:"color_theme"`
	NavTheme    *string `json:"nav_theme"`
	LogoSize    *string `json:"logo_size"`
}

// sectionPayload はセクション保存リクエスト内の1セクション。
type sectionPayload struct {
	SectionID    int                 `json:"section_id"`
	Name         string              `json:"name"`
	Type         string              `json:"type"`
	Columns      []string            `json:"columns"`
	TitleColumns []string            `json:"title_columns"`
	Items        []model.SectionItem `json:"items"`
}

// saveSectionsRequest はセクション全置換リクエストのボディ。
type saveSectionsRequest struct {
	Sections []sectionPayload `json:"sections"`
}

// publishMenuRequest はメニュー公開リクエストのボディ。
type publishMenuRequest struct {
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

// setLogoRequest はロゴ設定リクエストのボディ。
type setLogoRequest struct {
	URL string `json:"url"`
}

// menuSectionResponse はセクションのAPIレスポンス。
type menuSectionResponse struct {
	SectionID    int                 `json:"section_id"`
	Name         string              `json:"name"`
	Type         string              `json:"type,omitempty"`
	Columns      []string            `json:"columns"`
	TitleColumns []string            `json:"title_columns,omitempty"`
	Items        []model.SectionItem `json:"items"`
}

// menuResponse はメニュー情報のAPIレスポンス。
// ロゴはdata URLとして埋め込んで返す。
type menuResponse struct {
	ID          string                `json:"id"`
	UserID      string                `json:"user_id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Status      string                `json:"status"`
	Background  string                `json:"background,omitempty"`
	FontFamily  string                `json:"font_family,omitempty"`
	ColorTheme  string                `json:"color_theme,omitempty"`
	NavTheme    string                `json:"nav_theme,omitempty"`
	Logo        string                `json:"logo,omitempty"`
	LogoSize    string                `json:"logo_size,omitempty"`
	Slug        string                `json:"slug,omitempty"`
	Title       string                `json:"title,omitempty"`
	Subtitle    string                `json:"subtitle,omitempty"`
	PublishedAt *time.Time            `json:"published_at,omitempty"`
	Version     int64                 `json:"version"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	Sections    []menuSectionResponse `json:"sections"`
}

// publishMenuResponse は公開操作のAPIレスポンス。
type publishMenuResponse struct {
	menuResponse
	PublicURL string `json:"public_url"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// ListMenus はユーザーのメニュー一覧を取得する。
// GET /api/menus
func (h *MenuHandler) ListMenus(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	menus, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]menuResponse, len(menus))
	for i, m := range menus {
		results[i] = toMenuResponse(m)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// CreateMenu はメニューを作成する。
// POST /api/menus
func (h *MenuHandler) CreateMenu(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createMenuRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	created, err := h.service.Create(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toMenuResponse(created))
}

// GetMenu はメニュー詳細を取得する。
// GET /api/menus/:id
func (h *MenuHandler) GetMenu(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	menuID := chi.URLParam(r, "id")

	m, err := h.service.Get(r.Context(), userID, menuID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toMenuResponse(m))
}

// UpdateMenu はメニューを部分更新する。
// PATCH /api/menus/:id
func (h *MenuHandler) UpdateMenu(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	menuID := chi.URLParam(r, "id")

	var req updateMenuRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	updated, err := h.service.Update(r.Context(), userID, menuID, menu.UpdateFields{
		Name:        req.Name,
		Description: req.Description,
		Background:  req.Background,
		FontFamily:  req.FontFamily,
		ColorTheme:  req.ColorTheme,
		NavTheme:    req.NavTheme,
		LogoSize:    req.LogoSize,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toMenuResponse(updated))
}

// SaveSections はメニューのセクションを全置換する。
// PUT /api/menus/:id/sections
func (h *MenuHandler) SaveSections(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	menuID := chi.URLParam(r, "id")

	var req saveSectionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	sections := make([]model.MenuSection, len(req.Sections))
	for i, sec := range req.Sections {
		sections[i] = model.MenuSection{
			SectionID:    sec.SectionID,
			Name:         sec.Name,
			Type:         sec.Type,
			Columns:      sec.Columns,
			TitleColumns: sec.TitleColumns,
			Items:        sec.Items,
		}
	}

	updated, err := h.service.SaveSections(r.Context(), userID, menuID, sections)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toMenuResponse(updated))
}

// PublishMenu はメニューをスラッグ付きで公開する。
// POST /api/menus/:id/publish
func (h *MenuHandler) PublishMenu(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	menuID := chi.URLParam(r, "id")

	var req publishMenuRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	published, publicURL, err := h.service.Publish(r.Context(), userID, menuID, req.Slug, req.Title, req.Subtitle)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(publishMenuResponse{
		menuResponse: toMenuResponse(published),
		PublicURL:    publicURL,
	})
}

// SetLogo はURLからロゴを取得してメニューに設定する。
// POST /api/menus/:id/logo
func (h *MenuHandler) SetLogo(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	menuID := chi.URLParam(r, "id")

	var req setLogoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	updated, err := h.service.SetLogo(r.Context(), userID, menuID, req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toMenuResponse(updated))
}

// DeleteMenu はメニューをソフト削除する。
// DELETE /api/menus/:id
func (h *MenuHandler) DeleteMenu(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	menuID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), userID, menuID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetupMenuRoutes はメニュー管理関連のルーティングを設定したchi.Routerを返す。
// publishMiddlewareには公開専用レート制限を渡す（nil可）。
func SetupMenuRoutes(service MenuServiceInterface, publishMiddleware func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	h := NewMenuHandler(service)

	r.Route("/api/menus", func(r chi.Router) {
		r.Get("/", h.ListMenus)
		r.Post("/", h.CreateMenu)

		// /api/menus/:id 以下のルーティング
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetMenu)
			r.Patch("/", h.UpdateMenu)
			r.Delete("/", h.DeleteMenu)
			r.Put("/sections", h.SaveSections)
			r.Post("/logo", h.SetLogo)

			// POST /api/menus/:id/publish - 公開（専用レート制限を適用）
			if publishMiddleware != nil {
				r.With(publishMiddleware).Post("/publish", h.PublishMenu)
			} else {
				r.Post("/publish", h.PublishMenu)
			}
		})
	})

	return r
}

// toMenuResponse はドメインのMenuをAPIレスポンス型に変換する。
func toMenuResponse(m *model.Menu) menuResponse {
	sections := make([]menuSectionResponse, len(m.Sections))
	for i, sec := range m.Sections {
		sections[i] = toMenuSectionResponse(sec)
	}

	return menuResponse{
		ID:          m.ID,
		UserID:      m.UserID,
		Name:        m.Name,
		Description: m.Description,
		Status:      string(m.Status),
		Background:  m.Background,
		FontFamily:  m.FontFamily,
		ColorTheme:  m.ColorTheme,
		NavTheme:    m.NavTheme,
		Logo:        logoDataURL(m),
		LogoSize:    m.LogoSize,
		Slug:        m.Slug,
		Title:       m.Title,
		Subtitle:    m.Subtitle,
		PublishedAt: m.PublishedAt,
		Version:     m.Version,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		Sections:    sections,
	}
}

// toMenuSectionResponse はドメインのMenuSectionをAPIレスポンス型に変換する。
func toMenuSectionResponse(sec model.MenuSection) menuSectionResponse {
	return menuSectionResponse{
		SectionID:    sec.SectionID,
		Name:         sec.Name,
		Type:         sec.Type,
		Columns:      sec.Columns,
		TitleColumns: sec.TitleColumns,
		Items:        sec.Items,
	}
}

// logoDataURL はロゴバイト列をdata URLに変換する。ロゴ未設定なら空文字。
func logoDataURL(m *model.Menu) string {
	if len(m.LogoData) == 0 {
		return ""
	}
	return "data:" + m.LogoMime + ";base64," + base64.StdEncoding.EncodeToString(m.LogoData)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		// ストレージ障害は利用者には汎用メッセージを返し、原因はログに残す
		if apiErr.Code == model.ErrCodeStorageError {
			slog.Error("storage failure", slog.String("error", err.Error()))
		}
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIエラーコードをHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeEmailTaken, model.ErrCodeSlugConflict:
		return http.StatusConflict
	case model.ErrCodeMenuForbidden, model.ErrCodeAdminOnly, model.ErrCodeMenuLimit, model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeMenuNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeValidation, model.ErrCodeInvalidSlug, model.ErrCodeInvalidURL:
		return http.StatusBadRequest
	case model.ErrCodeLogoFetchFailed:
		return http.StatusUnprocessableEntity
	case model.ErrCodeStorageError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
