package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/menuya/internal/model"
)

// PublicMenuFinder は公開メニューの参照インターフェース。menu.Serviceが満たす。
type PublicMenuFinder interface {
	PublishedBySlug(ctx context.Context, slug string) (*model.Menu, error)
}

// PublicHandler は認証不要の公開ページ向けHTTPハンドラー。
type PublicHandler struct {
	finder PublicMenuFinder
}

// NewPublicHandler はPublicHandlerを生成する。
func NewPublicHandler(finder PublicMenuFinder) *PublicHandler {
	return &PublicHandler{
		finder: finder,
	}
}

// publicMenuResponse は公開ページのAPIレスポンス。
// 所有者IDなどの内部情報は含めない。
type publicMenuResponse struct {
	Slug        string                `json:"slug"`
	Title       string                `json:"title"`
	Subtitle    string                `json:"subtitle,omitempty"`
	Description string                `json:"description,omitempty"`
	Background  string                `json:"background,omitempty"`
	FontFamily  string                `json:"font_family,omitempty"`
	ColorTheme  string                `json:"color_theme,omitempty"`
	NavTheme    string                `json:"nav_theme,omitempty"`
	Logo        string                `json:"logo,omitempty"`
	LogoSize    string                `json:"logo_size,omitempty"`
	PublishedAt *time.Time            `json:"published_at,omitempty"`
	Version     int64                 `json:"version"`
	Sections    []menuSectionResponse `json:"sections"`
}

// GetPublishedMenu はスラッグで公開メニューを取得する。
// GET /api/public/menus/:slug
func (h *PublicHandler) GetPublishedMenu(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	m, err := h.finder.PublishedBySlug(r.Context(), slug)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPublicMenuResponse(m))
}

// SetupPublicRoutes は公開ページ関連のルーティングを設定したchi.Routerを返す。
func SetupPublicRoutes(finder PublicMenuFinder) http.Handler {
	r := chi.NewRouter()
	h := NewPublicHandler(finder)

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/menus/{slug}", h.GetPublishedMenu)
	})

	return r
}

// toPublicMenuResponse はドメインのMenuを公開ページ向けレスポンスに変換する。
func toPublicMenuResponse(m *model.Menu) publicMenuResponse {
	sections := make([]menuSectionResponse, len(m.Sections))
	for i, sec := range m.Sections {
		sections[i] = toMenuSectionResponse(sec)
	}

	return publicMenuResponse{
		Slug:        m.Slug,
		Title:       m.Title,
		Subtitle:    m.Subtitle,
		Description: m.Description,
		Background:  m.Background,
		FontFamily:  m.FontFamily,
		ColorTheme:  m.ColorTheme,
		NavTheme:    m.NavTheme,
		Logo:        logoDataURL(m),
		LogoSize:    m.LogoSize,
		PublishedAt: m.PublishedAt,
		Version:     m.Version,
		Sections:    sections,
	}
}
