package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/menuya/internal/middleware"
	"github.com/hitoshi/menuya/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// UpdateProfile は表示名と店舗名を更新し、更新後のユーザーを返す。
	UpdateProfile(ctx context.Context, userID, name, businessName string) (*model.User, error)
	// ListUsers は全ユーザーを集計付きで返す。管理者のみ呼び出せる。
	ListUsers(ctx context.Context, requesterID string) ([]model.UserWithCounts, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
type updateProfileRequest struct {
	Name         string `json:"name"`
	BusinessName string `json:"business_name"`
}

// adminUserResponse は管理者向けユーザー一覧のAPIレスポンス。
type adminUserResponse struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	BusinessName   string     `json:"business_name"`
	PlanTier       string     `json:"plan_tier"`
	MaxMenus       int        `json:"max_menus"`
	MenuCount      int        `json:"menu_count"`
	PublishedCount int        `json:"published_count"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActiveAt   *time.Time `json:"last_active_at"`
}

// UpdateProfile はプロフィールを更新する。
// PATCH /api/users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), userID, req.Name, req.BusinessName)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponse(updated))
}

// ListUsers は全ユーザーを集計付きで一覧する。管理者専用。
// GET /api/admin/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	users, err := h.service.ListUsers(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]adminUserResponse, len(users))
	for i, u := range users {
		results[i] = toAdminUserResponse(u)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// SetupUserRoutes はユーザー管理関連のルーティングを設定したchi.Routerを返す。
func SetupUserRoutes(service UserServiceInterface) http.Handler {
	r := chi.NewRouter()
	h := NewUserHandler(service)

	r.Route("/api/users", func(r chi.Router) {
		r.Patch("/me", h.UpdateProfile)
	})
	r.Get("/api/admin/users", h.ListUsers)

	return r
}

// toAdminUserResponse はドメインのUserWithCountsをAPIレスポンス型に変換する。
// 未ログインのユーザーはlast_active_atがnullになる。
func toAdminUserResponse(u model.UserWithCounts) adminUserResponse {
	var lastActive *time.Time
	if !u.LastActiveAt.IsZero() {
		t := u.LastActiveAt
		lastActive = &t
	}

	return adminUserResponse{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		BusinessName:   u.BusinessName,
		PlanTier:       u.PlanTier,
		MaxMenus:       u.MaxMenus,
		MenuCount:      u.MenuCount,
		PublishedCount: u.PublishedCount,
		CreatedAt:      u.CreatedAt,
		LastActiveAt:   lastActive,
	}
}
