package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/menuya/internal/menu"
	"github.com/hitoshi/menuya/internal/middleware"
	"github.com/hitoshi/menuya/internal/model"
)

// --- ルーター全体のテスト用モック ---

// mockSessionFinderForRouter はルーター統合テスト用のSessionFinderモック。
type mockSessionFinderForRouter struct {
	sessions map[string]*model.Session
}

func (m *mockSessionFinderForRouter) FindByID(_ context.Context, id string) (*model.Session, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, nil
}

// createTestRouterDeps は全ミドルウェアを組み込んだルーターの依存一式を生成する。
// セッションID "valid-session" がユーザー "user-test-1" として登録済み。
func createTestRouterDeps() *RouterDeps {
	sessionFinder := &mockSessionFinderForRouter{
		sessions: map[string]*model.Session{
			"valid-session": {
				ID:        "valid-session",
				UserID:    "user-test-1",
				ExpiresAt: time.Now().Add(1 * time.Hour),
			},
		},
	}

	authService := &mockAuthService{
		registerFn: func(ctx context.Context, email, password, name, businessName string) (*model.User, *model.Session, error) {
			return &model.User{ID: "user-new", Email: email, Name: name, PlanTier: model.PlanTierFree, MaxMenus: 3},
				&model.Session{ID: "session-new", UserID: "user-new", ExpiresAt: time.Now().Add(1 * time.Hour)},
				nil
		},
		loginFn: func(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
			return &model.User{ID: "user-test-1", Email: email, PlanTier: model.PlanTierFree, MaxMenus: 3},
				&model.Session{ID: "session-login", UserID: "user-test-1", ExpiresAt: time.Now().Add(1 * time.Hour)},
				nil
		},
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return &model.User{ID: "user-test-1", Email: "chef@example.com", PlanTier: model.PlanTierFree, MaxMenus: 3}, nil
		},
	}

	menuService := &mockMenuService{
		listFn: func(ctx context.Context, userID string) ([]*model.Menu, error) {
			return []*model.Menu{testMenu("menu-1", userID)}, nil
		},
		getFn: func(ctx context.Context, userID, menuID string) (*model.Menu, error) {
			return testMenu(menuID, userID), nil
		},
		createFn: func(ctx context.Context, userID, name, description string) (*model.Menu, error) {
			return testMenu("menu-new", userID), nil
		},
		updateFn: func(ctx context.Context, userID, menuID string, fields menu.UpdateFields) (*model.Menu, error) {
			return testMenu(menuID, userID), nil
		},
		saveSectionsFn: func(ctx context.Context, userID, menuID string, sections []model.MenuSection) (*model.Menu, error) {
			return testMenu(menuID, userID), nil
		},
		publishFn: func(ctx context.Context, userID, menuID, slug, title, subtitle string) (*model.Menu, string, error) {
			m := testMenu(menuID, userID)
			m.Status = model.MenuStatusPublished
			m.Slug = slug
			return m, "http://localhost:3000/m/" + slug, nil
		},
		setLogoFn: func(ctx context.Context, userID, menuID, logoURL string) (*model.Menu, error) {
			return testMenu(menuID, userID), nil
		},
	}

	publicFinder := &mockPublicMenuFinder{
		publishedBySlugFn: func(ctx context.Context, slug string) (*model.Menu, error) {
			return publishedTestMenu(slug), nil
		},
	}

	userService := &mockUserService{
		updateProfileFn: func(ctx context.Context, userID, name, businessName string) (*model.User, error) {
			return &model.User{ID: userID, Email: "chef@example.com", Name: name, BusinessName: businessName}, nil
		},
		listUsersFn: func(ctx context.Context, requesterID string) ([]model.UserWithCounts, error) {
			return []model.UserWithCounts{}, nil
		},
	}

	return &RouterDeps{
		SessionFinder:     sessionFinder,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig()),
		CSRFConfig:        middleware.CSRFConfig{CookieSecure: false},
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
		AuthService:  authService,
		AuthConfig:   testAuthConfig(),
		MenuService:  menuService,
		PublicFinder: publicFinder,
		UserService:  userService,
	}
}

func createTestRouter() http.Handler {
	return NewRouter(createTestRouterDeps())
}

// authedRequest は有効なセッションCookieとCSRFトークンを付けたリクエストを生成する。
func authedRequest(method, path string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "test-token"})
	req.Header.Set("X-CSRF-Token", "test-token")
	return req
}

// --- 認証不要エンドポイント ---

func TestNewRouter_HealthEndpoint(t *testing.T) {
	router := createTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !containsStr(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %q, want to contain %q", w.Body.String(), `"status":"ok"`)
	}
}

func TestNewRouter_MetricsEndpoint(t *testing.T) {
	router := createTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestNewRouter_MetricsEndpoint_NotExposedWithoutHandler(t *testing.T) {
	deps := createTestRouterDeps()
	deps.MetricsHandler = nil
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestNewRouter_CSRFTokenEndpoint_NoAuthRequired(t *testing.T) {
	router := createTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["token"] == "" {
		t.Error("token is empty, want non-empty token")
	}

	cookie := findCookie(w.Result().Cookies(), "csrf_token")
	if cookie == nil {
		t.Fatal("csrf_token cookie not set")
	}
	if cookie.HttpOnly {
		t.Error("csrf_token cookie is HttpOnly, want readable from frontend")
	}
}

func TestNewRouter_AuthRoutes_Registered(t *testing.T) {
	router := createTestRouter()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"register", http.MethodPost, "/auth/register", `{"email":"chef@example.com","password":"secret-password","name":"Chef"}`, http.StatusCreated},
		{"login", http.MethodPost, "/auth/login", `{"email":"chef@example.com","password":"secret-password"}`, http.StatusOK},
		{"logout", http.MethodPost, "/auth/logout", "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNewRouter_PublicMenuEndpoint_NoAuthRequired(t *testing.T) {
	router := createTestRouter()

	// Cookieなしでアクセスできること
	req := httptest.NewRequest(http.MethodGet, "/api/public/menus/chefs-table", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["slug"] != "chefs-table" {
		t.Errorf("slug = %v, want %q", result["slug"], "chefs-table")
	}
}

// --- セッション・CSRF・ミドルウェア順序 ---

func TestNewRouter_ProtectedRoute_NoSession_Returns401(t *testing.T) {
	router := createTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/menus", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	result := parseAPIErrorResponse(t, w)
	if result["code"] != model.ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", result["code"], model.ErrCodeUnauthorized)
	}
}

func TestNewRouter_ProtectedRoute_WithSession_GETSucceeds(t *testing.T) {
	router := createTestRouter()

	// GETはCSRF検証をスキップするため、セッションCookieのみで成功する
	req := httptest.NewRequest(http.MethodGet, "/api/menus", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestNewRouter_ProtectedRoute_POST_RequiresCSRFToken(t *testing.T) {
	router := createTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/menus", bytes.NewBufferString(`{"name":"Dinner"}`))
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	// CSRFトークンを付けない
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}

	result := parseAPIErrorResponse(t, w)
	if result["code"] != "CSRF_VALIDATION_FAILED" {
		t.Errorf("code = %q, want %q", result["code"], "CSRF_VALIDATION_FAILED")
	}
}

func TestNewRouter_ProtectedRoute_POST_WithCSRFToken_Succeeds(t *testing.T) {
	router := createTestRouter()

	req := authedRequest(http.MethodPost, "/api/menus", []byte(`{"name":"Dinner"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestNewRouter_MiddlewareOrder_SessionCheckedBeforeCSRF(t *testing.T) {
	router := createTestRouter()

	// セッションもCSRFトークンもない場合、先にセッション検証で401になること
	req := httptest.NewRequest(http.MethodPost, "/api/menus", bytes.NewBufferString(`{"name":"Dinner"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d (session check should run before CSRF check)", w.Code, http.StatusUnauthorized)
	}
}

// --- ルート登録の網羅 ---

func TestNewRouter_MenuRoutes_Registered(t *testing.T) {
	router := createTestRouter()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"list", http.MethodGet, "/api/menus", "", http.StatusOK},
		{"create", http.MethodPost, "/api/menus", `{"name":"Dinner"}`, http.StatusCreated},
		{"get", http.MethodGet, "/api/menus/menu-1", "", http.StatusOK},
		{"update", http.MethodPatch, "/api/menus/menu-1", `{"name":"Lunch"}`, http.StatusOK},
		{"delete", http.MethodDelete, "/api/menus/menu-1", "", http.StatusNoContent},
		{"save sections", http.MethodPut, "/api/menus/menu-1/sections", `{"sections":[]}`, http.StatusOK},
		{"set logo", http.MethodPost, "/api/menus/menu-1/logo", `{"url":"https://example.com"}`, http.StatusOK},
		{"publish", http.MethodPost, "/api/menus/menu-1/publish", `{"slug":"chefs-table","title":"Chef's Table"}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body []byte
			if tt.body != "" {
				body = []byte(tt.body)
			}
			req := authedRequest(tt.method, tt.path, body)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNewRouter_UserRoutes_Registered(t *testing.T) {
	router := createTestRouter()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"update profile", http.MethodPatch, "/api/users/me", `{"name":"Chef","business_name":"Bistro"}`, http.StatusOK},
		{"admin users", http.MethodGet, "/api/admin/users", "", http.StatusOK},
		{"me", http.MethodGet, "/api/auth/me", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body []byte
			if tt.body != "" {
				body = []byte(tt.body)
			}
			req := authedRequest(tt.method, tt.path, body)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNewRouter_SecurityHeaders_Applied(t *testing.T) {
	router := createTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want %q", got, "DENY")
	}
}

func TestNewRouter_UnknownRoute_Returns404(t *testing.T) {
	router := createTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
