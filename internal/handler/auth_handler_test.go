package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/menuya/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn       func(ctx context.Context, email, password, name, businessName string) (*model.User, *model.Session, error)
	loginFn          func(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
	googleEnabled    bool
}

func (m *mockAuthService) Register(ctx context.Context, email, password, name, businessName string) (*model.User, *model.Session, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, email, password, name, businessName)
	}
	return nil, nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil, nil
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockAuthService) GoogleEnabled() bool {
	return m.googleEnabled
}

// mockSessionMetrics はセッション発行メトリクスの記録を検証するモック。
type mockSessionMetrics struct {
	methods []string
}

func (m *mockSessionMetrics) RecordSessionCreated(method string) {
	m.methods = append(m.methods, method)
}

var _ SessionMetricsRecorder = (*mockSessionMetrics)(nil)

func testAuthConfig() AuthHandlerConfig {
	return AuthHandlerConfig{
		BaseURL:       "http://localhost:3000",
		CookieDomain:  "",
		CookieSecure:  false,
		SessionMaxAge: 86400,
	}
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- テスト ---

func TestAuthHandler_Register_Success_SetsCookieAndReturnsUser(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, email, password, name, businessName string) (*model.User, *model.Session, error) {
			return &model.User{
					ID:       "user-id-123",
					Email:    email,
					Name:     name,
					PlanTier: model.PlanTierFree,
					MaxMenus: 3,
				}, &model.Session{
					ID:        "session-id-abc",
					UserID:    "user-id-123",
					ExpiresAt: time.Now().Add(24 * time.Hour),
				}, nil
		},
	}
	metrics := &mockSessionMetrics{}
	h := NewAuthHandler(svc, testAuthConfig(), metrics)

	body := bytes.NewBufferString(`{"email":"chef@example.com","password":"secret-password","name":"Chef"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", body)
	w := httptest.NewRecorder()

	h.Register(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	// セッションCookieが設定されること
	sessionCookie := findCookie(resp.Cookies(), "session_id")
	if sessionCookie == nil {
		t.Fatal("expected session_id cookie to be set")
	}
	if sessionCookie.Value != "session-id-abc" {
		t.Errorf("session cookie value = %q, want %q", sessionCookie.Value, "session-id-abc")
	}
	if !sessionCookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
	if sessionCookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("session cookie SameSite = %v, want %v", sessionCookie.SameSite, http.SameSiteLaxMode)
	}

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got["email"] != "chef@example.com" {
		t.Errorf("email = %v, want chef@example.com", got["email"])
	}
	// パスワードハッシュがレスポンスに含まれないこと
	if _, ok := got["password_hash"]; ok {
		t.Error("response should not contain password_hash")
	}

	if len(metrics.methods) != 1 || metrics.methods[0] != "register" {
		t.Errorf("recorded session methods = %v, want [register]", metrics.methods)
	}
}

func TestAuthHandler_Register_InvalidJSON_ReturnsBadRequest(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig(), nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString("{invalid"))
	w := httptest.NewRecorder()

	h.Register(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestAuthHandler_Register_EmailTaken_ReturnsConflict(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, email, password, name, businessName string) (*model.User, *model.Session, error) {
			return nil, nil, model.NewEmailTakenError()
		},
	}
	h := NewAuthHandler(svc, testAuthConfig(), nil)

	body := bytes.NewBufferString(`{"email":"taken@example.com","password":"secret-password","name":"Chef"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", body)
	w := httptest.NewRecorder()

	h.Register(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got["code"] != model.ErrCodeEmailTaken {
		t.Errorf("code = %v, want %v", got["code"], model.ErrCodeEmailTaken)
	}
}

func TestAuthHandler_Register_ValidationError_ReturnsBadRequest(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, email, password, name, businessName string) (*model.User, *model.Session, error) {
			return nil, nil, model.NewValidationError("パスワードは8文字以上で入力してください")
		},
	}
	h := NewAuthHandler(svc, testAuthConfig(), nil)

	body := bytes.NewBufferString(`{"email":"chef@example.com","password":"short","name":"Chef"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", body)
	w := httptest.NewRecorder()

	h.Register(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestAuthHandler_Login_Success_SetsCookie(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
			return &model.User{
					ID:    "user-id-123",
					Email: email,
					Name:  "Chef",
				}, &model.Session{
					ID:        "session-id-login",
					UserID:    "user-id-123",
					ExpiresAt: time.Now().Add(24 * time.Hour),
				}, nil
		},
	}
	metrics := &mockSessionMetrics{}
	h := NewAuthHandler(svc, testAuthConfig(), metrics)

	body := bytes.NewBufferString(`{"email":"chef@example.com","password":"secret-password"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	w := httptest.NewRecorder()

	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	sessionCookie := findCookie(resp.Cookies(), "session_id")
	if sessionCookie == nil {
		t.Fatal("expected session_id cookie to be set")
	}
	if sessionCookie.Value != "session-id-login" {
		t.Errorf("session cookie value = %q, want %q", sessionCookie.Value, "session-id-login")
	}

	if len(metrics.methods) != 1 || metrics.methods[0] != "login" {
		t.Errorf("recorded session methods = %v, want [login]", metrics.methods)
	}
}

func TestAuthHandler_Login_InvalidCredentials_ReturnsUnauthorized(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
			return nil, nil, model.NewInvalidCredentialsError()
		},
	}
	h := NewAuthHandler(svc, testAuthConfig(), nil)

	body := bytes.NewBufferString(`{"email":"chef@example.com","password":"wrong"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	w := httptest.NewRecorder()

	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got["code"] != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %v, want %v", got["code"], model.ErrCodeInvalidCredentials)
	}
}

func TestAuthHandler_GoogleLogin_RedirectsToOAuthURL(t *testing.T) {
	svc := &mockAuthService{
		googleEnabled: true,
		getLoginURLFn: func(state string) string {
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	h := NewAuthHandler(svc, testAuthConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
	w := httptest.NewRecorder()

	h.GoogleLogin(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		t.Fatal("expected Location header")
	}
	if !containsStr(location, "accounts.google.com") {
		t.Errorf("Location = %q, should contain google oauth URL", location)
	}

	// stateがCookieにも保存されること
	stateCookie := findCookie(resp.Cookies(), "oauth_state")
	if stateCookie == nil {
		t.Fatal("expected oauth_state cookie to be set")
	}
	if stateCookie.Value == "" {
		t.Error("oauth_state cookie should not be empty")
	}
	if !stateCookie.HttpOnly {
		t.Error("oauth_state cookie should be HttpOnly")
	}
	if !containsStr(location, stateCookie.Value) {
		t.Error("redirect URL should carry the same state as the cookie")
	}
}

func TestAuthHandler_GoogleLogin_Disabled_ReturnsNotFound(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{googleEnabled: false}, testAuthConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
	w := httptest.NewRecorder()

	h.GoogleLogin(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestAuthHandler_GoogleCallback_Success_SetsCookieAndRedirects(t *testing.T) {
	svc := &mockAuthService{
		googleEnabled: true,
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			return &model.Session{
				ID:        "session-id-abc",
				UserID:    "user-id-123",
				ExpiresAt: time.Now().Add(24 * time.Hour),
			}, nil
		},
	}
	metrics := &mockSessionMetrics{}
	h := NewAuthHandler(svc, testAuthConfig(), metrics)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=test-code&state=test-state", nil)
	// stateの検証のためにcookieを設定
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "test-state"})
	w := httptest.NewRecorder()

	h.GoogleCallback(w, req)

	resp := w.Result()

	// リダイレクトされること
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}

	// BaseURLにリダイレクトされること
	location := resp.Header.Get("Location")
	if location != "http://localhost:3000" {
		t.Errorf("Location = %q, want %q", location, "http://localhost:3000")
	}

	// セッションCookieが設定されること
	sessionCookie := findCookie(resp.Cookies(), "session_id")
	if sessionCookie == nil {
		t.Fatal("expected session_id cookie to be set")
	}
	if sessionCookie.Value != "session-id-abc" {
		t.Errorf("session cookie value = %q, want %q", sessionCookie.Value, "session-id-abc")
	}
	if !sessionCookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
	if sessionCookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("session cookie SameSite = %v, want %v", sessionCookie.SameSite, http.SameSiteLaxMode)
	}

	if len(metrics.methods) != 1 || metrics.methods[0] != "google" {
		t.Errorf("recorded session methods = %v, want [google]", metrics.methods)
	}
}

func TestAuthHandler_GoogleCallback_MissingCode_ReturnsBadRequest(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{googleEnabled: true}, testAuthConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: ""})
	w := httptest.NewRecorder()

	h.GoogleCallback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestAuthHandler_GoogleCallback_StateMismatch_ReturnsBadRequest(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{googleEnabled: true}, testAuthConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=test-code&state=wrong-state", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "correct-state"})
	w := httptest.NewRecorder()

	h.GoogleCallback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestAuthHandler_GoogleCallback_AuthServiceError_ReturnsInternalError(t *testing.T) {
	svc := &mockAuthService{
		googleEnabled: true,
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			return nil, errors.New("auth failed")
		},
	}
	h := NewAuthHandler(svc, testAuthConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=bad-code&state=test-state", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "test-state"})
	w := httptest.NewRecorder()

	h.GoogleCallback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
}

func TestAuthHandler_Logout_Success_ClearsCookie(t *testing.T) {
	var loggedOutSession string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			loggedOutSession = sessionID
			return nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig(), nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-to-logout"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	if loggedOutSession != "session-to-logout" {
		t.Errorf("logged out session = %q, want %q", loggedOutSession, "session-to-logout")
	}

	// セッションCookieがクリアされること
	sessionCookie := findCookie(resp.Cookies(), "session_id")
	if sessionCookie == nil {
		t.Fatal("expected session_id cookie to be cleared")
	}
	if sessionCookie.MaxAge != -1 {
		t.Errorf("session cookie MaxAge = %d, want -1 (delete)", sessionCookie.MaxAge)
	}
}

func TestAuthHandler_Logout_NoSession_ReturnsNoContent(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig(), nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	w := httptest.NewRecorder()

	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
}

func TestAuthHandler_Me_Authenticated_ReturnsUserJSON(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return &model.User{
				ID:    "user-id-me",
				Email: "me@example.com",
				Name:  "Me User",
			}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()

	h.Me(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want %q", contentType, "application/json")
	}

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got["email"] != "me@example.com" {
		t.Errorf("email = %v, want me@example.com", got["email"])
	}
}

func TestAuthHandler_Me_NoSession_ReturnsUnauthorized(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	w := httptest.NewRecorder()

	h.Me(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Me_InvalidSession_ReturnsUnauthorized(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return nil, errors.New("session not found")
		},
	}
	h := NewAuthHandler(svc, testAuthConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "expired-session"})
	w := httptest.NewRecorder()

	h.Me(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

// containsStr は文字列sにsubstrが含まれるかチェックするヘルパー。
func containsStr(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
