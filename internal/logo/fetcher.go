// Package logo は店舗ロゴのURL取り込み機能を提供する。
// ユーザーが指定したURLから画像を直接取得するか、Webサイトの場合は
// HTMLを解析してロゴ候補（og:image、apple-touch-icon、favicon）を
// 検出してから取得する。
package logo

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/menuya/internal/model"
)

// maxLogoSize はロゴ画像の最大サイズ（2MB）。
const maxLogoSize = 2 * 1024 * 1024

// logoTimeout はロゴ取得のタイムアウト。
const logoTimeout = 5 * time.Second

// userAgent はロゴ取得リクエストのUser-Agentヘッダー。
const userAgent = "Menuya/1.0 Menu Builder"

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// LogoFetcherService はロゴ取得のインターフェース。
// 取得失敗はユーザーが明示的に要求した操作の失敗であるため、
// faviconのような黙殺ではなくAPIエラーとして返す。
type LogoFetcherService interface {
	// FetchLogo は指定URLから画像を取得する。
	// 画像以外のコンテンツやサイズ超過はエラーになる。
	FetchLogo(ctx context.Context, logoURL string) (data []byte, mimeType string, err error)

	// DiscoverAndFetch はURLから最適なロゴ画像を検出して取得する。
	// URLが画像を直接指している場合はそのまま取得し、HTMLページの場合は
	// headタグからロゴ候補を検出する。候補がない場合は/favicon.icoを試す。
	DiscoverAndFetch(ctx context.Context, rawURL string) (data []byte, mimeType string, err error)
}

// LogoFetcher はロゴ取得機能の実装。
type LogoFetcher struct {
	ssrfGuard SSRFValidator
}

// NewLogoFetcher はLogoFetcherの新しいインスタンスを生成する。
func NewLogoFetcher(ssrfGuard SSRFValidator) *LogoFetcher {
	return &LogoFetcher{
		ssrfGuard: ssrfGuard,
	}
}

// FetchLogo は指定URLから画像を取得する。
func (f *LogoFetcher) FetchLogo(ctx context.Context, logoURL string) ([]byte, string, error) {
	if logoURL == "" {
		return nil, "", model.NewInvalidURLError("URLが入力されていません")
	}

	// SSRF検証
	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(logoURL); err != nil {
			slog.Warn("ロゴ取得: SSRFブロック", "url", logoURL, "error", err)
			return nil, "", model.NewSSRFBlockedError()
		}
	}

	body, contentType, err := f.get(ctx, logoURL)
	if err != nil {
		return nil, "", err
	}

	mimeType := extractMimeType(contentType)
	if !isImageMime(mimeType) {
		slog.Warn("ロゴ取得: 画像以外のContent-Type", "url", logoURL, "contentType", contentType)
		return nil, "", model.NewLogoFetchFailedError("指定されたURLは画像ではありません")
	}

	return body, mimeType, nil
}

// DiscoverAndFetch はURLから最適なロゴ画像を検出して取得する。
func (f *LogoFetcher) DiscoverAndFetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if rawURL == "" {
		return nil, "", model.NewInvalidURLError("URLが入力されていません")
	}

	// SSRF検証
	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(rawURL); err != nil {
			slog.Warn("ロゴ検出: SSRFブロック", "url", rawURL, "error", err)
			return nil, "", model.NewSSRFBlockedError()
		}
	}

	body, contentType, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}

	// URLが画像を直接指している場合
	mimeType := extractMimeType(contentType)
	if isImageMime(mimeType) {
		return body, mimeType, nil
	}

	// HTMLページの場合はheadタグからロゴ候補を検出
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if !strings.Contains(strings.ToLower(mediaType), "html") {
		return nil, "", model.NewLogoFetchFailedError("指定されたURLは画像でもHTMLページでもありません")
	}

	candidates := ParseLogoCandidatesFromHTML(body, rawURL)
	best := SelectBestLogo(candidates)
	if best == nil {
		// 候補が見つからない場合は/favicon.icoを試す
		faviconURL := guessDefaultFaviconURL(rawURL)
		if faviconURL == "" {
			return nil, "", model.NewLogoFetchFailedError("ページからロゴ画像を検出できませんでした")
		}
		data, mt, err := f.FetchLogo(ctx, faviconURL)
		if err != nil {
			return nil, "", model.NewLogoFetchFailedError("ページからロゴ画像を検出できませんでした")
		}
		return data, mt, nil
	}

	return f.FetchLogo(ctx, best.URL)
}

// get はSSRF防止付きクライアントでURLを取得し、ボディとContent-Typeを返す。
// エラーはすべてAPIエラーとして返す。
func (f *LogoFetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	client := f.getHTTPClient()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/*, text/html, */*")

	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("ロゴ取得: HTTPリクエスト失敗", "url", rawURL, "error", err)
		return nil, "", model.NewLogoFetchFailedError("画像の取得に失敗しました")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("ロゴ取得: HTTPステータス異常", "url", rawURL, "status", resp.StatusCode)
		return nil, "", model.NewLogoFetchFailedError("画像の取得に失敗しました")
	}

	// レスポンスボディを読み込み（最大2MB）
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLogoSize+1))
	if err != nil {
		slog.Warn("ロゴ取得: レスポンス読み取り失敗", "url", rawURL, "error", err)
		return nil, "", model.NewLogoFetchFailedError("画像の取得に失敗しました")
	}

	// サイズ超過チェック
	if int64(len(body)) > maxLogoSize {
		slog.Warn("ロゴ取得: サイズ超過", "url", rawURL, "size", len(body))
		return nil, "", model.NewLogoFetchFailedError("画像のサイズが大きすぎます（最大2MB）")
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// getHTTPClient はHTTPクライアントを取得する。
// SSRFGuardが設定されている場合はSSRF防止付きクライアントを返す。
func (f *LogoFetcher) getHTTPClient() *http.Client {
	if f.ssrfGuard != nil {
		return f.ssrfGuard.NewSafeClient(logoTimeout, maxLogoSize)
	}
	return &http.Client{Timeout: logoTimeout}
}

// guessDefaultFaviconURL はサイトURLからデフォルトのfavicon URLを推測する。
func guessDefaultFaviconURL(siteURL string) string {
	if siteURL == "" {
		return ""
	}

	u, err := url.Parse(siteURL)
	if err != nil {
		return ""
	}

	u.Path = "/favicon.ico"
	u.RawQuery = ""
	u.Fragment = ""

	return u.String()
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	// セミコロンの前の部分（charset等を除去）
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

// isImageMime はMIMEタイプが画像かどうかを判定する。
func isImageMime(mimeType string) bool {
	if mimeType == "" {
		return false
	}
	imageTypes := []string{
		"image/png",
		"image/jpeg",
		"image/gif",
		"image/svg+xml",
		"image/x-icon",
		"image/vnd.microsoft.icon",
		"image/webp",
		"image/bmp",
		"image/ico",
	}
	for _, t := range imageTypes {
		if mimeType == t {
			return true
		}
	}
	// image/ で始まるものは許可
	return strings.HasPrefix(mimeType, "image/")
}

// compile-time interface check
var _ LogoFetcherService = (*LogoFetcher)(nil)
