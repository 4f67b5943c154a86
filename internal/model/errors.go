// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, menu, system
	Action   string // ユーザー向け対処方法

	cause error // 根本原因。レスポンスには含めず、ログにのみ現れる
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は根本原因を返す。errors.Is/Asでの探索用。
func (e *APIError) Unwrap() error {
	return e.cause
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeAdminOnly          = "ADMIN_ONLY"
	ErrCodeMenuNotFound       = "MENU_NOT_FOUND"
	ErrCodeMenuForbidden      = "MENU_FORBIDDEN"
	ErrCodeMenuLimit          = "MENU_LIMIT"
	ErrCodeSlugConflict       = "SLUG_CONFLICT"
	ErrCodeInvalidSlug        = "INVALID_SLUG"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeLogoFetchFailed    = "LOGO_FETCH_FAILED"
	ErrCodeStorageError       = "STORAGE_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// メールアドレスの存在有無を漏らさないため、メッセージは常に同一。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewEmailTakenError は登録済みメールアドレスエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスで登録してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAdminOnlyError は管理者権限が必要な操作のエラーを生成する。
func NewAdminOnlyError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminOnly,
		Message:  "この操作には管理者権限が必要です。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewMenuNotFoundError はメニュー未検出エラーを生成する。
func NewMenuNotFoundError(menuID string) *APIError {
	return &APIError{
		Code:     ErrCodeMenuNotFound,
		Message:  fmt.Sprintf("指定されたメニューが見つかりません: %s", menuID),
		Category: "menu",
		Action:   "メニューIDを確認してください。",
	}
}

// NewMenuForbiddenError は他ユーザーのメニューへの操作エラーを生成する。
func NewMenuForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeMenuForbidden,
		Message:  "このメニューを操作する権限がありません。",
		Category: "auth",
		Action:   "自分が作成したメニューのみ操作できます。",
	}
}

// NewMenuLimitError はメニュー数上限エラーを生成する。
func NewMenuLimitError(max int) *APIError {
	return &APIError{
		Code:     ErrCodeMenuLimit,
		Message:  fmt.Sprintf("メニュー数が上限（%d件）に達しています。", max),
		Category: "menu",
		Action:   "不要なメニューを削除してから、新しいメニューを作成してください。",
	}
}

// NewSlugConflictError はスラッグ重複エラーを生成する。
func NewSlugConflictError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeSlugConflict,
		Message:  fmt.Sprintf("このURLは既に他のメニューで使用されています: %s", slug),
		Category: "menu",
		Action:   "別のURLスラッグを指定してください。",
	}
}

// NewInvalidSlugError は無効なスラッグエラーを生成する。
func NewInvalidSlugError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSlug,
		Message:  fmt.Sprintf("無効なURLスラッグです: %s", slug),
		Category: "validation",
		Action:   "スラッグには3〜50文字の小文字英数字とハイフンのみ使用できます。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewLogoFetchFailedError はロゴ取得失敗エラーを生成する。
func NewLogoFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeLogoFetchFailed,
		Message:  fmt.Sprintf("ロゴ画像の取得に失敗しました: %s", reason),
		Category: "menu",
		Action:   "画像URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewStorageError はストレージ障害エラーを生成する。
// バックエンドの読み書きに失敗した際、サービス層が根本原因を包んで返す。
func NewStorageError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeStorageError,
		Message:  "データの保存に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		cause:    cause,
	}
}
