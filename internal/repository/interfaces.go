// Package repository はデータ永続化のインターフェースを定義する。
// PostgreSQL実装とJSONファイル実装の2つが存在し、すべての操作は
// 両実装で同一の契約を満たす。
package repository

import (
	"context"

	"github.com/hitoshi/menuya/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。メールアドレスが登録済みの場合は
	// ErrDuplicateKeyを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	// 呼び出し側が小文字に正規化済みであることを前提とする。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByGoogleID はGoogleアカウントIDでユーザーを検索する。見つからない場合はnilを返す。
	FindByGoogleID(ctx context.Context, googleID string) (*model.User, error)

	// Update はユーザーのプロフィール情報を更新する。
	// 対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, user *model.User) error

	// UpdateLastActive は最終アクティブ日時を現在時刻に更新する。
	// 対象が存在しない場合はErrNotFoundを返す。
	UpdateLastActive(ctx context.Context, id string) error

	// ListWithMenuCounts は全ユーザーをメニュー数・公開数の集計付きで返す。
	// 削除済みメニューは集計に含まれない。
	ListWithMenuCounts(ctx context.Context) ([]model.UserWithCounts, error)
}

// MenuRepository はメニューとセクションの永続化インターフェース。
// セクションはメニューに完全に従属するため、同一インターフェースで扱う。
type MenuRepository interface {
	// Create はメニューを作成する。
	Create(ctx context.Context, menu *model.Menu) error

	// FindByID は指定IDのメニューを取得する。見つからない場合はnilを返す。
	// 削除済みメニューも返す（扱いはサービス層が決める）。セクションは含まない。
	FindByID(ctx context.Context, id string) (*model.Menu, error)

	// ListByUserID はユーザーのメニュー一覧をセクション付きで返す。
	// 削除済みは除外され、セクションはセクションID昇順に並ぶ。
	ListByUserID(ctx context.Context, userID string) ([]*model.Menu, error)

	// Update はメニューを全フィールド上書きで更新し、updated_atを進める。
	// 対象が存在しない場合はErrNotFoundを返す。公開スラッグが他の公開中
	// メニューと重複する場合はErrDuplicateKeyを返す。
	Update(ctx context.Context, menu *model.Menu) error

	// ReplaceSections はメニューの全セクションを置換する。全か無かで行われ、
	// 親メニューのversionを+1する。メニューが存在しないか削除済みの場合は
	// ErrNotFoundを返す。
	ReplaceSections(ctx context.Context, menuID string, sections []model.MenuSection) error

	// ListSections はメニューのセクション一覧をセクションID昇順で返す。
	ListSections(ctx context.Context, menuID string) ([]model.MenuSection, error)

	// SoftDelete はメニューをdeleted状態に遷移させ、全セクションを物理削除する。
	// 両方の操作は不可分に行われる。メニューが存在しないか削除済みの場合は
	// ErrNotFoundを返す。
	SoftDelete(ctx context.Context, menuID string) error

	// FindPublishedBySlug は公開中メニューをスラッグで検索する。
	// 公開中でない場合はnilを返す。セクション付き。
	FindPublishedBySlug(ctx context.Context, slug string) (*model.Menu, error)

	// CountActiveByUserID はユーザーの削除済みを除くメニュー数を返す。
	CountActiveByUserID(ctx context.Context, userID string) (int, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。期限切れの場合はレコードを
	// 遅延削除した上でnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// DeleteByID は指定IDのセッションを削除する。冪等で、対象が
	// 存在しなくてもエラーにしない。
	DeleteByID(ctx context.Context, id string) error

	// DeleteExpired は期限切れセッションを一括削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
