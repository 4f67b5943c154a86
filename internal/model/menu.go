// Package model はドメインモデルを定義する。
package model

import "time"

// Menu はユーザーが編集するメニューを表す。
// Slug以下の公開情報はPublish時に初めて設定される。
type Menu struct {
	ID          string
	UserID      string
	Name        string
	Description string
	Status      MenuStatus
	Background  string
	FontFamily  string
	ColorTheme  string
	NavTheme    string
	LogoData    []byte
	LogoMime    string
	LogoSize    string
	Slug        string
	Title       string
	Subtitle    string
	PublishedAt *time.Time
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Sections    []MenuSection
}

// MenuStatus はメニューのライフサイクル状態を表す。
type MenuStatus string

const (
	// MenuStatusDraft は下書き状態。作成直後のデフォルト。
	MenuStatusDraft MenuStatus = "draft"
	// MenuStatusPublished は公開状態。スラッグで外部からアクセスできる。
	MenuStatusPublished MenuStatus = "published"
	// MenuStatusDeleted は削除状態。復元パスはない終端状態。
	MenuStatusDeleted MenuStatus = "deleted"
)

// MenuSection はメニュー内のセクションを表す。
// SectionIDはメニュー内で一意な整数。保存は常に全置換で行われる。
type MenuSection struct {
	MenuID       string
	SectionID    int
	Name         string
	Type         string
	Columns      []string
	TitleColumns []string
	Items        []SectionItem
}

// SectionItem はセクション内の1行を表す。列名から値へのマッピング。
type SectionItem map[string]string
