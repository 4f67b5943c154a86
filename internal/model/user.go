// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashが空の場合はGoogleログイン専用アカウント。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	BusinessName string
	PlanTier     string
	MaxMenus     int
	GoogleID     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastActiveAt time.Time
}

// PlanTierFree は無料プランのティア名。
const PlanTierFree = "free"

// UserWithCounts はユーザーとメニュー集計を結合したモデル。
// 管理者向け一覧で使用する。削除済みメニューは集計に含まれない。
type UserWithCounts struct {
	User
	MenuCount      int
	PublishedCount int
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
