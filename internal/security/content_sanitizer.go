// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はメニューに入力されたテキストをサニタイズし、
// 公開ページ閲覧者をXSS攻撃から保護する。メニューの各フィールドは
// プレーンテキストとして扱い、bluemondayの許可リストベースのポリシーで
// HTMLタグを一切通さない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はメニューテキストのサニタイズ機能のインターフェースを定義する。
// メニュー公開時に、名前・説明・セクション・品目などの全テキストフィールドに適用される。
type ContentSanitizerService interface {
	// SanitizeText はテキストからHTMLタグを全て除去したプレーンテキストを返す。
	// scriptタグとstyleタグはその中身ごと除去される。
	// HTMLエンティティは復元されるため、"Fish & Chips" のような
	// 通常のテキストはそのまま保存できる。
	// 前後の空白は取り除かれる。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーはStrictPolicy（許可タグなし）を使用する。
// メニューのテキストに整形済みHTMLを保存する用途はないため、
// タグはエスケープではなく除去する方針をとる。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はテキストからHTMLタグを除去したプレーンテキストを返す。
// bluemondayの出力はHTMLエスケープ済みのため、プレーンテキストとして
// 保存できるようエンティティを復元してから返す。
func (s *contentSanitizer) SanitizeText(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
