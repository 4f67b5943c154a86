// Package repository はデータ永続化のインターフェースを定義する。
package repository

import "errors"

// ストレージ実装共通の番兵エラー。
// 実装はfmt.Errorfの%wでラップして返し、呼び出し側はerrors.Isで判定する。
var (
	// ErrNotFound は対象レコードが存在しない場合に返される。
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey は一意制約（メールアドレス、公開スラッグ）に
	// 違反した場合に返される。
	ErrDuplicateKey = errors.New("duplicate key")
)
