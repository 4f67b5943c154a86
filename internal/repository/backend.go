package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/hitoshi/menuya/internal/database"
)

// BackendKind は選択された永続化バックエンドの種別を表す。
type BackendKind string

const (
	// BackendPostgres はPostgreSQLバックエンド。
	BackendPostgres BackendKind = "postgres"
	// BackendFile はJSONファイルバックエンド。
	BackendFile BackendKind = "file"
)

// Backend は選択されたバックエンドのリポジトリ一式を保持する。
// すべてのリポジトリは同一のバックエンドに属し、サービス層は
// どちらのバックエンドが選択されたかを意識しない。
type Backend struct {
	Users    UserRepository
	Menus    MenuRepository
	Sessions SessionRepository

	kind BackendKind
	db   *sql.DB
}

// Kind は選択されたバックエンドの種別を返す。
func (b *Backend) Kind() BackendKind {
	return b.kind
}

// Close はバックエンドが保持するリソースを解放する。
// ファイルバックエンドの場合は何もしない。
func (b *Backend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// SelectBackend は起動時に1回だけ永続化バックエンドを選択する。
//
// databaseURLが設定されていればPostgreSQLへの接続を試行する。
// 接続に失敗した場合は警告ログを出してファイルバックエンドに
// フォールバックし、起動は継続する。接続に成功した後の
// マイグレーション失敗は設定不備とみなしエラーを返す。
//
// databaseURLが未設定の場合はdataDir配下のJSONファイルを使用する。
func SelectBackend(ctx context.Context, databaseURL, dataDir string) (*Backend, error) {
	if databaseURL != "" {
		db, err := database.Connect(ctx, databaseURL)
		if err != nil {
			slog.Warn("データベースに接続できないためファイルバックエンドにフォールバックします", "error", err)
		} else {
			if err := database.RunMigrations(databaseURL); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			slog.Info("PostgreSQLバックエンドを使用します")
			return &Backend{
				Users:    NewPostgresUserRepo(db),
				Menus:    NewPostgresMenuRepo(db),
				Sessions: NewPostgresSessionRepo(db),
				kind:     BackendPostgres,
				db:       db,
			}, nil
		}
	}

	store, err := NewFileStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file store: %w", err)
	}

	slog.Info("ファイルバックエンドを使用します", "dir", store.Dir())
	return &Backend{
		Users:    NewFileUserRepo(store),
		Menus:    NewFileMenuRepo(store),
		Sessions: NewFileSessionRepo(store),
		kind:     BackendFile,
	}, nil
}
