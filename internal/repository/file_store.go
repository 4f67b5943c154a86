package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ファイルバックエンドのドキュメント名。エンティティ種別ごとに1ファイル。
const (
	usersFile    = "users.json"
	menusFile    = "menus.json"
	sectionsFile = "menu_sections.json"
	sessionsFile = "sessions.json"
)

// FileStore はJSONドキュメント群を管理するファイルストア。
// 全リポジトリがストア単位のRWMutexを共有し、読み取り-変更-書き込みを
// 直列化する。書き込みは一時ファイル+renameで行い、途中で落ちても
// ドキュメントが壊れた状態は残さない。単一プロセスでの利用が前提。
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore はFileStoreを生成する。
// ディレクトリと4つのドキュメントが存在しない場合は空の状態で作成する。
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &FileStore{dir: dir}
	for _, name := range []string{usersFile, menusFile, sectionsFile, sessionsFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		if err := s.writeFile(name, []byte("[]\n")); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Dir はストアのルートディレクトリを返す。
func (s *FileStore) Dir() string {
	return s.dir
}

// readFile はドキュメントの生バイト列を読み込む。呼び出し側がロックを保持すること。
func (s *FileStore) readFile(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return []byte("[]"), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// writeFile はドキュメントを一時ファイル経由で不可分に書き込む。
// 呼び出し側がロックを保持すること。
func (s *FileStore) writeFile(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}
