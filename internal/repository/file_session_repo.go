package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/menuya/internal/model"
)

// fileSession はsessions.jsonに永続化されるセッションレコード。
type fileSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// FileSessionRepo はJSONファイルを使用したセッションリポジトリ。
type FileSessionRepo struct {
	store *FileStore
}

// NewFileSessionRepo はFileSessionRepoを生成する。
func NewFileSessionRepo(store *FileStore) *FileSessionRepo {
	return &FileSessionRepo{store: store}
}

// Create はセッションを作成する。
func (r *FileSessionRepo) Create(ctx context.Context, session *model.Session) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	sessions, err := r.load()
	if err != nil {
		return err
	}
	sessions = append(sessions, fileSession{
		ID:        session.ID,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	return r.save(sessions)
}

// FindByID は指定IDのセッションを取得する。
// 期限切れのセッションはその場で削除した上でnilを返すため、書き込みロックを取る。
func (r *FileSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	sessions, err := r.load()
	if err != nil {
		return nil, err
	}
	for i, s := range sessions {
		if s.ID != id {
			continue
		}
		if !s.ExpiresAt.After(time.Now()) {
			// 期限切れは遅延削除し、存在しないものとして扱う
			sessions = append(sessions[:i], sessions[i+1:]...)
			if err := r.save(sessions); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return &model.Session{
			ID:        s.ID,
			UserID:    s.UserID,
			ExpiresAt: s.ExpiresAt,
			CreatedAt: s.CreatedAt,
		}, nil
	}
	return nil, nil
}

// DeleteByID は指定IDのセッションを削除する。対象が存在しなくてもエラーにしない。
func (r *FileSessionRepo) DeleteByID(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	sessions, err := r.load()
	if err != nil {
		return err
	}
	for i, s := range sessions {
		if s.ID == id {
			sessions = append(sessions[:i], sessions[i+1:]...)
			return r.save(sessions)
		}
	}
	return nil
}

// DeleteExpired は期限切れセッションを一括削除し、削除件数を返す。
func (r *FileSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	sessions, err := r.load()
	if err != nil {
		return 0, err
	}
	now := time.Now()
	var kept []fileSession
	for _, s := range sessions {
		if s.ExpiresAt.After(now) {
			kept = append(kept, s)
		}
	}
	removed := int64(len(sessions) - len(kept))
	if removed == 0 {
		return 0, nil
	}
	if err := r.save(kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// load はsessions.jsonを読み込む。呼び出し側がロックを保持すること。
func (r *FileSessionRepo) load() ([]fileSession, error) {
	data, err := r.store.readFile(sessionsFile)
	if err != nil {
		return nil, err
	}
	var sessions []fileSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", sessionsFile, err)
	}
	return sessions, nil
}

// save はsessions.jsonを書き込む。呼び出し側がロックを保持すること。
func (r *FileSessionRepo) save(sessions []fileSession) error {
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", sessionsFile, err)
	}
	return r.store.writeFile(sessionsFile, append(data, '\n'))
}

// compile-time interface check
var _ SessionRepository = (*FileSessionRepo)(nil)
