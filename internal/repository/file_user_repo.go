package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hitoshi/menuya/internal/model"
)

// fileUser はusers.jsonに永続化されるユーザーレコード。
type fileUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Name         string    `json:"name"`
	BusinessName string    `json:"business_name"`
	PlanTier     string    `json:"plan_tier"`
	MaxMenus     int       `json:"max_menus"`
	GoogleID     string    `json:"google_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func (f fileUser) toModel() *model.User {
	return &model.User{
		ID:           f.ID,
		Email:        f.Email,
		PasswordHash: f.PasswordHash,
		Name:         f.Name,
		BusinessName: f.BusinessName,
		PlanTier:     f.PlanTier,
		MaxMenus:     f.MaxMenus,
		GoogleID:     f.GoogleID,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
		LastActiveAt: f.LastActiveAt,
	}
}

func toFileUser(u *model.User) fileUser {
	return fileUser{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		BusinessName: u.BusinessName,
		PlanTier:     u.PlanTier,
		MaxMenus:     u.MaxMenus,
		GoogleID:     u.GoogleID,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		LastActiveAt: u.LastActiveAt,
	}
}

// FileUserRepo はJSONファイルを使用したユーザーリポジトリ。
type FileUserRepo struct {
	store *FileStore
}

// NewFileUserRepo はFileUserRepoを生成する。
func NewFileUserRepo(store *FileStore) *FileUserRepo {
	return &FileUserRepo{store: store}
}

// Create はユーザーを作成する。メールアドレスが登録済みの場合はErrDuplicateKeyを返す。
func (r *FileUserRepo) Create(ctx context.Context, user *model.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	users, err := r.load()
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.Email == user.Email {
			return fmt.Errorf("insert user: %w", ErrDuplicateKey)
		}
	}

	users = append(users, toFileUser(user))
	return r.save(users)
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *FileUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	users, err := r.load()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == id {
			return u.toModel(), nil
		}
	}
	return nil, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *FileUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	users, err := r.load()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Email == email {
			return u.toModel(), nil
		}
	}
	return nil, nil
}

// FindByGoogleID はGoogleアカウントIDでユーザーを検索する。見つからない場合はnilを返す。
func (r *FileUserRepo) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	if googleID == "" {
		return nil, nil
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	users, err := r.load()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.GoogleID == googleID {
			return u.toModel(), nil
		}
	}
	return nil, nil
}

// Update はユーザーのプロフィール情報を更新する。対象が存在しない場合はErrNotFoundを返す。
func (r *FileUserRepo) Update(ctx context.Context, user *model.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	users, err := r.load()
	if err != nil {
		return err
	}

	idx := -1
	for i, u := range users {
		if u.ID == user.ID {
			idx = i
			continue
		}
		if u.Email == user.Email {
			return fmt.Errorf("update user: %w", ErrDuplicateKey)
		}
	}
	if idx < 0 {
		return fmt.Errorf("update user %s: %w", user.ID, ErrNotFound)
	}

	updated := toFileUser(user)
	updated.CreatedAt = users[idx].CreatedAt
	updated.LastActiveAt = users[idx].LastActiveAt
	updated.UpdatedAt = time.Now()
	users[idx] = updated
	return r.save(users)
}

// UpdateLastActive は最終アクティブ日時を現在時刻に更新する。
// 対象が存在しない場合はErrNotFoundを返す。
func (r *FileUserRepo) UpdateLastActive(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	users, err := r.load()
	if err != nil {
		return err
	}
	for i := range users {
		if users[i].ID == id {
			users[i].LastActiveAt = time.Now()
			return r.save(users)
		}
	}
	return fmt.Errorf("update last active %s: %w", id, ErrNotFound)
}

// ListWithMenuCounts は全ユーザーをメニュー数・公開数の集計付きで返す。
// PostgreSQL実装と同様、認証情報（password_hash, google_id）は結果に含めない。
func (r *FileUserRepo) ListWithMenuCounts(ctx context.Context) ([]model.UserWithCounts, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	users, err := r.load()
	if err != nil {
		return nil, err
	}

	menusData, err := r.store.readFile(menusFile)
	if err != nil {
		return nil, err
	}
	var menus []fileMenu
	if err := json.Unmarshal(menusData, &menus); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", menusFile, err)
	}

	menuCounts := make(map[string]int)
	publishedCounts := make(map[string]int)
	for _, m := range menus {
		if m.Status == string(model.MenuStatusDeleted) {
			continue
		}
		menuCounts[m.UserID]++
		if m.Status == string(model.MenuStatusPublished) {
			publishedCounts[m.UserID]++
		}
	}

	var results []model.UserWithCounts
	for _, u := range users {
		info := model.UserWithCounts{
			User:           *u.toModel(),
			MenuCount:      menuCounts[u.ID],
			PublishedCount: publishedCounts[u.ID],
		}
		info.PasswordHash = ""
		info.GoogleID = ""
		results = append(results, info)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

// load はusers.jsonを読み込む。呼び出し側がロックを保持すること。
func (r *FileUserRepo) load() ([]fileUser, error) {
	data, err := r.store.readFile(usersFile)
	if err != nil {
		return nil, err
	}
	var users []fileUser
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", usersFile, err)
	}
	return users, nil
}

// save はusers.jsonを書き込む。呼び出し側がロックを保持すること。
func (r *FileUserRepo) save(users []fileUser) error {
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", usersFile, err)
	}
	return r.store.writeFile(usersFile, append(data, '\n'))
}

// compile-time interface check
var _ UserRepository = (*FileUserRepo)(nil)
