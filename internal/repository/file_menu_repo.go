package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hitoshi/menuya/internal/model"
)

// fileMenu はmenus.jsonに永続化されるメニューレコード。
type fileMenu struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Background  string     `json:"background"`
	FontFamily  string     `json:"font_family"`
	ColorTheme  string     `json:"color_theme"`
	NavTheme    string     `json:"nav_theme"`
	LogoData    []byte     `json:"logo_data,omitempty"`
	LogoMime    string     `json:"logo_mime,omitempty"`
	LogoSize    string     `json:"logo_size,omitempty"`
	Slug        string     `json:"slug,omitempty"`
	Title       string     `json:"title,omitempty"`
	Subtitle    string     `json:"subtitle,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (f fileMenu) toModel() *model.Menu {
	return &model.Menu{
		ID:          f.ID,
		UserID:      f.UserID,
		Name:        f.Name,
		Description: f.Description,
		Status:      model.MenuStatus(f.Status),
		Background:  f.Background,
		FontFamily:  f.FontFamily,
		ColorTheme:  f.ColorTheme,
		NavTheme:    f.NavTheme,
		LogoData:    f.LogoData,
		LogoMime:    f.LogoMime,
		LogoSize:    f.LogoSize,
		Slug:        f.Slug,
		Title:       f.Title,
		Subtitle:    f.Subtitle,
		PublishedAt: f.PublishedAt,
		Version:     f.Version,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

func toFileMenu(m *model.Menu) fileMenu {
	return fileMenu{
		ID:          m.ID,
		UserID:      m.UserID,
		Name:        m.Name,
		Description: m.Description,
		Status:      string(m.Status),
		Background:  m.Background,
		FontFamily:  m.FontFamily,
		ColorTheme:  m.ColorTheme,
		NavTheme:    m.NavTheme,
		LogoData:    m.LogoData,
		LogoMime:    m.LogoMime,
		LogoSize:    m.LogoSize,
		Slug:        m.Slug,
		Title:       m.Title,
		Subtitle:    m.Subtitle,
		PublishedAt: m.PublishedAt,
		Version:     m.Version,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// fileSection はmenu_sections.jsonに永続化されるセクションレコード。
type fileSection struct {
	MenuID       string              `json:"menu_id"`
	SectionID    int                 `json:"section_id"`
	Name         string              `json:"name"`
	Type         string              `json:"type"`
	Columns      []string            `json:"columns"`
	TitleColumns []string            `json:"title_columns"`
	Items        []model.SectionItem `json:"items"`
}

func (f fileSection) toModel() model.MenuSection {
	return model.MenuSection{
		MenuID:       f.MenuID,
		SectionID:    f.SectionID,
		Name:         f.Name,
		Type:         f.Type,
		Columns:      f.Columns,
		TitleColumns: f.TitleColumns,
		Items:        f.Items,
	}
}

func toFileSection(s model.MenuSection) fileSection {
	return fileSection{
		MenuID:       s.MenuID,
		SectionID:    s.SectionID,
		Name:         s.Name,
		Type:         s.Type,
		Columns:      s.Columns,
		TitleColumns: s.TitleColumns,
		Items:        s.Items,
	}
}

// FileMenuRepo はJSONファイルを使用したメニューリポジトリ。
// 公開スラッグの一意性はストアのロック内で明示的に検査する。
type FileMenuRepo struct {
	store *FileStore
}

// NewFileMenuRepo はFileMenuRepoを生成する。
func NewFileMenuRepo(store *FileStore) *FileMenuRepo {
	return &FileMenuRepo{store: store}
}

// Create はメニューを作成する。
func (r *FileMenuRepo) Create(ctx context.Context, menu *model.Menu) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	menus, err := r.loadMenus()
	if err != nil {
		return err
	}
	menus = append(menus, toFileMenu(menu))
	return r.saveMenus(menus)
}

// FindByID は指定IDのメニューを取得する。見つからない場合はnilを返す。
// 削除済みメニューも返す。セクションは含まない。
func (r *FileMenuRepo) FindByID(ctx context.Context, id string) (*model.Menu, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	menus, err := r.loadMenus()
	if err != nil {
		return nil, err
	}
	for _, m := range menus {
		if m.ID == id {
			return m.toModel(), nil
		}
	}
	return nil, nil
}

// ListByUserID はユーザーのメニュー一覧をセクション付きで返す。
// 削除済みは除外され、セクションはセクションID昇順に並ぶ。
func (r *FileMenuRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Menu, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	menus, err := r.loadMenus()
	if err != nil {
		return nil, err
	}
	sections, err := r.loadSections()
	if err != nil {
		return nil, err
	}

	var results []*model.Menu
	for _, m := range menus {
		if m.UserID != userID || m.Status == string(model.MenuStatusDeleted) {
			continue
		}
		menu := m.toModel()
		menu.Sections = sectionsForMenu(sections, m.ID)
		results = append(results, menu)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

// Update はメニューを全フィールド上書きで更新し、updated_atを進める。
// versionとcreated_at、所有者は保存済みの値を維持する。
// 公開スラッグが他の公開中メニューと重複する場合はErrDuplicateKeyを返す。
func (r *FileMenuRepo) Update(ctx context.Context, menu *model.Menu) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	menus, err := r.loadMenus()
	if err != nil {
		return err
	}

	idx := -1
	for i, m := range menus {
		if m.ID == menu.ID {
			idx = i
			continue
		}
		// 公開中メニュー間のスラッグ一意性をロック内で検査する
		if menu.Status == model.MenuStatusPublished && menu.Slug != "" &&
			m.Status == string(model.MenuStatusPublished) && m.Slug == menu.Slug {
			return fmt.Errorf("update menu: %w", ErrDuplicateKey)
		}
	}
	if idx < 0 {
		return fmt.Errorf("update menu %s: %w", menu.ID, ErrNotFound)
	}

	updated := toFileMenu(menu)
	updated.UserID = menus[idx].UserID
	updated.Version = menus[idx].Version
	updated.CreatedAt = menus[idx].CreatedAt
	updated.UpdatedAt = time.Now()
	menus[idx] = updated
	return r.saveMenus(menus)
}

// ReplaceSections はメニューの全セクションを置換する。
// ロック内で読み取り-置換-書き込みを行い、親メニューのversionを+1する。
func (r *FileMenuRepo) ReplaceSections(ctx context.Context, menuID string, sections []model.MenuSection) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	menus, err := r.loadMenus()
	if err != nil {
		return err
	}
	idx := -1
	for i, m := range menus {
		if m.ID == menuID && m.Status != string(model.MenuStatusDeleted) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("replace sections %s: %w", menuID, ErrNotFound)
	}

	all, err := r.loadSections()
	if err != nil {
		return err
	}
	var next []fileSection
	for _, s := range all {
		if s.MenuID != menuID {
			next = append(next, s)
		}
	}
	for _, s := range sections {
		fs := toFileSection(s)
		fs.MenuID = menuID
		next = append(next, fs)
	}

	// セクションを先に書き、versionの更新は最後に行う
	if err := r.saveSections(next); err != nil {
		return err
	}
	menus[idx].Version++
	menus[idx].UpdatedAt = time.Now()
	return r.saveMenus(menus)
}

// ListSections はメニューのセクション一覧をセクションID昇順で返す。
func (r *FileMenuRepo) ListSections(ctx context.Context, menuID string) ([]model.MenuSection, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	sections, err := r.loadSections()
	if err != nil {
		return nil, err
	}
	return sectionsForMenu(sections, menuID), nil
}

// SoftDelete はメニューをdeleted状態に遷移させ、全セクションを物理削除する。
func (r *FileMenuRepo) SoftDelete(ctx context.Context, menuID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	menus, err := r.loadMenus()
	if err != nil {
		return err
	}
	idx := -1
	for i, m := range menus {
		if m.ID == menuID && m.Status != string(model.MenuStatusDeleted) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("delete menu %s: %w", menuID, ErrNotFound)
	}

	all, err := r.loadSections()
	if err != nil {
		return err
	}
	var next []fileSection
	for _, s := range all {
		if s.MenuID != menuID {
			next = append(next, s)
		}
	}
	if err := r.saveSections(next); err != nil {
		return err
	}

	menus[idx].Status = string(model.MenuStatusDeleted)
	menus[idx].UpdatedAt = time.Now()
	return r.saveMenus(menus)
}

// FindPublishedBySlug は公開中メニューをスラッグで検索する。
// 公開中でない場合はnilを返す。セクション付き。
func (r *FileMenuRepo) FindPublishedBySlug(ctx context.Context, slug string) (*model.Menu, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	menus, err := r.loadMenus()
	if err != nil {
		return nil, err
	}
	for _, m := range menus {
		if m.Status == string(model.MenuStatusPublished) && m.Slug == slug {
			sections, err := r.loadSections()
			if err != nil {
				return nil, err
			}
			menu := m.toModel()
			menu.Sections = sectionsForMenu(sections, m.ID)
			return menu, nil
		}
	}
	return nil, nil
}

// CountActiveByUserID はユーザーの削除済みを除くメニュー数を返す。
func (r *FileMenuRepo) CountActiveByUserID(ctx context.Context, userID string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	menus, err := r.loadMenus()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range menus {
		if m.UserID == userID && m.Status != string(model.MenuStatusDeleted) {
			count++
		}
	}
	return count, nil
}

// sectionsForMenu は指定メニューのセクションをセクションID昇順で抽出する。
func sectionsForMenu(all []fileSection, menuID string) []model.MenuSection {
	var result []model.MenuSection
	for _, s := range all {
		if s.MenuID == menuID {
			result = append(result, s.toModel())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SectionID < result[j].SectionID
	})
	return result
}

// loadMenus はmenus.jsonを読み込む。呼び出し側がロックを保持すること。
func (r *FileMenuRepo) loadMenus() ([]fileMenu, error) {
	data, err := r.store.readFile(menusFile)
	if err != nil {
		return nil, err
	}
	var menus []fileMenu
	if err := json.Unmarshal(data, &menus); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", menusFile, err)
	}
	return menus, nil
}

// saveMenus はmenus.jsonを書き込む。呼び出し側がロックを保持すること。
func (r *FileMenuRepo) saveMenus(menus []fileMenu) error {
	data, err := json.MarshalIndent(menus, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", menusFile, err)
	}
	return r.store.writeFile(menusFile, append(data, '\n'))
}

// loadSections はmenu_sections.jsonを読み込む。呼び出し側がロックを保持すること。
func (r *FileMenuRepo) loadSections() ([]fileSection, error) {
	data, err := r.store.readFile(sectionsFile)
	if err != nil {
		return nil, err
	}
	var sections []fileSection
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", sectionsFile, err)
	}
	return sections, nil
}

// saveSections はmenu_sections.jsonを書き込む。呼び出し側がロックを保持すること。
func (r *FileMenuRepo) saveSections(sections []fileSection) error {
	data, err := json.MarshalIndent(sections, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", sectionsFile, err)
	}
	return r.store.writeFile(sectionsFile, append(data, '\n'))
}

// compile-time interface check
var _ MenuRepository = (*FileMenuRepo)(nil)
