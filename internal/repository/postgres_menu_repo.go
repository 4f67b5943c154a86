package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/menuya/internal/model"
)

// PostgresMenuRepo はPostgreSQLを使用したメニューリポジトリ。
// セクションの全置換と削除は同一トランザクションで不可分に行う。
type PostgresMenuRepo struct {
	db *sql.DB
}

// NewPostgresMenuRepo はPostgresMenuRepoを生成する。
func NewPostgresMenuRepo(db *sql.DB) *PostgresMenuRepo {
	return &PostgresMenuRepo{db: db}
}

// menuColumns はメニュー取得クエリ共通のSELECT句。スキャン順と一致させる。
const menuColumns = `id, user_id, name, description, status, background, font_family,
	        color_theme, nav_theme, logo_data, logo_mime, logo_size,
	        slug, title, subtitle, published_at, version, created_at, updated_at`

// Create はメニューを作成する。
func (r *PostgresMenuRepo) Create(ctx context.Context, menu *model.Menu) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO menus (id, user_id, name, description, status, background, font_family,
		                    color_theme, nav_theme, logo_data, logo_mime, logo_size,
		                    slug, title, subtitle, published_at, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		         NULLIF($13, ''), $14, $15, $16, $17, $18, $19)`,
		menu.ID, menu.UserID, menu.Name, menu.Description, menu.Status, menu.Background, menu.FontFamily,
		menu.ColorTheme, menu.NavTheme, menu.LogoData, menu.LogoMime, menu.LogoSize,
		menu.Slug, menu.Title, menu.Subtitle, menu.PublishedAt, menu.Version, menu.CreatedAt, menu.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("メニューの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのメニューを取得する。見つからない場合はnilを返す。
// 削除済みメニューも返す。セクションは含まない。
func (r *PostgresMenuRepo) FindByID(ctx context.Context, id string) (*model.Menu, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+menuColumns+` FROM menus WHERE id = $1`, id)
	menu, err := scanMenu(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メニューの取得に失敗しました: %w", err)
	}
	return menu, nil
}

// ListByUserID はユーザーのメニュー一覧をセクション付きで返す。
// 削除済みは除外され、セクションはセクションID昇順に並ぶ。
func (r *PostgresMenuRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Menu, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+menuColumns+`
		 FROM menus
		 WHERE user_id = $1 AND status <> 'deleted'
		 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("メニュー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var menus []*model.Menu
	var menuIDs []string
	for rows.Next() {
		menu, err := scanMenu(rows)
		if err != nil {
			return nil, fmt.Errorf("メニュー行の読み取りに失敗しました: %w", err)
		}
		menus = append(menus, menu)
		menuIDs = append(menuIDs, menu.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("メニュー一覧の走査に失敗しました: %w", err)
	}

	if len(menus) == 0 {
		return menus, nil
	}

	sectionsByMenu, err := r.listSectionsByMenuIDs(ctx, menuIDs)
	if err != nil {
		return nil, err
	}
	for _, menu := range menus {
		menu.Sections = sectionsByMenu[menu.ID]
	}
	return menus, nil
}

// Update はメニューを全フィールド上書きで更新し、updated_atを進める。
// versionはReplaceSectionsのみが進めるため、ここでは書き換えない。
// 対象が存在しない場合はErrNotFound、公開スラッグが他の公開中メニューと
// 重複する場合はErrDuplicateKeyを返す。
func (r *PostgresMenuRepo) Update(ctx context.Context, menu *model.Menu) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE menus
		 SET name = $2, description = $3, status = $4, background = $5, font_family = $6,
		     color_theme = $7, nav_theme = $8, logo_data = $9, logo_mime = $10, logo_size = $11,
		     slug = NULLIF($12, ''), title = $13, subtitle = $14, published_at = $15,
		     updated_at = now()
		 WHERE id = $1`,
		menu.ID, menu.Name, menu.Description, menu.Status, menu.Background, menu.FontFamily,
		menu.ColorTheme, menu.NavTheme, menu.LogoData, menu.LogoMime, menu.LogoSize,
		menu.Slug, menu.Title, menu.Subtitle, menu.PublishedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update menu: %w", ErrDuplicateKey)
		}
		return fmt.Errorf("メニューの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("update menu %s: %w", menu.ID, ErrNotFound)
	}
	return nil
}

// ReplaceSections はメニューの全セクションをトランザクション内で置換する。
// 親メニューのversionを+1し、削除済みメニューへの保存は拒否する。
func (r *PostgresMenuRepo) ReplaceSections(ctx context.Context, menuID string, sections []model.MenuSection) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	// versionを進めつつ、対象メニューの存在と未削除を確認する
	result, err := tx.ExecContext(ctx,
		`UPDATE menus SET version = version + 1, updated_at = now()
		 WHERE id = $1 AND status <> 'deleted'`,
		menuID,
	)
	if err != nil {
		return fmt.Errorf("メニューversionの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("replace sections %s: %w", menuID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM menu_sections WHERE menu_id = $1`, menuID,
	); err != nil {
		return fmt.Errorf("既存セクションの削除に失敗しました: %w", err)
	}

	for _, sec := range sections {
		columns, err := json.Marshal(sec.Columns)
		if err != nil {
			return fmt.Errorf("列定義のエンコードに失敗しました: %w", err)
		}
		titleColumns, err := json.Marshal(sec.TitleColumns)
		if err != nil {
			return fmt.Errorf("タイトル列定義のエンコードに失敗しました: %w", err)
		}
		items, err := json.Marshal(sec.Items)
		if err != nil {
			return fmt.Errorf("アイテムのエンコードに失敗しました: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO menu_sections (menu_id, section_id, name, section_type, columns, title_columns, items)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			menuID, sec.SectionID, sec.Name, sec.Type, columns, titleColumns, items,
		); err != nil {
			return fmt.Errorf("セクションの挿入に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// ListSections はメニューのセクション一覧をセクションID昇順で返す。
func (r *PostgresMenuRepo) ListSections(ctx context.Context, menuID string) ([]model.MenuSection, error) {
	sectionsByMenu, err := r.listSectionsByMenuIDs(ctx, []string{menuID})
	if err != nil {
		return nil, err
	}
	return sectionsByMenu[menuID], nil
}

// SoftDelete はメニューをdeleted状態に遷移させ、全セクションを物理削除する。
// 状態遷移とセクション削除は同一トランザクションで行う。
func (r *PostgresMenuRepo) SoftDelete(ctx context.Context, menuID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE menus SET status = 'deleted', updated_at = now()
		 WHERE id = $1 AND status <> 'deleted'`,
		menuID,
	)
	if err != nil {
		return fmt.Errorf("メニューの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("delete menu %s: %w", menuID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM menu_sections WHERE menu_id = $1`, menuID,
	); err != nil {
		return fmt.Errorf("セクションの削除に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// FindPublishedBySlug は公開中メニューをスラッグで検索する。
// 公開中でない場合はnilを返す。セクション付き。
func (r *PostgresMenuRepo) FindPublishedBySlug(ctx context.Context, slug string) (*model.Menu, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+menuColumns+` FROM menus WHERE slug = $1 AND status = 'published'`, slug)
	menu, err := scanMenu(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スラッグによるメニューの検索に失敗しました: %w", err)
	}

	sections, err := r.ListSections(ctx, menu.ID)
	if err != nil {
		return nil, err
	}
	menu.Sections = sections
	return menu, nil
}

// CountActiveByUserID はユーザーの削除済みを除くメニュー数を返す。
func (r *PostgresMenuRepo) CountActiveByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM menus WHERE user_id = $1 AND status <> 'deleted'`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("メニュー数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// listSectionsByMenuIDs は複数メニューのセクションを一括取得し、メニューIDごとにまとめる。
func (r *PostgresMenuRepo) listSectionsByMenuIDs(ctx context.Context, menuIDs []string) (map[string][]model.MenuSection, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT menu_id, section_id, name, section_type, columns, title_columns, items
		 FROM menu_sections
		 WHERE menu_id = ANY($1)
		 ORDER BY menu_id, section_id ASC`,
		pq.Array(menuIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("セクション一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]model.MenuSection)
	for rows.Next() {
		var sec model.MenuSection
		var columns, titleColumns, items []byte
		if err := rows.Scan(&sec.MenuID, &sec.SectionID, &sec.Name, &sec.Type, &columns, &titleColumns, &items); err != nil {
			return nil, fmt.Errorf("セクション行の読み取りに失敗しました: %w", err)
		}
		if err := json.Unmarshal(columns, &sec.Columns); err != nil {
			return nil, fmt.Errorf("列定義のデコードに失敗しました: %w", err)
		}
		if err := json.Unmarshal(titleColumns, &sec.TitleColumns); err != nil {
			return nil, fmt.Errorf("タイトル列定義のデコードに失敗しました: %w", err)
		}
		if err := json.Unmarshal(items, &sec.Items); err != nil {
			return nil, fmt.Errorf("アイテムのデコードに失敗しました: %w", err)
		}
		result[sec.MenuID] = append(result[sec.MenuID], sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("セクション一覧の走査に失敗しました: %w", err)
	}
	return result, nil
}

// scanMenu は1行分のメニューをスキャンする。rowはQueryRowContextまたはrows。
func scanMenu(row interface{ Scan(dest ...any) error }) (*model.Menu, error) {
	menu := &model.Menu{}
	var slug sql.NullString
	var publishedAt sql.NullTime

	err := row.Scan(
		&menu.ID, &menu.UserID, &menu.Name, &menu.Description, &menu.Status, &menu.Background, &menu.FontFamily,
		&menu.ColorTheme, &menu.NavTheme, &menu.LogoData, &menu.LogoMime, &menu.LogoSize,
		&slug, &menu.Title, &menu.Subtitle, &publishedAt, &menu.Version, &menu.CreatedAt, &menu.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	menu.Slug = nullStringValue(slug)
	if publishedAt.Valid {
		menu.PublishedAt = &publishedAt.Time
	}
	return menu, nil
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

// isUniqueViolation はPostgreSQLの一意制約違反（23505）かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// compile-time interface check
var _ MenuRepository = (*PostgresMenuRepo)(nil)
