package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/menuya/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// Create はユーザーを作成する。メールアドレスが登録済みの場合はErrDuplicateKeyを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, name, business_name, plan_tier,
		                    max_menus, google_id, created_at, updated_at, last_active_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11)`,
		user.ID, user.Email, user.PasswordHash, user.Name, user.BusinessName, user.PlanTier,
		user.MaxMenus, user.GoogleID, user.CreatedAt, user.UpdatedAt, user.LastActiveAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user: %w", ErrDuplicateKey)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findBy(ctx, `WHERE id = $1`, id)
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findBy(ctx, `WHERE email = $1`, email)
}

// FindByGoogleID はGoogleアカウントIDでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return r.findBy(ctx, `WHERE google_id = $1`, googleID)
}

func (r *PostgresUserRepo) findBy(ctx context.Context, where string, arg any) (*model.User, error) {
	user := &model.User{}
	var googleID sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, name, business_name, plan_tier,
		        max_menus, google_id, created_at, updated_at, last_active_at
		 FROM users `+where,
		arg,
	).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.BusinessName, &user.PlanTier,
		&user.MaxMenus, &googleID, &user.CreatedAt, &user.UpdatedAt, &user.LastActiveAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	user.GoogleID = nullStringValue(googleID)
	return user, nil
}

// Update はユーザーのプロフィール情報を更新する。対象が存在しない場合はErrNotFoundを返す。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET email = $2, password_hash = $3, name = $4, business_name = $5,
		     plan_tier = $6, max_menus = $7, google_id = NULLIF($8, ''), updated_at = now()
		 WHERE id = $1`,
		user.ID, user.Email, user.PasswordHash, user.Name, user.BusinessName,
		user.PlanTier, user.MaxMenus, user.GoogleID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update user: %w", ErrDuplicateKey)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("update user %s: %w", user.ID, ErrNotFound)
	}
	return nil
}

// UpdateLastActive は最終アクティブ日時を現在時刻に更新する。
// 対象が存在しない場合はErrNotFoundを返す。
func (r *PostgresUserRepo) UpdateLastActive(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_active_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update last active: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("update last active %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListWithMenuCounts は全ユーザーをメニュー数・公開数の集計付きで返す。
// menusとLEFT JOINして、削除済みを除くメニュー数と公開中メニュー数を取得する。
func (r *PostgresUserRepo) ListWithMenuCounts(ctx context.Context) ([]model.UserWithCounts, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT
			u.id, u.email, u.name, u.business_name, u.plan_tier, u.max_menus,
			u.created_at, u.updated_at, u.last_active_at,
			COALESCE(m.menu_count, 0), COALESCE(m.published_count, 0)
		 FROM users u
		 LEFT JOIN (
		     SELECT user_id,
		            COUNT(*) AS menu_count,
		            COUNT(*) FILTER (WHERE status = 'published') AS published_count
		     FROM menus
		     WHERE status <> 'deleted'
		     GROUP BY user_id
		 ) m ON m.user_id = u.id
		 ORDER BY u.created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with menu counts: %w", err)
	}
	defer rows.Close()

	var results []model.UserWithCounts
	for rows.Next() {
		var info model.UserWithCounts
		if err := rows.Scan(
			&info.ID, &info.Email, &info.Name, &info.BusinessName, &info.PlanTier, &info.MaxMenus,
			&info.CreatedAt, &info.UpdatedAt, &info.LastActiveAt,
			&info.MenuCount, &info.PublishedCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		results = append(results, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return results, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
