package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/argonath/internal/model"
)

// SQLiteUserRepo はSQLiteを使用したユーザーリポジトリ。
// 日時はUNIXミリ秒のINTEGERとして保存する。
type SQLiteUserRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteUserRepo はSQLiteUserRepoを生成する。
func NewSQLiteUserRepo(db *sql.DB) *SQLiteUserRepo {
	return &SQLiteUserRepo{db: db, now: time.Now}
}

// GetOrCreate はgithub_loginの一意制約を利用して1文でupsertする。
func (r *SQLiteUserRepo) GetOrCreate(ctx context.Context, githubLogin string) (*model.User, error) {
	var (
		user      model.User
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (github_login, created_at)
		 VALUES (?, ?)
		 ON CONFLICT (github_login) DO UPDATE SET github_login = excluded.github_login
		 RETURNING id, github_login, created_at`,
		githubLogin, r.now().UTC().UnixMilli(),
	).Scan(&user.ID, &user.GitHubLogin, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to upsert user: %w", model.ErrStoreFailure, err)
	}
	user.CreatedAt = fromUnixMilli(createdAt)

	return &user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *SQLiteUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	var (
		user      model.User
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, github_login, created_at FROM users WHERE id = ?`,
		id,
	).Scan(&user.ID, &user.GitHubLogin, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find user by ID: %w", model.ErrStoreFailure, err)
	}
	user.CreatedAt = fromUnixMilli(createdAt)

	return &user, nil
}

func fromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// compile-time interface check
var _ UserRepository = (*SQLiteUserRepo)(nil)
