package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/argonath/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// GetOrCreate はgithub_loginの一意制約を利用して1文でupsertする。
// 同時実行されても重複行は作られない。
func (r *PostgresUserRepo) GetOrCreate(ctx context.Context, githubLogin string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (github_login)
		 VALUES ($1)
		 ON CONFLICT (github_login) DO UPDATE SET github_login = EXCLUDED.github_login
		 RETURNING id, github_login, created_at`,
		githubLogin,
	).Scan(&user.ID, &user.GitHubLogin, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to upsert user: %w", model.ErrStoreFailure, err)
	}

	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, github_login, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.GitHubLogin, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find user by ID: %w", model.ErrStoreFailure, err)
	}

	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
