package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/argonath/internal/model"
)

// SQLiteSessionRepo はSQLiteを使用したセッションリポジトリ。
// SQLiteにはUUID生成関数がないため、IDはuuid.New()で採番する。
type SQLiteSessionRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteSessionRepo はSQLiteSessionRepoを生成する。
func NewSQLiteSessionRepo(db *sql.DB) *SQLiteSessionRepo {
	return &SQLiteSessionRepo{db: db, now: time.Now}
}

// Create はセッションを作成する。
func (r *SQLiteSessionRepo) Create(ctx context.Context, params CreateSessionParams) (*model.Session, error) {
	session := &model.Session{
		ID:           uuid.New().String(),
		UserID:       params.UserID,
		AccessToken:  params.AccessToken,
		RefreshToken: params.RefreshToken,
		CreatedAt:    fromUnixMilli(r.now().UTC().UnixMilli()),
	}

	var expiresAt sql.NullInt64
	if params.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: params.ExpiresAt.UTC().UnixMilli(), Valid: true}
		t := fromUnixMilli(expiresAt.Int64)
		session.ExpiresAt = &t
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, access_token, refresh_token, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.AccessToken, session.RefreshToken, expiresAt, session.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create session: %w", model.ErrStoreFailure, err)
	}

	return session, nil
}

// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
func (r *SQLiteSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var (
		session   model.Session
		expiresAt sql.NullInt64
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, access_token, refresh_token, expires_at, created_at
		 FROM sessions
		 WHERE id = ?`,
		id,
	).Scan(&session.ID, &session.UserID, &session.AccessToken, &session.RefreshToken, &expiresAt, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find session: %w", model.ErrStoreFailure, err)
	}

	session.CreatedAt = fromUnixMilli(createdAt)
	if expiresAt.Valid {
		t := fromUnixMilli(expiresAt.Int64)
		session.ExpiresAt = &t
	}

	return &session, nil
}

// compile-time interface check
var _ SessionRepository = (*SQLiteSessionRepo)(nil)
