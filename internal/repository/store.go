package repository

import (
	"database/sql"

	"github.com/hitoshi/argonath/internal/database"
)

// Stores はDialectに応じて選択したリポジトリの組。
type Stores struct {
	Users    UserRepository
	Sessions SessionRepository
}

// NewStores はDialectに対応するリポジトリ実装を生成する。
func NewStores(db *sql.DB, dialect database.Dialect) Stores {
	if dialect == database.DialectSQLite {
		return Stores{
			Users:    NewSQLiteUserRepo(db),
			Sessions: NewSQLiteSessionRepo(db),
		}
	}
	return Stores{
		Users:    NewPostgresUserRepo(db),
		Sessions: NewPostgresSessionRepo(db),
	}
}
