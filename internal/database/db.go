package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect は接続先データベースの種類を表す。
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const sqliteScheme = "sqlite://"

// sqliteDSNPragmas はSQLite接続ごとに適用するPRAGMA。
// 外部キー制約はSQLiteでは接続単位で有効化が必要。
const sqliteDSNPragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// DialectOf はDATABASE_URLのスキームからDialectを判定する。
// postgres:// / postgresql:// はPostgreSQL、sqlite://path はSQLiteとして扱う。
func DialectOf(databaseURL string) (Dialect, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DialectPostgres, nil
	case strings.HasPrefix(databaseURL, sqliteScheme):
		if sqlitePath(databaseURL) == "" {
			return "", fmt.Errorf("sqlite database path is empty")
		}
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database url scheme")
	}
}

// Open はDATABASE_URLに応じたデータベース接続を開く。
// sql.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
func Open(databaseURL string) (*sql.DB, Dialect, error) {
	dialect, err := DialectOf(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}

	var db *sql.DB
	switch dialect {
	case DialectSQLite:
		db, err = sql.Open("sqlite", sqliteDSN(sqlitePath(databaseURL)))
	default:
		db, err = sql.Open("postgres", databaseURL)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}

	return db, dialect, nil
}

func sqlitePath(databaseURL string) string {
	path := strings.TrimPrefix(databaseURL, sqliteScheme)
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

func sqliteDSN(path string) string {
	return "file:" + path + "?" + sqliteDSNPragmas
}
