// Package repositories はデータベース操作を行うリポジトリを提供します。
package repositories

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrTodoNotFound はTODOが見つからない (または他ユーザーの) 場合のエラーです。
	ErrTodoNotFound = errors.New("todo not found")
	// ErrDuplicateInstance は同じテンプレート・同じ日のインスタンスが既にある場合のエラーです。
	ErrDuplicateInstance = errors.New("instance already materialized for this day")

	ErrDuplicateEmail = errors.New("duplicate email")
	ErrUserNotFound   = errors.New("user not found")
)

// isDuplicateKey は一意制約違反かどうかを判定します (MySQL 1062 / SQLite UNIQUE)。
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
	}
	return false
}
