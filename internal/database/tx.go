package database

import "database/sql"

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// withTx runs fn in a transaction, committing when it returns nil
func (db *DB) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
