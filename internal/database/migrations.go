package database

import (
	"database/sql"
	"fmt"
)

// AccountTables lists the per-role account tables in creation order.
var AccountTables = []string{"students", "teachers", "admins"}

// accountSchema is shared by every role table. The role-specific profile is
// stored as an encrypted JSON document in profile_encrypted.
const accountSchema = `
    CREATE TABLE IF NOT EXISTS %[1]s (
        id TEXT PRIMARY KEY,
        business_id TEXT UNIQUE NOT NULL,
        username TEXT UNIQUE NOT NULL,
        full_name TEXT NOT NULL,
        email TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        password_changed_at DATETIME NOT NULL,
        is_active BOOLEAN NOT NULL DEFAULT 1,
        last_login DATETIME,
        login_attempts INTEGER NOT NULL DEFAULT 0,
        account_locked BOOLEAN NOT NULL DEFAULT 0,
        locked_until DATETIME,
        profile_encrypted TEXT NOT NULL DEFAULT '',
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_%[1]s_email ON %[1]s(email);
    CREATE INDEX IF NOT EXISTS idx_%[1]s_active ON %[1]s(is_active);
    `

// Migrate runs database migrations
func Migrate(db *sql.DB) error {
	for _, table := range AccountTables {
		if _, err := db.Exec(fmt.Sprintf(accountSchema, table)); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table, err)
		}
	}

	return nil
}
