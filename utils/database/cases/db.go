package cases

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the sqlite-backed case ledger and task store.
type Store struct {
	db *sqlx.DB
}

// Init opens the database and ensures all tables exist.
func Init(dbPath string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// 单连接写入，避免 sqlite 的 database is locked
	db.SetMaxOpenConns(1)

	casesSchema := `CREATE TABLE IF NOT EXISTS moderation_cases (
		guild_id TEXT NOT NULL,
		case_id INTEGER NOT NULL,
		user_id TEXT NOT NULL,
		moderator_id TEXT NOT NULL,
		action_type INTEGER NOT NULL,
		reason TEXT DEFAULT '',
		created_at INTEGER NOT NULL,
		duration_ms INTEGER,
		invalidated INTEGER NOT NULL DEFAULT 0,
		appeal_type INTEGER,
		PRIMARY KEY (guild_id, case_id)
	);`
	if _, err = db.Exec(casesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create moderation_cases table: %w", err)
	}

	tasksSchema := `CREATE TABLE IF NOT EXISTS scheduled_tasks (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		task_kind TEXT NOT NULL,
		due_at INTEGER NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		catch_up INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);`
	if _, err = db.Exec(tasksSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create scheduled_tasks table: %w", err)
	}

	// Add new columns if they don't exist (for databases created before appeals)
	alterStatements := []string{
		`ALTER TABLE moderation_cases ADD COLUMN appeal_type INTEGER`,
	}
	for _, stmt := range alterStatements {
		_, err = db.Exec(stmt)
		if err != nil && !strings.Contains(err.Error(), "duplicate column name") {
			db.Close()
			return nil, fmt.Errorf("failed to execute ALTER statement %s: %w", stmt, err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_cases_user ON moderation_cases (guild_id, user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_due ON scheduled_tasks (due_at, seq)`,
	}
	for _, stmt := range indexes {
		if _, err = db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
