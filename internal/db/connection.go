package db

import (
	"errors"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

// Open opens the SQLite database at path and syncs the schema.
func Open(path string) (*gorm.DB, error) {
	gdb, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := SyncSchema(gdb); err != nil {
		sqlDB, dbErr := gdb.DB()
		if dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return gdb, nil
}

func openSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	gdb, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := gdb.Exec(`PRAGMA journal_mode=WAL;`).Error; err != nil {
		return nil, err
	}
	if err := gdb.Exec(`PRAGMA busy_timeout=5000;`).Error; err != nil {
		return nil, err
	}
	if err := gdb.Exec(`PRAGMA foreign_keys=ON;`).Error; err != nil {
		return nil, err
	}
	return gdb, nil
}

// SyncSchema creates/updates tables and indexes from models. Table structure
// changes do not use versioned migrations.
func SyncSchema(gdb *gorm.DB) error {
	if gdb == nil {
		return errors.New("db is required")
	}
	if err := gdb.AutoMigrate(
		&User{},
		&UserPreference{},
		&Group{},
		&GroupMembership{},
		&Task{},
		&TaskDependency{},
	); err != nil {
		return err
	}
	for _, stmt := range []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_task_dependencies_unique ON task_dependencies(blocked_task_id, prereq_task_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_owner_status ON tasks(user_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_group_memberships_member_group ON group_memberships(member_group_id) WHERE member_group_id IS NOT NULL;`,
	} {
		if err := gdb.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
