// Package persistence provides database storage implementations.
package persistence

import (
	"fmt"
	"strings"

	"github.com/toolcat/visimatch/infrastructure/search"
	"github.com/toolcat/visimatch/internal/database"
	"gorm.io/gorm"
)

// PreMigrate handles one-time schema conversions needed before AutoMigrate
// runs. There are currently none for a fresh schema; kept as a named hook
// so a future column/type conversion has an obvious home, matching how the
// teacher isolates irreversible migrations from AutoMigrate's idempotent
// create-if-missing behavior.
func PreMigrate(db database.Database) error {
	return nil
}

// AutoMigrate runs GORM auto migration for all models.
func AutoMigrate(db database.Database) error {
	if err := db.GORM().AutoMigrate(allModels()...); err != nil {
		return err
	}
	return postMigrate(db)
}

// postMigrate drops, on Postgres only, the FK constraint GORM may create for
// the task status parent-chain self-reference (GORM would otherwise infer
// a belongs-to relation from the `parent` column name and attempt to
// migrate it as a foreign key, which self-referencing varchar keys don't
// support cleanly across SQLite and Postgres).
func postMigrate(db database.Database) error {
	if !db.IsPostgres() {
		return nil
	}

	gdb := db.GORM()
	if err := gdb.Exec(
		`ALTER TABLE task_status DROP CONSTRAINT IF EXISTS task_status_parent_fkey`,
	).Error; err != nil {
		return fmt.Errorf("drop task_status parent constraint: %w", err)
	}
	return nil
}

// allModels returns every GORM model that AutoMigrate manages.
func allModels() []any {
	models := []any{
		&TaskModel{},
		&TaskStatusModel{},
		&FeedbackExampleModel{},
		&NewProductAnnotationModel{},
		&TrainingSessionModel{},
		&ModelBackupModel{},
	}
	return append(models, search.Models()...)
}

// ValidateSchema verifies every GORM model field has a corresponding column
// in the database. Returns an error listing any missing columns.
func ValidateSchema(db database.Database) error {
	gdb := db.GORM()
	migrator := gdb.Migrator()

	var missing []string
	for _, model := range allModels() {
		stmt := &gorm.Statement{DB: gdb}
		if err := stmt.Parse(model); err != nil {
			return fmt.Errorf("parse model schema: %w", err)
		}

		columnTypes, err := migrator.ColumnTypes(model)
		if err != nil {
			return fmt.Errorf("get column types for %s: %w", stmt.Table, err)
		}

		actual := make(map[string]bool, len(columnTypes))
		for _, ct := range columnTypes {
			actual[ct.Name()] = true
		}

		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" || field.DBName == "-" {
				continue
			}
			if !actual[field.DBName] {
				missing = append(missing, stmt.Table+"."+field.DBName)
			}
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("schema validation failed — missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
