package database

import (
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// checkDetailColumns fails when a delivery_request_details table that predates
// the migrations lacks columns the store writes. CREATE TABLE IF NOT EXISTS
// leaves such a table untouched.
func checkDetailColumns(conn *sql.DB) error {
	rows, err := conn.Query("SELECT name FROM pragma_table_info('delivery_request_details')")
	if err != nil {
		return fmt.Errorf("reading delivery_request_details columns: %w", err)
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	want := append(append([]string{}, detailColumns...), "data_sync_dt", "created_at", "updated_at")
	var missing []string
	for _, col := range want {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("delivery_request_details is missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// migrate brings the database schema up to the latest version.
// It uses PRAGMA user_version to track which migrations have been applied.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}

	// Every migration is idempotent DDL, so a database with tables but no
	// user_version simply runs them all.
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		zap.L().Info("applying migration",
			zap.Int("version", m.Version),
			zap.String("description", m.Description))

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// Set user_version outside the transaction (modernc/sqlite requirement).
		// Safe: if we crash here, the idempotent DDL lets the migration re-run.
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return fmt.Errorf("setting version %d: %w", m.Version, err)
		}
	}

	return checkDetailColumns(conn)
}
