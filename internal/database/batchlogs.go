package database

import (
	"database/sql"
	"fmt"
)

const batchLogColumns = `id, batch_name, start_time, end_time, status,
	total_count, success_count, filtered_count, error_count, api_call_count,
	error_message, details, created_at`

// StartBatchLog opens a RUNNING ledger entry and returns its ID.
func (db *DB) StartBatchLog(batchName string) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO batch_logs (batch_name, start_time, status) VALUES (?, datetime('now'), ?)`,
		batchName, BatchRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("starting batch log %q: %w", batchName, err)
	}
	return result.LastInsertId()
}

// CompleteBatchLog closes a RUNNING ledger entry with a terminal status and
// its final counters. Closing an entry that is not RUNNING is an error.
func (db *DB) CompleteBatchLog(id int64, status BatchStatus, c BatchCounters, errMsg, details *string) error {
	if status != BatchSuccess && status != BatchFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}
	result, err := db.conn.Exec(
		`UPDATE batch_logs SET
			end_time = datetime('now'), status = ?,
			total_count = ?, success_count = ?, filtered_count = ?, error_count = ?, api_call_count = ?,
			error_message = ?, details = ?
		WHERE id = ? AND status = ?`,
		status, c.Total, c.Success, c.Filtered, c.Error, c.APICalls,
		errMsg, details, id, BatchRunning,
	)
	if err != nil {
		return fmt.Errorf("completing batch log %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("batch log %d is not running", id)
	}
	return nil
}

// GetBatchLog returns a single ledger entry, or nil.
func (db *DB) GetBatchLog(id int64) (*BatchLog, error) {
	row := db.conn.QueryRow("SELECT "+batchLogColumns+" FROM batch_logs WHERE id = ?", id)
	b, err := scanBatchLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// GetBatchLogs returns the most recent ledger entries, newest first.
// An empty batchName matches every batch.
func (db *DB) GetBatchLogs(batchName string, limit int) ([]BatchLog, error) {
	query := "SELECT " + batchLogColumns + " FROM batch_logs"
	var args []any
	if batchName != "" {
		query += " WHERE batch_name = ?"
		args = append(args, batchName)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []BatchLog
	for rows.Next() {
		b, err := scanBatchLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *b)
	}
	return logs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatchLog(s scanner) (*BatchLog, error) {
	var b BatchLog
	var status string
	err := s.Scan(
		&b.ID, &b.BatchName, &b.StartTime, &b.EndTime, &status,
		&b.Counters.Total, &b.Counters.Success, &b.Counters.Filtered, &b.Counters.Error, &b.Counters.APICalls,
		&b.ErrorMessage, &b.Details, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = BatchStatus(status)
	return &b, nil
}
