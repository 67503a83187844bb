package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// NormalizeBusinessNumber strips separators so "123-45-67890" and
// "1234567890" match the same allow-list entry.
func NormalizeBusinessNumber(bizno string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(bizno))
}

// AddFilteringCompany adds a business number to the allow-list, or re-activates
// and renames it when already present.
func (db *DB) AddFilteringCompany(bizno string, name *string) (int64, error) {
	bizno = NormalizeBusinessNumber(bizno)
	if bizno == "" {
		return 0, fmt.Errorf("business number is required")
	}

	_, err := db.conn.Exec(
		`INSERT INTO filtering_companies (business_number, company_name, is_active) VALUES (?, ?, 1)
		ON CONFLICT(business_number) DO UPDATE SET
			company_name = COALESCE(excluded.company_name, company_name),
			is_active = 1,
			updated_at = datetime('now')`,
		bizno, name,
	)
	if err != nil {
		return 0, err
	}

	var id int64
	err = db.conn.QueryRow("SELECT id FROM filtering_companies WHERE business_number = ?", bizno).Scan(&id)
	return id, err
}

// GetFilteringCompany returns the allow-list entry for a business number, or nil.
func (db *DB) GetFilteringCompany(bizno string) (*FilteringCompany, error) {
	row := db.conn.QueryRow(
		"SELECT id, business_number, company_name, is_active, created_at, updated_at FROM filtering_companies WHERE business_number = ?",
		NormalizeBusinessNumber(bizno),
	)
	c, err := scanFilteringCompany(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetFilteringCompanies returns every allow-list entry.
func (db *DB) GetFilteringCompanies() ([]FilteringCompany, error) {
	return db.queryFilteringCompanies("SELECT id, business_number, company_name, is_active, created_at, updated_at FROM filtering_companies ORDER BY business_number")
}

// GetActiveBusinessNumbers returns the business numbers of active entries.
func (db *DB) GetActiveBusinessNumbers() ([]string, error) {
	rows, err := db.conn.Query("SELECT business_number FROM filtering_companies WHERE is_active = 1 ORDER BY business_number")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

// IsActiveBusinessNumber reports whether bizno has an active allow-list entry.
func (db *DB) IsActiveBusinessNumber(bizno string) (bool, error) {
	bizno = NormalizeBusinessNumber(bizno)
	if bizno == "" {
		return false, nil
	}
	var n int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM filtering_companies WHERE business_number = ? AND is_active = 1",
		bizno,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ToggleFilteringCompany flips the active state of an entry. Returns false if
// the business number is not in the allow-list.
func (db *DB) ToggleFilteringCompany(bizno string) (bool, error) {
	result, err := db.conn.Exec(
		`UPDATE filtering_companies SET is_active = NOT is_active, updated_at = datetime('now') WHERE business_number = ?`,
		NormalizeBusinessNumber(bizno),
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// DeleteFilteringCompany removes an entry. Returns false if it did not exist.
func (db *DB) DeleteFilteringCompany(bizno string) (bool, error) {
	result, err := db.conn.Exec("DELETE FROM filtering_companies WHERE business_number = ?", NormalizeBusinessNumber(bizno))
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func (db *DB) queryFilteringCompanies(query string, args ...any) ([]FilteringCompany, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []FilteringCompany
	for rows.Next() {
		c, err := scanFilteringCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	return companies, rows.Err()
}

func scanFilteringCompany(s scanner) (*FilteringCompany, error) {
	var c FilteringCompany
	var active int
	if err := s.Scan(&c.ID, &c.BusinessNumber, &c.CompanyName, &active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.IsActive = active != 0
	return &c, nil
}
