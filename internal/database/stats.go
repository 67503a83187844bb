package database

// GetStats returns aggregate row counts across the raw, reference, and
// normalized tables, plus the most recent batch run.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM delivery_request_details", &s.RawRecords},
		{"SELECT COUNT(*) FROM delivery_request_details WHERE date(data_sync_dt) = date('now')", &s.SyncedToday},
		{"SELECT COUNT(*) FROM delivery_requests", &s.DeliveryRequests},
		{"SELECT COUNT(*) FROM delivery_request_items", &s.DeliveryRequestItems},
		{"SELECT COUNT(*) FROM institutions", &s.Institutions},
		{"SELECT COUNT(*) FROM companies", &s.Companies},
		{"SELECT COUNT(*) FROM contracts", &s.Contracts},
		{"SELECT COUNT(*) FROM products", &s.Products},
		{"SELECT COUNT(*) FROM categories", &s.Categories},
		{"SELECT COUNT(*) FROM filtering_companies", &s.AllowListTotal},
		{"SELECT COUNT(*) FROM filtering_companies WHERE is_active = 1", &s.AllowListActive},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	logs, err := db.GetBatchLogs("", 1)
	if err != nil {
		return nil, err
	}
	if len(logs) > 0 {
		s.LastBatch = &logs[0]
	}
	return s, nil
}

// GetFilteringStats reports how many raw records belong to active allow-list
// companies.
func (db *DB) GetFilteringStats() (*FilteringStats, error) {
	var s FilteringStats
	err := db.conn.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN fc.id IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN d.cntrct_corp_bizno IS NULL OR d.cntrct_corp_bizno = '' THEN 1 ELSE 0 END), 0)
		FROM delivery_request_details d
		LEFT JOIN filtering_companies fc
			ON fc.business_number = REPLACE(d.cntrct_corp_bizno, '-', '') AND fc.is_active = 1`,
	).Scan(&s.TotalRecords, &s.Matched, &s.NoBusinessNumber)
	if err != nil {
		return nil, err
	}
	s.Unmatched = s.TotalRecords - s.Matched - s.NoBusinessNumber
	return &s, nil
}
