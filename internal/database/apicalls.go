package database

// InsertAPICall records one upstream call in api_call_history.
func (db *DB) InsertAPICall(c *APICall) (int64, error) {
	status := c.Status
	if status == "" {
		status = "SUCCESS"
	}
	result, err := db.conn.Exec(
		`INSERT INTO api_call_history
			(batch_log_id, api_name, api_url, request_params, response_code, response_time_ms, attempts, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.BatchLogID, c.APIName, c.APIURL, c.RequestParams, c.ResponseCode, c.ResponseTime, c.Attempts, status, c.ErrorMessage,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetAPICalls returns the calls recorded for a batch, in call order.
func (db *DB) GetAPICalls(batchLogID int64) ([]APICall, error) {
	rows, err := db.conn.Query(
		`SELECT id, batch_log_id, api_name, api_url, request_params, response_code,
			response_time_ms, attempts, status, error_message, call_time
		FROM api_call_history WHERE batch_log_id = ? ORDER BY id`,
		batchLogID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []APICall
	for rows.Next() {
		var c APICall
		if err := rows.Scan(&c.ID, &c.BatchLogID, &c.APIName, &c.APIURL, &c.RequestParams, &c.ResponseCode,
			&c.ResponseTime, &c.Attempts, &c.Status, &c.ErrorMessage, &c.CallTime); err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}
