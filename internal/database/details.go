package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// detailColumns lists the mutable columns of delivery_request_details in the
// order used by (*DeliveryDetail).values and (*DeliveryDetail).scanTargets.
var detailColumns = []string{
	"dlvr_req_no", "dlvr_req_dtl_seq", "dlvr_req_chg_ord", "dlvr_req_nm",
	"dlvr_req_rcpt_date", "dlvr_tmlmt_date", "dlvr_req_dt", "intl_cntrct_dlvr_req_date",
	"dminstt_cd", "dminstt_nm", "dminstt_rgn_nm", "dmnd_instt_div_nm",
	"cntrct_corp_bizno", "corp_nm", "corp_entrprs_div_nm_nm", "brnofce_nm",
	"cntrct_no", "cntrct_chg_ord", "cntrct_cncls_stle_nm", "mas_yn", "cnstwk_mtrl_drct_purchs_obj_yn",
	"prdct_clsfc_no", "prdct_clsfc_no_nm", "dtil_prdct_clsfc_no", "dtil_prdct_clsfc_no_nm",
	"prdct_idnt_no", "prdct_idnt_no_nm", "prdct_unit",
	"prdct_uprc", "prdct_qty", "prdct_amt", "dlvr_req_qty", "dlvr_req_amt", "incdec_qty", "incdec_amt",
	"exclc_prodct_yn", "fnl_dlvr_req_yn", "smetpr_cmpt_prodct_yn", "optn_div_cd_nm",
	"api_response_json",
}

var (
	insertDetailSQL = fmt.Sprintf(
		`INSERT INTO delivery_request_details (%s, data_sync_dt, created_at)
		VALUES (%s, datetime('now'), datetime('now'))`,
		strings.Join(detailColumns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(detailColumns)), ", "),
	)
	updateDetailSQL = fmt.Sprintf(
		`UPDATE delivery_request_details
		SET %s = ?, data_sync_dt = datetime('now'), updated_at = datetime('now')
		WHERE id = ?`,
		strings.Join(detailColumns, " = ?, "),
	)
	selectDetailSQL = fmt.Sprintf(
		`SELECT id, %s, data_sync_dt, created_at, updated_at FROM delivery_request_details`,
		strings.Join(detailColumns, ", "),
	)
)

func (d *DeliveryDetail) values() []any {
	return []any{
		d.RequestNo, d.LineSeq, d.ChangeOrder, d.RequestName,
		d.ReceiptDate, d.DeadlineDate, d.RequestDate, d.IntlDeliveryDate,
		d.InstitutionCode, d.InstitutionName, d.InstitutionRegion, d.InstitutionType,
		d.BusinessNo, d.CompanyName, d.CompanyDivision, d.BranchOffice,
		d.ContractNo, d.ContractChangeOrder, d.ContractStyle, d.MASFlag, d.ConstructionMaterial,
		d.ClassificationNo, d.ClassificationName, d.DetailClassificationNo, d.DetailClassificationName,
		d.ProductCode, d.ProductName, d.ProductUnit,
		d.UnitPrice, d.ProductQty, d.ProductAmt, d.RequestQty, d.RequestAmt, d.IncDecQty, d.IncDecAmt,
		d.ExcellentFlag, d.FinalDeliveryFlag, d.SMEFlag, d.OptionDivision,
		d.RawJSON,
	}
}

func (d *DeliveryDetail) scanTargets() []any {
	return []any{
		&d.ID,
		&d.RequestNo, &d.LineSeq, &d.ChangeOrder, &d.RequestName,
		&d.ReceiptDate, &d.DeadlineDate, &d.RequestDate, &d.IntlDeliveryDate,
		&d.InstitutionCode, &d.InstitutionName, &d.InstitutionRegion, &d.InstitutionType,
		&d.BusinessNo, &d.CompanyName, &d.CompanyDivision, &d.BranchOffice,
		&d.ContractNo, &d.ContractChangeOrder, &d.ContractStyle, &d.MASFlag, &d.ConstructionMaterial,
		&d.ClassificationNo, &d.ClassificationName, &d.DetailClassificationNo, &d.DetailClassificationName,
		&d.ProductCode, &d.ProductName, &d.ProductUnit,
		&d.UnitPrice, &d.ProductQty, &d.ProductAmt, &d.RequestQty, &d.RequestAmt, &d.IncDecQty, &d.IncDecAmt,
		&d.ExcellentFlag, &d.FinalDeliveryFlag, &d.SMEFlag, &d.OptionDivision,
		&d.RawJSON,
		&d.DataSyncedAt, &d.CreatedAt, &d.UpdatedAt,
	}
}

// UpsertDeliveryDetail inserts a detail row or updates the existing row with
// the same (request number, line sequence). Returns the row ID and whether a
// new row was created. data_sync_dt is stamped on every call.
func (db *DB) UpsertDeliveryDetail(d *DeliveryDetail) (int64, bool, error) {
	if !d.Valid() {
		return 0, false, fmt.Errorf("delivery detail missing natural key (no=%q, seq=%d)", d.RequestNo, d.LineSeq)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, false, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow(
		"SELECT id FROM delivery_request_details WHERE dlvr_req_no = ? AND dlvr_req_dtl_seq = ?",
		d.RequestNo, d.LineSeq,
	).Scan(&id)

	created := false
	switch {
	case err == sql.ErrNoRows:
		result, err := tx.Exec(insertDetailSQL, d.values()...)
		if err != nil {
			return 0, false, fmt.Errorf("inserting detail %s/%d: %w", d.RequestNo, d.LineSeq, err)
		}
		if id, err = result.LastInsertId(); err != nil {
			return 0, false, err
		}
		created = true
	case err != nil:
		return 0, false, fmt.Errorf("looking up detail %s/%d: %w", d.RequestNo, d.LineSeq, err)
	default:
		args := append(d.values(), id)
		if _, err := tx.Exec(updateDetailSQL, args...); err != nil {
			return 0, false, fmt.Errorf("updating detail %s/%d: %w", d.RequestNo, d.LineSeq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit upsert: %w", err)
	}
	return id, created, nil
}

// GetDeliveryDetail returns the detail row for a natural key, or nil.
func (db *DB) GetDeliveryDetail(requestNo string, lineSeq int) (*DeliveryDetail, error) {
	row := db.conn.QueryRow(
		selectDetailSQL+" WHERE dlvr_req_no = ? AND dlvr_req_dtl_seq = ?",
		requestNo, lineSeq,
	)
	var d DeliveryDetail
	if err := row.Scan(d.scanTargets()...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// CountDeliveryDetails returns the number of raw detail rows.
func (db *DB) CountDeliveryDetails() (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM delivery_request_details").Scan(&n)
	return n, err
}

// CountDeliveryRequestNumbers returns the number of distinct request numbers
// in the raw table.
func (db *DB) CountDeliveryRequestNumbers() (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(DISTINCT dlvr_req_no) FROM delivery_request_details").Scan(&n)
	return n, err
}

// NextRequestNumbers returns up to limit distinct request numbers strictly
// greater than after, in ascending order. Pass "" to start from the beginning.
func (db *DB) NextRequestNumbers(after string, limit int) ([]string, error) {
	rows, err := db.conn.Query(
		`SELECT DISTINCT dlvr_req_no FROM delivery_request_details
		WHERE dlvr_req_no > ? ORDER BY dlvr_req_no LIMIT ?`,
		after, limit,
	)
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

// GetDetailsInRequestRange returns every detail row whose request number lies
// in [first, last], ordered by request number then line sequence.
func (db *DB) GetDetailsInRequestRange(first, last string) ([]DeliveryDetail, error) {
	rows, err := db.conn.Query(
		selectDetailSQL+` WHERE dlvr_req_no >= ? AND dlvr_req_no <= ?
		ORDER BY dlvr_req_no, dlvr_req_dtl_seq`,
		first, last,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []DeliveryDetail
	for rows.Next() {
		var d DeliveryDetail
		if err := rows.Scan(d.scanTargets()...); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// SumRequestAmounts returns the summed dlvr_req_amt per request number.
func (db *DB) SumRequestAmounts() (map[string]float64, error) {
	rows, err := db.conn.Query(
		`SELECT dlvr_req_no, COALESCE(SUM(dlvr_req_amt), 0)
		FROM delivery_request_details GROUP BY dlvr_req_no`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := make(map[string]float64)
	for rows.Next() {
		var no string
		var amt float64
		if err := rows.Scan(&no, &amt); err != nil {
			return nil, err
		}
		sums[no] = amt
	}
	return sums, rows.Err()
}
