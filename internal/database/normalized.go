package database

import (
	"database/sql"
	"fmt"
)

// TruncateNormalized empties the normalized delivery request tables and resets
// their ID sequences. Reference tables are left intact.
func (db *DB) TruncateNormalized() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM delivery_request_items",
		"DELETE FROM delivery_requests",
		"DELETE FROM sqlite_sequence WHERE name IN ('delivery_request_items', 'delivery_requests')",
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("truncating normalized tables: %w", err)
		}
	}
	return tx.Commit()
}

// InsertDeliveryRequest writes a normalized delivery request header. A nil
// DataSyncDate is stamped with the current time.
func (t *Tx) InsertDeliveryRequest(r *DeliveryRequest) (int64, error) {
	result, err := t.tx.Exec(
		`INSERT INTO delivery_requests (
			delivery_request_number, delivery_request_change_order, delivery_request_name,
			delivery_request_date, delivery_receipt_date, delivery_deadline_date, international_delivery_date,
			institution_id, company_id, contract_id,
			is_excellent_product, is_final_delivery, is_sme_product,
			total_quantity, total_amount, data_sync_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, datetime('now')))`,
		r.Number, r.ChangeOrder, r.Name,
		r.RequestDate, r.ReceiptDate, r.DeadlineDate, r.IntlDeliveryDate,
		r.InstitutionID, r.CompanyID, r.ContractID,
		r.IsExcellent, r.IsFinalDelivery, r.IsSMEProduct,
		r.TotalQuantity, r.TotalAmount, r.DataSyncDate,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting delivery request %s: %w", r.Number, err)
	}
	return result.LastInsertId()
}

// InsertDeliveryRequestItem writes one normalized line of a delivery request.
func (t *Tx) InsertDeliveryRequestItem(it *DeliveryRequestItem) (int64, error) {
	result, err := t.tx.Exec(
		`INSERT INTO delivery_request_items (
			delivery_request_id, sequence_number, product_id,
			unit_price, request_quantity, delivery_quantity,
			increase_decrease_quantity, increase_decrease_amount, total_amount,
			delivery_expected_date, delivery_status_code, delivery_status_name
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.DeliveryRequestID, it.SequenceNumber, it.ProductID,
		it.UnitPrice, it.RequestQuantity, it.DeliveryQuantity,
		it.IncDecQuantity, it.IncDecAmount, it.TotalAmount,
		it.ExpectedDate, it.StatusCode, it.StatusName,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting item %d of request %d: %w", it.SequenceNumber, it.DeliveryRequestID, err)
	}
	return result.LastInsertId()
}

const deliveryRequestColumns = `id, delivery_request_number, delivery_request_change_order,
	COALESCE(delivery_request_name, ''), delivery_request_date, delivery_receipt_date,
	delivery_deadline_date, international_delivery_date, institution_id, company_id, contract_id,
	is_excellent_product, is_final_delivery, is_sme_product, total_quantity, total_amount,
	data_sync_date, created_at`

// GetDeliveryRequest returns the normalized request with the given number and
// change order, or nil.
func (db *DB) GetDeliveryRequest(number, changeOrder string) (*DeliveryRequest, error) {
	row := db.conn.QueryRow(
		"SELECT "+deliveryRequestColumns+" FROM delivery_requests WHERE delivery_request_number = ? AND delivery_request_change_order = ?",
		number, changeOrder,
	)
	r, err := scanDeliveryRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// GetDeliveryRequests returns normalized requests ordered by number.
func (db *DB) GetDeliveryRequests(limit int) ([]DeliveryRequest, error) {
	rows, err := db.conn.Query(
		"SELECT "+deliveryRequestColumns+" FROM delivery_requests ORDER BY delivery_request_number, delivery_request_change_order LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []DeliveryRequest
	for rows.Next() {
		r, err := scanDeliveryRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// GetDeliveryRequestItems returns the items of a request ordered by sequence.
func (db *DB) GetDeliveryRequestItems(requestID int64) ([]DeliveryRequestItem, error) {
	rows, err := db.conn.Query(
		`SELECT id, delivery_request_id, sequence_number, product_id,
			unit_price, request_quantity, delivery_quantity,
			increase_decrease_quantity, increase_decrease_amount, total_amount,
			delivery_expected_date, delivery_status_code, delivery_status_name
		FROM delivery_request_items WHERE delivery_request_id = ? ORDER BY sequence_number`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []DeliveryRequestItem
	for rows.Next() {
		var it DeliveryRequestItem
		if err := rows.Scan(&it.ID, &it.DeliveryRequestID, &it.SequenceNumber, &it.ProductID,
			&it.UnitPrice, &it.RequestQuantity, &it.DeliveryQuantity,
			&it.IncDecQuantity, &it.IncDecAmount, &it.TotalAmount,
			&it.ExpectedDate, &it.StatusCode, &it.StatusName); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanDeliveryRequest(s scanner) (*DeliveryRequest, error) {
	var r DeliveryRequest
	var excellent, final, sme int
	err := s.Scan(
		&r.ID, &r.Number, &r.ChangeOrder, &r.Name,
		&r.RequestDate, &r.ReceiptDate, &r.DeadlineDate, &r.IntlDeliveryDate,
		&r.InstitutionID, &r.CompanyID, &r.ContractID,
		&excellent, &final, &sme, &r.TotalQuantity, &r.TotalAmount,
		&r.DataSyncDate, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.IsExcellent = excellent != 0
	r.IsFinalDelivery = final != 0
	r.IsSMEProduct = sme != 0
	return &r, nil
}

// GetCompany returns the company with the given ID, or nil.
func (db *DB) GetCompany(id int64) (*Company, error) {
	var c Company
	var sme int
	err := db.conn.QueryRow(
		`SELECT id, business_number, COALESCE(company_name, ''), COALESCE(company_type, ''), is_sme, COALESCE(branch_office, '')
		FROM companies WHERE id = ?`, id,
	).Scan(&c.ID, &c.BusinessNumber, &c.Name, &c.Type, &sme, &c.BranchOffice)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.IsSME = sme != 0
	return &c, nil
}

// GetProduct returns the product with the given ID, or nil.
func (db *DB) GetProduct(id int64) (*Product, error) {
	var p Product
	err := db.conn.QueryRow(
		`SELECT id, product_code, COALESCE(product_name, ''), category_id,
			COALESCE(detail_classification_code, ''), COALESCE(detail_classification_name, ''), COALESCE(unit, '')
		FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Code, &p.Name, &p.CategoryID, &p.DetailClassificationCode, &p.DetailClassificationName, &p.Unit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
