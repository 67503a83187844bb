package database

import (
	"database/sql"
	"fmt"
)

// Tx is a write transaction used by normalization so a delivery request, its
// items, and any reference rows they create commit together.
type Tx struct {
	tx *sql.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback aborts the transaction. Calling it after Commit is a no-op.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return err
	}
	return nil
}

// getOrCreate inserts a row guarded by a unique constraint and returns its ID
// and whether this call created it. A concurrent insert of the same key is
// absorbed by ON CONFLICT and resolved by the follow-up lookup.
func (t *Tx) getOrCreate(insert string, insertArgs []any, lookup string, lookupArgs []any) (int64, bool, error) {
	result, err := t.tx.Exec(insert+" ON CONFLICT DO NOTHING", insertArgs...)
	if err != nil {
		return 0, false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n > 0 {
		id, err := result.LastInsertId()
		return id, true, err
	}

	var id int64
	if err := t.tx.QueryRow(lookup, lookupArgs...).Scan(&id); err != nil {
		return 0, false, err
	}
	return id, false, nil
}

// ResolveInstitution returns the ID of the institution with inst.Code,
// creating it from inst when absent.
func (t *Tx) ResolveInstitution(inst *Institution) (int64, bool, error) {
	id, created, err := t.getOrCreate(
		`INSERT INTO institutions (institution_code, institution_name, region_name, institution_type) VALUES (?, ?, ?, ?)`,
		[]any{inst.Code, inst.Name, inst.Region, inst.Type},
		"SELECT id FROM institutions WHERE institution_code = ?",
		[]any{inst.Code},
	)
	if err != nil {
		return 0, false, fmt.Errorf("resolving institution %q: %w", inst.Code, err)
	}
	return id, created, nil
}

// ResolveCompany returns the ID of the company with c.BusinessNumber,
// creating it from c when absent.
func (t *Tx) ResolveCompany(c *Company) (int64, bool, error) {
	id, created, err := t.getOrCreate(
		`INSERT INTO companies (business_number, company_name, company_type, is_sme, branch_office) VALUES (?, ?, ?, ?, ?)`,
		[]any{c.BusinessNumber, c.Name, c.Type, c.IsSME, c.BranchOffice},
		"SELECT id FROM companies WHERE business_number = ?",
		[]any{c.BusinessNumber},
	)
	if err != nil {
		return 0, false, fmt.Errorf("resolving company %q: %w", c.BusinessNumber, err)
	}
	return id, created, nil
}

// ResolveContract returns the ID of the contract with (c.Number, c.ChangeOrder),
// creating it from c when absent.
func (t *Tx) ResolveContract(c *Contract) (int64, bool, error) {
	id, created, err := t.getOrCreate(
		`INSERT INTO contracts (contract_number, contract_change_order, contract_type, is_mas, is_construction_material) VALUES (?, ?, ?, ?, ?)`,
		[]any{c.Number, c.ChangeOrder, c.Type, c.IsMAS, c.IsConstructionMaterial},
		"SELECT id FROM contracts WHERE contract_number = ? AND contract_change_order = ?",
		[]any{c.Number, c.ChangeOrder},
	)
	if err != nil {
		return 0, false, fmt.Errorf("resolving contract %q/%q: %w", c.Number, c.ChangeOrder, err)
	}
	return id, created, nil
}

// ResolveCategory returns the ID of the category with c.Code, creating it when
// absent. An empty code resolves to UnclassifiedCategoryID.
func (t *Tx) ResolveCategory(c *Category) (int64, bool, error) {
	if c.Code == "" {
		return UnclassifiedCategoryID, false, nil
	}
	id, created, err := t.getOrCreate(
		`INSERT INTO categories (classification_code, classification_name) VALUES (?, ?)`,
		[]any{c.Code, c.Name},
		"SELECT id FROM categories WHERE classification_code = ?",
		[]any{c.Code},
	)
	if err != nil {
		return 0, false, fmt.Errorf("resolving category %q: %w", c.Code, err)
	}
	return id, created, nil
}

// ResolveProduct returns the ID of the product with p.Code, creating it from p
// when absent. p.CategoryID must already be resolved.
func (t *Tx) ResolveProduct(p *Product) (int64, bool, error) {
	id, created, err := t.getOrCreate(
		`INSERT INTO products (product_code, product_name, category_id, detail_classification_code, detail_classification_name, unit) VALUES (?, ?, ?, ?, ?, ?)`,
		[]any{p.Code, p.Name, p.CategoryID, p.DetailClassificationCode, p.DetailClassificationName, p.Unit},
		"SELECT id FROM products WHERE product_code = ?",
		[]any{p.Code},
	)
	if err != nil {
		return 0, false, fmt.Errorf("resolving product %q: %w", p.Code, err)
	}
	return id, created, nil
}
