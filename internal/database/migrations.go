package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "raw delivery request details and batch ledger",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS delivery_request_details (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    dlvr_req_no TEXT NOT NULL,
    dlvr_req_dtl_seq INTEGER NOT NULL,
    dlvr_req_chg_ord TEXT,
    dlvr_req_nm TEXT,
    dlvr_req_rcpt_date TEXT,
    dlvr_tmlmt_date TEXT,
    dlvr_req_dt TEXT,
    intl_cntrct_dlvr_req_date TEXT,
    dminstt_cd TEXT,
    dminstt_nm TEXT,
    dminstt_rgn_nm TEXT,
    dmnd_instt_div_nm TEXT,
    cntrct_corp_bizno TEXT,
    corp_nm TEXT,
    corp_entrprs_div_nm_nm TEXT,
    brnofce_nm TEXT,
    cntrct_no TEXT,
    cntrct_chg_ord TEXT,
    cntrct_cncls_stle_nm TEXT,
    mas_yn TEXT,
    cnstwk_mtrl_drct_purchs_obj_yn TEXT,
    prdct_clsfc_no TEXT,
    prdct_clsfc_no_nm TEXT,
    dtil_prdct_clsfc_no TEXT,
    dtil_prdct_clsfc_no_nm TEXT,
    prdct_idnt_no TEXT,
    prdct_idnt_no_nm TEXT,
    prdct_unit TEXT,
    prdct_uprc REAL,
    prdct_qty REAL,
    prdct_amt REAL,
    dlvr_req_qty REAL,
    dlvr_req_amt REAL,
    incdec_qty REAL,
    incdec_amt REAL,
    exclc_prodct_yn TEXT,
    fnl_dlvr_req_yn TEXT,
    smetpr_cmpt_prodct_yn TEXT,
    optn_div_cd_nm TEXT,
    api_response_json TEXT,
    data_sync_dt TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT
);

CREATE TABLE IF NOT EXISTS batch_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    batch_name TEXT NOT NULL,
    start_time TEXT NOT NULL,
    end_time TEXT,
    status TEXT NOT NULL CHECK(status IN ('RUNNING', 'SUCCESS', 'FAILED')),
    total_count INTEGER DEFAULT 0,
    success_count INTEGER DEFAULT 0,
    filtered_count INTEGER DEFAULT 0,
    error_count INTEGER DEFAULT 0,
    api_call_count INTEGER DEFAULT 0,
    error_message TEXT,
    details TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS api_call_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    batch_log_id INTEGER REFERENCES batch_logs(id),
    api_name TEXT NOT NULL,
    api_url TEXT NOT NULL,
    request_params TEXT,
    response_code INTEGER DEFAULT 0,
    response_time_ms INTEGER DEFAULT 0,
    attempts INTEGER DEFAULT 1,
    status TEXT NOT NULL CHECK(status IN ('SUCCESS', 'FAILED')),
    error_message TEXT,
    call_time TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS filtering_companies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    business_number TEXT UNIQUE NOT NULL,
    company_name TEXT,
    is_active INTEGER DEFAULT 1,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_details_natural_key ON delivery_request_details(dlvr_req_no, dlvr_req_dtl_seq);
CREATE INDEX IF NOT EXISTS idx_details_bizno ON delivery_request_details(cntrct_corp_bizno);
CREATE INDEX IF NOT EXISTS idx_details_sync ON delivery_request_details(data_sync_dt);
CREATE INDEX IF NOT EXISTS idx_batch_logs_start ON batch_logs(start_time);
CREATE INDEX IF NOT EXISTS idx_api_call_history_batch ON api_call_history(batch_log_id);
CREATE INDEX IF NOT EXISTS idx_filtering_active ON filtering_companies(business_number, is_active);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "normalized reference and delivery request tables",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS institutions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    institution_code TEXT UNIQUE NOT NULL,
    institution_name TEXT,
    region_name TEXT,
    institution_type TEXT,
    is_active INTEGER DEFAULT 1,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS companies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    business_number TEXT UNIQUE NOT NULL,
    company_name TEXT,
    company_type TEXT,
    is_sme INTEGER DEFAULT 0,
    branch_office TEXT,
    is_active INTEGER DEFAULT 1,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS contracts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    contract_number TEXT NOT NULL,
    contract_change_order TEXT NOT NULL,
    contract_type TEXT,
    is_mas INTEGER DEFAULT 0,
    is_construction_material INTEGER DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE (contract_number, contract_change_order)
);

CREATE TABLE IF NOT EXISTS categories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    classification_code TEXT UNIQUE NOT NULL,
    classification_name TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

INSERT OR IGNORE INTO categories (id, classification_code, classification_name)
VALUES (0, '', 'unclassified');

CREATE TABLE IF NOT EXISTS products (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    product_code TEXT UNIQUE NOT NULL,
    product_name TEXT,
    category_id INTEGER NOT NULL DEFAULT 0 REFERENCES categories(id),
    detail_classification_code TEXT,
    detail_classification_name TEXT,
    unit TEXT,
    is_active INTEGER DEFAULT 1,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS delivery_requests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    delivery_request_number TEXT NOT NULL,
    delivery_request_change_order TEXT NOT NULL,
    delivery_request_name TEXT,
    delivery_request_date TEXT,
    delivery_receipt_date TEXT,
    delivery_deadline_date TEXT,
    international_delivery_date TEXT,
    institution_id INTEGER REFERENCES institutions(id),
    company_id INTEGER REFERENCES companies(id),
    contract_id INTEGER REFERENCES contracts(id),
    is_excellent_product INTEGER DEFAULT 0,
    is_final_delivery INTEGER DEFAULT 0,
    is_sme_product INTEGER DEFAULT 0,
    total_quantity REAL DEFAULT 0,
    total_amount REAL DEFAULT 0,
    data_sync_date TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE (delivery_request_number, delivery_request_change_order)
);

CREATE TABLE IF NOT EXISTS delivery_request_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    delivery_request_id INTEGER NOT NULL REFERENCES delivery_requests(id),
    sequence_number INTEGER NOT NULL,
    product_id INTEGER REFERENCES products(id),
    unit_price REAL DEFAULT 0,
    request_quantity REAL DEFAULT 0,
    delivery_quantity REAL DEFAULT 0,
    increase_decrease_quantity REAL DEFAULT 0,
    increase_decrease_amount REAL DEFAULT 0,
    total_amount REAL DEFAULT 0,
    delivery_expected_date TEXT,
    delivery_status_code TEXT,
    delivery_status_name TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_delivery_requests_institution ON delivery_requests(institution_id);
CREATE INDEX IF NOT EXISTS idx_delivery_requests_company ON delivery_requests(company_id);
CREATE INDEX IF NOT EXISTS idx_delivery_requests_receipt ON delivery_requests(delivery_receipt_date);
CREATE INDEX IF NOT EXISTS idx_delivery_request_items_request ON delivery_request_items(delivery_request_id);
CREATE INDEX IF NOT EXISTS idx_delivery_request_items_product ON delivery_request_items(product_id);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
