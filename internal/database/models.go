package database

// DeliveryDetail is one upstream delivery-request line item in canonical form.
// The natural key is (RequestNo, LineSeq).
type DeliveryDetail struct {
	ID          int64
	RequestNo   string
	LineSeq     int
	ChangeOrder *string
	RequestName *string

	ReceiptDate      *string
	DeadlineDate     *string
	RequestDate      *string
	IntlDeliveryDate *string

	InstitutionCode   *string
	InstitutionName   *string
	InstitutionRegion *string
	InstitutionType   *string

	BusinessNo      *string
	CompanyName     *string
	CompanyDivision *string
	BranchOffice    *string

	ContractNo           *string
	ContractChangeOrder  *string
	ContractStyle        *string
	MASFlag              *string
	ConstructionMaterial *string

	ClassificationNo         *string
	ClassificationName       *string
	DetailClassificationNo   *string
	DetailClassificationName *string
	ProductCode              *string
	ProductName              *string
	ProductUnit              *string

	UnitPrice  *float64
	ProductQty *float64
	ProductAmt *float64
	RequestQty *float64
	RequestAmt *float64
	IncDecQty  *float64
	IncDecAmt  *float64

	ExcellentFlag     *string
	FinalDeliveryFlag *string
	SMEFlag           *string
	OptionDivision    *string

	RawJSON *string

	DataSyncedAt *string
	CreatedAt    *string
	UpdatedAt    *string
}

// Valid reports whether both halves of the natural key are present.
func (d *DeliveryDetail) Valid() bool {
	return d.RequestNo != "" && d.LineSeq > 0
}

// BatchStatus is the lifecycle state of a batch run.
type BatchStatus string

const (
	BatchRunning BatchStatus = "RUNNING"
	BatchSuccess BatchStatus = "SUCCESS"
	BatchFailed  BatchStatus = "FAILED"
)

// BatchCounters are the counters a batch run reports when it closes.
type BatchCounters struct {
	Total    int `json:"total"`
	Success  int `json:"success"`
	Filtered int `json:"filtered"`
	Error    int `json:"error"`
	APICalls int `json:"api_calls"`
}

// BatchLog is one row of the batch ledger.
type BatchLog struct {
	ID           int64
	BatchName    string
	StartTime    string
	EndTime      *string
	Status       BatchStatus
	Counters     BatchCounters
	ErrorMessage *string
	Details      *string
	CreatedAt    *string
}

// APICall records one upstream call made during a batch.
type APICall struct {
	ID            int64
	BatchLogID    *int64
	APIName       string
	APIURL        string
	RequestParams *string
	ResponseCode  int
	ResponseTime  int64 // milliseconds
	Attempts      int
	Status        string // "SUCCESS" or "FAILED"
	ErrorMessage  *string
	CallTime      *string
}

// FilteringCompany is an allow-list entry.
type FilteringCompany struct {
	ID             int64
	BusinessNumber string
	CompanyName    *string
	IsActive       bool
	CreatedAt      *string
	UpdatedAt      *string
}

// Institution is a demand institution reference row.
type Institution struct {
	ID     int64
	Code   string
	Name   string
	Region string
	Type   string
}

// Company is a contractor reference row keyed by business number.
type Company struct {
	ID             int64
	BusinessNumber string
	Name           string
	Type           string
	IsSME          bool
	BranchOffice   string
}

// Contract is a contract reference row keyed by number and change order.
type Contract struct {
	ID                     int64
	Number                 string
	ChangeOrder            string
	Type                   string
	IsMAS                  bool
	IsConstructionMaterial bool
}

// UnclassifiedCategoryID is the reserved category for products without a classification.
const UnclassifiedCategoryID int64 = 0

// Category is a product classification reference row.
type Category struct {
	ID   int64
	Code string
	Name string
}

// Product is a product reference row keyed by identification number.
type Product struct {
	ID                       int64
	Code                     string
	Name                     string
	CategoryID               int64
	DetailClassificationCode string
	DetailClassificationName string
	Unit                     string
}

// DeliveryRequest is the normalized aggregate for one delivery request number.
type DeliveryRequest struct {
	ID               int64
	Number           string
	ChangeOrder      string
	Name             string
	RequestDate      *string
	ReceiptDate      *string
	DeadlineDate     *string
	IntlDeliveryDate *string
	InstitutionID    *int64
	CompanyID        *int64
	ContractID       *int64
	IsExcellent      bool
	IsFinalDelivery  bool
	IsSMEProduct     bool
	TotalQuantity    float64
	TotalAmount      float64
	DataSyncDate     *string
	CreatedAt        *string
}

// DeliveryRequestItem is one normalized line of a delivery request.
type DeliveryRequestItem struct {
	ID                int64
	DeliveryRequestID int64
	SequenceNumber    int
	ProductID         *int64
	UnitPrice         float64
	RequestQuantity   float64
	DeliveryQuantity  float64
	IncDecQuantity    float64
	IncDecAmount      float64
	TotalAmount       float64
	ExpectedDate      *string
	StatusCode        *string
	StatusName        *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	RawRecords           int
	SyncedToday          int
	DeliveryRequests     int
	DeliveryRequestItems int
	Institutions         int
	Companies            int
	Contracts            int
	Products             int
	Categories           int
	AllowListTotal       int
	AllowListActive      int
	LastBatch            *BatchLog
}

// FilteringStats describes how raw records line up with the allow-list.
type FilteringStats struct {
	TotalRecords     int
	Matched          int
	Unmatched        int
	NoBusinessNumber int
}
