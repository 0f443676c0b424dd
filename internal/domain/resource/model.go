package resource

import "time"

type Type string

const (
	TypeBed       Type = "bed"
	TypeMedicine  Type = "medicine"
	TypeEquipment Type = "equipment"
)

var AllTypes = []Type{TypeBed, TypeMedicine, TypeEquipment}

func (t Type) Valid() bool {
	switch t {
	case TypeBed, TypeMedicine, TypeEquipment:
		return true
	}
	return false
}

const DefaultMinThreshold = 5

// Resource maps to the resources table. ExpiryDate is YYYY-MM-DD.
type Resource struct {
	ID                int64     `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Type              Type      `db:"resource_type" json:"resource_type"`
	Category          *string   `db:"category" json:"category,omitempty"`
	TotalQuantity     int       `db:"total_quantity" json:"total_quantity"`
	AvailableQuantity int       `db:"available_quantity" json:"available_quantity"`
	Unit              *string   `db:"unit" json:"unit,omitempty"`
	Description       *string   `db:"description" json:"description,omitempty"`
	Location          *string   `db:"location" json:"location,omitempty"`
	ExpiryDate        *string   `db:"expiry_date" json:"expiry_date,omitempty"`
	MinThreshold      int       `db:"min_threshold" json:"min_threshold"`
	IsActive          bool      `db:"is_active" json:"is_active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// IsLowStock reports available <= threshold. Zero and negative values apply
// as-is.
func IsLowStock(r *Resource) bool {
	return r.AvailableQuantity <= r.MinThreshold
}

// Expired reports whether r is a medicine whose expiry date is before today.
func Expired(r *Resource, today string) bool {
	return r.Type == TypeMedicine && r.ExpiryDate != nil && *r.ExpiryDate < today
}

type TransactionType string

const (
	TxIn         TransactionType = "in"
	TxOut        TransactionType = "out"
	TxAdjustment TransactionType = "adjustment"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxIn, TxOut, TxAdjustment:
		return true
	}
	return false
}

// Transaction maps to resource_transactions. Quantity is positive for in and
// out; an adjustment carries its own sign.
type Transaction struct {
	ID          int64           `db:"id" json:"id"`
	ResourceID  int64           `db:"resource_id" json:"resource_id"`
	Type        TransactionType `db:"transaction_type" json:"transaction_type"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Reason      *string         `db:"reason" json:"reason,omitempty"`
	ReferenceID *string         `db:"reference_id" json:"reference_id,omitempty"`
	CreatedBy   int64           `db:"created_by" json:"created_by"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Signed is the transaction's contribution to available stock.
func (t *Transaction) Signed() int {
	if t.Type == TxOut {
		return -t.Quantity
	}
	return t.Quantity
}

type CreateRequest struct {
	Name              string  `json:"name"`
	Type              Type    `json:"resource_type"`
	Category          *string `json:"category"`
	TotalQuantity     int     `json:"total_quantity"`
	AvailableQuantity *int    `json:"available_quantity"`
	Unit              *string `json:"unit"`
	Description       *string `json:"description"`
	Location          *string `json:"location"`
	ExpiryDate        *string `json:"expiry_date"`
	MinThreshold      *int    `json:"min_threshold"`
	IsActive          *bool   `json:"is_active"`
}

// UpdateRequest changes descriptive fields. Stock moves only through
// transactions.
type UpdateRequest struct {
	Name          *string `json:"name"`
	Category      *string `json:"category"`
	TotalQuantity *int    `json:"total_quantity"`
	Unit          *string `json:"unit"`
	Description   *string `json:"description"`
	Location      *string `json:"location"`
	ExpiryDate    *string `json:"expiry_date"`
	MinThreshold  *int    `json:"min_threshold"`
	IsActive      *bool   `json:"is_active"`
}

type TransactionRequest struct {
	Type         TransactionType `json:"transaction_type"`
	Quantity     int             `json:"quantity"`
	Reason       *string         `json:"reason"`
	ReferenceID  *string         `json:"reference_id"`
	ApplyToStock bool            `json:"apply_to_stock"`
}

type Filter struct {
	Type Type
}

type AlertType string

const (
	AlertLowStock AlertType = "low_stock"
	AlertExpired  AlertType = "expired"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

type Alert struct {
	Type              AlertType `json:"type"`
	ResourceID        int64     `json:"resource_id"`
	ResourceName      string    `json:"resource_name"`
	AvailableQuantity *int      `json:"available_quantity,omitempty"`
	MinThreshold      *int      `json:"min_threshold,omitempty"`
	ExpiryDate        *string   `json:"expiry_date,omitempty"`
	Priority          Priority  `json:"priority"`
}

// Reconciliation compares stored stock with the ledger balance
// total + sum of signed transactions.
type Reconciliation struct {
	ResourceID        int64 `json:"resource_id"`
	TotalQuantity     int   `json:"total_quantity"`
	AvailableQuantity int   `json:"available_quantity"`
	LedgerNet         int   `json:"ledger_net"`
	LedgerBalance     int   `json:"ledger_balance"`
	Drift             int   `json:"drift"`
	Transactions      int   `json:"transactions"`
}

// Summary is the admin dashboard view of inventory.
type Summary struct {
	TotalResources   int       `json:"total_resources"`
	TotalBeds        int       `json:"total_beds"`
	TotalMedicines   int       `json:"total_medicines"`
	TotalEquipment   int       `json:"total_equipment"`
	LowStockCount    int       `json:"low_stock_count"`
	ExpiredMedicines int       `json:"expired_medicines"`
	Occupancy        Occupancy `json:"-"`
}

type Occupancy struct {
	TotalBeds     int     `json:"total_beds"`
	OccupiedBeds  int     `json:"occupied_beds"`
	AvailableBeds int     `json:"available_beds"`
	OccupancyRate float64 `json:"occupancy_rate"`
}
