package billing

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCash      PaymentMethod = "cash"
	PaymentCard      PaymentMethod = "card"
	PaymentInsurance PaymentMethod = "insurance"
	PaymentOnline    PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentInsurance, PaymentOnline:
		return true
	}
	return false
}

// Billing maps to the billing table. TotalAmount is derived by Recompute and
// is never read from a request.
type Billing struct {
	ID                int64           `db:"id" json:"id"`
	AppointmentID     int64           `db:"appointment_id" json:"appointment_id"`
	PatientID         int64           `db:"patient_id" json:"patient_id"`
	ConsultationFee   decimal.Decimal `db:"consultation_fee" json:"consultation_fee"`
	AdditionalCharges decimal.Decimal `db:"additional_charges" json:"additional_charges"`
	Discount          decimal.Decimal `db:"discount" json:"discount"`
	TaxAmount         decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	TotalAmount       decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status            Status          `db:"status" json:"status"`
	PaymentMethod     *PaymentMethod  `db:"payment_method" json:"payment_method,omitempty"`
	PaymentReference  *string         `db:"payment_reference" json:"payment_reference,omitempty"`
	Notes             *string         `db:"notes" json:"notes,omitempty"`
	PaidAt            *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// MarshalJSON renders money with exactly two fractional digits.
func (b Billing) MarshalJSON() ([]byte, error) {
	type alias Billing
	return json.Marshal(struct {
		alias
		ConsultationFee   string `json:"consultation_fee"`
		AdditionalCharges string `json:"additional_charges"`
		Discount          string `json:"discount"`
		TaxAmount         string `json:"tax_amount"`
		TotalAmount       string `json:"total_amount"`
	}{
		alias:             alias(b),
		ConsultationFee:   b.ConsultationFee.StringFixed(2),
		AdditionalCharges: b.AdditionalCharges.StringFixed(2),
		Discount:          b.Discount.StringFixed(2),
		TaxAmount:         b.TaxAmount.StringFixed(2),
		TotalAmount:       b.TotalAmount.StringFixed(2),
	})
}

// Charges are the caller-settable money fields. Omitted amounts are zero.
type Charges struct {
	ConsultationFee   decimal.Decimal `json:"consultation_fee"`
	AdditionalCharges decimal.Decimal `json:"additional_charges"`
	Discount          decimal.Decimal `json:"discount"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	Notes             *string         `json:"notes"`
}

type Filter struct {
	PatientID int64
	Status    Status
}
