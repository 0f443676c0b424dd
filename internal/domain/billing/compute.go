package billing

import (
	"github.com/shopspring/decimal"

	"github.com/harms/harms/internal/platform/apperror"
)

const moneyPlaces = 2

// maxAmount is the exclusive bound of a NUMERIC(10,2) column.
var maxAmount = decimal.New(1, 8)

var (
	ErrNegativeAmount  = apperror.Validation("amounts must not be negative")
	ErrDiscountTooHigh = apperror.Validation("discount exceeds charges")
	ErrAmountTooLarge  = apperror.Validation("amounts must be below 100000000.00")
)

// Recompute derives TotalAmount from the four components:
// fee + additional + tax - discount, rounded to cents.
func Recompute(b *Billing) error {
	for _, d := range []*decimal.Decimal{&b.ConsultationFee, &b.AdditionalCharges, &b.Discount, &b.TaxAmount} {
		if d.IsNegative() {
			return ErrNegativeAmount
		}
		*d = d.Round(moneyPlaces)
		if d.GreaterThanOrEqual(maxAmount) {
			return ErrAmountTooLarge
		}
	}
	total := b.ConsultationFee.Add(b.AdditionalCharges).Add(b.TaxAmount).Sub(b.Discount).Round(moneyPlaces)
	if total.IsNegative() {
		return ErrDiscountTooHigh
	}
	if total.GreaterThanOrEqual(maxAmount) {
		return ErrAmountTooLarge
	}
	b.TotalAmount = total
	return nil
}

func (c Charges) apply(b *Billing) {
	b.ConsultationFee = c.ConsultationFee
	b.AdditionalCharges = c.AdditionalCharges
	b.Discount = c.Discount
	b.TaxAmount = c.TaxAmount
	if c.Notes != nil {
		b.Notes = c.Notes
	}
}
