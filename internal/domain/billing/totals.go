package billing

import "github.com/shopspring/decimal"

// Totals are the four bill aggregates. Each is rounded to 2 decimal places
// independently (round half up), not per item, so the grand total identity
// grand == subtotal - discount + tax holds exactly on the rounded values.
type Totals struct {
	Subtotal      float64 `json:"subtotal"`
	TotalDiscount float64 `json:"total_discount"`
	TotalTax      float64 `json:"total_tax"`
	GrandTotal    float64 `json:"grand_total"`
}

var hundred = decimal.NewFromInt(100)

// CalculateTotals computes the bill aggregates from its line items. Pure:
// it reads quantity, rate, and the discount/tax inputs and touches nothing.
// An empty item list yields all zeros.
func CalculateTotals(items []Item) Totals {
	var subtotal, totalDiscount, totalTax decimal.Decimal

	for i := range items {
		amount, discount, tax := itemBreakdown(&items[i])
		subtotal = subtotal.Add(amount)
		totalDiscount = totalDiscount.Add(discount)
		totalTax = totalTax.Add(tax)
	}

	subtotal = subtotal.Round(2)
	totalDiscount = totalDiscount.Round(2)
	totalTax = totalTax.Round(2)
	grand := subtotal.Sub(totalDiscount).Add(totalTax)

	return Totals{
		Subtotal:      subtotal.InexactFloat64(),
		TotalDiscount: totalDiscount.InexactFloat64(),
		TotalTax:      totalTax.InexactFloat64(),
		GrandTotal:    grand.InexactFloat64(),
	}
}

// itemBreakdown returns the unrounded amount, discount, and tax for one item.
// An explicit discount amount wins over the percentage.
func itemBreakdown(it *Item) (amount, discount, tax decimal.Decimal) {
	amount = decimal.NewFromFloat(it.Quantity).Mul(decimal.NewFromFloat(it.Rate))

	if it.DiscountAmount != nil {
		discount = decimal.NewFromFloat(*it.DiscountAmount)
	} else if it.DiscountPercent != 0 {
		discount = amount.Mul(decimal.NewFromFloat(it.DiscountPercent)).Div(hundred)
	}

	taxable := amount.Sub(discount)
	if it.TaxPercent != 0 {
		tax = taxable.Mul(decimal.NewFromFloat(it.TaxPercent)).Div(hundred)
	}
	return amount, discount, tax
}

// ComputeItemValues fills the derived fields on a line item, each rounded to
// 2 decimal places for display.
func ComputeItemValues(it *Item) {
	amount, discount, tax := itemBreakdown(it)
	it.Amount = amount.Round(2).InexactFloat64()
	it.Discount = discount.Round(2).InexactFloat64()
	it.Tax = tax.Round(2).InexactFloat64()
	it.NetAmount = amount.Sub(discount).Add(tax).Round(2).InexactFloat64()
}

// RoundMoney rounds a monetary value to 2 decimal places, half up.
func RoundMoney(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// PaymentStatusFor derives the payment status purely from the amounts: paid
// when the grand total is covered, partial when something has been paid,
// pending otherwise. A zero-total bill counts as paid; it has nothing
// outstanding.
func PaymentStatusFor(paidAmount, grandTotal float64) string {
	switch {
	case paidAmount >= grandTotal:
		return PaymentPaid
	case paidAmount > 0:
		return PaymentPartial
	default:
		return PaymentPending
	}
}
