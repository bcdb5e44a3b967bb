package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

type Totals struct {
	Subtotal decimal.Decimal
	VAT      decimal.Decimal
	Grand    decimal.Decimal
	Due      decimal.Decimal
}

// LineItems prices each checkout line as quantity x unit price, rounded to
// two places.
func LineItems(lines []CheckoutLine) []LineItem {
	items := make([]LineItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, LineItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.Decimal,
			LineTotal: line.Quantity.Mul(line.UnitPrice.Decimal).Round(2),
		})
	}
	return items
}

// ComputeTotals applies grand = subtotal + shipping + subtotal*vat/100 - discount
// and due = grand - paid.
func ComputeTotals(items []LineItem, shipping, vatPercent, discount, paid decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal)
	}
	vat := subtotal.Mul(vatPercent).Div(hundred).Round(2)
	grand := subtotal.Add(shipping).Add(vat).Sub(discount).Round(2)
	return Totals{
		Subtotal: subtotal,
		VAT:      vat,
		Grand:    grand,
		Due:      grand.Sub(paid).Round(2),
	}
}
