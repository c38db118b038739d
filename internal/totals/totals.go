// Package totals prices a cart: subtotal, sales tax, delivery fee and grand
// total. Everything is exact decimal arithmetic rounded once to cents.
package totals

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/greenline-backend/pkg/config"
)

const moneyPlaces = 2

var (
	defaultTaxRate               = decimal.RequireFromString("0.08875")
	defaultFreeDeliveryThreshold = decimal.NewFromInt(100)
	defaultDeliveryFee           = decimal.NewFromInt(5)
)

// Policy holds the jurisdiction tax rate and delivery fee rules.
type Policy struct {
	TaxRate               decimal.Decimal
	FreeDeliveryThreshold decimal.Decimal
	DeliveryFee           decimal.Decimal
}

// DefaultPolicy is 8.875% tax with a $5.00 fee waived from $100.00.
func DefaultPolicy() Policy {
	return Policy{
		TaxRate:               defaultTaxRate,
		FreeDeliveryThreshold: defaultFreeDeliveryThreshold,
		DeliveryFee:           defaultDeliveryFee,
	}
}

// PolicyFromConfig builds a Policy from the pricing config.
func PolicyFromConfig(cfg config.PricingConfig) (Policy, error) {
	rate, threshold, fee, err := cfg.Decimals()
	if err != nil {
		return Policy{}, err
	}
	return Policy{
		TaxRate:               rate,
		FreeDeliveryThreshold: threshold,
		DeliveryFee:           fee,
	}, nil
}

// Line is the minimum a priced line needs to contribute to a subtotal.
type Line struct {
	Price    decimal.Decimal
	Quantity int
}

// Breakdown is the priced result. Tip stays zero until WithTip is applied.
type Breakdown struct {
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	DeliveryFee decimal.Decimal
	Tip         decimal.Decimal
	Total       decimal.Decimal
}

// Subtotal sums price × quantity over lines and rounds once at the end.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return sum.Round(moneyPlaces)
}

// Tax returns subtotal × rate rounded to cents.
func (p Policy) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.TaxRate).Round(moneyPlaces)
}

// Fee returns zero at or above the free-delivery threshold, else the flat fee.
func (p Policy) Fee(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(p.FreeDeliveryThreshold) {
		return decimal.Zero
	}
	return p.DeliveryFee.Round(moneyPlaces)
}

// Calculate prices a subtotal. Callers reject negative prices and quantities
// before getting here.
func (p Policy) Calculate(subtotal decimal.Decimal) Breakdown {
	subtotal = subtotal.Round(moneyPlaces)
	tax := p.Tax(subtotal)
	fee := p.Fee(subtotal)
	return Breakdown{
		Subtotal:    subtotal,
		Tax:         tax,
		DeliveryFee: fee,
		Tip:         decimal.Zero,
		Total:       subtotal.Add(tax).Add(fee).Round(moneyPlaces),
	}
}

// CalculateLines is Calculate(Subtotal(lines)).
func (p Policy) CalculateLines(lines []Line) Breakdown {
	return p.Calculate(Subtotal(lines))
}

// WithTip adds a tip to the breakdown, replacing any previous one.
func (b Breakdown) WithTip(tip decimal.Decimal) Breakdown {
	tip = tip.Round(moneyPlaces)
	b.Total = b.Total.Sub(b.Tip).Add(tip).Round(moneyPlaces)
	b.Tip = tip
	return b
}
