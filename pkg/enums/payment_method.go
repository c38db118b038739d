package enums

import "fmt"

// PaymentMethod describes how a customer intends to settle an order.
type PaymentMethod string

const (
	PaymentMethodCard      PaymentMethod = "card"
	PaymentMethodApplePay  PaymentMethod = "apple_pay"
	PaymentMethodGooglePay PaymentMethod = "google_pay"
	PaymentMethodCash      PaymentMethod = "cash"
	// PaymentMethodTextCall is reserved for concierge orders; payment is
	// arranged by staff over phone or text.
	PaymentMethodTextCall PaymentMethod = "text_call"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodApplePay,
	PaymentMethodGooglePay,
	PaymentMethodCash,
	PaymentMethodTextCall,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsSelfServe reports whether a customer may pick the method at checkout.
func (p PaymentMethod) IsSelfServe() bool {
	return p.IsValid() && p != PaymentMethodTextCall
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
