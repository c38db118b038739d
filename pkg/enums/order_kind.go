package enums

import "fmt"

// OrderKind separates paid checkouts from concierge text/call orders.
type OrderKind string

const (
	OrderKindStandard OrderKind = "standard"
	OrderKindText     OrderKind = "text"
)

var validOrderKinds = []OrderKind{
	OrderKindStandard,
	OrderKindText,
}

// String implements fmt.Stringer.
func (k OrderKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known OrderKind.
func (k OrderKind) IsValid() bool {
	for _, candidate := range validOrderKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// NumberPrefix is the order-number prefix customers and support see.
func (k OrderKind) NumberPrefix() string {
	if k == OrderKindText {
		return "TXT-"
	}
	return "ORD-"
}

// InitialStatus is the status an order of this kind is created with.
func (k OrderKind) InitialStatus() OrderStatus {
	if k == OrderKindText {
		return OrderStatusPendingContact
	}
	return OrderStatusPending
}

// ParseOrderKind converts raw input into an OrderKind.
func ParseOrderKind(value string) (OrderKind, error) {
	for _, candidate := range validOrderKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order kind %q", value)
}
