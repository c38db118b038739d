package enums

import (
	"fmt"
	"strings"
)

// CartMergeStrategy decides how guest items land in a signed-in cart.
type CartMergeStrategy string

const (
	// CartMergeStrategyMerge adds guest quantities to existing rows.
	CartMergeStrategyMerge CartMergeStrategy = "merge"
	// CartMergeStrategyReplace clears the cart before adding guest items.
	CartMergeStrategyReplace CartMergeStrategy = "replace"
)

var validCartMergeStrategies = []CartMergeStrategy{
	CartMergeStrategyMerge,
	CartMergeStrategyReplace,
}

// String implements fmt.Stringer.
func (s CartMergeStrategy) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CartMergeStrategy.
func (s CartMergeStrategy) IsValid() bool {
	for _, candidate := range validCartMergeStrategies {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCartMergeStrategy converts raw input into a CartMergeStrategy. Blank
// input resolves to merge.
func ParseCartMergeStrategy(value string) (CartMergeStrategy, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return CartMergeStrategyMerge, nil
	}
	for _, candidate := range validCartMergeStrategies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart merge strategy %q", value)
}
