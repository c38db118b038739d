package types

import (
	"fmt"
	"strings"
)

// DeliveryAddress is the drop-off location captured at checkout. It is stored
// as plain columns on the order row via gorm's embedded tag.
type DeliveryAddress struct {
	HouseType            string  `gorm:"column:house_type;not null" json:"house_type"`
	HouseNumber          string  `gorm:"column:house_number;not null" json:"house_number"`
	StreetName           string  `gorm:"column:street_name;not null" json:"street_name"`
	AptNumber            *string `gorm:"column:apt_number" json:"apt_number,omitempty"`
	City                 string  `gorm:"column:city;not null" json:"city"`
	State                string  `gorm:"column:state;not null" json:"state"`
	ZipCode              string  `gorm:"column:zip_code;not null" json:"zip_code"`
	DeliveryInstructions *string `gorm:"column:delivery_instructions" json:"delivery_instructions,omitempty"`
}

// Normalize trims whitespace and drops blank optional fields.
func (a DeliveryAddress) Normalize() DeliveryAddress {
	a.HouseType = strings.TrimSpace(a.HouseType)
	a.HouseNumber = strings.TrimSpace(a.HouseNumber)
	a.StreetName = strings.TrimSpace(a.StreetName)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.ToUpper(strings.TrimSpace(a.State))
	a.ZipCode = strings.TrimSpace(a.ZipCode)
	a.AptNumber = trimOptional(a.AptNumber)
	a.DeliveryInstructions = trimOptional(a.DeliveryInstructions)
	return a
}

// Validate reports the first missing required field.
func (a DeliveryAddress) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"house_type", a.HouseType},
		{"house_number", a.HouseNumber},
		{"street_name", a.StreetName},
		{"city", a.City},
		{"state", a.State},
		{"zip_code", a.ZipCode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("delivery address: missing %s", r.field)
		}
	}
	return nil
}

// Line1 renders the street line, e.g. "12 Main St Apt 4B".
func (a DeliveryAddress) Line1() string {
	line := strings.TrimSpace(a.HouseNumber + " " + a.StreetName)
	if a.AptNumber != nil && *a.AptNumber != "" {
		line += " Apt " + *a.AptNumber
	}
	return line
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
