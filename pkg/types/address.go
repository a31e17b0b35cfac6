package types

import (
	"strings"
	"unicode"
)

// PhoneDigits is the length of a normalized phone number.
const PhoneDigits = 10

// ShippingAddress is the contact and delivery block captured at checkout and
// stored in the address book. Phone is kept in its normalized 10-digit form.
type ShippingAddress struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZipCode  string `json:"zipCode"`
	Country  string `json:"country"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (a ShippingAddress) Trimmed() ShippingAddress {
	return ShippingAddress{
		FullName: strings.TrimSpace(a.FullName),
		Phone:    strings.TrimSpace(a.Phone),
		Address:  strings.TrimSpace(a.Address),
		City:     strings.TrimSpace(a.City),
		State:    strings.TrimSpace(a.State),
		ZipCode:  strings.TrimSpace(a.ZipCode),
		Country:  strings.TrimSpace(a.Country),
	}
}

// MissingFields lists the json names of blank fields in declaration order.
func (a ShippingAddress) MissingFields() []string {
	t := a.Trimmed()
	fields := []struct {
		name  string
		value string
	}{
		{"fullName", t.FullName},
		{"phone", t.Phone},
		{"address", t.Address},
		{"city", t.City},
		{"state", t.State},
		{"zipCode", t.ZipCode},
		{"country", t.Country},
	}
	var missing []string
	for _, f := range fields {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// NormalizePhone strips non-digits and keeps the last ten. It reports false
// when fewer than ten digits remain.
func NormalizePhone(raw string) (string, bool) {
	digits := make([]rune, 0, len(raw))
	for _, r := range raw {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			digits = append(digits, r)
		}
	}
	if len(digits) < PhoneDigits {
		return string(digits), false
	}
	return string(digits[len(digits)-PhoneDigits:]), true
}
