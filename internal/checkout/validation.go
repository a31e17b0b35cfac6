package checkout

import (
	"github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/types"
)

// ValidateShipping trims every field and normalizes the phone. The returned
// error carries per-field reasons.
func ValidateShipping(in types.ShippingAddress) (types.ShippingAddress, error) {
	addr := in.Trimmed()
	fields := map[string]string{}
	for _, name := range addr.MissingFields() {
		fields[name] = "required"
	}
	if addr.Phone != "" {
		phone, ok := types.NormalizePhone(addr.Phone)
		if !ok {
			fields["phone"] = "must contain 10 digits"
		}
		addr.Phone = phone
	}
	if len(fields) > 0 {
		return types.ShippingAddress{}, errors.FieldErrors("shipping details are incomplete", fields)
	}
	return addr, nil
}
