package enums

import "slices"

// NotificationScope identifies which actor mailbox a notification belongs to.
type NotificationScope string

const (
	NotificationScopeUser     NotificationScope = "user"
	NotificationScopeVendor   NotificationScope = "vendor"
	NotificationScopeDelivery NotificationScope = "delivery"
)

var validNotificationScopes = []NotificationScope{
	NotificationScopeUser,
	NotificationScopeVendor,
	NotificationScopeDelivery,
}

func (n NotificationScope) String() string {
	return string(n)
}

func (n NotificationScope) IsValid() bool {
	return slices.Contains(validNotificationScopes, n)
}

func ParseNotificationScope(value string) (NotificationScope, error) {
	return parse("notification scope", validNotificationScopes, value)
}

// AllNotificationScopes returns every mailbox scope in display order.
func AllNotificationScopes() []NotificationScope {
	out := make([]NotificationScope, len(validNotificationScopes))
	copy(out, validNotificationScopes)
	return out
}
