package notifications

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

// SetParams configures the three mailboxes of one session.
type SetParams struct {
	Remote      Remote
	Base        context.Context
	PageSize    int
	SyncTimeout time.Duration
	Metrics     mailboxMetrics
	Logger      *logger.Logger
}

// Set holds one independent mailbox per scope.
type Set struct {
	User     *Mailbox
	Vendor   *Mailbox
	Delivery *Mailbox
}

func NewSet(params SetParams) (*Set, error) {
	build := func(scope enums.NotificationScope) (*Mailbox, error) {
		return NewMailbox(Params{
			Scope:       scope,
			Remote:      params.Remote,
			Base:        params.Base,
			PageSize:    params.PageSize,
			SyncTimeout: params.SyncTimeout,
			Metrics:     params.Metrics,
			Logger:      params.Logger,
		})
	}
	user, err := build(enums.NotificationScopeUser)
	if err != nil {
		return nil, err
	}
	vendor, err := build(enums.NotificationScopeVendor)
	if err != nil {
		return nil, err
	}
	delivery, err := build(enums.NotificationScopeDelivery)
	if err != nil {
		return nil, err
	}
	return &Set{User: user, Vendor: vendor, Delivery: delivery}, nil
}

// For returns the mailbox of scope.
func (s *Set) For(scope enums.NotificationScope) (*Mailbox, error) {
	switch scope {
	case enums.NotificationScopeUser:
		return s.User, nil
	case enums.NotificationScopeVendor:
		return s.Vendor, nil
	case enums.NotificationScopeDelivery:
		return s.Delivery, nil
	}
	return nil, pkgerrors.FieldErrors("invalid notification scope", map[string]string{"scope": "must be user, vendor or delivery"})
}

// Wait settles every mailbox and combines their sync failures.
func (s *Set) Wait() error {
	return multierr.Combine(s.User.Wait(), s.Vendor.Wait(), s.Delivery.Wait())
}
