package notifications

import (
	"context"
	"encoding/json"
	"time"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/storefront"
)

// Notification is one mailbox entry.
type Notification struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Type      string          `json:"type"`
	IsRead    bool            `json:"isRead"`
	CreatedAt time.Time       `json:"createdAt"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Page is one page of a scope's mailbox as reported by the server.
type Page struct {
	Items       []Notification
	UnreadCount int
	TotalPages  int
}

// Remote is the server side of every mailbox scope.
type Remote interface {
	List(ctx context.Context, scope enums.NotificationScope, page, limit int) (Page, error)
	MarkRead(ctx context.Context, scope enums.NotificationScope, id string) error
	MarkAllRead(ctx context.Context, scope enums.NotificationScope) error
	Delete(ctx context.Context, scope enums.NotificationScope, id string) error
}

type notificationClient interface {
	ListNotifications(ctx context.Context, scope enums.NotificationScope, page, limit int) (*storefront.NotificationPage, error)
	MarkNotificationRead(ctx context.Context, scope enums.NotificationScope, id string) error
	MarkAllNotificationsRead(ctx context.Context, scope enums.NotificationScope) error
	DeleteNotification(ctx context.Context, scope enums.NotificationScope, id string) error
}

// StorefrontRemote serves mailboxes from the upstream storefront API.
type StorefrontRemote struct {
	client notificationClient
}

func NewStorefrontRemote(client notificationClient) (*StorefrontRemote, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "storefront client required")
	}
	return &StorefrontRemote{client: client}, nil
}

func (r *StorefrontRemote) List(ctx context.Context, scope enums.NotificationScope, page, limit int) (Page, error) {
	resp, err := r.client.ListNotifications(ctx, scope, page, limit)
	if err != nil {
		return Page{}, err
	}
	out := Page{UnreadCount: resp.UnreadCount, TotalPages: resp.Pages}
	out.Items = make([]Notification, 0, len(resp.Notifications))
	for _, n := range resp.Notifications {
		out.Items = append(out.Items, Notification{
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			Type:      n.Type,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
			Data:      n.Data,
		})
	}
	return out, nil
}

func (r *StorefrontRemote) MarkRead(ctx context.Context, scope enums.NotificationScope, id string) error {
	return r.client.MarkNotificationRead(ctx, scope, id)
}

func (r *StorefrontRemote) MarkAllRead(ctx context.Context, scope enums.NotificationScope) error {
	return r.client.MarkAllNotificationsRead(ctx, scope)
}

func (r *StorefrontRemote) Delete(ctx context.Context, scope enums.NotificationScope, id string) error {
	return r.client.DeleteNotification(ctx, scope, id)
}
