package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/notifications"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const maxNotificationPage = 1000

func mailboxFrom(r *http.Request) (*notifications.Mailbox, error) {
	sess, err := shopperFrom(r)
	if err != nil {
		return nil, err
	}
	scope, err := enums.ParseNotificationScope(chi.URLParam(r, "scope"))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "unknown notification scope")
	}
	return sess.Mailboxes.For(scope)
}

func notificationIDParam(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "notificationId"))
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "notification id is required")
	}
	return id, nil
}

// ListNotifications returns the mailbox of the scope in the URL. The first
// call hydrates page 1. page>1 appends the next page and refresh=true
// reloads from page 1.
func ListNotifications(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		box, err := mailboxFrom(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := validators.QueryInt(r, "page", 1, 1, maxNotificationPage)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		refresh, err := validators.QueryBool(r, "refresh", false)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		switch {
		case page > 1 || refresh:
			err = box.Fetch(ctx, page)
		default:
			err = box.EnsureHydrated(ctx)
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, box.Snapshot())
	}
}

// MarkNotificationRead marks one notification read locally and syncs it in
// the background.
func MarkNotificationRead(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		box, err := mailboxFrom(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		id, err := notificationIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := box.MarkAsRead(ctx, id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, box.Snapshot())
	}
}

func MarkAllNotificationsRead(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		box, err := mailboxFrom(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := box.MarkAllAsRead(ctx); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, box.Snapshot())
	}
}

func DeleteNotification(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		box, err := mailboxFrom(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		id, err := notificationIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := box.Remove(ctx, id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, box.Snapshot())
	}
}
