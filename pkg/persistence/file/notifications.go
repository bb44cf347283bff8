package file

import (
	"context"
	"sort"
	"time"

	"github.com/strackan/playbook-engine/pkg/models"
	"github.com/strackan/playbook-engine/pkg/persistence"
)

// NotificationRepository stores in-product notifications on the file system.
type NotificationRepository struct {
	store *store
}

func (r *NotificationRepository) Insert(ctx context.Context, notification *models.Notification) error {
	return r.store.writeJSON(r.store.path("notifications", notification.ID+".json"), notification)
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*models.Notification, error) {
	paths, err := r.store.listJSON(r.store.path("notifications"))
	if err != nil {
		return nil, err
	}

	notifications := make([]*models.Notification, 0)

	for _, path := range paths {
		var notification models.Notification

		found, err := r.store.readJSON(path, &notification)
		if err != nil || !found {
			continue
		}

		if notification.UserID != userID {
			continue
		}

		if unreadOnly && notification.ReadAt != nil {
			continue
		}

		notifications = append(notifications, &notification)
	}

	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})

	return notifications, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	path := r.store.path("notifications", id+".json")

	var notification models.Notification

	found, err := r.store.readJSON(path, &notification)
	if err != nil {
		return err
	}

	if !found {
		return persistence.ErrNotificationNotFound
	}

	notification.ReadAt = &at

	return r.store.writeJSON(path, &notification)
}
