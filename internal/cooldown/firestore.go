package cooldown

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/sta1300/notifier-backend/internal/constants"
	"github.com/sta1300/notifier-backend/internal/logging"
	"github.com/sta1300/notifier-backend/internal/store"
)

//FirestoreLockStore Lock in the system_locks/notification_lock document.
type FirestoreLockStore struct {
	client store.Storer
}

//NewFirestoreLockStore -_-
func NewFirestoreLockStore(client store.Storer) *FirestoreLockStore {
	return &FirestoreLockStore{client: client}
}

//Transact -_-
func (f *FirestoreLockStore) Transact(ctx context.Context, decide DecideFunc) (bool, error) {
	logger := logging.FromContext(ctx).Named("cooldown.FirestoreLockStore")

	doc := f.client.Doc(constants.CollectionSystemLocks, constants.DocNotificationLock)

	var allowed bool

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		rec, err := tx.Get(doc)

		var current *Lock
		if err != nil {
			if !store.IsNotFound(err) {
				return fmt.Errorf("Error while querying Firestore: %w", err)
			}
			// not found, first alert ever
		} else if current = decodeLock(rec.Data()); current == nil {
			logger.Warnf("Notification lock is unreadable, it will be replaced: %v", rec.Data())
		}

		next, allow := decide(current)
		allowed = allow

		if next == nil {
			return nil
		}

		logger.Debugf("Saving notification lock: %+v", *next)

		return tx.Set(doc, next)
	})

	if err != nil {
		return false, err
	}

	return allowed, nil
}
