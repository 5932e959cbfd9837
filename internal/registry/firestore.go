package registry

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/sta1300/notifier-backend/internal/constants"
	"github.com/sta1300/notifier-backend/internal/logging"
	"github.com/sta1300/notifier-backend/internal/store"
)

//FirestoreRepository Registrations in the fcm_tokens collection.
type FirestoreRepository struct {
	client store.Storer
}

//NewFirestoreRepository -_-
func NewFirestoreRepository(client store.Storer) *FirestoreRepository {
	return &FirestoreRepository{client: client}
}

func decode(doc *firestore.DocumentSnapshot) (Registration, error) {
	var reg Registration
	if err := doc.DataTo(&reg); err != nil {
		return reg, fmt.Errorf("Error while decoding registration %v: %w", doc.Ref.ID, err)
	}
	reg.ID = doc.Ref.ID
	return reg, nil
}

func decodeAll(ctx context.Context, docs []*firestore.DocumentSnapshot) []Registration {
	logger := logging.FromContext(ctx).Named("registry.decodeAll")

	regs := make([]Registration, 0, len(docs))
	for _, doc := range docs {
		reg, err := decode(doc)
		if err != nil {
			// a document with broken fields still carries an id; keep it so the token filter can prune it
			logger.Warnf("%v", err)
			reg = Registration{ID: doc.Ref.ID}
		}
		regs = append(regs, reg)
	}
	return regs
}

//List -_-
func (r *FirestoreRepository) List(ctx context.Context) ([]Registration, error) {
	docs, err := r.client.All(ctx, constants.CollectionRegistrations)
	if err != nil {
		return nil, fmt.Errorf("Error while querying Firestore: %w", err)
	}
	return decodeAll(ctx, docs), nil
}

//FindByDevice -_-
func (r *FirestoreRepository) FindByDevice(ctx context.Context, deviceID string) ([]Registration, error) {
	docs, err := store.Collect(r.client.Find(constants.CollectionRegistrations, "deviceId", deviceID).Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("Error while querying Firestore: %w", err)
	}
	return decodeAll(ctx, docs), nil
}

//Upsert -_-
func (r *FirestoreRepository) Upsert(ctx context.Context, id string, req Request, now time.Time) (Registration, error) {
	logger := logging.FromContext(ctx).Named("registry.Upsert")

	doc := r.client.Doc(constants.CollectionRegistrations, id)

	var merged Registration

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		rec, err := tx.Get(doc)

		var existing *Registration
		if err != nil {
			if !store.IsNotFound(err) {
				return fmt.Errorf("Error while querying Firestore: %w", err)
			}
			// not found:
			logger.Debugf("Creating registration %v", id)
		} else {
			reg, err := decode(rec)
			if err != nil {
				return err
			}
			existing = &reg
		}

		merged = Merge(id, existing, req, now)

		return tx.Set(doc, merged.fields(), firestore.MergeAll)
	})

	return merged, err
}

//Delete -_-
func (r *FirestoreRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.Doc(constants.CollectionRegistrations, id).Delete(ctx)
	return err
}

//DeleteMany -_-
func (r *FirestoreRepository) DeleteMany(ctx context.Context, ids []string) []WriteOutcome {
	if len(ids) == 0 {
		return nil
	}

	bw := r.client.BulkWriter(ctx)

	outcomes := make([]WriteOutcome, len(ids))
	jobs := make([]*firestore.BulkWriterJob, len(ids))
	for i, id := range ids {
		outcomes[i] = WriteOutcome{ID: id, Op: OpDelete}
		job, err := bw.Delete(r.client.Doc(constants.CollectionRegistrations, id))
		if err != nil {
			outcomes[i].Err = err
			continue
		}
		jobs[i] = job
	}

	bw.End()

	for i, job := range jobs {
		if job == nil {
			continue
		}
		if _, err := job.Results(); err != nil {
			outcomes[i].Err = err
		}
	}

	return outcomes
}

//MarkDelivered -_-
func (r *FirestoreRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := r.client.Doc(constants.CollectionRegistrations, id).Update(ctx, []firestore.Update{
		{Path: "lastUsed", Value: at},
		{Path: "active", Value: true},
	})
	return err
}
