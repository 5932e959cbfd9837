// Package statusarchive stores every raw status payload received from the device.
package statusarchive

import (
	"context"
	"sync"
	"time"

	"github.com/sta1300/notifier-backend/internal/constants"
	"github.com/sta1300/notifier-backend/internal/store"
)

//Record Raw status payload with the server receive time.
type Record struct {
	Payload    map[string]interface{}
	ErrorCode  int
	ReceivedAt time.Time
}

//Archive Append-only sink of raw status records.
type Archive interface {
	Append(ctx context.Context, rec Record) error
}

//FirestoreArchive Adds one document per record to the device_status collection.
type FirestoreArchive struct {
	client store.Storer
}

//NewFirestoreArchive -_-
func NewFirestoreArchive(client store.Storer) *FirestoreArchive {
	return &FirestoreArchive{client: client}
}

//Append -_-
func (a *FirestoreArchive) Append(ctx context.Context, rec Record) error {
	doc := make(map[string]interface{}, len(rec.Payload)+1)
	for k, v := range rec.Payload {
		doc[k] = v
	}
	doc["receivedAt"] = rec.ReceivedAt

	_, _, err := a.client.Collection(constants.CollectionDeviceStatus).Add(ctx, doc)
	return err
}

//MemoryArchive Keeps records in memory. Used in NOOP mode and tests.
type MemoryArchive struct {
	mu      sync.Mutex
	records []Record
	err     error
}

//Append -_-
func (a *MemoryArchive) Append(_ context.Context, rec Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, rec)
	return nil
}

//Records Appended so far.
func (a *MemoryArchive) Records() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Record(nil), a.records...)
}

//SetError Makes every following append fail with err.
func (a *MemoryArchive) SetError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}
