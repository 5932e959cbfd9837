package store

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Storer is a storage abstraction layer interface
type Storer interface {
	Doc(string, string) *firestore.DocumentRef
	Collection(string) *firestore.CollectionRef
	RunTransaction(context.Context, func(context.Context, *firestore.Transaction) error, ...firestore.TransactionOption) error
	Find(collectionName string, field string, value interface{}) firestore.Query
	All(ctx context.Context, collectionName string) ([]*firestore.DocumentSnapshot, error)
	BulkWriter(ctx context.Context) *firestore.BulkWriter
}

// Client to interact with storage API
type Client struct {
	firestore *firestore.Client
}

// NewClient wraps given Firestore client.
func NewClient(client *firestore.Client) Client {
	return Client{firestore: client}
}

// Doc returns a DocumentRef that refers to the document in the collection with the given identifier.
func (i Client) Doc(collectionName string, path string) *firestore.DocumentRef {
	return i.firestore.Collection(collectionName).Doc(path)
}

// Collection returns a CollectionRef for the given name.
func (i Client) Collection(collectionName string) *firestore.CollectionRef {
	return i.firestore.Collection(collectionName)
}

// Find Creates query searching for records with given field value.
func (i Client) Find(collectionName string, field string, value interface{}) firestore.Query {
	return i.firestore.Collection(collectionName).Where(field, "==", value)
}

// All reads every document of the collection, ordered by document id.
func (i Client) All(ctx context.Context, collectionName string) ([]*firestore.DocumentSnapshot, error) {
	return Collect(i.firestore.Collection(collectionName).Documents(ctx))
}

// RunTransaction runs f in a transaction. Firestore retries f on contention.
func (i Client) RunTransaction(ctx context.Context, f func(context.Context, *firestore.Transaction) error, opts ...firestore.TransactionOption) (err error) {
	return i.firestore.RunTransaction(ctx, f, opts...)
}

// BulkWriter returns a writer for independent, individually reported writes.
func (i Client) BulkWriter(ctx context.Context) *firestore.BulkWriter {
	return i.firestore.BulkWriter(ctx)
}

// Collect drains a document iterator.
func Collect(it *firestore.DocumentIterator) ([]*firestore.DocumentSnapshot, error) {
	defer it.Stop()

	var docs []*firestore.DocumentSnapshot
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// IsNotFound reports whether err is Firestore's NotFound.
func IsNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
