package store

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"bitbucket.org/mmdatafocus/lims_backend/utils"
)

// Firestore adapts a firestore client to the DocumentStore interface.
// Transactions map onto Firestore's optimistic transactions; aborted commits
// surface as TransientStoreError so callers can retry.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func (f *Firestore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapFirestoreError("get", collection, id, err)
	}
	return snap.Data(), nil
}

func (f *Firestore) QueryAll(ctx context.Context, collection string) (map[string]Document, error) {
	out := make(map[string]Document)
	iter := f.client.Collection(collection).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, mapFirestoreError("query", collection, "", err)
		}
		out[snap.Ref.ID] = snap.Data()
	}
}

func (f *Firestore) SetMerge(ctx context.Context, collection, id string, fields Document) error {
	_, err := f.client.Collection(collection).Doc(id).Set(ctx, fields, firestore.MergeAll)
	if err != nil {
		return mapFirestoreError("set", collection, id, err)
	}
	return nil
}

func (f *Firestore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	err := f.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		return fn(&firestoreTx{client: f.client, tx: t})
	})
	if err != nil {
		return mapFirestoreError("transaction", "", "", err)
	}
	return nil
}

type firestoreTx struct {
	client *firestore.Client
	tx     *firestore.Transaction
}

func (t *firestoreTx) Get(collection, id string) (Document, error) {
	snap, err := t.tx.Get(t.client.Collection(collection).Doc(id))
	if err != nil {
		return nil, mapFirestoreError("tx get", collection, id, err)
	}
	return snap.Data(), nil
}

func (t *firestoreTx) SetMerge(collection, id string, fields Document) error {
	err := t.tx.Set(t.client.Collection(collection).Doc(id), fields, firestore.MergeAll)
	if err != nil {
		return mapFirestoreError("tx set", collection, id, err)
	}
	return nil
}

func mapFirestoreError(op, collection, id string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return &utils.NotFoundError{Collection: collection, ID: id}
	case codes.Aborted, codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return &utils.TransientStoreError{Op: op, Err: err}
	}
	return err
}
