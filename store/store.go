package store

import (
	"context"
	"encoding/json"
)

// Collection names follow the production Firestore layout.
const (
	CollectionRecords          = "new_record"
	CollectionSampleCounters   = "sample_counters"
	CollectionTestCounters     = "tests_sample_counter"
	CollectionTestsList        = "tests_list"
	CollectionSettings         = "settings"
	CollectionBranches         = "branches"
	CollectionContracts        = "contracts"
	CollectionWhatsAppRequests = "whats_app_requests"
	CollectionEmployees        = "employees"

	DocBarcodeSettings    = "barcode_settings"
	DocSingleBarcodeTests = "single_barcode_tests"
	DocWhatsAppOrders     = "whatsapp_orders"
)

// Document is the wire shape of a stored document. Models convert through
// their JSON tags via Encode/Decode.
type Document = map[string]any

// Tx is the operation set available inside a transaction. Reads see the
// transaction snapshot; writes become visible only when the transaction
// commits.
type Tx interface {
	Get(collection, id string) (Document, error)
	SetMerge(collection, id string, fields Document) error
}

// DocumentStore is the persistence boundary of the engine. Get returns a
// utils.NotFoundError for missing documents; RunTransaction returns a
// utils.TransientStoreError when the commit lost a race and may be retried.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	QueryAll(ctx context.Context, collection string) (map[string]Document, error)
	SetMerge(ctx context.Context, collection, id string, fields Document) error
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// Encode converts a model into a Document through its JSON tags.
func Encode(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Decode converts a Document into the target model through its JSON tags.
func Decode(doc Document, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
