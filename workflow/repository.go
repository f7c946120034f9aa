package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/lims_backend/config"
	"bitbucket.org/mmdatafocus/lims_backend/models"
	"bitbucket.org/mmdatafocus/lims_backend/store"
	"bitbucket.org/mmdatafocus/lims_backend/utils"
)

const (
	redisKeyTestCatalog     = "lims:tests_list"
	redisKeyBarcodeSettings = "lims:barcode_settings"
	redisKeySingleTests     = "lims:single_barcode_tests"

	defaultCacheTTL = 5 * time.Minute
)

// OrderRef addresses one order inside the record shards.
type OrderRef struct {
	ShardID    string `json:"shardId"`
	PatientKey string `json:"patientKey"`
	PatientID  string `json:"patient_id"`
	OrderID    string `json:"order_id"`
}

// Repository gives keyed access to patients and orders stored in new_record
// shards. It maintains a (patientID, orderID) -> (shardID, patientKey) index
// built on first use and refreshed on misses, so mutations address one
// patient entry instead of scanning every shard.
type Repository struct {
	Store    store.DocumentStore
	Logger   *logrus.Logger
	CacheTTL time.Duration

	mu    sync.RWMutex
	index map[string]OrderRef
}

func NewRepository(st store.DocumentStore, logger *logrus.Logger) *Repository {
	return &Repository{
		Store:    st,
		Logger:   logger,
		CacheTTL: defaultCacheTTL,
		index:    make(map[string]OrderRef),
	}
}

func indexKey(patientID, orderID string) string {
	return patientID + "|" + orderID
}

// RebuildIndex rescans every record shard and replaces the order index.
func (r *Repository) RebuildIndex(ctx context.Context) error {
	docs, err := r.Store.QueryAll(ctx, store.CollectionRecords)
	if err != nil {
		return err
	}
	fresh := make(map[string]OrderRef)
	for shardID, doc := range docs {
		var shard models.RecordShard
		if err := store.Decode(doc, &shard); err != nil {
			return err
		}
		for patientKey, rec := range shard.Patients {
			for i := range rec.Orders {
				ref := OrderRef{
					ShardID:    shardID,
					PatientKey: patientKey,
					PatientID:  rec.Details.PatientID,
					OrderID:    rec.Orders[i].OrderID,
				}
				fresh[indexKey(ref.PatientID, ref.OrderID)] = ref
			}
		}
	}
	r.mu.Lock()
	r.index = fresh
	r.mu.Unlock()
	return nil
}

// Resolve maps (patientID, orderID) to its shard location. A miss triggers
// one index rebuild before reporting not found, so records registered by
// another instance are still reachable.
func (r *Repository) Resolve(ctx context.Context, patientID, orderID string) (OrderRef, error) {
	key := indexKey(patientID, orderID)
	r.mu.RLock()
	ref, ok := r.index[key]
	r.mu.RUnlock()
	if ok {
		return ref, nil
	}
	if err := r.RebuildIndex(ctx); err != nil {
		return OrderRef{}, err
	}
	r.mu.RLock()
	ref, ok = r.index[key]
	r.mu.RUnlock()
	if !ok {
		return OrderRef{}, &utils.NotFoundError{Collection: store.CollectionRecords, ID: key}
	}
	return ref, nil
}

func findInShard(shard *models.RecordShard, ref OrderRef) (*models.PatientRecord, *models.Order, error) {
	rec, ok := shard.Patients[ref.PatientKey]
	if !ok {
		return nil, nil, &utils.NotFoundError{Collection: store.CollectionRecords, ID: ref.ShardID + "/" + ref.PatientKey}
	}
	order := rec.FindOrder(ref.OrderID)
	if order == nil {
		return nil, nil, &utils.NotFoundError{Collection: store.CollectionRecords, ID: ref.OrderID}
	}
	return &rec, order, nil
}

// GetOrder reads a consistent snapshot of the patient and order.
func (r *Repository) GetOrder(ctx context.Context, ref OrderRef) (*models.Patient, *models.Order, error) {
	doc, err := r.Store.Get(ctx, store.CollectionRecords, ref.ShardID)
	if err != nil {
		return nil, nil, err
	}
	var shard models.RecordShard
	if err := store.Decode(doc, &shard); err != nil {
		return nil, nil, err
	}
	rec, order, err := findInShard(&shard, ref)
	if err != nil {
		return nil, nil, err
	}
	return &rec.Details, order, nil
}

// UpdateOrder runs mutate against the order inside a store transaction and
// persists the whole patient entry on success. The mutation sees the
// transaction's snapshot, so concurrent updates to the same order serialize
// instead of overwriting each other.
func (r *Repository) UpdateOrder(ctx context.Context, ref OrderRef, mutate func(p *models.Patient, o *models.Order) error) (*models.Order, error) {
	var updated models.Order
	err := r.Store.RunTransaction(ctx, func(tx store.Tx) error {
		doc, err := tx.Get(store.CollectionRecords, ref.ShardID)
		if err != nil {
			return err
		}
		var shard models.RecordShard
		if err := store.Decode(doc, &shard); err != nil {
			return err
		}
		rec, order, err := findInShard(&shard, ref)
		if err != nil {
			return err
		}
		if err := mutate(&rec.Details, order); err != nil {
			return err
		}
		updated = *order

		encoded, err := store.Encode(rec)
		if err != nil {
			return err
		}
		return tx.SetMerge(store.CollectionRecords, ref.ShardID, store.Document{
			"patients": map[string]any{ref.PatientKey: encoded},
		})
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// SearchResult pairs an order with its owner and the projected stats the
// search screens display.
type SearchResult struct {
	Ref     OrderRef          `json:"ref"`
	Patient models.Patient    `json:"patient"`
	Order   models.Order      `json:"order"`
	Stats   models.OrderStats `json:"stats"`
}

// Search scans the record shards and returns every order passing the filter,
// refreshing the index as a side effect.
func (r *Repository) Search(ctx context.Context, filter models.OrderFilter) ([]SearchResult, error) {
	catalog, err := r.TestCatalog(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := r.BarcodeSettings(ctx)
	if err != nil {
		return nil, err
	}
	singles, err := r.SingleBarcodeTests(ctx)
	if err != nil {
		return nil, err
	}

	docs, err := r.Store.QueryAll(ctx, store.CollectionRecords)
	if err != nil {
		return nil, err
	}

	fresh := make(map[string]OrderRef)
	var results []SearchResult
	for shardID, doc := range docs {
		var shard models.RecordShard
		if err := store.Decode(doc, &shard); err != nil {
			return nil, err
		}
		for patientKey, rec := range shard.Patients {
			for i := range rec.Orders {
				order := &rec.Orders[i]
				ref := OrderRef{
					ShardID:    shardID,
					PatientKey: patientKey,
					PatientID:  rec.Details.PatientID,
					OrderID:    order.OrderID,
				}
				fresh[indexKey(ref.PatientID, ref.OrderID)] = ref
				if !filter.Matches(&rec.Details, order, catalog) {
					continue
				}
				results = append(results, SearchResult{
					Ref:     ref,
					Patient: rec.Details,
					Order:   *order,
					Stats:   order.ComputeStats(catalog, singles, settings.ChunkSize()),
				})
			}
		}
	}

	r.mu.Lock()
	r.index = fresh
	r.mu.Unlock()
	return results, nil
}

// TestCatalog loads the catalog with a redis read-through cache. Catalog
// documents each hold a map of test id to definition; multiple documents
// merge into one catalog.
func (r *Repository) TestCatalog(ctx context.Context) (models.TestCatalog, error) {
	var cached models.TestCatalog
	if hit, err := config.GetRedisObject(redisKeyTestCatalog, &cached); err == nil && hit {
		return cached, nil
	}

	docs, err := r.Store.QueryAll(ctx, store.CollectionTestsList)
	if err != nil {
		return nil, err
	}
	catalog := make(models.TestCatalog)
	for _, doc := range docs {
		var part models.TestCatalog
		if err := store.Decode(doc, &part); err != nil {
			return nil, err
		}
		for id, def := range part {
			catalog[id] = def
		}
	}

	if err := config.SetRedisObject(redisKeyTestCatalog, catalog, r.cacheTTL()); err != nil && r.Logger != nil {
		config.LogError(r.Logger, "workflow", "TestCatalog", "cache write", nil, err)
	}
	return catalog, nil
}

// BarcodeSettings loads settings/barcode_settings; a missing document means
// defaults.
func (r *Repository) BarcodeSettings(ctx context.Context) (models.BarcodeSettings, error) {
	var cached models.BarcodeSettings
	if hit, err := config.GetRedisObject(redisKeyBarcodeSettings, &cached); err == nil && hit {
		return cached, nil
	}

	settings := models.BarcodeSettings{TestsPerBarcode: models.DefaultTestsPerBarcode}
	doc, err := r.Store.Get(ctx, store.CollectionSettings, store.DocBarcodeSettings)
	if err != nil && !utils.IsNotFound(err) {
		return settings, err
	}
	if err == nil {
		if err := store.Decode(doc, &settings); err != nil {
			return settings, err
		}
	}

	if err := config.SetRedisObject(redisKeyBarcodeSettings, settings, r.cacheTTL()); err != nil && r.Logger != nil {
		config.LogError(r.Logger, "workflow", "BarcodeSettings", "cache write", nil, err)
	}
	return settings, nil
}

// SingleBarcodeTests returns the set of catalog ids that always print on
// their own label. Missing document means the empty set.
func (r *Repository) SingleBarcodeTests(ctx context.Context) (map[string]bool, error) {
	var cached models.SingleBarcodeTests
	if hit, err := config.GetRedisObject(redisKeySingleTests, &cached); err == nil && hit {
		return cached.Set(), nil
	}

	var single models.SingleBarcodeTests
	doc, err := r.Store.Get(ctx, store.CollectionSettings, store.DocSingleBarcodeTests)
	if err != nil && !utils.IsNotFound(err) {
		return nil, err
	}
	if err == nil {
		if err := store.Decode(doc, &single); err != nil {
			return nil, err
		}
	}

	if err := config.SetRedisObject(redisKeySingleTests, single, r.cacheTTL()); err != nil && r.Logger != nil {
		config.LogError(r.Logger, "workflow", "SingleBarcodeTests", "cache write", nil, err)
	}
	return single.Set(), nil
}

// EmployeeFullName resolves an actor email to a display name, falling back
// to the email itself for unknown accounts.
func (r *Repository) EmployeeFullName(ctx context.Context, email string) string {
	doc, err := r.Store.Get(ctx, store.CollectionEmployees, email)
	if err != nil {
		return email
	}
	var emp models.Employee
	if err := store.Decode(doc, &emp); err != nil || emp.FullName == "" {
		return email
	}
	return emp.FullName
}

func (r *Repository) cacheTTL() time.Duration {
	if r.CacheTTL > 0 {
		return r.CacheTTL
	}
	return defaultCacheTTL
}
