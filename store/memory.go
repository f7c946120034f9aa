package store

import (
	"context"
	"errors"
	"sync"

	"bitbucket.org/mmdatafocus/lims_backend/utils"
)

type memoryState map[string]map[string]Document

func (s memoryState) clone() memoryState {
	cloned := make(memoryState, len(s))
	for coll, docs := range s {
		c := make(map[string]Document, len(docs))
		for id, doc := range docs {
			c[id] = cloneDocument(doc)
		}
		cloned[coll] = c
	}
	return cloned
}

func cloneDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Document:
		return cloneDocument(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return val
	}
}

func mergeDocument(dst, src Document) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				mergeDocument(existing, sub)
				continue
			}
		}
		dst[k] = cloneValue(v)
	}
}

// Memory is an in-memory DocumentStore with snapshot-isolated transactions.
// A transaction mutates a clone of the state and replaces the state only
// when the callback succeeds. Tests inject transient commit failures via
// FailNextCommits.
type Memory struct {
	mu    sync.RWMutex
	state memoryState

	failCommits int
}

func NewMemory() *Memory {
	return &Memory{state: make(memoryState)}
}

// FailNextCommits makes the next n transaction commits fail with a
// TransientStoreError, exercising the callers' retry paths.
func (m *Memory) FailNextCommits(n int) {
	m.mu.Lock()
	m.failCommits = n
	m.mu.Unlock()
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return getFromState(m.state, collection, id)
}

func (m *Memory) QueryAll(ctx context.Context, collection string) (map[string]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Document, len(m.state[collection]))
	for id, doc := range m.state[collection] {
		out[id] = cloneDocument(doc)
	}
	return out, nil
}

func (m *Memory) SetMerge(ctx context.Context, collection, id string, fields Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	setMergeInState(m.state, collection, id, fields)
	return nil
}

func (m *Memory) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{state: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if m.failCommits > 0 {
		m.failCommits--
		return &utils.TransientStoreError{Op: "commit", Err: errors.New("injected contention")}
	}
	m.state = tx.state
	return nil
}

type memoryTx struct {
	state memoryState
}

func (t *memoryTx) Get(collection, id string) (Document, error) {
	return getFromState(t.state, collection, id)
}

func (t *memoryTx) SetMerge(collection, id string, fields Document) error {
	setMergeInState(t.state, collection, id, fields)
	return nil
}

func getFromState(state memoryState, collection, id string) (Document, error) {
	doc, ok := state[collection][id]
	if !ok {
		return nil, &utils.NotFoundError{Collection: collection, ID: id}
	}
	return cloneDocument(doc), nil
}

func setMergeInState(state memoryState, collection, id string, fields Document) {
	docs, ok := state[collection]
	if !ok {
		docs = make(map[string]Document)
		state[collection] = docs
	}
	doc, ok := docs[id]
	if !ok {
		doc = make(Document)
		docs[id] = doc
	}
	mergeDocument(doc, fields)
}
