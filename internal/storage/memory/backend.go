// Package memory implements storage.Backend with a sorted slice. Nothing
// survives the process.
package memory

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/picatz/apistyles/internal/storage"
)

var _ storage.Backend[string, string] = (*Backend[string, string])(nil)

// Backend keeps entries sorted by key, matching the order of the pebble
// backend with storage.StringKeyCodec.
type Backend[K ~string, V any] struct {
	mu    sync.RWMutex
	store []storage.Entry[K, V]
}

// NewBackend creates a new in-memory storage backend, which uses a slice to store entries.
func NewBackend[K ~string, V any]() *Backend[K, V] {
	return &Backend[K, V]{}
}

func (b *Backend[K, V]) search(key K) (int, bool) {
	return slices.BinarySearchFunc(b.store, key, func(e storage.Entry[K, V], k K) int {
		return cmp.Compare(e.Key, k)
	})
}

// Get retrieves a value from the in-memory store by its key.
func (b *Backend[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if i, ok := b.search(key); ok {
		return b.store[i].Value, true, nil
	}
	var zero V
	return zero, false, nil
}

// Set stores a key-value pair in the in-memory store.
func (b *Backend[K, V]) Set(ctx context.Context, key K, value V) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, ok := b.search(key)
	if ok {
		b.store[i].Value = value
		return nil
	}
	b.store = slices.Insert(b.store, i, storage.Entry[K, V]{Key: key, Value: value})
	return nil
}

// Delete removes a key-value pair from the in-memory store by its key.
func (b *Backend[K, V]) Delete(ctx context.Context, key K) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i, ok := b.search(key); ok {
		b.store = slices.Delete(b.store, i, i+1)
	}
	return nil
}

// List retrieves key-value pairs from the in-memory store, with optional pagination.
func (b *Backend[K, V]) List(ctx context.Context, pageSize *int, pageToken *K) (iter.Seq2[K, V], *K, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := 0
	if pageToken != nil {
		start, _ = b.search(*pageToken)
	}
	entries := b.store[start:]

	var nextPageToken *K
	if pageSize != nil && *pageSize > 0 && len(entries) > *pageSize {
		next := entries[*pageSize].Key
		nextPageToken = &next
		entries = entries[:*pageSize]
	}

	return storage.Seq(slices.Clone(entries)), nextPageToken, nil
}

// Scan returns every entry whose key starts with prefix.
func (b *Backend[K, V]) Scan(ctx context.Context, prefix K) (iter.Seq2[K, V], error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start, _ := b.search(prefix)
	var out []storage.Entry[K, V]
	for _, e := range b.store[start:] {
		if !strings.HasPrefix(string(e.Key), string(prefix)) {
			break
		}
		out = append(out, e)
	}
	return storage.Seq(out), nil
}

// DeletePrefix removes every entry whose key starts with prefix.
func (b *Backend[K, V]) DeletePrefix(ctx context.Context, prefix K) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = slices.DeleteFunc(b.store, func(e storage.Entry[K, V]) bool {
		return strings.HasPrefix(string(e.Key), string(prefix))
	})
	return nil
}

// Flush is a no-op for the in-memory backend.
func (b *Backend[K, V]) Flush(context.Context) error {
	return nil
}

// Close is a no-op for the in-memory backend.
func (b *Backend[K, V]) Close(context.Context) error {
	return nil
}
