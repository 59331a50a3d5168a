// Package pebble implements storage.Backend on top of a Pebble LSM.
package pebble

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/cockroachdb/pebble"
	"github.com/picatz/apistyles/internal/storage"
)

// Ensure that Backend implements the storage.Backend interface.
var _ storage.Backend[string, any] = (*Backend[string, any])(nil)

// Backend is a storage backend that uses Pebble as the underlying storage engine.
//
// Pebble can use an in-memory filesystem or a directory on disk for storage, depending
// on the options provided. By default, this application uses a directory on disk.
type Backend[K comparable, V any] struct {
	db    *pebble.DB
	codec storage.Codec[K, V]
}

// NewBackend creates a new Pebble storage backend.
func NewBackend[K comparable, V any](dirname string, opts *pebble.Options, codec storage.Codec[K, V]) (*Backend[K, V], error) {
	db, err := pebble.Open(dirname, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}

	return &Backend[K, V]{db: db, codec: codec}, nil
}

// Get retrieves a value from the storage backend by its key.
func (b *Backend[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V

	keyBytes, err := b.codec.EncodeKey(key)
	if err != nil {
		return zero, false, fmt.Errorf("failed to encode key: %w", err)
	}

	valueBytes, closer, err := b.db.Get(keyBytes)
	if errors.Is(err, pebble.ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to get value: %w", err)
	}
	defer closer.Close()

	value, err := b.codec.DecodeValue(valueBytes)
	if err != nil {
		return zero, false, fmt.Errorf("failed to decode value: %w", err)
	}

	return value, true, nil
}

// Set stores a key-value pair in the storage backend.
func (b *Backend[K, V]) Set(ctx context.Context, key K, value V) error {
	keyBytes, err := b.codec.EncodeKey(key)
	if err != nil {
		return fmt.Errorf("failed to encode key: %w", err)
	}

	valueBytes, err := b.codec.EncodeValue(value)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}

	if err := b.db.Set(keyBytes, valueBytes, pebble.Sync); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}

	return nil
}

// Delete removes a key-value pair from the storage backend.
func (b *Backend[K, V]) Delete(ctx context.Context, key K) error {
	keyBytes, err := b.codec.EncodeKey(key)
	if err != nil {
		return fmt.Errorf("failed to encode key: %w", err)
	}

	if err := b.db.Delete(keyBytes, pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

// DefaultListPageSize is the default page size for listing items.
const DefaultListPageSize = 25

// List retrieves a page of key-value pairs from the storage backend.
func (b *Backend[K, V]) List(ctx context.Context, pageSize *int, pageToken *K) (iter.Seq2[K, V], *K, error) {
	iterOpts := &pebble.IterOptions{}

	if pageToken != nil {
		lowerBoundKey, err := b.codec.EncodeKey(*pageToken)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode pebble storage backend lower bound key: %w", err)
		}

		iterOpts.LowerBound = lowerBoundKey
	}

	listLimit := DefaultListPageSize
	if pageSize != nil && *pageSize > 0 {
		listLimit = *pageSize
	}

	values, next, err := b.collect(ctx, iterOpts, listLimit)
	if err != nil {
		return nil, nil, err
	}

	return storage.Seq(values), next, nil
}

func (b *Backend[K, V]) prefixBounds(prefix K) (lower, upper []byte, err error) {
	pc, ok := b.codec.(storage.PrefixCodec[K])
	if !ok {
		return nil, nil, storage.ErrPrefixUnsupported
	}

	lower, err = pc.EncodePrefix(prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode prefix: %w", err)
	}

	return lower, storage.PrefixUpperBound(lower), nil
}

// Scan returns every entry whose key starts with prefix, in key order.
func (b *Backend[K, V]) Scan(ctx context.Context, prefix K) (iter.Seq2[K, V], error) {
	lower, upper, err := b.prefixBounds(prefix)
	if err != nil {
		return nil, err
	}

	values, _, err := b.collect(ctx, &pebble.IterOptions{LowerBound: lower, UpperBound: upper}, 0)
	if err != nil {
		return nil, err
	}

	return storage.Seq(values), nil
}

// DeletePrefix removes every entry whose key starts with prefix.
func (b *Backend[K, V]) DeletePrefix(ctx context.Context, prefix K) error {
	lower, upper, err := b.prefixBounds(prefix)
	if err != nil {
		return err
	}

	if upper == nil {
		// All-0xff prefix; delete key by key.
		iter, err := b.db.NewIter(&pebble.IterOptions{LowerBound: lower})
		if err != nil {
			return fmt.Errorf("failed to create pebble storage backend iterator: %w", err)
		}
		defer iter.Close()

		batch := b.db.NewBatch()
		defer batch.Close()
		for iter.First(); iter.Valid(); iter.Next() {
			if err := batch.Delete(iter.Key(), nil); err != nil {
				return fmt.Errorf("failed to delete key: %w", err)
			}
		}
		return batch.Commit(pebble.Sync)
	}

	if err := b.db.DeleteRange(lower, upper, pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete prefix: %w", err)
	}
	return nil
}

// collect reads up to limit entries (no limit when limit <= 0) and reports the
// key following the last one collected.
func (b *Backend[K, V]) collect(ctx context.Context, opts *pebble.IterOptions, limit int) ([]storage.Entry[K, V], *K, error) {
	iter, err := b.db.NewIter(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pebble storage backend iterator: %w", err)
	}
	defer iter.Close()

	var (
		values        []storage.Entry[K, V]
		nextPageToken *K
	)

	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("stopped iteration via context: %w", err)
		}

		if limit > 0 && len(values) >= limit {
			nextKey, err := b.codec.DecodeKey(iter.Key())
			if err != nil {
				return nil, nil, fmt.Errorf("failed to decode next key: %w", err)
			}
			nextPageToken = &nextKey
			break
		}

		k, err := b.codec.DecodeKey(iter.Key())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode key: %w", err)
		}

		v, err := b.codec.DecodeValue(iter.Value())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode value: %w", err)
		}

		values = append(values, storage.Entry[K, V]{Key: k, Value: v})
	}
	if err := iter.Error(); err != nil {
		return nil, nil, fmt.Errorf("failed to list items: %w", err)
	}

	return values, nextPageToken, nil
}

// Flush flushes the storage backend.
func (b *Backend[K, V]) Flush(ctx context.Context) error {
	if err := b.db.Flush(); err != nil {
		return fmt.Errorf("failed to flush pebble database: %w", err)
	}
	return nil
}

// Close closes the storage backend.
func (b *Backend[K, V]) Close(ctx context.Context) error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close pebble database: %w", err)
	}
	return nil
}
