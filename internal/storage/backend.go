package storage

import (
	"context"
	"errors"
	"iter"
)

// ErrPrefixUnsupported is returned by prefix operations when the backend's key
// codec cannot express a key prefix as a byte prefix.
var ErrPrefixUnsupported = errors.New("storage: key codec does not support prefix operations")

type Entry[K, V any] struct {
	Key   K
	Value V
}

// Backend is an ordered key-value store.
//
// Keys are returned in the byte order of their encoded form. List pages are
// chained by passing the returned nextPageToken back in, which is the first key
// of the following page; it is nil on the last page.
type Backend[K, V any] interface {
	Get(ctx context.Context, key K) (value V, found bool, err error)
	Set(ctx context.Context, key K, value V) error
	Delete(ctx context.Context, key K) error
	List(ctx context.Context, pageSize *int, pageToken *K) (entries iter.Seq2[K, V], nextPageToken *K, err error)
	Scan(ctx context.Context, prefix K) (entries iter.Seq2[K, V], err error)
	DeletePrefix(ctx context.Context, prefix K) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

func ptr[T any](v T) *T {
	return &v
}

func PageSize(pageSize int) *int {
	return ptr(pageSize)
}

func PageToken[T any](pageToken T) *T {
	return ptr(pageToken)
}

// Seq returns an iterator over already collected entries.
func Seq[K, V any](entries []Entry[K, V]) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, e := range entries {
			if !yield(e.Key, e.Value) {
				return
			}
		}
	}
}

// PrefixUpperBound returns the smallest byte string greater than every string
// with the given prefix, or nil when no such bound exists (all 0xff bytes).
func PrefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
