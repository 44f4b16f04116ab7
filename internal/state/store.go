// Package state holds the persistent key-value stores shared by tracker
// instances. Every store offers a serialized read-modify-write (Update) so
// concurrent instances never overwrite each other's accrued time.
package state

import (
	"context"
	"errors"
	"sort"
)

var (
	ErrStoreClosed      = errors.New("store closed")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrConflict         = errors.New("update conflict")
)

// Record is a partial view of the stored fields. Missing keys are absent,
// never an error.
type Record map[string]string

func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Pick returns only the listed keys. With no keys it returns a copy of r.
func (r Record) Pick(keys ...string) Record {
	if len(keys) == 0 {
		return r.Clone()
	}
	out := make(Record, len(keys))
	for _, k := range keys {
		if v, ok := r[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Keys returns the record's keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UpdateFunc receives every stored field and returns the fields to write.
// Returning an empty record writes nothing; returning an error aborts.
type UpdateFunc func(current Record) (Record, error)

type Store interface {
	// Get returns the listed keys, or every key when none are given.
	Get(ctx context.Context, keys ...string) (Record, error)
	// Set merges rec into the stored fields.
	Set(ctx context.Context, rec Record) error
	// Update runs fn as one serialized read-modify-write. fn may be invoked
	// more than once when the backend retries an optimistic transaction.
	Update(ctx context.Context, fn UpdateFunc) error
	Close() error
}
