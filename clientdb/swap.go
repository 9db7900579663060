package clientdb

import (
	"bytes"
	"errors"
	"io"

	"github.com/nownosw/phoenix/swap"
	"go.etcd.io/bbolt"
)

var (
	// ErrNoSwap is the error returned if no swap out with the given ID
	// exists in the store.
	ErrNoSwap = errors.New("no swap found")

	// ErrSwapExists is returned if a swap out is created that is already
	// known to the store.
	ErrSwapExists = errors.New("swap with this ID already exists")

	// swapBucketKey is a bucket that contains all swap outs that are
	// currently pending or completed. This bucket is keyed by the swap ID
	// and leads to a nested sub-bucket that houses information for that
	// swap out.
	swapBucketKey = []byte("swaps")

	// swapKey is the key that stores the serialized swap out record. It
	// is nested within the sub-bucket for each swap out.
	//
	// path: swapBucketKey -> swapBucket[id] -> swapKey
	swapKey = []byte("swap")
)

// CreateSwap stores a new swap out record by using the record's ID as an
// identifier. If a record with the given ID already exists in the store,
// ErrSwapExists is returned.
//
// NOTE: This is part of the swap.Store interface.
func (db *DB) CreateSwap(record *swap.SwapRecord) error {
	return db.Update(func(tx *bbolt.Tx) error {
		rootBucket, err := getBucket(tx, swapBucketKey)
		if err != nil {
			return err
		}

		if rootBucket.Bucket(record.ID[:]) != nil {
			return ErrSwapExists
		}
		swapBucket, err := rootBucket.CreateBucket(record.ID[:])
		if err != nil {
			return err
		}

		if err := storeSwapTX(swapBucket, record); err != nil {
			return err
		}

		return storeEventTX(swapBucket, NewCreatedEvent(record))
	})
}

// UpdateSwap overwrites an existing swap out record and tracks the state
// change in the event log. If no record with the given ID exists, ErrNoSwap
// is returned.
//
// NOTE: This is part of the swap.Store interface.
func (db *DB) UpdateSwap(record *swap.SwapRecord) error {
	return db.Update(func(tx *bbolt.Tx) error {
		rootBucket, err := getBucket(tx, swapBucketKey)
		if err != nil {
			return err
		}

		swapBucket := rootBucket.Bucket(record.ID[:])
		if swapBucket == nil {
			return ErrNoSwap
		}

		if err := storeSwapTX(swapBucket, record); err != nil {
			return err
		}

		return storeEventTX(swapBucket, NewUpdatedEvent(record))
	})
}

// GetSwap reads a single swap out record by its ID.
func (db *DB) GetSwap(id swap.ID) (*swap.SwapRecord, error) {
	var record *swap.SwapRecord
	err := db.View(func(tx *bbolt.Tx) error {
		rootBucket, err := getBucket(tx, swapBucketKey)
		if err != nil {
			return err
		}

		swapBucket := rootBucket.Bucket(id[:])
		if swapBucket == nil {
			return ErrNoSwap
		}

		record, err = fetchSwapTX(swapBucket)
		return err
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// GetSwaps reads all swap out records currently known to the store.
func (db *DB) GetSwaps() ([]*swap.SwapRecord, error) {
	var records []*swap.SwapRecord
	err := db.View(func(tx *bbolt.Tx) error {
		rootBucket, err := getBucket(tx, swapBucketKey)
		if err != nil {
			return err
		}

		return rootBucket.ForEach(func(k, v []byte) error {
			// Only sub-buckets exist below the root bucket.
			if v != nil {
				return nil
			}

			swapBucket := rootBucket.Bucket(k)
			record, err := fetchSwapTX(swapBucket)
			if err != nil {
				return err
			}

			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// storeSwapTX saves a serialized swap out record to its sub-bucket.
func storeSwapTX(swapBucket *bbolt.Bucket, record *swap.SwapRecord) error {
	var buf bytes.Buffer
	if err := serializeSwap(&buf, record); err != nil {
		return err
	}

	return swapBucket.Put(swapKey, buf.Bytes())
}

// fetchSwapTX deserializes the swap out record stored in the given
// sub-bucket.
func fetchSwapTX(swapBucket *bbolt.Bucket) (*swap.SwapRecord, error) {
	rawRecord := swapBucket.Get(swapKey)
	if rawRecord == nil {
		return nil, ErrNoSwap
	}

	return deserializeSwap(bytes.NewReader(rawRecord))
}

// serializeSwap writes the binary representation of a swap out record.
func serializeSwap(w io.Writer, record *swap.SwapRecord) error {
	return WriteElements(
		w, record.ID, record.Address, record.RequestedAmount,
		record.Amount, record.Fee, record.Total, record.State,
		record.TxID,
	)
}

// deserializeSwap reads a swap out record from its binary representation.
func deserializeSwap(r io.Reader) (*swap.SwapRecord, error) {
	var record swap.SwapRecord
	err := ReadElements(
		r, &record.ID, &record.Address, &record.RequestedAmount,
		&record.Amount, &record.Fee, &record.Total, &record.State,
		&record.TxID,
	)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// Compile time assertion that the DB implements the swap.Store interface.
var _ swap.Store = (*DB)(nil)
