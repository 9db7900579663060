package clientdb

import (
	"bytes"
	"errors"
	"io/ioutil"
	"os"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/nownosw/phoenix/event"
	"github.com/nownosw/phoenix/swap"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) (*DB, func()) {
	tempDir, err := ioutil.TempDir("", "client-db")
	if err != nil {
		t.Fatalf("unable to create temp dir: %v", err)
	}

	db, err := New(tempDir)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("unable to create new db: %v", err)
	}

	return db, func() {
		db.Close()
		os.RemoveAll(tempDir)
	}
}

func dummySwap(id byte) *swap.SwapRecord {
	return &swap.SwapRecord{
		ID:              swap.ID{id, 2, 3},
		Address:         "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq",
		RequestedAmount: 50_000,
		Amount:          50_000,
		State:           swap.StateInit,
	}
}

func assertSwapExists(t *testing.T, db *DB, expected *swap.SwapRecord) {
	t.Helper()

	found, err := db.GetSwap(expected.ID)
	require.NoError(t, err)
	require.Equal(t, expected, found)
}

// TestSwaps ensures that all database operations involving swap out records
// run as expected.
func TestSwaps(t *testing.T) {
	t.Parallel()

	db, cleanup := newTestDB(t)
	defer cleanup()

	// Store a dummy record and see if we can retrieve it again.
	s := dummySwap(1)
	require.NoError(t, db.CreateSwap(s))
	assertSwapExists(t, db, s)

	// Creating the same record twice must fail.
	err := db.CreateSwap(s)
	require.ErrorIs(t, err, ErrSwapExists)

	// Progress the record through the state machine and make sure each
	// update is persisted.
	s.State = swap.StateReady
	s.Fee = 1_300
	s.Total = 51_300
	require.NoError(t, db.UpdateSwap(s))
	assertSwapExists(t, db, s)

	s.State = swap.StateSending
	s.TxID = chainhash.Hash{9, 9, 9}
	require.NoError(t, db.UpdateSwap(s))
	assertSwapExists(t, db, s)

	// Updating an unknown record must fail.
	err = db.UpdateSwap(dummySwap(99))
	require.ErrorIs(t, err, ErrNoSwap)

	// A second record should show up in the listing next to the first.
	s2 := dummySwap(2)
	require.NoError(t, db.CreateSwap(s2))

	swaps, err := db.GetSwaps()
	require.NoError(t, err)
	require.Len(t, swaps, 2)
	require.Contains(t, swaps, s)
	require.Contains(t, swaps, s2)

	// Reading an unknown ID must return the distinct error.
	_, err = db.GetSwap(swap.ID{0xff})
	require.True(t, errors.Is(err, ErrNoSwap))
}

// TestSwapEvents tests that creating and updating swap out records creates
// the correct events in the main event bucket.
func TestSwapEvents(t *testing.T) {
	t.Parallel()

	db, cleanup := newTestDB(t)
	defer cleanup()

	s := dummySwap(1)
	require.NoError(t, db.CreateSwap(s))

	events, err := db.AllEvents(event.TypeSwapCreated)
	require.NoError(t, err)
	require.Len(t, events, 1)

	created, ok := events[0].(*CreatedEvent)
	require.True(t, ok)
	require.Equal(t, s.ID, created.SwapID())

	// Each update must append a state change event carrying the state and
	// total of the record at that point.
	s.State = swap.StateRequestingQuote
	require.NoError(t, db.UpdateSwap(s))
	s.State = swap.StateReady
	s.Fee = 1_300
	s.Total = 51_300
	require.NoError(t, db.UpdateSwap(s))

	events, err = db.AllEvents(event.TypeSwapStateChange)
	require.NoError(t, err)
	require.Len(t, events, 2)

	last, ok := events[1].(*UpdatedEvent)
	require.True(t, ok)
	require.Equal(t, s.ID, last.SwapID())
	require.Equal(t, swap.StateReady, last.State)
	require.Equal(t, s.Total, last.Total)

	// All events together, sorted by timestamp.
	events, err = db.AllEvents(event.TypeAny)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		require.True(t, events[i-1].Timestamp().Before(
			events[i].Timestamp(),
		))
	}
}

// TestSerializeSwap tests that a swap out record survives the round trip
// through the database codec unchanged.
func TestSerializeSwap(t *testing.T) {
	t.Parallel()

	s := dummySwap(7)
	s.State = swap.StateSending
	s.Fee = 42
	s.Total = 50_042
	s.TxID = chainhash.Hash{1, 2, 3, 4}

	var buf bytes.Buffer
	require.NoError(t, serializeSwap(&buf, s))

	deserialized, err := deserializeSwap(&buf)
	require.NoError(t, err)
	require.Equal(t, s, deserialized)
}
