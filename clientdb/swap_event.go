package clientdb

import (
	"fmt"
	"io"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/nownosw/phoenix/event"
	"github.com/nownosw/phoenix/swap"
)

// SwapEvent is the main interface for swap out specific events.
type SwapEvent interface {
	event.Event

	// SwapID returns the ID of the swap out this event refers to.
	SwapID() swap.ID
}

// CreatedEvent is an event implementation that tracks the creation of a swap
// out flow. This is distinct from the state change events to allow us to
// efficiently filter all events by their type to get the creation timestamps
// of all swap outs.
type CreatedEvent struct {
	// timestamp is the unique timestamp the event was created/recorded at.
	timestamp time.Time

	// id of the swap out this event refers to.
	id swap.ID
}

// NewCreatedEvent creates a new CreatedEvent from a swap out record with the
// current system time as the timestamp.
func NewCreatedEvent(record *swap.SwapRecord) *CreatedEvent {
	return &CreatedEvent{
		timestamp: time.Now(),
		id:        record.ID,
	}
}

// Type returns the type of the event.
//
// NOTE: This is part of the event.Event interface.
func (e *CreatedEvent) Type() event.Type {
	return event.TypeSwapCreated
}

// Timestamp is the time the event happened.
//
// NOTE: This is part of the event.Event interface.
func (e *CreatedEvent) Timestamp() time.Time {
	return e.timestamp
}

// SetTimestamp updates the timestamp of the event. This is needed to adjust
// timestamps in case they collide to ensure the global uniqueness of all
// event timestamps.
//
// NOTE: This is part of the event.Event interface.
func (e *CreatedEvent) SetTimestamp(ts time.Time) {
	e.timestamp = ts
}

// String returns a human readable representation of the event.
//
// NOTE: This is part of the event.Event interface.
func (e *CreatedEvent) String() string {
	return "SwapCreated"
}

// Serialize writes the event data to a binary storage format.
//
// NOTE: This is part of the event.Event interface.
func (e *CreatedEvent) Serialize(w io.Writer) error {
	return WriteElements(w, e.id)
}

// Deserialize reads the event data from a binary storage format.
//
// NOTE: This is part of the event.Event interface.
func (e *CreatedEvent) Deserialize(r io.Reader) error {
	return ReadElements(r, &e.id)
}

// SwapID returns the ID of the swap out this event refers to.
//
// NOTE: This is part of the SwapEvent interface.
func (e *CreatedEvent) SwapID() swap.ID {
	return e.id
}

// A compile time assertion to make sure CreatedEvent implements both the
// event.Event and SwapEvent interface.
var _ event.Event = (*CreatedEvent)(nil)
var _ SwapEvent = (*CreatedEvent)(nil)

// UpdatedEvent is an event implementation that tracks the state changes of a
// swap out flow, including the forced return to the initial state when a
// quote becomes stale.
type UpdatedEvent struct {
	// timestamp is the unique timestamp the event was created/recorded at.
	timestamp time.Time

	// id of the swap out this event refers to.
	id swap.ID

	// State is the state the swap out transitioned to.
	State swap.State

	// Total is the quoted total at the time of the transition, zero if no
	// quote was held.
	Total btcutil.Amount
}

// NewUpdatedEvent creates a new UpdatedEvent from a swap out record with the
// current system time as the timestamp.
func NewUpdatedEvent(record *swap.SwapRecord) *UpdatedEvent {
	return &UpdatedEvent{
		timestamp: time.Now(),
		id:        record.ID,
		State:     record.State,
		Total:     record.Total,
	}
}

// Type returns the type of the event.
//
// NOTE: This is part of the event.Event interface.
func (e *UpdatedEvent) Type() event.Type {
	return event.TypeSwapStateChange
}

// Timestamp is the time the event happened.
//
// NOTE: This is part of the event.Event interface.
func (e *UpdatedEvent) Timestamp() time.Time {
	return e.timestamp
}

// SetTimestamp updates the timestamp of the event.
//
// NOTE: This is part of the event.Event interface.
func (e *UpdatedEvent) SetTimestamp(ts time.Time) {
	e.timestamp = ts
}

// String returns a human readable representation of the event.
//
// NOTE: This is part of the event.Event interface.
func (e *UpdatedEvent) String() string {
	return fmt.Sprintf("SwapStateChange(%v)", e.State)
}

// Serialize writes the event data to a binary storage format.
//
// NOTE: This is part of the event.Event interface.
func (e *UpdatedEvent) Serialize(w io.Writer) error {
	return WriteElements(w, e.id, e.State, e.Total)
}

// Deserialize reads the event data from a binary storage format.
//
// NOTE: This is part of the event.Event interface.
func (e *UpdatedEvent) Deserialize(r io.Reader) error {
	return ReadElements(r, &e.id, &e.State, &e.Total)
}

// SwapID returns the ID of the swap out this event refers to.
//
// NOTE: This is part of the SwapEvent interface.
func (e *UpdatedEvent) SwapID() swap.ID {
	return e.id
}

// A compile time assertion to make sure UpdatedEvent implements both the
// event.Event and SwapEvent interface.
var _ event.Event = (*UpdatedEvent)(nil)
var _ SwapEvent = (*UpdatedEvent)(nil)
