package clientdb

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/nownosw/phoenix/swap"
)

// WriteElements is writes each element in the elements slice to the passed
// io.Writer using WriteElement.
func WriteElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		err := WriteElement(w, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteElement is a one-stop shop to write the big endian representation of
// any element which is to be serialized. The passed io.Writer should be backed
// by an appropriately sized byte slice, or be able to dynamically expand to
// accommodate additional data.
func WriteElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case swap.State:
		return writeLnwireElement(w, uint8(e))

	case swap.ID:
		return writeLnwireElement(w, e[:])

	case btcutil.Amount:
		return writeLnwireElement(w, uint64(e))

	case chainhash.Hash:
		return writeLnwireElement(w, e[:])

	case string:
		return wire.WriteVarString(w, 0, e)

	default:
		return writeLnwireElement(w, element)
	}
}

// writeLnwireElement adapts lnwire.WriteElement, which requires a
// *bytes.Buffer, to the io.Writer accepted by this package by staging the
// encoded element in a buffer before copying it to w.
func writeLnwireElement(w io.Writer, element interface{}) error {
	var buf bytes.Buffer
	if err := lnwire.WriteElement(&buf, element); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadElements deserializes a variable number of elements into the passed
// io.Reader, with each element being deserialized according to the ReadElement
// function.
func ReadElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		err := ReadElement(r, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadElement is a one-stop utility function to deserialize any data structure.
func ReadElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *swap.State:
		var s uint8
		if err := lnwire.ReadElement(r, &s); err != nil {
			return err
		}
		*e = swap.State(s)

	case *swap.ID:
		if err := lnwire.ReadElement(r, e[:]); err != nil {
			return err
		}

	case *btcutil.Amount:
		var a uint64
		if err := lnwire.ReadElement(r, &a); err != nil {
			return err
		}
		*e = btcutil.Amount(a)

	case *chainhash.Hash:
		if err := lnwire.ReadElement(r, e[:]); err != nil {
			return err
		}

	case *string:
		s, err := wire.ReadVarString(r, 0)
		if err != nil {
			return err
		}
		*e = s

	default:
		return fmt.Errorf("unable to read element of unknown type %T",
			element)
	}

	return nil
}
