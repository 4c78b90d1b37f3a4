// Package arena provides an ordered collection addressed by stable, generational IDs.
//
// Records are stored in a slot vector. Freed slots go to a free list and every reuse
// bumps the slot's generation, so an ID taken before a removal never aliases the record
// that later occupies the same slot. Insertion order is kept with intrusive prev/next
// links, which gives O(1) push-to-back, O(1) remove-by-ID and front-to-back traversal.
//
// An Arena is not safe for concurrent use. Callers guard it with their own lock.
package arena

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"iter"
)

const none = -1

// ErrBadID is returned when decoding an ID from a malformed representation.
var ErrBadID = errors.New("arena: malformed id")

// ID addresses one record of an Arena. The zero ID never addresses a live record.
type ID struct {
	Slot uint64
	Gen  uint64
}

// Bytes returns the fixed 16-byte form: big-endian slot followed by big-endian generation.
func (id ID) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], id.Slot)
	binary.BigEndian.PutUint64(b[8:], id.Gen)
	return b
}

// String returns the hex encoding of Bytes.
func (id ID) String() string {
	b := id.Bytes()
	return hex.EncodeToString(b[:])
}

// IsZero reports whether id is the zero ID.
func (id ID) IsZero() bool { return id == ID{} }

// FromBytes decodes the 16-byte form produced by Bytes.
func FromBytes(b [16]byte) ID {
	return ID{
		Slot: binary.BigEndian.Uint64(b[:8]),
		Gen:  binary.BigEndian.Uint64(b[8:]),
	}
}

// ParseHex decodes the hex form produced by String.
func ParseHex(s string) (ID, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 16 {
		return ID{}, ErrBadID
	}
	var b [16]byte
	copy(b[:], raw)
	return FromBytes(b), nil
}

type slot[T any] struct {
	value T
	gen   uint64
	prev  int
	next  int
	live  bool
}

// Arena is an insertion-ordered collection of T addressed by ID.
type Arena[T any] struct {
	slots []slot[T]
	free  []int
	head  int
	tail  int
	n     int
}

// New returns an empty Arena.
func New[T any]() *Arena[T] {
	return &Arena[T]{head: none, tail: none}
}

// Len returns the number of live records.
func (a *Arena[T]) Len() int { return a.n }

// Insert appends v at the back and returns its ID.
func (a *Arena[T]) Insert(v T) ID {
	var idx int
	if k := len(a.free); k > 0 {
		idx = a.free[k-1]
		a.free = a.free[:k-1]
		a.slots[idx].gen++
	} else {
		idx = len(a.slots)
		a.slots = append(a.slots, slot[T]{gen: 1})
	}

	s := &a.slots[idx]
	s.value = v
	s.live = true
	s.prev = a.tail
	s.next = none
	if a.tail != none {
		a.slots[a.tail].next = idx
	} else {
		a.head = idx
	}
	a.tail = idx
	a.n++
	return ID{Slot: uint64(idx), Gen: s.gen}
}

// lookup returns the slot index for id, or none when id is stale or unknown.
func (a *Arena[T]) lookup(id ID) int {
	if id.Slot >= uint64(len(a.slots)) {
		return none
	}
	idx := int(id.Slot)
	s := &a.slots[idx]
	if !s.live || s.gen != id.Gen {
		return none
	}
	return idx
}

// Get returns the record addressed by id.
func (a *Arena[T]) Get(id ID) (T, bool) {
	idx := a.lookup(id)
	if idx == none {
		var zero T
		return zero, false
	}
	return a.slots[idx].value, true
}

// Contains reports whether id addresses a live record.
func (a *Arena[T]) Contains(id ID) bool { return a.lookup(id) != none }

// Remove deletes the record addressed by id and returns it. It reports false when the
// record was already removed.
func (a *Arena[T]) Remove(id ID) (T, bool) {
	idx := a.lookup(id)
	if idx == none {
		var zero T
		return zero, false
	}
	return a.unlink(idx), true
}

func (a *Arena[T]) unlink(idx int) T {
	s := &a.slots[idx]
	if s.prev != none {
		a.slots[s.prev].next = s.next
	} else {
		a.head = s.next
	}
	if s.next != none {
		a.slots[s.next].prev = s.prev
	} else {
		a.tail = s.prev
	}

	v := s.value
	var zero T
	s.value = zero
	s.live = false
	s.prev, s.next = none, none
	a.free = append(a.free, idx)
	a.n--
	return v
}

// Front returns the oldest record without removing it.
func (a *Arena[T]) Front() (T, bool) {
	if a.head == none {
		var zero T
		return zero, false
	}
	return a.slots[a.head].value, true
}

// FrontID returns the ID of the oldest record.
func (a *Arena[T]) FrontID() (ID, bool) {
	if a.head == none {
		return ID{}, false
	}
	return ID{Slot: uint64(a.head), Gen: a.slots[a.head].gen}, true
}

// PopFront removes the oldest record and returns it with the ID it had.
func (a *Arena[T]) PopFront() (ID, T, bool) {
	id, ok := a.FrontID()
	if !ok {
		var zero T
		return ID{}, zero, false
	}
	return id, a.unlink(a.head), true
}

// All iterates live records front to back. The arena must not be mutated during the
// iteration.
func (a *Arena[T]) All() iter.Seq2[ID, T] {
	return func(yield func(ID, T) bool) {
		for idx := a.head; idx != none; idx = a.slots[idx].next {
			s := &a.slots[idx]
			if !yield(ID{Slot: uint64(idx), Gen: s.gen}, s.value) {
				return
			}
		}
	}
}
