package heapengine

import (
	"bytes"
	"encoding/binary"
)

// heapPage implements Page for pages of a HeapFile. All tuples on a page
// are fixed length, so a TupleDesc determines how many tuple slots fit on
// a PageSize page. A page begins with an 8-byte header: a 32-bit slot
// count, then a 32-bit used-slot count, followed by a 1-bit-per-slot
// presence bitmap, then each slot's tuple body in order; a nil entry in
// tuples marks an empty slot.
type heapPage struct {
	pid      PageId
	desc     *TupleDesc
	numSlots int32
	tuples   []*Tuple

	dirtyTid TransactionID
	dirty    bool
}

// newHeapPage constructs an empty heap page for pid with the given
// schema.
func newHeapPage(pid PageId, desc *TupleDesc) *heapPage {
	perTuple := desc.recordBytes()
	slots := int32((PageSize - 8) / perTuple) // integer division will round down
	// The 8-byte header leaves room for the slot bitmap too, and the
	// bitmap itself grows with the slot count, so shrink until the
	// header, bitmap, and tuple bodies all fit in PageSize.
	for slots > 0 && 8+bitmapBytes(slots)+int(slots)*perTuple > PageSize {
		slots--
	}
	return &heapPage{
		pid:      pid,
		desc:     desc,
		numSlots: slots,
		tuples:   make([]*Tuple, slots),
	}
}

func (h *heapPage) ID() PageId { return h.pid }

func (h *heapPage) IsDirty() (TransactionID, bool) { return h.dirtyTid, h.dirty }

func (h *heapPage) SetDirty(tid TransactionID, dirty bool) {
	h.dirty = dirty
	if dirty {
		h.dirtyTid = tid
	}
}

func (h *heapPage) numUsedSlots() int {
	n := 0
	for _, t := range h.tuples {
		if t != nil {
			n++
		}
	}
	return n
}

// insertTuple places t in the first free slot, stamping its RecordId, or
// fails if the page has no free slot.
func (h *heapPage) insertTuple(t *Tuple) (RecordId, error) {
	for slot, existing := range h.tuples {
		if existing != nil {
			continue
		}
		rid := RecordId{PID: h.pid, Slot: slot}
		stored := &Tuple{Desc: *h.desc, Fields: append([]Field(nil), t.Fields...), Rid: &rid}
		h.tuples[slot] = stored
		return rid, nil
	}
	return RecordId{}, newErr(DbError, "heap page %+v has no free slot", h.pid)
}

// deleteTuple clears the slot named by rid.
func (h *heapPage) deleteTuple(rid RecordId) error {
	if rid.PID != h.pid {
		return newErr(DbError, "record id %+v does not belong to page %+v", rid, h.pid)
	}
	if rid.Slot < 0 || rid.Slot >= len(h.tuples) || h.tuples[rid.Slot] == nil {
		return newErr(DbError, "slot %d is empty on page %+v", rid.Slot, h.pid)
	}
	h.tuples[rid.Slot] = nil
	return nil
}

// tupleIter returns a closure yielding every non-empty slot's tuple, in
// slot order, then nil.
func (h *heapPage) tupleIter() func() (*Tuple, error) {
	i := 0
	return func() (*Tuple, error) {
		for i < len(h.tuples) {
			t := h.tuples[i]
			i++
			if t != nil {
				return t, nil
			}
		}
		return nil, nil
	}
}

// bitmapBytes is the number of bytes needed for a 1-bit-per-slot presence
// bitmap over numSlots slots.
func bitmapBytes(numSlots int32) int {
	return (int(numSlots) + 7) / 8
}

// GetPageData serializes the page: slot count, used-slot count, a slot
// presence bitmap, then each slot's tuple body (zero-filled when empty),
// padded to PageSize.
func (h *heapPage) GetPageData() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, h.numSlots); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, int32(h.numUsedSlots())); err != nil {
		return nil, err
	}

	bitmap := make([]byte, bitmapBytes(h.numSlots))
	for slot, t := range h.tuples {
		if t != nil {
			bitmap[slot/8] |= 1 << uint(slot%8)
		}
	}
	buf.Write(bitmap)

	recordBytes := h.desc.recordBytes()
	for _, t := range h.tuples {
		if t == nil {
			buf.Write(make([]byte, recordBytes))
			continue
		}
		if err := t.writeTo(buf); err != nil {
			return nil, err
		}
	}
	if buf.Len() < PageSize {
		buf.Write(make([]byte, PageSize-buf.Len()))
	}
	return buf.Bytes(), nil
}

// initFromBuffer populates h's tuples from serialized page bytes.
func (h *heapPage) initFromBuffer(data []byte) error {
	buf := bytes.NewBuffer(data)
	var slots, used int32
	if err := binary.Read(buf, binary.LittleEndian, &slots); err != nil {
		return err
	}
	if err := binary.Read(buf, binary.LittleEndian, &used); err != nil {
		return err
	}
	h.numSlots = slots
	h.tuples = make([]*Tuple, slots)

	bitmap := buf.Next(bitmapBytes(slots))
	recordBytes := h.desc.recordBytes()
	for i := 0; i < int(slots); i++ {
		raw := buf.Next(recordBytes)
		present := bitmap[i/8]&(1<<uint(i%8)) != 0
		if !present {
			continue
		}
		rec := bytes.NewBuffer(raw)
		t, err := readTupleFrom(rec, h.desc)
		if err != nil {
			return err
		}
		rid := RecordId{PID: h.pid, Slot: i}
		t.Rid = &rid
		h.tuples[i] = t
	}
	if int(used) != h.numUsedSlots() {
		return newErr(DbError, "page %+v header claims %d used slots, bitmap has %d", h.pid, used, h.numUsedSlots())
	}
	return nil
}
