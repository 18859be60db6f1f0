package heapengine

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestHeapFile(t *testing.T, desc *TupleDesc, bp *BufferPool) *HeapFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table.dat")
	hf, err := NewHeapFile(path, desc, bp)
	if err != nil {
		t.Fatalf("NewHeapFile: %v", err)
	}
	return hf
}

func oneIntColDesc() *TupleDesc {
	return &TupleDesc{Fields: []FieldType{{Fname: "n", Ftype: IntType}}}
}

// TestBufferPoolLRUEviction reproduces spec.md scenario 3: with capacity
// 2, reading pages 0, 1, 2 in sequence on the same transaction must evict
// page 0 (the least recently used, since it was untouched between the
// reads of 1 and 2).
func TestBufferPoolLRUEviction(t *testing.T) {
	catalog := NewCatalog()
	bp := NewBufferPool(2, catalog)
	desc := oneIntColDesc()
	hf := newTestHeapFile(t, desc, bp)
	tableId := catalog.AddTable("t", hf)

	tid := NewTID()
	p0 := PageId{TableId: tableId, PageNo: 0}
	p1 := PageId{TableId: tableId, PageNo: 1}
	p2 := PageId{TableId: tableId, PageNo: 2}

	// Reading page N when the file currently has N pages grows the file
	// on demand (HeapFile.readPage's allocation contract), so this reads
	// pages 0, 1, 2 in sequence starting from an empty file.
	if _, err := bp.GetPage(tid, p0, ReadPerm); err != nil {
		t.Fatalf("GetPage(0): %v", err)
	}
	if _, err := bp.GetPage(tid, p1, ReadPerm); err != nil {
		t.Fatalf("GetPage(1): %v", err)
	}
	if _, err := bp.GetPage(tid, p2, ReadPerm); err != nil {
		t.Fatalf("GetPage(2): %v", err)
	}

	bp.mu.Lock()
	_, cached0 := bp.pageIdToSlot[p0]
	_, cached1 := bp.pageIdToSlot[p1]
	_, cached2 := bp.pageIdToSlot[p2]
	bp.mu.Unlock()

	if cached0 {
		t.Fatalf("page 0 should have been evicted as least-recently-used")
	}
	if !cached1 || !cached2 {
		t.Fatalf("pages 1 and 2 should still be cached")
	}
}

// TestBufferPoolNoStealAbortDrop reproduces spec.md scenario 6: deleting a
// row then aborting must leave the row visible to a fresh scan, because
// NO-STEAL means the dirty page was never written to disk and abort drops
// it from the pool unconditionally.
func TestBufferPoolNoStealAbortDrop(t *testing.T) {
	catalog := NewCatalog()
	bp := NewBufferPool(10, catalog)
	desc := oneIntColDesc()
	hf := newTestHeapFile(t, desc, bp)
	tableId := catalog.AddTable("t", hf)

	insertTid := NewTID()
	tup := &Tuple{Desc: *desc, Fields: []Field{IntField{Value: 7}}}
	if err := bp.InsertTuple(insertTid, tableId, tup); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := bp.TransactionComplete(insertTid, true); err != nil {
		t.Fatalf("commit insert: %v", err)
	}

	deleteTid := NewTID()
	iter, err := hf.Iterator(deleteTid)
	if err != nil {
		t.Fatalf("iterator: %v", err)
	}
	toDelete, err := iter()
	if err != nil || toDelete == nil {
		t.Fatalf("expected a tuple to delete, got %v, %v", toDelete, err)
	}
	if err := bp.DeleteTuple(deleteTid, tableId, toDelete); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := bp.TransactionComplete(deleteTid, false); err != nil {
		t.Fatalf("abort: %v", err)
	}

	scanTid := NewTID()
	scan, err := hf.Iterator(scanTid)
	if err != nil {
		t.Fatalf("iterator: %v", err)
	}
	found := false
	for {
		t2, err := scan()
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if t2 == nil {
			break
		}
		if t2.Fields[0].(IntField).Value == 7 {
			found = true
		}
	}
	bp.TransactionComplete(scanTid, true)

	if !found {
		t.Fatalf("row should still be present after the deleting transaction aborted")
	}
}

func TestBufferPoolFlushAllPages(t *testing.T) {
	catalog := NewCatalog()
	bp := NewBufferPool(10, catalog)
	desc := oneIntColDesc()
	hf := newTestHeapFile(t, desc, bp)
	tableId := catalog.AddTable("t", hf)

	tid := NewTID()
	tup := &Tuple{Desc: *desc, Fields: []Field{IntField{Value: 1}}}
	if err := bp.InsertTuple(tid, tableId, tup); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := bp.FlushAllPages(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	fi, err := os.Stat(hf.BackingFile())
	if err != nil || fi.Size() == 0 {
		t.Fatalf("expected backing file to contain flushed data: %v", err)
	}
}
