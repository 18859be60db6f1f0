package heapengine

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// HeapFile is an unordered collection of tuples, stored as a sequence of
// PageSize pages with no header, one DBFile per table. All access to the
// backing file is serialized by HeapFile's own mutex; all access to pages
// goes through the BufferPool supplied at construction.
type HeapFile struct {
	backingFile string
	desc        *TupleDesc
	bufPool     *BufferPool
	tableId     int64

	mu sync.Mutex
}

// NewHeapFile constructs a HeapFile backed by fromFile (created if it does
// not exist) with the given schema, caching pages through bp.
func NewHeapFile(fromFile string, desc *TupleDesc, bp *BufferPool) (*HeapFile, error) {
	f, err := os.OpenFile(fromFile, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, newErr(IoError, "open %s: %v", fromFile, err)
	}
	f.Close()

	abs, err := filepath.Abs(fromFile)
	if err != nil {
		abs = fromFile
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(abs))

	return &HeapFile{
		backingFile: fromFile,
		desc:        desc,
		bufPool:     bp,
		tableId:     int64(h.Sum64()),
	}, nil
}

// ID returns a deterministic, collision-avoiding identifier for this file,
// stable across process restarts for the same path.
func (f *HeapFile) ID() int64 { return f.tableId }

// BackingFile returns the path this HeapFile is stored under.
func (f *HeapFile) BackingFile() string { return f.backingFile }

// Descriptor returns the HeapFile's schema.
func (f *HeapFile) Descriptor() *TupleDesc { return f.desc }

func (f *HeapFile) pageKey(pageNo int) any {
	return PageId{TableId: f.tableId, PageNo: pageNo}
}

// NumPages returns the floor of the backing file's length divided by
// PageSize.
func (f *HeapFile) NumPages() int {
	fi, err := os.Stat(f.backingFile)
	if err != nil {
		return 0
	}
	return int(fi.Size() / PageSize)
}

// readPage reads the page at offset pageNo*PageSize. If pageNo equals
// NumPages, an empty page is allocated and written out, then returned —
// this is how the file grows on demand during insertion.
func (f *HeapFile) readPage(pageNo int) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pid := PageId{TableId: f.tableId, PageNo: pageNo}

	if pageNo == f.numPagesLocked() {
		p := newHeapPage(pid, f.desc)
		data, err := p.GetPageData()
		if err != nil {
			return nil, err
		}
		if err := f.writePageDataLocked(pageNo, data); err != nil {
			return nil, err
		}
		return p, nil
	}

	file, err := os.OpenFile(f.backingFile, os.O_RDONLY, 0666)
	if err != nil {
		return nil, newErr(DbError, "open %s for read: %v", f.backingFile, err)
	}
	defer file.Close()

	data := make([]byte, PageSize)
	if _, err := file.ReadAt(data, int64(pageNo)*PageSize); err != nil {
		return nil, newErr(DbError, "read page %d of %s: %v", pageNo, f.backingFile, err)
	}

	p := &heapPage{pid: pid, desc: f.desc}
	if err := p.initFromBuffer(data); err != nil {
		return nil, newErr(DbError, "decode page %d of %s: %v", pageNo, f.backingFile, err)
	}
	return p, nil
}

func (f *HeapFile) numPagesLocked() int {
	fi, err := os.Stat(f.backingFile)
	if err != nil {
		return 0
	}
	return int(fi.Size() / PageSize)
}

func (f *HeapFile) writePageDataLocked(pageNo int, data []byte) error {
	file, err := os.OpenFile(f.backingFile, os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return newErr(DbError, "open %s for write: %v", f.backingFile, err)
	}
	defer file.Close()

	if _, err := file.WriteAt(data, int64(pageNo)*PageSize); err != nil {
		return newErr(DbError, "write page %d of %s: %v", pageNo, f.backingFile, err)
	}
	return nil
}

// writePage seeks to pageNo*PageSize and writes exactly PageSize bytes.
func (f *HeapFile) writePage(p Page) error {
	hp, ok := p.(*heapPage)
	if !ok {
		return newErr(DbError, "writePage: not a heap page")
	}
	data, err := hp.GetPageData()
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writePageDataLocked(hp.pid.PageNo, data)
}

// insertTuple implements the algorithm in this spec's PageStore section:
// scan existing pages read-locked for a free slot, upgrading to a write
// lock to insert; release the read lock on each page that has no room
// (the deliberate, documented 2PL violation that prevents lock
// accumulation during the scan); if no existing page has capacity,
// request a write-locked page at index NumPages, which triggers
// allocation in readPage.
func (f *HeapFile) insertTuple(tid TransactionID, t *Tuple) ([]Page, error) {
	n := f.NumPages()

	for pageNo := 0; pageNo < n; pageNo++ {
		pid := PageId{TableId: f.tableId, PageNo: pageNo}

		page, err := f.bufPool.GetPage(tid, pid, ReadPerm)
		if err != nil {
			return nil, err
		}
		hp := page.(*heapPage)

		if hp.numUsedSlots() < int(hp.numSlots) {
			wpage, err := f.bufPool.GetPage(tid, pid, WritePerm)
			if err != nil {
				return nil, err
			}
			whp := wpage.(*heapPage)
			rid, err := whp.insertTuple(t)
			if err != nil {
				return nil, err
			}
			t.Rid = &rid
			return []Page{whp}, nil
		}

		f.bufPool.ReleasePage(tid, pid)
	}

	pid := PageId{TableId: f.tableId, PageNo: n}
	page, err := f.bufPool.GetPage(tid, pid, WritePerm)
	if err != nil {
		return nil, err
	}
	hp := page.(*heapPage)
	rid, err := hp.insertTuple(t)
	if err != nil {
		return nil, err
	}
	t.Rid = &rid
	return []Page{hp}, nil
}

// deleteTuple removes t, identified by its RecordId, from its page.
func (f *HeapFile) deleteTuple(tid TransactionID, t *Tuple) ([]Page, error) {
	if t.Rid == nil {
		return nil, newErr(DbError, "cannot delete a tuple with no RecordId")
	}

	page, err := f.bufPool.GetPage(tid, t.Rid.PID, WritePerm)
	if err != nil {
		return nil, err
	}
	hp := page.(*heapPage)
	if err := hp.deleteTuple(*t.Rid); err != nil {
		return nil, err
	}
	return []Page{hp}, nil
}

// Iterator yields every tuple in every page of f, in page order, reading
// each page read-locked through the buffer pool.
func (f *HeapFile) Iterator(tid TransactionID) (func() (*Tuple, error), error) {
	pageNo := 0
	var pageIter func() (*Tuple, error)

	return func() (*Tuple, error) {
		for {
			if pageIter == nil {
				if pageNo >= f.NumPages() {
					return nil, nil
				}
				pid := PageId{TableId: f.tableId, PageNo: pageNo}
				page, err := f.bufPool.GetPage(tid, pid, ReadPerm)
				if err != nil {
					return nil, err
				}
				pageIter = page.(*heapPage).tupleIter()
			}

			t, err := pageIter()
			if err != nil {
				return nil, err
			}
			if t == nil {
				pageIter = nil
				pageNo++
				continue
			}
			out := *t
			out.Desc = *f.desc
			return &out, nil
		}
	}, nil
}

// LoadFromCSV bulk-loads tuples from a delimited file into f, one
// transaction per row. hasHeader skips the first line; skipLastField
// drops a trailing empty column some TPC-style datasets carry.
func (f *HeapFile) LoadFromCSV(r io.Reader, hasHeader bool, sep string, skipLastField bool) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, sep)
		if skipLastField {
			fields = fields[:len(fields)-1]
		}
		if lineNo == 1 && hasHeader {
			continue
		}
		if len(fields) != len(f.desc.Fields) {
			return newErr(MalformedDataError, "line %d: expected %d fields, got %d", lineNo, len(f.desc.Fields), len(fields))
		}

		values := make([]Field, len(fields))
		for i, raw := range fields {
			switch f.desc.Fields[i].Ftype {
			case IntType:
				raw = strings.TrimSpace(raw)
				n, err := strconv.ParseInt(raw, 10, 32)
				if err != nil {
					return newErr(TypeMismatchError, "line %d: %q is not an int", lineNo, raw)
				}
				values[i] = IntField{Value: int32(n)}
			case StringType:
				if len(raw) > StringLength {
					raw = raw[:StringLength]
				}
				values[i] = StringField{Value: raw}
			}
		}

		tid := NewTID()
		tup := &Tuple{Desc: *f.desc, Fields: values}
		if err := f.bufPool.InsertTuple(tid, f.tableId, tup); err != nil {
			return err
		}
		if err := f.bufPool.Commit(tid); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return newErr(IoError, "scan csv: %v", err)
	}
	return nil
}

var _ fmt.Stringer = PageId{}

func (pid PageId) String() string {
	return fmt.Sprintf("table=%d page=%d", pid.TableId, pid.PageNo)
}
