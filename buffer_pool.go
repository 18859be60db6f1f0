package heapengine

// BufferPool is the only path by which operators read or write pages. It
// caches up to NumPages pages, evicts by LRU among clean pages (NO-STEAL:
// a dirty page is never evicted), and dispatches lock acquisition through
// a LockManager before returning a page to the caller.
import (
	"sync"
	"time"
)

type BufferPool struct {
	NumPages int

	mu             sync.Mutex
	pagePool       []Page             // fixed slots; nil when idle
	pageIdToSlot   map[PageId]int     // forward map
	idleSlots      map[int]struct{}   // slot indices currently unused
	latestUsed     map[PageId]int64   // pageId -> timestamp of last access
	timestamp      int64              // monotonic counter, bumped on every GetPage

	lockManager *LockManager
	catalog     *Catalog

	retryInterval time.Duration
}

// NewBufferPool constructs a BufferPool with the given capacity, backed by
// catalog for resolving a PageId's table to a DBFile.
func NewBufferPool(numPages int, catalog *Catalog) *BufferPool {
	idle := make(map[int]struct{}, numPages)
	for i := 0; i < numPages; i++ {
		idle[i] = struct{}{}
	}
	return &BufferPool{
		NumPages:      numPages,
		pagePool:      make([]Page, numPages),
		pageIdToSlot:  make(map[PageId]int),
		idleSlots:     idle,
		latestUsed:    make(map[PageId]int64),
		lockManager:   NewLockManager(),
		catalog:       catalog,
		retryInterval: time.Millisecond,
	}
}

// LockManager exposes the pool's lock manager, e.g. for tests that want to
// construct races directly against it.
func (bp *BufferPool) LockManager() *LockManager { return bp.lockManager }

// GetPage returns the page pid, acquiring perm on it first via the lock
// manager. If the lock cannot be granted immediately, GetPage retries
// until it can, or until deadlock detection aborts tid.
func (bp *BufferPool) GetPage(tid TransactionID, pid PageId, perm RWPerm) (Page, error) {
	for {
		ok, err := bp.lockManager.AcquireLock(tid, pid, perm)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		time.Sleep(bp.retryInterval)
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	bp.timestamp++
	bp.latestUsed[pid] = bp.timestamp

	if slot, cached := bp.pageIdToSlot[pid]; cached {
		return bp.pagePool[slot], nil
	}

	if len(bp.idleSlots) == 0 {
		if err := bp.evictPageLocked(); err != nil {
			return nil, err
		}
	}

	slot := bp.anyIdleSlot()
	file, err := bp.catalog.GetDbFile(pid.TableId)
	if err != nil {
		return nil, err
	}
	page, err := file.readPage(pid.PageNo)
	if err != nil {
		return nil, err
	}

	delete(bp.idleSlots, slot)
	bp.pagePool[slot] = page
	bp.pageIdToSlot[pid] = slot
	return page, nil
}

func (bp *BufferPool) anyIdleSlot() int {
	for s := range bp.idleSlots {
		return s
	}
	panic("anyIdleSlot called with no idle slots")
}

// evictPageLocked selects the least-recently-used clean page and removes
// it from the pool. Must be called with bp.mu held and with the idle set
// empty, per the BufferPool invariant.
func (bp *BufferPool) evictPageLocked() error {
	if len(bp.idleSlots) != 0 {
		return newErr(DbError, "evict requested while %d slots remain idle", len(bp.idleSlots))
	}

	bestSlot := -1
	var bestPid PageId
	var bestTs int64

	for pid, slot := range bp.pageIdToSlot {
		page := bp.pagePool[slot]
		if _, dirty := page.IsDirty(); dirty {
			continue
		}
		ts := bp.latestUsed[pid]
		if bestSlot == -1 || ts < bestTs {
			bestSlot, bestPid, bestTs = slot, pid, ts
		}
	}

	if bestSlot == -1 {
		return newErr(TransactionAbortedError, "buffer pool full of dirty pages, cannot evict")
	}

	if err := bp.flushPageLocked(bp.pagePool[bestSlot]); err != nil {
		return err
	}

	bp.pagePool[bestSlot] = nil
	delete(bp.pageIdToSlot, bestPid)
	delete(bp.latestUsed, bestPid)
	bp.idleSlots[bestSlot] = struct{}{}
	return nil
}

// flushPageLocked writes p to its DBFile if dirty and clears the dirty
// flag. Idempotent: a clean page is a no-op.
func (bp *BufferPool) flushPageLocked(p Page) error {
	tid, dirty := p.IsDirty()
	if !dirty {
		return nil
	}
	file, err := bp.catalog.GetDbFile(p.ID().TableId)
	if err != nil {
		return err
	}
	if err := file.writePage(p); err != nil {
		return newErr(DbError, "flush %+v: %v", p.ID(), err)
	}
	p.SetDirty(tid, false)
	return nil
}

// FlushPage flushes pid if it is cached and dirty.
func (bp *BufferPool) FlushPage(pid PageId) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	slot, ok := bp.pageIdToSlot[pid]
	if !ok {
		return nil
	}
	return bp.flushPageLocked(bp.pagePool[slot])
}

// FlushAllPages flushes every currently cached page.
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for _, slot := range bp.pageIdToSlot {
		if err := bp.flushPageLocked(bp.pagePool[slot]); err != nil {
			return err
		}
	}
	return nil
}

// InsertTuple delegates to tableId's DBFile and marks every returned page
// dirty on behalf of tid.
func (bp *BufferPool) InsertTuple(tid TransactionID, tableId int64, t *Tuple) error {
	file, err := bp.catalog.GetDbFile(tableId)
	if err != nil {
		return err
	}
	pages, err := file.insertTuple(tid, t)
	if err != nil {
		return err
	}
	for _, p := range pages {
		p.SetDirty(tid, true)
	}
	return nil
}

// DeleteTuple delegates to tableId's DBFile and marks every returned
// page dirty on behalf of tid.
func (bp *BufferPool) DeleteTuple(tid TransactionID, tableId int64, t *Tuple) error {
	file, err := bp.catalog.GetDbFile(tableId)
	if err != nil {
		return err
	}
	pages, err := file.deleteTuple(tid, t)
	if err != nil {
		return err
	}
	for _, p := range pages {
		p.SetDirty(tid, true)
	}
	return nil
}

// TransactionComplete ends tid: on commit, every page it locked is flushed
// to disk; on abort, every page it locked is dropped from the pool
// unconditionally so a subsequent read reloads the pre-transaction disk
// image (NO-STEAL's abort mechanism, in lieu of undo logging). Locks are
// released last, after pages are handled.
func (bp *BufferPool) TransactionComplete(tid TransactionID, commit bool) error {
	held := bp.lockManager.PagesHeldBy(tid)

	bp.mu.Lock()
	var firstErr error
	for _, pid := range held {
		slot, cached := bp.pageIdToSlot[pid]
		if !cached {
			continue
		}
		page := bp.pagePool[slot]
		if commit {
			if err := bp.flushPageLocked(page); err != nil && firstErr == nil {
				firstErr = err
			}
		} else {
			bp.pagePool[slot] = nil
			delete(bp.pageIdToSlot, pid)
			delete(bp.latestUsed, pid)
			bp.idleSlots[slot] = struct{}{}
		}
	}
	bp.mu.Unlock()

	bp.lockManager.ReleaseTransaction(tid)
	return firstErr
}

// Commit is the unary form of TransactionComplete: equivalent to
// TransactionComplete(tid, true).
func (bp *BufferPool) Commit(tid TransactionID) error {
	return bp.TransactionComplete(tid, true)
}

// ReleasePage releases only tid's lock on pid. This is documented as
// unsafe: it violates strict two-phase locking. It exists solely for
// operators that must release a read lock mid-transaction, such as
// HeapFile.insertTuple's capacity scan.
func (bp *BufferPool) ReleasePage(tid TransactionID, pid PageId) {
	bp.lockManager.ReleaseLock(tid, pid)
}
