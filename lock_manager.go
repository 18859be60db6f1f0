package heapengine

import "sync"

// LockManager tracks per-page lock ownership for every live transaction
// and resolves acquire requests under strict two-phase locking: locks are
// granted monotonically during a transaction and released when the
// transaction completes (ReleaseTransaction). ReleaseLock is the one
// exception: it drops a single lock mid-transaction, as
// HeapFile.insertTuple's capacity scan does through BufferPool.ReleasePage.
// A transaction may hold SHARED concurrently with any number of other
// holders, or EXCLUSIVE alone; a sole SHARED holder
// upgrading to EXCLUSIVE is always granted.
type LockManager struct {
	mu sync.Mutex

	tidToPages  map[TransactionID]map[PageId]struct{}
	pageToPerm  map[PageId]RWPerm
	pageToTids  map[PageId]map[TransactionID]struct{}
	waitingOn   map[TransactionID]PageId
}

// NewLockManager constructs an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{
		tidToPages: make(map[TransactionID]map[PageId]struct{}),
		pageToPerm: make(map[PageId]RWPerm),
		pageToTids: make(map[PageId]map[TransactionID]struct{}),
		waitingOn:  make(map[TransactionID]PageId),
	}
}

// AcquireLock attempts, without blocking, to grant tid the requested perm
// on pid. It returns (true, nil) on grant, (false, nil) if the caller
// should retry, and a TransactionAborted error if granting this request
// would complete a cycle in the wait-for graph.
func (lm *LockManager) AcquireLock(tid TransactionID, pid PageId, perm RWPerm) (bool, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.HoldsLockLocked(tid, pid) && lm.pageToPerm[pid] == perm {
		return true, nil
	}

	if _, waiting := lm.waitingOn[tid]; !waiting {
		lm.waitingOn[tid] = pid
		if lm.hasCycle(tid) {
			delete(lm.waitingOn, tid)
			return false, newErr(TransactionAbortedError, "deadlock detected waiting on %+v", pid)
		}
	}

	if !lm.grantable(tid, pid, perm) {
		return false, nil
	}

	delete(lm.waitingOn, tid)
	lm.grant(tid, pid, perm)
	return true, nil
}

// grantable checks lock compatibility without mutating state.
func (lm *LockManager) grantable(tid TransactionID, pid PageId, perm RWPerm) bool {
	holders, held := lm.pageToTids[pid]
	if !held || len(holders) == 0 {
		return true
	}
	current := lm.pageToPerm[pid]

	if current == ReadPerm {
		if perm == ReadPerm {
			return true
		}
		// Upgrade shared -> exclusive: only the sole holder may do this.
		return len(holders) == 1 && lm.holds(holders, tid)
	}
	// current == WritePerm: only the sole holder (any perm) may proceed.
	return len(holders) == 1 && lm.holds(holders, tid)
}

func (lm *LockManager) holds(holders map[TransactionID]struct{}, tid TransactionID) bool {
	_, ok := holders[tid]
	return ok
}

func (lm *LockManager) grant(tid TransactionID, pid PageId, perm RWPerm) {
	if lm.tidToPages[tid] == nil {
		lm.tidToPages[tid] = make(map[PageId]struct{})
	}
	lm.tidToPages[tid][pid] = struct{}{}

	if lm.pageToTids[pid] == nil {
		lm.pageToTids[pid] = make(map[TransactionID]struct{})
	}
	lm.pageToTids[pid][tid] = struct{}{}
	// Record the highest mode ever granted on pid, not just the mode of
	// this particular request: a sole EXCLUSIVE holder re-acquiring SHARED
	// (e.g. a plain read of a page it already holds for writing) must not
	// downgrade the page's recorded permission out from under it.
	if perm == WritePerm || lm.pageToPerm[pid] == WritePerm {
		lm.pageToPerm[pid] = WritePerm
	} else {
		lm.pageToPerm[pid] = perm
	}
}

// hasCycle runs a DFS over the wait-for graph rooted at tid: an edge a->b
// exists iff a is waiting on a page held by b. It must be called with
// lm.mu held and with lm.waitingOn[tid] already recorded.
func (lm *LockManager) hasCycle(tid TransactionID) bool {
	visited := make(map[TransactionID]bool)

	var dfs func(cur TransactionID) bool
	dfs = func(cur TransactionID) bool {
		pid, waiting := lm.waitingOn[cur]
		if !waiting {
			return false
		}
		for holder := range lm.pageToTids[pid] {
			if holder == cur {
				continue
			}
			if holder == tid {
				return true
			}
			if visited[holder] {
				continue
			}
			visited[holder] = true
			if dfs(holder) {
				return true
			}
		}
		return false
	}

	return dfs(tid)
}

// ReleaseLock releases tid's lock on pid, if any.
func (lm *LockManager) ReleaseLock(tid TransactionID, pid PageId) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.releaseLocked(tid, pid)
}

func (lm *LockManager) releaseLocked(tid TransactionID, pid PageId) {
	if pages, ok := lm.tidToPages[tid]; ok {
		delete(pages, pid)
		if len(pages) == 0 {
			delete(lm.tidToPages, tid)
		}
	}
	if holders, ok := lm.pageToTids[pid]; ok {
		delete(holders, tid)
		if len(holders) == 0 {
			delete(lm.pageToTids, pid)
			delete(lm.pageToPerm, pid)
		}
	}
}

// ReleaseTransaction releases every lock held by tid and clears any
// pending wait record.
func (lm *LockManager) ReleaseTransaction(tid TransactionID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for pid := range lm.tidToPages[tid] {
		lm.releaseLocked(tid, pid)
	}
	delete(lm.waitingOn, tid)
}

// HoldsLock reports whether tid holds any lock on pid.
func (lm *LockManager) HoldsLock(tid TransactionID, pid PageId) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.HoldsLockLocked(tid, pid)
}

// HoldsLockLocked is HoldsLock for callers that already hold lm.mu.
func (lm *LockManager) HoldsLockLocked(tid TransactionID, pid PageId) bool {
	pages, ok := lm.tidToPages[tid]
	if !ok {
		return false
	}
	_, ok = pages[pid]
	if !ok {
		return false
	}
	holders, ok2 := lm.pageToTids[pid]
	if !ok2 {
		return false
	}
	_, ok2 = holders[tid]
	return ok2
}

// PagesHeldBy returns the set of pages tid currently holds a lock on.
func (lm *LockManager) PagesHeldBy(tid TransactionID) []PageId {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	out := make([]PageId, 0, len(lm.tidToPages[tid]))
	for pid := range lm.tidToPages[tid] {
		out = append(out, pid)
	}
	return out
}
