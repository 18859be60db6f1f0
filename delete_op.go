package heapengine

// DeleteOp drains its child exactly once per transaction, deleting each
// tuple from tableId via the buffer pool (using the tuple's RecordId),
// then emits a single one-field tuple holding the count deleted.
// Subsequent calls return end-of-stream.
type DeleteOp struct {
	operatorBase
	child   Operator
	bp      *BufferPool
	tableId int64
	tid     TransactionID
	done    bool
}

// NewDeleteOp constructs a DeleteOp that deletes child's tuples from
// tableId via bp.
func NewDeleteOp(child Operator, bp *BufferPool, tableId int64) *DeleteOp {
	return &DeleteOp{child: child, bp: bp, tableId: tableId}
}

func (o *DeleteOp) Descriptor() *TupleDesc { return countDesc }

func (o *DeleteOp) GetChildren() []Operator { return []Operator{o.child} }

func (o *DeleteOp) SetChildren(children []Operator) {
	if len(children) != 1 {
		panic("DeleteOp.SetChildren: expected exactly one child")
	}
	o.child = children[0]
}

func (o *DeleteOp) Open(tid TransactionID) error {
	if err := o.child.Open(tid); err != nil {
		return err
	}
	o.tid = tid
	o.done = false
	o.resetIteration(o.fetchNext)
	return nil
}

func (o *DeleteOp) Close() error {
	o.markClosed()
	return o.child.Close()
}

func (o *DeleteOp) Rewind() error {
	if err := o.child.Rewind(); err != nil {
		return err
	}
	o.done = false
	o.resetIteration(o.fetchNext)
	return nil
}

func (o *DeleteOp) fetchNext() (*Tuple, error) {
	if o.done {
		return nil, nil
	}
	o.done = true

	var count int32
	for {
		ok, err := o.child.HasNext()
		if err != nil || !ok {
			if err != nil {
				return nil, err
			}
			break
		}
		t, err := o.child.Next()
		if err != nil {
			return nil, err
		}
		if t == nil {
			break
		}
		if err := o.bp.DeleteTuple(o.tid, o.tableId, t); err != nil {
			return nil, err
		}
		count++
	}

	return &Tuple{Desc: *countDesc, Fields: []Field{IntField{Value: count}}}, nil
}
