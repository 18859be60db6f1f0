package heapengine

// countDesc is the one-field INT schema shared by InsertOp and DeleteOp.
var countDesc = &TupleDesc{Fields: []FieldType{{Fname: "count", Ftype: IntType}}}

// InsertOp drains its child exactly once per transaction, inserting each
// tuple into tableId via the buffer pool, then emits a single one-field
// tuple holding the count inserted. Subsequent calls return end-of-stream.
type InsertOp struct {
	operatorBase
	child   Operator
	bp      *BufferPool
	tableId int64
	tid     TransactionID
	done    bool
}

// NewInsertOp constructs an InsertOp that inserts child's tuples into
// tableId via bp.
func NewInsertOp(child Operator, bp *BufferPool, tableId int64) *InsertOp {
	return &InsertOp{child: child, bp: bp, tableId: tableId}
}

func (o *InsertOp) Descriptor() *TupleDesc { return countDesc }

func (o *InsertOp) GetChildren() []Operator { return []Operator{o.child} }

func (o *InsertOp) SetChildren(children []Operator) {
	if len(children) != 1 {
		panic("InsertOp.SetChildren: expected exactly one child")
	}
	o.child = children[0]
}

func (o *InsertOp) Open(tid TransactionID) error {
	if err := o.child.Open(tid); err != nil {
		return err
	}
	o.tid = tid
	o.done = false
	o.resetIteration(o.fetchNext)
	return nil
}

func (o *InsertOp) Close() error {
	o.markClosed()
	return o.child.Close()
}

func (o *InsertOp) Rewind() error {
	if err := o.child.Rewind(); err != nil {
		return err
	}
	o.done = false
	o.resetIteration(o.fetchNext)
	return nil
}

func (o *InsertOp) fetchNext() (*Tuple, error) {
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
		if err := o.bp.InsertTuple(o.tid, o.tableId, t); err != nil {
			return nil, err
		}
		count++
	}

	return &Tuple{Desc: *countDesc, Fields: []Field{IntField{Value: count}}}, nil
}
