package heapengine

// Filter is a unary operator whose output schema equals its child's: it
// forwards each child tuple satisfying a (field, op, value) predicate.
type Filter struct {
	operatorBase
	field Field
	op    BoolOp
	index int
	child Operator
}

// NewFilter constructs a Filter that keeps child tuples whose field at
// index compares true against value under op (e.g. index=1, op=OpGt,
// value=IntField{10} keeps rows where field 1 is greater than 10).
func NewFilter(index int, op BoolOp, value Field, child Operator) *Filter {
	return &Filter{field: value, op: op, index: index, child: child}
}

func (f *Filter) Descriptor() *TupleDesc { return f.child.Descriptor() }

func (f *Filter) GetChildren() []Operator { return []Operator{f.child} }

func (f *Filter) SetChildren(children []Operator) {
	if len(children) != 1 {
		panic("Filter.SetChildren: expected exactly one child")
	}
	f.child = children[0]
}

func (f *Filter) Open(tid TransactionID) error {
	if err := f.child.Open(tid); err != nil {
		return err
	}
	f.resetIteration(f.fetchNext)
	return nil
}

func (f *Filter) Close() error {
	f.markClosed()
	return f.child.Close()
}

func (f *Filter) Rewind() error {
	if err := f.child.Rewind(); err != nil {
		return err
	}
	f.resetIteration(f.fetchNext)
	return nil
}

func (f *Filter) fetchNext() (*Tuple, error) {
	for {
		ok, err := f.child.HasNext()
		if err != nil || !ok {
			return nil, err
		}
		t, err := f.child.Next()
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, nil
		}
		if f.index < 0 || f.index >= len(t.Fields) {
			return nil, newErr(NoSuchFieldError, "filter field index %d out of range", f.index)
		}
		if t.Fields[f.index].EvalPred(f.field, f.op) {
			return t, nil
		}
	}
}
