package heapengine

// AggOp is an aggregation function.
type AggOp int

const (
	AggMin AggOp = iota
	AggMax
	AggSum
	AggAvg
	AggCount
)

func (op AggOp) String() string {
	switch op {
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggSum:
		return "sum"
	case AggAvg:
		return "avg"
	case AggCount:
		return "count"
	default:
		return "unknown"
	}
}

// NoGrouping is the sentinel gfield value meaning "aggregate the whole
// input into a single group".
const NoGrouping = -1

// groupKey is the comparable key used to bucket tuples by their
// group-by field; NoGrouping aggregation uses a single fixed key.
type groupKey struct {
	isInt bool
	i     int32
	s     string
}

func keyFor(gfield int, t *Tuple) groupKey {
	if gfield == NoGrouping {
		return groupKey{}
	}
	switch v := t.Fields[gfield].(type) {
	case IntField:
		return groupKey{isInt: true, i: v.Value}
	case StringField:
		return groupKey{s: v.Value}
	default:
		return groupKey{}
	}
}

func keyToField(k groupKey) Field {
	if k.isInt {
		return IntField{Value: k.i}
	}
	return StringField{Value: k.s}
}

// intGroup is the per-group running state of IntegerAggregator.
type intGroup struct {
	count int64
	value int64
}

// IntegerAggregator computes MIN/MAX/SUM/AVG/COUNT over an INT-typed
// aggregate field, optionally bucketed by a group-by field. Each group
// seeds count=1, value=afield on first sighting; subsequent tuples update
// value by min/max/sum (COUNT leaves it untouched, AVG accumulates into it
// and divides, truncating toward zero, on readout).
type IntegerAggregator struct {
	afield, gfield int
	op             AggOp
	order          []groupKey
	groups         map[groupKey]*intGroup
}

// NewIntegerAggregator constructs an IntegerAggregator over afield,
// bucketed by gfield (or NoGrouping).
func NewIntegerAggregator(afield, gfield int, op AggOp) *IntegerAggregator {
	return &IntegerAggregator{
		afield: afield,
		gfield: gfield,
		op:     op,
		groups: make(map[groupKey]*intGroup),
	}
}

// MergeTupleIntoGroup folds one input tuple into its group's state.
func (a *IntegerAggregator) MergeTupleIntoGroup(t *Tuple) {
	k := keyFor(a.gfield, t)
	v := int64(t.Fields[a.afield].(IntField).Value)

	g, ok := a.groups[k]
	if !ok {
		g = &intGroup{count: 1, value: v}
		a.groups[k] = g
		a.order = append(a.order, k)
		return
	}

	g.count++
	switch a.op {
	case AggMin:
		if v < g.value {
			g.value = v
		}
	case AggMax:
		if v > g.value {
			g.value = v
		}
	case AggSum:
		g.value += v
	case AggAvg:
		g.value += v
	case AggCount:
		// value is untouched; count alone drives readout.
	}
}

func (a *IntegerAggregator) readout(g *intGroup) int32 {
	switch a.op {
	case AggCount:
		return int32(g.count)
	case AggAvg:
		return int32(g.value / g.count)
	default:
		return int32(g.value)
	}
}

// Iterator returns a closure over every group's finalized tuple, in first-
// sighting order. outDesc is the descriptor Aggregate computed for this
// aggregator's output (see Aggregate.Descriptor).
func (a *IntegerAggregator) Iterator(outDesc *TupleDesc) func() (*Tuple, error) {
	i := 0
	return func() (*Tuple, error) {
		if i >= len(a.order) {
			return nil, nil
		}
		k := a.order[i]
		i++
		g := a.groups[k]
		value := IntField{Value: a.readout(g)}

		if a.gfield == NoGrouping {
			return &Tuple{Desc: *outDesc, Fields: []Field{value}}, nil
		}
		return &Tuple{Desc: *outDesc, Fields: []Field{keyToField(k), value}}, nil
	}
}

// StringAggregator supports COUNT only over a STRING-typed aggregate
// field; any other operator is rejected at construction.
type StringAggregator struct {
	afield, gfield int
	order          []groupKey
	counts         map[groupKey]int64
}

// NewStringAggregator constructs a StringAggregator over afield, bucketed
// by gfield (or NoGrouping). Returns an IllegalArgumentError if op is not
// AggCount.
func NewStringAggregator(afield, gfield int, op AggOp) (*StringAggregator, error) {
	if op != AggCount {
		return nil, newErr(IllegalArgumentError, "string aggregator supports COUNT only, got %s", op)
	}
	return &StringAggregator{
		afield: afield,
		gfield: gfield,
		counts: make(map[groupKey]int64),
	}, nil
}

// MergeTupleIntoGroup folds one input tuple into its group's count.
func (a *StringAggregator) MergeTupleIntoGroup(t *Tuple) {
	k := keyFor(a.gfield, t)
	if _, ok := a.counts[k]; !ok {
		a.order = append(a.order, k)
	}
	a.counts[k]++
}

// Iterator returns a closure over every group's finalized tuple, in first-
// sighting order.
func (a *StringAggregator) Iterator(outDesc *TupleDesc) func() (*Tuple, error) {
	i := 0
	return func() (*Tuple, error) {
		if i >= len(a.order) {
			return nil, nil
		}
		k := a.order[i]
		i++
		count := IntField{Value: int32(a.counts[k])}

		if a.gfield == NoGrouping {
			return &Tuple{Desc: *outDesc, Fields: []Field{count}}, nil
		}
		return &Tuple{Desc: *outDesc, Fields: []Field{keyToField(k), count}}, nil
	}
}

// groupAggregator is the common shape IntegerAggregator and
// StringAggregator both satisfy, letting Aggregate stay agnostic to which
// one it is driving.
type groupAggregator interface {
	MergeTupleIntoGroup(t *Tuple)
	Iterator(outDesc *TupleDesc) func() (*Tuple, error)
}

// Aggregate is a unary operator that, on Open, materializes its entire
// child in one pass into a grouping structure, then iterates the
// per-group results. Output schema is (INT) with no grouping, or
// (groupFieldType, INT) with grouping.
type Aggregate struct {
	operatorBase
	child          Operator
	afield, gfield int
	op             AggOp
	agg            groupAggregator
	outDesc        *TupleDesc
}

// NewAggregate constructs an Aggregate over child's afield, optionally
// grouped by gfield (or NoGrouping), computing op. The aggregator variant
// (integer or string) is chosen from child's schema at afield; NewAggregate
// returns an error if op is unsupported for that field's type (StringType
// only supports AggCount).
func NewAggregate(child Operator, afield, gfield int, op AggOp) (*Aggregate, error) {
	desc := child.Descriptor()
	outDesc, err := aggregateDescriptor(desc, afield, gfield, op)
	if err != nil {
		return nil, err
	}

	a := &Aggregate{child: child, afield: afield, gfield: gfield, op: op, outDesc: outDesc}

	switch desc.Fields[afield].Ftype {
	case IntType:
		a.agg = NewIntegerAggregator(afield, gfield, op)
	case StringType:
		sa, err := NewStringAggregator(afield, gfield, op)
		if err != nil {
			return nil, err
		}
		a.agg = sa
	}
	return a, nil
}

// aggregateDescriptor computes the output schema: with no grouping, a
// single column named after op; with grouping, the group-by column's
// name first, then the aggregate column's name.
func aggregateDescriptor(childDesc *TupleDesc, afield, gfield int, op AggOp) (*TupleDesc, error) {
	if afield < 0 || afield >= len(childDesc.Fields) {
		return nil, newErr(NoSuchFieldError, "aggregate field index %d out of range", afield)
	}
	if gfield != NoGrouping && (gfield < 0 || gfield >= len(childDesc.Fields)) {
		return nil, newErr(NoSuchFieldError, "group-by field index %d out of range", gfield)
	}

	if gfield == NoGrouping {
		return &TupleDesc{Fields: []FieldType{{Fname: op.String(), Ftype: IntType}}}, nil
	}
	return &TupleDesc{Fields: []FieldType{
		childDesc.Fields[gfield],
		{Fname: childDesc.Fields[afield].Fname, Ftype: IntType},
	}}, nil
}

func (a *Aggregate) Descriptor() *TupleDesc { return a.outDesc }

func (a *Aggregate) GetChildren() []Operator { return []Operator{a.child} }

func (a *Aggregate) SetChildren(children []Operator) {
	if len(children) != 1 {
		panic("Aggregate.SetChildren: expected exactly one child")
	}
	a.child = children[0]
}

// Open materializes the entire child into the grouping structure, then
// installs an iterator over the per-group results.
func (a *Aggregate) Open(tid TransactionID) error {
	if err := a.child.Open(tid); err != nil {
		return err
	}

	for {
		ok, err := a.child.HasNext()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		t, err := a.child.Next()
		if err != nil {
			return err
		}
		if t == nil {
			break
		}
		a.agg.MergeTupleIntoGroup(t)
	}

	a.resetIteration(a.agg.Iterator(a.outDesc))
	return nil
}

func (a *Aggregate) Close() error {
	a.markClosed()
	return a.child.Close()
}

// Rewind re-materializes nothing: the grouping structure is already
// complete from Open, so Rewind simply reinstalls a fresh iterator over
// it. This matches spec.md's law that open;drain;close behaves the same
// as open;rewind;drain;close for deterministic operators.
func (a *Aggregate) Rewind() error {
	a.resetIteration(a.agg.Iterator(a.outDesc))
	return nil
}
