package heapengine

// opState is the lifecycle state every operator iterator moves through:
// CREATED -> OPEN -> (iterating) -> CLOSED. Rewind is close-then-open.
type opState int

const (
	stateCreated opState = iota
	stateOpen
	stateClosed
)

// fetchNextFunc produces the next tuple in a stream, or (nil, nil) at
// end-of-stream.
type fetchNextFunc func() (*Tuple, error)

// operatorBase implements the buffering and lifecycle guards common to
// every operator: hasNext/next are both driven by a single fetchNext
// hook, and it is an error to call them before open or after close.
type operatorBase struct {
	state    opState
	buffered *Tuple
	hasBuf   bool
	fetch    fetchNextFunc
}

// resetIteration clears any buffered lookahead; called by concrete
// operators from their own Open/Rewind once fetch is (re)installed.
func (b *operatorBase) resetIteration(fetch fetchNextFunc) {
	b.fetch = fetch
	b.buffered = nil
	b.hasBuf = false
	b.state = stateOpen
}

func (b *operatorBase) markClosed() {
	b.state = stateClosed
	b.fetch = nil
	b.buffered = nil
	b.hasBuf = false
}

// GetChildren's base implementation reports no children. Unary operators
// (Filter, InsertOp, DeleteOp, Aggregate) override this; leaf test
// fixtures embedding operatorBase inherit it as-is. SeqScan defines its
// own equivalent leaf version.
func (b *operatorBase) GetChildren() []Operator { return nil }

// SetChildren's base implementation rejects any children. Unary operators
// override this.
func (b *operatorBase) SetChildren(children []Operator) {
	if len(children) != 0 {
		panic("operatorBase.SetChildren: this operator is a leaf, expected no children")
	}
}

func (b *operatorBase) requireOpen() error {
	switch b.state {
	case stateCreated:
		return newErr(DbError, "operator used before open")
	case stateClosed:
		return newErr(DbError, "operator used after close")
	default:
		return nil
	}
}

// HasNext reports whether Next will produce a tuple, buffering the lookahead.
func (b *operatorBase) HasNext() (bool, error) {
	if err := b.requireOpen(); err != nil {
		return false, err
	}
	if b.hasBuf {
		return b.buffered != nil, nil
	}
	t, err := b.fetch()
	if err != nil {
		return false, err
	}
	b.buffered = t
	b.hasBuf = true
	return t != nil, nil
}

// Next returns the next tuple, or an end-of-stream error-free nil if the
// stream is exhausted.
func (b *operatorBase) Next() (*Tuple, error) {
	if err := b.requireOpen(); err != nil {
		return nil, err
	}
	if !b.hasBuf {
		t, err := b.fetch()
		if err != nil {
			return nil, err
		}
		b.buffered = t
		b.hasBuf = true
	}
	t := b.buffered
	b.hasBuf = false
	b.buffered = nil
	return t, nil
}
