package heapengine

// SeqScan is the leaf operator that reads every tuple of a table, in
// on-disk order, through its DBFile's Iterator. It is the only Operator
// in this package that has no child; every other operator in this package
// takes exactly one child Operator.
type SeqScan struct {
	operatorBase
	catalog    *Catalog
	tableId    int64
	desc       *TupleDesc
	currentTid TransactionID
}

// NewSeqScan constructs a SeqScan over the table registered under
// tableId in catalog.
func NewSeqScan(catalog *Catalog, tableId int64) (*SeqScan, error) {
	desc, err := catalog.GetTupleDesc(tableId)
	if err != nil {
		return nil, err
	}
	return &SeqScan{catalog: catalog, tableId: tableId, desc: desc}, nil
}

func (s *SeqScan) Descriptor() *TupleDesc { return s.desc }

// GetChildren returns nil: SeqScan is a leaf, the only Operator with no
// children.
func (s *SeqScan) GetChildren() []Operator { return nil }

func (s *SeqScan) SetChildren(children []Operator) {
	if len(children) != 0 {
		panic("SeqScan.SetChildren: SeqScan is a leaf, expected no children")
	}
}

func (s *SeqScan) Open(tid TransactionID) error {
	iter, err := s.openIterator(tid)
	if err != nil {
		return err
	}
	s.resetIteration(iter)
	return nil
}

func (s *SeqScan) Close() error {
	s.markClosed()
	return nil
}

func (s *SeqScan) Rewind() error {
	iter, err := s.openIterator(s.currentTid)
	if err != nil {
		return err
	}
	s.resetIteration(iter)
	return nil
}

func (s *SeqScan) openIterator(tid TransactionID) (fetchNextFunc, error) {
	s.currentTid = tid
	file, err := s.catalog.GetDbFile(s.tableId)
	if err != nil {
		return nil, err
	}
	return file.Iterator(tid)
}
