// Package heapengine implements a teaching-grade relational storage and
// execution engine: a page-cached heap-file storage layer with
// transactional concurrency control, and a pull-based iterator execution
// model for selection, modification, and aggregation.
package heapengine

import (
	"fmt"

	"github.com/google/uuid"
)

// PageSize is the fixed size, in bytes, of every page on disk and in the
// buffer pool.
const PageSize = 4096

// DefaultPages is the default buffer pool capacity, in pages.
const DefaultPages = 50

// StringLength is the fixed maximum length, in bytes, of a StringField.
const StringLength = 32

// DBType identifies the type of a tuple field.
type DBType int

const (
	IntType DBType = iota
	StringType
)

func (t DBType) String() string {
	switch t {
	case IntType:
		return "int"
	case StringType:
		return "string"
	default:
		return "unknown"
	}
}

// BoolOp is a comparison operator used by predicates (Field.EvalPred,
// Filter).
type BoolOp int

const (
	OpEq BoolOp = iota
	OpNeq
	OpGt
	OpGe
	OpLt
	OpLe
)

func (op BoolOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNeq:
		return "<>"
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	default:
		return "?"
	}
}

// TransactionID is an opaque, value-equal, hashable token identifying a
// transaction. Uniqueness is the caller's responsibility; NewTID mints a
// fresh one using a random UUID.
type TransactionID = uuid.UUID

// NewTID returns a new, unique TransactionID.
func NewTID() TransactionID {
	return uuid.New()
}

// ErrorCode classifies the failures this package can raise.
type ErrorCode int

const (
	// TransactionAbortedError is raised by the lock manager on deadlock
	// detection, or by the buffer pool when no clean page can be evicted.
	TransactionAbortedError ErrorCode = iota
	// DbError is any invariant violation: a delete with no record id, an
	// eviction request while slots remain idle, a malformed heap page, etc.
	DbError
	// IoError is a raw I/O failure opening a heap file's backing file or
	// scanning CSV input. Failures reading or writing an individual page
	// are reported as DbError.
	IoError
	// IllegalArgumentError is raised by constructors rejecting their
	// arguments, e.g. a StringAggregator built with an operator other than
	// COUNT.
	IllegalArgumentError
	// TypeMismatchError is raised when a field's value does not match the
	// type its schema expects (tuple serialization, CSV ingestion). A
	// predicate comparing fields of different types evaluates to false
	// instead of raising it.
	TypeMismatchError
	// MalformedDataError is raised by CSV ingestion when a line does not
	// match the target schema.
	MalformedDataError
	// NoSuchFieldError is raised when a field index or name cannot be
	// resolved against a TupleDesc.
	NoSuchFieldError
	// PoolFullError is not raised by this package: a buffer pool whose
	// cached pages are all dirty is reported as TransactionAbortedError by
	// eviction (the NO-STEAL invariant).
	PoolFullError
)

func (c ErrorCode) String() string {
	switch c {
	case TransactionAbortedError:
		return "transaction aborted"
	case DbError:
		return "db error"
	case IoError:
		return "io error"
	case IllegalArgumentError:
		return "illegal argument"
	case TypeMismatchError:
		return "type mismatch"
	case MalformedDataError:
		return "malformed data"
	case NoSuchFieldError:
		return "no such field"
	case PoolFullError:
		return "pool full"
	default:
		return "unknown error"
	}
}

// GoDBError is the single error type this package raises. Callers that
// need to distinguish a deadlock/abort from any other failure should check
// Code == TransactionAbortedError (or use IsTransactionAborted).
type GoDBError struct {
	Code ErrorCode
	Msg  string
}

func (e GoDBError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func newErr(code ErrorCode, format string, args ...any) error {
	return GoDBError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// IsTransactionAborted reports whether err is a GoDBError carrying
// TransactionAbortedError.
func IsTransactionAborted(err error) bool {
	var ge GoDBError
	if e, ok := err.(GoDBError); ok {
		ge = e
		return ge.Code == TransactionAbortedError
	}
	return false
}

// RWPerm is the permission requested when reading or locking a page.
type RWPerm int

const (
	ReadPerm RWPerm = iota
	WritePerm
)

func (p RWPerm) String() string {
	if p == WritePerm {
		return "write"
	}
	return "read"
}

// Page is the unit of disk I/O and caching the buffer pool manages. There
// is a single implementation, heapPage, but the interface keeps the buffer
// pool decoupled from storage-layout details.
type Page interface {
	ID() PageId
	// IsDirty reports whether the page has unflushed writes and, if so,
	// the transaction that made them.
	IsDirty() (TransactionID, bool)
	SetDirty(tid TransactionID, dirty bool)
	// GetPageData serializes the page to exactly PageSize bytes.
	GetPageData() ([]byte, error)
}

// DBFile is the persistent-storage contract a Catalog resolves a tableId
// to; HeapFile is the only implementation required by this spec.
type DBFile interface {
	readPage(pageNo int) (Page, error)
	writePage(p Page) error
	NumPages() int
	insertTuple(tid TransactionID, t *Tuple) ([]Page, error)
	deleteTuple(tid TransactionID, t *Tuple) ([]Page, error)
	Iterator(tid TransactionID) (func() (*Tuple, error), error)
	Descriptor() *TupleDesc
	ID() int64
	pageKey(pageNo int) any
}

// Operator is the pull-based iterator protocol every query-execution node
// implements: Open/Close bracket a scan, HasNext/Next pull tuples one at a
// time, and Rewind resets to the start of the stream.
type Operator interface {
	Open(tid TransactionID) error
	Close() error
	HasNext() (bool, error)
	Next() (*Tuple, error)
	Rewind() error
	Descriptor() *TupleDesc
	// GetChildren returns this operator's child operators, in order. A
	// leaf operator (e.g. SeqScan) returns nil.
	GetChildren() []Operator
	// SetChildren replaces this operator's children. Implementations that
	// take a fixed arity panic if given the wrong number of children.
	SetChildren(children []Operator)
}
