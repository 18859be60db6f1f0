package heapengine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Field is a single typed tuple value. The two supported variants are
// IntField and StringField; fields are immutable and compared by value.
type Field interface {
	// EvalPred compares the receiver to v under op.
	EvalPred(v Field, op BoolOp) bool
	Type() DBType
}

// IntField holds a 32-bit signed integer value.
type IntField struct {
	Value int32
}

func (f IntField) Type() DBType { return IntType }

func (f IntField) EvalPred(v Field, op BoolOp) bool {
	other, ok := v.(IntField)
	if !ok {
		return false
	}
	switch op {
	case OpEq:
		return f.Value == other.Value
	case OpNeq:
		return f.Value != other.Value
	case OpGt:
		return f.Value > other.Value
	case OpGe:
		return f.Value >= other.Value
	case OpLt:
		return f.Value < other.Value
	case OpLe:
		return f.Value <= other.Value
	default:
		return false
	}
}

func (f IntField) String() string { return strconv.FormatInt(int64(f.Value), 10) }

// StringField holds a string value no longer than StringLength bytes.
type StringField struct {
	Value string
}

func (f StringField) Type() DBType { return StringType }

func (f StringField) EvalPred(v Field, op BoolOp) bool {
	other, ok := v.(StringField)
	if !ok {
		return false
	}
	switch op {
	case OpEq:
		return f.Value == other.Value
	case OpNeq:
		return f.Value != other.Value
	case OpGt:
		return f.Value > other.Value
	case OpGe:
		return f.Value >= other.Value
	case OpLt:
		return f.Value < other.Value
	case OpLe:
		return f.Value <= other.Value
	default:
		return false
	}
}

func (f StringField) String() string { return f.Value }

// FieldType is one (fieldType, optional fieldName) pair in a TupleDesc.
type FieldType struct {
	Fname string
	Ftype DBType
}

// TupleDesc is the "type" of a tuple: an ordered sequence of FieldTypes.
// Two TupleDescs are equal iff their field-type sequences are equal; names
// are advisory.
type TupleDesc struct {
	Fields []FieldType
}

// Equals reports whether d and other have the same field-type sequence.
func (d *TupleDesc) Equals(other *TupleDesc) bool {
	if len(d.Fields) != len(other.Fields) {
		return false
	}
	for i := range d.Fields {
		if d.Fields[i].Ftype != other.Fields[i].Ftype {
			return false
		}
	}
	return true
}

// Copy returns a deep copy of d.
func (d *TupleDesc) Copy() *TupleDesc {
	fields := make([]FieldType, len(d.Fields))
	copy(fields, d.Fields)
	return &TupleDesc{Fields: fields}
}

// FindField returns the index of the field named name, or an error if it
// does not appear exactly once.
func (d *TupleDesc) FindField(name string) (int, error) {
	found := -1
	for i, f := range d.Fields {
		if f.Fname == name {
			if found != -1 {
				return -1, newErr(NoSuchFieldError, "field %q is ambiguous", name)
			}
			found = i
		}
	}
	if found == -1 {
		return -1, newErr(NoSuchFieldError, "field %q not found", name)
	}
	return found, nil
}

// recordBytes is the fixed number of bytes a tuple of this TupleDesc
// occupies on a page.
func (d *TupleDesc) recordBytes() int {
	n := 0
	for _, f := range d.Fields {
		switch f.Ftype {
		case IntType:
			n += 4
		case StringType:
			n += StringLength
		}
	}
	return n
}

// PageId uniquely identifies a page: the table it belongs to and its
// offset within that table's file.
type PageId struct {
	TableId int64
	PageNo  int
}

// RecordId uniquely identifies a tuple's physical location: a page plus a
// slot index within that page.
type RecordId struct {
	PID  PageId
	Slot int
}

// Tuple is a schema plus an array of field values of matching arity, plus
// an optional RecordId recording where it was read from.
type Tuple struct {
	Desc   TupleDesc
	Fields []Field
	Rid    *RecordId
}

// Equals reports whether t and other have the same schema and the same
// field values. If both have a RecordId, the RecordIds must also match.
func (t *Tuple) Equals(other *Tuple) bool {
	if t == nil || other == nil {
		return t == other
	}
	if !t.Desc.Equals(&other.Desc) || len(t.Fields) != len(other.Fields) {
		return false
	}
	for i := range t.Fields {
		if t.Fields[i] != other.Fields[i] {
			return false
		}
	}
	if t.Rid != nil && other.Rid != nil {
		return *t.Rid == *other.Rid
	}
	return true
}

func writeIntField(b *bytes.Buffer, f IntField) error {
	return binary.Write(b, binary.LittleEndian, f.Value)
}

func writeStringField(b *bytes.Buffer, f StringField) error {
	padded := make([]byte, StringLength)
	copy(padded, []byte(f.Value))
	_, err := b.Write(padded)
	return err
}

// writeTo serializes t's fields, in schema order, into b.
func (t *Tuple) writeTo(b *bytes.Buffer) error {
	for i, field := range t.Fields {
		switch v := field.(type) {
		case IntField:
			if err := writeIntField(b, v); err != nil {
				return err
			}
		case StringField:
			if err := writeStringField(b, v); err != nil {
				return err
			}
		default:
			return newErr(TypeMismatchError, "unsupported field type %T at index %d", field, i)
		}
	}
	return nil
}

func readIntField(b *bytes.Buffer) (IntField, error) {
	var v int32
	if err := binary.Read(b, binary.LittleEndian, &v); err != nil {
		return IntField{}, err
	}
	return IntField{Value: v}, nil
}

func readStringField(b *bytes.Buffer) (StringField, error) {
	raw := make([]byte, StringLength)
	if _, err := b.Read(raw); err != nil {
		return StringField{}, err
	}
	return StringField{Value: strings.TrimRight(string(raw), "\x00")}, nil
}

// readTupleFrom deserializes a tuple of the given TupleDesc from b.
func readTupleFrom(b *bytes.Buffer, desc *TupleDesc) (*Tuple, error) {
	fields := make([]Field, len(desc.Fields))
	for i, ft := range desc.Fields {
		switch ft.Ftype {
		case IntType:
			f, err := readIntField(b)
			if err != nil {
				return nil, err
			}
			fields[i] = f
		case StringType:
			f, err := readStringField(b)
			if err != nil {
				return nil, err
			}
			fields[i] = f
		}
	}
	return &Tuple{Desc: *desc, Fields: fields}, nil
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		parts[i] = fmt.Sprint(f)
	}
	return strings.Join(parts, ", ")
}
