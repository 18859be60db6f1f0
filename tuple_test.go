package heapengine

import (
	"bytes"
	"testing"

	"github.com/d4l3k/messagediff"
)

func sampleDesc() *TupleDesc {
	return &TupleDesc{Fields: []FieldType{
		{Fname: "id", Ftype: IntType},
		{Fname: "name", Ftype: StringType},
	}}
}

func TestTupleDescEquals(t *testing.T) {
	a := sampleDesc()
	b := &TupleDesc{Fields: []FieldType{
		{Fname: "differently_named_id", Ftype: IntType},
		{Fname: "differently_named_name", Ftype: StringType},
	}}
	if !a.Equals(b) {
		t.Fatalf("schemas with matching field types but different names should be equal")
	}

	c := &TupleDesc{Fields: []FieldType{{Fname: "id", Ftype: IntType}}}
	if a.Equals(c) {
		t.Fatalf("schemas of different arity must not be equal")
	}
}

func TestTupleWriteReadRoundTrip(t *testing.T) {
	desc := sampleDesc()
	tup := &Tuple{Desc: *desc, Fields: []Field{IntField{Value: 42}, StringField{Value: "hello"}}}

	var buf bytes.Buffer
	if err := tup.writeTo(&buf); err != nil {
		t.Fatalf("writeTo: %v", err)
	}

	got, err := readTupleFrom(&buf, desc)
	if err != nil {
		t.Fatalf("readTupleFrom: %v", err)
	}
	if !tup.Equals(got) {
		diff, _ := messagediff.PrettyDiff(tup, got)
		t.Fatalf("round trip mismatch:\n%s", diff)
	}
}

func TestFindField(t *testing.T) {
	desc := sampleDesc()
	idx, err := desc.FindField("name")
	if err != nil || idx != 1 {
		t.Fatalf("FindField(name) = %d, %v; want 1, nil", idx, err)
	}
	if _, err := desc.FindField("missing"); err == nil {
		t.Fatalf("expected error for missing field")
	}
}
