package codec

import (
	"bytes"
	"testing"
)

func makeZODBRecord(t *testing.T, module, class string, state interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(Tuple{module, class}); err != nil {
		t.Fatalf("encoding class pickle failed: %s", err)
	}
	if err := NewEncoder(&buf).Encode(state); err != nil {
		t.Fatalf("encoding state pickle failed: %s", err)
	}
	return buf.Bytes()
}

func TestDecodeZODBRecordSimpleObject(t *testing.T) {
	state := NewDict()
	state.Set("title", "Hello")
	state.Set("count", int64(42))
	record := makeZODBRecord(t, "myapp.models", "Document", state)

	rec, err := DecodeZODBRecord(record)
	if err != nil {
		t.Fatalf("DecodeZODBRecord failed: %s", err)
	}
	if rec.Class.Module != "myapp.models" || rec.Class.Name != "Document" {
		t.Errorf("DecodeZODBRecord.Class = %#v", rec.Class)
	}
	d, ok := rec.State.(Dict)
	if !ok {
		t.Fatalf("DecodeZODBRecord.State = %T; want Dict", rec.State)
	}
	if d.Get("title") != "Hello" || d.Get("count") != int64(42) {
		t.Errorf("DecodeZODBRecord.State = %#v", d)
	}
}

func TestDecodeZODBRecordEmptyState(t *testing.T) {
	record := makeZODBRecord(t, "myapp", "Empty", NewDict())
	rec, err := DecodeZODBRecord(record)
	if err != nil {
		t.Fatalf("DecodeZODBRecord failed: %s", err)
	}
	d, ok := rec.State.(Dict)
	if !ok || d.Len() != 0 {
		t.Errorf("DecodeZODBRecord(empty state).State = %#v", rec.State)
	}
}

func TestDecodeZODBRecordBytesInState(t *testing.T) {
	state := NewDict()
	state.Set("data", Bytes("\x00\x01\x02\xff"))
	state.Set("name", "test")
	record := makeZODBRecord(t, "myapp", "BlobHolder", state)

	rec, err := DecodeZODBRecord(record)
	if err != nil {
		t.Fatalf("DecodeZODBRecord failed: %s", err)
	}
	d := rec.State.(Dict)
	if d.Get("data") != Bytes("\x00\x01\x02\xff") {
		t.Errorf("DecodeZODBRecord(bytes state).State[data] = %#v", d.Get("data"))
	}
}

func TestDecodeZODBRecordTupleState(t *testing.T) {
	state := Tuple{int64(2025), int64(1), int64(1)}
	record := makeZODBRecord(t, "DateTime.DateTime", "DateTime", state)

	rec, err := DecodeZODBRecord(record)
	if err != nil {
		t.Fatalf("DecodeZODBRecord failed: %s", err)
	}
	tup, ok := rec.State.(Tuple)
	if !ok || len(tup) != 3 {
		t.Fatalf("DecodeZODBRecord(tuple state).State = %#v", rec.State)
	}
}

func TestDecodeZODBRecordNoneValuesInState(t *testing.T) {
	state := NewDict()
	state.Set("parent", nil)
	state.Set("name", "root")
	record := makeZODBRecord(t, "myapp", "Node", state)

	rec, err := DecodeZODBRecord(record)
	if err != nil {
		t.Fatalf("DecodeZODBRecord failed: %s", err)
	}
	d := rec.State.(Dict)
	if v := d.Get("parent"); v != (None{}) {
		t.Errorf("DecodeZODBRecord(none in state).State[parent] = %#v; want None{}", v)
	}
}

func TestEncodeZODBRecordRoundtrip(t *testing.T) {
	state := NewDict()
	state.Set("x", int64(1))
	state.Set("y", int64(2))
	rec := &Record{Class: Class{Module: "myapp.models", Name: "Point"}, State: state}

	data, err := EncodeZODBRecord(rec)
	if err != nil {
		t.Fatalf("EncodeZODBRecord failed: %s", err)
	}

	got, err := DecodeZODBRecord(data)
	if err != nil {
		t.Fatalf("DecodeZODBRecord(re-encoded record) failed: %s", err)
	}
	if got.Class != rec.Class {
		t.Errorf("roundtrip Class = %#v; want %#v", got.Class, rec.Class)
	}
	gotState, ok := got.State.(Dict)
	if !ok || gotState.Get("x") != int64(1) || gotState.Get("y") != int64(2) {
		t.Errorf("roundtrip State = %#v", got.State)
	}
}

func TestEncodeZODBRecordClassPickleUsesGlobal(t *testing.T) {
	rec := &Record{Class: Class{Module: "myapp.models", Name: "Document"}, State: NewDict()}

	data, err := EncodeZODBRecord(rec)
	if err != nil {
		t.Fatalf("EncodeZODBRecord failed: %s", err)
	}
	if len(data) < 3 || data[0] != opProto || data[2] != opGlobal {
		n := len(data)
		if n > 8 {
			n = 8
		}
		t.Fatalf("re-encoded class pickle does not start with PROTO+GLOBAL: % x", data[:n])
	}
}
