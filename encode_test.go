package codec

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeProtocolHeaderAndStop(t *testing.T) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(int64(1)); err != nil {
		t.Fatalf("Encode failed: %s", err)
	}
	b := buf.Bytes()
	if len(b) < 2 || b[0] != opProto || b[1] != encodeProtocol {
		t.Fatalf("encoded stream does not start with PROTO 3: % x", b)
	}
	if b[len(b)-1] != opStop {
		t.Fatalf("encoded stream does not end with STOP: % x", b)
	}
}

func TestEncodeClassMemoReusesGet(t *testing.T) {
	cls := Class{Module: "myapp.models", Name: "Widget"}
	v := Tuple{
		&Reduce{Callable: cls, Args: Tuple{int64(1)}},
		&Reduce{Callable: cls, Args: Tuple{int64(2)}},
	}

	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(v); err != nil {
		t.Fatalf("Encode failed: %s", err)
	}
	b := buf.Bytes()

	if strings.Count(string(b), "myapp.models") != 1 {
		t.Errorf("encoded stream emits the class module more than once, memoization did not kick in: % x", b)
	}
	if bytes.Count(b, []byte{opGet}) == 0 && bytes.Count(b, []byte{opBinget}) == 0 && bytes.Count(b, []byte{opLongBinget}) == 0 {
		t.Errorf("encoded stream has no GET opcode for the reused class: % x", b)
	}
}

func TestEncodeClassEmitsGlobal(t *testing.T) {
	cls := Class{Module: "myapp.models", Name: "Widget"}
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(cls); err != nil {
		t.Fatalf("Encode failed: %s", err)
	}
	b := buf.Bytes()
	if len(b) < 3 || b[0] != opProto || b[2] != opGlobal {
		t.Fatalf("encoding a bare Class did not emit GLOBAL at the expected offset: % x", b)
	}
}

func TestEncodePersistentRef(t *testing.T) {
	marker := &Reduce{Callable: Class{Module: "myapp", Name: "Thing"}}
	ref := &Ref{Oid: Bytes("\x00\x00\x00\x00\x00\x00\x00\x01")}

	cfg := &EncoderConfig{
		PersistentRef: func(v interface{}) *Ref {
			if r, ok := v.(*Reduce); ok && r == marker {
				return ref
			}
			return nil
		},
	}

	var buf bytes.Buffer
	if err := NewEncoderWithConfig(&buf, cfg).Encode(marker); err != nil {
		t.Fatalf("Encode failed: %s", err)
	}
	b := buf.Bytes()
	if bytes.IndexByte(b, opBinpersid) == -1 && bytes.IndexByte(b, opPersid) == -1 {
		t.Errorf("encoded stream with PersistentRef hook has no PERSID/BINPERSID opcode: % x", b)
	}
	// the Reduce's own class name must not appear, since the hook should
	// have short-circuited encoding of the underlying object.
	if bytes.Contains(b, []byte("Thing")) {
		t.Errorf("encoded stream leaked the underlying object despite PersistentRef: % x", b)
	}
}

func TestEncodeDecodeAgreeOnClassMemoRoundtrip(t *testing.T) {
	cls := Class{Module: "myapp.models", Name: "Widget"}
	v := Tuple{
		&Reduce{Callable: cls, Args: Tuple{int64(1)}},
		&Reduce{Callable: cls, Args: Tuple{int64(2)}},
	}

	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(v); err != nil {
		t.Fatalf("Encode failed: %s", err)
	}
	got, err := NewDecoder(&buf).Decode()
	if err != nil {
		t.Fatalf("Decode failed: %s", err)
	}
	tup, ok := got.(Tuple)
	if !ok || len(tup) != 2 {
		t.Fatalf("decoded %#v; want 2-tuple", got)
	}
	r0, ok0 := tup[0].(*Reduce)
	r1, ok1 := tup[1].(*Reduce)
	if !ok0 || !ok1 {
		t.Fatalf("decoded tuple elements are not *Reduce: %#v", tup)
	}
	if r0.Callable != cls || r1.Callable != cls {
		t.Errorf("decoded classes = %#v, %#v; want both %#v", r0.Callable, r1.Callable, cls)
	}
}
