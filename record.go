package codec

import (
	"bytes"
	"io"
)

// countingReader tracks the total number of bytes read from r, so that
// after decoding one pickle stream out of a buffer holding two concatenated
// streams, the exact byte offset where the first stream ended (consumed
// minus whatever the Decoder's bufio.Reader still has buffered but unread)
// can be recovered.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// DecodeZODBRecord splits data into the two back-to-back pickle streams a
// ZODB record is made of — a (module, classname) class-identity pickle
// followed by a state pickle — and returns a *Record, with known types
// recognized and BTree-shaped state flattened.
func DecodeZODBRecord(data []byte) (*Record, error) {
	cr := &countingReader{r: bytes.NewReader(data)}
	classDec := NewDecoder(cr)
	classVal, err := classDec.Decode()
	if err != nil {
		return nil, err
	}
	cls, err := classTupleToClass(classVal)
	if err != nil {
		return nil, err
	}

	consumed := int(cr.n) - classDec.Buffered()
	if consumed < 0 || consumed > len(data) {
		return nil, &BadRecordError{Reason: "class pickle consumed past end of record"}
	}

	stateDec := NewDecoder(bytes.NewReader(data[consumed:]))
	rawState, err := stateDec.Decode()
	if err != nil {
		return nil, err
	}

	state, err := recognizeAt(rawState, defaultMaxDepth)
	if err != nil {
		return nil, err
	}
	if flat, ok := FlattenBTreeState(cls, state); ok {
		state = flat
	}

	return &Record{Class: cls, State: state}, nil
}

// classTupleToClass converts the first pickle's decoded value — a 2-tuple
// of (module, classname) strings, the shape ZODB's storage layer actually
// writes — into a Class. A GLOBAL-pickled Class value is also accepted,
// since nothing in the framing contract forbids it.
func classTupleToClass(v interface{}) (Class, error) {
	switch x := v.(type) {
	case Tuple:
		if len(x) != 2 {
			return Class{}, &BadRecordError{Reason: "class pickle is not a 2-tuple"}
		}
		mod, ok1 := x[0].(string)
		name, ok2 := x[1].(string)
		if !ok1 || !ok2 {
			return Class{}, &BadRecordError{Reason: "class pickle tuple elements are not strings"}
		}
		return Class{Module: mod, Name: name}, nil
	case Class:
		return x, nil
	}
	return Class{}, &BadRecordError{Reason: "class pickle did not yield (module, classname)"}
}

// EncodeZODBRecord is DecodeZODBRecord's inverse: it emits the class
// identity as its own GLOBAL-opcode pickle (matching what ZODB itself
// writes, and what a real FileStorage record looks like on disk) followed
// immediately by the state's own pickle, after applying the BTree
// unflattener and Unrecognize to the state.
func EncodeZODBRecord(rec *Record) ([]byte, error) {
	state := rec.State
	if unflat, ok := UnflattenBTreeState(rec.Class, state); ok {
		state = unflat
	}
	state, err := unrecognizeAt(state, defaultMaxDepth)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(rec.Class); err != nil {
		return nil, err
	}
	if err := NewEncoder(&buf).Encode(state); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
