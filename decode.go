package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
)

// Decoder is a decoder for pickle streams.
//
// Decoder never imports or instantiates anything: REDUCE/NEWOBJ/BUILD/INST
// results are represented as Reduce values, never executed.
type Decoder struct {
	r      *bufio.Reader
	config *DecoderConfig

	stack   []interface{}
	marks   []int  // offsets into stack, one per open MARK
	memo    []memoSlot

	// a reusable buffer that can be used by the various decoding functions;
	// functions using this should call buf.Reset to clear old contents
	buf bytes.Buffer

	// reusable buffer for readLine
	line []byte

	insn int
}

// memoSlot is one entry of the memo table. building is set when a Reduce
// is stored here and cleared only when a BUILD is applied to it; APPENDS
// and SETITEMS leave it set. A GET that resolves to a slot with
// building == true is reported as a reference cycle (CyclicError).
type memoSlot struct {
	set      bool
	value    interface{}
	building bool
}

// DecoderConfig allows to tune Decoder.
type DecoderConfig struct {
	// PersistentLoad, if !nil, will be used by decoder to handle persistent references.
	//
	// Whenever the decoder finds a persistent reference in the pickle stream
	// it will call PersistentLoad. If PersistentLoad returns !nil object
	// without error, the decoder will use that object instead of Ref in
	// the resulting decoded value.
	PersistentLoad func(ref Ref) (interface{}, error)

	// MaxDepth is not read by the Decoder or by any post-processing pass:
	// Recognize and Unrecognize take their own maxDepth argument, and the
	// JSON writer and reader always use the package default (512).
	MaxDepth int
}

const defaultMaxDepth = 512

// NewDecoder constructs a new Decoder which will decode the pickle stream in r.
func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderWithConfig(r, &DecoderConfig{})
}

// NewDecoderWithConfig is similar to NewDecoder, but allows specifying decoder configuration.
func NewDecoderWithConfig(r io.Reader, config *DecoderConfig) *Decoder {
	return &Decoder{
		r:      bufio.NewReader(r),
		config: config,
		stack:  make([]interface{}, 0, 16),
	}
}

// Buffered returns the number of bytes the Decoder has already read from
// its underlying reader but not yet consumed decoding the last value —
// record.go's two-pickle framing uses this to find the exact byte offset
// where one pickle stream ends and the next begins.
func (d *Decoder) Buffered() int {
	return d.r.Buffered()
}

// Decode decodes one pickle stream and returns the result or an error.
func (d *Decoder) Decode() (interface{}, error) {
loop:
	for {
		key, err := d.r.ReadByte()
		if err != nil {
			if err == io.EOF && d.insn != 0 {
				err = &TruncatedError{Reason: "stream ended before STOP"}
			}
			return nil, err
		}
		d.insn++

		switch key {
		case opMark:
			d.pushMark()
		case opStop:
			break loop
		case opPop:
			err = d.opPopTop()
		case opPopMark:
			err = d.opPopMark()
		case opDup:
			err = d.opDup()
		case opFloat:
			err = d.loadFloat()
		case opInt:
			err = d.loadInt()
		case opBinint:
			err = d.loadBinInt()
		case opBinint1:
			err = d.loadBinInt1()
		case opLong:
			err = d.loadLong()
		case opBinint2:
			err = d.loadBinInt2()
		case opNone:
			d.push(None{})
		case opPersid:
			err = d.loadPersid()
		case opBinpersid:
			err = d.loadBinPersid()
		case opReduce:
			err = d.reduce()
		case opString:
			err = d.loadString()
		case opBinstring:
			err = d.loadBinString()
		case opShortBinstring:
			err = d.loadShortBinString()
		case opUnicode:
			err = d.loadUnicode()
		case opBinunicode:
			err = d.loadCountedString(4, true)
		case opBinunicode8:
			err = d.loadCountedString(8, true)
		case opBinbytes:
			err = d.loadCountedBytes(4)
		case opBinbytes8:
			err = d.loadCountedBytes(8)
		case opShortBinbytes:
			err = d.loadShortBinBytes()
		case opBytearray8:
			err = d.loadCountedBytes(8)
		case opAppend:
			err = d.loadAppend()
		case opBuild:
			err = d.build()
		case opGlobal:
			err = d.global()
		case opDict:
			err = d.loadDict()
		case opEmptyDict:
			d.push(NewDict())
		case opEmptySet:
			d.push(Set{})
		case opFrozenset:
			err = d.loadFrozenset()
		case opAdditems:
			err = d.loadAdditems()
		case opAppends:
			err = d.loadAppends()
		case opGet:
			err = d.get()
		case opBinget:
			err = d.binGet()
		case opInst:
			err = d.inst()
		case opLong1:
			err = d.loadLong1()
		case opLong4:
			err = d.loadLong4()
		case opNewfalse:
			d.push(false)
		case opNewtrue:
			d.push(true)
		case opLongBinget:
			err = d.longBinGet()
		case opList:
			err = d.loadList()
		case opEmptyList:
			d.push([]interface{}{})
		case opObj:
			err = d.obj()
		case opNewobj:
			err = d.newobj()
		case opNewobjEx:
			err = d.newobjEx()
		case opPut:
			err = d.loadPut()
		case opBinput:
			err = d.binPut()
		case opLongBinput:
			err = d.longBinPut()
		case opSetitem:
			err = d.loadSetItem()
		case opTuple:
			err = d.loadTuple()
		case opTuple1:
			err = d.loadTupleN(1)
		case opTuple2:
			err = d.loadTupleN(2)
		case opTuple3:
			err = d.loadTupleN(3)
		case opEmptyTuple:
			d.push(Tuple{})
		case opSetitems:
			err = d.loadSetItems()
		case opBinfloat:
			err = d.binFloat()
		case opFrame:
			err = d.loadFrame()
		case opShortBinUnicode:
			err = d.loadCountedString(1, false)
		case opStackGlobal:
			err = d.stackGlobal()
		case opMemoize:
			err = d.loadMemoize()
		case opProto:
			var v byte
			v, err = d.r.ReadByte()
			if err == nil && v > 5 {
				err = &UnsupportedProtocolError{Protocol: int(v)}
			}
		case opExt1, opExt2, opExt4, opNextBuffer, opReadonlyBuf:
			return nil, &BadOpcodeError{key, d.insn}

		default:
			return nil, &BadOpcodeError{key, d.insn}
		}

		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				err = &TruncatedError{Reason: fmt.Sprintf("opcode %q at instruction %d", key, d.insn)}
			}
			return nil, err
		}
	}

	v, err := d.pop()
	if err != nil {
		return nil, &BadStopError{Reason: "empty stack at STOP"}
	}
	if len(d.stack) != 0 {
		return nil, &BadStopError{Reason: "extra values left on stack at STOP"}
	}
	return v, nil
}

// readLine reads next line from pickle stream, dropping the trailing '\n'.
// returned line is valid only till next call to readLine.
func (d *Decoder) readLine() ([]byte, error) {
	var (
		data     []byte
		isPrefix = true
		err      error
	)
	d.line = d.line[:0]
	for isPrefix {
		data, isPrefix, err = d.r.ReadLine()
		if err != nil {
			return d.line, err
		}
		d.line = append(d.line, data...)
	}
	return d.line, nil
}

func (d *Decoder) pushMark() {
	d.marks = append(d.marks, len(d.stack))
}

// marker pops and returns the offset of the topmost marker.
func (d *Decoder) marker() (int, error) {
	n := len(d.marks)
	if n == 0 {
		return 0, &StackUnderflowError{Op: opMark}
	}
	k := d.marks[n-1]
	d.marks = d.marks[:n-1]
	return k, nil
}

func (d *Decoder) push(v interface{}) {
	d.stack = append(d.stack, v)
}

func (d *Decoder) pop() (interface{}, error) {
	n := len(d.stack) - 1
	if n < 0 {
		return nil, &StackUnderflowError{}
	}
	v := d.stack[n]
	d.stack = d.stack[:n]
	return v, nil
}

func (d *Decoder) xpop() interface{} {
	v, err := d.pop()
	if err != nil {
		panic(err)
	}
	return v
}

func (d *Decoder) opPopTop() error {
	_, err := d.pop()
	return err
}

func (d *Decoder) opPopMark() error {
	k, err := d.marker()
	if err != nil {
		return err
	}
	d.stack = d.stack[:k]
	return nil
}

func (d *Decoder) opDup() error {
	if len(d.stack) < 1 {
		return &StackUnderflowError{Op: opDup}
	}
	d.push(d.stack[len(d.stack)-1])
	return nil
}

func (d *Decoder) loadFloat() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(string(line), 64)
	if err != nil {
		return err
	}
	d.push(v)
	return nil
}

func (d *Decoder) loadInt() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}

	var val interface{}
	switch string(line) {
	case opFalse[1:3]:
		val = false
	case opTrue[1:3]:
		val = true
	default:
		i, err := strconv.ParseInt(string(line), 10, 64)
		if err != nil {
			return err
		}
		val = i
	}
	d.push(val)
	return nil
}

func (d *Decoder) loadBinInt() error {
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return err
	}
	d.push(int64(int32(binary.LittleEndian.Uint32(b[:]))))
	return nil
}

func (d *Decoder) loadBinInt1() error {
	b, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	d.push(int64(b))
	return nil
}

func (d *Decoder) loadBinInt2() error {
	var b [2]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return err
	}
	d.push(int64(binary.LittleEndian.Uint16(b[:])))
	return nil
}

func (d *Decoder) loadLong() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	l := len(line)
	if l < 1 || line[l-1] != 'L' {
		return io.ErrUnexpectedEOF
	}
	v := new(big.Int)
	if _, ok := v.SetString(string(line[:l-1]), 10); !ok {
		return fmt.Errorf("pickle: loadLong: invalid string")
	}
	d.push(v)
	return nil
}

func (d *Decoder) loadLong1() error {
	n, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	return d.loadLongN(int(n))
}

func (d *Decoder) loadLong4() error {
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return err
	}
	n := int32(binary.LittleEndian.Uint32(b[:]))
	if n < 0 {
		return fmt.Errorf("pickle: loadLong4: negative length")
	}
	return d.loadLongN(int(n))
}

func (d *Decoder) loadLongN(n int) error {
	raw := make([]byte, n)
	if _, err := io.ReadFull(d.r, raw); err != nil {
		return err
	}
	v, err := decodeLong(string(raw))
	if err != nil {
		return err
	}
	d.push(v)
	return nil
}

// Push a persistent object id (protocol 0, textual)
func (d *Decoder) loadPersid() error {
	pid, err := d.readLine()
	if err != nil {
		return err
	}
	return d.handleRef(refFromPid(string(pid)))
}

// Push a persistent object id taken from the stack
func (d *Decoder) loadBinPersid() error {
	pid, err := d.pop()
	if err != nil {
		return err
	}
	return d.handleRef(refFromPid(pid))
}

// refFromPid converts whatever a BINPERSID/PERSID opcode put on the stack
// (an oid as a string or bytes, taken as the raw oid bytes, or an
// (oid, class) tuple) into a Ref.
func refFromPid(pid interface{}) Ref {
	switch v := pid.(type) {
	case string:
		return Ref{Oid: Bytes(v)}
	case Bytes:
		return Ref{Oid: v}
	case Tuple:
		if len(v) == 2 {
			oid, oidOK := asOidBytes(v[0])
			cls, clsOK := asClassHint(v[1])
			if oidOK {
				return Ref{Oid: oid, ClassHint: cls, HasClass: clsOK}
			}
		}
	}
	// fall back: stash whatever it was as the oid's string form
	return Ref{Oid: Bytes(fmt.Sprintf("%v", pid))}
}

func asOidBytes(v interface{}) (Bytes, bool) {
	switch v := v.(type) {
	case Bytes:
		return v, true
	case string:
		return Bytes(v), true
	}
	return "", false
}

func asClassHint(v interface{}) (string, bool) {
	switch v := v.(type) {
	case Class:
		return v.Module + "." + v.Name, true
	case string:
		return v, true
	case Tuple:
		if len(v) == 2 {
			if m, ok := v[0].(string); ok {
				if n, ok := v[1].(string); ok {
					return m + "." + n, true
				}
			}
		}
	}
	return "", false
}

func (d *Decoder) handleRef(ref Ref) error {
	if load := d.config.PersistentLoad; load != nil {
		obj, err := load(ref)
		if err != nil {
			return fmt.Errorf("pickle: handleRef: %s", err)
		}
		if obj == nil {
			obj = ref
		}
		d.push(obj)
	} else {
		d.push(ref)
	}
	return nil
}

func (d *Decoder) reduce() error {
	if len(d.stack) < 2 {
		return &StackUnderflowError{Op: opReduce}
	}
	xargs := d.xpop()
	xcallable := d.xpop()
	args, ok := xargs.(Tuple)
	if !ok {
		return fmt.Errorf("pickle: reduce: invalid args: %T", xargs)
	}
	class, ok := xcallable.(Class)
	if !ok {
		return fmt.Errorf("pickle: reduce: invalid callable: %T", xcallable)
	}
	d.push(&Reduce{Callable: class, Args: args})
	return nil
}

func (d *Decoder) newobj() error {
	if len(d.stack) < 2 {
		return &StackUnderflowError{Op: opNewobj}
	}
	xargs := d.xpop()
	xcallable := d.xpop()
	args, ok := xargs.(Tuple)
	if !ok {
		return fmt.Errorf("pickle: newobj: invalid args: %T", xargs)
	}
	class, ok := xcallable.(Class)
	if !ok {
		return fmt.Errorf("pickle: newobj: invalid class: %T", xcallable)
	}
	d.push(&Reduce{Callable: class, Args: args})
	return nil
}

func (d *Decoder) newobjEx() error {
	if len(d.stack) < 3 {
		return &StackUnderflowError{Op: opNewobjEx}
	}
	xkwargs := d.xpop()
	xargs := d.xpop()
	xcallable := d.xpop()
	args, ok := xargs.(Tuple)
	if !ok {
		return fmt.Errorf("pickle: newobjex: invalid args: %T", xargs)
	}
	class, ok := xcallable.(Class)
	if !ok {
		return fmt.Errorf("pickle: newobjex: invalid class: %T", xcallable)
	}
	r := &Reduce{Callable: class, Args: args}
	if kw, ok := xkwargs.(Dict); ok && kw.Len() > 0 {
		r.HasDictItems = true
		r.DictItems = kw
	}
	d.push(r)
	return nil
}

// Push a string (protocol 0 STRING, single- or double-quoted, escaped)
func (d *Decoder) loadString() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	if len(line) < 2 {
		return io.ErrUnexpectedEOF
	}
	var delim byte
	switch line[0] {
	case '\'':
		delim = '\''
	case '"':
		delim = '"'
	default:
		return fmt.Errorf("invalid string delimiter: %c", line[0])
	}
	if line[len(line)-1] != delim {
		return io.ErrUnexpectedEOF
	}
	s, err := pydecodeStringEscape(string(line[1 : len(line)-1]))
	if err != nil {
		return err
	}
	d.push(s)
	return nil
}

func (d *Decoder) loadBinString() error {
	return d.loadCountedString(4, true)
}

func (d *Decoder) loadShortBinString() error {
	return d.loadCountedString(1, false)
}

func (d *Decoder) loadShortBinBytes() error {
	return d.loadCountedBytes(1)
}

// loadCountedString reads a length-prefixed string; width is the length
// prefix's byte width (1, 4 or 8). The bool parameter is ignored; every
// counted string is pushed as a Go string.
func (d *Decoder) loadCountedString(width int, _ bool) error {
	n, err := d.readCount(width)
	if err != nil {
		return err
	}
	d.buf.Reset()
	d.buf.Grow(int(n))
	if _, err := io.CopyN(&d.buf, d.r, n); err != nil {
		return err
	}
	d.push(d.buf.String())
	return nil
}

func (d *Decoder) loadCountedBytes(width int) error {
	n, err := d.readCount(width)
	if err != nil {
		return err
	}
	d.buf.Reset()
	d.buf.Grow(int(n))
	if _, err := io.CopyN(&d.buf, d.r, n); err != nil {
		return err
	}
	d.push(Bytes(d.buf.String()))
	return nil
}

func (d *Decoder) readCount(width int) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:width]); err != nil {
		return 0, err
	}
	switch width {
	case 1:
		return int64(b[0]), nil
	case 4:
		return int64(binary.LittleEndian.Uint32(b[:4])), nil
	case 8:
		return int64(binary.LittleEndian.Uint64(b[:8])), nil
	}
	return 0, fmt.Errorf("pickle: readCount: bad width %d", width)
}

func (d *Decoder) loadUnicode() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	sline := string(line)

	d.buf.Reset()
	d.buf.Grow(len(line))

	for len(sline) > 0 {
		for len(sline) > 0 && sline[0] == '\'' {
			d.buf.WriteByte(sline[0])
			sline = sline[1:]
		}
		if len(sline) == 0 {
			break
		}
		r, _, rest, err := unquoteChar(sline, '\'')
		if err != nil {
			return err
		}
		d.buf.WriteRune(r)
		sline = rest
	}
	d.push(d.buf.String())
	return nil
}

func (d *Decoder) loadAppend() error {
	if len(d.stack) < 2 {
		return &StackUnderflowError{Op: opAppend}
	}
	v := d.xpop()
	l := d.stack[len(d.stack)-1]
	switch l := l.(type) {
	case []interface{}:
		d.stack[len(d.stack)-1] = append(l, v)
	default:
		return fmt.Errorf("pickle: loadAppend: expected a list, got %T", l)
	}
	return nil
}

// build applies the state on the stack to the Reduce below it, via BUILD.
func (d *Decoder) build() error {
	if len(d.stack) < 2 {
		return &StackUnderflowError{Op: opBuild}
	}
	state := d.xpop()
	target := d.stack[len(d.stack)-1]
	r, ok := target.(*Reduce)
	if !ok {
		return fmt.Errorf("pickle: build: expected a Reduce, got %T", target)
	}
	r.HasState = true
	r.State = state
	d.clearBuilding(r)
	return nil
}

// clearBuilding marks r as fully constructed in the memo table. A Reduce is
// recorded as "building" from the moment it is memoized (PUT/BINPUT/MEMOIZE)
// until its BUILD is applied; a GET in between those two points is a genuine
// pickle reference cycle (CyclicError), but once BUILD completes, later GETs
// of the same memo slot are an ordinary shared reference.
func (d *Decoder) clearBuilding(r *Reduce) {
	for i := range d.memo {
		if d.memo[i].set && d.memo[i].building {
			if rv, ok := d.memo[i].value.(*Reduce); ok && rv == r {
				d.memo[i].building = false
			}
		}
	}
}

func (d *Decoder) global() error {
	module, err := d.readLine()
	if err != nil {
		return err
	}
	name, err := d.readLine()
	if err != nil {
		return err
	}
	d.push(Class{Module: string(module), Name: string(name)})
	return nil
}

func (d *Decoder) stackGlobal() error {
	if len(d.stack) < 2 {
		return &StackUnderflowError{Op: opStackGlobal}
	}
	xname := d.xpop()
	xmodule := d.xpop()
	name, ok := xname.(string)
	if !ok {
		return fmt.Errorf("pickle: stackGlobal: invalid name: %T", xname)
	}
	module, ok := xmodule.(string)
	if !ok {
		return fmt.Errorf("pickle: stackGlobal: invalid module: %T", xmodule)
	}
	d.push(Class{Module: module, Name: name})
	return nil
}

func (d *Decoder) loadDict() error {
	k, err := d.marker()
	if err != nil {
		return err
	}
	items := d.stack[k:]
	if len(items)%2 != 0 {
		return fmt.Errorf("pickle: loadDict: odd # of elements")
	}
	m := NewDictWithSizeHint(len(items) / 2)
	for i := 0; i < len(items); i += 2 {
		m.Set(items[i], items[i+1])
	}
	d.stack = append(d.stack[:k], m)
	return nil
}

func (d *Decoder) loadFrozenset() error {
	k, err := d.marker()
	if err != nil {
		return err
	}
	v := append(FrozenSet{}, d.stack[k:]...)
	d.stack = append(d.stack[:k], v)
	return nil
}

// ADDITEMS extends a set (or frozenset under construction) already on the
// stack below the marker.
func (d *Decoder) loadAdditems() error {
	k, err := d.marker()
	if err != nil {
		return err
	}
	if k < 1 {
		return &StackUnderflowError{Op: opAdditems}
	}
	target := d.stack[k-1]
	items := d.stack[k:]
	switch s := target.(type) {
	case Set:
		s = append(s, items...)
		d.stack = append(d.stack[:k-1], s)
	case FrozenSet:
		s = append(s, items...)
		d.stack = append(d.stack[:k-1], s)
	default:
		return fmt.Errorf("pickle: loadAdditems: expected a set, got %T", target)
	}
	return nil
}

func (d *Decoder) loadAppends() error {
	k, err := d.marker()
	if err != nil {
		return err
	}
	if k < 1 {
		return &StackUnderflowError{Op: opAppends}
	}
	l := d.stack[k-1]
	switch l := l.(type) {
	case []interface{}:
		l = append(l, d.stack[k:]...)
		d.stack = append(d.stack[:k-1], l)
	case *Reduce:
		l.ListItems = append(l.ListItems, d.stack[k:]...)
		d.stack = d.stack[:k]
	default:
		return fmt.Errorf("pickle: loadAppends: expected a list, got %T", l)
	}
	return nil
}

func (d *Decoder) memoGet(i int) (interface{}, error) {
	if i < 0 || i >= len(d.memo) || !d.memo[i].set {
		return nil, &BadMemoError{Index: i}
	}
	slot := d.memo[i]
	if slot.building {
		return nil, &CyclicError{MemoIndex: i}
	}
	return slot.value, nil
}

func (d *Decoder) memoPut(i int) error {
	if len(d.stack) < 1 {
		return &StackUnderflowError{}
	}
	if i < 0 {
		return &BadMemoError{Index: i}
	}
	for len(d.memo) <= i {
		d.memo = append(d.memo, memoSlot{})
	}
	v := d.stack[len(d.stack)-1]
	_, building := v.(*Reduce)
	d.memo[i] = memoSlot{set: true, value: v, building: building}
	return nil
}

func (d *Decoder) get() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	i, err := strconv.Atoi(string(line))
	if err != nil {
		return err
	}
	v, err := d.memoGet(i)
	if err != nil {
		return err
	}
	d.push(v)
	return nil
}

func (d *Decoder) binGet() error {
	b, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	v, err := d.memoGet(int(b))
	if err != nil {
		return err
	}
	d.push(v)
	return nil
}

func (d *Decoder) longBinGet() error {
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return err
	}
	v, err := d.memoGet(int(binary.LittleEndian.Uint32(b[:])))
	if err != nil {
		return err
	}
	d.push(v)
	return nil
}

// inst builds and pushes a class instance (protocol 0's INST): module and
// classname are read as text lines, then the argument tuple is taken from
// the marker below.
func (d *Decoder) inst() error {
	module, err := d.readLine()
	if err != nil {
		return err
	}
	name, err := d.readLine()
	if err != nil {
		return err
	}
	k, err := d.marker()
	if err != nil {
		return err
	}
	args := append(Tuple{}, d.stack[k:]...)
	d.stack = append(d.stack[:k], &Reduce{
		Callable: Class{Module: string(module), Name: string(name)},
		Args:     args,
	})
	return nil
}

// obj builds and pushes a class instance from a class pushed on the stack
// (protocol 1's OBJ): the marker is followed by the class, then the args.
func (d *Decoder) obj() error {
	k, err := d.marker()
	if err != nil {
		return err
	}
	if len(d.stack)-k < 1 {
		return &StackUnderflowError{Op: opObj}
	}
	class, ok := d.stack[k].(Class)
	if !ok {
		return fmt.Errorf("pickle: obj: expected a class, got %T", d.stack[k])
	}
	args := append(Tuple{}, d.stack[k+1:]...)
	d.stack = append(d.stack[:k], &Reduce{Callable: class, Args: args})
	return nil
}

func (d *Decoder) loadList() error {
	k, err := d.marker()
	if err != nil {
		return err
	}
	v := append([]interface{}{}, d.stack[k:]...)
	d.stack = append(d.stack[:k], v)
	return nil
}

func (d *Decoder) loadTuple() error {
	k, err := d.marker()
	if err != nil {
		return err
	}
	v := append(Tuple{}, d.stack[k:]...)
	d.stack = append(d.stack[:k], v)
	return nil
}

func (d *Decoder) loadTupleN(n int) error {
	if len(d.stack) < n {
		return &StackUnderflowError{}
	}
	k := len(d.stack) - n
	v := append(Tuple{}, d.stack[k:]...)
	d.stack = append(d.stack[:k], v)
	return nil
}

func (d *Decoder) loadPut() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	i, err := strconv.Atoi(string(line))
	if err != nil {
		return err
	}
	return d.memoPut(i)
}

func (d *Decoder) binPut() error {
	b, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	return d.memoPut(int(b))
}

func (d *Decoder) longBinPut() error {
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return err
	}
	return d.memoPut(int(binary.LittleEndian.Uint32(b[:])))
}

func (d *Decoder) loadMemoize() error {
	return d.memoPut(len(d.memo))
}

func (d *Decoder) loadSetItem() error {
	if len(d.stack) < 3 {
		return &StackUnderflowError{Op: opSetitem}
	}
	v := d.xpop()
	k := d.xpop()
	m := d.stack[len(d.stack)-1]
	dd, ok := m.(Dict)
	if !ok {
		return fmt.Errorf("pickle: loadSetItem: expected a dict, got %T", m)
	}
	dd.Set(k, v)
	return nil
}

func (d *Decoder) loadSetItems() error {
	k, err := d.marker()
	if err != nil {
		return err
	}
	if k < 1 {
		return &StackUnderflowError{Op: opSetitems}
	}
	var dd Dict
	switch m := d.stack[k-1].(type) {
	case Dict:
		dd = m
	case *Reduce:
		if !m.HasDictItems {
			m.HasDictItems = true
			m.DictItems = NewDict()
		}
		dd = m.DictItems
	default:
		return fmt.Errorf("pickle: loadSetItems: expected a dict, got %T", m)
	}
	items := d.stack[k:]
	if len(items)%2 != 0 {
		return fmt.Errorf("pickle: loadSetItems: odd # of elements")
	}
	for i := 0; i < len(items); i += 2 {
		dd.Set(items[i], items[i+1])
	}
	d.stack = d.stack[:k]
	return nil
}

func (d *Decoder) binFloat() error {
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return err
	}
	d.push(math.Float64frombits(binary.BigEndian.Uint64(b[:])))
	return nil
}

// loadFrame discards the framing opcode's 8-byte length prefix.
// https://www.python.org/dev/peps/pep-3154/#framing
func (d *Decoder) loadFrame() error {
	var b [8]byte
	_, err := io.ReadFull(d.r, b[:])
	return err
}

// unquoteChar is like strconv.UnquoteChar, but returns io.ErrUnexpectedEOF
// instead of strconv.ErrSyntax when input is prematurely terminated.
func unquoteChar(s string, quote byte) (value rune, multibyte bool, tail string, err error) {
	if s == "" {
		return 0, false, "", io.ErrUnexpectedEOF
	}
	value, multibyte, tail, err = strconv.UnquoteChar(s, quote)
	if err == nil {
		return
	}
	if len(s) > 10 {
		return
	}
	_, _, _, err2 := strconv.UnquoteChar(s+"000000000", quote)
	if err2 == nil {
		err = io.ErrUnexpectedEOF
	}
	return
}

// decodeLong takes a two's-complement little-endian byte string and
// converts it to a big integer, per pickle's LONG1/LONG4 encoding.
func decodeLong(data string) (*big.Int, error) {
	decoded := big.NewInt(0)
	var negative bool
	switch x := len(data); {
	case x < 1:
		return decoded, nil
	case x > 1:
		if data[x-1] > 127 {
			negative = true
		}
		for i := x - 1; i >= 0; i-- {
			a := big.NewInt(int64(data[i]))
			a.Lsh(a, uint(8*i))
			decoded.Add(a, decoded)
		}
	default:
		if data[0] > 127 {
			negative = true
		}
		decoded = big.NewInt(int64(data[0]))
	}

	if negative {
		one := big.NewInt(1)
		decoded.Sub(decoded, one)
		b := decoded.Bytes()
		for i := range b {
			b[i] = ^b[i]
		}
		decoded.SetBytes(b)
		decoded.Neg(decoded)
	}
	return decoded, nil
}
