package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"
	"strings"
)

// highest protocol this package emits. Unlike a general-purpose pickle
// library, this encoder always emits protocol 3 — the lowest protocol
// that can represent Python bytes unambiguously — since its own output
// only ever needs to round-trip through itself and CPython's unpickler.
const encodeProtocol = 3

// Encoder encodes decoded values (codec's value model) into pickle byte
// stream, protocol 3.
type Encoder struct {
	w      io.Writer
	config *EncoderConfig
}

// EncoderConfig allows to tune Encoder.
type EncoderConfig struct {
	// PersistentRef, if !nil, is consulted for every value the encoder is
	// about to encode. If it returns non-nil, the encoder emits that Ref
	// instead of encoding the value itself.
	PersistentRef func(v interface{}) *Ref

	// noClassMemo is not read: class globals are always memoized, so
	// repeated references to the same class in one stream only cost a GET,
	// matching what CPython's own pickler does.
	noClassMemo bool
}

// NewEncoder returns a new Encoder with default configuration.
func NewEncoder(w io.Writer) *Encoder {
	return NewEncoderWithConfig(w, &EncoderConfig{})
}

// NewEncoderWithConfig is similar to NewEncoder, but allows specifying the
// encoder configuration.
func NewEncoderWithConfig(w io.Writer, config *EncoderConfig) *Encoder {
	return &Encoder{w: w, config: config}
}

// classMemo tracks which (module, name) globals have already been put in
// the memo, and at what memo index, for this encode. Only class identities
// are memoized — plain values are re-emitted each time they occur, which is
// what the decoder's own GET/PUT bookkeeping would otherwise need to track
// symmetrically on the value side, and pickle streams coming out of this
// package are never large enough for that to matter.
type classMemo struct {
	idx map[Class]int
	n   int
}

// Encode writes the protocol-3 pickle encoding of v to the encoder's writer.
func (e *Encoder) Encode(v interface{}) error {
	if err := e.emit(opProto, encodeProtocol); err != nil {
		return err
	}
	cm := &classMemo{idx: make(map[Class]int)}
	if err := e.encode(v, cm); err != nil {
		return err
	}
	return e.emit(opStop)
}

func (e *Encoder) emitb(b []byte) error {
	_, err := e.w.Write(b)
	return err
}

func (e *Encoder) emits(s string) error {
	return e.emitb([]byte(s))
}

func (e *Encoder) emit(bv ...byte) error {
	return e.emitb(bv)
}

func (e *Encoder) emitf(format string, argv ...interface{}) error {
	_, err := fmt.Fprintf(e.w, format, argv...)
	return err
}

func (e *Encoder) encode(v interface{}, cm *classMemo) error {
	if getref := e.config.PersistentRef; getref != nil {
		if ref := getref(v); ref != nil {
			return e.encodeRef(ref, cm)
		}
	}

	switch v := v.(type) {
	case nil:
		return e.emit(opNone)
	case None:
		return e.emit(opNone)
	case bool:
		return e.encodeBool(v)
	case int:
		return e.encodeInt(int64(v))
	case int64:
		return e.encodeInt(v)
	case int32:
		return e.encodeInt(int64(v))
	case int16:
		return e.encodeInt(int64(v))
	case int8:
		return e.encodeInt(int64(v))
	case uint32:
		return e.encodeInt(int64(v))
	case uint16:
		return e.encodeInt(int64(v))
	case uint8:
		return e.encodeInt(int64(v))
	case uint:
		return e.encodeBigInt(new(big.Int).SetUint64(uint64(v)))
	case uint64:
		return e.encodeBigInt(new(big.Int).SetUint64(v))
	case *big.Int:
		return e.encodeBigInt(v)
	case float64:
		return e.encodeFloat(v)
	case float32:
		return e.encodeFloat(float64(v))
	case string:
		return e.encodeUnicode(v)
	case Bytes:
		return e.encodeBytes(v)
	case ByteString:
		return e.encodeUnicode(string(v))
	case []interface{}:
		return e.encodeList(v, cm)
	case Tuple:
		return e.encodeTuple(v, cm)
	case Set:
		return e.encodeSet(v, cm, false)
	case FrozenSet:
		return e.encodeSet(v, cm, true)
	case Dict:
		return e.encodeDict(v, cm)
	case Class:
		return e.encodeClass(&v, cm)
	case Ref:
		return e.encodeRef(&v, cm)
	case *Reduce:
		return e.encodeReduce(v, cm)
	case Reduce:
		return e.encodeReduce(&v, cm)
	default:
		return &EncodeFailureError{Reason: fmt.Sprintf("no pickle encoding for %T", v)}
	}
}

func (e *Encoder) encodeTuple(t Tuple, cm *classMemo) error {
	l := len(t)

	if 1 <= l && l <= 3 {
		for i := range t {
			if err := e.encode(t[i], cm); err != nil {
				return err
			}
		}
		var op byte
		switch l {
		case 1:
			op = opTuple1
		case 2:
			op = opTuple2
		case 3:
			op = opTuple3
		}
		return e.emit(op)
	}

	if l == 0 {
		return e.emit(opEmptyTuple)
	}

	if err := e.emit(opMark); err != nil {
		return err
	}
	for i := 0; i < l; i++ {
		if err := e.encode(t[i], cm); err != nil {
			return err
		}
	}
	return e.emit(opTuple)
}

func (e *Encoder) encodeList(l []interface{}, cm *classMemo) error {
	if len(l) == 0 {
		return e.emit(opEmptyList)
	}
	if err := e.emit(opMark); err != nil {
		return err
	}
	for _, v := range l {
		if err := e.encode(v, cm); err != nil {
			return err
		}
	}
	return e.emit(opList)
}

func (e *Encoder) encodeSet(s []interface{}, cm *classMemo, frozen bool) error {
	if !frozen {
		if err := e.emit(opEmptySet); err != nil {
			return err
		}
		if len(s) == 0 {
			return nil
		}
		if err := e.emit(opMark); err != nil {
			return err
		}
		for _, v := range s {
			if err := e.encode(v, cm); err != nil {
				return err
			}
		}
		return e.emit(opAdditems)
	}

	// FROZENSET: MARK ... FROZENSET (no empty-frozenset fast path exists
	// in the pickle protocol; CPython always goes through MARK/FROZENSET).
	if err := e.emit(opMark); err != nil {
		return err
	}
	for _, v := range s {
		if err := e.encode(v, cm); err != nil {
			return err
		}
	}
	return e.emit(opFrozenset)
}

func (e *Encoder) encodeBool(b bool) error {
	op := opNewfalse
	if b {
		op = opNewtrue
	}
	return e.emit(op)
}

func (e *Encoder) encodeBytes(b Bytes) error {
	l := len(b)
	if l < 256 {
		if err := e.emit(opShortBinbytes, byte(l)); err != nil {
			return err
		}
	} else {
		var hdr = [1 + 4]byte{opBinbytes}
		binary.LittleEndian.PutUint32(hdr[1:], uint32(l))
		if err := e.emitb(hdr[:]); err != nil {
			return err
		}
	}
	return e.emits(string(b))
}

// encodeUnicode emits UTF-8 encoded string s as a Python str. SHORT_BINUNICODE
// is a protocol 4+ opcode, so at the fixed protocol 3 this always goes
// through BINUNICODE's 4-byte length prefix, matching CPython's own
// Pickler.save_str at proto < 4.
func (e *Encoder) encodeUnicode(s string) error {
	l := len(s)
	var hdr = [1 + 4]byte{opBinunicode}
	binary.LittleEndian.PutUint32(hdr[1:], uint32(l))
	if err := e.emitb(hdr[:]); err != nil {
		return err
	}
	return e.emits(s)
}

func (e *Encoder) encodeFloat(f float64) error {
	u := math.Float64bits(f)
	var b = [1 + 8]byte{opBinfloat}
	binary.BigEndian.PutUint64(b[1:], u)
	return e.emitb(b[:])
}

// encodeInt chooses the narrowest opcode that can hold i exactly:
// BININT1 (0..255), BININT2 (256..65535), BININT (signed 32-bit),
// else falls through to the arbitrary-precision LONG encoding.
func (e *Encoder) encodeInt(i int64) error {
	switch {
	case i >= 0 && i < 256:
		return e.emit(opBinint1, byte(i))
	case i >= 0 && i < 65536:
		return e.emit(opBinint2, byte(i), byte(i>>8))
	case i >= math.MinInt32 && i <= math.MaxInt32:
		var b = [1 + 4]byte{opBinint}
		binary.LittleEndian.PutUint32(b[1:], uint32(int32(i)))
		return e.emitb(b[:])
	}
	return e.encodeBigInt(big.NewInt(i))
}

// encodeBigInt emits an arbitrary-precision integer via LONG1/LONG4,
// using two's-complement little-endian encoding (the inverse of decodeLong).
func (e *Encoder) encodeBigInt(v *big.Int) error {
	if v.IsInt64() {
		i := v.Int64()
		if i >= math.MinInt32 && i <= math.MaxInt32 && !(i >= 0 && i < 65536) {
			// still narrower as BININT than as a LONG1 payload
			return e.encodeInt(i)
		}
	}

	raw := encodeLongBytes(v)
	l := len(raw)
	if l < 256 {
		if err := e.emit(opLong1, byte(l)); err != nil {
			return err
		}
	} else {
		var hdr = [1 + 4]byte{opLong4}
		binary.LittleEndian.PutUint32(hdr[1:], uint32(l))
		if err := e.emitb(hdr[:]); err != nil {
			return err
		}
	}
	return e.emitb(raw)
}

// encodeLongBytes produces the minimal two's-complement little-endian byte
// string decodeLong can read back, matching CPython's encode_long.
func encodeLongBytes(v *big.Int) []byte {
	if v.Sign() == 0 {
		return nil
	}
	if v.Sign() > 0 {
		b := reverse(v.Bytes())
		if b[len(b)-1]&0x80 != 0 {
			b = append(b, 0)
		}
		return b
	}

	// negative: two's complement of (-v - 1), inverted
	tmp := new(big.Int).Neg(v)
	tmp.Sub(tmp, big.NewInt(1))
	b := reverse(tmp.Bytes())
	if len(b) == 0 {
		b = []byte{0}
	}
	for i := range b {
		b[i] = ^b[i]
	}
	if b[len(b)-1]&0x80 == 0 {
		b = append(b, 0xff)
	}
	return b
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

func (e *Encoder) encodeDict(d Dict, cm *classMemo) error {
	if d.Len() == 0 {
		return e.emit(opEmptyDict)
	}
	if err := e.emit(opMark); err != nil {
		return err
	}
	var err error
	d.Iter()(func(k, v interface{}) bool {
		if err = e.encode(k, cm); err != nil {
			return false
		}
		if err = e.encode(v, cm); err != nil {
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return e.emit(opDict)
}

func (e *Encoder) encodeReduce(r *Reduce, cm *classMemo) error {
	if err := e.encodeClass(&r.Callable, cm); err != nil {
		return err
	}
	if err := e.encodeTuple(r.Args, cm); err != nil {
		return err
	}
	if err := e.emit(opReduce); err != nil {
		return err
	}

	if r.HasState {
		if err := e.encode(r.State, cm); err != nil {
			return err
		}
		if err := e.emit(opBuild); err != nil {
			return err
		}
	}
	if len(r.ListItems) > 0 {
		if err := e.emit(opMark); err != nil {
			return err
		}
		for _, v := range r.ListItems {
			if err := e.encode(v, cm); err != nil {
				return err
			}
		}
		if err := e.emit(opAppends); err != nil {
			return err
		}
	}
	if r.HasDictItems && r.DictItems.Len() > 0 {
		if err := e.emit(opMark); err != nil {
			return err
		}
		var err error
		r.DictItems.Iter()(func(k, v interface{}) bool {
			if err = e.encode(k, cm); err != nil {
				return false
			}
			if err = e.encode(v, cm); err != nil {
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
		if err := e.emit(opSetitems); err != nil {
			return err
		}
	}
	return nil
}

var errGlobalStringLineOnly = fmt.Errorf(`global: module & name must not contain newlines`)

// encodeClass emits GLOBAL, memoizing repeated class identities with a
// PUT/GET pair the way CPython's pickler does for any object it sees twice.
func (e *Encoder) encodeClass(v *Class, cm *classMemo) error {
	if idx, ok := cm.idx[*v]; ok {
		return e.emitGet(idx)
	}

	if strings.Contains(v.Module, "\n") || strings.Contains(v.Name, "\n") {
		return errGlobalStringLineOnly
	}
	if err := e.emitf("%c%s\n%s\n", opGlobal, v.Module, v.Name); err != nil {
		return err
	}

	idx := cm.n
	cm.n++
	cm.idx[*v] = idx
	return e.emitPut(idx)
}

func (e *Encoder) emitPut(idx int) error {
	if idx < 256 {
		return e.emit(opBinput, byte(idx))
	}
	var b = [1 + 4]byte{opLongBinput}
	binary.LittleEndian.PutUint32(b[1:], uint32(idx))
	return e.emitb(b[:])
}

func (e *Encoder) emitGet(idx int) error {
	if idx < 256 {
		return e.emit(opBinget, byte(idx))
	}
	var b = [1 + 4]byte{opLongBinget}
	binary.LittleEndian.PutUint32(b[1:], uint32(idx))
	return e.emitb(b[:])
}

func (e *Encoder) encodeRef(v *Ref, cm *classMemo) error {
	if v.HasClass {
		if err := e.encode(Tuple{v.Oid, v.ClassHint}, cm); err != nil {
			return err
		}
	} else {
		if err := e.encode(v.Oid, cm); err != nil {
			return err
		}
	}
	return e.emit(opBinpersid)
}
