package codec

import (
	"github.com/google/uuid"
)

// None is Python's None.
type None struct{}

// Bytes is Python's bytes (a BINBYTES/SHORT_BINBYTES/BINBYTES8 payload).
// It is distinct from string because pickle and the canonical JSON form
// both distinguish str from bytes. Represented as a string (not []byte) so
// it stays comparable and usable as a Dict key, the same way Dict's
// equality/hash matrix already expects of it.
type Bytes string

// ByteString represents Python 2's str, the protocol-0 STRING opcode's
// historically ambiguous "bytes or text" result. Decode never produces
// it (STRING decodes to string, matching spec.md's value model), but
// Dict's equality/hash machinery still treats it as a third, non-transitive
// peer of Bytes and string so callers embedding it directly still get
// correct Python-equality semantics.
type ByteString string

// Tuple is Python's tuple. Unlike List ([]interface{}), it round-trips
// through JSON tagged with "@t" so it does not collapse into a list.
type Tuple []interface{}

// Set is Python's set.
type Set []interface{}

// FrozenSet is Python's frozenset.
type FrozenSet []interface{}

// Class identifies a Python class or callable by its (module, qualname).
type Class struct {
	Module, Name string
}

// Ref is a ZODB persistent reference: the oid of another record, and
// optionally the class of the object that oid refers to.
//
// A bare reference decodes as Oid with ClassHint == "". A (oid, class)
// tuple reference decodes with both fields set.
type Ref struct {
	Oid       Bytes
	ClassHint string
	HasClass  bool
}

// Reduce represents the general Python object-construction protocol: a
// callable applied to an argument tuple, optionally followed by a
// __setstate__ state, list extension and dict update (BUILD, APPEND(S),
// SETITEM(S) applied to the object REDUCE/NEWOBJ produced).
type Reduce struct {
	Callable Class
	Args     Tuple

	HasState  bool
	State     interface{}

	ListItems []interface{}

	HasDictItems bool
	DictItems    Dict
}

// DateTime is Python's datetime.datetime.
type DateTime struct {
	Year, Month, Day           int
	Hour, Minute, Second       int
	Microsecond                int
	TZ                         *TZ // nil for naive datetimes
}

// Date is Python's datetime.date.
type Date struct {
	Year, Month, Day int
}

// Time is Python's datetime.time.
type Time struct {
	Hour, Minute, Second, Microsecond int
	TZ                                *TZ
}

// Timedelta is Python's datetime.timedelta, stored the way CPython
// normalizes it internally.
type Timedelta struct {
	Days, Seconds, Microseconds int
}

// Decimal is Python's decimal.Decimal, preserved verbatim as its string
// form (including "Infinity", "-Infinity", "NaN").
type Decimal struct {
	Text string
}

// UUID is Python's uuid.UUID.
type UUID struct {
	ID uuid.UUID
}

// TZ records the provenance of a timezone attached to a DateTime/Time so
// it can be reconstructed as the same kind of tzinfo it came from.
//
// Exactly one of the following holds:
//   - FixedOffset != nil: a datetime.timezone(timedelta(...)) fixed offset.
//   - Name != "": a pytz timezone, referenced by zone name.
//   - ZoneInfo != "": a zoneinfo.ZoneInfo, referenced by zone key.
type TZ struct {
	FixedOffset *Timedelta
	Name        string
	ZoneInfo    string
}

// BTreeKV is a flattened BTrees-library mapping state (a small tree's or a
// bucket's nested-tuple state, collapsed to key/value pairs in order).
type BTreeKV struct {
	Pairs [][2]interface{}
}

// BTreeKS is a flattened BTrees-library set/treeset state: keys only, no
// values.
type BTreeKS struct {
	Keys []interface{}
}

// BTreeChildren is a flattened large-BTree state: child_array is a
// tuple alternating child/separator-key/child/…/child (odd length);
// First is a reference to the tree's leftmost bucket, kept for ordered
// traversal.
type BTreeChildren struct {
	Children []interface{}
	First    interface{}
}

// Record is a decoded ZODB database record: the persistent class of the
// stored object, and its state.
type Record struct {
	Class Class
	State interface{}
}

// Wide integers (pickled via LONG/LONG1/LONG4) decode directly to
// *big.Int, matching Dict's equality matrix (dict.go) which already
// treats *big.Int as the canonical wide-integer representation.
